package transport

import (
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	retryBaseDelay = 500 * time.Millisecond
	retryMaxJitter = 250 * time.Millisecond
	retryMaxDelay  = 10 * time.Second
	retryAfterCap  = 30 * time.Second
)

// retryDelay returns how long to wait before attempt+1. A positive
// Retry-After wins over exponential backoff.
func retryDelay(attempt int, retryAfter time.Duration) time.Duration {
	if retryAfter > 0 {
		return min(retryAfter, retryAfterCap)
	}
	if attempt > 16 {
		attempt = 16
	}
	d := retryBaseDelay<<attempt + time.Duration(rand.Int64N(int64(retryMaxJitter)+1))
	return min(d, retryMaxDelay)
}

func isIdempotent(method string) bool {
	switch strings.ToUpper(method) {
	case http.MethodGet, http.MethodHead, http.MethodPut, http.MethodDelete, http.MethodOptions:
		return true
	}
	return false
}

// isRetryable decides whether a failed attempt may be repeated. code is 0
// when the request never got a response.
func isRetryable(method string, code int, err error) bool {
	if code == http.StatusTooManyRequests {
		return true
	}
	if code == 0 {
		return err != nil && isIdempotent(method)
	}
	switch code {
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		if isIdempotent(method) {
			return true
		}
		return code == http.StatusServiceUnavailable
	}
	return false
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		if secs <= 0 {
			return 0
		}
		return min(time.Duration(secs*float64(time.Second)), retryAfterCap)
	}
	if at, err := http.ParseTime(v); err == nil {
		d := time.Until(at)
		if d <= 0 {
			return 0
		}
		return min(d, retryAfterCap)
	}
	return 0
}
