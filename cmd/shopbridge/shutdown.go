package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// ShutdownTimeout bounds how long in-flight webhook deliveries may take to finish.
const ShutdownTimeout = 15 * time.Second

// shutdownOnSignal blocks until SIGINT or SIGTERM, then drains the servers.
// A second signal exits immediately. cleanupFn may be nil.
func shutdownOnSignal(logger *slog.Logger, servers []*http.Server, cleanupFn func()) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", "signal", sig.String(), "timeout", ShutdownTimeout)

	go func() {
		sig := <-sigCh
		logger.Warn("forced shutdown", "signal", sig.String())
		os.Exit(1)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	var wg sync.WaitGroup
	for _, srv := range servers {
		wg.Add(1)
		go func(s *http.Server) {
			defer wg.Done()
			if err := s.Shutdown(ctx); err != nil {
				logger.Error("HTTP server shutdown error", "addr", s.Addr, "error", err)
			}
		}(srv)
	}
	wg.Wait()

	if cleanupFn != nil {
		cleanupFn()
	}

	if ctx.Err() == context.DeadlineExceeded {
		logger.Warn("forced shutdown after timeout")
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}
