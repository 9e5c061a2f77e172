// Package oauth runs the app install flow that yields a shop's offline or
// online access token.
package oauth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"shopbridge/internal/config"
	"shopbridge/internal/webhook"
)

var (
	// ErrInvalidHMAC is returned when the callback query is not signed with
	// the app secret.
	ErrInvalidHMAC = errors.New("oauth: invalid hmac")
	// ErrInvalidState is returned for an unknown, reused or expired state.
	ErrInvalidState = errors.New("oauth: invalid state")
	// ErrInvalidShop is returned when the shop parameter is not a shop domain.
	ErrInvalidShop = errors.New("oauth: invalid shop domain")
)

var shopPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9\-]*\.myshopify\.com$`)

// App holds the partner app credentials.
type App struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string
	// Online requests a per-user token instead of an offline one.
	Online bool

	HTTPClient *http.Client
	States     *StateStore

	// shopURL maps a shop domain to its origin; tests point it at a server.
	shopURL func(shop string) string
}

// NewApp builds an App from the config's app section.
func NewApp(cfg config.App) *App {
	return &App{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURI:  cfg.RedirectURI,
		Scopes:       append([]string(nil), cfg.Scopes...),
		Online:       cfg.Online,
		States:       NewStateStore(0),
	}
}

// Token is the result of a successful exchange.
type Token struct {
	Shop        string `json:"shop"`
	AccessToken string `json:"access_token"`
	Scope       string `json:"scope"`
}

func (a *App) origin(shop string) string {
	if a.shopURL != nil {
		return a.shopURL(shop)
	}
	return "https://" + shop
}

func (a *App) client() *http.Client {
	if a.HTTPClient != nil {
		return a.HTTPClient
	}
	return &http.Client{Timeout: 10 * time.Second}
}

// AuthorizeURL is the page the merchant is sent to in order to grant the
// app's scopes.
func (a *App) AuthorizeURL(shop, state string) string {
	q := url.Values{}
	q.Set("client_id", a.ClientID)
	q.Set("scope", strings.Join(a.Scopes, ","))
	q.Set("redirect_uri", a.RedirectURI)
	q.Set("state", state)
	if a.Online {
		q.Add("grant_options[]", "per-user")
	}
	return a.origin(config.NormalizeDomain(shop)) + "/admin/oauth/authorize?" + q.Encode()
}

// Begin issues a state for shop and returns the authorize URL carrying it.
func (a *App) Begin(shop string) (string, error) {
	shop = config.NormalizeDomain(shop)
	if !shopPattern.MatchString(shop) {
		return "", ErrInvalidShop
	}
	if a.States == nil {
		a.States = NewStateStore(0)
	}
	return a.AuthorizeURL(shop, a.States.Issue(shop)), nil
}

// Callback validates the redirect query and exchanges its code for a token.
func (a *App) Callback(ctx context.Context, q url.Values) (*Token, error) {
	if !webhook.VerifyQuery(q, a.ClientSecret) {
		return nil, ErrInvalidHMAC
	}
	shop := config.NormalizeDomain(q.Get("shop"))
	if !shopPattern.MatchString(shop) {
		return nil, ErrInvalidShop
	}
	if a.States != nil && !a.States.Consume(q.Get("state"), shop) {
		return nil, ErrInvalidState
	}
	return a.Exchange(ctx, shop, q.Get("code"))
}

// Exchange trades an authorization code for an access token.
func (a *App) Exchange(ctx context.Context, shop, code string) (*Token, error) {
	if code == "" {
		return nil, fmt.Errorf("oauth: missing authorization code")
	}
	body, err := json.Marshal(map[string]string{
		"client_id":     a.ClientID,
		"client_secret": a.ClientSecret,
		"code":          code,
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.origin(shop)+"/admin/oauth/access_token", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("oauth: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := a.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("oauth: token exchange: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("oauth: read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("oauth: token exchange returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var tok Token
	if err := json.Unmarshal(raw, &tok); err != nil {
		return nil, fmt.Errorf("oauth: token parse: %w", err)
	}
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("oauth: token exchange: empty access_token")
	}
	tok.Shop = shop
	return &tok, nil
}
