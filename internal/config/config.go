package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"shopbridge/internal/canonical"
)

const (
	DefaultAPIBase   = "admin/api/2024-10"
	shopDomainSuffix = ".myshopify.com"
)

type Config struct {
	Shop               string          `json:"shop" yaml:"shop"`
	Token              string          `json:"token" yaml:"token"`
	APIBase            string          `json:"api_base,omitempty" yaml:"api_base,omitempty"`
	GraphQLAPIBase     string          `json:"graphql_api_base,omitempty" yaml:"graphql_api_base,omitempty"`
	Endpoints          map[string]bool `json:"endpoints,omitempty" yaml:"endpoints,omitempty"`
	GraphQLPilotStores []string        `json:"graphql_pilot_stores,omitempty" yaml:"graphql_pilot_stores,omitempty"`
	ValidateDocuments  bool            `json:"validate_documents,omitempty" yaml:"validate_documents,omitempty"`
	Options            Options         `json:"options" yaml:"options"`
	TimeoutSeconds     int             `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	Retries            *int            `json:"retries,omitempty" yaml:"retries,omitempty"`
	RateLimit          RateLimit       `json:"rate_limit" yaml:"rate_limit"`
	CircuitBreaker     CircuitBreaker  `json:"circuit_breaker" yaml:"circuit_breaker"`
	Webhooks           Webhooks        `json:"webhooks" yaml:"webhooks"`
	App                App             `json:"app" yaml:"app"`
	Audit              Audit           `json:"audit" yaml:"audit"`
	Logging            Logging         `json:"logging" yaml:"logging"`
}

// Options are the logging toggles of the client.
type Options struct {
	LogAPIRequestData      bool  `json:"log_api_request_data" yaml:"log_api_request_data"`
	LogAPIResponseData     bool  `json:"log_api_response_data" yaml:"log_api_response_data"`
	LogDeprecationWarnings *bool `json:"log_deprecation_warnings,omitempty" yaml:"log_deprecation_warnings,omitempty"`
}

// DeprecationWarnings defaults to on.
func (o Options) DeprecationWarnings() bool {
	return o.LogDeprecationWarnings == nil || *o.LogDeprecationWarnings
}

// RateLimit mirrors the platform's leaky bucket: BucketSize calls, leaking
// LeakRate calls per second.
type RateLimit struct {
	BucketSize int     `json:"bucket_size,omitempty" yaml:"bucket_size,omitempty"`
	LeakRate   float64 `json:"leak_rate,omitempty" yaml:"leak_rate,omitempty"`
}

type CircuitBreaker struct {
	Threshold       int `json:"threshold,omitempty" yaml:"threshold,omitempty"`
	CooldownSeconds int `json:"cooldown,omitempty" yaml:"cooldown,omitempty"`
}

func (c CircuitBreaker) Cooldown() time.Duration {
	return time.Duration(c.CooldownSeconds) * time.Second
}

type Webhooks struct {
	Secret string   `json:"secret,omitempty" yaml:"secret,omitempty"`
	Topics []string `json:"topics,omitempty" yaml:"topics,omitempty"`
}

// App holds the partner app credentials used by the install flow.
type App struct {
	ClientID     string   `json:"client_id,omitempty" yaml:"client_id,omitempty"`
	ClientSecret string   `json:"client_secret,omitempty" yaml:"client_secret,omitempty"`
	RedirectURI  string   `json:"redirect_uri,omitempty" yaml:"redirect_uri,omitempty"`
	Scopes       []string `json:"scopes,omitempty" yaml:"scopes,omitempty"`
	Online       bool     `json:"online,omitempty" yaml:"online,omitempty"`
}

// Enabled reports whether the install flow is configured.
func (a App) Enabled() bool {
	return a.ClientID != "" && a.ClientSecret != ""
}

// Audit enables the SQLite audit trail when Path is set.
type Audit struct {
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
}

type Logging struct {
	Format string `json:"format,omitempty" yaml:"format,omitempty"`
	Level  string `json:"level,omitempty" yaml:"level,omitempty"`
}

func (c *Config) ApplyDefaults() {
	c.Shop = NormalizeDomain(c.Shop)
	if c.APIBase == "" {
		c.APIBase = DefaultAPIBase
	}
	c.APIBase = strings.Trim(c.APIBase, "/")
	if c.GraphQLAPIBase == "" {
		c.GraphQLAPIBase = c.APIBase
	}
	c.GraphQLAPIBase = strings.Trim(c.GraphQLAPIBase, "/")
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = 30
	}
	if c.Retries == nil {
		val := 3
		c.Retries = &val
	}
	if c.RateLimit.BucketSize == 0 {
		c.RateLimit.BucketSize = 40
	}
	if c.RateLimit.LeakRate == 0 {
		c.RateLimit.LeakRate = 2
	}
	if c.CircuitBreaker.Threshold == 0 {
		c.CircuitBreaker.Threshold = 5
	}
	if c.CircuitBreaker.CooldownSeconds == 0 {
		c.CircuitBreaker.CooldownSeconds = 30
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	for i, s := range c.GraphQLPilotStores {
		c.GraphQLPilotStores[i] = NormalizeDomain(s)
	}
}

func (c *Config) Validate() error {
	if c.Shop == "" {
		return fmt.Errorf("shop is required")
	}
	if _, err := url.Parse("https://" + c.Shop); err != nil {
		return fmt.Errorf("shop: %w", err)
	}
	if c.Token == "" {
		return fmt.Errorf("token is required")
	}
	if c.TimeoutSeconds < 0 {
		return fmt.Errorf("timeout must be >= 0")
	}
	if c.Retries != nil && *c.Retries < 0 {
		return fmt.Errorf("retries must be >= 0")
	}
	for name := range c.Endpoints {
		if _, err := canonical.Lookup(name); err != nil {
			return fmt.Errorf("endpoints.%s: %w", name, err)
		}
	}
	if c.RateLimit.BucketSize < 0 {
		return fmt.Errorf("rate_limit.bucket_size must be >= 0")
	}
	if c.RateLimit.LeakRate < 0 {
		return fmt.Errorf("rate_limit.leak_rate must be >= 0")
	}
	if c.CircuitBreaker.Threshold < 0 {
		return fmt.Errorf("circuit_breaker.threshold must be >= 0")
	}
	if c.CircuitBreaker.CooldownSeconds < 0 {
		return fmt.Errorf("circuit_breaker.cooldown must be >= 0")
	}
	if c.App.ClientID != "" && c.App.ClientSecret == "" {
		return fmt.Errorf("app.client_secret is required when app.client_id is set")
	}
	if c.App.RedirectURI != "" {
		if u, err := url.Parse(c.App.RedirectURI); err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("app.redirect_uri: %q is not an absolute url", c.App.RedirectURI)
		}
	}
	for i, topic := range c.Webhooks.Topics {
		if !strings.Contains(topic, "/") {
			return fmt.Errorf("webhooks.topics[%d]: %q is not a resource/event topic", i, topic)
		}
	}
	return nil
}

// GraphEndpoints returns the resources flagged to use the graph protocol.
func (c *Config) GraphEndpoints() map[canonical.Resource]bool {
	out := make(map[canonical.Resource]bool, len(c.Endpoints))
	for name, on := range c.Endpoints {
		if on {
			out[canonical.Resource(name)] = true
		}
	}
	return out
}

// IsPilotStore reports whether the configured shop is a graph pilot store.
func (c *Config) IsPilotStore() bool {
	for _, s := range c.GraphQLPilotStores {
		if s == c.Shop {
			return true
		}
	}
	return false
}

func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c *Config) RetryCount() int {
	if c.Retries == nil {
		return 0
	}
	return *c.Retries
}

func (c *Config) Secrets() []string {
	var secrets []string
	if c.Token != "" {
		secrets = append(secrets, c.Token)
	}
	if c.Webhooks.Secret != "" {
		secrets = append(secrets, c.Webhooks.Secret)
	}
	if c.App.ClientSecret != "" {
		secrets = append(secrets, c.App.ClientSecret)
	}
	return secrets
}

// NormalizeDomain turns "https://My-Shop.myshopify.com/" or "my-shop" into
// "my-shop.myshopify.com".
func NormalizeDomain(shop string) string {
	s := strings.TrimSpace(shop)
	if s == "" {
		return ""
	}
	s = strings.TrimPrefix(strings.TrimPrefix(s, "https://"), "http://")
	s = strings.ToLower(strings.TrimRight(s, "/"))
	s = strings.ReplaceAll(s, shopDomainSuffix, "")
	return s + shopDomainSuffix
}
