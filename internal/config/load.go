package config

import (
	"fmt"
	"os"
)

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := LoadFromBytes(data)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) ExpandEnv() error {
	fields := []struct {
		name string
		val  *string
	}{
		{"shop", &c.Shop},
		{"token", &c.Token},
		{"api_base", &c.APIBase},
		{"graphql_api_base", &c.GraphQLAPIBase},
		{"webhooks.secret", &c.Webhooks.Secret},
		{"app.client_id", &c.App.ClientID},
		{"app.client_secret", &c.App.ClientSecret},
		{"app.redirect_uri", &c.App.RedirectURI},
		{"audit.path", &c.Audit.Path},
	}
	for _, f := range fields {
		if *f.val == "" {
			continue
		}
		expanded, err := ExpandEnvStrict(*f.val)
		if err != nil {
			return fmt.Errorf("%s: %w", f.name, err)
		}
		*f.val = expanded
	}
	for i, s := range c.GraphQLPilotStores {
		expanded, err := ExpandEnvStrict(s)
		if err != nil {
			return fmt.Errorf("graphql_pilot_stores[%d]: %w", i, err)
		}
		c.GraphQLPilotStores[i] = expanded
	}
	return nil
}
