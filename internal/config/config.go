// Package config loads exactly the configuration surface spec.md §6
// defines, grounded on the teacher's internal/cmn/config.Loader
// (viper-bound struct, STARDAG_-prefixed env vars, merged with a
// defaults struct via dario.cat/mergo).
package config

import (
	"fmt"
	"net/url"
	"time"
)

// APIConfig is the registry/lock HTTP client's connection surface
// (spec.md §6: "api.url, api.timeout").
type APIConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// ContextConfig carries the workspace scope attached to API-key auth
// when it isn't already embedded in the key (spec.md §6).
type ContextConfig struct {
	WorkspaceID string `mapstructure:"workspace_id"`
}

// TargetConfig resolves a task output's target-root-key against a URI
// prefix (spec.md §6: "target.roots").
type TargetConfig struct {
	Roots map[string]string `mapstructure:"roots"`
}

// Config is the engine's entire recognized configuration surface.
// Anything beyond this (DAG definitions, CLI flags, profile
// management) is out of scope per spec.md §1.
type Config struct {
	API         APIConfig     `mapstructure:"api"`
	APIKey      string        `mapstructure:"api_key"`
	AccessToken string        `mapstructure:"access_token"`
	Context     ContextConfig `mapstructure:"context"`
	Target      TargetConfig  `mapstructure:"target"`
}

// Default returns the engine's zero-config defaults: a local registry
// URL with no credentials, which init_registry-style callers should
// read as "use NoOp unless something more specific is configured" -
// mirroring the original's init_registry condition (stardag.build.registry._base).
func Default() *Config {
	return &Config{
		API: APIConfig{
			URL:     "http://localhost:8000",
			Timeout: 30 * time.Second,
		},
	}
}

// HasCredentials reports whether cfg carries either auth mechanism
// spec.md §6 recognizes, matching the original's init_registry
// decision of "use APIRegistry if we have authentication ... or
// explicit API URL set".
func (c *Config) HasCredentials() bool {
	return c.APIKey != "" || c.AccessToken != ""
}

// UsesNonDefaultAPIURL reports whether c.API.URL differs from
// Default()'s, the other init_registry trigger condition.
func (c *Config) UsesNonDefaultAPIURL() bool {
	return c.API.URL != Default().API.URL
}

// Validate checks invariants Loader.Load cannot express via struct
// tags alone.
func (c *Config) Validate() error {
	if c.API.URL != "" {
		if _, err := url.Parse(c.API.URL); err != nil {
			return fmt.Errorf("stardag/config: invalid api.url %q: %w", c.API.URL, err)
		}
	}
	if c.API.Timeout < 0 {
		return fmt.Errorf("stardag/config: api.timeout must not be negative, got %s", c.API.Timeout)
	}
	if c.APIKey != "" && c.AccessToken != "" {
		return fmt.Errorf("stardag/config: api_key and access_token are mutually exclusive")
	}
	return nil
}
