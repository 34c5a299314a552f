package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/adrg/xdg"
	"github.com/go-viper/mapstructure/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// envPrefix namespaces every environment variable this package binds,
// mirroring the teacher's DAGU_-prefixed loader.
const envPrefix = "STARDAG"

// defaultConfigRelPath is where Loader looks for a config file under
// xdg.ConfigHome when none is given explicitly, mirroring the
// teacher's "$HOME/.config/dagu/config.yaml" convention.
const defaultConfigRelPath = "stardag/config.yaml"

// Loader builds a Config by layering, highest precedence first:
// environment variables, an optional YAML file, then Default()'s
// zero-config values.
type Loader struct {
	v          *viper.Viper
	configFile string
	envFile    string
	logger     *slog.Logger
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithConfigFile pins the YAML config path instead of the XDG default.
func WithConfigFile(path string) LoaderOption {
	return func(l *Loader) { l.configFile = path }
}

// WithEnvFile loads additional env vars from a .env-style file via
// godotenv before viper reads the environment, useful for local dev.
func WithEnvFile(path string) LoaderOption {
	return func(l *Loader) { l.envFile = path }
}

// WithLogger attaches a logger for non-fatal load-time diagnostics
// (an expiring access token).
func WithLogger(logger *slog.Logger) LoaderOption {
	return func(l *Loader) { l.logger = logger }
}

// NewLoader builds a Loader around v (pass viper.New() in tests for
// isolation from global state; nil uses viper's global instance).
func NewLoader(v *viper.Viper, opts ...LoaderOption) *Loader {
	if v == nil {
		v = viper.GetViper()
	}
	l := &Loader{v: v, logger: slog.Default()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load resolves the final Config: Default() merged under whatever the
// config file and environment supply, validated before return.
func (l *Loader) Load() (*Config, error) {
	if l.envFile != "" {
		if err := godotenv.Load(l.envFile); err != nil && !os.IsNotExist(err) {
			return nil, err
		}
	}

	l.v.SetEnvPrefix(envPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()
	// AutomaticEnv only answers for keys viper already knows, so bind
	// each scalar key explicitly for env-only settings to reach Unmarshal.
	for _, key := range []string{"api.url", "api.timeout", "api_key", "access_token", "context.workspace_id"} {
		if err := l.v.BindEnv(key); err != nil {
			return nil, err
		}
	}

	configPath := l.configFile
	if configPath == "" {
		if found, err := xdg.SearchConfigFile(defaultConfigRelPath); err == nil {
			configPath = found
		}
	}
	if configPath != "" {
		l.v.SetConfigFile(configPath)
		if err := l.v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !os.IsNotExist(err) {
				return nil, err
			}
		}
	}

	fromEnvAndFile := Default()
	decodeHook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
	)
	if err := l.v.Unmarshal(fromEnvAndFile, viper.DecodeHook(decodeHook)); err != nil {
		return nil, err
	}

	merged := Default()
	if err := mergo.Merge(merged, fromEnvAndFile, mergo.WithOverride); err != nil {
		return nil, err
	}

	if err := merged.Validate(); err != nil {
		return nil, err
	}

	l.warnIfTokenExpiringSoon(merged)
	return merged, nil
}

// warnIfTokenExpiringSoon parses (never verifies - that's the registry
// service's job) the access token's exp claim and logs a warning if it
// expires within the hour. Token refresh stays out of scope (spec.md §4.4).
func (l *Loader) warnIfTokenExpiringSoon(cfg *Config) {
	if cfg.AccessToken == "" {
		return
	}
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(cfg.AccessToken, claims); err != nil {
		return
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return
	}
	if time.Until(exp.Time) < time.Hour {
		l.logger.Warn("access_token expires soon", "expires_at", exp.Time)
	}
}

// ConfigDir returns the directory Loader.Load searches for a
// config file, for CLI help text / diagnostics.
func ConfigDir() string {
	return filepath.Join(xdg.ConfigHome, "stardag")
}
