// Package config loads agentportal settings from a YAML file and
// AGENTPORTAL_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "AGENTPORTAL_"

// Storage backends.
const (
	BackendBBolt  = "bbolt"
	BackendMemory = "memory"
)

// Config is the full runtime configuration.
type Config struct {
	Provider ProviderConfig `yaml:"provider"`
	CRM      CRMConfig      `yaml:"crm"`
	Session  SessionConfig  `yaml:"session"`
	Storage  StorageConfig  `yaml:"storage"`
	Logging  LoggingConfig  `yaml:"logging"`
	API      APIConfig      `yaml:"api"`
}

// ProviderConfig describes the OAuth client registration. Login only uses
// TokenURL, the client credentials and Timeout. AuthorizeURL, RevokeURL,
// RedirectURL and Scopes record the rest of the connected app registration
// and are only reported by `agentportal config`.
type ProviderConfig struct {
	TokenURL     string        `yaml:"token_url"`
	AuthorizeURL string        `yaml:"authorize_url"`
	RevokeURL    string        `yaml:"revoke_url"`
	ClientID     string        `yaml:"client_id"`
	ClientSecret string        `yaml:"client_secret"`
	RedirectURL  string        `yaml:"redirect_url"`
	Scopes       []string      `yaml:"scopes"`
	Timeout      time.Duration `yaml:"timeout"`
}

// CRMConfig points at the REST API.
type CRMConfig struct {
	// InstanceURL overrides the token's instance_url when set.
	InstanceURL string `yaml:"instance_url"`
	APIVersion  string `yaml:"api_version"`
}

type SessionConfig struct {
	TokenTTL time.Duration `yaml:"token_ttl"`
}

// StorageConfig selects where the two device stores live.
type StorageConfig struct {
	Backend          string `yaml:"backend"`
	DataDir          string `yaml:"data_dir"`
	DevicePassphrase string `yaml:"device_passphrase"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type APIConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Provider: ProviderConfig{
			TokenURL:     "https://login.salesforce.com/services/oauth2/token",
			AuthorizeURL: "https://login.salesforce.com/services/oauth2/authorize",
			RevokeURL:    "https://login.salesforce.com/services/oauth2/revoke",
			RedirectURL:  "com.myapp://oauthredirect",
			Scopes:       []string{"api", "refresh_token", "openid", "profile"},
			Timeout:      30 * time.Second,
		},
		CRM: CRMConfig{
			APIVersion: "57.0",
		},
		Session: SessionConfig{
			TokenTTL: time.Hour,
		},
		Storage: StorageConfig{
			Backend: BackendBBolt,
			DataDir: "./data",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		API: APIConfig{
			Addr: "127.0.0.1:8787",
		},
	}
}

// Redacted is the placeholder Redact puts in place of secrets.
const Redacted = "REDACTED"

// Redact returns a copy of c with the client secret and device passphrase
// masked, for display.
func (c Config) Redact() Config {
	if c.Provider.ClientSecret != "" {
		c.Provider.ClientSecret = Redacted
	}
	if c.Storage.DevicePassphrase != "" {
		c.Storage.DevicePassphrase = Redacted
	}
	c.Provider.Scopes = append([]string(nil), c.Provider.Scopes...)
	return c
}

// Load reads path (if non-empty) over the defaults, applies environment
// overrides, then each override func (command-line flags), and validates
// the result.
func Load(path string, overrides ...func(*Config)) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	for _, o := range overrides {
		o(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Provider.TokenURL, "TOKEN_URL")
	setString(&c.Provider.ClientID, "CLIENT_ID")
	setString(&c.Provider.ClientSecret, "CLIENT_SECRET")
	setString(&c.Provider.RedirectURL, "REDIRECT_URL")
	if v := getEnv("SCOPES"); v != "" {
		c.Provider.Scopes = strings.Fields(strings.ReplaceAll(v, ",", " "))
	}
	setString(&c.CRM.InstanceURL, "INSTANCE_URL")
	setString(&c.CRM.APIVersion, "API_VERSION")
	setString(&c.Storage.Backend, "STORAGE")
	setString(&c.Storage.DataDir, "DATA_DIR")
	setString(&c.Storage.DevicePassphrase, "DEVICE_PASSPHRASE")
	setString(&c.Logging.Level, "LOG_LEVEL")
	setString(&c.Logging.Format, "LOG_FORMAT")
	setString(&c.API.Addr, "API_ADDR")

	if err := setDuration(&c.Provider.Timeout, "PROVIDER_TIMEOUT"); err != nil {
		return err
	}
	return setDuration(&c.Session.TokenTTL, "TOKEN_TTL")
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	if _, err := url.ParseRequestURI(c.Provider.TokenURL); err != nil {
		errs = append(errs, fmt.Errorf("provider.token_url: %w", err))
	}
	if c.CRM.InstanceURL != "" {
		if _, err := url.ParseRequestURI(c.CRM.InstanceURL); err != nil {
			errs = append(errs, fmt.Errorf("crm.instance_url: %w", err))
		}
	}
	if c.Provider.Timeout <= 0 {
		errs = append(errs, errors.New("provider.timeout must be > 0"))
	}
	if c.Session.TokenTTL <= 0 {
		errs = append(errs, errors.New("session.token_ttl must be > 0"))
	}
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendBBolt:
		if c.Storage.DataDir == "" {
			errs = append(errs, errors.New("storage.data_dir must not be empty"))
		}
		if c.Storage.DevicePassphrase == "" {
			errs = append(errs, fmt.Errorf("storage.device_passphrase (or %sDEVICE_PASSPHRASE) is required for the bbolt backend", EnvPrefix))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.backend %q must be %q or %q", c.Storage.Backend, BackendBBolt, BackendMemory))
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format %q must be text or json", c.Logging.Format))
	}
	if c.API.Addr == "" {
		errs = append(errs, errors.New("api.addr must not be empty"))
	}
	return errors.Join(errs...)
}

func getEnv(name string) string {
	return strings.TrimSpace(os.Getenv(EnvPrefix + name))
}

func setString(dst *string, name string) {
	if v := getEnv(name); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, name string) error {
	v := getEnv(name)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
	}
	*dst = d
	return nil
}
