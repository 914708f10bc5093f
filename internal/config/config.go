// Package config loads and stores leadbot settings in the XDG config dir,
// with environment overrides on top.
// Only non-secret settings are written to disk; secrets come from the
// environment or the OS keychain.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"

	"leadbot/cli/internal/xdg"
)

// Config holds non-sensitive settings.
type Config struct {
	LogLevel string       `json:"log_level" env:"LEADBOT_LOG_LEVEL"`
	Oracle   OracleConfig `json:"oracle"`
	CRM      CRMConfig    `json:"crm"`
	Store    StoreConfig  `json:"store"`
	Server   ServerConfig `json:"server"`
}

// OracleConfig selects the language model.
type OracleConfig struct {
	Provider string   `json:"provider" env:"LEADBOT_ORACLE_PROVIDER"`
	Model    string   `json:"model,omitempty" env:"LEADBOT_ORACLE_MODEL"`
	BaseURL  string   `json:"base_url,omitempty" env:"LEADBOT_ORACLE_BASE_URL"`
	Timeout  Duration `json:"timeout" env:"LEADBOT_ORACLE_TIMEOUT"`
}

// CRMConfig describes the Salesforce connection.
type CRMConfig struct {
	Environment string   `json:"environment" env:"SALESFORCE_ENVIRONMENT"`
	InstanceURL string   `json:"instance_url,omitempty" env:"LEADBOT_CRM_INSTANCE_URL"`
	APIVersion  string   `json:"api_version" env:"LEADBOT_CRM_API_VERSION"`
	Object      string   `json:"object" env:"LEADBOT_CRM_OBJECT"`
	Timeout     Duration `json:"timeout" env:"LEADBOT_CRM_TIMEOUT"`
	RateLimit   float64  `json:"rate_limit" env:"LEADBOT_CRM_RATE_LIMIT"`
	Burst       int      `json:"burst" env:"LEADBOT_CRM_BURST"`
	ClientID    string   `json:"client_id,omitempty" env:"SALESFORCE_CLIENT_ID"`
	RedirectURI string   `json:"redirect_uri" env:"SALESFORCE_REDIRECT_URI"`
}

// Sandbox reports whether the sandbox login host should be used.
func (c CRMConfig) Sandbox() bool {
	return c.Environment == "sandbox" || c.Environment == "test"
}

// StoreConfig controls the pending-command store.
type StoreConfig struct {
	TTL           Duration `json:"ttl" env:"LEADBOT_COMMAND_TTL"`
	SweepInterval Duration `json:"sweep_interval" env:"LEADBOT_SWEEP_INTERVAL"`
	Retention     Duration `json:"retention,omitempty" env:"LEADBOT_RETENTION"`
}

// ServerConfig controls `leadbot serve`.
type ServerConfig struct {
	Addr string `json:"addr" env:"LEADBOT_ADDR"`

	// Token is secret and only read from the environment.
	Token string `json:"-" env:"LEADBOT_SERVER_TOKEN"`
}

// Secrets are read from the environment only.
type Secrets struct {
	OpenAIKey    string `env:"OPENAI_API_KEY"`
	GeminiKey    string `env:"GEMINI_API_KEY"`
	ClientSecret string `env:"SALESFORCE_CLIENT_SECRET"`
	AuditDSN     string `env:"LEADBOT_AUDIT_DSN"`
}

// Duration is a time.Duration written as "30s" in JSON and the environment.
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", b, err)
	}
	*d = Duration(v)
	return nil
}

// Defaults returns the built-in settings.
func Defaults() Config {
	return Config{
		LogLevel: "info",
		Oracle: OracleConfig{
			Provider: "openai",
			Timeout:  Duration(30 * time.Second),
		},
		CRM: CRMConfig{
			Environment: "production",
			APIVersion:  "v59.0",
			Object:      "Lead",
			Timeout:     Duration(15 * time.Second),
			RateLimit:   5,
			Burst:       10,
			RedirectURI: "http://localhost:3000/oauth/callback",
		},
		Store: StoreConfig{
			TTL:           Duration(5 * time.Minute),
			SweepInterval: Duration(time.Minute),
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
	}
}

// Path returns the path to the config file.
func Path() (string, error) {
	dir, err := xdg.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads the config file at p, or the default location when p is
// empty, then applies environment overrides. A missing file yields defaults.
func Load(p string) (Config, error) {
	c := Defaults()
	if p == "" {
		var err error
		if p, err = Path(); err != nil {
			return c, err
		}
	}
	data, err := os.ReadFile(p)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return c, err
	default:
		if err := json.Unmarshal(data, &c); err != nil {
			return c, fmt.Errorf("parse %s: %w", p, err)
		}
	}
	if err := ParseEnv(&c); err != nil {
		return c, err
	}
	return c, c.Validate()
}

// LoadSecrets reads secrets from the environment.
func LoadSecrets() (Secrets, error) {
	var s Secrets
	return s, ParseEnv(&s)
}

// ParseEnv overlays environment variables onto target.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate rejects settings that cannot work.
func (c Config) Validate() error {
	switch c.Oracle.Provider {
	case "openai", "gemini":
	default:
		return fmt.Errorf("unsupported oracle provider %q (want openai or gemini)", c.Oracle.Provider)
	}
	switch c.CRM.Environment {
	case "production", "sandbox", "test":
	default:
		return fmt.Errorf("unsupported Salesforce environment %q (want production or sandbox)", c.CRM.Environment)
	}
	if c.Store.TTL <= 0 {
		return errors.New("store ttl must be positive")
	}
	if c.CRM.Object == "" {
		return errors.New("crm object must not be empty")
	}
	return nil
}

// Save writes c to p (or the default location) with 0600 permissions.
func Save(p string, c Config) error {
	if p == "" {
		var err error
		if p, err = Path(); err != nil {
			return err
		}
	}
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(p, b, 0o600)
}
