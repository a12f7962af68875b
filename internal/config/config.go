// Package config loads the coordinator's configuration from an optional
// YAML overlay plus environment variable overrides, following the
// teacher's Scheduler.loadConfig shape (YAML unmarshal, then fill zero
// fields with defaults) combined with its internal/secrets.EnvProvider
// environment-variable lookup for anything secret-shaped.
package config

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/waitline/queuecoord/internal/secrets"
)

// Config is every value the composition root needs, per SPEC_FULL.md §2.
type Config struct {
	HTTPAddr string `yaml:"http_addr"`

	PostgresDSN string `yaml:"postgres_dsn"`

	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	BearerSigningSecret string `yaml:"bearer_signing_secret"`

	ExternalMsgEndpoint string `yaml:"external_msg_endpoint"`
	ExternalMsgAPIKey   string `yaml:"external_msg_api_key"`
	ExternalMsgDefaultCC string `yaml:"external_msg_default_cc"`

	WebPushVAPIDPublicKey  string `yaml:"webpush_vapid_public_key"`
	WebPushVAPIDPrivateKey string `yaml:"webpush_vapid_private_key"`
	WebPushSubject         string `yaml:"webpush_subject"`

	NoShowSweepInterval             time.Duration `yaml:"-"`
	PendingVerificationSweepInterval time.Duration `yaml:"-"`

	LogLevel string `yaml:"log_level"`
}

func defaults() Config {
	return Config{
		HTTPAddr:                          ":8080",
		RedisDB:                           0,
		ExternalMsgDefaultCC:              "1",
		NoShowSweepInterval:               5 * time.Minute,
		PendingVerificationSweepInterval:  time.Minute,
		LogLevel:                          "info",
	}
}

// Load reads an optional YAML file at path (skipped if path is empty or
// missing), then applies environment variable overrides, matching the
// teacher's "YAML first, defaults fill the zero fields" order but
// layering env on top so operators never have to template the file.
func Load(path string) (Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return cfg, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)

	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.NoShowSweepInterval == 0 {
		cfg.NoShowSweepInterval = 5 * time.Minute
	}
	if cfg.PendingVerificationSweepInterval == 0 {
		cfg.PendingVerificationSweepInterval = time.Minute
	}

	return cfg, nil
}

// secretsMgr resolves every secret-shaped override below through the
// teacher's primary/fallback secrets.Manager, seeded with the
// environment as its sole provider today; a Vault or cloud-secrets
// provider can register under a different name and join the fallback
// chain without touching the Load/applyEnvOverrides call sites.
var secretsMgr = secrets.NewManager("env", map[string]secrets.SecretProvider{
	"env": secrets.NewEnvProvider(""),
})

func applyEnvOverrides(cfg *Config) {
	setString(&cfg.HTTPAddr, "HTTP_ADDR")
	setString(&cfg.RedisAddr, "REDIS_ADDR")
	setString(&cfg.ExternalMsgEndpoint, "EXTERNAL_MSG_ENDPOINT")
	setString(&cfg.ExternalMsgDefaultCC, "EXTERNAL_MSG_DEFAULT_CC")
	setString(&cfg.WebPushVAPIDPublicKey, "WEBPUSH_VAPID_PUBLIC_KEY")
	setString(&cfg.WebPushSubject, "WEBPUSH_SUBJECT")
	setString(&cfg.LogLevel, "LOG_LEVEL")

	setSecret(&cfg.PostgresDSN, "postgres_dsn")
	setSecret(&cfg.RedisPassword, "redis_password")
	setSecret(&cfg.BearerSigningSecret, "bearer_signing_secret")
	setSecret(&cfg.ExternalMsgAPIKey, "external_msg_api_key")
	setSecret(&cfg.WebPushVAPIDPrivateKey, "webpush_vapid_private_key")
}

func setString(dst *string, envKey string) {
	if v := os.Getenv(envKey); v != "" {
		*dst = v
	}
}

// setSecret overrides dst via secretsMgr, keeping every secret-shaped
// field lookup on the same SecretProvider path instead of a bare
// os.Getenv.
func setSecret(dst *string, key string) {
	secret, err := secretsMgr.GetSecret(context.Background(), key)
	if err != nil {
		return
	}
	*dst = secret.String()
}

// redactor is the teacher's secrets.Redactor, reused here so config
// logging never prints a DSN, bearer secret, or VAPID private key.
var redactor = secrets.NewRedactor()

// Redacted returns a field->value map safe to log (e.g. via zerolog's
// Event.Fields): secret-shaped fields are replaced with a fixed
// placeholder by the shared Redactor's key-sensitivity check.
func (c Config) Redacted() map[string]interface{} {
	raw := map[string]interface{}{
		"http_addr":                 c.HTTPAddr,
		"postgres_dsn":              c.PostgresDSN,
		"redis_addr":                c.RedisAddr,
		"redis_password":            c.RedisPassword,
		"bearer_signing_secret":     c.BearerSigningSecret,
		"external_msg_endpoint":     c.ExternalMsgEndpoint,
		"external_msg_api_key":      c.ExternalMsgAPIKey,
		"webpush_vapid_public_key":  c.WebPushVAPIDPublicKey,
		"webpush_vapid_private_key": c.WebPushVAPIDPrivateKey,
		"log_level":                 c.LogLevel,
	}
	// RedactMap only applies the key-sensitivity check to nested maps, not
	// its own top-level keys, so wrap raw one level deep to exercise it.
	wrapped := redactor.RedactMap(map[string]interface{}{"config": raw})
	redacted, _ := wrapped["config"].(map[string]interface{})
	return redacted
}
