// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

// Package config loads accountd configuration from defaults, a YAML file and
// command-line flags.
package config

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/accountd/accountd/internal/xdg"
)

// Environment fallbacks for secrets that should not live in a file.
const (
	EnvDatabaseURL   = "DATABASE_URL"
	EnvSessionSecret = "ACCOUNTD_SESSION_SECRET"
)

const redacted = "[redacted]"

// Duration is a time.Duration written as a Go duration string ("24h").
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return oops.Code("CONFIG_INVALID").With("value", string(b)).Wrap(err)
	}
	*d = Duration(v)
	return nil
}

// JSONSchema describes Duration as a duration string.
func (Duration) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:        "string",
		Pattern:     `^([0-9]+(\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$`,
		Description: "Go duration, e.g. 30s or 24h",
	}
}

// Config is the complete service configuration.
type Config struct {
	HTTP     HTTPConfig     `koanf:"http" yaml:"http" json:"http,omitempty"`
	Metrics  MetricsConfig  `koanf:"metrics" yaml:"metrics" json:"metrics,omitempty"`
	Log      LogConfig      `koanf:"log" yaml:"log" json:"log,omitempty"`
	Database DatabaseConfig `koanf:"database" yaml:"database" json:"database,omitempty"`
	Store    StoreConfig    `koanf:"store" yaml:"store" json:"store,omitempty"`
	Auth     AuthConfig     `koanf:"auth" yaml:"auth" json:"auth,omitempty"`
	Avatar   AvatarConfig   `koanf:"avatar" yaml:"avatar" json:"avatar,omitempty"`
}

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Addr              string   `koanf:"addr" yaml:"addr" json:"addr,omitempty" jsonschema:"description=listen address for the API"`
	PublicURL         string   `koanf:"public_url" yaml:"public_url" json:"public_url,omitempty" jsonschema:"description=base URL used in reset links; derived from the request when empty"`
	SecureCookies     bool     `koanf:"secure_cookies" yaml:"secure_cookies" json:"secure_cookies,omitempty"`
	ReadHeaderTimeout Duration `koanf:"read_header_timeout" yaml:"read_header_timeout" json:"read_header_timeout,omitempty"`
	TLSCertFile       string   `koanf:"tls_cert_file" yaml:"tls_cert_file" json:"tls_cert_file,omitempty" jsonschema:"description=PEM certificate; serves HTTPS when set with tls_key_file"`
	TLSKeyFile        string   `koanf:"tls_key_file" yaml:"tls_key_file" json:"tls_key_file,omitempty"`
}

// TLSEnabled reports whether the API listener serves HTTPS.
func (h HTTPConfig) TLSEnabled() bool {
	return h.TLSCertFile != "" && h.TLSKeyFile != ""
}

// MetricsConfig configures the observability listener.
type MetricsConfig struct {
	Addr string `koanf:"addr" yaml:"addr" json:"addr,omitempty" jsonschema:"description=metrics and health listen address; empty disables"`
}

// LogConfig configures logging.
type LogConfig struct {
	Format string `koanf:"format" yaml:"format" json:"format,omitempty" jsonschema:"enum=json,enum=text"`
	Level  string `koanf:"level" yaml:"level" json:"level,omitempty" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
}

// DatabaseConfig configures PostgreSQL.
type DatabaseConfig struct {
	URL            string   `koanf:"url" yaml:"url" json:"url,omitempty"`
	MaxConns       int32    `koanf:"max_conns" yaml:"max_conns" json:"max_conns,omitempty" jsonschema:"minimum=1"`
	ConnectTimeout Duration `koanf:"connect_timeout" yaml:"connect_timeout" json:"connect_timeout,omitempty"`
}

// StoreConfig selects the user store.
type StoreConfig struct {
	Driver string `koanf:"driver" yaml:"driver" json:"driver,omitempty" jsonschema:"enum=postgres,enum=memory"`
}

// AuthConfig configures credentials and sessions.
type AuthConfig struct {
	SessionSecret string   `koanf:"session_secret" yaml:"session_secret" json:"session_secret,omitempty" jsonschema:"minLength=32"`
	SessionTTL    Duration `koanf:"session_ttl" yaml:"session_ttl" json:"session_ttl,omitempty"`
	Issuer        string   `koanf:"issuer" yaml:"issuer" json:"issuer,omitempty"`
	Hasher        string   `koanf:"hasher" yaml:"hasher" json:"hasher,omitempty" jsonschema:"enum=bcrypt,enum=argon2id"`
	BcryptCost    int      `koanf:"bcrypt_cost" yaml:"bcrypt_cost" json:"bcrypt_cost,omitempty" jsonschema:"minimum=4,maximum=31"`
}

// AvatarConfig configures photo uploads.
type AvatarConfig struct {
	Enabled  bool     `koanf:"enabled" yaml:"enabled" json:"enabled,omitempty"`
	Driver   string   `koanf:"driver" yaml:"driver" json:"driver,omitempty" jsonschema:"enum=disk,enum=s3"`
	Dir      string   `koanf:"dir" yaml:"dir" json:"dir,omitempty"`
	MaxBytes int64    `koanf:"max_bytes" yaml:"max_bytes" json:"max_bytes,omitempty" jsonschema:"minimum=1"`
	Size     int      `koanf:"size" yaml:"size" json:"size,omitempty" jsonschema:"minimum=1,maximum=4096"`
	Quality  int      `koanf:"quality" yaml:"quality" json:"quality,omitempty" jsonschema:"minimum=1,maximum=100"`
	Accept   []string `koanf:"accept" yaml:"accept" json:"accept,omitempty"`
	S3       S3Config `koanf:"s3" yaml:"s3" json:"s3,omitempty"`
}

// S3Config locates the avatar bucket.
type S3Config struct {
	Bucket    string `koanf:"bucket" yaml:"bucket" json:"bucket,omitempty"`
	Region    string `koanf:"region" yaml:"region" json:"region,omitempty"`
	Endpoint  string `koanf:"endpoint" yaml:"endpoint" json:"endpoint,omitempty"`
	AccessKey string `koanf:"access_key" yaml:"access_key" json:"access_key,omitempty"`
	SecretKey string `koanf:"secret_key" yaml:"secret_key" json:"secret_key,omitempty"`
	PathStyle bool   `koanf:"path_style" yaml:"path_style" json:"path_style,omitempty"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		HTTP: HTTPConfig{
			Addr:              ":3000",
			ReadHeaderTimeout: Duration(10 * time.Second),
		},
		Metrics: MetricsConfig{Addr: "127.0.0.1:9100"},
		Log:     LogConfig{Format: "json", Level: "info"},
		Database: DatabaseConfig{
			MaxConns:       10,
			ConnectTimeout: Duration(30 * time.Second),
		},
		Store: StoreConfig{Driver: "postgres"},
		Auth: AuthConfig{
			SessionTTL: Duration(24 * time.Hour),
			Issuer:     "accountd",
			Hasher:     "bcrypt",
			BcryptCost: 12,
		},
		Avatar: AvatarConfig{
			Enabled:  true,
			Driver:   "disk",
			Dir:      defaultAvatarDir(),
			MaxBytes: 5 << 20,
			Size:     500,
			Quality:  90,
			Accept:   []string{"image/*"},
		},
	}
}

// defaultAvatarDir is the avatars directory under the XDG data dir, or
// ./data/avatars when no home directory is known.
func defaultAvatarDir() string {
	dir, err := xdg.DataDir()
	if err != nil {
		return filepath.Join(".", "data", "avatars")
	}
	return filepath.Join(dir, "avatars")
}

// FlagKeys maps command-line flag names to config keys.
var FlagKeys = map[string]string{
	"addr":           "http.addr",
	"public-url":     "http.public_url",
	"secure-cookies": "http.secure_cookies",
	"metrics-addr":   "metrics.addr",
	"log-format":     "log.format",
	"log-level":      "log.level",
	"database-url":   "database.url",
	"store":          "store.driver",
	"hasher":         "auth.hasher",
	"avatar-dir":     "avatar.dir",
	"tls-cert":       "http.tls_cert_file",
	"tls-key":        "http.tls_key_file",
}

// Load builds the configuration. Later sources win: defaults, then the
// YAML file at path (if any), then flags that were explicitly set, then
// environment fallbacks for secrets still empty.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
		}
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := FlagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, oops.Code("CONFIG_INVALID").With("path", path).Wrap(err)
	}

	if cfg.Database.URL == "" {
		cfg.Database.URL = os.Getenv(EnvDatabaseURL)
	}
	if cfg.Auth.SessionSecret == "" {
		cfg.Auth.SessionSecret = os.Getenv(EnvSessionSecret)
	}
	return &cfg, nil
}

// Validate checks required keys and ranges.
func (c *Config) Validate() error {
	invalid := func(key, format string, args ...any) error {
		return oops.Code("CONFIG_INVALID").With("key", key).Errorf(format, args...)
	}

	if c.HTTP.Addr == "" {
		return invalid("http.addr", "http.addr is required")
	}
	if c.HTTP.PublicURL != "" {
		u, err := url.Parse(c.HTTP.PublicURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return invalid("http.public_url", "http.public_url must be an absolute http(s) URL")
		}
	}
	if (c.HTTP.TLSCertFile == "") != (c.HTTP.TLSKeyFile == "") {
		return invalid("http.tls_cert_file", "http.tls_cert_file and http.tls_key_file must be set together")
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return invalid("log.format", "log.format must be json or text, got %q", c.Log.Format)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return invalid("log.level", "log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}

	switch c.Store.Driver {
	case "postgres":
		if c.Database.URL == "" {
			return invalid("database.url", "database.url (or %s) is required for the postgres store", EnvDatabaseURL)
		}
		if c.Database.ConnectTimeout.Std() <= 0 {
			return invalid("database.connect_timeout", "database.connect_timeout must be positive")
		}
	case "memory":
	default:
		return invalid("store.driver", "store.driver must be postgres or memory, got %q", c.Store.Driver)
	}

	if len(c.Auth.SessionSecret) < 32 {
		return invalid("auth.session_secret", "auth.session_secret (or %s) must be at least 32 bytes", EnvSessionSecret)
	}
	if c.Auth.SessionTTL.Std() <= 0 {
		return invalid("auth.session_ttl", "auth.session_ttl must be positive")
	}
	switch c.Auth.Hasher {
	case "bcrypt":
		if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
			return invalid("auth.bcrypt_cost", "auth.bcrypt_cost must be between 4 and 31, got %d", c.Auth.BcryptCost)
		}
	case "argon2id":
	default:
		return invalid("auth.hasher", "auth.hasher must be bcrypt or argon2id, got %q", c.Auth.Hasher)
	}

	if c.Avatar.Enabled {
		switch c.Avatar.Driver {
		case "disk":
			if c.Avatar.Dir == "" {
				return invalid("avatar.dir", "avatar.dir is required for the disk driver")
			}
		case "s3":
			if c.Avatar.S3.Bucket == "" {
				return invalid("avatar.s3.bucket", "avatar.s3.bucket is required for the s3 driver")
			}
		default:
			return invalid("avatar.driver", "avatar.driver must be disk or s3, got %q", c.Avatar.Driver)
		}
		if c.Avatar.MaxBytes < 1 {
			return invalid("avatar.max_bytes", "avatar.max_bytes must be positive")
		}
		if c.Avatar.Size < 1 || c.Avatar.Size > 4096 {
			return invalid("avatar.size", "avatar.size must be between 1 and 4096")
		}
		if c.Avatar.Quality < 1 || c.Avatar.Quality > 100 {
			return invalid("avatar.quality", "avatar.quality must be between 1 and 100")
		}
	}
	return nil
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	if c.Auth.SessionSecret != "" {
		c.Auth.SessionSecret = redacted
	}
	if c.Avatar.S3.SecretKey != "" {
		c.Avatar.S3.SecretKey = redacted
	}
	c.Avatar.Accept = append([]string(nil), c.Avatar.Accept...)
	c.Database.URL = redactURL(c.Database.URL)
	return c
}

func redactURL(raw string) string {
	if raw == "" {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return redacted
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return strings.Replace(u.String(), "xxxxx", redacted, 1)
}
