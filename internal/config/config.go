// Package config loads server configuration from defaults, an optional YAML
// file and NAJDENO_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"net/netip"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of environment variables read by Load.
const EnvPrefix = "NAJDENO_"

const maxConfigFileSize = 1 << 20

// Config is the full server configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Log      LogConfig      `koanf:"log"`
	Auth     AuthConfig     `koanf:"auth"`
	Realtime RealtimeConfig `koanf:"realtime"`
	Images   ImagesConfig   `koanf:"images"`
}

// ServerConfig holds the listener settings. TrustedProxies lists the
// addresses or CIDR ranges of reverse proxies whose forwarding headers
// identify the client.
type ServerConfig struct {
	Addr            string        `koanf:"addr"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	TrustedProxies  []string      `koanf:"trusted_proxies"`
}

// TrustedProxyPrefixes parses TrustedProxies. A bare address is treated as
// a single-host prefix.
func (s ServerConfig) TrustedProxyPrefixes() ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(s.TrustedProxies))
	for _, entry := range s.TrustedProxies {
		entry = strings.TrimSpace(entry)
		if p, err := netip.ParsePrefix(entry); err == nil {
			prefixes = append(prefixes, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q", entry)
		}
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}

type DatabaseConfig struct {
	Path string `koanf:"path"`
}

// LogConfig controls the optional rotated log file. An empty File logs to
// stdout/stderr only.
type LogConfig struct {
	File       string `koanf:"file"`
	MaxSizeMB  int    `koanf:"max_size_mb"`
	MaxBackups int    `koanf:"max_backups"`
	MaxAgeDays int    `koanf:"max_age_days"`
}

type AuthConfig struct {
	AdminEmail string  `koanf:"admin_email"`
	LoginRate  float64 `koanf:"login_rate"`
	LoginBurst int     `koanf:"login_burst"`
}

// RealtimeConfig enables cross-instance fan-out when NATSURL is set.
type RealtimeConfig struct {
	NATSURL          string `koanf:"nats_url"`
	SubscriberBuffer int    `koanf:"subscriber_buffer"`
}

type ImagesConfig struct {
	MaxBytes   int64 `koanf:"max_bytes"`
	MaxPerItem int   `koanf:"max_per_item"`
}

// Default returns the configuration used when nothing else is set.
func Default() Config {
	return Config{
		Server:   ServerConfig{Addr: ":8080", ShutdownTimeout: 5 * time.Second},
		Database: DatabaseConfig{Path: "najdeno.sqlite3"},
		Log:      LogConfig{MaxSizeMB: 100, MaxBackups: 3, MaxAgeDays: 28},
		Auth:     AuthConfig{AdminEmail: "admin@najdeno.local", LoginRate: 1, LoginBurst: 10},
		Realtime: RealtimeConfig{SubscriberBuffer: 16},
		Images:   ImagesConfig{MaxBytes: 5 << 20, MaxPerItem: 5},
	}
}

// Load builds the configuration. Precedence, highest first: environment
// variables, the YAML file at path (skipped when path is empty), defaults.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		content, err := readConfigFile(path)
		if err != nil {
			return nil, err
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

// envKey maps NAJDENO_SECTION_FIELD_NAME to section.field_name.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, field, ok := strings.Cut(lower, "_")
	if !ok {
		return lower
	}
	return section + "." + field
}

func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat config file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("config file %s is not a regular file", path)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file %s is larger than %d bytes", path, maxConfigFileSize)
	}

	content, err := io.ReadAll(io.LimitReader(f, maxConfigFileSize))
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return content, nil
}

// Validate checks that values are usable.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("server.shutdown_timeout must be positive"))
	}
	if _, err := c.Server.TrustedProxyPrefixes(); err != nil {
		errs = append(errs, fmt.Errorf("server.trusted_proxies: %w", err))
	}
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	if c.Log.File != "" && c.Log.MaxSizeMB <= 0 {
		errs = append(errs, errors.New("log.max_size_mb must be positive"))
	}
	if c.Log.MaxBackups < 0 || c.Log.MaxAgeDays < 0 {
		errs = append(errs, errors.New("log.max_backups and log.max_age_days must not be negative"))
	}
	if c.Auth.AdminEmail == "" {
		errs = append(errs, errors.New("auth.admin_email is required"))
	}
	if c.Auth.LoginRate <= 0 || c.Auth.LoginBurst <= 0 {
		errs = append(errs, errors.New("auth.login_rate and auth.login_burst must be positive"))
	}
	if c.Realtime.SubscriberBuffer <= 0 {
		errs = append(errs, errors.New("realtime.subscriber_buffer must be positive"))
	}
	if c.Images.MaxBytes <= 0 {
		errs = append(errs, errors.New("images.max_bytes must be positive"))
	}
	if c.Images.MaxPerItem <= 0 {
		errs = append(errs, errors.New("images.max_per_item must be positive"))
	}
	return errors.Join(errs...)
}
