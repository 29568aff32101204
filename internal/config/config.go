// Package config defines the top-level configuration for the Helix market
// engine and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by HELIX_* environment variables.
type Config struct {
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Server   ServerConfig   `toml:"server"`
	Market   MarketConfig   `toml:"market"`
	Oracle   OracleConfig   `toml:"oracle"`
	Sim      SimConfig      `toml:"sim"`
	Sweep    SweepConfig    `toml:"sweep"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for the proposal
// archive.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	APIKey      string   `toml:"api_key"`
	CORSOrigins []string `toml:"cors_origins"`

	// DepositLimit caps faucet deposits per client IP per DepositWindow.
	// Zero disables the limiter.
	DepositLimit  int      `toml:"deposit_limit"`
	DepositWindow duration `toml:"deposit_window"`
}

// MarketConfig holds the engine's market parameters. The conversion rate is
// deliberately explicit and versioned: pricing combines the native and
// wrapped-token sub-pools through it, and a silent change of rate would
// reprice every open market.
type MarketConfig struct {
	ConversionRateNum     int64 `toml:"conversion_rate_num"`
	ConversionRateDen     int64 `toml:"conversion_rate_den"`
	ConversionRateVersion int   `toml:"conversion_rate_version"`

	// TriggerPolicy is "elapsed" or "twap".
	TriggerPolicy string `toml:"trigger_policy"`
	// TriggerWindow is the minimum observation window before funding can
	// release.
	TriggerWindow duration `toml:"trigger_window"`
	// TriggerThreshold is the YES confidence level the trigger price must
	// reach, in [0,1].
	TriggerThreshold float64 `toml:"trigger_threshold"`
	// TriggerRequireTarget additionally gates funding on the proposal's
	// funding target being reached.
	TriggerRequireTarget bool `toml:"trigger_require_target"`

	// CloseTimeout closes resolved proposals with unclaimed positions after
	// this long. Zero disables the sweep.
	CloseTimeout duration `toml:"close_timeout"`
}

// OracleConfig selects the attestation gateway.
type OracleConfig struct {
	// Verifier is "flare" (production signature/merkle checks) or "static"
	// (shape checks only; tests and simulation).
	Verifier string `toml:"verifier"`
	// SignerAddress is the trusted attestation signer for the flare
	// verifier.
	SignerAddress string `toml:"signer_address"`
	// SignerKey is a hex-encoded local signing key for sim mode.
	SignerKey string `toml:"signer_key"`
	// EncryptedKeyPath points at an encrypted key file produced by the
	// keyfile tooling; used with KeyPassword instead of a raw SignerKey.
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// SimConfig drives the market-noise simulator. The simulator is an ordinary
// engine caller; it has no privileged access to pools.
type SimConfig struct {
	Enabled  bool     `toml:"enabled"`
	Interval duration `toml:"interval"`
	// MinTrade/MaxTrade bound the random trade size in smallest units.
	MinTrade int64 `toml:"min_trade"`
	MaxTrade int64 `toml:"max_trade"`
	// Accounts is the pool of synthetic trader accounts.
	Accounts int `toml:"accounts"`
	// SeedBalance funds each synthetic account per currency at startup.
	SeedBalance int64 `toml:"seed_balance"`
}

// SweepConfig holds the cron schedules for the periodic maintenance jobs.
type SweepConfig struct {
	// FundingCron runs the permissionless funding-trigger check over all
	// open proposals.
	FundingCron string `toml:"funding_cron"`
	// CloseCron runs the resolved-proposal close sweep.
	CloseCron string `toml:"close_cron"`
	// ArchiveCron uploads closed proposals to object storage.
	ArchiveCron string `toml:"archive_cron"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns the built-in configuration, tuned for local development.
func Defaults() Config {
	return Config{
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "helix",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "helix-archive",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Enabled:       true,
			Port:          8000,
			CORSOrigins:   []string{"http://localhost:3000"},
			DepositLimit:  10,
			DepositWindow: duration{time.Minute},
		},
		Market: MarketConfig{
			// 1:1 parity between the native coin and the wrapped token is
			// the demo economy's documented starting rate, version 1.
			ConversionRateNum:     1,
			ConversionRateDen:     1,
			ConversionRateVersion: 1,
			TriggerPolicy:         "elapsed",
			TriggerWindow:         duration{60 * time.Second},
			TriggerThreshold:      0.60,
			CloseTimeout:          duration{72 * time.Hour},
		},
		Oracle: OracleConfig{
			Verifier: "flare",
		},
		Sim: SimConfig{
			Enabled:     false,
			Interval:    duration{time.Second},
			MinTrade:    100,
			MaxTrade:    500,
			Accounts:    8,
			SeedBalance: 1_000_000,
		},
		Sweep: SweepConfig{
			FundingCron: "@every 30s",
			CloseCron:   "@every 10m",
			ArchiveCron: "0 3 * * *",
		},
		Notify: NotifyConfig{
			Events: []string{"funding_released", "resolved"},
		},
		Mode:     "serve",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"serve": true,
	"sim":   true,
	"full":  true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: serve, sim, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Postgres -- required for serve/full; sim runs on memory stores.
	needsPostgres := c.Mode == "serve" || c.Mode == "full"
	if needsPostgres {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
	}

	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.DepositLimit > 0 && c.Server.DepositWindow.Duration <= 0 {
			errs = append(errs, "server: deposit_window must be positive when deposit_limit is set")
		}
	}

	// Market
	if c.Market.ConversionRateNum <= 0 || c.Market.ConversionRateDen <= 0 {
		errs = append(errs, fmt.Sprintf("market: conversion rate must be positive, got %d/%d",
			c.Market.ConversionRateNum, c.Market.ConversionRateDen))
	}
	if c.Market.ConversionRateVersion < 1 {
		errs = append(errs, "market: conversion_rate_version must be >= 1")
	}
	switch c.Market.TriggerPolicy {
	case "elapsed", "twap":
	default:
		errs = append(errs, fmt.Sprintf("market: unknown trigger_policy %q (valid: elapsed, twap)", c.Market.TriggerPolicy))
	}
	if c.Market.TriggerWindow.Duration <= 0 {
		errs = append(errs, "market: trigger_window must be positive")
	}
	if c.Market.TriggerThreshold < 0 || c.Market.TriggerThreshold > 1 {
		errs = append(errs, fmt.Sprintf("market: trigger_threshold must be in [0,1], got %g", c.Market.TriggerThreshold))
	}

	// Oracle
	switch c.Oracle.Verifier {
	case "flare":
		if c.Oracle.SignerAddress == "" && c.Oracle.SignerKey == "" && c.Oracle.EncryptedKeyPath == "" {
			errs = append(errs, "oracle: flare verifier needs signer_address (or a local signer key)")
		}
		if c.Oracle.EncryptedKeyPath != "" && c.Oracle.KeyPassword == "" {
			errs = append(errs, "oracle: key_password is required when encrypted_key_path is set")
		}
	case "static":
	default:
		errs = append(errs, fmt.Sprintf("oracle: unknown verifier %q (valid: flare, static)", c.Oracle.Verifier))
	}

	// Sim
	if c.Sim.Enabled || c.Mode == "sim" || c.Mode == "full" {
		if c.Sim.Interval.Duration <= 0 {
			errs = append(errs, "sim: interval must be positive")
		}
		if c.Sim.MinTrade <= 0 || c.Sim.MaxTrade < c.Sim.MinTrade {
			errs = append(errs, fmt.Sprintf("sim: trade bounds invalid: min %d, max %d", c.Sim.MinTrade, c.Sim.MaxTrade))
		}
		if c.Sim.Accounts < 1 {
			errs = append(errs, "sim: accounts must be >= 1")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}
