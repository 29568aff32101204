package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies HELIX_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known HELIX_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "HELIX_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "HELIX_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "HELIX_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "HELIX_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "HELIX_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "HELIX_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "HELIX_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "HELIX_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "HELIX_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "HELIX_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "HELIX_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "HELIX_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "HELIX_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "HELIX_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "HELIX_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "HELIX_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "HELIX_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "HELIX_S3_REGION")
	setStr(&cfg.S3.Bucket, "HELIX_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "HELIX_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "HELIX_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "HELIX_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "HELIX_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "HELIX_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "HELIX_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "HELIX_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "HELIX_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.DepositLimit, "HELIX_SERVER_DEPOSIT_LIMIT")
	setDuration(&cfg.Server.DepositWindow, "HELIX_SERVER_DEPOSIT_WINDOW")

	// ── Market ──
	setInt64(&cfg.Market.ConversionRateNum, "HELIX_MARKET_CONVERSION_RATE_NUM")
	setInt64(&cfg.Market.ConversionRateDen, "HELIX_MARKET_CONVERSION_RATE_DEN")
	setInt(&cfg.Market.ConversionRateVersion, "HELIX_MARKET_CONVERSION_RATE_VERSION")
	setStr(&cfg.Market.TriggerPolicy, "HELIX_MARKET_TRIGGER_POLICY")
	setDuration(&cfg.Market.TriggerWindow, "HELIX_MARKET_TRIGGER_WINDOW")
	setFloat64(&cfg.Market.TriggerThreshold, "HELIX_MARKET_TRIGGER_THRESHOLD")
	setBool(&cfg.Market.TriggerRequireTarget, "HELIX_MARKET_TRIGGER_REQUIRE_TARGET")
	setDuration(&cfg.Market.CloseTimeout, "HELIX_MARKET_CLOSE_TIMEOUT")

	// ── Oracle ──
	setStr(&cfg.Oracle.Verifier, "HELIX_ORACLE_VERIFIER")
	setStr(&cfg.Oracle.SignerAddress, "HELIX_ORACLE_SIGNER_ADDRESS")
	setStr(&cfg.Oracle.SignerKey, "HELIX_ORACLE_SIGNER_KEY")
	setStr(&cfg.Oracle.EncryptedKeyPath, "HELIX_ORACLE_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Oracle.KeyPassword, "HELIX_ORACLE_KEY_PASSWORD")

	// ── Sim ──
	setBool(&cfg.Sim.Enabled, "HELIX_SIM_ENABLED")
	setDuration(&cfg.Sim.Interval, "HELIX_SIM_INTERVAL")
	setInt64(&cfg.Sim.MinTrade, "HELIX_SIM_MIN_TRADE")
	setInt64(&cfg.Sim.MaxTrade, "HELIX_SIM_MAX_TRADE")
	setInt(&cfg.Sim.Accounts, "HELIX_SIM_ACCOUNTS")
	setInt64(&cfg.Sim.SeedBalance, "HELIX_SIM_SEED_BALANCE")

	// ── Sweep ──
	setStr(&cfg.Sweep.FundingCron, "HELIX_SWEEP_FUNDING_CRON")
	setStr(&cfg.Sweep.CloseCron, "HELIX_SWEEP_CLOSE_CRON")
	setStr(&cfg.Sweep.ArchiveCron, "HELIX_SWEEP_ARCHIVE_CRON")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "HELIX_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "HELIX_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "HELIX_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "HELIX_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "HELIX_MODE")
	setStr(&cfg.LogLevel, "HELIX_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
