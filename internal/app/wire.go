package app

import (
	"context"
	"fmt"
	"log/slog"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	s3blob "github.com/helixlabs/helixmarket/internal/blob/s3"
	"github.com/helixlabs/helixmarket/internal/cache/local"
	redisc "github.com/helixlabs/helixmarket/internal/cache/redis"
	"github.com/helixlabs/helixmarket/internal/config"
	"github.com/helixlabs/helixmarket/internal/crypto"
	"github.com/helixlabs/helixmarket/internal/domain"
	"github.com/helixlabs/helixmarket/internal/engine"
	"github.com/helixlabs/helixmarket/internal/ledger"
	"github.com/helixlabs/helixmarket/internal/notify"
	"github.com/helixlabs/helixmarket/internal/oracle"
	"github.com/helixlabs/helixmarket/internal/store/memory"
	"github.com/helixlabs/helixmarket/internal/store/postgres"
)

// Dependencies holds every constructed component, wired per mode. Serve and
// full run on Postgres and Redis; sim swaps in memory stores and in-process
// caches so the whole engine runs from a single binary with no services.
type Dependencies struct {
	Proposals domain.ProposalStore
	Ledgers   domain.LedgerStore
	Events    domain.EventStore

	Prices      domain.PriceCache
	Locks       domain.LockManager
	Bus         domain.SignalBus
	RateLimiter domain.RateLimiter

	Archiver *s3blob.Archiver
	Notifier *notify.Notifier

	Oracle  domain.OracleGateway
	Trigger domain.TriggerPolicy
	Ledger  *ledger.Ledger
	Engine  *engine.Registry

	closers []func()
}

// Close releases all held resources in reverse construction order.
func (d *Dependencies) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

func needsPostgres(mode string) bool { return mode == "serve" || mode == "full" }
func needsRedis(mode string) bool    { return mode == "serve" || mode == "full" }
func needsS3(mode string) bool       { return mode == "full" }

// Wire constructs the dependency graph for the configured mode. It fails fast
// on any unreachable backing service; partial construction is released before
// returning the error.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{}
	ok := false
	defer func() {
		if !ok {
			deps.Close()
		}
	}()

	if needsPostgres(cfg.Mode) {
		pg, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			return nil, fmt.Errorf("wire postgres: %w", err)
		}
		deps.closers = append(deps.closers, pg.Close)
		if cfg.Postgres.RunMigrations {
			if err := pg.RunMigrations(ctx); err != nil {
				return nil, fmt.Errorf("wire postgres: %w", err)
			}
		}
		deps.Proposals = postgres.NewProposalStore(pg.Pool())
		deps.Ledgers = postgres.NewLedgerStore(pg.Pool())
		deps.Events = postgres.NewEventStore(pg.Pool())
		logger.Info("postgres connected", slog.String("database", cfg.Postgres.Database))
	} else {
		deps.Proposals = memory.NewProposalStore()
		deps.Ledgers = memory.NewLedgerStore()
		deps.Events = memory.NewEventStore()
		logger.Info("using in-memory stores")
	}

	if needsRedis(cfg.Mode) {
		rc, err := redisc.New(ctx, redisc.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			return nil, fmt.Errorf("wire redis: %w", err)
		}
		deps.closers = append(deps.closers, func() { _ = rc.Close() })
		deps.Prices = redisc.NewPriceCache(rc)
		deps.Locks = redisc.NewLockManager(rc)
		deps.Bus = redisc.NewSignalBus(rc)
		deps.RateLimiter = redisc.NewRateLimiter(rc)
		logger.Info("redis connected", slog.String("addr", cfg.Redis.Addr))
	} else {
		deps.Prices = local.NewPriceCache()
		deps.Locks = local.NewLockManager()
		deps.Bus = local.NewSignalBus()
		logger.Info("using in-process caches")
	}

	if needsS3(cfg.Mode) {
		blob, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return nil, fmt.Errorf("wire s3: %w", err)
		}
		deps.closers = append(deps.closers, func() { _ = blob.Close() })
		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(blob), deps.Proposals, deps.Events)
		logger.Info("s3 archive enabled", slog.String("bucket", cfg.S3.Bucket))
	}

	deps.Notifier = buildNotifier(cfg.Notify, logger)

	gw, err := buildOracle(cfg.Oracle)
	if err != nil {
		return nil, fmt.Errorf("wire oracle: %w", err)
	}
	deps.Oracle = gw

	trigger, err := engine.NewTriggerPolicy(engine.TriggerConfig{
		Policy:        cfg.Market.TriggerPolicy,
		Window:        cfg.Market.TriggerWindow.Duration,
		Threshold:     cfg.Market.TriggerThreshold,
		RequireTarget: cfg.Market.TriggerRequireTarget,
	})
	if err != nil {
		return nil, fmt.Errorf("wire trigger: %w", err)
	}
	deps.Trigger = trigger

	sink := buildSink(deps, logger)

	deps.Ledger = ledger.New(sink, logger, ledger.WithStore(deps.Ledgers))
	deps.Engine = engine.NewRegistry(
		engine.Config{
			Rate: domain.ConversionRate{
				Num:     cfg.Market.ConversionRateNum,
				Den:     cfg.Market.ConversionRateDen,
				Version: cfg.Market.ConversionRateVersion,
			},
			CloseTimeout: cfg.Market.CloseTimeout.Duration,
		},
		deps.Ledger,
		deps.Oracle,
		deps.Trigger,
		sink,
		logger,
		engine.WithRegistryStore(deps.Proposals),
	)
	if err := deps.Engine.Load(ctx); err != nil {
		return nil, fmt.Errorf("wire engine: %w", err)
	}

	ok = true
	return deps, nil
}

// buildSink assembles the post-commit event fan-out: durable log, signal bus
// with price projection, and external notifications.
func buildSink(deps *Dependencies, logger *slog.Logger) domain.EventSink {
	sinks := domain.MultiSink{
		NewStoreSink(deps.Events, logger),
		NewBusSink(deps.Bus, deps.Prices, logger),
	}
	if deps.Notifier != nil {
		sinks = append(sinks, notify.NewSink(deps.Notifier))
	}
	return sinks
}

// buildOracle selects the attestation gateway. A missing signer address for
// the flare verifier is derived from a local key, which lets sim setups run
// a self-signed oracle end to end.
func buildOracle(cfg config.OracleConfig) (domain.OracleGateway, error) {
	switch cfg.Verifier {
	case "static":
		return oracle.StaticGateway{}, nil
	case "flare":
		addr := cfg.SignerAddress
		if addr == "" {
			keyHex, err := crypto.LoadKey(crypto.KeyConfig{
				RawPrivateKey:    cfg.SignerKey,
				EncryptedKeyPath: cfg.EncryptedKeyPath,
				KeyPassword:      cfg.KeyPassword,
			})
			if err != nil {
				return nil, err
			}
			key, err := ethcrypto.HexToECDSA(keyHex)
			if err != nil {
				return nil, fmt.Errorf("parse signer key: %w", err)
			}
			addr = oracle.NewSigner(key).Address()
		}
		return oracle.NewFlareVerifier(addr)
	default:
		return nil, fmt.Errorf("unknown oracle verifier %q", cfg.Verifier)
	}
}

func buildNotifier(cfg config.NotifyConfig, logger *slog.Logger) *notify.Notifier {
	var senders []notify.Sender
	if cfg.TelegramToken != "" && cfg.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.TelegramToken, cfg.TelegramChatID))
	}
	if cfg.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.DiscordWebhookURL))
	}
	if len(senders) == 0 {
		return nil
	}
	return notify.NewNotifier(senders, cfg.Events, logger)
}
