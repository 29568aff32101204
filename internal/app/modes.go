package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/helixlabs/helixmarket/internal/domain"
	"github.com/helixlabs/helixmarket/internal/server"
	"github.com/helixlabs/helixmarket/internal/server/handler"
	"github.com/helixlabs/helixmarket/internal/server/ws"
	"github.com/helixlabs/helixmarket/internal/sim"
)

// sweepLockTTL bounds how long a sweep instance may hold its distributed
// lock. Sweeps are idempotent, so an expired lock at worst duplicates work.
const sweepLockTTL = 2 * time.Minute

func (a *App) runServe(ctx context.Context, deps *Dependencies) error {
	g, ctx := errgroup.WithContext(ctx)
	a.startServer(ctx, g, deps)
	a.startSweeps(ctx, g, deps)
	return g.Wait()
}

func (a *App) runSim(ctx context.Context, deps *Dependencies) error {
	g, ctx := errgroup.WithContext(ctx)
	a.startServer(ctx, g, deps)
	a.startSweeps(ctx, g, deps)
	a.startNoise(ctx, g, deps)
	return g.Wait()
}

func (a *App) runFull(ctx context.Context, deps *Dependencies) error {
	g, ctx := errgroup.WithContext(ctx)
	a.startServer(ctx, g, deps)
	a.startSweeps(ctx, g, deps)
	a.startNoise(ctx, g, deps)
	return g.Wait()
}

// startServer launches the WebSocket hub and the HTTP API server, shutting
// the server down gracefully when the context is cancelled.
func (a *App) startServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if !a.cfg.Server.Enabled {
		a.logger.Info("http server disabled")
		return
	}

	hub := ws.NewHub(deps.Bus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: time.Now(),
	})
	g.Go(func() error { return hub.Run(ctx) })

	srv := server.NewServer(
		server.Config{
			Port:          a.cfg.Server.Port,
			CORSOrigins:   a.cfg.Server.CORSOrigins,
			APIKey:        a.cfg.Server.APIKey,
			DepositLimit:  a.cfg.Server.DepositLimit,
			DepositWindow: a.cfg.Server.DepositWindow.Duration,
		},
		server.Handlers{
			Health:    handler.NewHealthHandler(a.logger),
			Status:    handler.NewStatusHandler(a.cfg.Mode, a.cfg.Market.TriggerPolicy),
			Proposals: handler.NewProposalHandler(deps.Engine, a.logger),
			Ledger:    handler.NewLedgerHandler(deps.Ledger, a.logger),
		},
		hub,
		deps.RateLimiter,
		a.logger,
	)

	g.Go(func() error {
		a.logger.Info("http server listening", slog.Int("port", a.cfg.Server.Port))
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

// startSweeps schedules the periodic maintenance jobs. Each job is guarded
// by a distributed lock so that only one instance runs it at a time.
func (a *App) startSweeps(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	c := cron.New()

	if spec := a.cfg.Sweep.FundingCron; spec != "" {
		a.mustSchedule(c, spec, "sweep:funding", deps, func(jobCtx context.Context) {
			a.sweepFunding(jobCtx, deps)
		})
	}
	if spec := a.cfg.Sweep.CloseCron; spec != "" && a.cfg.Market.CloseTimeout.Duration > 0 {
		a.mustSchedule(c, spec, "sweep:close", deps, func(jobCtx context.Context) {
			a.sweepClose(jobCtx, deps)
		})
	}
	if spec := a.cfg.Sweep.ArchiveCron; spec != "" && deps.Archiver != nil {
		a.mustSchedule(c, spec, "sweep:archive", deps, func(jobCtx context.Context) {
			a.sweepArchive(jobCtx, deps)
		})
	}

	if len(c.Entries()) == 0 {
		return
	}
	c.Start()
	g.Go(func() error {
		<-ctx.Done()
		stopCtx := c.Stop()
		<-stopCtx.Done()
		return nil
	})
}

// mustSchedule registers a lock-guarded cron job; a bad schedule expression
// is a configuration error and is logged, not fatal.
func (a *App) mustSchedule(c *cron.Cron, spec, lockKey string, deps *Dependencies, job func(context.Context)) {
	_, err := c.AddFunc(spec, func() {
		jobCtx, cancel := context.WithTimeout(context.Background(), sweepLockTTL)
		defer cancel()

		unlock, err := deps.Locks.Acquire(jobCtx, lockKey, sweepLockTTL)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				a.logger.Debug("sweep already running elsewhere", slog.String("lock", lockKey))
			} else {
				a.logger.Warn("sweep lock failed",
					slog.String("lock", lockKey),
					slog.String("error", err.Error()),
				)
			}
			return
		}
		defer unlock()

		job(jobCtx)
	})
	if err != nil {
		a.logger.Error("invalid cron schedule",
			slog.String("schedule", spec),
			slog.String("lock", lockKey),
			slog.String("error", err.Error()),
		)
	}
}

// sweepFunding runs the permissionless funding-trigger check over every open
// proposal. Releases are logged; errors on individual proposals do not stop
// the sweep.
func (a *App) sweepFunding(ctx context.Context, deps *Dependencies) {
	proposals, err := deps.Engine.List(ctx, domain.ListOpts{})
	if err != nil {
		a.logger.Warn("funding sweep list failed", slog.String("error", err.Error()))
		return
	}

	for _, p := range proposals {
		if p.Resolved() || p.FundingReleased {
			continue
		}
		released, paid, err := deps.Engine.CheckFundingTrigger(ctx, p.ID)
		if err != nil {
			a.logger.Warn("funding check failed",
				slog.Int64("proposal_id", p.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if released {
			a.logger.Info("funding released",
				slog.Int64("proposal_id", p.ID),
				slog.Int64("paid", paid),
			)
		}
	}
}

func (a *App) sweepClose(ctx context.Context, deps *Dependencies) {
	closed, err := deps.Engine.CloseExpired(ctx)
	if err != nil {
		a.logger.Warn("close sweep failed", slog.String("error", err.Error()))
		return
	}
	if closed > 0 {
		a.logger.Info("closed expired proposals", slog.Int("count", closed))
	}
}

func (a *App) sweepArchive(ctx context.Context, deps *Dependencies) {
	n, err := deps.Archiver.ArchiveClosed(ctx)
	if err != nil {
		a.logger.Warn("archive sweep failed", slog.String("error", err.Error()))
		return
	}
	if n > 0 {
		a.logger.Info("archived closed proposals", slog.Int64("count", n))
	}
}

// startNoise launches the background noise trader.
func (a *App) startNoise(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	noise := sim.New(sim.Config{
		Interval:    a.cfg.Sim.Interval.Duration,
		MinTrade:    a.cfg.Sim.MinTrade,
		MaxTrade:    a.cfg.Sim.MaxTrade,
		Accounts:    a.cfg.Sim.Accounts,
		SeedBalance: a.cfg.Sim.SeedBalance,
	}, deps.Engine, deps.Ledger, a.logger)
	g.Go(func() error { return noise.Run(ctx) })
}
