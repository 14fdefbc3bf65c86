// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Taskweave Contributors

package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/taskweave/taskweave/internal/auth"
	authpg "github.com/taskweave/taskweave/internal/auth/postgres"
	"github.com/taskweave/taskweave/internal/config"
	"github.com/taskweave/taskweave/internal/flash"
	"github.com/taskweave/taskweave/internal/logging"
	"github.com/taskweave/taskweave/internal/observability"
	"github.com/taskweave/taskweave/internal/session"
	sessionpg "github.com/taskweave/taskweave/internal/session/postgres"
	"github.com/taskweave/taskweave/internal/store"
	"github.com/taskweave/taskweave/internal/web"
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Taskweave HTTP server",
		Long: `Start the HTTP server: registration and login pages, session
management, and the protected task pages.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configFile, cmd.Flags())
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	config.RegisterFlags(cmd.Flags())

	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	logging.SetDefault("taskweave", version, cfg.Log.Format, cfg.Log.Level)
	logger := slog.Default()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := store.Connect(ctx, cfg.Database.URL, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	workers := cfg.Auth.HashWorkers
	if workers <= 0 {
		workers = auth.DefaultHashWorkers
	}
	hashPool, err := auth.NewHashPool(auth.NewArgon2idHasher(), workers)
	if err != nil {
		return err
	}
	defer hashPool.Close()

	authService, err := auth.NewService(authpg.NewUserRepository(pool), hashPool, logger)
	if err != nil {
		return err
	}

	ttl := cfg.Session.TTL
	if ttl <= 0 {
		ttl = session.DefaultTTL
	}
	var sessions session.Store
	var sweep func(context.Context)
	switch cfg.Session.Backend {
	case config.SessionBackendPostgres:
		pgStore := sessionpg.NewStore(pool, ttl)
		sessions = pgStore
		sweep = func(ctx context.Context) {
			removed, sweepErr := pgStore.DeleteExpired(ctx)
			if sweepErr != nil {
				logger.Warn("session sweep failed", "error", sweepErr)
				return
			}
			if removed > 0 {
				logger.Debug("session sweep", "removed", removed)
			}
		}
	default:
		memStore := session.NewMemoryStore(ttl)
		sessions = memStore
		sweep = func(context.Context) {
			if removed := memStore.Purge(); removed > 0 {
				logger.Debug("session sweep", "removed", removed)
			}
		}
	}

	// Expired sessions already read as absent; the sweep just reclaims
	// their storage.
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sweep(ctx)
			}
		}
	}()

	flashKey, err := flash.NewKey([]byte(cfg.Flash.Key))
	if err != nil {
		return err
	}

	var metrics *observability.Metrics
	if cfg.Server.MetricsAddr != "" {
		readiness := func() bool {
			pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return pool.Ping(pingCtx) == nil
		}
		obs := observability.NewServer(cfg.Server.MetricsAddr, readiness)
		obsErrCh, err := obs.Start()
		if err != nil {
			return oops.Code("OBSERVABILITY_START_FAILED").
				With("addr", cfg.Server.MetricsAddr).
				Wrap(err)
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := obs.Stop(stopCtx); err != nil {
				logger.Warn("observability server stop failed", "error", err)
			}
		}()
		go func() {
			if err := <-obsErrCh; err != nil {
				logger.Error("observability server failed", "error", err)
			}
		}()
		metrics = obs.Metrics()
		logger.Info("observability server started", "addr", obs.Addr())
	}

	srv, err := web.NewServer(web.Options{
		Addr:          cfg.Server.Addr,
		SecureCookies: cfg.Server.SecureCookies,
		AuthService:   authService,
		Sessions:      sessions,
		FlashKey:      flashKey,
		Metrics:       metrics,
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	return srv.Run(ctx)
}
