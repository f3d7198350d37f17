package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/newthinker/nextsignal/internal/api"
	"github.com/newthinker/nextsignal/internal/api/job"
	"github.com/newthinker/nextsignal/internal/app"
	"github.com/newthinker/nextsignal/internal/generator"
	"github.com/newthinker/nextsignal/internal/metrics"
	"github.com/newthinker/nextsignal/internal/session"
	"github.com/newthinker/nextsignal/internal/source"
	"github.com/newthinker/nextsignal/internal/storage/identity"
	"github.com/newthinker/nextsignal/internal/supabase"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	shutdownTimeout      = 30 * time.Second
	archivePruneInterval = time.Hour
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the nextsignal server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, fromFile, err := loadConfig()
	if err != nil {
		return err
	}

	log, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer log.Sync()

	if !fromFile {
		log.Warn("no config file specified, using defaults")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var reg *metrics.Registry
	if cfg.Metrics.Enabled {
		reg = metrics.NewRegistry()
	}

	snaps, err := buildArchive(cfg)
	if err != nil {
		return fmt.Errorf("creating archive: %w", err)
	}
	repoOpts := []source.Option{source.WithLogger(log), source.WithMetrics(reg)}
	if snaps != nil {
		repoOpts = append(repoOpts, source.WithArchive(snaps))
		if cfg.Storage.Archive.Retention > 0 {
			snaps.StartPruneRoutine(ctx, cfg.Storage.Archive.Retention, archivePruneInterval, log)
		}
	}
	repo := source.NewRepository(source.New(cfg.Source), repoOpts...)

	application := app.New(cfg, repo, log)
	application.SetMetrics(reg)

	sb := supabase.New(cfg.Supabase)

	identities, closeIdentities, err := buildIdentityStore(ctx, cfg, sb)
	if err != nil {
		return fmt.Errorf("creating identity store: %w", err)
	}
	defer closeIdentities()

	sessionStore, closeSessions, err := buildSessionStore(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("creating session store: %w", err)
	}
	defer closeSessions()

	sessions := session.NewManager(sb, sessionStore,
		session.WithTTL(cfg.Storage.Sessions.TTL),
		session.WithLogger(log),
		session.WithMetrics(reg),
	)
	defer sessions.Teardown()

	deliveries, err := buildRouter(cfg, reg, log)
	if err != nil {
		return fmt.Errorf("creating notifiers: %w", err)
	}
	if cfg.Routing.Cooldown > 0 {
		deliveries.StartCleanupRoutine(ctx, cfg.Routing.Cooldown)
	}

	gen, err := generator.New(cfg.Generator, application,
		job.NewStore(cfg.Generator.MaxJobs, cfg.Generator.JobTTL),
		generator.WithRouter(deliveries),
		generator.WithMetrics(reg),
		generator.WithLogger(log),
	)
	if err != nil {
		return fmt.Errorf("creating generator: %w", err)
	}

	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	server, err := api.NewServer(api.Config{
		Host:        cfg.Server.Host,
		Port:        cfg.Server.Port,
		MetricsPath: metricsPath,
	}, api.Dependencies{
		App:        application,
		Generator:  gen,
		Sessions:   sessions,
		Identities: identity.NewService(identities),
		Archive:    snaps,
		Metrics:    reg,
		UserCount:  cfg.Display.UserCount,
	}, log)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	log.Info("starting nextsignal server",
		zap.String("addr", server.Addr()),
		zap.String("source", cfg.Source.URL),
		zap.Duration("reveal_delay", cfg.Generator.RevealDelay),
		zap.Int("notifiers", deliveries.Len()),
	)

	go func() {
		if err := application.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("refresh loop stopped", zap.Error(err))
		}
	}()

	srvErr := make(chan error, 1)
	go func() {
		srvErr <- server.Start()
	}()

	select {
	case <-ctx.Done():
	case err := <-srvErr:
		if err != nil {
			log.Error("server error", zap.Error(err))
		}
	}

	log.Info("shutting down nextsignal server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err = server.Shutdown(shutdownCtx)
	gen.Shutdown()
	application.Stop()
	return err
}
