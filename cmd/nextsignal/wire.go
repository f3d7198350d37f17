package main

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/newthinker/nextsignal/internal/config"
	"github.com/newthinker/nextsignal/internal/core"
	"github.com/newthinker/nextsignal/internal/logger"
	"github.com/newthinker/nextsignal/internal/metrics"
	"github.com/newthinker/nextsignal/internal/notifier"
	"github.com/newthinker/nextsignal/internal/notifier/telegram"
	"github.com/newthinker/nextsignal/internal/notifier/webhook"
	"github.com/newthinker/nextsignal/internal/router"
	"github.com/newthinker/nextsignal/internal/session"
	"github.com/newthinker/nextsignal/internal/storage/archive"
	"github.com/newthinker/nextsignal/internal/storage/identity"
	"github.com/newthinker/nextsignal/internal/supabase"
	"go.uber.org/zap"
)

// loadConfig reads --config, or falls back to defaults, and validates the result.
func loadConfig() (*config.Config, bool, error) {
	cfg := config.Defaults()
	fromFile := cfgFile != ""
	if fromFile {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return nil, false, fmt.Errorf("loading config: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, false, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, fromFile, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	opts := logger.Options{
		Development: debug,
		Level:       cfg.Log.Level,
		File:        cfg.Log.File,
	}
	if debug {
		opts.Level = "debug"
	}
	return logger.New(opts)
}

func buildNotifiers(cfg *config.Config) (*notifier.Registry, error) {
	reg := notifier.NewRegistry()

	names := make([]string, 0, len(cfg.Notifiers))
	for name := range cfg.Notifiers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		n := cfg.Notifiers[name]
		if !n.Enabled {
			continue
		}

		var impl notifier.Notifier
		switch name {
		case "telegram":
			impl = telegram.New(n.BotToken, n.ChatID)
		case "webhook":
			impl = webhook.New(n.URL, n.Headers)
		default:
			return nil, fmt.Errorf("unknown notifier %q", name)
		}
		if err := reg.Register(impl); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// buildRouter puts the enabled notifiers behind the configured delivery filters.
func buildRouter(cfg *config.Config, reg *metrics.Registry, log *zap.Logger) (*router.Router, error) {
	notifiers, err := buildNotifiers(cfg)
	if err != nil {
		return nil, err
	}

	rc := router.DefaultConfig()
	rc.Cooldown = cfg.Routing.Cooldown
	if len(cfg.Routing.Markets) > 0 {
		rc.EnabledMarkets = rc.EnabledMarkets[:0]
		for _, m := range cfg.Routing.Markets {
			market, err := core.ParseMarket(m)
			if err != nil {
				return nil, err
			}
			rc.EnabledMarkets = append(rc.EnabledMarkets, market)
		}
	}
	if len(cfg.Routing.Actions) > 0 {
		rc.EnabledActions = rc.EnabledActions[:0]
		for _, a := range cfg.Routing.Actions {
			rc.EnabledActions = append(rc.EnabledActions, core.Action(strings.ToUpper(a)))
		}
	}

	r := router.New(rc, notifiers, log)
	r.SetMetrics(reg)
	return r, nil
}

// buildIdentityStore returns the configured display id store and its cleanup.
// buildArchive returns nil when no archive is configured.
func buildArchive(cfg *config.Config) (*archive.Snapshots, error) {
	store, err := archive.New(cfg.Storage.Archive)
	if err != nil || store == nil {
		return nil, err
	}
	return archive.NewSnapshots(store), nil
}

func buildIdentityStore(ctx context.Context, cfg *config.Config, sb *supabase.Client) (identity.Store, func(), error) {
	noop := func() {}

	switch cfg.Storage.Identity.Backend {
	case "", "memory":
		return identity.NewMemoryStore(), noop, nil
	case "postgres":
		pg, err := identity.NewPostgresStore(ctx, cfg.Storage.Identity.DSN, cfg.Storage.Identity.Table)
		if err != nil {
			return nil, noop, err
		}
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, noop, err
		}
		return pg, pg.Close, nil
	case "supabase":
		return sb.Identities(cfg.Storage.Identity.Table), noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown identity backend %q", cfg.Storage.Identity.Backend)
	}
}

// buildSessionStore returns the configured session store and its cleanup.
func buildSessionStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (session.Store, func(), error) {
	switch cfg.Storage.Sessions.Backend {
	case "", "memory":
		return session.NewMemoryStore(), func() {}, nil
	case "redis":
		rs, err := session.NewRedisStore(ctx, cfg.Storage.Sessions.Redis)
		if err != nil {
			return nil, func() {}, err
		}
		return rs, func() {
			if err := rs.Close(); err != nil {
				log.Warn("closing redis", zap.Error(err))
			}
		}, nil
	default:
		return nil, func() {}, fmt.Errorf("unknown session backend %q", cfg.Storage.Sessions.Backend)
	}
}
