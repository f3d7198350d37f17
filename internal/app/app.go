package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/newthinker/nextsignal/internal/config"
	"github.com/newthinker/nextsignal/internal/core"
	"github.com/newthinker/nextsignal/internal/metrics"
	"github.com/newthinker/nextsignal/internal/source"
	"go.uber.org/zap"
)

// Loader produces a fresh snapshot; *source.Repository is the production one.
type Loader interface {
	Load(ctx context.Context) source.Result
}

// App holds the current signal snapshot and keeps it fresh.
type App struct {
	cfg     *config.Config
	logger  *zap.Logger
	loader  Loader
	metrics *metrics.Registry

	interval time.Duration

	mu       sync.RWMutex
	snapshot core.SignalSet
	loadedAt time.Time
	lastErr  error
	loads    int
	failures int
	running  bool
	cancel   context.CancelFunc
}

// New creates a new App instance
func New(cfg *config.Config, loader Loader, logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &App{
		cfg:      cfg,
		logger:   logger,
		loader:   loader,
		interval: cfg.App.RefreshInterval,
		snapshot: core.EmptySignalSet(),
	}
}

// SetMetrics reports snapshot sizes to reg.
func (a *App) SetMetrics(reg *metrics.Registry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.metrics = reg
}

// SetInterval sets the refresh interval; zero disables periodic refresh.
func (a *App) SetInterval(d time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.interval = d
}

// Snapshot returns a copy of the current signal set.
func (a *App) Snapshot() core.SignalSet {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.snapshot.Clone()
}

// Reload fetches a fresh set and replaces the snapshot with it.
// A failed fetch replaces it with the empty set, unless the failure comes from
// ctx being done: an abandoned reload leaves the current snapshot in place.
func (a *App) Reload(ctx context.Context) source.Result {
	res := a.loader.Load(ctx)

	if res.Err != nil && ctx.Err() != nil {
		a.logger.Info("reload abandoned, keeping snapshot", zap.Error(ctx.Err()))
		return res
	}

	a.mu.Lock()
	a.snapshot = res.Set.Normalize()
	a.loadedAt = res.FetchedAt
	a.lastErr = res.Err
	a.loads++
	if res.Err != nil {
		a.failures++
	}
	reg := a.metrics
	a.mu.Unlock()

	if reg != nil {
		reg.SetSignalsLoaded(len(res.Set.Live), len(res.Set.OTC))
	}

	if res.Err != nil {
		a.logger.Warn("snapshot reloaded empty", zap.Error(res.Err))
	} else {
		a.logger.Info("snapshot reloaded",
			zap.Int("live", len(res.Set.Live)),
			zap.Int("otc", len(res.Set.OTC)),
		)
	}
	return res
}

// Start loads the first snapshot and refreshes it every interval until ctx is done.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("app already running")
	}
	a.running = true

	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	interval := a.interval
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		a.running = false
		a.mu.Unlock()
	}()

	a.logger.Info("nextsignal starting", zap.Duration("refresh_interval", interval))

	// Initial load
	a.Reload(ctx)

	if interval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("nextsignal shutting down")
			return ctx.Err()
		case <-ticker.C:
			a.Reload(ctx)
		}
	}
}

// Stop stops the refresh loop
func (a *App) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		a.cancel()
	}
}

// GetStats returns application statistics
func (a *App) GetStats() map[string]any {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := map[string]any{
		"running":  a.running,
		"live":     len(a.snapshot.Live),
		"otc":      len(a.snapshot.OTC),
		"loads":    a.loads,
		"failures": a.failures,
	}
	if !a.loadedAt.IsZero() {
		stats["loaded_at"] = a.loadedAt.UTC().Format(time.RFC3339)
	}
	if a.lastErr != nil {
		stats["last_error"] = a.lastErr.Error()
	}
	return stats
}
