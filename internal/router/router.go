package router

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/newthinker/nextsignal/internal/core"
	"github.com/newthinker/nextsignal/internal/metrics"
	"github.com/newthinker/nextsignal/internal/notifier"
	"go.uber.org/zap"
)

// Config holds router configuration
type Config struct {
	Cooldown       time.Duration `mapstructure:"cooldown"`
	EnabledMarkets []core.Market `mapstructure:"markets"`
	EnabledActions []core.Action `mapstructure:"actions"`
}

// DefaultConfig returns default router configuration
func DefaultConfig() Config {
	return Config{
		EnabledMarkets: []core.Market{core.MarketLive, core.MarketOTC},
		EnabledActions: []core.Action{core.ActionCall, core.ActionPut},
	}
}

// Router routes reveals to notifiers with filtering
type Router struct {
	cfg       Config
	registry  *notifier.Registry
	metrics   *metrics.Registry
	logger    *zap.Logger
	cooldowns map[string]time.Time // owner/market -> last delivery
	now       func() time.Time
	mu        sync.RWMutex
}

// New creates a new delivery router
func New(cfg Config, registry *notifier.Registry, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		cfg:       cfg,
		registry:  registry,
		logger:    logger,
		cooldowns: make(map[string]time.Time),
		now:       time.Now,
	}
}

// SetMetrics counts deliveries per notifier.
func (r *Router) SetMetrics(reg *metrics.Registry) {
	r.metrics = reg
}

// Len returns the number of notifiers deliveries go to.
func (r *Router) Len() int {
	if r.registry == nil {
		return 0
	}
	return r.registry.Len()
}

// Route filters d and sends what is left to every notifier.
// It reports whether anything was sent. Notifier failures are logged, not returned.
func (r *Router) Route(ctx context.Context, d notifier.Delivery) bool {
	if r.Len() == 0 {
		return false
	}

	filtered, ok := r.filter(d)
	if !ok {
		r.logger.Debug("delivery filtered out",
			zap.String("owner", d.Owner),
			zap.String("market", string(d.Market)),
			zap.Int("signals", len(d.Signals)),
		)
		return false
	}

	r.mu.Lock()
	r.cooldowns[cooldownKey(d.Owner, d.Market)] = r.now()
	r.mu.Unlock()

	errs := r.registry.NotifyAll(ctx, filtered)
	notifiers := r.registry.GetAll()
	for _, n := range notifiers {
		status := "ok"
		if err, failed := errs[n.Name()]; failed {
			status = "error"
			r.logger.Error("notifier failed",
				zap.String("notifier", n.Name()),
				zap.Error(core.WrapError(core.ErrNotifierFailed, err)),
			)
		}
		if r.metrics != nil {
			r.metrics.RecordNotification(n.Name(), status)
		}
	}

	r.logger.Info("delivery routed",
		zap.String("owner", d.Owner),
		zap.String("market", string(d.Market)),
		zap.Int("signals", len(filtered.Signals)),
		zap.Int("notifiers", len(notifiers)),
		zap.Int("errors", len(errs)),
	)
	return true
}

// filter applies the market allowlist, drops signals with disabled actions
// and enforces the per owner and market cooldown.
func (r *Router) filter(d notifier.Delivery) (notifier.Delivery, bool) {
	if len(r.cfg.EnabledMarkets) > 0 && !slices.Contains(r.cfg.EnabledMarkets, d.Market) {
		return d, false
	}

	if len(r.cfg.EnabledActions) > 0 {
		kept := make([]core.Signal, 0, len(d.Signals))
		for _, s := range d.Signals {
			if slices.Contains(r.cfg.EnabledActions, s.Action) {
				kept = append(kept, s)
			}
		}
		if len(d.Signals) > 0 && len(kept) == 0 {
			return d, false
		}
		d.Signals = kept
	}

	if r.cfg.Cooldown > 0 {
		r.mu.RLock()
		last, exists := r.cooldowns[cooldownKey(d.Owner, d.Market)]
		r.mu.RUnlock()

		if exists && r.now().Sub(last) < r.cfg.Cooldown {
			return d, false
		}
	}

	return d, true
}

func cooldownKey(owner string, market core.Market) string {
	return owner + "/" + string(market)
}

// ClearCooldown removes the cooldown for an owner and market
func (r *Router) ClearCooldown(owner string, market core.Market) {
	r.mu.Lock()
	delete(r.cooldowns, cooldownKey(owner, market))
	r.mu.Unlock()
}

// ClearAllCooldowns removes all cooldowns
func (r *Router) ClearAllCooldowns() {
	r.mu.Lock()
	r.cooldowns = make(map[string]time.Time)
	r.mu.Unlock()
}

// CleanupExpiredCooldowns removes cooldown entries older than 2x the cooldown duration.
func (r *Router) CleanupExpiredCooldowns() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	expiry := r.cfg.Cooldown * 2
	removed := 0

	for key, last := range r.cooldowns {
		if now.Sub(last) > expiry {
			delete(r.cooldowns, key)
			removed++
		}
	}

	return removed
}

// StartCleanupRoutine starts a background goroutine that periodically cleans up expired cooldowns.
func (r *Router) StartCleanupRoutine(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed := r.CleanupExpiredCooldowns()
				if removed > 0 {
					r.logger.Debug("cleaned up expired cooldowns", zap.Int("removed", removed))
				}
			}
		}
	}()
}

// GetStats returns router statistics
func (r *Router) GetStats() map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return map[string]any{
		"cooldowns_active": len(r.cooldowns),
		"cooldown_seconds": r.cfg.Cooldown.Seconds(),
		"enabled_markets":  r.cfg.EnabledMarkets,
		"enabled_actions":  r.cfg.EnabledActions,
		"notifiers":        r.Len(),
	}
}
