// Package generator runs the delayed reveal of the next signals for a market.
package generator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/newthinker/nextsignal/internal/api/job"
	"github.com/newthinker/nextsignal/internal/config"
	"github.com/newthinker/nextsignal/internal/core"
	"github.com/newthinker/nextsignal/internal/metrics"
	"github.com/newthinker/nextsignal/internal/notifier"
	"github.com/newthinker/nextsignal/internal/router"
	"github.com/newthinker/nextsignal/internal/selector"
	"go.uber.org/zap"
)

// JobType labels generation jobs in the job store.
const JobType = "generate"

const notifyTimeout = 10 * time.Second

// SnapshotSource provides the current signal set.
type SnapshotSource interface {
	Snapshot() core.SignalSet
}

// Result is what a generation reveals.
type Result struct {
	Market  core.Market   `json:"market"`
	At      string        `json:"at"`
	Signals []core.Signal `json:"signals"`
}

// Generator computes a selection up front and reveals it after a delay.
type Generator struct {
	snapshots SnapshotSource
	jobs      *job.Store
	router    *router.Router
	metrics   *metrics.Registry
	logger    *zap.Logger
	delay     time.Duration
	loc       *time.Location
	now       func() time.Time

	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool
	wg     sync.WaitGroup
}

// Option configures a Generator.
type Option func(*Generator)

// WithRouter sends each reveal through r to its notifiers.
func WithRouter(r *router.Router) Option {
	return func(g *Generator) { g.router = r }
}

// WithMetrics counts generations.
func WithMetrics(r *metrics.Registry) Option {
	return func(g *Generator) { g.metrics = r }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(g *Generator) { g.logger = l }
}

// New creates a generator.
func New(cfg config.GeneratorConfig, snapshots SnapshotSource, jobs *job.Store, opts ...Option) (*Generator, error) {
	if cfg.RevealDelay < 0 {
		return nil, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("negative reveal delay %s", cfg.RevealDelay))
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, core.WrapError(core.ErrConfigInvalid, err)
	}

	g := &Generator{
		snapshots: snapshots,
		jobs:      jobs,
		logger:    zap.NewNop(),
		delay:     cfg.RevealDelay,
		loc:       loc,
		now:       time.Now,
		timers:    make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Now returns the current time of day in the configured timezone.
func (g *Generator) Now() core.Clock {
	return core.ClockOf(g.now().In(g.loc))
}

// Select runs the selection immediately against the current snapshot.
// A nil at means now.
func (g *Generator) Select(market core.Market, at *core.Clock) (Result, error) {
	now := g.Now()
	if at != nil {
		now = *at
	}

	signals, err := selector.ForMarket(g.snapshots.Snapshot(), market, now)
	if err != nil {
		return Result{}, err
	}
	return Result{Market: market, At: now.String(), Signals: signals}, nil
}

// Generate computes the selection and returns a pending job that completes
// after the reveal delay. An owner may only have one pending generation.
func (g *Generator) Generate(owner string, market core.Market, at *core.Clock) (*job.Job, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return nil, core.ErrShuttingDown
	}
	if _, pending := g.jobs.Pending(owner); pending {
		g.record(market, "rejected")
		return nil, core.ErrJobInProgress
	}

	res, err := g.Select(market, at)
	if err != nil {
		g.record(market, "error")
		return nil, err
	}

	j := g.jobs.Create(JobType, owner, g.now().Add(g.delay))
	g.logger.Debug("generation started",
		zap.String("job", j.ID),
		zap.String("market", string(market)),
		zap.String("at", res.At),
	)

	if g.delay == 0 {
		g.revealLocked(j.ID, owner, res)
		return g.jobs.Get(j.ID)
	}

	g.timers[j.ID] = time.AfterFunc(g.delay, func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		if g.closed {
			return
		}
		g.revealLocked(j.ID, owner, res)
	})
	return j, nil
}

// Get returns a job. The result is only present once the job is complete.
func (g *Generator) Get(id string) (*job.Job, error) {
	return g.jobs.Get(id)
}

// revealLocked completes the job and fans out notifications. Caller holds g.mu.
func (g *Generator) revealLocked(id, owner string, res Result) {
	delete(g.timers, id)

	err := g.jobs.Update(id, func(j *job.Job) {
		j.Status = job.StatusComplete
		j.Result = res
	})
	if err != nil {
		// evicted before reveal
		g.logger.Debug("reveal skipped", zap.String("job", id), zap.Error(err))
		return
	}
	g.record(res.Market, "revealed")

	if g.router == nil || g.router.Len() == 0 {
		return
	}

	clock, _ := core.ParseClock(res.At)
	d := notifier.Delivery{
		Owner:      owner,
		Market:     res.Market,
		At:         clock,
		Signals:    res.Signals,
		RevealedAt: g.now(),
	}

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		g.notify(d)
	}()
}

func (g *Generator) notify(d notifier.Delivery) {
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()

	if !g.router.Route(ctx, d) {
		g.record(d.Market, "suppressed")
	}
}

func (g *Generator) record(market core.Market, outcome string) {
	if g.metrics != nil {
		g.metrics.RecordGeneration(string(market), outcome)
	}
}

// Shutdown stops pending reveals, fails their jobs and waits for in-flight notifications.
func (g *Generator) Shutdown() {
	g.mu.Lock()
	g.closed = true
	for id, t := range g.timers {
		t.Stop()
		_ = g.jobs.Update(id, func(j *job.Job) {
			j.Status = job.StatusFailed
			j.Error = core.ErrShuttingDown
		})
		delete(g.timers, id)
	}
	g.mu.Unlock()

	g.wg.Wait()
}
