package source

import (
	"context"
	"time"

	"github.com/newthinker/nextsignal/internal/core"
	"github.com/newthinker/nextsignal/internal/metrics"
	"github.com/newthinker/nextsignal/internal/storage/archive"
	"go.uber.org/zap"
)

// Result is the outcome of one load. Set is always usable; Err says why it is empty.
type Result struct {
	Set       core.SignalSet
	Err       error
	FetchedAt time.Time
}

// OK reports whether the fetch succeeded.
func (r Result) OK() bool {
	return r.Err == nil
}

// Repository adapts a Fetcher so that failures degrade to an empty set.
type Repository struct {
	fetcher Fetcher
	archive *archive.Snapshots
	metrics *metrics.Registry
	logger  *zap.Logger
	now     func() time.Time
}

// Option configures a Repository.
type Option func(*Repository)

// WithArchive stores every successful snapshot.
func WithArchive(s *archive.Snapshots) Option {
	return func(r *Repository) { r.archive = s }
}

// WithMetrics records fetch counts and durations.
func WithMetrics(m *metrics.Registry) Option {
	return func(r *Repository) { r.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Repository) { r.logger = l }
}

// NewRepository wraps f.
func NewRepository(f Fetcher, opts ...Option) *Repository {
	r := &Repository{
		fetcher: f,
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// FetchSignalSet returns a fresh snapshot, or two empty groups on any failure.
func (r *Repository) FetchSignalSet(ctx context.Context) core.SignalSet {
	return r.Load(ctx).Set
}

// Load fetches a fresh snapshot and reports why it is empty when the fetch failed.
func (r *Repository) Load(ctx context.Context) Result {
	start := r.now()
	set, err := r.fetcher.Fetch(ctx)
	elapsed := r.now().Sub(start)

	if err != nil {
		r.record("error", elapsed)
		r.logger.Warn("signal fetch failed", zap.Error(err), zap.Duration("duration", elapsed))
		return Result{
			Set:       core.EmptySignalSet(),
			Err:       core.WrapError(core.ErrSourceFailed, err),
			FetchedAt: start,
		}
	}

	set = set.Normalize()
	r.record("ok", elapsed)
	r.logger.Debug("signals fetched",
		zap.Int("live", len(set.Live)),
		zap.Int("otc", len(set.OTC)),
		zap.Duration("duration", elapsed),
	)

	r.store(ctx, set, start)

	return Result{Set: set, FetchedAt: start}
}

func (r *Repository) record(status string, d time.Duration) {
	if r.metrics != nil {
		r.metrics.RecordFetch(status, d.Seconds())
	}
}

func (r *Repository) store(ctx context.Context, set core.SignalSet, at time.Time) {
	if r.archive == nil {
		return
	}
	if _, err := r.archive.Save(ctx, set, at); err != nil {
		r.logger.Warn("archiving snapshot", zap.Error(err))
	}
}
