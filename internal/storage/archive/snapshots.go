package archive

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/newthinker/nextsignal/internal/core"
	"go.uber.org/zap"
)

// idLayout names a snapshot by its UTC fetch time.
const idLayout = "20060102T150405Z"

// Entry identifies one archived snapshot.
type Entry struct {
	ID        string    `json:"id"`
	FetchedAt time.Time `json:"fetched_at"`
}

func entryAt(t time.Time) Entry {
	t = t.UTC().Truncate(time.Second)
	return Entry{ID: t.Format(idLayout), FetchedAt: t}
}

// parseSnapshotPath is the inverse of SnapshotPath.
func parseSnapshotPath(path string) (time.Time, bool) {
	rest, ok := strings.CutPrefix(path, snapshotRoot+"/")
	if !ok {
		return time.Time{}, false
	}
	rest, ok = strings.CutSuffix(rest, ".json")
	if !ok {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation("2006/01/02/150405", rest, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Snapshots stores signal sets on a Storage backend, one object per fetch.
type Snapshots struct {
	store Storage
}

// NewSnapshots wraps store.
func NewSnapshots(store Storage) *Snapshots {
	return &Snapshots{store: store}
}

// Save archives set under its fetch time. A snapshot already stored for the
// same second is kept.
func (s *Snapshots) Save(ctx context.Context, set core.SignalSet, at time.Time) (Entry, error) {
	e := entryAt(at)
	path := SnapshotPath(e.FetchedAt)

	exists, err := s.store.Exists(ctx, path)
	if err != nil {
		return Entry{}, fmt.Errorf("archive.Save: %w", err)
	}
	if exists {
		return e, nil
	}

	data, err := sonic.Marshal(set.Normalize())
	if err != nil {
		return Entry{}, fmt.Errorf("archive.Save: encoding: %w", err)
	}
	if err := s.store.Write(ctx, path, data); err != nil {
		return Entry{}, fmt.Errorf("archive.Save: %w", err)
	}
	return e, nil
}

// Day lists the snapshots fetched on day (UTC), oldest first.
func (s *Snapshots) Day(ctx context.Context, day time.Time) ([]Entry, error) {
	paths, err := s.store.List(ctx, DayPrefix(day))
	if err != nil {
		return nil, fmt.Errorf("archive.Day: %w", err)
	}

	entries := make([]Entry, 0, len(paths))
	for _, p := range paths {
		if t, ok := parseSnapshotPath(p); ok {
			entries = append(entries, entryAt(t))
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].FetchedAt.Before(entries[j].FetchedAt)
	})
	return entries, nil
}

// Load reads the snapshot with the given id.
func (s *Snapshots) Load(ctx context.Context, id string) (core.SignalSet, Entry, error) {
	t, err := time.ParseInLocation(idLayout, id, time.UTC)
	if err != nil {
		return core.SignalSet{}, Entry{}, core.WrapError(core.ErrValidation,
			fmt.Errorf("snapshot id %q: want %s", id, idLayout))
	}
	e := entryAt(t)

	data, err := s.store.Read(ctx, SnapshotPath(e.FetchedAt))
	if errors.Is(err, fs.ErrNotExist) {
		return core.SignalSet{}, Entry{}, core.WrapError(core.ErrSnapshotNotFound, fmt.Errorf("snapshot %s", id))
	}
	if err != nil {
		return core.SignalSet{}, Entry{}, fmt.Errorf("archive.Load: %w", err)
	}

	var set core.SignalSet
	if err := sonic.Unmarshal(data, &set); err != nil {
		return core.SignalSet{}, Entry{}, fmt.Errorf("archive.Load: decoding %s: %w", id, err)
	}
	return set.Normalize(), e, nil
}

// Latest returns the newest snapshot fetched on at's day or the day before.
func (s *Snapshots) Latest(ctx context.Context, at time.Time) (core.SignalSet, Entry, error) {
	for _, day := range []time.Time{at, at.AddDate(0, 0, -1)} {
		entries, err := s.Day(ctx, day)
		if err != nil {
			return core.SignalSet{}, Entry{}, err
		}
		for i := len(entries) - 1; i >= 0; i-- {
			if entries[i].FetchedAt.After(at) {
				continue
			}
			return s.Load(ctx, entries[i].ID)
		}
	}
	return core.SignalSet{}, Entry{}, core.ErrSnapshotNotFound
}

// Prune deletes every snapshot fetched before cutoff and reports how many
// were removed.
func (s *Snapshots) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	paths, err := s.store.List(ctx, snapshotRoot)
	if err != nil {
		return 0, fmt.Errorf("archive.Prune: %w", err)
	}

	removed := 0
	for _, p := range paths {
		t, ok := parseSnapshotPath(p)
		if !ok || !t.Before(cutoff) {
			continue
		}
		if err := s.store.Delete(ctx, p); err != nil {
			return removed, fmt.Errorf("archive.Prune: %s: %w", p, err)
		}
		removed++
	}
	return removed, nil
}

// StartPruneRoutine prunes snapshots older than retention once at start and
// then every interval until ctx is done.
func (s *Snapshots) StartPruneRoutine(ctx context.Context, retention, interval time.Duration, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	prune := func() {
		removed, err := s.Prune(ctx, time.Now().Add(-retention))
		if err != nil {
			logger.Warn("pruning archive", zap.Error(err))
			return
		}
		if removed > 0 {
			logger.Debug("pruned archived snapshots", zap.Int("removed", removed))
		}
	}

	go func() {
		prune()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				prune()
			}
		}
	}()
}
