package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/newthinker/nextsignal/internal/api/response"
	"github.com/newthinker/nextsignal/internal/core"
	"github.com/newthinker/nextsignal/internal/storage/archive"
)

const dayLayout = "2006-01-02"

// SnapshotArchive reads archived signal lists.
type SnapshotArchive interface {
	Day(ctx context.Context, day time.Time) ([]archive.Entry, error)
	Load(ctx context.Context, id string) (core.SignalSet, archive.Entry, error)
	Latest(ctx context.Context, at time.Time) (core.SignalSet, archive.Entry, error)
}

// ArchiveHandler serves past snapshots.
type ArchiveHandler struct {
	archive SnapshotArchive
	now     func() time.Time
}

// NewArchiveHandler creates an archive handler.
func NewArchiveHandler(a SnapshotArchive) *ArchiveHandler {
	return &ArchiveHandler{archive: a, now: time.Now}
}

// List returns the snapshots of ?day=YYYY-MM-DD (UTC, default today).
func (h *ArchiveHandler) List(w http.ResponseWriter, r *http.Request) {
	day := h.now().UTC()
	if s := r.URL.Query().Get("day"); s != "" {
		d, err := time.ParseInLocation(dayLayout, s, time.UTC)
		if err != nil {
			response.Fail(w, core.WrapError(core.ErrValidation, fmt.Errorf("day must be %s", dayLayout)))
			return
		}
		day = d
	}

	entries, err := h.archive.Day(r.Context(), day)
	if err != nil {
		response.Fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{
		"day":       day.Format(dayLayout),
		"snapshots": entries,
	})
}

// Latest returns the newest archived snapshot.
func (h *ArchiveHandler) Latest(w http.ResponseWriter, r *http.Request) {
	set, e, err := h.archive.Latest(r.Context(), h.now())
	if err != nil {
		response.Fail(w, err)
		return
	}
	writeSnapshot(w, set, e)
}

// Get returns the snapshot named by {id}.
func (h *ArchiveHandler) Get(w http.ResponseWriter, r *http.Request) {
	set, e, err := h.archive.Load(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		response.Fail(w, err)
		return
	}
	writeSnapshot(w, set, e)
}

func writeSnapshot(w http.ResponseWriter, set core.SignalSet, e archive.Entry) {
	response.JSON(w, http.StatusOK, map[string]any{
		"snapshot": e,
		"signals":  set,
		"live":     len(set.Live),
		"otc":      len(set.OTC),
	})
}
