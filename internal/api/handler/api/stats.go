package api

import (
	"context"
	"net/http"

	"github.com/newthinker/nextsignal/internal/api/response"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// StatsSource reports runtime statistics.
type StatsSource interface {
	GetStats() map[string]any
}

// ClaimCounter counts accounts that picked a display id. ok is false when
// the backing store cannot count.
type ClaimCounter interface {
	Count(ctx context.Context) (n int64, ok bool, err error)
}

// StatsHandler serves the public user counter.
type StatsHandler struct {
	userCount int64
	printer   *message.Printer
	app       StatsSource
	claims    ClaimCounter
}

// NewStatsHandler creates a stats handler. app and claims may be nil.
func NewStatsHandler(userCount int64, app StatsSource, claims ClaimCounter) *StatsHandler {
	return &StatsHandler{
		userCount: userCount,
		printer:   message.NewPrinter(language.English),
		app:       app,
		claims:    claims,
	}
}

// Get returns the user count with a thousands-separated display string.
// claimed_users is present only when the identity store can count.
func (h *StatsHandler) Get(w http.ResponseWriter, r *http.Request) {
	data := map[string]any{
		"total_users": h.userCount,
		"display":     h.printer.Sprintf("%d", h.userCount),
	}
	if h.claims != nil {
		if n, ok, err := h.claims.Count(r.Context()); err == nil && ok {
			data["claimed_users"] = n
		}
	}
	if h.app != nil {
		data["app"] = h.app.GetStats()
	}
	response.JSON(w, http.StatusOK, data)
}
