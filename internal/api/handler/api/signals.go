package api

import (
	"context"
	"net/http"
	"time"

	"github.com/newthinker/nextsignal/internal/api/response"
	"github.com/newthinker/nextsignal/internal/core"
	"github.com/newthinker/nextsignal/internal/generator"
	"github.com/newthinker/nextsignal/internal/source"
)

const refreshTimeout = 30 * time.Second

// SignalsApp defines the interface needed from app.App.
type SignalsApp interface {
	Snapshot() core.SignalSet
	Reload(ctx context.Context) source.Result
}

// Selector runs an immediate selection.
type Selector interface {
	Select(market core.Market, at *core.Clock) (generator.Result, error)
}

// SignalsHandler handles signal-related API requests.
type SignalsHandler struct {
	app      SignalsApp
	selector Selector
}

// NewSignalsHandler creates a new signals handler.
func NewSignalsHandler(app SignalsApp, selector Selector) *SignalsHandler {
	return &SignalsHandler{app: app, selector: selector}
}

// List returns the current snapshot.
func (h *SignalsHandler) List(w http.ResponseWriter, r *http.Request) {
	set := h.app.Snapshot()
	response.JSON(w, http.StatusOK, map[string]any{
		"signals": set,
		"live":    len(set.Live),
		"otc":     len(set.OTC),
	})
}

// Refresh refetches the signal list. A failed fetch leaves an empty snapshot.
// The reload outlives the request so a disconnecting client cannot abandon it.
func (h *SignalsHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), refreshTimeout)
	defer cancel()

	res := h.app.Reload(ctx)
	if !res.OK() {
		response.Fail(w, res.Err)
		return
	}

	response.JSON(w, http.StatusOK, map[string]any{
		"signals":    res.Set,
		"live":       len(res.Set.Live),
		"otc":        len(res.Set.OTC),
		"fetched_at": res.FetchedAt.UTC().Format(time.RFC3339),
	})
}

// Next returns the selection for ?market= (default live) at ?at=HH:MM (default now).
func (h *SignalsHandler) Next(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	market := core.MarketLive
	if m := q.Get("market"); m != "" {
		parsed, err := core.ParseMarket(m)
		if err != nil {
			response.Fail(w, err)
			return
		}
		market = parsed
	}

	at, err := parseAt(q.Get("at"))
	if err != nil {
		response.Fail(w, err)
		return
	}

	res, err := h.selector.Select(market, at)
	if err != nil {
		response.Fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, res)
}

func parseAt(s string) (*core.Clock, error) {
	if s == "" {
		return nil, nil
	}
	c, err := core.ParseClock(s)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
