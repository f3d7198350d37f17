package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/newthinker/nextsignal/internal/api/job"
	"github.com/newthinker/nextsignal/internal/api/response"
	"github.com/newthinker/nextsignal/internal/core"
)

// Generations starts and looks up delayed reveals.
type Generations interface {
	Generate(owner string, market core.Market, at *core.Clock) (*job.Job, error)
	Get(id string) (*job.Job, error)
}

// GenerateRequest is the request body for starting a generation.
type GenerateRequest struct {
	Market string `json:"market" validate:"required"`
	At     string `json:"at,omitempty"`
}

// GenerateHandler handles generation API requests.
type GenerateHandler struct {
	generations Generations
}

// NewGenerateHandler creates a new generate handler.
func NewGenerateHandler(generations Generations) *GenerateHandler {
	return &GenerateHandler{generations: generations}
}

// Create starts a generation. The job is returned pending and completes after the reveal delay.
func (h *GenerateHandler) Create(w http.ResponseWriter, r *http.Request) {
	s, ok := currentSession(w, r)
	if !ok {
		return
	}

	var req GenerateRequest
	if err := decode(r, &req); err != nil {
		response.Fail(w, err)
		return
	}

	market, err := core.ParseMarket(req.Market)
	if err != nil {
		response.Fail(w, err)
		return
	}
	at, err := parseAt(req.At)
	if err != nil {
		response.Fail(w, err)
		return
	}

	j, err := h.generations.Generate(s.User.ID, market, at)
	if err != nil {
		response.Fail(w, err)
		return
	}

	status := http.StatusAccepted
	if j.Status.Done() {
		status = http.StatusOK
	}
	response.JSON(w, status, j)
}

// Get returns a generation job owned by the caller.
func (h *GenerateHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, ok := currentSession(w, r)
	if !ok {
		return
	}

	j, err := h.generations.Get(chi.URLParam(r, "id"))
	if err != nil {
		response.Fail(w, err)
		return
	}
	if j.Owner != s.User.ID {
		response.Fail(w, core.WrapError(core.ErrJobNotFound, errors.New("not owned by caller")))
		return
	}
	response.JSON(w, http.StatusOK, j)
}
