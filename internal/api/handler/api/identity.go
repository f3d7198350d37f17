package api

import (
	"context"
	"net/http"

	"github.com/newthinker/nextsignal/internal/api/response"
)

// IdentityService reads and claims display ids.
type IdentityService interface {
	IdentityLookup
	Claim(ctx context.Context, authUserID, displayID string) (string, error)
}

// ClaimRequest is the request body for choosing a user id.
type ClaimRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

// IdentityHandler handles the signed-in user's display id.
type IdentityHandler struct {
	identities IdentityService
}

// NewIdentityHandler creates a new identity handler.
func NewIdentityHandler(identities IdentityService) *IdentityHandler {
	return &IdentityHandler{identities: identities}
}

// Get returns the user's display id, or 404 when none has been chosen.
func (h *IdentityHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, ok := currentSession(w, r)
	if !ok {
		return
	}

	userID, err := h.identities.Lookup(r.Context(), s.User.ID)
	if err != nil {
		response.Fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{"user_id": userID})
}

// Claim sets the display id. It can only be set once.
func (h *IdentityHandler) Claim(w http.ResponseWriter, r *http.Request) {
	s, ok := currentSession(w, r)
	if !ok {
		return
	}

	var req ClaimRequest
	if err := decode(r, &req); err != nil {
		response.Fail(w, err)
		return
	}

	userID, err := h.identities.Claim(r.Context(), s.User.ID, req.UserID)
	if err != nil {
		response.Fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{"user_id": userID})
}
