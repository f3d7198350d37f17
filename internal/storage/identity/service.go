package identity

import (
	"context"
	"errors"
	"strings"

	"github.com/newthinker/nextsignal/internal/core"
	"github.com/newthinker/nextsignal/internal/validate"
)

// MinLength is the shortest display id accepted.
const MinLength = 3

type claim struct {
	UserID string `json:"user_id" validate:"required,min=3,max=64"`
}

// Service enforces the display id rules on top of a Store.
type Service struct {
	store Store
}

// NewService wraps store.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Lookup returns the display id or core.ErrIdentityNotFound.
func (s *Service) Lookup(ctx context.Context, authUserID string) (string, error) {
	return s.store.Get(ctx, authUserID)
}

// Claim sets the display id once. The id is trimmed and must be at least
// MinLength characters. A second claim fails with core.ErrIdentityTaken.
func (s *Service) Claim(ctx context.Context, authUserID, displayID string) (string, error) {
	displayID = strings.TrimSpace(displayID)
	if err := validate.Struct(ctx, claim{UserID: displayID}); err != nil {
		return "", err
	}

	if c, ok := s.store.(Claimer); ok {
		if err := c.Claim(ctx, authUserID, displayID); err != nil {
			return "", err
		}
		return displayID, nil
	}

	_, err := s.store.Get(ctx, authUserID)
	switch {
	case err == nil:
		return "", core.ErrIdentityTaken
	case !errors.Is(err, core.ErrIdentityNotFound):
		return "", err
	}

	if err := s.store.Set(ctx, authUserID, displayID); err != nil {
		return "", err
	}
	return displayID, nil
}

// Count returns how many accounts claimed a display id. ok is false when the
// store cannot count.
func (s *Service) Count(ctx context.Context) (n int64, ok bool, err error) {
	c, ok := s.store.(Counter)
	if !ok {
		return 0, false, nil
	}
	n, err = c.Count(ctx)
	return n, err == nil, err
}
