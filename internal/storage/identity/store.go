// Package identity stores the display user id each signed-in account picks once.
package identity

import "context"

// Store maps auth user ids to display user ids.
type Store interface {
	// Get returns the display id, or core.ErrIdentityNotFound.
	Get(ctx context.Context, authUserID string) (string, error)

	// Set upserts the display id.
	Set(ctx context.Context, authUserID, displayID string) error
}

// Claimer is implemented by stores that can set a display id only when
// none exists, atomically. It returns core.ErrIdentityTaken otherwise.
type Claimer interface {
	Claim(ctx context.Context, authUserID, displayID string) error
}

// Counter is implemented by stores that can count claimed display ids.
type Counter interface {
	Count(ctx context.Context) (int64, error)
}
