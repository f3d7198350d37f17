package notifier

import (
	"context"
	"time"

	"github.com/newthinker/nextsignal/internal/core"
)

// Delivery is one revealed generation.
type Delivery struct {
	Owner      string
	Market     core.Market
	At         core.Clock
	Signals    []core.Signal
	RevealedAt time.Time
}

// Notifier defines the interface for generation notifications
type Notifier interface {
	// Name returns the unique identifier for this notifier
	Name() string

	// Send delivers a revealed generation
	Send(ctx context.Context, d Delivery) error
}
