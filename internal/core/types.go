package core

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Action represents the direction of a binary signal
type Action string

const (
	ActionCall Action = "CALL"
	ActionPut  Action = "PUT"
)

// Valid reports whether the action is one of the known variants
func (a Action) Valid() bool {
	return a == ActionCall || a == ActionPut
}

// Signal is a single recommended trading action tied to an instrument and a time of day
type Signal struct {
	Name   string `json:"name" validate:"required"`
	Time   string `json:"time" validate:"required"`
	Action Action `json:"action" validate:"required,oneof=CALL PUT"`
}

// SignalSet is the full fetched payload, split into the live and OTC groups.
// Group order is the order received from the source.
type SignalSet struct {
	Live []Signal `json:"Live Signal" validate:"dive"`
	OTC  []Signal `json:"OTC Market" validate:"dive"`
}

// EmptySignalSet returns a set with both groups present and empty
func EmptySignalSet() SignalSet {
	return SignalSet{Live: []Signal{}, OTC: []Signal{}}
}

// Normalize replaces missing groups with empty ones so the set always encodes both keys.
func (s SignalSet) Normalize() SignalSet {
	if s.Live == nil {
		s.Live = []Signal{}
	}
	if s.OTC == nil {
		s.OTC = []Signal{}
	}
	return s
}

// Clone returns a deep copy of the set
func (s SignalSet) Clone() SignalSet {
	out := SignalSet{
		Live: make([]Signal, len(s.Live)),
		OTC:  make([]Signal, len(s.OTC)),
	}
	copy(out.Live, s.Live)
	copy(out.OTC, s.OTC)
	return out
}

// Group returns the signals for a market
func (s SignalSet) Group(m Market) []Signal {
	if m == MarketOTC {
		return s.OTC
	}
	return s.Live
}

// Market selects which group a generation runs against
type Market string

const (
	MarketLive Market = "live"
	MarketOTC  Market = "otc"
)

// ParseMarket accepts "live", "otc" and the legacy "real" alias for live.
func ParseMarket(s string) (Market, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "live", "real":
		return MarketLive, nil
	case "otc":
		return MarketOTC, nil
	default:
		return "", WrapError(ErrInvalidMarket, fmt.Errorf("unknown market %q", s))
	}
}

// Clock is a time of day with minute precision
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock parses "HH:MM" (24-hour). Single-digit fields are accepted.
func ParseClock(s string) (Clock, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return Clock{}, WrapError(ErrInvalidTime, fmt.Errorf("%q", s))
	}

	h, okH := parseField(parts[0])
	m, okM := parseField(parts[1])
	if !okH || !okM || h > 23 || m > 59 {
		return Clock{}, WrapError(ErrInvalidTime, fmt.Errorf("%q", s))
	}

	return Clock{Hour: h, Minute: m}, nil
}

func parseField(s string) (int, bool) {
	if len(s) == 0 || len(s) > 2 {
		return 0, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	return n, err == nil
}

// ClockOf returns the time of day of t in its own location
func ClockOf(t time.Time) Clock {
	return Clock{Hour: t.Hour(), Minute: t.Minute()}
}

// Minutes returns minutes since midnight
func (c Clock) Minutes() int {
	return c.Hour*60 + c.Minute
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}
