// Package selector picks which signals to show for a market at a given time of day.
package selector

import (
	"fmt"
	"slices"

	"github.com/newthinker/nextsignal/internal/core"
)

type timedSignal struct {
	signal  core.Signal
	minutes int
}

// SelectNext returns the first signal strictly after now, ordered by time of day.
// When now is at or past the last signal of the day it wraps to the earliest one.
// Signals sharing a time keep their input order. An empty input yields ok=false.
func SelectNext(signals []core.Signal, now core.Clock) (core.Signal, bool, error) {
	if len(signals) == 0 {
		return core.Signal{}, false, nil
	}

	sorted := make([]timedSignal, 0, len(signals))
	for i, s := range signals {
		c, err := core.ParseClock(s.Time)
		if err != nil {
			return core.Signal{}, false, core.WrapError(core.ErrInvalidTime,
				fmt.Errorf("signal %d (%s) has time %q", i, s.Name, s.Time))
		}
		sorted = append(sorted, timedSignal{signal: s, minutes: c.Minutes()})
	}

	slices.SortStableFunc(sorted, func(a, b timedSignal) int {
		return a.minutes - b.minutes
	})

	current := now.Minutes()
	for _, ts := range sorted {
		if ts.minutes > current {
			return ts.signal, true, nil
		}
	}

	return sorted[0].signal, true, nil
}

// ForMarket returns the signals to display for a market.
// Live yields at most one signal, the next upcoming; OTC yields the whole group in order.
func ForMarket(set core.SignalSet, market core.Market, now core.Clock) ([]core.Signal, error) {
	switch market {
	case core.MarketLive:
		next, ok, err := SelectNext(set.Live, now)
		if err != nil {
			return nil, err
		}
		if !ok {
			return []core.Signal{}, nil
		}
		return []core.Signal{next}, nil
	case core.MarketOTC:
		out := make([]core.Signal, len(set.OTC))
		copy(out, set.OTC)
		return out, nil
	default:
		return nil, core.WrapError(core.ErrInvalidMarket, fmt.Errorf("unknown market %q", market))
	}
}
