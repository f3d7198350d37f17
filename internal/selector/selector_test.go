package selector

import (
	"testing"

	"github.com/newthinker/nextsignal/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sig(name, at string) core.Signal {
	return core.Signal{Name: name, Time: at, Action: core.ActionCall}
}

func clock(t *testing.T, s string) core.Clock {
	t.Helper()
	c, err := core.ParseClock(s)
	require.NoError(t, err)
	return c
}

func TestSelectNext_Empty(t *testing.T) {
	got, ok, err := SelectNext(nil, clock(t, "12:00"))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, core.Signal{}, got)

	_, ok, err = SelectNext([]core.Signal{}, clock(t, "00:00"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSelectNext_PicksSmallestStrictlyGreater(t *testing.T) {
	signals := []core.Signal{
		sig("GBP/USD", "14:30"),
		sig("EUR/USD", "09:00"),
		sig("USD/JPY", "23:00"),
	}

	tests := []struct {
		now  string
		want string
	}{
		{"00:00", "EUR/USD"},
		{"08:59", "EUR/USD"},
		{"09:00", "GBP/USD"},
		{"12:00", "GBP/USD"},
		{"14:30", "USD/JPY"},
		{"22:59", "USD/JPY"},
	}

	for _, tc := range tests {
		got, ok, err := SelectNext(signals, clock(t, tc.now))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, tc.want, got.Name, "now=%s", tc.now)
	}
}

func TestSelectNext_WrapsWhenEqualToLast(t *testing.T) {
	signals := []core.Signal{
		sig("A", "09:00"),
		sig("B", "14:30"),
		sig("C", "23:00"),
	}

	got, ok, err := SelectNext(signals, clock(t, "23:00"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "A", got.Name)

	got, _, _ = SelectNext(signals, clock(t, "23:59"))
	assert.Equal(t, "A", got.Name)
}

func TestSelectNext_Boundary(t *testing.T) {
	signals := []core.Signal{sig("A", "09:00"), sig("B", "14:30")}

	got, ok, err := SelectNext(signals, clock(t, "08:59"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "A", got.Name)
}

func TestSelectNext_TieKeepsFirstListed(t *testing.T) {
	signals := []core.Signal{
		sig("A", "10:00"),
		sig("B", "10:00"),
	}

	got, ok, err := SelectNext(signals, clock(t, "09:00"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "A", got.Name)

	// Wrap-around also lands on the first listed of the earliest tie.
	got, _, _ = SelectNext(signals, clock(t, "10:00"))
	assert.Equal(t, "A", got.Name)
}

func TestSelectNext_SingleSignal(t *testing.T) {
	signals := []core.Signal{sig("ONLY", "12:00")}
	for _, now := range []string{"00:00", "12:00", "23:59"} {
		got, ok, err := SelectNext(signals, clock(t, now))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "ONLY", got.Name)
	}
}

func TestSelectNext_Idempotent(t *testing.T) {
	signals := []core.Signal{sig("A", "16:00"), sig("B", "08:00"), sig("C", "12:00")}
	now := clock(t, "10:00")

	first, ok1, err1 := SelectNext(signals, now)
	second, ok2, err2 := SelectNext(signals, now)

	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, ok1, ok2)
	assert.Equal(t, first, second)
	assert.Equal(t, "C", first.Name)
}

func TestSelectNext_DoesNotReorderInput(t *testing.T) {
	signals := []core.Signal{sig("A", "16:00"), sig("B", "08:00"), sig("C", "12:00")}
	_, _, err := SelectNext(signals, clock(t, "10:00"))
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"},
		[]string{signals[0].Name, signals[1].Name, signals[2].Name})
}

func TestSelectNext_SingleDigitTimes(t *testing.T) {
	signals := []core.Signal{sig("LATE", "10:00"), sig("EARLY", "9:30")}
	got, _, err := SelectNext(signals, clock(t, "09:00"))
	require.NoError(t, err)
	assert.Equal(t, "EARLY", got.Name)
}

func TestSelectNext_RejectsMalformedTime(t *testing.T) {
	tests := []string{"noon", "10", "10:00:00", "25:00", "10:75", ""}
	for _, bad := range tests {
		signals := []core.Signal{sig("OK", "10:00"), sig("BAD", bad)}
		_, ok, err := SelectNext(signals, clock(t, "09:00"))
		assert.ErrorIs(t, err, core.ErrInvalidTime, "time %q", bad)
		assert.False(t, ok)
	}
}

func TestForMarket_Live(t *testing.T) {
	set := core.SignalSet{
		Live: []core.Signal{sig("A", "09:00"), sig("B", "14:30")},
		OTC:  []core.Signal{sig("X", "01:00")},
	}

	got, err := ForMarket(set, core.MarketLive, clock(t, "10:00"))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "B", got[0].Name)
}

func TestForMarket_LiveEmpty(t *testing.T) {
	got, err := ForMarket(core.EmptySignalSet(), core.MarketLive, clock(t, "10:00"))
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestForMarket_OTCUnfilteredInOrder(t *testing.T) {
	otc := []core.Signal{
		sig("Z", "23:00"),
		sig("A", "01:00"),
		sig("M", "12:00"),
	}
	set := core.SignalSet{Live: []core.Signal{}, OTC: otc}

	for _, now := range []string{"00:00", "12:00", "23:59"} {
		got, err := ForMarket(set, core.MarketOTC, clock(t, now))
		require.NoError(t, err)
		assert.Equal(t, otc, got, "now=%s", now)
	}

	// Returned slice must not alias the snapshot.
	got, _ := ForMarket(set, core.MarketOTC, clock(t, "00:00"))
	got[0].Name = "CHANGED"
	assert.Equal(t, "Z", set.OTC[0].Name)
}

func TestForMarket_UnknownMarket(t *testing.T) {
	_, err := ForMarket(core.EmptySignalSet(), core.Market("forex"), clock(t, "10:00"))
	assert.ErrorIs(t, err, core.ErrInvalidMarket)
}
