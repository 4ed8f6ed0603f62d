package phasepub

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMaybePublishesOnChangeAndHeartbeat(t *testing.T) {
	reg := NewRegistry()
	var published []string
	reg.Register("http", PublisherFunc(func(phaseName string, ts time.Time) bool {
		published = append(published, phaseName)
		return true
	}))

	o := New(reg, Config{HeartbeatSeconds: 30}, "http")
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.True(t, o.Maybe("working", base))
	require.Equal(t, []string{"working"}, published)

	// Same phase, heartbeat not yet due: no publish.
	require.False(t, o.Maybe("working", base.Add(10*time.Second)))
	require.Len(t, published, 1)

	// Same phase, heartbeat due: publish.
	require.True(t, o.Maybe("working", base.Add(31*time.Second)))
	require.Len(t, published, 2)

	// Phase changed: publish regardless of heartbeat timer.
	require.True(t, o.Maybe("non_working", base.Add(32*time.Second)))
	require.Len(t, published, 3)
	require.Equal(t, "non_working", published[2])
}

func TestMaybeDoesNotAdvanceStateOnFailure(t *testing.T) {
	reg := NewRegistry()
	attempts := 0
	reg.Register("http", PublisherFunc(func(phaseName string, ts time.Time) bool {
		attempts++
		return false
	}))

	o := New(reg, Config{}, "http")
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.False(t, o.Maybe("working", base))
	require.Equal(t, 1, attempts)

	// State never advanced (no last phase recorded), so this call is still
	// treated as a "changed" publish attempt.
	require.False(t, o.Maybe("working", base.Add(time.Second)))
	require.Equal(t, 2, attempts)
}

func TestMaybeSkipsUnconfiguredBackendWithoutError(t *testing.T) {
	reg := NewRegistry()
	o := New(reg, Config{}, "mqtt") // "mqtt" never registered
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.False(t, o.Maybe("working", base))
}

func TestMaybeNoHeartbeatConfiguredNeverRepublishesSamePhase(t *testing.T) {
	reg := NewRegistry()
	calls := 0
	reg.Register("http", PublisherFunc(func(phaseName string, ts time.Time) bool {
		calls++
		return true
	}))
	o := New(reg, Config{HeartbeatSeconds: 0}, "http")
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.True(t, o.Maybe("working", base))
	require.False(t, o.Maybe("working", base.Add(time.Hour)))
	require.Equal(t, 1, calls)
}
