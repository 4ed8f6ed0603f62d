package ttlmap

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTTLMapExpiresLazily(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := New[string, int](10 * time.Second)

	m.Set("a", 1, now)
	v, ok := m.Get("a", now)
	require.True(t, ok)
	require.Equal(t, 1, v)

	// Still present shortly before the ttl elapses.
	v, ok = m.Get("a", now.Add(9*time.Second))
	require.True(t, ok)
	require.Equal(t, 1, v)

	// Expired entries vanish on access, without an explicit sweep call.
	_, ok = m.Get("a", now.Add(11*time.Second))
	require.False(t, ok)
	require.Equal(t, 0, m.Len())
}

func TestTTLMapCleanupSweepsAll(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := New[string, int](5 * time.Second)
	m.Set("a", 1, now)
	m.Set("b", 2, now)

	removed := m.Cleanup(now.Add(6 * time.Second))
	require.Equal(t, 2, removed)
	require.Equal(t, 0, m.Len())
}
