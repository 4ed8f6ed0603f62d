package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func lookupFrom(m map[string]string) Lookup {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestLoadDefaults(t *testing.T) {
	e, err := Load(lookupFrom(nil))
	require.NoError(t, err)
	require.Equal(t, 5.0, e.LoopIntervalSeconds)
	require.Equal(t, "http", e.EdgeEventBackend)
	require.Equal(t, StaleModeFreeze, e.EdgeEventStaleMode)
	require.False(t, e.MCMOTEnabled)
}

func TestLoadOverridesFromEnv(t *testing.T) {
	e, err := Load(lookupFrom(map[string]string{
		"LOOP_INTERVAL_SECONDS":  "2.5",
		"EDGE_EVENT_BACKEND":     "mqtt",
		"EDGE_EVENT_STALE_MODE":  "unknown",
		"MQTT_RETAIN":            "true",
		"CONFIG_SUMMARY":         "1",
	}))
	require.NoError(t, err)
	require.Equal(t, 2.5, e.LoopIntervalSeconds)
	require.Equal(t, "mqtt", e.EdgeEventBackend)
	require.Equal(t, StaleModeUnknown, e.EdgeEventStaleMode)
	require.True(t, e.MQTTRetain)
	require.True(t, e.ConfigSummary)
}

func TestLoadRejectsBadFloat(t *testing.T) {
	_, err := Load(lookupFrom(map[string]string{"LOOP_INTERVAL_SECONDS": "not-a-number"}))
	require.Error(t, err)
}

func TestLoadRejectsMCMOTEnabledWithoutPath(t *testing.T) {
	_, err := Load(lookupFrom(map[string]string{"MCMOT_ENABLED": "true"}))
	require.Error(t, err)
}

func TestSummaryIncludesKeyFields(t *testing.T) {
	e, err := Load(lookupFrom(nil))
	require.NoError(t, err)
	s := e.Summary()
	require.Contains(t, s, "loop_interval_seconds=5")
	require.Contains(t, s, "edge_event_backend=http")
}
