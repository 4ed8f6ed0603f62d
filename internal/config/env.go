// Package config reads the daemon's environment-driven configuration and
// its MCMOT YAML document.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// StaleMode mirrors phase.StalenessPolicy's string form as read from env.
type StaleMode string

const (
	StaleModeFreeze  StaleMode = "freeze"
	StaleModeUnknown StaleMode = "unknown"
)

// Env holds the daemon's recognized environment-driven configuration
// (spec §6, "Recognized configuration (env-driven)").
type Env struct {
	LoopIntervalSeconds   float64
	RetryBackoffSeconds   float64
	NonWorkingIdleSeconds float64

	EdgeEventBackend   string // "http" | "mqtt"
	EdgeEventHost      string
	EdgeEventPort      int
	EdgeEventMaxAge    float64
	EdgeEventsMQTTTopic string

	PhasePublishBackend string
	PhaseMQTTTopic      string
	PhaseHTTPBaseURL    string

	MQTTHost            string
	MQTTPort            int
	MQTTQoS             int
	MQTTRetain          bool
	MQTTClientID        string
	MQTTEnabled         bool
	MQTTHeartbeatSeconds float64

	PipelineSchedulePath     string
	SchedulerEngineClass     string
	PhaseEngineClass         string
	IngestionEngineClass     string
	TrackingEngineClass      string
	FormatStrategyClass      string
	RulesEngineClass         string
	EventDispatchEngineClass string

	PhaseStableSeconds    float64
	EdgeEventStaleSeconds float64
	EdgeEventStaleMode    StaleMode
	EdgeEventUnknownPhase string

	MCMOTEnabled     bool
	MCMOTConfigPath  string
	AppTimezone      string
	LogLevel         string
	ConfigSummary    bool
}

// Lookup resembles os.LookupEnv; a parameter so tests don't need real env vars.
type Lookup func(key string) (string, bool)

// OSLookup adapts os.LookupEnv to Lookup.
func OSLookup(key string) (string, bool) { return os.LookupEnv(key) }

// Load reads Env from lookup, applying the spec's defaults for anything unset.
func Load(lookup Lookup) (Env, error) {
	e := Env{
		LoopIntervalSeconds:   5,
		RetryBackoffSeconds:   2,
		NonWorkingIdleSeconds: 30,
		EdgeEventBackend:      "http",
		EdgeEventHost:         "0.0.0.0",
		EdgeEventPort:         8090,
		EdgeEventMaxAge:       5,
		PhasePublishBackend:   "",
		MQTTPort:              1883,
		MQTTQoS:               0,
		PhaseStableSeconds:    180,
		EdgeEventStaleSeconds: 0,
		EdgeEventStaleMode:    StaleModeFreeze,
		MCMOTEnabled:          false,
		AppTimezone:           "UTC",
		LogLevel:              "info",
	}

	var err error
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	flt := func(key string, dst *float64) {
		if v, ok := lookup(key); ok {
			f, perr := strconv.ParseFloat(v, 64)
			if perr != nil {
				err = fmt.Errorf("config: %s: %w", key, perr)
				return
			}
			*dst = f
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(key); ok {
			n, perr := strconv.Atoi(v)
			if perr != nil {
				err = fmt.Errorf("config: %s: %w", key, perr)
				return
			}
			*dst = n
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok {
			*dst = isTruthy(v)
		}
	}

	flt("LOOP_INTERVAL_SECONDS", &e.LoopIntervalSeconds)
	flt("RETRY_BACKOFF_SECONDS", &e.RetryBackoffSeconds)
	flt("NON_WORKING_IDLE_SECONDS", &e.NonWorkingIdleSeconds)

	str("EDGE_EVENT_BACKEND", &e.EdgeEventBackend)
	str("EDGE_EVENT_HOST", &e.EdgeEventHost)
	integer("EDGE_EVENT_PORT", &e.EdgeEventPort)
	flt("EDGE_EVENT_MAX_AGE", &e.EdgeEventMaxAge)
	str("EDGE_EVENTS_MQTT_TOPIC", &e.EdgeEventsMQTTTopic)

	str("PHASE_PUBLISH_BACKEND", &e.PhasePublishBackend)
	str("PHASE_MQTT_TOPIC", &e.PhaseMQTTTopic)
	str("PHASE_HTTP_BASE_URL", &e.PhaseHTTPBaseURL)

	str("MQTT_HOST", &e.MQTTHost)
	integer("MQTT_PORT", &e.MQTTPort)
	integer("MQTT_QOS", &e.MQTTQoS)
	boolean("MQTT_RETAIN", &e.MQTTRetain)
	str("MQTT_CLIENT_ID", &e.MQTTClientID)
	boolean("MQTT_ENABLED", &e.MQTTEnabled)
	flt("MQTT_HEARTBEAT_SECONDS", &e.MQTTHeartbeatSeconds)

	str("PIPELINE_SCHEDULE_PATH", &e.PipelineSchedulePath)
	str("SCHEDULER_ENGINE_CLASS", &e.SchedulerEngineClass)
	str("PHASE_ENGINE_CLASS", &e.PhaseEngineClass)
	str("INGESTION_ENGINE_CLASS", &e.IngestionEngineClass)
	str("TRACKING_ENGINE_CLASS", &e.TrackingEngineClass)
	str("FORMAT_STRATEGY_CLASS", &e.FormatStrategyClass)
	str("RULES_ENGINE_CLASS", &e.RulesEngineClass)
	str("EVENT_DISPATCH_ENGINE_CLASS", &e.EventDispatchEngineClass)

	flt("PHASE_STABLE_SECONDS", &e.PhaseStableSeconds)
	flt("EDGE_EVENT_STALE_SECONDS", &e.EdgeEventStaleSeconds)
	if v, ok := lookup("EDGE_EVENT_STALE_MODE"); ok {
		switch strings.ToLower(v) {
		case "freeze":
			e.EdgeEventStaleMode = StaleModeFreeze
		case "unknown":
			e.EdgeEventStaleMode = StaleModeUnknown
		default:
			err = fmt.Errorf("config: EDGE_EVENT_STALE_MODE: unrecognized value %q", v)
		}
	}
	str("EDGE_EVENT_UNKNOWN_PHASE", &e.EdgeEventUnknownPhase)

	boolean("MCMOT_ENABLED", &e.MCMOTEnabled)
	str("MCMOT_CONFIG_PATH", &e.MCMOTConfigPath)
	str("APP_TIMEZONE", &e.AppTimezone)
	str("LOG_LEVEL", &e.LogLevel)
	boolean("CONFIG_SUMMARY", &e.ConfigSummary)

	if err != nil {
		return Env{}, err
	}

	if e.MCMOTEnabled && e.MCMOTConfigPath == "" {
		return Env{}, fmt.Errorf("config: MCMOT_ENABLED is set but MCMOT_CONFIG_PATH is empty")
	}

	return e, nil
}

func isTruthy(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// Summary renders a short line-oriented operator-facing dump of the key
// fields. The CONFIG_SUMMARY=1 / -print-config-summary path in cmd/mcmotd
// does not call it; that path prints the configuration as JSON.
func (e Env) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "loop_interval_seconds=%v\n", e.LoopIntervalSeconds)
	fmt.Fprintf(&b, "retry_backoff_seconds=%v\n", e.RetryBackoffSeconds)
	fmt.Fprintf(&b, "edge_event_backend=%s\n", e.EdgeEventBackend)
	fmt.Fprintf(&b, "edge_event_host=%s port=%d max_age=%v\n", e.EdgeEventHost, e.EdgeEventPort, e.EdgeEventMaxAge)
	fmt.Fprintf(&b, "phase_publish_backend=%s\n", e.PhasePublishBackend)
	fmt.Fprintf(&b, "mqtt_enabled=%v host=%s port=%d\n", e.MQTTEnabled, e.MQTTHost, e.MQTTPort)
	fmt.Fprintf(&b, "pipeline_schedule_path=%s\n", e.PipelineSchedulePath)
	fmt.Fprintf(&b, "phase_stable_seconds=%v stale_seconds=%v stale_mode=%s\n", e.PhaseStableSeconds, e.EdgeEventStaleSeconds, e.EdgeEventStaleMode)
	fmt.Fprintf(&b, "mcmot_enabled=%v mcmot_config_path=%s\n", e.MCMOTEnabled, e.MCMOTConfigPath)
	fmt.Fprintf(&b, "app_timezone=%s log_level=%s\n", e.AppTimezone, e.LogLevel)
	return b.String()
}
