// Command mcmotd is the multi-camera multi-object tracking integration
// daemon: it ingests per-camera detection events, runs them through the
// MCMOT engine on a phase-scheduled cycle, and republishes the resolved
// phase and tracked objects to configured transports.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/allenshie/integration-core/internal/assign"
	"github.com/allenshie/integration-core/internal/config"
	"github.com/allenshie/integration-core/internal/coordinator"
	"github.com/allenshie/integration-core/internal/coordmap"
	"github.com/allenshie/integration-core/internal/costbuilder"
	"github.com/allenshie/integration-core/internal/dashboard"
	"github.com/allenshie/integration-core/internal/eventstore"
	"github.com/allenshie/integration-core/internal/gallery"
	"github.com/allenshie/integration-core/internal/healthrpc"
	"github.com/allenshie/integration-core/internal/ingestion"
	"github.com/allenshie/integration-core/internal/maprender"
	"github.com/allenshie/integration-core/internal/model"
	"github.com/allenshie/integration-core/internal/opslog"
	"github.com/allenshie/integration-core/internal/phase"
	"github.com/allenshie/integration-core/internal/phasepub"
	"github.com/allenshie/integration-core/internal/pipeline"
	"github.com/allenshie/integration-core/internal/recordsvc"
	"github.com/allenshie/integration-core/internal/registry"
	"github.com/allenshie/integration-core/internal/transport"
	"github.com/allenshie/integration-core/internal/workflow"
)

var (
	printConfigSummary = flag.Bool("print-config-summary", false, "Print the fully resolved configuration as JSON and exit")
	scheduleFlag       = flag.String("schedule", "", "Path to the pipeline/phase schedule document (overrides PIPELINE_SCHEDULE_PATH)")
)

func main() {
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	log.SetOutput(os.Stderr)

	var logFiles []*os.File
	opsPath := os.Getenv("MCMOTD_OPS_LOG")
	diagPath := os.Getenv("MCMOTD_DIAG_LOG")
	if opsPath != "" || diagPath != "" {
		fallback := firstNonEmpty(opsPath, diagPath)
		open := func(path string) io.Writer {
			if path == "" {
				path = fallback
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				log.Printf("warning: create log directory for %s: %v", path, err)
				return nil
			}
			f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
			if err != nil {
				log.Printf("warning: open log %s: %v", path, err)
				return nil
			}
			logFiles = append(logFiles, f)
			return f
		}
		ops := open(opsPath)
		diag := open(diagPath)
		wireLogWriters(ops, diag)
	}
	defer func() {
		for _, f := range logFiles {
			f.Close()
		}
	}()

	env, err := config.Load(config.OSLookup)
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}
	if *scheduleFlag != "" {
		env.PipelineSchedulePath = *scheduleFlag
	}

	if *printConfigSummary || env.ConfigSummary {
		printSummaryAndExit(env)
		return
	}

	if env.PipelineSchedulePath == "" {
		log.Fatal("PIPELINE_SCHEDULE_PATH is required")
	}
	scheduleBytes, err := os.ReadFile(env.PipelineSchedulePath)
	if err != nil {
		log.Fatalf("read schedule file: %v", err)
	}
	scheduleDoc, err := registry.ParseSchedule(scheduleBytes)
	if err != nil {
		log.Fatalf("parse schedule file: %v", err)
	}

	var mcmotCfg config.MCMOTConfig
	var coord *coordinator.Coordinator
	if env.MCMOTEnabled {
		mcmotCfg, err = config.LoadMCMOTConfig(env.MCMOTConfigPath)
		if err != nil {
			log.Fatalf("load mcmot config: %v", err)
		}
		coord, err = buildCoordinator(mcmotCfg)
		if err != nil {
			log.Fatalf("build mcmot coordinator: %v", err)
		}
	}

	store := eventstore.New(eventstore.DefaultCapacity)
	ingestionEngine := ingestion.New(durationSeconds(env.EdgeEventMaxAge))

	var renderer *maprender.Renderer
	if env.MCMOTEnabled && mcmotCfg.Map.ImagePath != "" {
		rc := maprender.DefaultConfig()
		rc.BaseImagePath = mcmotCfg.Map.ImagePath
		rc.MetersPerPixelX = mcmotCfg.MapConfig().MetersPerPixelX()
		rc.MetersPerPixelY = mcmotCfg.MapConfig().MetersPerPixelY()
		if outDir := os.Getenv("MCMOTD_MAP_OUTPUT_DIR"); outDir != "" {
			rc.OutputDir = outDir
		}
		renderer = maprender.New(rc)
	}

	pl := pipeline.New("main",
		pipeline.Node{Name: "ingestion", Enabled: true, Task: pipeline.IngestionNode{Engine: ingestionEngine}},
		pipeline.Node{Name: "tracking", Enabled: true, Task: pipeline.TrackingNode{Coordinator: coord, Enabled: env.MCMOTEnabled}},
		pipeline.Node{Name: "format", Enabled: true, Task: pipeline.FormatNode{Strategy: defaultFormatStrategy(renderer)}},
		pipeline.Node{Name: "rules", Enabled: true, Task: pipeline.RulesNode{Engine: noopRulesEngine{}}},
		pipeline.Node{Name: "dispatch", Enabled: true, Task: pipeline.DispatchNode{}},
	)

	factory := func(name string, spec registry.PipelineSpec) (*pipeline.Pipeline, error) {
		switch spec.Class {
		case "standard", "":
			return pl, nil
		default:
			return nil, fmt.Errorf("unknown pipeline class %q", spec.Class)
		}
	}
	reg, err := registry.Load(scheduleDoc, factory, config.OSLookup)
	if err != nil {
		log.Fatalf("load schedule: %v", err)
	}

	resolver := buildPhaseResolver(env)

	var opsDB *opslog.DB
	if path := os.Getenv("MCMOTD_OPSLOG_PATH"); path != "" {
		opsDB, err = opslog.Open(path)
		if err != nil {
			log.Fatalf("open opslog: %v", err)
		}
		defer opsDB.Close()
	}

	history := dashboard.NewHistory(500)

	pubRegistry := phasepub.NewRegistry()
	var backends []string
	if env.PhasePublishBackend != "" {
		backends = append(backends, env.PhasePublishBackend)
		switch env.PhasePublishBackend {
		case "http":
			if env.PhaseHTTPBaseURL != "" {
				pubRegistry.Register("http", transport.NewPhasePublishHTTP(env.PhaseHTTPBaseURL, 3*time.Second))
			}
		case "mqtt":
			if env.MQTTEnabled {
				client, err := transport.NewMQTTClient(transport.MQTTConfig{
					Host: env.MQTTHost, Port: env.MQTTPort,
					ClientID: firstNonEmpty(env.MQTTClientID, "mcmotd-publish"),
				})
				if err != nil {
					log.Printf("mqtt phase publisher unavailable: %v", err)
				} else {
					pubRegistry.Register("mqtt", transport.NewPhasePublishMQTT(client, env.PhaseMQTTTopic, byte(env.MQTTQoS), env.MQTTRetain))
				}
			}
		}
	}
	publisher := phasepub.New(pubRegistry, phasepub.Config{HeartbeatSeconds: env.MQTTHeartbeatSeconds}, backends...)

	lastEvent := &lastEventTracker{}
	eventResolver := eventAwareResolver{inner: resolver, tracker: lastEvent}

	cfg := workflow.DefaultConfig()
	cfg.LoopInterval = durationSeconds(env.LoopIntervalSeconds)
	cfg.RetryBackoff = durationSeconds(env.RetryBackoffSeconds)

	var healthSrv *healthrpc.Server

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sink := transport.SinkFunc(func(events []model.Event) { storeAppendAll(store, events) })

	switch env.EdgeEventBackend {
	case "mqtt":
		client, err := transport.NewMQTTClient(transport.MQTTConfig{Host: env.MQTTHost, Port: env.MQTTPort, ClientID: firstNonEmpty(env.MQTTClientID, "mcmotd-ingest")})
		if err != nil {
			log.Fatalf("mqtt ingestion client: %v", err)
		}
		sub, err := transport.NewMQTTIngestionSubscriber(client, env.EdgeEventsMQTTTopic, byte(env.MQTTQoS), sink)
		if err != nil {
			log.Fatalf("mqtt ingestion subscribe: %v", err)
		}
		defer sub.Close()
	default:
		handler := transport.NewIngestionHandler()
		handler.SetSink(sink)
		mux := http.NewServeMux()
		mux.Handle("/events", handler)
		if listen := os.Getenv("MCMOTD_DASHBOARD_LISTEN"); listen != "" {
			mux.Handle("/dashboard", dashboard.NewHandler(history))
		}
		addr := fmt.Sprintf("%s:%d", env.EdgeEventHost, env.EdgeEventPort)
		srv := &http.Server{Addr: addr, Handler: mux}
		wg.Add(1)
		go func() {
			defer wg.Done()
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http ingestion server error: %v", err)
			}
		}()
	}

	if listen := os.Getenv("MCMOTD_GRPC_HEALTH_LISTEN"); listen != "" {
		healthSrv = healthrpc.New()
		if err := healthSrv.Start(listen); err != nil {
			log.Fatalf("start health server: %v", err)
		}
		defer healthSrv.Stop()
		healthSrv.SetServing(false)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		firstCycle := true
		runner := workflow.New(cfg, eventResolver, reg, func(now time.Time) *pipeline.Context {
			raw := store.DrainAll()
			for _, ev := range raw {
				lastEvent.observe(ev.Timestamp)
			}
			ph := eventResolver.Resolve(phase.Context{Now: now})
			publisher.Maybe(ph.Name, now)
			history.Record(dashboard.Sample{At: now, Phase: ph.Name, GlobalCount: globalCount(coord)})
			if opsDB != nil {
				opsDB.RecordCycle(opslog.CycleRecord{At: now, Phase: ph.Name, PipelineName: "main", ResultKind: "accepted", GlobalCount: globalCount(coord)})
			}
			if healthSrv != nil && firstCycle {
				healthSrv.SetServing(true)
				firstCycle = false
			}
			return &pipeline.Context{Now: now, CycleID: uuid.New().String(), RawEvents: raw}
		})
		if err := runner.Run(ctx); err != nil {
			log.Fatalf("startup failed: %v", err)
		}
	}()

	wg.Wait()
	log.Printf("mcmotd: graceful shutdown complete")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func durationSeconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func wireLogWriters(ops, diag io.Writer) {
	eventstore.SetLogWriters(ops)
	ingestion.SetLogWriters(ops)
	phase.SetLogWriters(ops)
	registry.SetLogWriters(ops)
	healthrpc.SetLogWriters(ops)
	assign.SetLogWriters(ops)
	gallery.SetLogWriters(ops, diag)
	coordinator.SetLogWriters(ops, diag)
	pipeline.SetLogWriters(ops, diag)
	workflow.SetLogWriters(ops, diag)
	phasepub.SetLogWriters(ops, diag)
	maprender.SetLogWriters(ops, diag)
	transport.SetLogWriters(ops, diag)
}

func storeAppendAll(store *eventstore.Store, events []model.Event) {
	for _, ev := range events {
		store.Append(ev)
	}
}

// buildCoordinator wires cameras, mappers, record service, and gallery from
// the parsed MCMOT YAML document.
func buildCoordinator(cfg config.MCMOTConfig) (*coordinator.Coordinator, error) {
	cameraConfigs := cfg.CameraConfigs()
	mode := coordmap.ModeProjective
	if cfg.System.CoordinateTransformMode == "tps" || cfg.System.CoordinateTransformMode == "dense" {
		mode = coordmap.ModeDense
	}

	mappers := make(map[string]coordmap.Mapper, len(cameraConfigs))
	cameras := make([]model.CameraConfig, 0, len(cameraConfigs))
	for id, cam := range cameraConfigs {
		cameras = append(cameras, cam)
		if !cam.Enabled {
			continue
		}
		if cam.TransformPath == "" {
			continue
		}
		m, err := coordmap.Load(mode, cam.TransformPath)
		if err != nil {
			return nil, fmt.Errorf("camera %s: %w", id, err)
		}
		mappers[id] = m
	}

	records := recordsvc.New(recordsvc.DefaultExpiry)

	gCfg := gallery.DefaultConfig()
	gCfg.MatchThreshold = cfg.Tracking.MatchThreshold
	if cfg.Tracking.DistanceThresholdM != nil {
		gCfg.DistanceThresholdM = *cfg.Tracking.DistanceThresholdM
	}
	gCfg.MetersPerUnit = cfg.MapConfig().MetersPerPixelX()
	costCfg := costbuilder.DefaultConfig()
	if cfg.Tracking.MaxTrajLoss > 0 {
		costCfg.MaxTrajLoss = cfg.Tracking.MaxTrajLoss
	}
	gCfg.Cost = costCfg
	gal := gallery.New(gCfg)

	return coordinator.New(coordinator.Config{
		Cameras:          cameras,
		Mappers:          mappers,
		TrackableClasses: cfg.Tracking.TrackableClasses,
		Records:          records,
		Gallery:          gal,
	}), nil
}

func globalCount(c *coordinator.Coordinator) int {
	if c == nil {
		return 0
	}
	return len(c.GetAllGlobalObjects())
}

type cycleSummary struct {
	TrackedCount int `json:"tracked_count"`
	GlobalCount  int `json:"global_count"`
}

func defaultFormatStrategy(renderer *maprender.Renderer) pipeline.FormatStrategy {
	return pipeline.FormatStrategyFunc(func(tracked, globals []*model.ObjectRecord, now time.Time) interface{} {
		if renderer != nil {
			locals := make([]maprender.LocalObject, 0, len(tracked))
			for _, t := range tracked {
				var x, y float64
				if len(t.GlobalTrajectory) > 0 {
					last := t.GlobalTrajectory[len(t.GlobalTrajectory)-1]
					x, y = last.X, last.Y
				}
				localID := 0
				if t.LocalID != nil {
					localID = *t.LocalID
				}
				locals = append(locals, maprender.LocalObject{
					CameraID: t.CameraID, LocalID: localID, Class: t.ClassName,
					GlobalPosition: model.Point{X: x, Y: y}, MatchedGlobal: t.GlobalID,
				})
			}
			if _, err := renderer.Render(globals, locals, now); err != nil {
				log.Printf("map render failed: %v", err)
			}
		}
		return cycleSummary{TrackedCount: len(tracked), GlobalCount: len(globals)}
	})
}

type noopRulesEngine struct{}

func (noopRulesEngine) Evaluate(payload interface{}, now time.Time) []pipeline.RuleEvent { return nil }

// lastEventTracker records the most recent edge event timestamp seen across
// cycles, so the debounced phase resolver's staleness check has something
// to compare against even though the workflow runner builds a fresh
// phase.Context per cycle.
type lastEventTracker struct {
	mu   sync.Mutex
	last time.Time
	has  bool
}

func (t *lastEventTracker) observe(ts time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.has || ts.After(t.last) {
		t.last = ts
		t.has = true
	}
}

func (t *lastEventTracker) snapshot() (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last, t.has
}

// eventAwareResolver adapts a phase.Resolver so it always resolves against
// the daemon's actual last-seen edge event time, independent of whatever
// the caller populates on the phase.Context it passes in.
type eventAwareResolver struct {
	inner   phase.Resolver
	tracker *lastEventTracker
}

func (r eventAwareResolver) Resolve(ctx phase.Context) model.Phase {
	last, has := r.tracker.snapshot()
	ctx.LastEventTime = last
	ctx.HasLastEvent = has
	return r.inner.Resolve(ctx)
}

func buildPhaseResolver(env config.Env) phase.Resolver {
	windows := parseWorkingHoursWindows(os.Getenv("WORKING_HOURS_WINDOWS"))
	inner := phase.NewTimeWindowResolver(windows)

	dcfg := phase.DefaultDebouncedConfig()
	dcfg.StableAfter = durationSeconds(env.PhaseStableSeconds)
	if env.EdgeEventStaleSeconds > 0 {
		dcfg.StaleAfter = durationSeconds(env.EdgeEventStaleSeconds)
	}
	if env.EdgeEventStaleMode == config.StaleModeUnknown {
		dcfg.StalePolicy = phase.StalenessUnknown
		dcfg.UnknownPhase = model.Phase{Name: firstNonEmpty(env.EdgeEventUnknownPhase, "unknown")}
	}
	return phase.NewDebounced(inner, dcfg)
}

// parseWorkingHoursWindows parses a comma-separated "HH:MM-HH:MM" list into
// half-open time-of-day windows. An empty or unparseable spec falls back to
// a single window spanning the full day, so a fresh deployment with no
// configured hours defaults to "always working" rather than silently idling.
func parseWorkingHoursWindows(spec string) []phase.Window {
	if spec == "" {
		return []phase.Window{{Start: 0, End: 24 * time.Hour}}
	}
	var windows []phase.Window
	for _, part := range splitComma(spec) {
		start, end, ok := parseWindowRange(part)
		if !ok {
			continue
		}
		windows = append(windows, phase.Window{Start: start, End: end})
	}
	if len(windows) == 0 {
		return []phase.Window{{Start: 0, End: 24 * time.Hour}}
	}
	return windows
}

func splitComma(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ',' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

func parseWindowRange(s string) (time.Duration, time.Duration, bool) {
	dash := -1
	for i := 0; i < len(s); i++ {
		if s[i] == '-' {
			dash = i
			break
		}
	}
	if dash < 0 {
		return 0, 0, false
	}
	start, ok1 := parseClock(s[:dash])
	end, ok2 := parseClock(s[dash+1:])
	if !ok1 || !ok2 {
		return 0, 0, false
	}
	return start, end, true
}

func parseClock(s string) (time.Duration, bool) {
	var h, m int
	if n, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil || n != 2 {
		return 0, false
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute, true
}

func printSummaryAndExit(env config.Env) {
	summary := map[string]interface{}{
		"env": env,
	}
	if env.PipelineSchedulePath != "" {
		if data, err := os.ReadFile(env.PipelineSchedulePath); err == nil {
			var doc registry.ScheduleDocument
			if err := json.Unmarshal(data, &doc); err == nil {
				summary["schedule"] = doc
			}
		}
	}
	if env.MCMOTEnabled && env.MCMOTConfigPath != "" {
		if mcmotCfg, err := config.LoadMCMOTConfig(env.MCMOTConfigPath); err == nil {
			summary["mcmot"] = mcmotCfg
		}
	}
	out, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		log.Fatalf("marshal config summary: %v", err)
	}
	fmt.Println(string(out))
	os.Exit(0)
}
