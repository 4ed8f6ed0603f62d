// Package gallery owns the global object set: candidate promotion, strictly
// per-class cross-camera matching, trajectory fusion, stale eviction, and
// the optional distance guard. Its map-of-maps layout and copy-out
// accessors are grounded on the per-sensor multi-object tracker's
// RWMutex-guarded track table, generalized from a single sensor's local
// tracks to a cross-camera global identity space.
package gallery

import (
	"io"
	"log"
	"math"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/allenshie/integration-core/internal/assign"
	"github.com/allenshie/integration-core/internal/costbuilder"
	"github.com/allenshie/integration-core/internal/model"
	"gonum.org/v1/gonum/stat"
)

var (
	opsLogger  *log.Logger
	diagLogger *log.Logger
)

// SetLogWriters configures the gallery's ops/diag logging streams. Pass nil
// to disable a stream.
func SetLogWriters(ops, diag io.Writer) {
	opsLogger = newLogger("[gallery] ", ops)
	diagLogger = newLogger("[gallery] ", diag)
}

func newLogger(prefix string, w io.Writer) *log.Logger {
	if w == nil {
		return nil
	}
	return log.New(w, prefix, log.LstdFlags|log.Lmicroseconds)
}

func opsf(format string, args ...interface{}) {
	if opsLogger != nil {
		opsLogger.Printf(format, args...)
	}
}

func diagf(format string, args ...interface{}) {
	if diagLogger != nil {
		diagLogger.Printf(format, args...)
	}
}

// Defaults per spec §4.6.
const (
	DefaultConfirmationFrames = 5
	DefaultCandidateThreshold = 10 * time.Second
	DefaultClearThreshold     = 60 * time.Second
)

// Config parameterizes gallery matching and lifecycle policy.
type Config struct {
	ConfirmationFrames int
	CandidateThreshold time.Duration
	ClearThreshold     time.Duration
	MatchThreshold     float64
	DistanceThresholdM float64 // 0 disables the distance guard
	MetersPerUnit      float64 // 0 means "no valid map scale"
	Cost               costbuilder.Config
}

// DefaultConfig returns the spec's default gallery tuning.
func DefaultConfig() Config {
	return Config{
		ConfirmationFrames: DefaultConfirmationFrames,
		CandidateThreshold: DefaultCandidateThreshold,
		ClearThreshold:     DefaultClearThreshold,
		MatchThreshold:     0.7,
		Cost:               costbuilder.DefaultConfig(),
	}
}

type candidateKey struct {
	camera  string
	localID int
}

type pendingUpdate struct {
	trajectories [][]model.TrajectoryPoint
	features     [][]float64
}

// Gallery is the cross-camera global object set.
type Gallery struct {
	mu sync.RWMutex

	cfg Config

	globalObjects map[string]*model.ObjectRecord
	candidates    map[candidateKey]*model.CandidateRecord
	localGlobal   map[string]map[int]string // camera -> local_id -> global/candidate id
	pending       map[string]*pendingUpdate

	nextGlobalID int

	warnedNoScale bool
}

// New creates an empty Gallery.
func New(cfg Config) *Gallery {
	if cfg.ConfirmationFrames <= 0 {
		cfg.ConfirmationFrames = DefaultConfirmationFrames
	}
	if cfg.CandidateThreshold <= 0 {
		cfg.CandidateThreshold = DefaultCandidateThreshold
	}
	if cfg.ClearThreshold <= 0 {
		cfg.ClearThreshold = DefaultClearThreshold
	}
	return &Gallery{
		cfg:           cfg,
		globalObjects: make(map[string]*model.ObjectRecord),
		candidates:    make(map[candidateKey]*model.CandidateRecord),
		localGlobal:   make(map[string]map[int]string),
		pending:       make(map[string]*pendingUpdate),
	}
}

// Process runs one event batch for camera c at time t through the gallery:
// eviction, per-class matching, candidate handling, and local->global
// mapping refresh (spec §4.6 steps 1-6). ApplyPendingUpdates must be called
// separately at cycle end to flush fused trajectories (step 7).
func (g *Gallery) Process(camera string, locals []*model.ObjectRecord, t time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.evict(t)

	byClass := make(map[string][]*model.ObjectRecord)
	for _, l := range locals {
		byClass[l.ClassName] = append(byClass[l.ClassName], l)
	}

	assigned := make(map[int]string) // local_id -> assigned global/candidate id, for mapping refresh

	for class, group := range byClass {
		globalIDs := g.globalIDsForClass(class)
		if len(globalIDs) == 0 {
			for _, l := range group {
				gid := g.candidateHandling(camera, l, t)
				if l.LocalID != nil {
					assigned[*l.LocalID] = gid
				}
			}
			continue
		}

		globalRecords := make([]costbuilder.Record, len(globalIDs))
		for i, gid := range globalIDs {
			obj := g.globalObjects[gid]
			globalRecords[i] = costbuilder.Record{Trajectory: obj.Trajectory, Feature: obj.Feature}
		}
		localRecords := make([]costbuilder.Record, len(group))
		for i, l := range group {
			localRecords[i] = costbuilder.Record{Trajectory: worldTrajectory(l), Feature: l.Feature}
		}

		matrix := costbuilder.Matrix(localRecords, globalRecords, t, g.cfg.Cost)
		matches := assign.Solve(matrix, g.cfg.MatchThreshold)

		matchedRows := make(map[int]bool)
		for _, m := range matches {
			local := group[m.Row]
			gid := globalIDs[m.Col]
			if g.distanceGuardRejects(local, g.globalObjects[gid]) {
				continue
			}
			matchedRows[m.Row] = true
			g.stashPending(gid, local)
			local.GlobalID = gid
			g.clearCandidateIfPresent(camera, local)
			if local.LocalID != nil {
				assigned[*local.LocalID] = gid
			}
		}

		for i, l := range group {
			if matchedRows[i] {
				continue
			}
			gid := g.candidateHandling(camera, l, t)
			if l.LocalID != nil {
				assigned[*l.LocalID] = gid
			}
		}
	}

	camMap, ok := g.localGlobal[camera]
	if !ok {
		camMap = make(map[int]string)
		g.localGlobal[camera] = camMap
	}
	for localID, gid := range assigned {
		camMap[localID] = gid
	}
}

// worldTrajectory returns a local record's world-space trajectory (as
// written by the coordinate mapper) when present, falling back to its raw
// trajectory for cameras with no mapper loaded.
func worldTrajectory(obj *model.ObjectRecord) []model.TrajectoryPoint {
	if len(obj.GlobalTrajectory) > 0 {
		return obj.GlobalTrajectory
	}
	return obj.LocalTrajectory
}

// globalIDsForClass returns the global ids currently holding class.
func (g *Gallery) globalIDsForClass(class string) []string {
	var out []string
	for id, obj := range g.globalObjects {
		if obj.ClassName == class {
			out = append(out, id)
		}
	}
	sort.Strings(out) // deterministic column ordering given a fixed global set
	return out
}

// distanceGuardRejects implements §4.6.2.
func (g *Gallery) distanceGuardRejects(local, global *model.ObjectRecord) bool {
	if g.cfg.DistanceThresholdM <= 0 {
		return false
	}
	localTraj := worldTrajectory(local)
	if len(localTraj) == 0 || len(global.Trajectory) == 0 {
		return false
	}
	if g.cfg.MetersPerUnit <= 0 {
		if !g.warnedNoScale {
			opsf("distance guard configured but no valid map scale; skipping guard")
			g.warnedNoScale = true
		}
		return false
	}
	lp := localTraj[len(localTraj)-1]
	gp := global.Trajectory[len(global.Trajectory)-1]
	distUnits := math.Hypot(lp.X-gp.X, lp.Y-gp.Y)
	distM := distUnits * g.cfg.MetersPerUnit
	return distM > g.cfg.DistanceThresholdM
}

func (g *Gallery) stashPending(gid string, local *model.ObjectRecord) {
	pu, ok := g.pending[gid]
	if !ok {
		pu = &pendingUpdate{}
		g.pending[gid] = pu
	}
	pu.trajectories = append(pu.trajectories, append([]model.TrajectoryPoint(nil), worldTrajectory(local)...))
	if len(local.Feature) > 0 {
		pu.features = append(pu.features, local.Feature)
	}
}

func (g *Gallery) clearCandidateIfPresent(camera string, local *model.ObjectRecord) {
	if local.LocalID == nil {
		return
	}
	delete(g.candidates, candidateKey{camera: camera, localID: *local.LocalID})
}

// candidateHandling implements §4.6.1.
func (g *Gallery) candidateHandling(camera string, local *model.ObjectRecord, t time.Time) string {
	if local.LocalID == nil {
		return local.GlobalID
	}
	key := candidateKey{camera: camera, localID: *local.LocalID}
	candID := "candidate_" + camera + "_" + strconv.Itoa(*local.LocalID)
	cand, ok := g.candidates[key]
	if !ok {
		cand = &model.CandidateRecord{Hits: 1, FirstSeen: t}
		g.candidates[key] = cand
	} else {
		cand.Hits++
	}
	local.GlobalID = candID
	cand.Data = local.Clone()
	cand.LastSeen = t

	if cand.Hits >= g.cfg.ConfirmationFrames {
		gid := strconv.Itoa(g.nextGlobalID)
		g.nextGlobalID++
		global := &model.ObjectRecord{
			CameraID:   camera,
			ClassName:  local.ClassName,
			GlobalID:   gid,
			Trajectory: append([]model.TrajectoryPoint(nil), worldTrajectory(local)...),
			Feature:    append([]float64(nil), local.Feature...),
			UpdateTime: t,
		}
		g.globalObjects[gid] = global
		local.GlobalID = gid
		delete(g.candidates, key)
		diagf("promoted candidate camera=%s local=%d to global=%s after %d hits", camera, *local.LocalID, gid, cand.Hits)
		return gid
	}

	return candID
}

// evict implements step 1: drop stale globals and idle candidates.
func (g *Gallery) evict(t time.Time) {
	for id, obj := range g.globalObjects {
		if t.Sub(obj.UpdateTime) > g.cfg.ClearThreshold {
			delete(g.globalObjects, id)
			delete(g.pending, id)
			diagf("evicted stale global=%s age=%s", id, t.Sub(obj.UpdateTime))
		}
	}
	for key, cand := range g.candidates {
		if t.Sub(cand.LastSeen) > g.cfg.CandidateThreshold {
			delete(g.candidates, key)
		}
	}
}

// ApplyPendingUpdates flushes fused trajectories/features into their global
// records (spec §4.6 step 7 / §4.6.3). Call once per cycle after all camera
// batches have been processed.
func (g *Gallery) ApplyPendingUpdates(now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for gid, pu := range g.pending {
		obj, ok := g.globalObjects[gid]
		if !ok {
			opsf("pending update for missing global=%s, skipping", gid)
			delete(g.pending, gid)
			continue
		}

		var tStar time.Time
		if len(obj.Trajectory) > 0 {
			tStar = obj.Trajectory[len(obj.Trajectory)-1].Timestamp
		}

		contrib := make(map[int64][]model.Point)
		for _, traj := range pu.trajectories {
			for _, p := range traj {
				if p.Timestamp.After(tStar) {
					key := p.Timestamp.UnixNano()
					contrib[key] = append(contrib[key], model.Point{X: p.X, Y: p.Y})
				}
			}
		}

		var newPoints []model.TrajectoryPoint
		for key, pts := range contrib {
			var sx, sy float64
			for _, p := range pts {
				sx += p.X
				sy += p.Y
			}
			n := float64(len(pts))
			newPoints = append(newPoints, model.TrajectoryPoint{
				Timestamp: time.Unix(0, key).UTC(),
				X:         sx / n,
				Y:         sy / n,
			})
		}
		sort.Slice(newPoints, func(i, j int) bool { return newPoints[i].Timestamp.Before(newPoints[j].Timestamp) })
		obj.Trajectory = append(obj.Trajectory, newPoints...)

		if len(pu.features) > 0 {
			obj.Feature = averageFeatures(pu.features)
		}
		obj.UpdateTime = now

		delete(g.pending, gid)
	}
}

// averageFeatures fuses one candidate's pending feature observations into a
// single vector, taking the per-dimension mean across observations that
// share the first observation's dimensionality (mismatched-length vectors
// are dropped rather than corrupting the fusion).
func averageFeatures(features [][]float64) []float64 {
	if len(features) == 0 {
		return nil
	}
	dim := len(features[0])
	columns := make([][]float64, dim)
	for _, f := range features {
		if len(f) != dim {
			continue
		}
		for i, v := range f {
			columns[i] = append(columns[i], v)
		}
	}
	if len(columns[0]) == 0 {
		return nil
	}
	out := make([]float64, dim)
	for i, col := range columns {
		out[i] = stat.Mean(col, nil)
	}
	return out
}

// GlobalID returns the resolved global/candidate id for (camera, localID),
// and whether a mapping exists.
func (g *Gallery) GlobalID(camera string, localID int) (string, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	cm, ok := g.localGlobal[camera]
	if !ok {
		return "", false
	}
	gid, ok := cm[localID]
	return gid, ok
}

// AllGlobalObjects returns a deep-copied snapshot of every current global
// record, safe for a caller to retain.
func (g *Gallery) AllGlobalObjects() []*model.ObjectRecord {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*model.ObjectRecord, 0, len(g.globalObjects))
	for _, obj := range g.globalObjects {
		out = append(out, obj.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GlobalID < out[j].GlobalID })
	return out
}

// NextGlobalID reports the next id that would be allocated, for tests and
// diagnostics.
func (g *Gallery) NextGlobalID() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nextGlobalID
}
