package gallery

import (
	"testing"
	"time"

	"github.com/allenshie/integration-core/internal/model"
	"github.com/stretchr/testify/require"
)

func intp(v int) *int { return &v }

func localRecord(camera string, localID int, class string, t time.Time, x, y float64) *model.ObjectRecord {
	return &model.ObjectRecord{
		CameraID:        camera,
		ClassName:       class,
		LocalID:         intp(localID),
		LocalTrajectory: []model.TrajectoryPoint{{Timestamp: t, X: x, Y: y}},
	}
}

// Scenario 1: single camera, single person, steady — promotion on hit 5.
func TestPromotionAfterConfirmationFrames(t *testing.T) {
	g := New(DefaultConfig())
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	var lastGID string
	for i := 0; i < 5; i++ {
		ts := base.Add(time.Duration(i) * time.Second)
		local := localRecord("cam_a", 1, "person", ts, float64(i*5), 0)
		g.Process("cam_a", []*model.ObjectRecord{local}, ts)
		lastGID = local.GlobalID
	}

	require.Equal(t, "0", lastGID, "P4: first allocated global id is 0")
	gid, ok := g.GlobalID("cam_a", 1)
	require.True(t, ok)
	require.Equal(t, "0", gid)

	objs := g.AllGlobalObjects()
	require.Len(t, objs, 1)
}

// P4: monotone global ids across independent promotions.
func TestGlobalIDsMonotoneIncreasing(t *testing.T) {
	g := New(DefaultConfig())
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	promote := func(camera string, localID int) string {
		var gid string
		for i := 0; i < 5; i++ {
			ts := base.Add(time.Duration(i) * time.Second)
			local := localRecord(camera, localID, "person", ts, float64(i), float64(localID*100))
			g.Process(camera, []*model.ObjectRecord{local}, ts)
			gid = local.GlobalID
		}
		return gid
	}

	first := promote("cam_a", 1)
	second := promote("cam_b", 2)
	require.Equal(t, "0", first)
	require.Equal(t, "1", second)
}

// P3: class isolation — a local of class A never matches a global of class B.
func TestClassIsolation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MatchThreshold = 1e9 // accept any cost, to prove class filtering alone blocks cross-class matches
	g := New(cfg)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	// Promote a "vehicle" global at the origin.
	for i := 0; i < 5; i++ {
		ts := base.Add(time.Duration(i) * time.Second)
		local := localRecord("cam_a", 1, "vehicle", ts, 0, 0)
		g.Process("cam_a", []*model.ObjectRecord{local}, ts)
	}
	require.Len(t, g.AllGlobalObjects(), 1)

	// A "person" local at the exact same coordinates must start its own
	// candidate chain, never match the vehicle global.
	ts := base.Add(10 * time.Second)
	person := localRecord("cam_b", 9, "person", ts, 0, 0)
	g.Process("cam_b", []*model.ObjectRecord{person}, ts)
	require.Contains(t, person.GlobalID, "candidate_")
}

// P6: eviction — globals older than the clear threshold disappear.
func TestGalleryEvictsStaleGlobals(t *testing.T) {
	g := New(DefaultConfig())
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		ts := base.Add(time.Duration(i) * time.Second)
		local := localRecord("cam_a", 1, "person", ts, 0, 0)
		g.Process("cam_a", []*model.ObjectRecord{local}, ts)
	}
	require.Len(t, g.AllGlobalObjects(), 1)

	// No events for 61s for this class; a later batch for an unrelated
	// camera triggers the eviction sweep.
	future := base.Add(5 * time.Second).Add(61 * time.Second)
	g.Process("cam_z", nil, future)
	require.Len(t, g.AllGlobalObjects(), 0)
}

// P7: trajectory fusion never rewrites points at or before the prior max timestamp.
func TestApplyPendingUpdatesMonotonic(t *testing.T) {
	g := New(DefaultConfig())
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	var gid string
	for i := 0; i < 5; i++ {
		ts := base.Add(time.Duration(i) * time.Second)
		local := localRecord("cam_a", 1, "person", ts, float64(i), 0)
		g.Process("cam_a", []*model.ObjectRecord{local}, ts)
		gid = local.GlobalID
	}
	g.ApplyPendingUpdates(base.Add(4 * time.Second))

	before := g.AllGlobalObjects()[0].Trajectory
	require.NotEmpty(t, before)
	snapshot := append([]model.TrajectoryPoint(nil), before...)

	// One more sighting, close enough to the existing global to match and
	// contribute a new point after T*.
	ts := base.Add(5 * time.Second)
	local := localRecord("cam_a", 1, "person", ts, 5, 0)
	local.GlobalID = gid
	g.Process("cam_a", []*model.ObjectRecord{local}, ts)
	g.ApplyPendingUpdates(ts)

	after := g.AllGlobalObjects()[0].Trajectory
	for i, p := range snapshot {
		require.Equal(t, p.X, after[i].X)
		require.Equal(t, p.Y, after[i].Y)
	}
	require.Greater(t, len(after), len(snapshot))
}
