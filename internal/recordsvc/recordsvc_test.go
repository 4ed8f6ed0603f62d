package recordsvc

import (
	"testing"
	"time"

	"github.com/allenshie/integration-core/internal/model"
	"github.com/stretchr/testify/require"
)

func intp(v int) *int { return &v }

func TestRecordObjectsAppendsAndBounds(t *testing.T) {
	s := New(60 * time.Second)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < MaxPoints+5; i++ {
		obj := &model.ObjectRecord{CameraID: "cam_a", LocalID: intp(1)}
		s.RecordObjects("cam_a", []*model.ObjectRecord{obj}, []model.Point{{X: float64(i), Y: 0}}, now.Add(time.Duration(i)*time.Second))
		require.LessOrEqual(t, len(obj.LocalTrajectory), MaxPoints)
	}

	traj := s.Trajectory("cam_a", 1, now.Add(time.Duration(MaxPoints+5)*time.Second))
	require.Len(t, traj, MaxPoints)
	// Oldest points should have been dropped; the last point is the most recent append.
	require.Equal(t, float64(MaxPoints+4), traj[len(traj)-1].X)
}

func TestRecordServiceExpiresIdleTracks(t *testing.T) {
	s := New(10 * time.Second)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	obj := &model.ObjectRecord{CameraID: "cam_a", LocalID: intp(1)}
	s.RecordObjects("cam_a", []*model.ObjectRecord{obj}, []model.Point{{X: 0, Y: 0}}, now)

	require.NotNil(t, s.Trajectory("cam_a", 1, now.Add(5*time.Second)))
	require.Nil(t, s.Trajectory("cam_a", 1, now.Add(11*time.Second)))
}
