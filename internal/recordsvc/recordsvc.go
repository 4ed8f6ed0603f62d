// Package recordsvc owns the per-camera, per-local-track sliding trajectory
// buffers the MCMOT coordinator annotates each detected object with before
// cross-camera association. Buffers are bounded deques wrapped in a
// time-expiring container so idle local tracks are forgotten without an
// explicit eviction pass.
package recordsvc

import (
	"time"

	"github.com/allenshie/integration-core/internal/model"
	"github.com/allenshie/integration-core/internal/ttlmap"
)

// MaxPoints is the bounded deque length per local track (spec: 30).
const MaxPoints = 30

// DefaultExpiry is how long an idle local track's buffer survives before it
// is forgotten (spec: 60s).
const DefaultExpiry = 60 * time.Second

// Service owns one TTL-wrapped map of local-track buffers per camera.
type Service struct {
	expiry  time.Duration
	cameras map[string]*ttlmap.TTLMap[int, []model.TrajectoryPoint]
}

// New creates a Service whose per-track buffers expire after expiry. A
// non-positive expiry falls back to DefaultExpiry.
func New(expiry time.Duration) *Service {
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	return &Service{expiry: expiry, cameras: make(map[string]*ttlmap.TTLMap[int, []model.TrajectoryPoint])}
}

func (s *Service) cameraMap(camera string) *ttlmap.TTLMap[int, []model.TrajectoryPoint] {
	m, ok := s.cameras[camera]
	if !ok {
		m = ttlmap.New[int, []model.TrajectoryPoint](s.expiry)
		s.cameras[camera] = m
	}
	return m
}

// RecordObjects appends one trajectory point per object to that object's
// local_id buffer, then writes the resulting deque back onto the object as
// LocalTrajectory. Objects without a LocalID are skipped.
//
// The point for objects[i] is points[i] (the caller passes the bbox
// bottom-center), so that callers needn't expose raw Detection internals to
// this package.
func (s *Service) RecordObjects(camera string, objects []*model.ObjectRecord, points []model.Point, timestamp time.Time) {
	cm := s.cameraMap(camera)
	for i, obj := range objects {
		if obj.LocalID == nil {
			continue
		}
		localID := *obj.LocalID
		buf, _ := cm.Get(localID, timestamp)
		buf = append(buf, model.TrajectoryPoint{Timestamp: timestamp, X: points[i].X, Y: points[i].Y})
		if len(buf) > MaxPoints {
			buf = buf[len(buf)-MaxPoints:]
		}
		cm.Set(localID, buf, timestamp)
		obj.LocalTrajectory = append([]model.TrajectoryPoint(nil), buf...)
	}
}

// Cleanup removes expired track buffers from every camera's map, including
// cameras that have gone fully silent; the per-camera maps themselves are
// kept.
func (s *Service) Cleanup(now time.Time) {
	for _, cm := range s.cameras {
		cm.Cleanup(now)
	}
}

// Trajectory returns the current buffer for a (camera, local_id) pair, or
// nil if absent/expired.
func (s *Service) Trajectory(camera string, localID int, now time.Time) []model.TrajectoryPoint {
	cm, ok := s.cameras[camera]
	if !ok {
		return nil
	}
	buf, ok := cm.Get(localID, now)
	if !ok {
		return nil
	}
	return buf
}
