// Package coordinator implements the per-event MCMOT orchestration: filter
// to trackable classes, record trajectories, transform to world coordinates,
// apply the camera's ignore polygon, then hand the survivors to the
// gallery. Its stage-numbered structure mirrors the per-sensor tracking
// pipeline's foreground->transform->cluster->track->publish orchestration,
// generalized here from one sensor's frame callback to one camera's event
// batch.
package coordinator

import (
	"io"
	"log"
	"time"

	"github.com/allenshie/integration-core/internal/coordmap"
	"github.com/allenshie/integration-core/internal/gallery"
	"github.com/allenshie/integration-core/internal/model"
	"github.com/allenshie/integration-core/internal/recordsvc"
)

var (
	opsLogger  *log.Logger
	diagLogger *log.Logger
)

// SetLogWriters configures the coordinator's ops/diag logging streams.
func SetLogWriters(ops, diag io.Writer) {
	opsLogger = newLogger("[coordinator] ", ops)
	diagLogger = newLogger("[coordinator] ", diag)
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

// PointInPolygon reports whether p lies inside polygon, using the standard
// ray-casting test. An empty polygon contains nothing.
func PointInPolygon(p model.Point, polygon []model.Point) bool {
	if len(polygon) < 3 {
		return false
	}
	inside := false
	j := len(polygon) - 1
	for i := 0; i < len(polygon); i++ {
		pi, pj := polygon[i], polygon[j]
		if ((pi.Y > p.Y) != (pj.Y > p.Y)) &&
			(p.X < (pj.X-pi.X)*(p.Y-pi.Y)/(pj.Y-pi.Y)+pi.X) {
			inside = !inside
		}
		j = i
	}
	return inside
}

// Coordinator holds the camera registry, one mapper per enabled camera, the
// record service, and the gallery, and orchestrates per-event processing.
type Coordinator struct {
	cameras map[string]model.CameraConfig
	aliases map[string]string // edge_id -> daemon camera id
	mappers map[string]coordmap.Mapper

	trackableClasses map[string]bool

	records *recordsvc.Service
	gallery *gallery.Gallery
}

// Config carries the coordinator's static, write-once-then-read-only
// dependencies.
type Config struct {
	Cameras          []model.CameraConfig
	Mappers          map[string]coordmap.Mapper // keyed by CameraConfig.ID
	TrackableClasses []string
	Records          *recordsvc.Service
	Gallery          *gallery.Gallery
}

// New builds a Coordinator from a static deployment configuration.
func New(cfg Config) *Coordinator {
	c := &Coordinator{
		cameras:          make(map[string]model.CameraConfig),
		aliases:          make(map[string]string),
		mappers:          cfg.Mappers,
		trackableClasses: make(map[string]bool),
		records:          cfg.Records,
		gallery:          cfg.Gallery,
	}
	for _, cam := range cfg.Cameras {
		c.cameras[cam.ID] = cam
		if cam.EdgeID != "" {
			c.aliases[cam.EdgeID] = cam.ID
		}
	}
	for _, cls := range cfg.TrackableClasses {
		c.trackableClasses[cls] = true
	}
	return c
}

// resolveCamera resolves a wire-level camera identifier (which may be an
// edge-side alias) to its daemon-side config.
func (c *Coordinator) resolveCamera(id string) (model.CameraConfig, bool) {
	if cam, ok := c.cameras[id]; ok {
		return cam, true
	}
	if daemonID, ok := c.aliases[id]; ok {
		return c.cameras[daemonID], true
	}
	return model.CameraConfig{}, false
}

// ProcessDetectedObjects implements §4.7: resolve camera, filter to
// trackable classes, record trajectories, transform to world coordinates,
// apply the ignore polygon, hand survivors to the gallery, and annotate the
// result with resolved global ids.
func (c *Coordinator) ProcessDetectedObjects(detections []model.Detection, cameraID string, timestamp time.Time) []*model.ObjectRecord {
	cam, ok := c.resolveCamera(cameraID)
	if !ok || !cam.Enabled {
		opsf("unknown or disabled camera %q, dropping batch", cameraID)
		return nil
	}

	objects := make([]*model.ObjectRecord, 0, len(detections))
	points := make([]model.Point, 0, len(detections))
	for _, d := range detections {
		if !d.Valid() {
			continue
		}
		if len(c.trackableClasses) > 0 && !c.trackableClasses[d.ClassName] {
			continue
		}
		localID := d.LocalID
		bx, by := d.BottomCenter()
		objects = append(objects, &model.ObjectRecord{
			CameraID:  cam.ID,
			ClassName: d.ClassName,
			LocalID:   &localID,
			Feature:   d.Feature,
		})
		points = append(points, model.Point{X: bx, Y: by})
	}
	if len(objects) == 0 {
		return nil
	}

	if c.records != nil {
		c.records.RecordObjects(cam.ID, objects, points, timestamp)
	}

	mapper := c.mappers[cam.ID]
	if mapper == nil {
		opsf("no coordinate mapper loaded for camera %q; objects pass through without global_trajectory", cam.ID)
	}

	survivors := make([]*model.ObjectRecord, 0, len(objects))
	for i, obj := range objects {
		if mapper != nil {
			worldPts := make([]model.TrajectoryPoint, 0, len(obj.LocalTrajectory))
			for _, lp := range obj.LocalTrajectory {
				wp, err := mapper.Transform(model.Point{X: lp.X, Y: lp.Y}, false)
				if err != nil {
					opsf("transform failed for camera %q object local_id=%d: %v", cam.ID, *obj.LocalID, err)
					continue
				}
				worldPts = append(worldPts, model.TrajectoryPoint{Timestamp: lp.Timestamp, X: wp.X, Y: wp.Y})
			}
			obj.GlobalTrajectory = worldPts
		}

		if len(cam.IgnorePolygon) > 0 {
			if PointInPolygon(points[i], cam.IgnorePolygon) {
				diagf("camera %q: object local_id=%d inside ignore polygon, dropping", cam.ID, *obj.LocalID)
				continue
			}
		}
		survivors = append(survivors, obj)
	}
	if len(survivors) == 0 {
		return nil
	}

	if c.gallery != nil {
		c.gallery.Process(cam.ID, survivors, timestamp)
		for _, obj := range survivors {
			if obj.LocalID == nil {
				continue
			}
			if gid, ok := c.gallery.GlobalID(cam.ID, *obj.LocalID); ok {
				obj.GlobalID = gid
			}
		}
	}

	return survivors
}

// FinalizeGlobalUpdates flushes the gallery's pending fused updates.
func (c *Coordinator) FinalizeGlobalUpdates(t time.Time) {
	if c.gallery != nil {
		c.gallery.ApplyPendingUpdates(t)
	}
}

// GetAllGlobalObjects returns a snapshot of the gallery's globals.
func (c *Coordinator) GetAllGlobalObjects() []*model.ObjectRecord {
	if c.gallery == nil {
		return nil
	}
	return c.gallery.AllGlobalObjects()
}
