// Package model holds the shared data types that flow between the event
// fabric, the MCMOT engine, and the control plane: events off the wire,
// trajectory points, the unified ObjectRecord, and the deployment-level
// camera/map/phase configuration.
package model

import "time"

// Detection is one bounding box reported by an edge camera's local tracker.
type Detection struct {
	ClassName string    `json:"class_name"`
	LocalID   int       `json:"local_id"`
	BBox      [4]int    `json:"bbox"` // x1, y1, x2, y2
	Score     float64   `json:"score"`
	Feature   []float64 `json:"feature,omitempty"`
}

// Valid reports whether the detection's bbox satisfies x2>x1 and y2>y1 and
// carries the fields ingestion requires.
func (d Detection) Valid() bool {
	if d.ClassName == "" {
		return false
	}
	return d.BBox[2] > d.BBox[0] && d.BBox[3] > d.BBox[1]
}

// BottomCenter returns the bbox bottom-center point, the canonical ground
// contact point used throughout the tracking pipeline.
func (d Detection) BottomCenter() (x, y float64) {
	return float64(d.BBox[0]+d.BBox[2]) / 2, float64(d.BBox[3])
}

// Event is a raw detection report for one camera at one instant, as
// received from a transport (HTTP POST body or MQTT message payload).
type Event struct {
	CameraID   string                 `json:"camera_id"`
	Timestamp  time.Time              `json:"timestamp"`
	Detections []Detection            `json:"detections,omitempty"`
	Models     map[string]interface{} `json:"models,omitempty"`
}

// TrajectoryPoint is one (timestamp, x, y) sample of an object's position
// in a single agreed coordinate space.
type TrajectoryPoint struct {
	Timestamp time.Time
	X, Y      float64
}

// ObjectRecord is the unified tracking unit threaded through the pipeline:
// either a local (per-camera) record awaiting global identity, or a
// promoted global record owned by the gallery.
type ObjectRecord struct {
	CameraID  string
	ClassName string

	// LocalID is set for local records; nil once a record is purely global.
	LocalID *int

	// GlobalID is the gallery-assigned identity. For a pending local record
	// this holds the string form "candidate_<camera>_<local>"; for a
	// promoted record, the decimal string of a monotone integer.
	GlobalID string

	LocalTrajectory  []TrajectoryPoint
	GlobalTrajectory []TrajectoryPoint
	Trajectory       []TrajectoryPoint // the gallery's canonical trajectory for global records

	Feature []float64

	UpdateTime time.Time
}

// Clone returns a deep copy safe to hand to a caller without risking a data
// race on later mutation of the original's slices.
func (o *ObjectRecord) Clone() *ObjectRecord {
	if o == nil {
		return nil
	}
	out := *o
	if o.LocalID != nil {
		id := *o.LocalID
		out.LocalID = &id
	}
	out.LocalTrajectory = append([]TrajectoryPoint(nil), o.LocalTrajectory...)
	out.GlobalTrajectory = append([]TrajectoryPoint(nil), o.GlobalTrajectory...)
	out.Trajectory = append([]TrajectoryPoint(nil), o.Trajectory...)
	out.Feature = append([]float64(nil), o.Feature...)
	return &out
}

// CandidateRecord tracks a local track that has not yet accrued enough hits
// to be promoted to a global identity.
type CandidateRecord struct {
	Hits      int
	Data      *ObjectRecord
	FirstSeen time.Time
	LastSeen  time.Time
}

// CameraConfig describes one deployed camera.
type CameraConfig struct {
	ID                string
	EdgeID            string // optional edge-side alias
	Enabled           bool
	TransformPath     string
	IgnorePolygon     []Point
	ColorHex          string
}

// Point is a 2D coordinate, used both for pixel-space polygons and
// world-space trajectory samples.
type Point struct {
	X, Y float64
}

// MapConfig describes the shared floor plan's pixel and metric dimensions.
type MapConfig struct {
	ImagePath    string
	PixelWidth   int
	PixelHeight  int
	WidthMeters  float64
	HeightMeters float64
}

// MetersPerPixelX returns the horizontal scale factor, or 0 if PixelWidth is 0.
func (m MapConfig) MetersPerPixelX() float64 {
	if m.PixelWidth == 0 {
		return 0
	}
	return m.WidthMeters / float64(m.PixelWidth)
}

// MetersPerPixelY returns the vertical scale factor, or 0 if PixelHeight is 0.
func (m MapConfig) MetersPerPixelY() float64 {
	if m.PixelHeight == 0 {
		return 0
	}
	return m.HeightMeters / float64(m.PixelHeight)
}

// Phase is a symbolic operating mode selected by the phase engine.
type Phase struct {
	Name           string
	IsWorkingHours bool
}
