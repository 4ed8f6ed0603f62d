// Package maprender overlays global and per-camera local object positions on
// a cached base floor image, and optionally charts the gallery's global
// object count over time (gonum/plot, in the teacher's gridplotter style).
package maprender

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/jpeg"
	"image/png"
	"io"
	"log"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/allenshie/integration-core/internal/model"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

var (
	opsLogger  *log.Logger
	diagLogger *log.Logger
)

// SetLogWriters configures the package's ops/diag logging streams.
func SetLogWriters(ops, diag io.Writer) {
	opsLogger = newLogger("[maprender] ", ops)
	diagLogger = newLogger("[maprender] ", diag)
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

// Mode selects the renderer's output behavior.
type Mode string

const (
	ModeWrite Mode = "write"
	ModeShow  Mode = "show"
	ModeBoth  Mode = "both"
)

// LocalObject is one camera's detection to overlay at its world position.
type LocalObject struct {
	CameraID       string
	LocalID        int
	Class          string
	GlobalPosition model.Point
	MatchedGlobal  string  // empty if unmatched
	DistanceMeters float64 // valid only when MatchedGlobal != ""
}

// Config parameterizes one renderer instance.
type Config struct {
	BaseImagePath    string
	OutputDir        string
	Mode             Mode
	GlobalRadiusRatio float64 // default 0.01
	MetersPerPixelX  float64
	MetersPerPixelY  float64
	ShowClassLabel   bool
	ShowLocalID      bool
	CameraColors     map[string]color.Color
}

// DefaultConfig returns the spec's default overlay tuning.
func DefaultConfig() Config {
	return Config{Mode: ModeWrite, GlobalRadiusRatio: 0.01}
}

// Renderer loads the base image once, cached by mtime, and redraws overlays
// from scratch on each call — it never mutates the cached base.
type Renderer struct {
	mu sync.Mutex

	cfg Config

	cachedBase    image.Image
	cachedModTime time.Time

	history []historyPoint
}

type historyPoint struct {
	at    time.Time
	count int
}

// New builds a Renderer with cfg.
func New(cfg Config) *Renderer {
	if cfg.GlobalRadiusRatio <= 0 {
		cfg.GlobalRadiusRatio = 0.01
	}
	return &Renderer{cfg: cfg}
}

// loadBase reads the base image, reusing the cached decode unless the file's
// mtime has changed since the last load.
func (r *Renderer) loadBase() (image.Image, error) {
	info, err := os.Stat(r.cfg.BaseImagePath)
	if err != nil {
		return nil, fmt.Errorf("maprender: stat base image: %w", err)
	}
	if r.cachedBase != nil && info.ModTime().Equal(r.cachedModTime) {
		return r.cachedBase, nil
	}

	f, err := os.Open(r.cfg.BaseImagePath)
	if err != nil {
		return nil, fmt.Errorf("maprender: open base image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("maprender: decode base image: %w", err)
	}

	r.cachedBase = img
	r.cachedModTime = info.ModTime()
	diagf("base image reloaded (mtime=%s)", info.ModTime())
	return img, nil
}

// Render draws globals and locals atop a fresh copy of the cached base image
// and, per Mode, writes a timestamped PNG into OutputDir. Showing in an
// interactive window is outside this daemon's headless deployment target
// (spec's ModeShow/ModeBoth are accepted but only the write side effect
// is implemented; no display surface exists to show into).
func (r *Renderer) Render(globals []*model.ObjectRecord, locals []LocalObject, now time.Time) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	base, err := r.loadBase()
	if err != nil {
		return "", err
	}

	bounds := base.Bounds()
	out := image.NewRGBA(bounds)
	draw.Draw(out, bounds, base, bounds.Min, draw.Src)

	minDim := bounds.Dx()
	if bounds.Dy() < minDim {
		minDim = bounds.Dy()
	}
	globalRadius := float64(minDim) * r.cfg.GlobalRadiusRatio
	if globalRadius < 1 {
		globalRadius = 1
	}
	localRadius := globalRadius * 0.6

	for _, g := range globals {
		traj := g.Trajectory
		if len(traj) == 0 {
			traj = g.GlobalTrajectory
		}
		if len(traj) == 0 {
			continue
		}
		last := traj[len(traj)-1]
		px, py := r.worldToPixel(last.X, last.Y)
		drawFilledCircle(out, px, py, globalRadius, color.RGBA{R: 220, G: 40, B: 40, A: 255})
	}

	for _, l := range locals {
		px, py := r.worldToPixel(l.GlobalPosition.X, l.GlobalPosition.Y)
		c := r.colorForCamera(l.CameraID)
		drawFilledCircle(out, px, py, localRadius, c)
	}

	r.history = append(r.history, historyPoint{at: now, count: len(globals)})

	var path string
	if r.cfg.Mode == ModeWrite || r.cfg.Mode == ModeBoth {
		path, err = r.writePNG(out, now)
		if err != nil {
			return "", err
		}
	}
	return path, nil
}

func (r *Renderer) colorForCamera(cameraID string) color.Color {
	if c, ok := r.cfg.CameraColors[cameraID]; ok {
		return c
	}
	return color.RGBA{R: 40, G: 120, B: 220, A: 255}
}

func (r *Renderer) worldToPixel(x, y float64) (float64, float64) {
	mppx, mppy := r.cfg.MetersPerPixelX, r.cfg.MetersPerPixelY
	if mppx <= 0 {
		mppx = 1
	}
	if mppy <= 0 {
		mppy = 1
	}
	return x / mppx, y / mppy
}

func (r *Renderer) writePNG(img image.Image, now time.Time) (string, error) {
	if r.cfg.OutputDir == "" {
		return "", fmt.Errorf("maprender: output dir not configured")
	}
	if err := os.MkdirAll(r.cfg.OutputDir, 0o755); err != nil {
		return "", fmt.Errorf("maprender: create output dir: %w", err)
	}
	name := fmt.Sprintf("map_%s.png", now.UTC().Format("20060102_150405.000"))
	path := filepath.Join(r.cfg.OutputDir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("maprender: create output file: %w", err)
	}
	defer f.Close()

	if err := png.Encode(f, img); err != nil {
		return "", fmt.Errorf("maprender: encode png: %w", err)
	}
	opsf("wrote map overlay %s", path)
	return path, nil
}

// drawFilledCircle draws a filled disc of radius r centered at (cx, cy).
func drawFilledCircle(img *image.RGBA, cx, cy, r float64, c color.Color) {
	bounds := img.Bounds()
	minX := int(math.Floor(cx - r))
	maxX := int(math.Ceil(cx + r))
	minY := int(math.Floor(cy - r))
	maxY := int(math.Ceil(cy + r))

	for y := minY; y <= maxY; y++ {
		if y < bounds.Min.Y || y >= bounds.Max.Y {
			continue
		}
		for x := minX; x <= maxX; x++ {
			if x < bounds.Min.X || x >= bounds.Max.X {
				continue
			}
			dx, dy := float64(x)-cx, float64(y)-cy
			if dx*dx+dy*dy <= r*r {
				img.Set(x, y, c)
			}
		}
	}
}

// ChartGallerySize writes a line chart of the gallery's global object count
// over time, the pattern the teacher uses for grid-cell tuning charts. Call
// after accumulating Render history.
func (r *Renderer) ChartGallerySize(outPath string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.history) == 0 {
		return fmt.Errorf("maprender: no history to chart")
	}

	p := plot.New()
	p.Title.Text = "Gallery size over time"
	p.X.Label.Text = "Time (s since first sample)"
	p.Y.Label.Text = "Global object count"

	start := r.history[0].at
	pts := make(plotter.XYs, 0, len(r.history))
	for _, h := range r.history {
		pts = append(pts, plotter.XY{X: h.at.Sub(start).Seconds(), Y: float64(h.count)})
	}

	line, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("maprender: build line: %w", err)
	}
	line.Width = vg.Points(1.5)
	p.Add(line)

	if err := p.Save(10*vg.Inch, 4*vg.Inch, outPath); err != nil {
		return fmt.Errorf("maprender: save chart: %w", err)
	}
	opsf("wrote gallery size chart %s", outPath)
	return nil
}
