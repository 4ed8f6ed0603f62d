// Package coordmap implements the per-camera pixel↔world coordinate
// transforms: a projective (homography) variant backed by gonum's mat
// package, and a dense thin-plate-spline lookup-table variant. Both satisfy
// the Mapper capability so the coordinator can hold one mapper per enabled
// camera without caring which variant is configured.
package coordmap

import (
	"errors"
	"math"

	"github.com/allenshie/integration-core/internal/model"
	"gonum.org/v1/gonum/mat"
)

// ErrNotLoaded is returned by Transform when a mapper has no matrix/lookup
// table loaded yet.
var ErrNotLoaded = errors.New("coordmap: mapper not loaded")

// ErrInverseUnsupported is returned by dense mappers, whose inverse
// direction is declared unimplemented (spec open question).
var ErrInverseUnsupported = errors.New("coordmap: inverse transform unsupported for dense mapper")

// ErrOutOfBounds is returned by Dense.Transform when the pixel input falls
// outside the loaded lookup grid.
var ErrOutOfBounds = errors.New("coordmap: point outside dense lookup grid")

// Mapper transforms points between pixel and world coordinate spaces.
type Mapper interface {
	// Transform converts one point. If inverse is true, converts a world
	// point to pixel space; otherwise pixel to world.
	Transform(p model.Point, inverse bool) (model.Point, error)
}

// Projective is a 3x3 homography-backed mapper. Both directions are
// supported via the cached matrix inverse.
type Projective struct {
	h    *mat.Dense
	hInv *mat.Dense
}

// NewProjective builds a Projective mapper from a row-major 3x3 matrix and
// precomputes its inverse.
func NewProjective(h [9]float64) (*Projective, error) {
	m := mat.NewDense(3, 3, h[:])
	var inv mat.Dense
	if err := inv.Inverse(m); err != nil {
		return nil, err
	}
	return &Projective{h: m, hInv: &inv}, nil
}

// Transform applies the homography (or its inverse) to p via homogeneous
// multiply-and-divide.
func (p *Projective) Transform(pt model.Point, inverse bool) (model.Point, error) {
	if p == nil || p.h == nil {
		return model.Point{}, ErrNotLoaded
	}
	m := p.h
	if inverse {
		m = p.hInv
	}
	vec := mat.NewVecDense(3, []float64{pt.X, pt.Y, 1})
	var out mat.VecDense
	out.MulVec(m, vec)
	w := out.AtVec(2)
	if w == 0 {
		return model.Point{}, errors.New("coordmap: degenerate homogeneous divide")
	}
	return model.Point{X: out.AtVec(0) / w, Y: out.AtVec(1) / w}, nil
}

// Dense is a thin-plate-spline-style forward-only mapper backed by a dense
// pixel->world lookup table. The table may be supplied at a sparse scale
// and is resized to full resolution via bilinear interpolation at load.
type Dense struct {
	width, height int
	mapX, mapY    []float64 // row-major, height*width
}

// NewDense builds a Dense mapper from sparse mapX/mapY grids of dimensions
// srcW x srcH, resizing them to width x height via bilinear interpolation.
func NewDense(srcMapX, srcMapY [][]float64, width, height int) (*Dense, error) {
	if len(srcMapX) == 0 || len(srcMapX[0]) == 0 {
		return nil, errors.New("coordmap: empty source grid")
	}
	srcH := len(srcMapX)
	srcW := len(srcMapX[0])

	d := &Dense{width: width, height: height, mapX: make([]float64, width*height), mapY: make([]float64, width*height)}
	for y := 0; y < height; y++ {
		sy := float64(y) * float64(srcH-1) / float64(max(height-1, 1))
		for x := 0; x < width; x++ {
			sx := float64(x) * float64(srcW-1) / float64(max(width-1, 1))
			d.mapX[y*width+x] = bilinear(srcMapX, sx, sy, srcW, srcH)
			d.mapY[y*width+x] = bilinear(srcMapY, sx, sy, srcW, srcH)
		}
	}
	return d, nil
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func bilinear(grid [][]float64, x, y float64, w, h int) float64 {
	x0 := int(math.Floor(x))
	y0 := int(math.Floor(y))
	x1 := x0 + 1
	y1 := y0 + 1
	if x1 >= w {
		x1 = w - 1
	}
	if y1 >= h {
		y1 = h - 1
	}
	if x0 < 0 {
		x0 = 0
	}
	if y0 < 0 {
		y0 = 0
	}
	fx := x - float64(x0)
	fy := y - float64(y0)

	top := grid[y0][x0]*(1-fx) + grid[y0][x1]*fx
	bot := grid[y1][x0]*(1-fx) + grid[y1][x1]*fx
	return top*(1-fy) + bot*fy
}

// Transform converts a pixel-space point to world space by rounding it to
// the nearest pixel and reading the full-resolution (already bilinearly
// resized) lookup table there.
// Out-of-bounds input returns ErrOutOfBounds rather than a NaN point, so
// callers can drop the point and log a warning instead of propagating NaN
// into a trajectory. Inverse transforms are unsupported.
func (d *Dense) Transform(pt model.Point, inverse bool) (model.Point, error) {
	if d == nil || d.mapX == nil {
		return model.Point{}, ErrNotLoaded
	}
	if inverse {
		return model.Point{}, ErrInverseUnsupported
	}
	x := int(math.Round(pt.X))
	y := int(math.Round(pt.Y))
	if x < 0 || y < 0 || x >= d.width || y >= d.height {
		return model.Point{}, ErrOutOfBounds
	}
	idx := y*d.width + x
	return model.Point{X: d.mapX[idx], Y: d.mapY[idx]}, nil
}

// Mode selects which mapper variant a deployment uses.
type Mode string

const (
	ModeProjective Mode = "projective"
	ModeDense      Mode = "dense"
)
