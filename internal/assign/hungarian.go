// Package assign implements the square-padded minimum-cost assignment used
// to match local records to global gallery entries. The solver itself is
// the Kuhn-Munkres (Hungarian) algorithm with row/column potentials
// (Jonker-Volgenant variant), the same one the per-sensor tracker uses for
// cluster-to-track matching, generalized here to rectangular local-to-global
// cost matrices with a caller-supplied acceptance threshold.
package assign

import (
	"io"
	"log"
	"math"
)

// PadCost is the cost used to pad a rectangular matrix to square; it stands
// in for "forbidden" so the solver never proposes a padded pairing inside
// the valid region, and so padded rows/columns are trivially distinguished
// afterward. Non-finite input cells are also sanitized to this value before
// the solver ever sees them, since NaN/Inf would otherwise corrupt the
// potential updates in solveSquare.
const PadCost = 1e6

const hungarianInf = 1e18

var opsLogger *log.Logger

// SetLogWriters configures the package's ops-only logging stream.
func SetLogWriters(ops io.Writer) {
	if ops == nil {
		opsLogger = nil
		return
	}
	opsLogger = log.New(ops, "[assign] ", log.LstdFlags|log.Lmicroseconds)
}

func opsf(format string, args ...interface{}) {
	if opsLogger != nil {
		opsLogger.Printf(format, args...)
	}
}

// Match is one accepted row/column pairing with its underlying cost.
type Match struct {
	Row, Col int
	Cost     float64
}

// Solve runs minimum-weight perfect assignment over the square-padded cost
// matrix and returns only the pairs that fall within the original n×m
// region and whose cost is ≤ threshold. Unmatched rows (including padded
// dummy rows or rejected pairs) are not present in the result; callers
// distinguish them by absence.
//
// Per §4.15, a non-finite cost (NaN or Inf) is a matcher failure for that
// cell: the cell is treated as forbidden rather than propagated into the
// solver or accepted as a pairing, and a warning is logged. This aborts
// only the affected pairings, not the whole call — other rows/columns in
// the same group still match normally.
func Solve(cost [][]float64, threshold float64) []Match {
	n := len(cost)
	if n == 0 {
		return nil
	}
	m := len(cost[0])
	if m == 0 {
		return nil
	}

	dim := n
	if m > dim {
		dim = m
	}

	c := make([][]float64, dim)
	for i := 0; i < dim; i++ {
		c[i] = make([]float64, dim)
		for j := 0; j < dim; j++ {
			if i < n && j < m {
				v := cost[i][j]
				if math.IsNaN(v) || math.IsInf(v, 0) {
					opsf("non-finite cost at row=%d col=%d, treating pairing as forbidden", i, j)
					v = PadCost
				}
				c[i][j] = v
			} else {
				c[i][j] = PadCost
			}
		}
	}

	rowAssign := solveSquare(c, dim)

	out := make([]Match, 0, n)
	for i := 0; i < n; i++ {
		j := rowAssign[i]
		if j < 0 || j >= m {
			continue
		}
		cij := cost[i][j]
		if math.IsNaN(cij) || math.IsInf(cij, 0) {
			opsf("solver proposed non-finite pairing row=%d col=%d, dropping", i, j)
			continue
		}
		if cij >= hungarianInf || cij > threshold {
			continue
		}
		out = append(out, Match{Row: i, Col: j, Cost: cij})
	}
	return out
}

// solveSquare is the Jonker-Volgenant variant of Kuhn-Munkres over a dim×dim
// matrix, returning rowAssign[i] = column assigned to row i.
func solveSquare(c [][]float64, dim int) []int {
	const inf = math.MaxFloat64 / 2

	u := make([]float64, dim+1)
	v := make([]float64, dim+1)
	p := make([]int, dim+1)
	way := make([]int, dim+1)
	minv := make([]float64, dim+1)
	used := make([]bool, dim+1)

	for i := 1; i <= dim; i++ {
		p[0] = i
		j0 := 0

		for j := 1; j <= dim; j++ {
			minv[j] = inf
			used[j] = false
		}

		for {
			used[j0] = true
			i0 := p[j0]
			delta := inf
			j1 := -1

			for j := 1; j <= dim; j++ {
				if used[j] {
					continue
				}
				cur := c[i0-1][j-1] - u[i0] - v[j]
				if cur < minv[j] {
					minv[j] = cur
					way[j] = j0
				}
				if minv[j] < delta {
					delta = minv[j]
					j1 = j
				}
			}

			if j1 < 0 {
				break
			}

			for j := 0; j <= dim; j++ {
				if used[j] {
					u[p[j]] += delta
					v[j] -= delta
				} else {
					minv[j] -= delta
				}
			}

			j0 = j1
			if p[j0] == 0 {
				break
			}
		}

		for j0 != 0 {
			p[j0] = p[way[j0]]
			j0 = way[j0]
		}
	}

	rowAssign := make([]int, dim)
	for i := range rowAssign {
		rowAssign[i] = -1
	}
	for j := 1; j <= dim; j++ {
		if p[j] > 0 && p[j] <= dim {
			rowAssign[p[j]-1] = j - 1
		}
	}
	return rowAssign
}
