package costbuilder

import (
	"math"
	"time"

	"github.com/allenshie/integration-core/internal/model"
	"gonum.org/v1/gonum/floats"
)

// Loss selects the trajectory distance function used to score a candidate
// pairing.
type Loss string

const (
	LossDTW       Loss = "dtw"
	LossEuclidean Loss = "euclidean"
)

// Config parameterizes cost matrix construction (spec §4.5).
type Config struct {
	BacktrackSeconds time.Duration
	Step             time.Duration
	Loss             Loss
	MaxTrajLoss      float64
	Alpha            float64 // feature loss weight, default 0.5
}

// DefaultConfig returns the spec's default cost-builder tuning.
func DefaultConfig() Config {
	return Config{
		BacktrackSeconds: 5 * time.Second,
		Step:             200 * time.Millisecond,
		Loss:             LossDTW,
		MaxTrajLoss:      5.0,
		Alpha:            0.5,
	}
}

// Record is the minimal per-pair input the cost builder needs: a
// trajectory and an optional feature vector.
type Record struct {
	Trajectory []model.TrajectoryPoint
	Feature    []float64
}

// Matrix builds the N×M cost matrix between locals and globals as of cycle
// timestamp t, per spec §4.5 steps 1-5.
func Matrix(locals, globals []Record, t time.Time, cfg Config) [][]float64 {
	n := len(locals)
	m := len(globals)
	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, m)
	}

	start := t.Add(-cfg.BacktrackSeconds)
	localLattices := make([][]model.TrajectoryPoint, n)
	for i, l := range locals {
		localLattices[i] = Interpolate(l.Trajectory, start, t, cfg.Step)
	}
	globalLattices := make([][]model.TrajectoryPoint, m)
	for j, g := range globals {
		globalLattices[j] = Interpolate(g.Trajectory, start, t, cfg.Step)
	}

	for i := 0; i < n; i++ {
		for j := 0; j < m; j++ {
			trajLoss := trajectoryLoss(localLattices[i], globalLattices[j], cfg.Loss)
			norm := trajLoss / cfg.MaxTrajLoss
			if norm > 1 {
				norm = 1
			}
			if norm < 0 {
				norm = 0
			}

			featLoss := 0.0
			if len(locals[i].Feature) > 0 && len(globals[j].Feature) > 0 {
				featLoss = 1 - cosineSimilarity(locals[i].Feature, globals[j].Feature)
			}

			out[i][j] = norm + cfg.Alpha*featLoss
		}
	}
	return out
}

func trajectoryLoss(a, b []model.TrajectoryPoint, loss Loss) float64 {
	if len(a) == 0 || len(b) == 0 {
		return math.Inf(1)
	}
	switch loss {
	case LossEuclidean:
		return euclideanLoss(a, b)
	default:
		return dtwLoss(a, b)
	}
}

// euclideanLoss averages the pointwise Euclidean distance over the common
// (equal-length, same-lattice) timestamps.
func euclideanLoss(a, b []model.TrajectoryPoint) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n == 0 {
		return math.Inf(1)
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		dx := a[i].X - b[i].X
		dy := a[i].Y - b[i].Y
		sum += math.Hypot(dx, dy)
	}
	return sum / float64(n)
}

// dtwLoss computes the classic dynamic-time-warping distance between two
// point sequences using Euclidean local cost, divided by len(a)+len(b).
func dtwLoss(a, b []model.TrajectoryPoint) float64 {
	n, m := len(a), len(b)
	if n == 0 || m == 0 {
		return math.Inf(1)
	}

	const inf = math.MaxFloat64 / 2
	dp := make([][]float64, n+1)
	for i := range dp {
		dp[i] = make([]float64, m+1)
		for j := range dp[i] {
			dp[i][j] = inf
		}
	}
	dp[0][0] = 0

	for i := 1; i <= n; i++ {
		for j := 1; j <= m; j++ {
			cost := math.Hypot(a[i-1].X-b[j-1].X, a[i-1].Y-b[j-1].Y)
			best := dp[i-1][j]
			if dp[i][j-1] < best {
				best = dp[i][j-1]
			}
			if dp[i-1][j-1] < best {
				best = dp[i-1][j-1]
			}
			dp[i][j] = cost + best
		}
	}
	return dp[n][m] / float64(n+m)
}

// cosineSimilarity returns the cosine similarity of two equal-length
// feature vectors, or 0 if either is a zero vector or lengths mismatch.
func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	dot := floats.Dot(a, b)
	na := floats.Norm(a, 2)
	nb := floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (na * nb)
}
