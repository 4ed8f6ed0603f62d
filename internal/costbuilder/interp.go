// Package costbuilder builds the per-pair cost matrix the assignment
// matcher consumes: trajectories are first resampled onto a common time
// lattice (linear interpolation for the observed span, constant-velocity
// Kalman extrapolation for the prefix/suffix), then compared by DTW or
// Euclidean distance, optionally blended with a feature cosine distance.
package costbuilder

import (
	"sort"
	"time"

	"github.com/allenshie/integration-core/internal/model"
)

// cvState is the 4-state constant-velocity Kalman state [x, vx, y, vy]. The
// prefix/suffix extrapolation only ever predicts (no measurement update),
// so this reduces to repeated application of the state-transition matrix —
// which for a constant-velocity model is linear in dt, so it is computed
// directly rather than iterated step by step.
type cvState struct {
	x, vx, y, vy float64
}

// predict returns the state after dt (negative dt propagates backward; the
// transition matrix for this model is its own inverse under dt -> -dt).
func (s cvState) predict(dt float64) cvState {
	return cvState{
		x:  s.x + s.vx*dt,
		vx: s.vx,
		y:  s.y + s.vy*dt,
		vy: s.vy,
	}
}

func cvFromTwoPoints(a, b model.TrajectoryPoint) cvState {
	dt := b.Timestamp.Sub(a.Timestamp).Seconds()
	if dt == 0 {
		return cvState{x: a.X, y: a.Y}
	}
	return cvState{
		x:  a.X,
		vx: (b.X - a.X) / dt,
		y:  a.Y,
		vy: (b.Y - a.Y) / dt,
	}
}

// Interpolate resamples an observed sparse trajectory onto a lattice of
// slots covering [start, end] at step δ. Slot k's boundary is the half-open
// interval [start+k*δ, start+(k+1)*δ); the earliest observation falling in
// a slot wins, others are discarded. Slots before the first observation are
// filled by backward Kalman extrapolation from the first two observed
// points; slots after the last observation, by forward extrapolation from
// the last two; slots in between, by linear interpolation between the
// nearest bracketing observations.
func Interpolate(traj []model.TrajectoryPoint, start, end time.Time, step time.Duration) []model.TrajectoryPoint {
	if len(traj) == 0 || step <= 0 || end.Before(start) {
		return nil
	}

	sorted := append([]model.TrajectoryPoint(nil), traj...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })

	numSlots := int(end.Sub(start)/step) + 1

	slotObserved := make([]*model.TrajectoryPoint, numSlots)
	for i := range sorted {
		p := sorted[i]
		idx := int(p.Timestamp.Sub(start) / step)
		if idx < 0 || idx >= numSlots {
			continue
		}
		if slotObserved[idx] == nil {
			slotObserved[idx] = &sorted[i]
		}
	}

	first := sorted[0]
	last := sorted[len(sorted)-1]
	var prefixState, suffixState cvState
	havePrefixSuffix := len(sorted) >= 2
	if havePrefixSuffix {
		prefixState = cvFromTwoPoints(sorted[0], sorted[1])
		suffixState = cvFromTwoPoints(sorted[len(sorted)-2], sorted[len(sorted)-1])
		suffixState.x, suffixState.y = last.X, last.Y
	}

	out := make([]model.TrajectoryPoint, numSlots)
	for k := 0; k < numSlots; k++ {
		slotStart := start.Add(time.Duration(k) * step)
		if obs := slotObserved[k]; obs != nil {
			out[k] = model.TrajectoryPoint{Timestamp: slotStart, X: obs.X, Y: obs.Y}
			continue
		}

		switch {
		case slotStart.Before(first.Timestamp):
			if !havePrefixSuffix {
				out[k] = model.TrajectoryPoint{Timestamp: slotStart, X: first.X, Y: first.Y}
				continue
			}
			dt := slotStart.Sub(first.Timestamp).Seconds()
			st := prefixState.predict(dt)
			out[k] = model.TrajectoryPoint{Timestamp: slotStart, X: st.x, Y: st.y}
		case slotStart.After(last.Timestamp) || slotStart.Equal(last.Timestamp):
			if !havePrefixSuffix {
				out[k] = model.TrajectoryPoint{Timestamp: slotStart, X: last.X, Y: last.Y}
				continue
			}
			dt := slotStart.Sub(last.Timestamp).Seconds()
			st := suffixState.predict(dt)
			out[k] = model.TrajectoryPoint{Timestamp: slotStart, X: st.x, Y: st.y}
		default:
			a, b := bracket(sorted, slotStart)
			out[k] = model.TrajectoryPoint{Timestamp: slotStart, X: lerp(a, b, slotStart, false), Y: lerp(a, b, slotStart, true)}
		}
	}
	return out
}

// bracket returns the two observed points immediately before and after t.
func bracket(sorted []model.TrajectoryPoint, t time.Time) (model.TrajectoryPoint, model.TrajectoryPoint) {
	for i := 0; i < len(sorted)-1; i++ {
		if !sorted[i].Timestamp.After(t) && sorted[i+1].Timestamp.After(t) {
			return sorted[i], sorted[i+1]
		}
	}
	return sorted[0], sorted[len(sorted)-1]
}

func lerp(a, b model.TrajectoryPoint, t time.Time, useY bool) float64 {
	dt := b.Timestamp.Sub(a.Timestamp).Seconds()
	if dt == 0 {
		if useY {
			return a.Y
		}
		return a.X
	}
	frac := t.Sub(a.Timestamp).Seconds() / dt
	if useY {
		return a.Y + (b.Y-a.Y)*frac
	}
	return a.X + (b.X-a.X)*frac
}
