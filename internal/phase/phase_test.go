package phase

import (
	"testing"
	"time"

	"github.com/allenshie/integration-core/internal/model"
	"github.com/stretchr/testify/require"
)

type fakeResolver struct {
	fn func(now time.Time) model.Phase
}

func (f fakeResolver) Resolve(ctx Context) model.Phase { return f.fn(ctx.Now) }

func TestTimeWindowResolver(t *testing.T) {
	r := NewTimeWindowResolver([]Window{{Start: 9 * time.Hour, End: 17 * time.Hour}})
	loc := time.UTC

	working := time.Date(2026, 1, 1, 10, 0, 0, 0, loc)
	ph := r.Resolve(Context{Now: working})
	require.Equal(t, "working", ph.Name)

	nonWorking := time.Date(2026, 1, 1, 20, 0, 0, 0, loc)
	ph = r.Resolve(Context{Now: nonWorking})
	require.Equal(t, "non_working", ph.Name)
}

// Scenario 4: a 120s flip that never exceeds stable_seconds=180 must never
// move the stable phase, and must never report the flipped phase.
func TestDebouncedHysteresisIgnoresShortFlip(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	flip := base.Add(1 * time.Second)
	revert := flip.Add(120 * time.Second)

	inner := fakeResolver{fn: func(now time.Time) model.Phase {
		if !now.Before(flip) && now.Before(revert) {
			return model.Phase{Name: "non_working"}
		}
		return model.Phase{Name: "working", IsWorkingHours: true}
	}}

	d := NewDebounced(inner, DebouncedConfig{StableAfter: 180 * time.Second, StalePolicy: StalenessFreeze})

	var observed []string
	for t := base; t.Before(revert.Add(5 * time.Second)); t = t.Add(time.Second) {
		ph := d.Resolve(Context{Now: t, HasLastEvent: true, LastEventTime: t})
		observed = append(observed, ph.Name)
	}

	for _, name := range observed {
		require.Equal(t, "working", name)
	}
}

func TestDebouncedStabilizesAfterThreshold(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	flipAt := base.Add(time.Second)

	inner := fakeResolver{fn: func(now time.Time) model.Phase {
		if now.Before(flipAt) {
			return model.Phase{Name: "working", IsWorkingHours: true}
		}
		return model.Phase{Name: "non_working"}
	}}

	d := NewDebounced(inner, DebouncedConfig{StableAfter: 10 * time.Second, StalePolicy: StalenessFreeze})

	var last model.Phase
	for t := base; !t.After(flipAt.Add(15 * time.Second)); t = t.Add(time.Second) {
		last = d.Resolve(Context{Now: t, HasLastEvent: true, LastEventTime: t})
	}
	require.Equal(t, "non_working", last.Name)
}

// P9: under staleness with freeze policy, a stale context never reports a
// newly resolved candidate, only the frozen last-stable phase.
func TestDebouncedStalenessFreezes(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	inner := fakeResolver{fn: func(now time.Time) model.Phase {
		return model.Phase{Name: "working", IsWorkingHours: true}
	}}
	d := NewDebounced(inner, DebouncedConfig{StableAfter: 10 * time.Second, StaleAfter: 30 * time.Second, StalePolicy: StalenessFreeze})

	// Establish a stable phase.
	d.Resolve(Context{Now: base, HasLastEvent: true, LastEventTime: base})

	stale := base.Add(60 * time.Second) // last event 60s old, threshold 30s
	ph := d.Resolve(Context{Now: stale, HasLastEvent: true, LastEventTime: base})
	require.Equal(t, "working", ph.Name)
}

func TestDebouncedStalenessUnknownPolicy(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	unknown := model.Phase{Name: "unknown"}
	inner := fakeResolver{fn: func(now time.Time) model.Phase {
		return model.Phase{Name: "working", IsWorkingHours: true}
	}}
	d := NewDebounced(inner, DebouncedConfig{StableAfter: 10 * time.Second, StaleAfter: 30 * time.Second, StalePolicy: StalenessUnknown, UnknownPhase: unknown})

	d.Resolve(Context{Now: base, HasLastEvent: true, LastEventTime: base})
	stale := base.Add(60 * time.Second)
	ph := d.Resolve(Context{Now: stale, HasLastEvent: true, LastEventTime: base})
	require.Equal(t, "unknown", ph.Name)
}
