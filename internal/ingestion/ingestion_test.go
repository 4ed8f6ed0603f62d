package ingestion

import (
	"testing"
	"time"

	"github.com/allenshie/integration-core/internal/model"
	"github.com/stretchr/testify/require"
)

func TestProcessKeepsLatestPerCamera(t *testing.T) {
	e := New(0)
	now := time.Date(2026, 1, 1, 0, 0, 10, 0, time.UTC)
	raw := []model.Event{
		{CameraID: "cam_a", Timestamp: now.Add(-5 * time.Second)},
		{CameraID: "cam_a", Timestamp: now.Add(-1 * time.Second)},
		{CameraID: "cam_b", Timestamp: now.Add(-2 * time.Second)},
	}

	res := e.Process(raw, now)
	require.Equal(t, 3, res.Raw)
	require.Equal(t, 0, res.Dropped)
	require.Len(t, res.Events, 2)

	byCam := map[string]model.Event{}
	for _, ev := range res.Events {
		byCam[ev.CameraID] = ev
	}
	require.Equal(t, now.Add(-1*time.Second), byCam["cam_a"].Timestamp)
}

func TestProcessDropsStaleEvents(t *testing.T) {
	e := New(5 * time.Second)
	now := time.Date(2026, 1, 1, 0, 0, 10, 0, time.UTC)
	raw := []model.Event{{CameraID: "cam_a", Timestamp: now.Add(-10 * time.Second)}}

	res := e.Process(raw, now)
	require.Equal(t, 1, res.Raw)
	require.Equal(t, 0, len(res.Events))
	require.Equal(t, 1, res.Dropped)
}

func TestProcessDropsMalformed(t *testing.T) {
	e := New(0)
	now := time.Now()
	raw := []model.Event{
		{CameraID: "", Timestamp: now},
		{CameraID: "cam_a", Timestamp: time.Time{}},
	}
	res := e.Process(raw, now)
	require.Equal(t, 0, len(res.Events))
	require.Equal(t, 2, res.Dropped)
}
