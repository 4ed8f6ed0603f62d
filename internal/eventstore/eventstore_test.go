package eventstore

import (
	"testing"
	"time"

	"github.com/allenshie/integration-core/internal/model"
	"github.com/stretchr/testify/require"
)

func TestAppendDrainOrder(t *testing.T) {
	s := New(10)
	s.Append(model.Event{CameraID: "a", Timestamp: time.Unix(1, 0)})
	s.Append(model.Event{CameraID: "b", Timestamp: time.Unix(2, 0)})

	drained := s.DrainAll()
	require.Len(t, drained, 2)
	require.Equal(t, "a", drained[0].CameraID)
	require.Equal(t, "b", drained[1].CameraID)
	require.Equal(t, 0, s.Len())
}

func TestStoreNeverExceedsCapacity(t *testing.T) {
	s := New(3)
	for i := 0; i < 100; i++ {
		s.Append(model.Event{CameraID: "cam"})
		require.LessOrEqual(t, s.Len(), 3)
	}
	require.Equal(t, 3, s.Len())
}

func TestAppendEvictsOldestWhenFull(t *testing.T) {
	s := New(2)
	s.Append(model.Event{CameraID: "first"})
	s.Append(model.Event{CameraID: "second"})
	s.Append(model.Event{CameraID: "third"})

	drained := s.DrainAll()
	require.Len(t, drained, 2)
	require.Equal(t, "second", drained[0].CameraID)
	require.Equal(t, "third", drained[1].CameraID)
}

func TestDrainAllClears(t *testing.T) {
	s := New(5)
	s.Append(model.Event{CameraID: "a"})
	_ = s.DrainAll()
	require.Equal(t, 0, s.Len())
	require.Nil(t, s.DrainAll())
}
