package dashboard

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHistoryRecordEvictsOldestPastCapacity(t *testing.T) {
	h := NewHistory(3)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		h.Record(Sample{At: base.Add(time.Duration(i) * time.Second), Phase: "working", GlobalCount: i})
	}
	snap := h.Snapshot()
	require.Len(t, snap, 3)
	require.Equal(t, 2, snap[0].GlobalCount)
	require.Equal(t, 4, snap[2].GlobalCount)
}

func TestHandlerRendersHTML(t *testing.T) {
	h := NewHistory(10)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	h.Record(Sample{At: base, Phase: "working", GlobalCount: 2})
	h.Record(Sample{At: base.Add(time.Second), Phase: "working", GlobalCount: 3})

	handler := NewHandler(h)
	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Global Object Count")
	require.Contains(t, rec.Body.String(), "working")
}
