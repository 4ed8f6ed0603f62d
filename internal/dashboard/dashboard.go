// Package dashboard serves an operator-facing HTML diagnostics page with a
// live phase-history and global-object-count line chart, in the same
// go-echarts embedding style the teacher uses for its debug charts.
package dashboard

import (
	"bytes"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/allenshie/integration-core/internal/httputil"
)

// Sample is one cycle's recorded phase and global object count.
type Sample struct {
	At           time.Time
	Phase        string
	GlobalCount  int
}

// History is a bounded ring of recent samples the dashboard charts.
type History struct {
	mu      sync.Mutex
	samples []Sample
	cap     int
}

// NewHistory builds a History capped at capacity samples.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = 500
	}
	return &History{cap: capacity}
}

// Record appends s, evicting the oldest sample once at capacity.
func (h *History) Record(s Sample) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.samples = append(h.samples, s)
	if len(h.samples) > h.cap {
		h.samples = h.samples[len(h.samples)-h.cap:]
	}
}

// Snapshot returns a copy of the current samples.
func (h *History) Snapshot() []Sample {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Sample, len(h.samples))
	copy(out, h.samples)
	return out
}

// Handler serves the diagnostics dashboard HTML page.
type Handler struct {
	history *History
}

// NewHandler builds a dashboard handler reading from history.
func NewHandler(history *History) *Handler {
	return &Handler{history: history}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	samples := h.history.Snapshot()

	xAxis := make([]string, 0, len(samples))
	counts := make([]opts.LineData, 0, len(samples))
	for _, s := range samples {
		xAxis = append(xAxis, s.At.Format("15:04:05"))
		counts = append(counts, opts.LineData{Value: s.GlobalCount})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "MCMOT Diagnostics", Theme: "dark", Width: "1000px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{Title: "Global Object Count", Subtitle: fmt.Sprintf("%d samples", len(samples))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Cycle time"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Global objects"}),
	)
	line.SetXAxis(xAxis).AddSeries("global_count", counts)

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	phaseTable := renderPhaseTable(samples)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, "<html><body>%s<h3>Recent phase history</h3>%s</body></html>", buf.String(), phaseTable)
}

func renderPhaseTable(samples []Sample) string {
	var b bytes.Buffer
	b.WriteString("<table border=1><tr><th>time</th><th>phase</th><th>global_count</th></tr>")
	start := 0
	if len(samples) > 20 {
		start = len(samples) - 20
	}
	for _, s := range samples[start:] {
		fmt.Fprintf(&b, "<tr><td>%s</td><td>%s</td><td>%d</td></tr>", s.At.Format(time.RFC3339), s.Phase, s.GlobalCount)
	}
	b.WriteString("</table>")
	return b.String()
}
