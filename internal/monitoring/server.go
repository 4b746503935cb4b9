package monitoring

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"sort"
	"time"

	"github.com/paveg/joinbench/internal/join"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server provides HTTP endpoints for inspecting finished runs.
type Server struct {
	collector *MetricsCollector
	server    *http.Server
}

// NewMonitoringServer creates a server listening on addr.
func NewMonitoringServer(collector *MetricsCollector, addr string) *Server {
	mux := http.NewServeMux()

	server := &Server{
		collector: collector,
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second, //nolint:mnd // Standard timeout value
		},
	}

	mux.Handle("/metrics", promhttp.HandlerFor(collector.Registry(), promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", server.handleHealth)
	mux.HandleFunc("/report", server.handleReport)
	mux.HandleFunc("/dashboard", server.handleDashboard)

	return server
}

// Handler returns the server's request multiplexer.
func (ms *Server) Handler() http.Handler {
	return ms.server.Handler
}

// Start serves until Stop or Shutdown is called.
func (ms *Server) Start() error {
	return ms.server.ListenAndServe()
}

// Stop closes the server immediately.
func (ms *Server) Stop() error {
	return ms.server.Close()
}

// Shutdown stops the server once in-flight requests finish or ctx expires.
func (ms *Server) Shutdown(ctx context.Context) error {
	return ms.server.Shutdown(ctx)
}

func (ms *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	response := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"enabled":   ms.collector.IsEnabled(),
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode health status", http.StatusInternalServerError)
		return
	}
}

type reportResponse struct {
	Phases  []PhaseMetrics `json:"phases"`
	Summary MetricsSummary `json:"summary"`
}

func (ms *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	resp := reportResponse{
		Phases:  ms.collector.GetMetrics(),
		Summary: ms.collector.GetSummary(),
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, "Failed to encode report", http.StatusInternalServerError)
		return
	}
}

var dashboardTemplate = template.Must(template.New("dashboard").Parse(`<!DOCTYPE html>
<html>
<head>
    <title>Join Benchmark</title>
    <meta charset="UTF-8">
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        table { border-collapse: collapse; }
        th, td { border: 1px solid #ddd; padding: 6px 10px; text-align: right; }
        th { background-color: #f2f2f2; }
        td:first-child { text-align: left; }
    </style>
</head>
<body>
    <h1>Join Benchmark</h1>
    <table>
        <thead>
            <tr><th>Strategy</th><th>Partition</th><th>Build</th><th>Probe</th><th>Total</th><th>Matches</th></tr>
        </thead>
        <tbody>
        {{- range .}}
            <tr><td>{{.Name}}</td><td>{{.Partition}}</td><td>{{.Build}}</td><td>{{.Probe}}</td><td>{{.Total}}</td><td>{{.Matches}}</td></tr>
        {{- end}}
        </tbody>
    </table>
</body>
</html>
`))

type dashboardRow struct {
	Name                           string
	Partition, Build, Probe, Total time.Duration
	Matches                        uint64
}

func (ms *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "text/html")

	rows := dashboardRows(ms.collector.GetSummary())
	if err := dashboardTemplate.Execute(w, rows); err != nil {
		http.Error(w, fmt.Sprintf("Failed to render dashboard: %v", err), http.StatusInternalServerError)
		return
	}
}

func dashboardRows(summary MetricsSummary) []dashboardRow {
	rows := make([]dashboardRow, 0, len(summary.Strategies))
	for name, s := range summary.Strategies {
		rows = append(rows, dashboardRow{
			Name:      name,
			Partition: s.PhaseTime[join.PhasePartition],
			Build:     s.PhaseTime[join.PhaseBuild],
			Probe:     s.PhaseTime[join.PhaseProbe],
			Total:     s.Total,
			Matches:   s.Matches,
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Name < rows[j].Name })
	return rows
}
