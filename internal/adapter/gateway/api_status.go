package gateway

import (
	"net/http"
	"sync/atomic"
	"time"
)

// StatusResponse is the JSON body returned by GET /api/v1/status.
type StatusResponse struct {
	Service ServiceStatus `json:"service"`
	Threads ThreadStatus  `json:"threads"`
	Turns   TurnStatus    `json:"turns"`
	Tools   ToolStatus    `json:"tools"`
	Ingest  IngestStatus  `json:"ingest"`
}

// ServiceStatus holds service overview info.
type ServiceStatus struct {
	Name          string `json:"name"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// ThreadStatus holds thread concurrency counts.
type ThreadStatus struct {
	Active int `json:"active"`
}

// TurnStatus holds turn counters.
type TurnStatus struct {
	Total   int64 `json:"total"`
	Errors  int64 `json:"errors"`
	Streams int64 `json:"streams"`
}

// ToolStatus holds tool registry info.
type ToolStatus struct {
	Registered int `json:"registered"`
}

// IngestStatus holds ingestion counters.
type IngestStatus struct {
	Total  int64 `json:"total"`
	Errors int64 `json:"errors"`
}

// Metrics tracks counters for the status API and Prometheus metrics.
type Metrics struct {
	TurnsTotal        atomic.Int64
	TurnErrorsTotal   atomic.Int64
	StreamsTotal      atomic.Int64
	IngestsTotal      atomic.Int64
	IngestErrorsTotal atomic.Int64
}

// statusHandler returns an HTTP handler for GET /api/v1/status.
func statusHandler(deps HandlerDeps, startTime time.Time, metrics *Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		active := 0
		if deps.Locker != nil {
			active = deps.Locker.ActiveCount()
		}
		registered := 0
		if deps.Tools != nil {
			registered = len(deps.Tools.Schemas())
		}

		resp := StatusResponse{
			Service: ServiceStatus{
				Name:          "smart-query",
				UptimeSeconds: int64(time.Since(startTime).Seconds()),
			},
			Threads: ThreadStatus{Active: active},
			Turns: TurnStatus{
				Total:   metrics.TurnsTotal.Load(),
				Errors:  metrics.TurnErrorsTotal.Load(),
				Streams: metrics.StreamsTotal.Load(),
			},
			Tools: ToolStatus{Registered: registered},
			Ingest: IngestStatus{
				Total:  metrics.IngestsTotal.Load(),
				Errors: metrics.IngestErrorsTotal.Load(),
			},
		}

		writeJSON(w, http.StatusOK, resp)
	}
}
