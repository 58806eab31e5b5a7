package gateway

import (
	"fmt"
	"net/http"
	"runtime"
	"time"
)

// metricsHandler returns an HTTP handler for GET /metrics in Prometheus text format.
// This uses the lightweight text format to avoid pulling in the full prometheus client.
func metricsHandler(deps HandlerDeps, startTime time.Time, metrics *Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

		// Turn metrics.
		fmt.Fprintf(w, "# HELP smartquery_turns_total Total conversation turns started.\n")
		fmt.Fprintf(w, "# TYPE smartquery_turns_total counter\n")
		fmt.Fprintf(w, "smartquery_turns_total %d\n", metrics.TurnsTotal.Load())

		fmt.Fprintf(w, "# HELP smartquery_turn_errors_total Total failed turns.\n")
		fmt.Fprintf(w, "# TYPE smartquery_turn_errors_total counter\n")
		fmt.Fprintf(w, "smartquery_turn_errors_total %d\n", metrics.TurnErrorsTotal.Load())

		fmt.Fprintf(w, "# HELP smartquery_streams_total Total streaming turns started.\n")
		fmt.Fprintf(w, "# TYPE smartquery_streams_total counter\n")
		fmt.Fprintf(w, "smartquery_streams_total %d\n", metrics.StreamsTotal.Load())

		// Thread metrics.
		if deps.Locker != nil {
			fmt.Fprintf(w, "# HELP smartquery_threads_active Threads with a turn in flight.\n")
			fmt.Fprintf(w, "# TYPE smartquery_threads_active gauge\n")
			fmt.Fprintf(w, "smartquery_threads_active %d\n", deps.Locker.ActiveCount())
		}

		// Tool metrics.
		if deps.Tools != nil {
			fmt.Fprintf(w, "# HELP smartquery_tools_registered Number of registered tools.\n")
			fmt.Fprintf(w, "# TYPE smartquery_tools_registered gauge\n")
			fmt.Fprintf(w, "smartquery_tools_registered %d\n", len(deps.Tools.Schemas()))
		}

		// Ingestion metrics.
		fmt.Fprintf(w, "# HELP smartquery_ingests_total Total ingestion runs started.\n")
		fmt.Fprintf(w, "# TYPE smartquery_ingests_total counter\n")
		fmt.Fprintf(w, "smartquery_ingests_total %d\n", metrics.IngestsTotal.Load())

		fmt.Fprintf(w, "# HELP smartquery_ingest_errors_total Total failed ingestion runs.\n")
		fmt.Fprintf(w, "# TYPE smartquery_ingest_errors_total counter\n")
		fmt.Fprintf(w, "smartquery_ingest_errors_total %d\n", metrics.IngestErrorsTotal.Load())

		// Uptime.
		fmt.Fprintf(w, "# HELP smartquery_uptime_seconds Seconds since the server started.\n")
		fmt.Fprintf(w, "# TYPE smartquery_uptime_seconds gauge\n")
		fmt.Fprintf(w, "smartquery_uptime_seconds %.0f\n", time.Since(startTime).Seconds())

		// Go runtime metrics.
		var mem runtime.MemStats
		runtime.ReadMemStats(&mem)

		fmt.Fprintf(w, "# HELP go_goroutines Number of goroutines.\n")
		fmt.Fprintf(w, "# TYPE go_goroutines gauge\n")
		fmt.Fprintf(w, "go_goroutines %d\n", runtime.NumGoroutine())

		fmt.Fprintf(w, "# HELP go_memstats_alloc_bytes Bytes of allocated heap objects.\n")
		fmt.Fprintf(w, "# TYPE go_memstats_alloc_bytes gauge\n")
		fmt.Fprintf(w, "go_memstats_alloc_bytes %d\n", mem.Alloc)

		fmt.Fprintf(w, "# HELP go_memstats_sys_bytes Total bytes of memory obtained from the OS.\n")
		fmt.Fprintf(w, "# TYPE go_memstats_sys_bytes gauge\n")
		fmt.Fprintf(w, "go_memstats_sys_bytes %d\n", mem.Sys)
	}
}
