package gateway

import (
	"fmt"
	"net/http"
	"runtime"
	"time"
)

// metricsHandler returns an HTTP handler for GET /metrics in Prometheus text
// format. This uses the lightweight text format to avoid pulling in the full
// prometheus client.
func metricsHandler(deps HandlerDeps, startTime time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

		snap := deps.Metrics.Snapshot()

		// Generation metrics.
		fmt.Fprintf(w, "# HELP solmate_llm_calls_total Total generation attempts, cached or not.\n")
		fmt.Fprintf(w, "# TYPE solmate_llm_calls_total counter\n")
		fmt.Fprintf(w, "solmate_llm_calls_total %d\n", snap.TotalCalls)

		fmt.Fprintf(w, "# HELP solmate_llm_errors_total Total failed generation attempts.\n")
		fmt.Fprintf(w, "# TYPE solmate_llm_errors_total counter\n")
		fmt.Fprintf(w, "solmate_llm_errors_total %d\n", snap.Errors)

		fmt.Fprintf(w, "# HELP solmate_llm_response_seconds_total Cumulative latency of successful calls.\n")
		fmt.Fprintf(w, "# TYPE solmate_llm_response_seconds_total counter\n")
		fmt.Fprintf(w, "solmate_llm_response_seconds_total %f\n", snap.TotalResponseTime.Seconds())

		fmt.Fprintf(w, "# HELP solmate_llm_response_seconds_avg Average latency of successful calls.\n")
		fmt.Fprintf(w, "# TYPE solmate_llm_response_seconds_avg gauge\n")
		fmt.Fprintf(w, "solmate_llm_response_seconds_avg %f\n", snap.AverageResponseTime.Seconds())

		// Cache metrics.
		fmt.Fprintf(w, "# HELP solmate_cache_hits_total Responses served from cache.\n")
		fmt.Fprintf(w, "# TYPE solmate_cache_hits_total counter\n")
		fmt.Fprintf(w, "solmate_cache_hits_total %d\n", snap.CacheHits)

		fmt.Fprintf(w, "# HELP solmate_cache_misses_total Cacheable requests not found in cache.\n")
		fmt.Fprintf(w, "# TYPE solmate_cache_misses_total counter\n")
		fmt.Fprintf(w, "solmate_cache_misses_total %d\n", snap.CacheMisses)

		if deps.Cache != nil {
			stats := deps.Cache.Stats()
			enabled := 0
			if deps.Cache.Enabled() {
				enabled = 1
			}

			fmt.Fprintf(w, "# HELP solmate_cache_enabled Whether the response cache is enabled.\n")
			fmt.Fprintf(w, "# TYPE solmate_cache_enabled gauge\n")
			fmt.Fprintf(w, "solmate_cache_enabled %d\n", enabled)

			fmt.Fprintf(w, "# HELP solmate_cache_entries Current number of cached responses.\n")
			fmt.Fprintf(w, "# TYPE solmate_cache_entries gauge\n")
			fmt.Fprintf(w, "solmate_cache_entries %d\n", stats.Entries)

			fmt.Fprintf(w, "# HELP solmate_cache_max_entries Configured cache capacity.\n")
			fmt.Fprintf(w, "# TYPE solmate_cache_max_entries gauge\n")
			fmt.Fprintf(w, "solmate_cache_max_entries %d\n", stats.MaxEntries)

			fmt.Fprintf(w, "# HELP solmate_cache_evictions_total Entries evicted to make room.\n")
			fmt.Fprintf(w, "# TYPE solmate_cache_evictions_total counter\n")
			fmt.Fprintf(w, "solmate_cache_evictions_total %d\n", stats.Evictions)
		}

		// Uptime.
		fmt.Fprintf(w, "# HELP solmate_uptime_seconds Seconds since the gateway started.\n")
		fmt.Fprintf(w, "# TYPE solmate_uptime_seconds gauge\n")
		fmt.Fprintf(w, "solmate_uptime_seconds %.0f\n", time.Since(startTime).Seconds())

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
