package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":    "ok",
		"timestamp": s.now().Format(time.RFC3339),
		"uptime":    time.Since(s.metrics.started).Round(time.Second).String(),
	})
}

// handleReady runs every readiness check concurrently and reports each
// one. Any failure makes the instance not ready.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := map[string]string{"templates": "ok"}
	var mu sync.Mutex
	var wg sync.WaitGroup
	for name, check := range s.deps.Checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result := "ok"
			if err := check(ctx); err != nil {
				result = "failed: " + err.Error()
			}
			mu.Lock()
			checks[name] = result
			mu.Unlock()
		}()
	}
	wg.Wait()

	status, httpStatus := "ready", http.StatusOK
	for _, result := range checks {
		if result != "ok" {
			status, httpStatus = "not_ready", http.StatusServiceUnavailable
			break
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":    status,
		"timestamp": s.now().Format(time.RFC3339),
		"checks":    checks,
	})
}

type metric struct {
	name, help, kind string
	value            int64
}

func boolGauge(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// handleMetrics provides application and security metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	traceMetrics := s.trace.GetMetrics()
	securityMetrics := s.deps.Detector.GetMetrics()

	metrics := []metric{
		{"http_requests_total", "Total number of HTTP requests", "counter", traceMetrics.TotalRequests},
		{"http_requests_in_flight", "Requests currently being served", "gauge", traceMetrics.InFlight},
		{"http_request_duration_avg_microseconds", "Average response time", "gauge", traceMetrics.AverageResponseTime},
		{"logins_total", "Successful sign-ins", "counter", s.metrics.logins.Load()},
		{"registrations_total", "Accounts created", "counter", s.metrics.registrations.Load()},
		{"transactions_created_total", "Transactions created", "counter", s.metrics.transactionsCreated.Load()},
		{"transactions_deleted_total", "Transactions deleted", "counter", s.metrics.transactionsDeleted.Load()},
		{"paid_status_changes_total", "Paid/unpaid toggles", "counter", s.metrics.statusToggles.Load()},
		{"report_exports_total", "Report exports requested", "counter", s.metrics.exportsRequested.Load()},
		{"backend_errors_total", "Backend calls that failed a request", "counter", s.metrics.backendErrors.Load()},
		{"panics_total", "Recovered handler panics", "counter", s.metrics.panics.Load()},
		{"suspicious_requests_total", "Requests matching attack patterns", "counter", securityMetrics.SuspiciousRequests},
		{"blocked_requests_total", "Requests rejected by the detector", "counter", securityMetrics.BlockedRequests},
		{"sessions_cached", "Sessions held in the lookup cache", "gauge", int64(s.deps.Sessions.Cache().Size())},
		{"uptime_seconds", "Seconds since the server started", "gauge", int64(time.Since(s.metrics.started).Seconds())},
	}
	if s.deps.Alerts != nil {
		metrics = append(metrics, metric{"alert_monitors", "Running alert monitors", "gauge", int64(s.deps.Alerts.Len())})
	}
	if s.deps.Views != nil {
		metrics = append(metrics, metric{"installment_views", "Transactions views held in memory", "gauge", int64(s.deps.Views.Cache().Size())})
	}
	if s.deps.Limiter != nil {
		rl := s.deps.Limiter.GetMetrics()
		metrics = append(metrics,
			metric{"rate_limit_hits_total", "Requests rejected by the rate limiter", "counter", rl.TotalHits},
			metric{"rate_limit_clients", "Clients tracked by the rate limiter", "gauge", int64(rl.ClientCount)},
			metric{"rate_limit_cleanups_total", "Idle-client sweeps run by the rate limiter", "counter", rl.CleanupRuns},
			metric{"rate_limit_cleanup_active", "Whether the idle-client sweep is running", "gauge", boolGauge(rl.CleanupActive)})
	}
	sort.Slice(metrics, func(i, j int) bool { return metrics[i].name < metrics[j].name })

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	for _, m := range metrics {
		fmt.Fprintf(w, "# HELP %s %s\n", m.name, m.help)
		fmt.Fprintf(w, "# TYPE %s %s\n", m.name, m.kind)
		fmt.Fprintf(w, "%s %d\n\n", m.name, m.value)
	}
}
