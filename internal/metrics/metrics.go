// Package metrics tracks in-process API call counts and latencies.
//
// The Recorder is constructed explicitly and passed to whoever needs
// it; there is no package-level instance.
package metrics

import (
	"sort"
	"sync"
	"time"
)

// routeMetrics accumulates counters for one route.
type routeMetrics struct {
	requests     int64
	errors       int64
	totalLatency time.Duration
}

// RouteStats is the exported view of one route's counters.
type RouteStats struct {
	Route        string  `json:"route"`
	Requests     int64   `json:"requests"`
	Errors       int64   `json:"errors"`
	AvgLatencyMS float64 `json:"avg_latency_ms"`
}

// Stats is a point-in-time view of all recorded activity.
type Stats struct {
	StartedAt     time.Time    `json:"started_at"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	TotalRequests int64        `json:"total_requests"`
	TotalErrors   int64        `json:"total_errors"`
	Routes        []RouteStats `json:"routes"`
}

// Recorder collects per-route request counters. Safe for concurrent
// use.
type Recorder struct {
	mu        sync.Mutex
	routes    map[string]*routeMetrics
	startedAt time.Time
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		routes:    make(map[string]*routeMetrics),
		startedAt: time.Now(),
	}
}

// Record counts one request for a route. Responses with status >= 500
// count as errors; client errors do not, they are the caller's fault.
func (r *Recorder) Record(route string, status int, latency time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.routes[route]
	if !ok {
		m = &routeMetrics{}
		r.routes[route] = m
	}
	m.requests++
	m.totalLatency += latency
	if status >= 500 {
		m.errors++
	}
}

// Snapshot returns current totals with routes ordered by request count.
func (r *Recorder) Snapshot() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := Stats{
		StartedAt:     r.startedAt,
		UptimeSeconds: int64(time.Since(r.startedAt).Seconds()),
		Routes:        make([]RouteStats, 0, len(r.routes)),
	}
	for route, m := range r.routes {
		stats.TotalRequests += m.requests
		stats.TotalErrors += m.errors

		avg := 0.0
		if m.requests > 0 {
			avg = float64(m.totalLatency.Milliseconds()) / float64(m.requests)
		}
		stats.Routes = append(stats.Routes, RouteStats{
			Route:        route,
			Requests:     m.requests,
			Errors:       m.errors,
			AvgLatencyMS: avg,
		})
	}
	sort.Slice(stats.Routes, func(i, j int) bool {
		if stats.Routes[i].Requests != stats.Routes[j].Requests {
			return stats.Routes[i].Requests > stats.Routes[j].Requests
		}
		return stats.Routes[i].Route < stats.Routes[j].Route
	})
	return stats
}

// Reset discards all counters and restarts the uptime clock.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes = make(map[string]*routeMetrics)
	r.startedAt = time.Now()
}
