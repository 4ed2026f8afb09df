package metrics

import (
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"
)

const maxSamples = 1000

type Metrics struct {
	mutex           sync.RWMutex
	requests        map[string]int64
	failures        map[string]int64
	responseTimes   map[string][]time.Duration
	statusCodes     map[string]map[int]int64
	upstreamHealthy bool
	healthKnown     bool
	startTime       time.Time
}

type Snapshot struct {
	TotalRequests   int64                   `json:"total_requests"`
	TotalFailures   int64                   `json:"total_failures"`
	Uptime          time.Duration           `json:"uptime"`
	Routes          map[string]RouteMetrics `json:"routes"`
	UpstreamHealthy *bool                   `json:"upstream_healthy,omitempty"`
}

type RouteMetrics struct {
	Requests          int64         `json:"requests"`
	TransportFailures int64         `json:"transport_failures"`
	AvgResponse       time.Duration `json:"avg_response"`
	P50Response       time.Duration `json:"p50_response"`
	P95Response       time.Duration `json:"p95_response"`
	P99Response       time.Duration `json:"p99_response"`
	StatusCodes       map[int]int64 `json:"status_codes"`
}

func (m *Metrics) IncrementRequests(route string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.requests[route]++
}

func (m *Metrics) RecordResponse(route string, duration time.Duration, statusCode int) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.recordDuration(route, duration)

	if m.statusCodes[route] == nil {
		m.statusCodes[route] = make(map[int]int64)
	}
	m.statusCodes[route][statusCode]++
}

func (m *Metrics) RecordTransportFailure(route string, duration time.Duration) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.recordDuration(route, duration)
	m.failures[route]++
}

func (m *Metrics) recordDuration(route string, duration time.Duration) {
	m.responseTimes[route] = append(m.responseTimes[route], duration)

	if len(m.responseTimes[route]) > maxSamples {
		m.responseTimes[route] = m.responseTimes[route][1:]
	}
}

func (m *Metrics) UpdateUpstreamHealth(healthy bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.upstreamHealthy = healthy
	m.healthKnown = true
}

func (m *Metrics) Snapshot() Snapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	snap := Snapshot{
		Uptime: time.Since(m.startTime),
		Routes: make(map[string]RouteMetrics),
	}
	if m.healthKnown {
		healthy := m.upstreamHealthy
		snap.UpstreamHealthy = &healthy
	}

	allRoutes := make(map[string]bool)
	for route := range m.requests {
		allRoutes[route] = true
	}
	for route := range m.failures {
		allRoutes[route] = true
	}
	for route := range m.responseTimes {
		allRoutes[route] = true
	}

	for route := range allRoutes {
		snap.TotalRequests += m.requests[route]
		snap.TotalFailures += m.failures[route]

		rm := RouteMetrics{
			Requests:          m.requests[route],
			TransportFailures: m.failures[route],
			StatusCodes:       make(map[int]int64, len(m.statusCodes[route])),
		}
		for code, n := range m.statusCodes[route] {
			rm.StatusCodes[code] = n
		}

		durations := m.responseTimes[route]
		if len(durations) > 0 {
			sorted := make([]time.Duration, len(durations))
			copy(sorted, durations)
			sort.Slice(sorted, func(i, j int) bool {
				return sorted[i] < sorted[j]
			})

			rm.AvgResponse = average(sorted)
			rm.P50Response = percentile(sorted, 0.50)
			rm.P95Response = percentile(sorted, 0.95)
			rm.P99Response = percentile(sorted, 0.99)
		}

		snap.Routes[route] = rm
	}

	return snap
}

// LogValue renders the snapshot as a structured log group, routes sorted by
// name.
func (s Snapshot) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Int64("total_requests", s.TotalRequests),
		slog.Int64("total_failures", s.TotalFailures),
		slog.Duration("uptime", s.Uptime),
	}
	if s.UpstreamHealthy != nil {
		attrs = append(attrs, slog.Bool("upstream_healthy", *s.UpstreamHealthy))
	}

	routes := make([]string, 0, len(s.Routes))
	for route := range s.Routes {
		routes = append(routes, route)
	}
	sort.Strings(routes)

	for _, route := range routes {
		rm := s.Routes[route]
		routeAttrs := []any{
			slog.Int64("requests", rm.Requests),
			slog.Int64("transport_failures", rm.TransportFailures),
			slog.Duration("avg", rm.AvgResponse),
			slog.Duration("p95", rm.P95Response),
		}
		for code, n := range rm.StatusCodes {
			routeAttrs = append(routeAttrs, slog.Int64("status_"+strconv.Itoa(code), n))
		}
		attrs = append(attrs, slog.Group(route, routeAttrs...))
	}

	return slog.GroupValue(attrs...)
}

func NewMetrics() *Metrics {
	return &Metrics{
		requests:      make(map[string]int64),
		failures:      make(map[string]int64),
		responseTimes: make(map[string][]time.Duration),
		statusCodes:   make(map[string]map[int]int64),
		startTime:     time.Now(),
	}
}

func average(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return sum / time.Duration(len(durations))
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}

	index := int(float64(len(sorted)) * p)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}

	return sorted[index]
}
