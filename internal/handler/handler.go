package handler

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/angeloszaimis/auth-proxy/internal/metrics"
	"github.com/angeloszaimis/auth-proxy/internal/state"
)

const instrumentationName = "github.com/angeloszaimis/auth-proxy/internal/handler"

const (
	RouteProxy    = "proxy"
	RouteHealth   = "health"
	RouteConfig   = "config"
	RouteFallback = "fallback"
)

// APIResponse is the JSON body of the auxiliary endpoints.
type APIResponse struct {
	Data string `json:"data"`
	Code int    `json:"code"`
}

// Handler serves every route of the proxy from one shared state.
type Handler struct {
	logger           *slog.Logger
	state            *state.State
	metricsCollector *metrics.Collector
	tracer           trace.Tracer
	requests         metric.Int64Counter
	upstreamDuration metric.Float64Histogram
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

// New creates a Handler. collector may be nil.
func New(logger *slog.Logger, st *state.State, collector *metrics.Collector) *Handler {
	meter := otel.Meter(instrumentationName)

	requests, err := meter.Int64Counter("proxy.requests",
		metric.WithDescription("Requests handled by the proxy, by route and outcome"),
	)
	if err != nil {
		logger.Warn("failed to create request counter", slog.Any("err", err))
	}

	upstreamDuration, err := meter.Float64Histogram("proxy.upstream.duration",
		metric.WithDescription("Duration of upstream exchanges"),
		metric.WithUnit("s"),
	)
	if err != nil {
		logger.Warn("failed to create upstream duration histogram", slog.Any("err", err))
	}

	if err := registerUpstreamGauges(meter, st.Backend()); err != nil {
		logger.Warn("failed to register upstream gauges", slog.Any("err", err))
	}

	return &Handler{
		logger:           logger,
		state:            st,
		metricsCollector: collector,
		tracer:           otel.Tracer(instrumentationName),
		requests:         requests,
		upstreamDuration: upstreamDuration,
	}
}

// Health reports liveness. It never contacts the upstream.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.track(RouteHealth, w, r, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusAccepted, APIResponse{Data: "OK", Code: http.StatusOK})
	})
}

// Config echoes the configured backend URL. The secret is never included.
func (h *Handler) Config(w http.ResponseWriter, r *http.Request) {
	h.track(RouteConfig, w, r, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusAccepted, APIResponse{
			Data: "backend_url:" + h.state.Config().BackendURL,
			Code: http.StatusOK,
		})
	})
}

// NotFound answers every request that matches no route.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	h.track(RouteFallback, w, r, h.notFound)
}

func (h *Handler) notFound(w http.ResponseWriter, r *http.Request) {
	h.logger.DebugContext(r.Context(), "Unidentified endpoint",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path))

	writeJSON(w, http.StatusNotFound, APIResponse{Data: "Unidentified endpoint", Code: http.StatusNotFound})
}

func (h *Handler) track(route string, w http.ResponseWriter, r *http.Request, fn http.HandlerFunc) {
	h.emitEvent(metrics.MetricEvent{
		Type:  metrics.EventRequestReceived,
		Route: route,
	})

	start := time.Now()
	wrapped := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
	fn(wrapped, r)

	h.emitEvent(metrics.MetricEvent{
		Type:       metrics.EventResponseCompleted,
		Route:      route,
		Duration:   time.Since(start),
		StatusCode: wrapped.statusCode,
	})
	h.countRequest(r, route, outcomeFor(wrapped.statusCode))
}

func (h *Handler) emitEvent(event metrics.MetricEvent) {
	h.metricsCollector.Emit(event)
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, statusCode int, body APIResponse) {
	payload, err := json.Marshal(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	w.Write(payload)
}

func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
