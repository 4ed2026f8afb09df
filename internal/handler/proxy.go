package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/angeloszaimis/auth-proxy/internal/backend"
	"github.com/angeloszaimis/auth-proxy/internal/metrics"
)

const (
	outcomeSuccess   = "success"
	outcomeTransport = "transport_error"
	outcomeClient    = "client_error"
	outcomeServer    = "server_error"
)

// Proxy forwards a GET request to the upstream. The escaped request path
// without its leading slash is appended to the backend URL; the query string
// is not forwarded. Any upstream response is relayed with status 200 and its
// body; the upstream status code is logged and recorded but not propagated.
// When no response can be obtained the caller receives 502 with a
// "Proxy error: <cause>" body.
func (h *Handler) Proxy(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.EscapedPath(), "/")
	if path == "" {
		h.NotFound(w, r)
		return
	}

	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	ctx, span := h.tracer.Start(ctx, "proxy.forward",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attribute.String("proxy.path", path)),
	)
	defer span.End()

	clientIP := extractClientIP(r)
	upstream := h.state.Backend()

	h.logger.InfoContext(ctx, "Received request",
		slog.String("from", clientIP),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("proto", r.Proto),
		slog.String("user_agent", r.UserAgent()))

	h.emitEvent(metrics.MetricEvent{
		Type:  metrics.EventRequestReceived,
		Route: RouteProxy,
	})

	start := time.Now()
	res, err := upstream.Fetch(ctx, path, r.Header)
	duration := time.Since(start)

	if err != nil {
		h.handleTransportError(ctx, w, r, span, err, duration)
		return
	}

	h.logger.InfoContext(ctx, "Upstream responded",
		slog.String("client", clientIP),
		slog.String("target", upstream.TargetURL(path)),
		slog.Int("upstream_status", res.StatusCode),
		slog.Duration("duration", duration))

	span.SetAttributes(attribute.Int("proxy.upstream.status_code", res.StatusCode))
	h.emitEvent(metrics.MetricEvent{
		Type:       metrics.EventResponseCompleted,
		Route:      RouteProxy,
		Duration:   duration,
		StatusCode: res.StatusCode,
	})
	h.recordUpstream(ctx, duration, outcomeFor(res.StatusCode))
	h.countRequest(r, RouteProxy, outcomeFor(res.StatusCode))

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(res.Body))
}

func (h *Handler) handleTransportError(ctx context.Context, w http.ResponseWriter, r *http.Request, span trace.Span, err error, duration time.Duration) {
	attrs := []any{
		slog.String("client", extractClientIP(r)),
		slog.String("path", r.URL.Path),
		slog.Duration("duration", duration),
		slog.Any("err", err),
	}

	var transportErr *backend.TransportError
	if errors.As(err, &transportErr) {
		attrs = append(attrs, slog.String("target", transportErr.URL))
	}

	if errors.Is(err, context.Canceled) && r.Context().Err() != nil {
		h.logger.DebugContext(ctx, "Client went away before upstream responded", attrs...)
	} else {
		h.logger.WarnContext(ctx, "Upstream transport failure", attrs...)
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, "upstream transport failure")

	h.emitEvent(metrics.MetricEvent{
		Type:     metrics.EventTransportFailed,
		Route:    RouteProxy,
		Duration: duration,
	})
	h.recordUpstream(ctx, duration, outcomeTransport)
	h.countRequest(r, RouteProxy, outcomeTransport)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusBadGateway)
	w.Write([]byte("Proxy error: " + err.Error()))
}

func (h *Handler) countRequest(r *http.Request, route, outcome string) {
	if h.requests == nil {
		return
	}
	h.requests.Add(r.Context(), 1, metric.WithAttributes(
		attribute.String("route", route),
		attribute.String("outcome", outcome),
	))
}

func (h *Handler) recordUpstream(ctx context.Context, duration time.Duration, outcome string) {
	if h.upstreamDuration == nil {
		return
	}
	h.upstreamDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("outcome", outcome),
	))
}

func outcomeFor(statusCode int) string {
	switch {
	case statusCode >= 500:
		return outcomeServer
	case statusCode >= 400:
		return outcomeClient
	default:
		return outcomeSuccess
	}
}
