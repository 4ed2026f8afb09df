// Package metrics collects per-route request outcomes for the proxy.
//
// It uses a channel-based event pipeline to asynchronously record:
//   - Request counts per route (proxy, health, config, fallback)
//   - Upstream transport failures
//   - Response times with percentile calculations (P50, P95, P99)
//   - Upstream status code distribution
//   - Upstream reachability as reported by the optional probe
//
// The collector runs in a dedicated goroutine and processes events without
// blocking the request path. Events are sent with non-blocking semantics and
// dropped when the buffer is full.
//
// Example usage:
//
//	collector := metrics.NewCollector(1000, logger)
//	collector.Start(ctx)
//
//	collector.Emit(metrics.MetricEvent{
//		Type:       metrics.EventResponseCompleted,
//		Route:      "proxy",
//		Duration:   150 * time.Millisecond,
//		StatusCode: 404,
//	})
//
//	logger.Info("final metrics", slog.Any("metrics", collector.Snapshot()))
//
// Pending events are drained when the start context is cancelled.
package metrics
