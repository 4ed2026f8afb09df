package healthcheck

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/angeloszaimis/auth-proxy/internal/backend"
	"github.com/angeloszaimis/auth-proxy/internal/metrics"
)

// DefaultProbeTimeout bounds a single probe request.
const DefaultProbeTimeout = 5 * time.Second

// Config describes how the upstream is probed.
type Config struct {
	Interval time.Duration
	Path     string
	Timeout  time.Duration
}

// HealthCheck periodically checks if the upstream is reachable by sending
// HTTP GET requests to cfg.Path on it. Any status below 500 counts as
// reachable. Transitions are logged and reported to collector, which may be
// nil. HealthCheck returns when ctx is cancelled.
func HealthCheck(
	ctx context.Context,
	upstream *backend.Backend,
	cfg Config,
	collector *metrics.Collector,
	logger *slog.Logger,
) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	client := &http.Client{
		Timeout: timeout,
	}
	target := upstream.TargetURL(cfg.Path)

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Health check stopped",
				slog.String("upstream", upstream.URL()))
			return

		case <-ticker.C:
			healthy := probe(ctx, client, target)
			if !upstream.SetHealthy(healthy) {
				continue
			}

			collector.Emit(metrics.MetricEvent{
				Type:    metrics.EventHealthChanged,
				Healthy: healthy,
			})

			if healthy {
				logger.Info("Upstream is back up",
					slog.String("upstream", upstream.URL()))
			} else {
				logger.Warn("Upstream is down",
					slog.String("upstream", upstream.URL()),
					slog.String("probe", target))
			}
		}
	}
}

func probe(ctx context.Context, client *http.Client, target string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return false
	}

	res, err := client.Do(req)
	if err != nil {
		return false
	}
	defer res.Body.Close()
	io.Copy(io.Discard, res.Body)

	return res.StatusCode < http.StatusInternalServerError
}
