package main

import (
	"log/slog"
	"net/http"

	"github.com/angeloszaimis/auth-proxy/internal/credential"
	"github.com/angeloszaimis/auth-proxy/internal/handler"
	"github.com/angeloszaimis/auth-proxy/internal/metrics"
	"github.com/angeloszaimis/auth-proxy/internal/state"
)

// setupRouter wires the credential injector in front of every route.
func setupRouter(st *state.State, metricsCollector *metrics.Collector, log *slog.Logger) http.Handler {
	h := handler.New(log, st, metricsCollector)

	return credential.Middleware(st, log)(h.Routes())
}
