package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/angeloszaimis/auth-proxy/config"
	"github.com/angeloszaimis/auth-proxy/internal/backend"
	"github.com/angeloszaimis/auth-proxy/internal/healthcheck"
	"github.com/angeloszaimis/auth-proxy/internal/httpserver"
	"github.com/angeloszaimis/auth-proxy/internal/metrics"
	"github.com/angeloszaimis/auth-proxy/internal/state"
	"github.com/angeloszaimis/auth-proxy/internal/telemetry"
	"github.com/angeloszaimis/auth-proxy/pkg/logger"
)

const (
	serviceName    = "auth-proxy"
	serviceVersion = "0.1.0"

	metricsBufferSize = 1024
)

func main() {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	ctx, cancel := interruptContext(sigCh, os.Stderr, os.Exit)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)

	cancel()
	signal.Stop(sigCh)
	os.Exit(code)
}

// interruptContext is cancelled by the first signal received on sigCh. A
// second signal while draining calls exit with status 1.
func interruptContext(sigCh <-chan os.Signal, stderr io.Writer, exit func(int)) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})

	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-stopped:
			return
		}

		select {
		case <-sigCh:
		case <-stopped:
			return
		}

		select {
		case <-stopped:
		default:
			fmt.Fprintln(stderr, "Second interrupt received, exiting immediately")
			exit(1)
		}
	}()

	var once sync.Once
	return ctx, func() {
		once.Do(func() { close(stopped) })
		cancel()
	}
}

// run starts the proxy and blocks until ctx is cancelled and in-flight
// requests have drained. It returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if errors.Is(err, pflag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	exporter, err := telemetry.ParseExporter(opts.Telemetry)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	cfg, raw, err := config.Load(opts.ConfigPath)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	fmt.Fprintln(stdout, string(raw))

	log, closeLog, err := logger.New(logger.Options{
		Level:  opts.LogLevel,
		Format: opts.LogFormat,
		Output: stdout,
		File:   opts.LogFile,
	})
	if err != nil {
		fmt.Fprintf(stderr, "failed to open log file '%s': %v\n", opts.LogFile, err)
		return 1
	}
	defer closeLog()
	slog.SetDefault(log)

	shutdownTelemetry, err := telemetry.Setup(ctx, exporter, serviceName, serviceVersion)
	if err != nil {
		log.Error("Failed to set up telemetry", slog.Any("err", err))
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			log.Warn("Failed to flush telemetry", slog.Any("err", err))
		}
	}()

	log.Info("Loaded configuration", slog.String("file", opts.ConfigPath), slog.Any("config", *cfg))

	client := backend.NewHTTPClient(opts.client())
	st := state.New(*cfg, client)

	collectorCtx, stopCollector := context.WithCancel(context.Background())
	defer stopCollector()
	collector := metrics.NewCollector(metricsBufferSize, log)
	collector.Start(collectorCtx)

	addr := net.JoinHostPort(opts.Bind, strconv.Itoa(int(cfg.Port)))
	srv, err := httpserver.New(addr, setupRouter(st, collector, log),
		httpserver.WithDrainTimeout(opts.ShutdownTimeout),
		httpserver.WithLogger(log),
	)
	if err != nil {
		fmt.Fprintf(stderr, "invalid listen address '%s': %v\n", addr, err)
		return 1
	}

	if err := srv.Listen(); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	if opts.ProbeInterval > 0 {
		go healthcheck.HealthCheck(ctx, st.Backend(), opts.probe(), collector, log)
	}

	log.Info("Proxying requests",
		slog.String("addr", srv.Addr().String()),
		slog.String("upstream", cfg.BackendURL))

	runErr := srv.Run(ctx)
	log.Info("Shutdown signal received, draining finished")

	stopCollector()
	<-collector.Done()
	upstream := st.Backend()
	log.Info("Final metrics",
		slog.Any("metrics", collector.Snapshot()),
		slog.Bool("upstream_healthy", upstream.IsHealthy()),
		slog.Duration("upstream_ewma", upstream.EWMATime()))

	if runErr != nil {
		log.Error("Error during shutdown", slog.Any("err", runErr))
		return 1
	}

	fmt.Fprintln(stdout, "Server shut down gracefully")
	return 0
}
