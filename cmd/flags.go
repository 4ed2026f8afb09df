package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/angeloszaimis/auth-proxy/config"
	"github.com/angeloszaimis/auth-proxy/internal/backend"
	"github.com/angeloszaimis/auth-proxy/internal/healthcheck"
	"github.com/angeloszaimis/auth-proxy/internal/httpserver"
)

const (
	flagConfig          = "config"
	flagBind            = "bind"
	flagLogLevel        = "log-level"
	flagLogFormat       = "log-format"
	flagLogFile         = "log-file"
	flagTelemetry       = "telemetry"
	flagShutdownTimeout = "shutdown-timeout"
	flagUpstreamTimeout = "upstream-timeout"
	flagDialTimeout     = "upstream-dial-timeout"
	flagTLSTimeout      = "upstream-tls-timeout"
	flagProbeInterval   = "probe-interval"
	flagProbePath       = "probe-path"

	envConfigPath = "CONFIG_PATH"
)

// options holds the resolved command line.
type options struct {
	ConfigPath      string
	Bind            string
	LogLevel        string
	LogFormat       string
	LogFile         string
	Telemetry       string
	ShutdownTimeout time.Duration
	UpstreamTimeout time.Duration
	DialTimeout     time.Duration
	TLSTimeout      time.Duration
	ProbeInterval   time.Duration
	ProbePath       string
}

// parseFlags resolves args. The config path may also come from CONFIG_PATH;
// an explicit flag wins over the environment.
func parseFlags(args []string, stderr io.Writer) (*options, error) {
	fs := pflag.NewFlagSet("auth-proxy", pflag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringP(flagConfig, "c", config.DefaultPath, "path to the configuration file (env "+envConfigPath+")")
	fs.String(flagBind, "0.0.0.0", "host to listen on")
	fs.String(flagLogLevel, "info", "log level: debug, info, warn or error")
	fs.String(flagLogFormat, "text", "log format: text or json")
	fs.String(flagLogFile, "", "also write JSON logs to this file, rotated")
	fs.String(flagTelemetry, "none", "telemetry exporter: none, console or otlp")
	fs.Duration(flagShutdownTimeout, httpserver.DefaultDrainTimeout, "how long in-flight requests may run after an interrupt")
	fs.Duration(flagUpstreamTimeout, 0, "response header timeout for upstream requests (0 disables)")
	fs.Duration(flagDialTimeout, 0, "connect timeout for upstream requests (0 keeps the transport default)")
	fs.Duration(flagTLSTimeout, 0, "TLS handshake timeout for upstream requests (0 keeps the transport default)")
	fs.Duration(flagProbeInterval, 0, "upstream reachability probe interval (0 disables)")
	fs.String(flagProbePath, "health", "path probed on the upstream")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	if err := v.BindPFlags(fs); err != nil {
		return nil, err
	}
	if err := v.BindEnv(flagConfig, envConfigPath); err != nil {
		return nil, err
	}

	opts := &options{
		ConfigPath:      v.GetString(flagConfig),
		Bind:            v.GetString(flagBind),
		LogLevel:        v.GetString(flagLogLevel),
		LogFormat:       v.GetString(flagLogFormat),
		LogFile:         v.GetString(flagLogFile),
		Telemetry:       v.GetString(flagTelemetry),
		ShutdownTimeout: v.GetDuration(flagShutdownTimeout),
		UpstreamTimeout: v.GetDuration(flagUpstreamTimeout),
		DialTimeout:     v.GetDuration(flagDialTimeout),
		TLSTimeout:      v.GetDuration(flagTLSTimeout),
		ProbeInterval:   v.GetDuration(flagProbeInterval),
		ProbePath:       v.GetString(flagProbePath),
	}

	if opts.ShutdownTimeout <= 0 {
		return nil, fmt.Errorf("--%s must be positive, got %s", flagShutdownTimeout, opts.ShutdownTimeout)
	}
	if opts.UpstreamTimeout < 0 || opts.DialTimeout < 0 || opts.TLSTimeout < 0 || opts.ProbeInterval < 0 {
		return nil, fmt.Errorf("durations must not be negative")
	}

	return opts, nil
}

func (o *options) client() backend.ClientOptions {
	return backend.ClientOptions{
		DialTimeout:           o.DialTimeout,
		TLSHandshakeTimeout:   o.TLSTimeout,
		ResponseHeaderTimeout: o.UpstreamTimeout,
	}
}

func (o *options) probe() healthcheck.Config {
	return healthcheck.Config{
		Interval: o.ProbeInterval,
		Path:     o.ProbePath,
	}
}
