package logger_test

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.opentelemetry.io/otel/trace"

	"github.com/angeloszaimis/auth-proxy/pkg/logger"
)

var _ = Describe("Logger", func() {
	ctx := context.Background()

	newLogger := func(opts logger.Options) *slog.Logger {
		log, cleanup, err := logger.New(opts)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(cleanup)
		return log
	}

	Describe("New", func() {
		It("should default to info level", func() {
			log := newLogger(logger.Options{})
			Expect(log.Enabled(ctx, slog.LevelInfo)).To(BeTrue())
			Expect(log.Enabled(ctx, slog.LevelDebug)).To(BeFalse())
		})

		It("should default to info for invalid level", func() {
			log := newLogger(logger.Options{Level: "invalid"})
			Expect(log.Enabled(ctx, slog.LevelInfo)).To(BeTrue())
			Expect(log.Enabled(ctx, slog.LevelDebug)).To(BeFalse())
		})

		It("should respect debug level", func() {
			log := newLogger(logger.Options{Level: "debug"})
			Expect(log.Enabled(ctx, slog.LevelDebug)).To(BeTrue())
		})

		It("should respect warn level", func() {
			log := newLogger(logger.Options{Level: "WARN"})
			Expect(log.Enabled(ctx, slog.LevelInfo)).To(BeFalse())
			Expect(log.Enabled(ctx, slog.LevelWarn)).To(BeTrue())
		})

		It("should respect error level", func() {
			log := newLogger(logger.Options{Level: "error"})
			Expect(log.Enabled(ctx, slog.LevelWarn)).To(BeFalse())
			Expect(log.Enabled(ctx, slog.LevelError)).To(BeTrue())
		})

		It("should write text by default", func() {
			var buf bytes.Buffer
			log := newLogger(logger.Options{Output: &buf})
			log.Info("hello", slog.String("k", "v"))
			Expect(buf.String()).To(ContainSubstring("msg=hello"))
			Expect(buf.String()).To(ContainSubstring("k=v"))
		})

		It("should write JSON when asked", func() {
			var buf bytes.Buffer
			log := newLogger(logger.Options{Format: logger.FormatJSON, Output: &buf})
			log.Info("hello")
			Expect(buf.String()).To(ContainSubstring(`"msg":"hello"`))
		})
	})

	Describe("file output", func() {
		It("should also write JSON records to the log file", func() {
			dir := GinkgoT().TempDir()
			file := filepath.Join(dir, "logs", "proxy.log")

			var buf bytes.Buffer
			log, cleanup, err := logger.New(logger.Options{Output: &buf, File: file})
			Expect(err).NotTo(HaveOccurred())

			log.With(slog.String("component", "test")).Warn("written twice")
			cleanup()

			Expect(buf.String()).To(ContainSubstring("written twice"))
			data, err := os.ReadFile(file)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(ContainSubstring(`"msg":"written twice"`))
			Expect(string(data)).To(ContainSubstring(`"component":"test"`))
		})
	})

	Describe("trace correlation", func() {
		It("should add trace and span ids from the context", func() {
			traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
			spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
			spanCtx := trace.ContextWithSpanContext(ctx, trace.NewSpanContext(trace.SpanContextConfig{
				TraceID:    traceID,
				SpanID:     spanID,
				TraceFlags: trace.FlagsSampled,
			}))

			var buf bytes.Buffer
			log := newLogger(logger.Options{Output: &buf})
			log.InfoContext(spanCtx, "traced")

			Expect(buf.String()).To(ContainSubstring("trace.id=4bf92f3577b34da6a3ce929d0e0e4736"))
			Expect(buf.String()).To(ContainSubstring("span.id=00f067aa0ba902b7"))
		})

		It("should not add ids without a span", func() {
			var buf bytes.Buffer
			log := newLogger(logger.Options{Output: &buf})
			log.InfoContext(ctx, "untraced")
			Expect(buf.String()).NotTo(ContainSubstring("trace.id"))
		})
	})
})
