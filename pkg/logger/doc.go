// Package logger provides structured logging with configurable log levels.
// It wraps the standard log/slog package with text or JSON output, an
// optional rotated log file and trace context correlation.
package logger
