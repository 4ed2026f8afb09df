package config

import (
	"errors"
	"fmt"
)

var (
	// ErrConfigRead marks failures to read the configuration file.
	ErrConfigRead = errors.New("config read error")
	// ErrConfigParse marks malformed documents and unknown or invalid fields.
	ErrConfigParse = errors.New("config parse error")
)

// ReadError is returned when the configuration file cannot be read.
type ReadError struct {
	Path string
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("failed to read config file '%s': %v", e.Path, e.Err)
}

func (e *ReadError) Unwrap() []error {
	return []error{ErrConfigRead, e.Err}
}

// ParseError is returned when the configuration file cannot be decoded.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse config file '%s': %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() []error {
	return []error{ErrConfigParse, e.Err}
}
