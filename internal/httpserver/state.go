package httpserver

import (
	"errors"
	"fmt"
)

type State int32

const (
	StateIdle     State = iota // Created, not serving yet
	StateRunning               // Accepting connections
	StateDraining              // Listener closed, waiting for in-flight requests
	StateStopped               // Done
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRunning:
		return "RUNNING"
	case StateDraining:
		return "DRAINING"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

var (
	// ErrSocketBind marks failures to bind the listening socket.
	ErrSocketBind = errors.New("socket bind error")
	// ErrAlreadyStarted is returned when Run is called more than once.
	ErrAlreadyStarted = errors.New("server already started")
)

// BindError is returned by Listen when the address cannot be bound.
type BindError struct {
	Addr string
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("failed to bind %s: %v", e.Addr, e.Err)
}

func (e *BindError) Unwrap() []error {
	return []error{ErrSocketBind, e.Err}
}
