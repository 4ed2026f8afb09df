// Package state holds the immutable application state shared by the
// credential middleware and every request handler.
package state

import (
	"github.com/angeloszaimis/auth-proxy/config"
	"github.com/angeloszaimis/auth-proxy/internal/backend"
)

// State bundles the resolved configuration and the upstream client. It is
// created once at startup and shared by pointer; nothing mutates it.
type State struct {
	config  config.Config
	backend *backend.Backend
}

// New copies cfg and binds an upstream backend for its backend_url.
func New(cfg config.Config, client backend.Doer) *State {
	return &State{
		config:  clone(cfg),
		backend: backend.New(cfg.BackendURL, client),
	}
}

// Config returns a copy of the resolved configuration.
func (s *State) Config() config.Config {
	return clone(s.config)
}

func clone(cfg config.Config) config.Config {
	if cfg.ExtraValues != nil {
		extra := *cfg.ExtraValues
		cfg.ExtraValues = &extra
	}
	return cfg
}

// Backend returns the shared upstream client.
func (s *State) Backend() *backend.Backend {
	return s.backend
}
