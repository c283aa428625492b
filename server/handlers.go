// Package server exposes the HTTP API handlers.
package server

import (
	"database/sql"
	"time"

	"github.com/onnwee/chatdeck/app"
	"github.com/onnwee/chatdeck/config"
	"github.com/onnwee/chatdeck/events"
)

// ssePingInterval keeps idle event streams alive through proxies.
const ssePingInterval = 15 * time.Second

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	app     *app.App
	hub     *events.Hub
	db      *sql.DB
	cfg     *config.Config
	started time.Time
	ping    time.Duration
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(deps Deps) *Handlers {
	cfg := deps.Config
	if cfg == nil {
		cfg = &config.Config{}
	}
	return &Handlers{
		app:     deps.App,
		hub:     deps.Hub,
		db:      deps.DB,
		cfg:     cfg,
		started: time.Now(),
		ping:    ssePingInterval,
	}
}
