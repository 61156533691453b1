// Package handlers implements the renderhub HTTP endpoints.
package handlers

import (
	"context"

	"renderhub/internal/logbuf"
	"renderhub/internal/logstream"
	"renderhub/internal/pkg/logger"
	"renderhub/internal/ports"
	"renderhub/internal/render"
	"renderhub/internal/webhook"
)

// Pinger is a dependency the deep health check can probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Queue    *render.Queue
	Logs     *logbuf.Buffer
	Webhooks *webhook.Registry
	// Stream feeds /logs/stream. Nil disables live tailing.
	Stream *logstream.Hub
	// Artifacts is served under /artifacts when set.
	Artifacts ports.StorageProvider
	// Checks are probed by /health?deep=true, keyed by name.
	Checks map[string]Pinger

	Log     *logger.Logger
	Service string
	Version string
}

type Handler struct {
	queue     *render.Queue
	logs      *logbuf.Buffer
	webhooks  *webhook.Registry
	stream    *logstream.Hub
	artifacts ports.StorageProvider
	checks    map[string]Pinger

	log     *logger.Logger
	service string
	version string
}

func New(d Deps) *Handler {
	if d.Log == nil {
		d.Log = logger.Discard()
	}
	if d.Service == "" {
		d.Service = "renderhub-api"
	}
	return &Handler{
		queue:     d.Queue,
		logs:      d.Logs,
		webhooks:  d.Webhooks,
		stream:    d.Stream,
		artifacts: d.Artifacts,
		checks:    d.Checks,
		log:       d.Log.WithComponent("http"),
		service:   d.Service,
		version:   d.Version,
	}
}

// Log is the logger handlers report through.
func (h *Handler) Log() *logger.Logger { return h.log }

// ServesArtifacts reports whether an artifact store is mounted.
func (h *Handler) ServesArtifacts() bool { return h.artifacts != nil }
