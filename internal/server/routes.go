package server

import (
	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	v1 "github.com/sitedesk/foreman/internal/api/v1"
	"github.com/sitedesk/foreman/internal/api/ws"
)

func registerAPIRoutes(api huma.API, deps v1.Deps) {
	v1.Register(api, deps)
}

func registerWSRoutes(r chi.Router, hub *ws.Hub) {
	r.Get("/sessions/{sessionID}", hub.ServeSession)
}
