package v1

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"github.com/sitedesk/foreman/internal/agent"
)

type GetSessionInput struct {
	SessionID uuid.UUID `path:"session_id" doc:"Session ID"`
}

type GetSessionOutput struct {
	Body agent.Session
}

// RegisterSessionRoutes exposes session snapshots for polling clients. The
// WebSocket stream is the primary surface; this is the fallback.
func RegisterSessionRoutes(api huma.API, d Deps) {
	huma.Register(api, huma.Operation{
		OperationID: "get-session",
		Method:      http.MethodGet,
		Path:        "/sessions/{session_id}",
		Summary:     "Get a session snapshot",
		Tags:        []string{"Sessions"},
	}, func(ctx context.Context, input *GetSessionInput) (*GetSessionOutput, error) {
		session, ok := d.Registry.GetSession(input.SessionID)
		if !ok {
			return nil, huma.Error404NotFound("unknown session")
		}
		return &GetSessionOutput{Body: session}, nil
	})
}
