package v1_test

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitedesk/foreman/internal/agent"
	v1 "github.com/sitedesk/foreman/internal/api/v1"
)

func TestGetSession(t *testing.T) {
	t.Parallel()

	t.Run("happy path", func(t *testing.T) {
		t.Parallel()

		registry := agent.NewRegistry()
		session := registry.CreateSession("po_match")
		registry.AppendEvent(session.ID, agent.Event{
			Type:    agent.EventReasoning,
			Payload: map[string]any{"text": "Reading the invoice."},
		})

		_, api := humatest.New(t)
		v1.RegisterSessionRoutes(api, v1.Deps{Registry: registry})

		resp := api.Get("/sessions/" + session.ID.String())
		require.Equal(t, http.StatusOK, resp.Code)

		var body agent.Session
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, session.ID, body.ID)
		assert.Equal(t, "po_match", body.AgentID)
		require.Len(t, body.Events, 1)
		assert.Equal(t, agent.EventReasoning, body.Events[0].Type)
		assert.False(t, body.Done)
	})

	t.Run("unknown session", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		v1.RegisterSessionRoutes(api, v1.Deps{Registry: agent.NewRegistry()})

		resp := api.Get("/sessions/" + uuid.NewString())
		assert.Equal(t, http.StatusNotFound, resp.Code)
	})
}
