package ws_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitedesk/foreman/internal/agent"
	"github.com/sitedesk/foreman/internal/api/ws"
)

func newTestServer(t *testing.T, registry *agent.Registry) *httptest.Server {
	t.Helper()
	hub := ws.NewHub(registry, nil)
	router := chi.NewRouter()
	router.Get("/ws/sessions/{sessionID}", hub.ServeSession)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func readEvent(ctx context.Context, t *testing.T, conn *websocket.Conn) agent.Event {
	t.Helper()
	_, raw, err := conn.Read(ctx)
	require.NoError(t, err)
	var event agent.Event
	require.NoError(t, json.Unmarshal(raw, &event))
	return event
}

func TestServeSessionReplaysAndCloses(t *testing.T) {
	t.Parallel()

	registry := agent.NewRegistry()
	session := registry.CreateSession("po_match")
	registry.AppendEvent(session.ID, agent.Event{
		Type:      agent.EventThinking,
		Payload:   map[string]any{"message": "Reading invoice"},
		SessionID: session.ID,
	})
	registry.AppendEvent(session.ID, agent.Event{
		Type:      agent.EventComplete,
		Payload:   map[string]any{"output": map[string]any{"processed": float64(1)}},
		SessionID: session.ID,
	})

	srv := newTestServer(t, registry)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, srv.URL+"/ws/sessions/"+session.ID.String(), nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	first := readEvent(ctx, t, conn)
	assert.Equal(t, agent.EventThinking, first.Type)
	assert.Equal(t, "Reading invoice", first.Payload["message"])

	second := readEvent(ctx, t, conn)
	assert.Equal(t, agent.EventComplete, second.Type)

	_, _, err = conn.Read(ctx)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusNormalClosure, websocket.CloseStatus(err))
}

func TestServeSessionStreamsLiveEvents(t *testing.T) {
	t.Parallel()

	registry := agent.NewRegistry()
	session := registry.CreateSession("ar_followup")

	srv := newTestServer(t, registry)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, srv.URL+"/ws/sessions/"+session.ID.String(), nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	go func() {
		time.Sleep(50 * time.Millisecond)
		registry.AppendEvent(session.ID, agent.Event{
			Type:      agent.EventToolResult,
			Payload:   map[string]any{"message": "Drafted reminder email"},
			SessionID: session.ID,
		})
		registry.AppendEvent(session.ID, agent.Event{
			Type:      agent.EventComplete,
			Payload:   map[string]any{"output": map[string]any{"emails_sent": float64(1)}},
			SessionID: session.ID,
		})
	}()

	first := readEvent(ctx, t, conn)
	assert.Equal(t, agent.EventToolResult, first.Type)

	second := readEvent(ctx, t, conn)
	assert.Equal(t, agent.EventComplete, second.Type)

	_, _, err = conn.Read(ctx)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusNormalClosure, websocket.CloseStatus(err))
}

func TestServeSessionUnknownSession(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, agent.NewRegistry())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, srv.URL+"/ws/sessions/"+uuid.NewString(), nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	_, raw, err := conn.Read(ctx)
	require.NoError(t, err)
	var msg map[string]any
	require.NoError(t, json.Unmarshal(raw, &msg))
	assert.Equal(t, "error", msg["type"])

	_, _, err = conn.Read(ctx)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusNormalClosure, websocket.CloseStatus(err))
}

func TestServeSessionInvalidID(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, agent.NewRegistry())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, resp, err := websocket.Dial(ctx, srv.URL+"/ws/sessions/not-a-uuid", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
