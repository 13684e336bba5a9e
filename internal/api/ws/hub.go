package ws

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sitedesk/foreman/internal/agent"
	redisstore "github.com/sitedesk/foreman/internal/store/redis"
)

// pollInterval bounds how stale a client's view can get when no Redis
// notification arrives.
const pollInterval = 100 * time.Millisecond

// Hub streams session events over WebSocket. The in-memory registry is the
// source of truth; Redis pub/sub, when configured, wakes the stream loop as
// soon as a new event lands instead of waiting out the poll interval.
type Hub struct {
	registry *agent.Registry
	pubsub   *redisstore.PubSub // may be nil
}

// NewHub creates a WebSocket hub. pubsub may be nil; the hub then falls back
// to pure polling.
func NewHub(registry *agent.Registry, pubsub *redisstore.PubSub) *Hub {
	return &Hub{registry: registry, pubsub: pubsub}
}

// ServeSession handles WebSocket connections for live agent session output.
// Events already appended are replayed first; the stream closes after the
// terminal event once the session is done.
func (h *Hub) ServeSession(w http.ResponseWriter, r *http.Request) {
	sessionIDStr := chi.URLParam(r, "sessionID")
	sessionID, err := uuid.Parse(sessionIDStr)
	if err != nil {
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("websocket accept")
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()

	var wake <-chan []byte
	if h.pubsub != nil {
		messages, cleanup, subErr := h.pubsub.Subscribe(ctx, redisstore.SessionChannel(sessionID))
		if subErr != nil {
			log.Error().Err(subErr).Msg("websocket subscribe")
			_ = conn.Close(websocket.StatusInternalError, "subscribe failed")
			return
		}
		defer cleanup()
		wake = messages
	}

	sent := 0
	for {
		session, ok := h.registry.GetSession(sessionID)
		if !ok {
			payload, _ := json.Marshal(map[string]any{
				"type":       "error",
				"payload":    map[string]any{"message": "Unknown session"},
				"session_id": sessionIDStr,
			})
			_ = conn.Write(ctx, websocket.MessageText, payload)
			_ = conn.Close(websocket.StatusNormalClosure, "unknown session")
			return
		}

		for ; sent < len(session.Events); sent++ {
			payload, marshalErr := json.Marshal(session.Events[sent])
			if marshalErr != nil {
				log.Error().Err(marshalErr).Msg("websocket marshal event")
				continue
			}
			if writeErr := conn.Write(ctx, websocket.MessageText, payload); writeErr != nil {
				log.Debug().Err(writeErr).Msg("websocket write")
				return
			}
		}

		if session.Done && sent >= len(session.Events) {
			_ = conn.Close(websocket.StatusNormalClosure, "session complete")
			return
		}

		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "connection closed")
			return
		case _, wakeOK := <-wake:
			if !wakeOK {
				wake = nil
			}
		case <-time.After(pollInterval):
		}
	}
}
