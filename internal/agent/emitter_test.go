package agent_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitedesk/foreman/internal/agent"
	"github.com/sitedesk/foreman/internal/domain"
)

type recordingActivityRepo struct {
	mu      sync.Mutex
	entries []*domain.ActivityLog
}

func (r *recordingActivityRepo) Insert(_ context.Context, entry *domain.ActivityLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}

func (r *recordingActivityRepo) ListByAgent(context.Context, string, int) ([]*domain.ActivityLog, error) {
	return nil, nil
}

func (r *recordingActivityRepo) ListBySession(context.Context, uuid.UUID) ([]*domain.ActivityLog, error) {
	return nil, nil
}

func (r *recordingActivityRepo) Clear(context.Context) error { return nil }

func (r *recordingActivityRepo) all() []*domain.ActivityLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.ActivityLog, len(r.entries))
	copy(out, r.entries)
	return out
}

type recordingPublisher struct {
	mu       sync.Mutex
	payloads [][]byte
}

func (p *recordingPublisher) PublishEvent(_ context.Context, _ uuid.UUID, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.payloads = append(p.payloads, payload)
	return nil
}

func (p *recordingPublisher) all() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]byte, len(p.payloads))
	copy(out, p.payloads)
	return out
}

func newTestEmitter(t *testing.T, multiplier float64) (*agent.Emitter, *agent.Registry, uuid.UUID, *recordingActivityRepo, *recordingPublisher) {
	t.Helper()

	registry := agent.NewRegistry()
	s := registry.CreateSession("po_match")
	activity := &recordingActivityRepo{}
	publisher := &recordingPublisher{}
	em := agent.NewEmitter(registry, activity, publisher, s.ID, "po_match", multiplier)
	return em, registry, s.ID, activity, publisher
}

func TestEmitterEmit(t *testing.T) {
	t.Parallel()

	t.Run("short event hits the token floors", func(t *testing.T) {
		t.Parallel()

		em, registry, sessionID, activity, _ := newTestEmitter(t, 1.0)

		require.NoError(t, em.Emit(context.Background(), agent.EventReasoning, map[string]any{"text": "ok"}, "ok"))

		assert.Equal(t, 24, em.TotalInputTokens)
		assert.Equal(t, 18, em.TotalOutputTokens)
		wantCost := 24*0.000003 + 18*0.000015
		assert.InDelta(t, wantCost, em.TotalRawCost, 1e-9)
		assert.InDelta(t, wantCost, em.TotalCost, 1e-9)

		got, ok := registry.GetSession(sessionID)
		require.True(t, ok)
		require.Len(t, got.Events, 1)
		assert.Equal(t, agent.EventReasoning, got.Events[0].Type)

		entries := activity.all()
		require.Len(t, entries, 1)
		assert.Equal(t, "po_match", entries[0].AgentID)
		assert.Equal(t, agent.EventReasoning, entries[0].EventType)
		assert.Equal(t, 24, entries[0].InputTokens)
	})

	t.Run("multiplier scales projected cost only", func(t *testing.T) {
		t.Parallel()

		em, _, _, _, _ := newTestEmitter(t, 10.0)

		require.NoError(t, em.Emit(context.Background(), agent.EventStatusChange, map[string]any{"status": "working"}, "Working"))

		assert.InDelta(t, em.TotalRawCost*10, em.TotalCost, 1e-9)
		assert.Greater(t, em.TotalCost, em.TotalRawCost)
	})

	t.Run("cost accumulates across events", func(t *testing.T) {
		t.Parallel()

		em, _, _, activity, _ := newTestEmitter(t, 1.0)

		require.NoError(t, em.Reasoning(context.Background(), "Reading the invoice header fields"))
		require.NoError(t, em.ToolCall(context.Background(), "search_purchase_orders", map[string]any{"po_number": "PO-1"}))

		assert.Len(t, activity.all(), 2)
		assert.Equal(t, em.TotalInputTokens, activity.all()[0].InputTokens+activity.all()[1].InputTokens)
		assert.Greater(t, em.TotalRawCost, 0.0)
	})
}

func TestEmitterEmitLLM(t *testing.T) {
	t.Parallel()

	em, _, _, activity, _ := newTestEmitter(t, 4.0)

	err := em.EmitLLM(context.Background(), agent.EventToolResult,
		map[string]any{"tool": "select_po"}, "Selected PO-2024-0892", 1000, 200)
	require.NoError(t, err)

	wantRaw := 1000*0.000003 + 200*0.000015
	assert.InDelta(t, wantRaw, em.TotalRawCost, 1e-9)
	assert.InDelta(t, wantRaw*4, em.TotalCost, 1e-9)
	assert.Equal(t, 1000, em.TotalInputTokens)
	assert.Equal(t, 200, em.TotalOutputTokens)

	entries := activity.all()
	require.Len(t, entries, 1)
	assert.Equal(t, 1000, entries[0].InputTokens)
	assert.Equal(t, 200, entries[0].OutputTokens)
	assert.InDelta(t, wantRaw*4, entries[0].Cost, 1e-9)
}

func TestEmitterThinking(t *testing.T) {
	t.Parallel()

	em, registry, sessionID, activity, publisher := newTestEmitter(t, 1.0)

	em.Thinking(context.Background(), "Comparing line items against the PO...")

	got, ok := registry.GetSession(sessionID)
	require.True(t, ok)
	require.Len(t, got.Events, 1)
	assert.Equal(t, agent.EventThinking, got.Events[0].Type)

	// Thinking is stream-only: no activity row, no cost.
	assert.Empty(t, activity.all())
	assert.Zero(t, em.TotalCost)
	assert.Zero(t, em.TotalInputTokens)

	payloads := publisher.all()
	require.Len(t, payloads, 1)
	var event agent.Event
	require.NoError(t, json.Unmarshal(payloads[0], &event))
	assert.Equal(t, agent.EventThinking, event.Type)
	assert.Equal(t, sessionID, event.SessionID)
}

func TestEmitterPublisherReceivesPersistedEvents(t *testing.T) {
	t.Parallel()

	em, _, sessionID, _, publisher := newTestEmitter(t, 1.0)

	require.NoError(t, em.StatusChange(context.Background(), "working", "Processing invoice 1 of 3"))

	payloads := publisher.all()
	require.Len(t, payloads, 1)
	var event agent.Event
	require.NoError(t, json.Unmarshal(payloads[0], &event))
	assert.Equal(t, agent.EventStatusChange, event.Type)
	assert.Equal(t, sessionID, event.SessionID)
	assert.Equal(t, "working", event.Payload["status"])
}

func TestStartThinking(t *testing.T) {
	t.Parallel()

	t.Run("streams scripted lines until stopped", func(t *testing.T) {
		t.Parallel()

		em, registry, sessionID, _, _ := newTestEmitter(t, 1.0)

		stop := em.StartThinking(context.Background(),
			[]string{"line one", "line two"}, 5*time.Millisecond)

		require.Eventually(t, func() bool {
			got, ok := registry.GetSession(sessionID)
			return ok && len(got.Events) >= 2
		}, time.Second, 5*time.Millisecond)

		stop()

		got, _ := registry.GetSession(sessionID)
		count := len(got.Events)
		assert.Equal(t, "line one", got.Events[0].Payload["text"])
		assert.Equal(t, "line two", got.Events[1].Payload["text"])

		// No lines land after stop returns.
		time.Sleep(20 * time.Millisecond)
		after, _ := registry.GetSession(sessionID)
		assert.Len(t, after.Events, count)
	})

	t.Run("stop before first line", func(t *testing.T) {
		t.Parallel()

		em, registry, sessionID, _, _ := newTestEmitter(t, 1.0)

		stop := em.StartThinking(context.Background(), []string{"never"}, time.Hour)
		stop()

		got, _ := registry.GetSession(sessionID)
		assert.Empty(t, got.Events)
	})
}
