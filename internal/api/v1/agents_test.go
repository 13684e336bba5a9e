package v1_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitedesk/foreman/internal/agent"
	v1 "github.com/sitedesk/foreman/internal/api/v1"
	"github.com/sitedesk/foreman/internal/domain"
)

func TestListAgents(t *testing.T) {
	t.Parallel()

	_, api := humatest.New(t)
	store := &mockDataStore{
		agentStatus: &mockAgentStatusRepo{
			listFunc: func(context.Context) ([]*domain.AgentStatus, error) {
				return []*domain.AgentStatus{
					{AgentID: "po_match", Status: "idle", CurrentActivity: "Ready", CostToday: 1.25, TasksCompletedToday: 3},
					{AgentID: "ar_followup", Status: "working", CurrentActivity: "Drafting reminders"},
					{AgentID: "retired_agent", Status: "idle"},
				}, nil
			},
		},
		review: &mockReviewRepo{
			openCountsFunc: func(context.Context) (map[string]int, error) {
				return map[string]int{"po_match": 2}, nil
			},
		},
	}
	v1.RegisterAgentRoutes(api, v1.Deps{Store: store, Registry: agent.NewRegistry()})

	resp := api.Get("/agents")
	require.Equal(t, http.StatusOK, resp.Code)

	var body []v1.AgentSummary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	// The row without a catalog entry is dropped; the rest sort by name.
	require.Len(t, body, 2)
	assert.Equal(t, "ar_followup", body[0].ID)
	assert.Equal(t, "po_match", body[1].ID)
	assert.Equal(t, "PO Match Agent", body[1].Name)
	assert.Equal(t, "Accounts Payable", body[1].Department)
	assert.Equal(t, 2, body[1].ReviewCount)
	assert.InDelta(t, 1.25, body[1].CostToday, 0.001)
}

func TestGetAgent(t *testing.T) {
	t.Parallel()

	t.Run("unknown agent", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		v1.RegisterAgentRoutes(api, v1.Deps{Store: &mockDataStore{}, Registry: agent.NewRegistry()})

		resp := api.Get("/agents/not_an_agent")
		assert.Equal(t, http.StatusNotFound, resp.Code)
	})

	t.Run("happy path with latest session", func(t *testing.T) {
		t.Parallel()

		registry := agent.NewRegistry()
		session := registry.CreateSession("po_match")
		registry.AppendEvent(session.ID, agent.Event{
			Type:    agent.EventComplete,
			Payload: map[string]any{"output": map[string]any{"processed": []any{}}},
		})

		_, api := humatest.New(t)
		store := &mockDataStore{
			agentStatus: &mockAgentStatusRepo{
				getFunc: func(_ context.Context, agentID string) (*domain.AgentStatus, error) {
					assert.Equal(t, "po_match", agentID)
					return &domain.AgentStatus{AgentID: "po_match", Status: "idle", CurrentActivity: "Ready"}, nil
				},
			},
			review: &mockReviewRepo{
				openCountsFunc: func(context.Context) (map[string]int, error) { return nil, nil },
			},
		}
		skills := &mockSkills{
			readFunc:     func(string) (string, error) { return "# Skills", nil },
			identityFunc: func(string) (string, error) { return "# Identity", nil },
		}
		v1.RegisterAgentRoutes(api, v1.Deps{Store: store, Registry: registry, Skills: skills})

		resp := api.Get("/agents/po_match")
		require.Equal(t, http.StatusOK, resp.Code)

		var body v1.AgentDetail
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "po_match", body.ID)
		assert.Equal(t, "# Skills", body.Skills)
		assert.Equal(t, "# Identity", body.Identity)
		require.NotNil(t, body.LatestSessionID)
		assert.Equal(t, session.ID, *body.LatestSessionID)
		assert.NotNil(t, body.LatestOutput)
	})
}

func TestRunAgent(t *testing.T) {
	t.Parallel()

	t.Run("unknown agent", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		v1.RegisterAgentRoutes(api, v1.Deps{
			Store:    &mockDataStore{},
			Registry: agent.NewRegistry(),
			Chat:     &mockChatClient{enabled: true},
		})

		resp := api.Post("/agents/not_an_agent/run", map[string]any{})
		assert.Equal(t, http.StatusNotFound, resp.Code)
	})

	t.Run("model runtime not configured", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		v1.RegisterAgentRoutes(api, v1.Deps{
			Store:    &mockDataStore{},
			Registry: agent.NewRegistry(),
			Chat:     &mockChatClient{enabled: false},
		})

		resp := api.Post("/agents/po_match/run", map[string]any{})
		assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
	})

	t.Run("happy path clears prior run and starts the runner", func(t *testing.T) {
		t.Parallel()

		var commsCleared, reviewCleared bool
		ran := make(chan uuid.UUID, 1)

		registry := agent.NewRegistry()
		store := &mockDataStore{
			communications: &mockCommunicationRepo{
				deleteByAgentFunc: func(_ context.Context, agentID string) error {
					commsCleared = true
					assert.Equal(t, "po_match", agentID)
					return nil
				},
			},
			review: &mockReviewRepo{
				deleteByAgentFunc: func(_ context.Context, agentID string) error {
					reviewCleared = true
					return nil
				},
			},
		}
		runner := &mockRunner{
			runFunc: func(_ context.Context, agentID string, sessionID uuid.UUID) (agent.RunResult, error) {
				assert.Equal(t, "po_match", agentID)
				ran <- sessionID
				return agent.RunResult{}, nil
			},
		}

		_, api := humatest.New(t)
		v1.RegisterAgentRoutes(api, v1.Deps{
			Store:    store,
			Registry: registry,
			Runtime:  runner,
			Chat:     &mockChatClient{enabled: true},
		})

		resp := api.Post("/agents/po_match/run", map[string]any{})
		require.Equal(t, http.StatusOK, resp.Code)
		assert.True(t, commsCleared)
		assert.True(t, reviewCleared)

		var body struct {
			SessionID uuid.UUID `json:"session_id"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		require.NotEqual(t, uuid.Nil, body.SessionID)

		select {
		case sessionID := <-ran:
			assert.Equal(t, body.SessionID, sessionID)
		case <-time.After(time.Second):
			t.Fatal("runner was not invoked")
		}

		_, ok := registry.GetSession(body.SessionID)
		assert.True(t, ok, "session must be registered before the response returns")
	})
}

func TestAgentSkillsEndpoints(t *testing.T) {
	t.Parallel()

	t.Run("get skills", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		skills := &mockSkills{
			readFunc: func(agentID string) (string, error) {
				assert.Equal(t, "po_match", agentID)
				return "# Skills\nMatch invoices.", nil
			},
		}
		v1.RegisterAgentRoutes(api, v1.Deps{Store: &mockDataStore{}, Registry: agent.NewRegistry(), Skills: skills})

		resp := api.Get("/agents/po_match/skills")
		require.Equal(t, http.StatusOK, resp.Code)

		var body struct {
			AgentID string `json:"agent_id"`
			Skills  string `json:"skills"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "po_match", body.AgentID)
		assert.Contains(t, body.Skills, "Match invoices")
	})

	t.Run("put skills", func(t *testing.T) {
		t.Parallel()

		var written string
		_, api := humatest.New(t)
		skills := &mockSkills{
			writeFunc: func(agentID, content string) error {
				assert.Equal(t, "po_match", agentID)
				written = content
				return nil
			},
		}
		v1.RegisterAgentRoutes(api, v1.Deps{Store: &mockDataStore{}, Registry: agent.NewRegistry(), Skills: skills})

		resp := api.Put("/agents/po_match/skills", map[string]any{"content": "# New skills"})
		require.Equal(t, http.StatusOK, resp.Code)
		assert.Equal(t, "# New skills", written)

		var body struct {
			Skills    string `json:"skills"`
			UpdatedAt string `json:"updated_at"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "# New skills", body.Skills)
		assert.NotEmpty(t, body.UpdatedAt)
	})
}

func TestAgentReviewQueue(t *testing.T) {
	t.Parallel()

	_, api := humatest.New(t)
	store := &mockDataStore{
		review: &mockReviewRepo{
			listByAgentFunc: func(_ context.Context, agentID string) ([]*domain.ReviewItem, error) {
				assert.Equal(t, "po_match", agentID)
				return []*domain.ReviewItem{{
					ID:         7,
					AgentID:    "po_match",
					ItemRef:    "INV-9003",
					ReasonCode: "price_variance",
					Details:    "Variance exceeds threshold",
					Context:    `{"variance_amount": 1050}`,
					Status:     "open",
				}}, nil
			},
		},
	}
	v1.RegisterAgentRoutes(api, v1.Deps{Store: store, Registry: agent.NewRegistry()})

	resp := api.Get("/agents/po_match/review-queue")
	require.Equal(t, http.StatusOK, resp.Code)

	var body []v1.ReviewItemView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body, 1)
	assert.Equal(t, int64(7), body[0].ID)
	assert.Equal(t, "price_variance", body[0].ReasonCode)

	// Context comes back decoded, not as a JSON string.
	decoded, ok := body[0].Context.(map[string]any)
	require.True(t, ok)
	assert.InDelta(t, 1050, decoded["variance_amount"].(float64), 0.001)
}

func TestAgentActivity(t *testing.T) {
	t.Parallel()

	t.Run("by agent", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		store := &mockDataStore{
			activity: &mockActivityRepo{
				listByAgentFunc: func(_ context.Context, agentID string, limit int) ([]*domain.ActivityLog, error) {
					assert.Equal(t, "po_match", agentID)
					assert.Equal(t, 200, limit)
					return []*domain.ActivityLog{{ID: 1, AgentID: "po_match", EventType: "reasoning", Message: "Step 1"}}, nil
				},
			},
		}
		v1.RegisterAgentRoutes(api, v1.Deps{Store: store, Registry: agent.NewRegistry()})

		resp := api.Get("/agents/po_match/activity")
		require.Equal(t, http.StatusOK, resp.Code)

		var body []*domain.ActivityLog
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		require.Len(t, body, 1)
		assert.Equal(t, "Step 1", body[0].Message)
	})

	t.Run("by session filters other agents", func(t *testing.T) {
		t.Parallel()

		sessionID := uuid.New()
		_, api := humatest.New(t)
		store := &mockDataStore{
			activity: &mockActivityRepo{
				listBySessionFunc: func(_ context.Context, sid uuid.UUID) ([]*domain.ActivityLog, error) {
					assert.Equal(t, sessionID, sid)
					return []*domain.ActivityLog{
						{ID: 1, AgentID: "po_match", EventType: "reasoning"},
						{ID: 2, AgentID: "ar_followup", EventType: "reasoning"},
					}, nil
				},
			},
		}
		v1.RegisterAgentRoutes(api, v1.Deps{Store: store, Registry: agent.NewRegistry()})

		resp := api.Get("/agents/po_match/activity?session_id=" + sessionID.String())
		require.Equal(t, http.StatusOK, resp.Code)

		var body []*domain.ActivityLog
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		require.Len(t, body, 1)
		assert.Equal(t, "po_match", body[0].AgentID)
	})

	t.Run("invalid session id", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		v1.RegisterAgentRoutes(api, v1.Deps{Store: &mockDataStore{}, Registry: agent.NewRegistry()})

		resp := api.Get("/agents/po_match/activity?session_id=not-a-uuid")
		assert.Equal(t, http.StatusBadRequest, resp.Code)
	})
}

func TestAgentDecisions(t *testing.T) {
	t.Parallel()

	t.Run("extracts decision trail from tool results", func(t *testing.T) {
		t.Parallel()

		registry := agent.NewRegistry()
		session := registry.CreateSession("po_match")
		registry.AppendEvent(session.ID, agent.Event{
			Type: agent.EventToolResult,
			Payload: map[string]any{
				"tool": "complete_invoice",
				"result": map[string]any{
					"invoice_number": "INV-9001",
					"status":         "matched",
					"confidence":     "high",
				},
			},
		})
		registry.AppendEvent(session.ID, agent.Event{
			Type: agent.EventToolResult,
			Payload: map[string]any{
				"tool": "flag_exception",
				"result": map[string]any{
					"reason_code": "price_variance",
					"item_ref":    "INV-9003",
				},
			},
		})
		// Non-decision tools are skipped.
		registry.AppendEvent(session.ID, agent.Event{
			Type:    agent.EventToolResult,
			Payload: map[string]any{"tool": "read_invoice", "result": map[string]any{}},
		})

		_, api := humatest.New(t)
		v1.RegisterAgentRoutes(api, v1.Deps{Store: &mockDataStore{}, Registry: registry})

		resp := api.Get("/agents/po_match/decisions?session_id=" + session.ID.String())
		require.Equal(t, http.StatusOK, resp.Code)

		var body []map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		require.Len(t, body, 2)
		assert.Equal(t, "po_match", body[0]["decision_type"])
		assert.Equal(t, "matched", body[0]["status"])
		assert.Equal(t, "exception_flag", body[1]["decision_type"])
		assert.InDelta(t, 0.95, body[1]["confidence"].(float64), 0.001)
	})

	t.Run("no sessions yields empty list", func(t *testing.T) {
		t.Parallel()

		_, api := humatest.New(t)
		v1.RegisterAgentRoutes(api, v1.Deps{Store: &mockDataStore{}, Registry: agent.NewRegistry()})

		resp := api.Get("/agents/po_match/decisions")
		require.Equal(t, http.StatusOK, resp.Code)

		var body []map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Empty(t, body)
	})
}
