package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AgentMeta describes one entry in the fixed agent catalog. The catalog is
// defined in code; the agents table mirrors it for reporting joins.
type AgentMeta struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Department    string `json:"department"`
	WorkspaceType string `json:"workspace_type"`
}

// AgentStatus is the live status row for one agent.
type AgentStatus struct {
	AgentID             string     `json:"agent_id"`
	Status              string     `json:"status"` // "idle", "running", "error"
	CurrentActivity     string     `json:"current_activity"`
	CostToday           float64    `json:"cost_today"`
	TasksCompletedToday int        `json:"tasks_completed_today"`
	LastRunAt           *time.Time `json:"last_run_at,omitempty"`
}

// ActivityLog is one durable progress record, written for every persisted
// session event.
type ActivityLog struct {
	ID           int64     `json:"id"`
	AgentID      string    `json:"agent_id"`
	SessionID    uuid.UUID `json:"session_id"`
	EventType    string    `json:"event_type"`
	Message      string    `json:"message"`
	Cost         float64   `json:"cost"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	CreatedAt    time.Time `json:"created_at"`
}

// StatusUpdate carries the delta applied to an agent_status row.
type StatusUpdate struct {
	Status          string
	CurrentActivity string
	AdditionalCost  float64
	AdditionalTasks int
	SetLastRun      bool
}

type AgentStatusRepository interface {
	Get(ctx context.Context, agentID string) (*AgentStatus, error)
	List(ctx context.Context) ([]*AgentStatus, error)
	Update(ctx context.Context, agentID string, upd StatusUpdate) error
	Reset(ctx context.Context) error
}

type ActivityLogRepository interface {
	Insert(ctx context.Context, entry *ActivityLog) error
	ListByAgent(ctx context.Context, agentID string, limit int) ([]*ActivityLog, error)
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*ActivityLog, error)
	Clear(ctx context.Context) error
}
