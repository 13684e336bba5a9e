package domain

import (
	"context"
	"time"
)

// ReviewItem is one item routed to a human for adjudication. Business
// exceptions land here; system errors never do.
type ReviewItem struct {
	ID         int64      `json:"id"`
	AgentID    string     `json:"agent_id"`
	ItemRef    string     `json:"item_ref"`
	ReasonCode string     `json:"reason_code"`
	Details    string     `json:"details"`
	Context    string     `json:"context,omitempty"`
	Status     string     `json:"status"` // "open", "closed"
	Action     string     `json:"action,omitempty"`
	ActionedAt *time.Time `json:"actioned_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Communication is one outbound message drafted by an agent.
type Communication struct {
	ID        int64     `json:"id"`
	AgentID   string    `json:"agent_id"`
	Recipient string    `json:"recipient"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	Channel   string    `json:"channel"` // "email"
	CreatedAt time.Time `json:"created_at"`
}

// InternalTask is one follow-up task created for back-office staff.
type InternalTask struct {
	ID          int64      `json:"id"`
	AgentID     string     `json:"agent_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Priority    string     `json:"priority"` // "low", "medium", "high", "urgent"
	DueDate     *time.Time `json:"due_date,omitempty"`
	Status      string     `json:"status"` // "open", "done"
	CreatedAt   time.Time  `json:"created_at"`
}

type ReviewQueueRepository interface {
	Insert(ctx context.Context, item *ReviewItem) (int64, error)
	ListByAgent(ctx context.Context, agentID string) ([]*ReviewItem, error)
	OpenCounts(ctx context.Context) (map[string]int, error)
	Resolve(ctx context.Context, id int64, action string) error
	DeleteByAgent(ctx context.Context, agentID string) error
	Clear(ctx context.Context) error
}

type CommunicationRepository interface {
	Insert(ctx context.Context, c *Communication) error
	List(ctx context.Context, limit int) ([]*Communication, error)
	ListByAgent(ctx context.Context, agentID string) ([]*Communication, error)
	DeleteByAgent(ctx context.Context, agentID string) error
	Clear(ctx context.Context) error
}

type InternalTaskRepository interface {
	Insert(ctx context.Context, t *InternalTask) error
	ListByAgent(ctx context.Context, agentID string) ([]*InternalTask, error)
	Clear(ctx context.Context) error
}
