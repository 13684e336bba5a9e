package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sitedesk/foreman/internal/domain"
)

type AgentStatusRepo struct {
	pool *pgxpool.Pool
}

func NewAgentStatusRepo(pool *pgxpool.Pool) *AgentStatusRepo {
	return &AgentStatusRepo{pool: pool}
}

func (r *AgentStatusRepo) Get(ctx context.Context, agentID string) (*domain.AgentStatus, error) {
	var s domain.AgentStatus

	err := r.pool.QueryRow(ctx,
		`SELECT agent_id, status, current_activity, cost_today, tasks_completed_today, last_run_at
		 FROM agent_status WHERE agent_id = $1`,
		agentID,
	).Scan(&s.AgentID, &s.Status, &s.CurrentActivity, &s.CostToday, &s.TasksCompletedToday, &s.LastRunAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("agentStatusRepo.Get: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("agentStatusRepo.Get: %w", err)
	}

	return &s, nil
}

func (r *AgentStatusRepo) List(ctx context.Context) ([]*domain.AgentStatus, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT s.agent_id, s.status, s.current_activity, s.cost_today, s.tasks_completed_today, s.last_run_at
		 FROM agent_status s
		 JOIN agents a ON s.agent_id = a.id
		 ORDER BY a.id`,
	)
	if err != nil {
		return nil, fmt.Errorf("agentStatusRepo.List: %w", err)
	}
	defer rows.Close()

	var statuses []*domain.AgentStatus
	for rows.Next() {
		var s domain.AgentStatus
		if err := rows.Scan(
			&s.AgentID, &s.Status, &s.CurrentActivity,
			&s.CostToday, &s.TasksCompletedToday, &s.LastRunAt,
		); err != nil {
			return nil, fmt.Errorf("agentStatusRepo.List: scan: %w", err)
		}
		statuses = append(statuses, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("agentStatusRepo.List: rows: %w", err)
	}

	return statuses, nil
}

func (r *AgentStatusRepo) Update(ctx context.Context, agentID string, upd domain.StatusUpdate) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE agent_status
		 SET status = COALESCE(NULLIF($1, ''), status),
		     current_activity = COALESCE(NULLIF($2, ''), current_activity),
		     cost_today = cost_today + $3,
		     tasks_completed_today = tasks_completed_today + $4,
		     last_run_at = CASE WHEN $5 THEN now() ELSE last_run_at END
		 WHERE agent_id = $6`,
		upd.Status, upd.CurrentActivity, upd.AdditionalCost, upd.AdditionalTasks, upd.SetLastRun, agentID,
	)
	if err != nil {
		return fmt.Errorf("agentStatusRepo.Update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("agentStatusRepo.Update: %w", domain.ErrNotFound)
	}

	return nil
}

func (r *AgentStatusRepo) Reset(ctx context.Context) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE agent_status
		 SET status = 'idle', current_activity = 'Ready', last_run_at = NULL,
		     cost_today = 0, tasks_completed_today = 0`,
	)
	if err != nil {
		return fmt.Errorf("agentStatusRepo.Reset: %w", err)
	}

	return nil
}

type ActivityLogRepo struct {
	pool *pgxpool.Pool
}

func NewActivityLogRepo(pool *pgxpool.Pool) *ActivityLogRepo {
	return &ActivityLogRepo{pool: pool}
}

func (r *ActivityLogRepo) Insert(ctx context.Context, entry *domain.ActivityLog) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO activity_logs (agent_id, session_id, event_type, message, cost, input_tokens, output_tokens)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at`,
		entry.AgentID, entry.SessionID, entry.EventType, entry.Message,
		entry.Cost, entry.InputTokens, entry.OutputTokens,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("activityLogRepo.Insert: %w", err)
	}

	return nil
}

func (r *ActivityLogRepo) ListByAgent(ctx context.Context, agentID string, limit int) ([]*domain.ActivityLog, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, agent_id, session_id, event_type, message, cost, input_tokens, output_tokens, created_at
		 FROM activity_logs
		 WHERE agent_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		agentID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("activityLogRepo.ListByAgent: %w", err)
	}
	defer rows.Close()

	return scanActivityLogs(rows, "activityLogRepo.ListByAgent")
}

func (r *ActivityLogRepo) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*domain.ActivityLog, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, agent_id, session_id, event_type, message, cost, input_tokens, output_tokens, created_at
		 FROM activity_logs
		 WHERE session_id = $1
		 ORDER BY created_at`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("activityLogRepo.ListBySession: %w", err)
	}
	defer rows.Close()

	return scanActivityLogs(rows, "activityLogRepo.ListBySession")
}

func (r *ActivityLogRepo) Clear(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM activity_logs`)
	if err != nil {
		return fmt.Errorf("activityLogRepo.Clear: %w", err)
	}

	return nil
}

func scanActivityLogs(rows pgx.Rows, caller string) ([]*domain.ActivityLog, error) {
	var entries []*domain.ActivityLog
	for rows.Next() {
		var e domain.ActivityLog
		if err := rows.Scan(
			&e.ID, &e.AgentID, &e.SessionID, &e.EventType, &e.Message,
			&e.Cost, &e.InputTokens, &e.OutputTokens, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", caller, err)
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows: %w", caller, err)
	}

	return entries, nil
}
