package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sitedesk/foreman/internal/domain"
)

type InternalTaskRepo struct {
	pool *pgxpool.Pool
}

func NewInternalTaskRepo(pool *pgxpool.Pool) *InternalTaskRepo {
	return &InternalTaskRepo{pool: pool}
}

func (r *InternalTaskRepo) Insert(ctx context.Context, t *domain.InternalTask) error {
	priority := t.Priority
	if priority == "" {
		priority = "medium"
	}
	status := t.Status
	if status == "" {
		status = "open"
	}

	err := r.pool.QueryRow(ctx,
		`INSERT INTO internal_tasks (agent_id, title, description, priority, due_date, status)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at`,
		t.AgentID, t.Title, t.Description, priority, t.DueDate, status,
	).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return fmt.Errorf("internalTaskRepo.Insert: %w", err)
	}
	t.Priority = priority
	t.Status = status

	return nil
}

func (r *InternalTaskRepo) ListByAgent(ctx context.Context, agentID string) ([]*domain.InternalTask, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, agent_id, title, description, priority, due_date, status, created_at
		 FROM internal_tasks
		 WHERE agent_id = $1
		 ORDER BY created_at DESC`,
		agentID,
	)
	if err != nil {
		return nil, fmt.Errorf("internalTaskRepo.ListByAgent: %w", err)
	}
	defer rows.Close()

	var tasks []*domain.InternalTask
	for rows.Next() {
		var t domain.InternalTask
		if err := rows.Scan(
			&t.ID, &t.AgentID, &t.Title, &t.Description,
			&t.Priority, &t.DueDate, &t.Status, &t.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("internalTaskRepo.ListByAgent: scan: %w", err)
		}
		tasks = append(tasks, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("internalTaskRepo.ListByAgent: rows: %w", err)
	}

	return tasks, nil
}

func (r *InternalTaskRepo) Clear(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM internal_tasks`)
	if err != nil {
		return fmt.Errorf("internalTaskRepo.Clear: %w", err)
	}

	return nil
}
