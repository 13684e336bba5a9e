package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sitedesk/foreman/internal/domain"
)

type ReviewQueueRepo struct {
	pool *pgxpool.Pool
}

func NewReviewQueueRepo(pool *pgxpool.Pool) *ReviewQueueRepo {
	return &ReviewQueueRepo{pool: pool}
}

func (r *ReviewQueueRepo) Insert(ctx context.Context, item *domain.ReviewItem) (int64, error) {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO review_queue (agent_id, item_ref, reason_code, details, context, status)
		 VALUES ($1, $2, $3, $4, $5, 'open')
		 RETURNING id, created_at`,
		item.AgentID, item.ItemRef, item.ReasonCode, item.Details, item.Context,
	).Scan(&item.ID, &item.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("reviewQueueRepo.Insert: %w", err)
	}
	item.Status = "open"

	return item.ID, nil
}

func (r *ReviewQueueRepo) ListByAgent(ctx context.Context, agentID string) ([]*domain.ReviewItem, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, agent_id, item_ref, reason_code, details, context, status, action, actioned_at, created_at
		 FROM review_queue
		 WHERE agent_id = $1
		 ORDER BY created_at DESC`,
		agentID,
	)
	if err != nil {
		return nil, fmt.Errorf("reviewQueueRepo.ListByAgent: %w", err)
	}
	defer rows.Close()

	var items []*domain.ReviewItem
	for rows.Next() {
		var item domain.ReviewItem
		if err := rows.Scan(
			&item.ID, &item.AgentID, &item.ItemRef, &item.ReasonCode,
			&item.Details, &item.Context, &item.Status, &item.Action,
			&item.ActionedAt, &item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("reviewQueueRepo.ListByAgent: scan: %w", err)
		}
		items = append(items, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reviewQueueRepo.ListByAgent: rows: %w", err)
	}

	return items, nil
}

func (r *ReviewQueueRepo) OpenCounts(ctx context.Context) (map[string]int, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT agent_id, COUNT(*)
		 FROM review_queue
		 WHERE status = 'open'
		 GROUP BY agent_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("reviewQueueRepo.OpenCounts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var agentID string
		var n int
		if err := rows.Scan(&agentID, &n); err != nil {
			return nil, fmt.Errorf("reviewQueueRepo.OpenCounts: scan: %w", err)
		}
		counts[agentID] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reviewQueueRepo.OpenCounts: rows: %w", err)
	}

	return counts, nil
}

func (r *ReviewQueueRepo) Resolve(ctx context.Context, id int64, action string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE review_queue
		 SET status = 'closed', action = $1, actioned_at = now()
		 WHERE id = $2`,
		action, id,
	)
	if err != nil {
		return fmt.Errorf("reviewQueueRepo.Resolve: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("reviewQueueRepo.Resolve: id %d: %w", id, domain.ErrNotFound)
	}

	return nil
}

func (r *ReviewQueueRepo) DeleteByAgent(ctx context.Context, agentID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM review_queue WHERE agent_id = $1`, agentID)
	if err != nil {
		return fmt.Errorf("reviewQueueRepo.DeleteByAgent: %w", err)
	}

	return nil
}

func (r *ReviewQueueRepo) Clear(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM review_queue`)
	if err != nil {
		return fmt.Errorf("reviewQueueRepo.Clear: %w", err)
	}

	return nil
}
