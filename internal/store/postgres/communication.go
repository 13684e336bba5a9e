package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sitedesk/foreman/internal/domain"
)

type CommunicationRepo struct {
	pool *pgxpool.Pool
}

func NewCommunicationRepo(pool *pgxpool.Pool) *CommunicationRepo {
	return &CommunicationRepo{pool: pool}
}

func (r *CommunicationRepo) Insert(ctx context.Context, c *domain.Communication) error {
	channel := c.Channel
	if channel == "" {
		channel = "email"
	}

	err := r.pool.QueryRow(ctx,
		`INSERT INTO communications (agent_id, recipient, subject, body, channel)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at`,
		c.AgentID, c.Recipient, c.Subject, c.Body, channel,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return fmt.Errorf("communicationRepo.Insert: %w", err)
	}
	c.Channel = channel

	return nil
}

func (r *CommunicationRepo) List(ctx context.Context, limit int) ([]*domain.Communication, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx,
		`SELECT id, agent_id, recipient, subject, body, channel, created_at
		 FROM communications
		 ORDER BY id DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("communicationRepo.List: %w", err)
	}
	defer rows.Close()

	var comms []*domain.Communication
	for rows.Next() {
		var c domain.Communication
		if err := rows.Scan(&c.ID, &c.AgentID, &c.Recipient, &c.Subject, &c.Body, &c.Channel, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("communicationRepo.List: scan: %w", err)
		}
		comms = append(comms, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("communicationRepo.List: rows: %w", err)
	}

	return comms, nil
}

func (r *CommunicationRepo) ListByAgent(ctx context.Context, agentID string) ([]*domain.Communication, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, agent_id, recipient, subject, body, channel, created_at
		 FROM communications
		 WHERE agent_id = $1
		 ORDER BY created_at DESC`,
		agentID,
	)
	if err != nil {
		return nil, fmt.Errorf("communicationRepo.ListByAgent: %w", err)
	}
	defer rows.Close()

	var comms []*domain.Communication
	for rows.Next() {
		var c domain.Communication
		if err := rows.Scan(&c.ID, &c.AgentID, &c.Recipient, &c.Subject, &c.Body, &c.Channel, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("communicationRepo.ListByAgent: scan: %w", err)
		}
		comms = append(comms, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("communicationRepo.ListByAgent: rows: %w", err)
	}

	return comms, nil
}

func (r *CommunicationRepo) DeleteByAgent(ctx context.Context, agentID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM communications WHERE agent_id = $1`, agentID)
	if err != nil {
		return fmt.Errorf("communicationRepo.DeleteByAgent: %w", err)
	}

	return nil
}

func (r *CommunicationRepo) Clear(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM communications`)
	if err != nil {
		return fmt.Errorf("communicationRepo.Clear: %w", err)
	}

	return nil
}
