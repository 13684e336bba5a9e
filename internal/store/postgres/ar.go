package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sitedesk/foreman/internal/domain"
)

type ARRepo struct {
	pool *pgxpool.Pool
}

func NewARRepo(pool *pgxpool.Pool) *ARRepo {
	return &ARRepo{pool: pool}
}

func (r *ARRepo) ListAging(ctx context.Context) ([]*domain.ARAccount, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT customer_name, days_out, amount, is_retainage, notes
		 FROM ar_aging
		 ORDER BY days_out DESC, customer_name`,
	)
	if err != nil {
		return nil, fmt.Errorf("arRepo.ListAging: %w", err)
	}
	defer rows.Close()

	var accounts []*domain.ARAccount
	for rows.Next() {
		var a domain.ARAccount
		if err := rows.Scan(&a.CustomerName, &a.DaysOut, &a.Amount, &a.IsRetainage, &a.Notes); err != nil {
			return nil, fmt.Errorf("arRepo.ListAging: scan: %w", err)
		}
		accounts = append(accounts, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("arRepo.ListAging: rows: %w", err)
	}

	return accounts, nil
}

type CollectionsRepo struct {
	pool *pgxpool.Pool
}

func NewCollectionsRepo(pool *pgxpool.Pool) *CollectionsRepo {
	return &CollectionsRepo{pool: pool}
}

func (r *CollectionsRepo) Insert(ctx context.Context, entry *domain.CollectionsEntry) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO collections_queue (customer_name, amount, reason)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at`,
		entry.CustomerName, entry.Amount, entry.Reason,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("collectionsRepo.Insert: %w", err)
	}

	return nil
}

func (r *CollectionsRepo) List(ctx context.Context) ([]*domain.CollectionsEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, customer_name, amount, reason, created_at
		 FROM collections_queue
		 ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("collectionsRepo.List: %w", err)
	}
	defer rows.Close()

	var entries []*domain.CollectionsEntry
	for rows.Next() {
		var e domain.CollectionsEntry
		if err := rows.Scan(&e.ID, &e.CustomerName, &e.Amount, &e.Reason, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("collectionsRepo.List: scan: %w", err)
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("collectionsRepo.List: rows: %w", err)
	}

	return entries, nil
}

func (r *CollectionsRepo) Clear(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM collections_queue`)
	if err != nil {
		return fmt.Errorf("collectionsRepo.Clear: %w", err)
	}

	return nil
}
