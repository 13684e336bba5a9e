package domain

import (
	"context"
	"time"
)

// ARAccount is one accounts-receivable aging row.
type ARAccount struct {
	CustomerName string  `json:"customer_name"`
	DaysOut      int     `json:"days_out"`
	Amount       float64 `json:"amount"`
	IsRetainage  bool    `json:"is_retainage"`
	Notes        string  `json:"notes,omitempty"`
}

// CollectionsEntry is one account handed off to the collections team.
type CollectionsEntry struct {
	ID           int64     `json:"id"`
	CustomerName string    `json:"customer_name"`
	Amount       float64   `json:"amount"`
	Reason       string    `json:"reason"`
	CreatedAt    time.Time `json:"created_at"`
}

type ARRepository interface {
	// ListAging returns aging rows ordered by days outstanding, oldest first.
	ListAging(ctx context.Context) ([]*ARAccount, error)
}

type CollectionsRepository interface {
	Insert(ctx context.Context, entry *CollectionsEntry) error
	List(ctx context.Context) ([]*CollectionsEntry, error)
	Clear(ctx context.Context) error
}
