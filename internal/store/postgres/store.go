package postgres

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sitedesk/foreman/internal/domain"
)

//go:embed schema.sql
var schemaSQL string

type Store struct {
	pool           *pgxpool.Pool
	invoices       *InvoiceRepo
	projects       *ProjectRepo
	ar             *ARRepo
	collections    *CollectionsRepo
	review         *ReviewQueueRepo
	communications *CommunicationRepo
	tasks          *InternalTaskRepo
	agentStatus    *AgentStatusRepo
	activity       *ActivityLogRepo
}

func New(ctx context.Context, dsn string, maxConns int32) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres.New: parse config: %w", err)
	}

	cfg.MaxConns = maxConns

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres.New: connect: %w", err)
	}

	err = pool.Ping(ctx)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres.New: ping: %w", err)
	}

	return &Store{
		pool:           pool,
		invoices:       NewInvoiceRepo(pool),
		projects:       NewProjectRepo(pool),
		ar:             NewARRepo(pool),
		collections:    NewCollectionsRepo(pool),
		review:         NewReviewQueueRepo(pool),
		communications: NewCommunicationRepo(pool),
		tasks:          NewInternalTaskRepo(pool),
		agentStatus:    NewAgentStatusRepo(pool),
		activity:       NewActivityLogRepo(pool),
	}, nil
}

// Bootstrap creates the schema when it does not exist yet. Safe to run on
// every startup.
func (s *Store) Bootstrap(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schemaSQL)
	if err != nil {
		return fmt.Errorf("postgres.Store.Bootstrap: %w", err)
	}

	return nil
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Invoices() domain.InvoiceRepository             { return s.invoices }
func (s *Store) Projects() domain.ProjectRepository             { return s.projects }
func (s *Store) AR() domain.ARRepository                        { return s.ar }
func (s *Store) Collections() domain.CollectionsRepository      { return s.collections }
func (s *Store) Review() domain.ReviewQueueRepository           { return s.review }
func (s *Store) Communications() domain.CommunicationRepository { return s.communications }
func (s *Store) Tasks() domain.InternalTaskRepository           { return s.tasks }
func (s *Store) AgentStatus() domain.AgentStatusRepository      { return s.agentStatus }
func (s *Store) Activity() domain.ActivityLogRepository         { return s.activity }
