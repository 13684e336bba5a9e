package v1_test

import (
	"context"

	"github.com/google/uuid"

	"github.com/sitedesk/foreman/internal/agent"
	"github.com/sitedesk/foreman/internal/domain"
	"github.com/sitedesk/foreman/internal/llm"
)

// ---------------------------------------------------------------------------
// Mock DataStore
// ---------------------------------------------------------------------------

type mockDataStore struct {
	invoices       domain.InvoiceRepository
	projects       domain.ProjectRepository
	ar             domain.ARRepository
	collections    domain.CollectionsRepository
	review         domain.ReviewQueueRepository
	communications domain.CommunicationRepository
	tasks          domain.InternalTaskRepository
	agentStatus    domain.AgentStatusRepository
	activity       domain.ActivityLogRepository
}

func (m *mockDataStore) Invoices() domain.InvoiceRepository            { return m.invoices }
func (m *mockDataStore) Projects() domain.ProjectRepository            { return m.projects }
func (m *mockDataStore) AR() domain.ARRepository                       { return m.ar }
func (m *mockDataStore) Collections() domain.CollectionsRepository     { return m.collections }
func (m *mockDataStore) Review() domain.ReviewQueueRepository          { return m.review }
func (m *mockDataStore) Communications() domain.CommunicationRepository { return m.communications }
func (m *mockDataStore) Tasks() domain.InternalTaskRepository          { return m.tasks }
func (m *mockDataStore) AgentStatus() domain.AgentStatusRepository     { return m.agentStatus }
func (m *mockDataStore) Activity() domain.ActivityLogRepository        { return m.activity }

// ---------------------------------------------------------------------------
// Mock ReviewQueueRepository
// ---------------------------------------------------------------------------

type mockReviewRepo struct {
	insertFunc        func(ctx context.Context, item *domain.ReviewItem) (int64, error)
	listByAgentFunc   func(ctx context.Context, agentID string) ([]*domain.ReviewItem, error)
	openCountsFunc    func(ctx context.Context) (map[string]int, error)
	resolveFunc       func(ctx context.Context, id int64, action string) error
	deleteByAgentFunc func(ctx context.Context, agentID string) error
}

func (m *mockReviewRepo) Insert(ctx context.Context, item *domain.ReviewItem) (int64, error) {
	return m.insertFunc(ctx, item)
}

func (m *mockReviewRepo) ListByAgent(ctx context.Context, agentID string) ([]*domain.ReviewItem, error) {
	return m.listByAgentFunc(ctx, agentID)
}

func (m *mockReviewRepo) OpenCounts(ctx context.Context) (map[string]int, error) {
	return m.openCountsFunc(ctx)
}

func (m *mockReviewRepo) Resolve(ctx context.Context, id int64, action string) error {
	return m.resolveFunc(ctx, id, action)
}

func (m *mockReviewRepo) DeleteByAgent(ctx context.Context, agentID string) error {
	return m.deleteByAgentFunc(ctx, agentID)
}

func (m *mockReviewRepo) Clear(context.Context) error { return nil }

// ---------------------------------------------------------------------------
// Mock CommunicationRepository
// ---------------------------------------------------------------------------

type mockCommunicationRepo struct {
	insertFunc        func(ctx context.Context, c *domain.Communication) error
	listFunc          func(ctx context.Context, limit int) ([]*domain.Communication, error)
	listByAgentFunc   func(ctx context.Context, agentID string) ([]*domain.Communication, error)
	deleteByAgentFunc func(ctx context.Context, agentID string) error
}

func (m *mockCommunicationRepo) Insert(ctx context.Context, c *domain.Communication) error {
	return m.insertFunc(ctx, c)
}

func (m *mockCommunicationRepo) List(ctx context.Context, limit int) ([]*domain.Communication, error) {
	return m.listFunc(ctx, limit)
}

func (m *mockCommunicationRepo) ListByAgent(ctx context.Context, agentID string) ([]*domain.Communication, error) {
	return m.listByAgentFunc(ctx, agentID)
}

func (m *mockCommunicationRepo) DeleteByAgent(ctx context.Context, agentID string) error {
	return m.deleteByAgentFunc(ctx, agentID)
}

func (m *mockCommunicationRepo) Clear(context.Context) error { return nil }

// ---------------------------------------------------------------------------
// Mock AgentStatusRepository
// ---------------------------------------------------------------------------

type mockAgentStatusRepo struct {
	getFunc    func(ctx context.Context, agentID string) (*domain.AgentStatus, error)
	listFunc   func(ctx context.Context) ([]*domain.AgentStatus, error)
	updateFunc func(ctx context.Context, agentID string, upd domain.StatusUpdate) error
}

func (m *mockAgentStatusRepo) Get(ctx context.Context, agentID string) (*domain.AgentStatus, error) {
	return m.getFunc(ctx, agentID)
}

func (m *mockAgentStatusRepo) List(ctx context.Context) ([]*domain.AgentStatus, error) {
	return m.listFunc(ctx)
}

func (m *mockAgentStatusRepo) Update(ctx context.Context, agentID string, upd domain.StatusUpdate) error {
	return m.updateFunc(ctx, agentID, upd)
}

func (m *mockAgentStatusRepo) Reset(context.Context) error { return nil }

// ---------------------------------------------------------------------------
// Mock ActivityLogRepository
// ---------------------------------------------------------------------------

type mockActivityRepo struct {
	insertFunc        func(ctx context.Context, entry *domain.ActivityLog) error
	listByAgentFunc   func(ctx context.Context, agentID string, limit int) ([]*domain.ActivityLog, error)
	listBySessionFunc func(ctx context.Context, sessionID uuid.UUID) ([]*domain.ActivityLog, error)
}

func (m *mockActivityRepo) Insert(ctx context.Context, entry *domain.ActivityLog) error {
	return m.insertFunc(ctx, entry)
}

func (m *mockActivityRepo) ListByAgent(ctx context.Context, agentID string, limit int) ([]*domain.ActivityLog, error) {
	return m.listByAgentFunc(ctx, agentID, limit)
}

func (m *mockActivityRepo) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*domain.ActivityLog, error) {
	return m.listBySessionFunc(ctx, sessionID)
}

func (m *mockActivityRepo) Clear(context.Context) error { return nil }

// ---------------------------------------------------------------------------
// Mock AgentRunner
// ---------------------------------------------------------------------------

type mockRunner struct {
	runFunc               func(ctx context.Context, agentID string, sessionID uuid.UUID) (agent.RunResult, error)
	runFinancialQueryFunc func(ctx context.Context, sessionID uuid.UUID, conversationID, userMessage string) (agent.RunResult, error)
}

func (m *mockRunner) Run(ctx context.Context, agentID string, sessionID uuid.UUID) (agent.RunResult, error) {
	return m.runFunc(ctx, agentID, sessionID)
}

func (m *mockRunner) RunFinancialQuery(ctx context.Context, sessionID uuid.UUID, conversationID, userMessage string) (agent.RunResult, error) {
	return m.runFinancialQueryFunc(ctx, sessionID, conversationID, userMessage)
}

// ---------------------------------------------------------------------------
// Mock ChatClient
// ---------------------------------------------------------------------------

type mockChatClient struct {
	enabled  bool
	chatFunc func(ctx context.Context, messages []llm.Message, opts llm.ChatOptions) (*llm.Response, error)
}

func (m *mockChatClient) Enabled() bool { return m.enabled }

func (m *mockChatClient) Chat(ctx context.Context, messages []llm.Message, opts llm.ChatOptions) (*llm.Response, error) {
	return m.chatFunc(ctx, messages, opts)
}

// ---------------------------------------------------------------------------
// Mock SkillsService
// ---------------------------------------------------------------------------

type mockSkills struct {
	readFunc           func(agentID string) (string, error)
	identityFunc       func(agentID string) (string, error)
	writeFunc          func(agentID, content string) error
	appendTrainingFunc func(agentID, instruction string) (string, error)
}

func (m *mockSkills) Read(agentID string) (string, error)     { return m.readFunc(agentID) }
func (m *mockSkills) Identity(agentID string) (string, error) { return m.identityFunc(agentID) }
func (m *mockSkills) Write(agentID, content string) error     { return m.writeFunc(agentID, content) }

func (m *mockSkills) AppendTraining(agentID, instruction string) (string, error) {
	return m.appendTrainingFunc(agentID, instruction)
}

// ---------------------------------------------------------------------------
// Mock DemoSeeder
// ---------------------------------------------------------------------------

type mockSeeder struct {
	seedFunc func(ctx context.Context, agents []domain.AgentMeta) error
}

func (m *mockSeeder) SeedDemo(ctx context.Context, agents []domain.AgentMeta) error {
	return m.seedFunc(ctx, agents)
}
