package v1

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"github.com/sitedesk/foreman/internal/agent"
	"github.com/sitedesk/foreman/internal/domain"
	"github.com/sitedesk/foreman/internal/llm"
)

// DataStore abstracts the repository accessor pattern for handler testing.
// *postgres.Store satisfies this interface.
type DataStore interface {
	Invoices() domain.InvoiceRepository
	Projects() domain.ProjectRepository
	AR() domain.ARRepository
	Collections() domain.CollectionsRepository
	Review() domain.ReviewQueueRepository
	Communications() domain.CommunicationRepository
	Tasks() domain.InternalTaskRepository
	AgentStatus() domain.AgentStatusRepository
	Activity() domain.ActivityLogRepository
}

// AgentRunner abstracts session execution for handler testing.
// *agent.Runtime satisfies this interface.
type AgentRunner interface {
	Run(ctx context.Context, agentID string, sessionID uuid.UUID) (agent.RunResult, error)
	RunFinancialQuery(ctx context.Context, sessionID uuid.UUID, conversationID, userMessage string) (agent.RunResult, error)
}

// ChatClient abstracts direct chat-completion calls for the training and ask
// endpoints. *llm.Client satisfies this interface.
type ChatClient interface {
	Enabled() bool
	Chat(ctx context.Context, messages []llm.Message, opts llm.ChatOptions) (*llm.Response, error)
}

// SkillsService abstracts the skills and identity documents.
// *agent.SkillsStore satisfies this interface.
type SkillsService interface {
	Read(agentID string) (string, error)
	Identity(agentID string) (string, error)
	Write(agentID, content string) error
	AppendTraining(agentID, instruction string) (string, error)
}

// DemoSeeder abstracts the demo reset. *postgres.Store satisfies this
// interface.
type DemoSeeder interface {
	SeedDemo(ctx context.Context, agents []domain.AgentMeta) error
}

// Deps bundles the collaborators the v1 handlers need.
type Deps struct {
	Store    DataStore
	Registry *agent.Registry
	Runtime  AgentRunner
	Skills   SkillsService
	Chat     ChatClient
	Seeder   DemoSeeder
}

// Register wires every v1 route onto the API.
func Register(api huma.API, d Deps) {
	RegisterAgentRoutes(api, d)
	RegisterSessionRoutes(api, d)
	RegisterChatRoutes(api, d)
	RegisterReviewRoutes(api, d)
	RegisterCommunicationRoutes(api, d)
	RegisterDemoRoutes(api, d)
}
