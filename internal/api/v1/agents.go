package v1

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sitedesk/foreman/internal/agent"
	"github.com/sitedesk/foreman/internal/domain"
)

// AgentSummary is one row of the agent roster joined with live status.
type AgentSummary struct {
	ID                  string     `json:"id"`
	Name                string     `json:"name"`
	Department          string     `json:"department"`
	WorkspaceType       string     `json:"workspace_type"`
	Status              string     `json:"status"`
	CurrentActivity     string     `json:"current_activity"`
	LastRunAt           *time.Time `json:"last_run_at,omitempty"`
	CostToday           float64    `json:"cost_today"`
	TasksCompletedToday int        `json:"tasks_completed_today"`
	ReviewCount         int        `json:"review_count"`
}

// AgentDetail extends the summary with the agent's documents and last run.
type AgentDetail struct {
	AgentSummary
	Identity        string         `json:"identity"`
	Skills          string         `json:"skills"`
	LatestOutput    map[string]any `json:"latest_output,omitempty"`
	LatestSessionID *uuid.UUID     `json:"latest_session_id,omitempty"`
}

type ListAgentsOutput struct {
	Body []AgentSummary
}

type GetAgentInput struct {
	AgentID string `path:"agent_id" doc:"Agent identifier"`
}

type GetAgentOutput struct {
	Body *AgentDetail
}

type RunAgentInput struct {
	AgentID string `path:"agent_id" doc:"Agent identifier"`
}

type RunAgentOutput struct {
	Body struct {
		SessionID uuid.UUID `json:"session_id"`
	}
}

type GetSkillsInput struct {
	AgentID string `path:"agent_id" doc:"Agent identifier"`
}

type SkillsOutput struct {
	Body struct {
		AgentID   string `json:"agent_id"`
		Skills    string `json:"skills"`
		UpdatedAt string `json:"updated_at,omitempty"`
	}
}

type PutSkillsInput struct {
	AgentID string `path:"agent_id" doc:"Agent identifier"`
	Body    struct {
		Content string `json:"content" doc:"Full replacement skills document"`
	}
}

// ReviewItemView is a review item with its context decoded from JSON.
type ReviewItemView struct {
	ID         int64      `json:"id"`
	AgentID    string     `json:"agent_id"`
	ItemRef    string     `json:"item_ref"`
	ReasonCode string     `json:"reason_code"`
	Details    string     `json:"details"`
	Context    any        `json:"context"`
	Status     string     `json:"status"`
	Action     string     `json:"action,omitempty"`
	ActionedAt *time.Time `json:"actioned_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

type AgentReviewQueueInput struct {
	AgentID string `path:"agent_id" doc:"Agent identifier"`
}

type AgentReviewQueueOutput struct {
	Body []ReviewItemView
}

type AgentActivityInput struct {
	AgentID   string `path:"agent_id" doc:"Agent identifier"`
	SessionID string `query:"session_id" required:"false" doc:"Restrict to one session"`
}

type AgentActivityOutput struct {
	Body []*domain.ActivityLog
}

type AgentDecisionsInput struct {
	AgentID   string `path:"agent_id" doc:"Agent identifier"`
	SessionID string `query:"session_id" required:"false" doc:"Restrict to one session"`
}

type AgentDecisionsOutput struct {
	Body []map[string]any
}

func RegisterAgentRoutes(api huma.API, d Deps) {
	huma.Register(api, huma.Operation{
		OperationID: "list-agents",
		Method:      http.MethodGet,
		Path:        "/agents",
		Summary:     "List all agents with live status",
		Tags:        []string{"Agents"},
	}, func(ctx context.Context, _ *struct{}) (*ListAgentsOutput, error) {
		statuses, err := d.Store.AgentStatus().List(ctx)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to list agent status", err)
		}
		counts, err := d.Store.Review().OpenCounts(ctx)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to count review items", err)
		}

		summaries := make([]AgentSummary, 0, len(statuses))
		for _, st := range statuses {
			meta, ok := agent.CatalogByID[st.AgentID]
			if !ok {
				continue
			}
			summaries = append(summaries, agentSummary(meta, st, counts[st.AgentID]))
		}
		sort.Slice(summaries, func(i, j int) bool { return summaries[i].Name < summaries[j].Name })

		return &ListAgentsOutput{Body: summaries}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-agent",
		Method:      http.MethodGet,
		Path:        "/agents/{agent_id}",
		Summary:     "Get one agent with its documents and latest run",
		Tags:        []string{"Agents"},
	}, func(ctx context.Context, input *GetAgentInput) (*GetAgentOutput, error) {
		meta, ok := agent.CatalogByID[input.AgentID]
		if !ok {
			return nil, huma.Error404NotFound("unknown agent")
		}

		st, err := d.Store.AgentStatus().Get(ctx, input.AgentID)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to get agent status", err)
		}
		counts, err := d.Store.Review().OpenCounts(ctx)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to count review items", err)
		}

		detail := &AgentDetail{AgentSummary: agentSummary(meta, st, counts[input.AgentID])}
		if identity, idErr := d.Skills.Identity(input.AgentID); idErr == nil {
			detail.Identity = identity
		}
		if skills, skErr := d.Skills.Read(input.AgentID); skErr == nil {
			detail.Skills = skills
		}
		if latest, found := d.Registry.LatestForAgent(input.AgentID); found {
			id := latest.ID
			detail.LatestSessionID = &id
			detail.LatestOutput = latest.LatestOutput
		}

		return &GetAgentOutput{Body: detail}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "run-agent",
		Method:      http.MethodPost,
		Path:        "/agents/{agent_id}/run",
		Summary:     "Start an agent run",
		Tags:        []string{"Agents"},
	}, func(ctx context.Context, input *RunAgentInput) (*RunAgentOutput, error) {
		if _, ok := agent.CatalogByID[input.AgentID]; !ok {
			return nil, huma.Error404NotFound("unknown agent")
		}
		if !d.Chat.Enabled() {
			return nil, huma.Error503ServiceUnavailable("model runtime is not configured")
		}

		// Each run supersedes the previous one's outbox and review items.
		if err := d.Store.Communications().DeleteByAgent(ctx, input.AgentID); err != nil {
			return nil, huma.Error500InternalServerError("failed to clear communications", err)
		}
		if err := d.Store.Review().DeleteByAgent(ctx, input.AgentID); err != nil {
			return nil, huma.Error500InternalServerError("failed to clear review queue", err)
		}

		session := d.Registry.CreateSession(input.AgentID)
		go func() {
			// The runtime appends the terminal error event and flips the
			// session done itself; nothing to recover here but the log line.
			if _, err := d.Runtime.Run(context.Background(), input.AgentID, session.ID); err != nil {
				log.Error().Err(err).
					Str("agent_id", input.AgentID).
					Str("session_id", session.ID.String()).
					Msg("v1.run-agent: run failed")
			}
		}()

		out := &RunAgentOutput{}
		out.Body.SessionID = session.ID
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-agent-skills",
		Method:      http.MethodGet,
		Path:        "/agents/{agent_id}/skills",
		Summary:     "Get an agent's skills document",
		Tags:        []string{"Agents"},
	}, func(ctx context.Context, input *GetSkillsInput) (*SkillsOutput, error) {
		if _, ok := agent.CatalogByID[input.AgentID]; !ok {
			return nil, huma.Error404NotFound("unknown agent")
		}
		skills, err := d.Skills.Read(input.AgentID)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to read skills", err)
		}

		out := &SkillsOutput{}
		out.Body.AgentID = input.AgentID
		out.Body.Skills = skills
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "put-agent-skills",
		Method:      http.MethodPut,
		Path:        "/agents/{agent_id}/skills",
		Summary:     "Replace an agent's skills document",
		Tags:        []string{"Agents"},
	}, func(ctx context.Context, input *PutSkillsInput) (*SkillsOutput, error) {
		if _, ok := agent.CatalogByID[input.AgentID]; !ok {
			return nil, huma.Error404NotFound("unknown agent")
		}
		if err := d.Skills.Write(input.AgentID, input.Body.Content); err != nil {
			return nil, huma.Error500InternalServerError("failed to write skills", err)
		}

		out := &SkillsOutput{}
		out.Body.AgentID = input.AgentID
		out.Body.Skills = input.Body.Content
		out.Body.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-agent-review-queue",
		Method:      http.MethodGet,
		Path:        "/agents/{agent_id}/review-queue",
		Summary:     "List an agent's review queue items",
		Tags:        []string{"Agents"},
	}, func(ctx context.Context, input *AgentReviewQueueInput) (*AgentReviewQueueOutput, error) {
		if _, ok := agent.CatalogByID[input.AgentID]; !ok {
			return nil, huma.Error404NotFound("unknown agent")
		}
		items, err := d.Store.Review().ListByAgent(ctx, input.AgentID)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to list review queue", err)
		}

		views := make([]ReviewItemView, 0, len(items))
		for _, item := range items {
			views = append(views, reviewItemView(item))
		}
		return &AgentReviewQueueOutput{Body: views}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-agent-activity",
		Method:      http.MethodGet,
		Path:        "/agents/{agent_id}/activity",
		Summary:     "List an agent's activity log",
		Tags:        []string{"Agents"},
	}, func(ctx context.Context, input *AgentActivityInput) (*AgentActivityOutput, error) {
		if _, ok := agent.CatalogByID[input.AgentID]; !ok {
			return nil, huma.Error404NotFound("unknown agent")
		}

		if input.SessionID != "" {
			sessionID, err := uuid.Parse(input.SessionID)
			if err != nil {
				return nil, huma.Error400BadRequest("invalid session id")
			}
			entries, err := d.Store.Activity().ListBySession(ctx, sessionID)
			if err != nil {
				return nil, huma.Error500InternalServerError("failed to list activity", err)
			}
			filtered := entries[:0]
			for _, entry := range entries {
				if entry.AgentID == input.AgentID {
					filtered = append(filtered, entry)
				}
			}
			return &AgentActivityOutput{Body: filtered}, nil
		}

		entries, err := d.Store.Activity().ListByAgent(ctx, input.AgentID, 200)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to list activity", err)
		}
		return &AgentActivityOutput{Body: entries}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-agent-decisions",
		Method:      http.MethodGet,
		Path:        "/agents/{agent_id}/decisions",
		Summary:     "Extract decision history from an agent's run",
		Tags:        []string{"Agents"},
	}, func(ctx context.Context, input *AgentDecisionsInput) (*AgentDecisionsOutput, error) {
		if _, ok := agent.CatalogByID[input.AgentID]; !ok {
			return nil, huma.Error404NotFound("unknown agent")
		}

		var session agent.Session
		var found bool
		if input.SessionID != "" {
			sessionID, err := uuid.Parse(input.SessionID)
			if err != nil {
				return nil, huma.Error400BadRequest("invalid session id")
			}
			session, found = d.Registry.GetSession(sessionID)
		} else {
			session, found = d.Registry.LatestForAgent(input.AgentID)
		}
		if !found {
			return &AgentDecisionsOutput{Body: []map[string]any{}}, nil
		}

		return &AgentDecisionsOutput{Body: extractDecisions(input.AgentID, session.Events)}, nil
	})
}

func agentSummary(meta domain.AgentMeta, st *domain.AgentStatus, reviewCount int) AgentSummary {
	return AgentSummary{
		ID:                  meta.ID,
		Name:                meta.Name,
		Department:          meta.Department,
		WorkspaceType:       meta.WorkspaceType,
		Status:              st.Status,
		CurrentActivity:     st.CurrentActivity,
		LastRunAt:           st.LastRunAt,
		CostToday:           st.CostToday,
		TasksCompletedToday: st.TasksCompletedToday,
		ReviewCount:         reviewCount,
	}
}

func reviewItemView(item *domain.ReviewItem) ReviewItemView {
	view := ReviewItemView{
		ID:         item.ID,
		AgentID:    item.AgentID,
		ItemRef:    item.ItemRef,
		ReasonCode: item.ReasonCode,
		Details:    item.Details,
		Status:     item.Status,
		Action:     item.Action,
		ActionedAt: item.ActionedAt,
		CreatedAt:  item.CreatedAt,
	}
	if item.Context != "" {
		var decoded any
		if err := json.Unmarshal([]byte(item.Context), &decoded); err == nil {
			view.Context = decoded
		}
	}
	return view
}

// extractDecisions mines tool_result events for the adjudication calls the
// workbench renders as a decision trail.
func extractDecisions(agentID string, events []agent.Event) []map[string]any {
	decisions := []map[string]any{}
	for _, event := range events {
		if event.Type != agent.EventToolResult {
			continue
		}
		tool, _ := event.Payload["tool"].(string)
		result, _ := event.Payload["result"].(map[string]any)
		if result == nil {
			result = map[string]any{}
		}

		var decision map[string]any
		switch tool {
		case "complete_invoice":
			decision = map[string]any{
				"timestamp":      event.Timestamp,
				"agent_id":       agentID,
				"decision_type":  "po_match",
				"status":         fallback(result["status"], "unknown"),
				"confidence":     fallback(result["confidence"], 0),
				"reasoning":      fallback(result["reasoning"], ""),
				"invoice_number": result["invoice_number"],
				"vendor":         result["vendor"],
				"amount":         result["amount"],
				"matched_po":     result["matched_po"],
				"variance":       result["variance"],
			}
		case "complete_account":
			decision = map[string]any{
				"timestamp":        event.Timestamp,
				"agent_id":         agentID,
				"decision_type":    "ar_action",
				"action":           fallback(result["action"], "unknown"),
				"reasoning":        fallback(result["reason"], ""),
				"customer_name":    result["customer_name"],
				"days_overdue":     result["days_out"],
				"amount":           result["amount"],
				"email_sent":       fallback(result["email_sent"], false),
				"escalation_level": result["escalation_level"],
			}
		case "flag_exception":
			decision = map[string]any{
				"timestamp":     event.Timestamp,
				"agent_id":      agentID,
				"decision_type": "exception_flag",
				"reason_code":   result["reason_code"],
				"reason_detail": fallback(result["reason_detail"], ""),
				"confidence":    0.95,
				"item_ref":      result["item_ref"],
			}
		case "generate_report":
			decision = map[string]any{
				"timestamp":     event.Timestamp,
				"agent_id":      agentID,
				"decision_type": "report_generation",
				"report_type":   result["report_type"],
				"dimensions":    fallback(result["dimensions"], []any{}),
				"reasoning":     fallback(result["reasoning"], ""),
				"confidence":    fallback(result["confidence"], 0.9),
			}
		case "check_vendor":
			decision = map[string]any{
				"timestamp":           event.Timestamp,
				"agent_id":            agentID,
				"decision_type":       "vendor_compliance",
				"vendor_name":         result["vendor_name"],
				"compliance_status":   fallback(result["status"], "unknown"),
				"issues":              fallback(result["issues"], []any{}),
				"actions_recommended": fallback(result["recommendations"], []any{}),
				"reasoning":           fallback(result["reasoning"], ""),
			}
		}
		if decision != nil {
			decisions = append(decisions, decision)
		}
	}
	return decisions
}

func fallback(value, def any) any {
	if value == nil {
		return def
	}
	return value
}
