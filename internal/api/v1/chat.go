package v1

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sitedesk/foreman/internal/agent"
	"github.com/sitedesk/foreman/internal/llm"
)

const draftInstructionPrompt = "Rewrite user training guidance into one concise operational instruction " +
	"for an AI agent. Return a single sentence and no markdown."

type FinancialQueryInput struct {
	Body struct {
		Message        string `json:"message" minLength:"1" doc:"Analysis question"`
		ConversationID string `json:"conversation_id,omitempty" doc:"Existing conversation to continue"`
	}
}

type FinancialQueryOutput struct {
	Body struct {
		SessionID      uuid.UUID `json:"session_id"`
		ConversationID string    `json:"conversation_id"`
	}
}

type TrainingChatInput struct {
	AgentID string `path:"agent_id" doc:"Agent identifier"`
	Body    struct {
		Message string `json:"message" minLength:"1" doc:"Training guidance"`
		Apply   bool   `json:"apply,omitempty" doc:"Apply the instruction instead of drafting"`
	}
}

type TrainingChatOutput struct {
	Body struct {
		Response             string `json:"response"`
		SuggestedInstruction string `json:"suggested_instruction"`
		Applied              bool   `json:"applied"`
		Skills               string `json:"skills,omitempty"`
	}
}

type AskAgentInput struct {
	AgentID string `path:"agent_id" doc:"Agent identifier"`
	Body    struct {
		Message        string `json:"message" minLength:"1" doc:"Question about the agent's work"`
		ConversationID string `json:"conversation_id,omitempty" doc:"Existing conversation to continue"`
	}
}

type AskAgentOutput struct {
	Body struct {
		Response       string `json:"response"`
		ConversationID string `json:"conversation_id"`
	}
}

func RegisterChatRoutes(api huma.API, d Deps) {
	huma.Register(api, huma.Operation{
		OperationID: "financial-query",
		Method:      http.MethodPost,
		Path:        "/agents/financial_reporting/query",
		Summary:     "Start an interactive financial analysis session",
		Tags:        []string{"Agents"},
	}, func(ctx context.Context, input *FinancialQueryInput) (*FinancialQueryOutput, error) {
		if !d.Chat.Enabled() {
			return nil, huma.Error503ServiceUnavailable("model runtime is not configured")
		}

		conversation := d.Registry.GetOrCreateConversation(input.Body.ConversationID, "financial_reporting")
		session := d.Registry.CreateSession("financial_reporting")
		message := input.Body.Message

		go func() {
			if _, err := d.Runtime.RunFinancialQuery(context.Background(), session.ID, conversation.ID, message); err != nil {
				log.Error().Err(err).
					Str("session_id", session.ID.String()).
					Msg("v1.financial-query: run failed")
			}
		}()

		out := &FinancialQueryOutput{}
		out.Body.SessionID = session.ID
		out.Body.ConversationID = conversation.ID
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "training-chat",
		Method:      http.MethodPost,
		Path:        "/agents/{agent_id}/chat",
		Summary:     "Draft or apply a training instruction",
		Tags:        []string{"Agents"},
	}, func(ctx context.Context, input *TrainingChatInput) (*TrainingChatOutput, error) {
		if _, ok := agent.CatalogByID[input.AgentID]; !ok {
			return nil, huma.Error404NotFound("unknown agent")
		}
		if !d.Chat.Enabled() {
			return nil, huma.Error503ServiceUnavailable("model runtime is not configured")
		}

		message := strings.TrimSpace(input.Body.Message)
		out := &TrainingChatOutput{}

		if input.Body.Apply {
			// The message is the already-approved instruction; no drafting.
			updated, err := d.Skills.AppendTraining(input.AgentID, message)
			if err != nil {
				return nil, huma.Error500InternalServerError("failed to apply training update", err)
			}
			out.Body.Response = "Training update applied to skills.md."
			out.Body.SuggestedInstruction = message
			out.Body.Applied = true
			out.Body.Skills = updated
			return out, nil
		}

		resp, err := d.Chat.Chat(ctx, []llm.Message{
			{Role: "system", Content: draftInstructionPrompt},
			{Role: "user", Content: fmt.Sprintf("Agent: %s\nGuidance: %s", input.AgentID, message)},
		}, llm.ChatOptions{Temperature: 0.2, MaxTokens: 120})
		if err != nil {
			return nil, huma.Error502BadGateway("training model call failed", err)
		}
		suggestion := strings.TrimSpace(resp.Text)
		if suggestion == "" {
			return nil, huma.Error502BadGateway("training model returned an empty instruction")
		}

		out.Body.Response = "I interpreted your instruction and can apply it to the skills file."
		out.Body.SuggestedInstruction = suggestion
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "ask-agent",
		Method:      http.MethodPost,
		Path:        "/agents/{agent_id}/ask",
		Summary:     "Ask an agent about its last run",
		Tags:        []string{"Agents"},
	}, func(ctx context.Context, input *AskAgentInput) (*AskAgentOutput, error) {
		if _, ok := agent.CatalogByID[input.AgentID]; !ok {
			return nil, huma.Error404NotFound("unknown agent")
		}
		if !d.Chat.Enabled() {
			return nil, huma.Error503ServiceUnavailable("model runtime is not configured")
		}

		conversation := d.Registry.GetOrCreateConversation(input.Body.ConversationID, input.AgentID)
		systemPrompt, err := d.buildAskPrompt(ctx, input.AgentID)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to build agent context", err)
		}

		messages := []llm.Message{{Role: "system", Content: systemPrompt}}
		history := conversation.Messages
		if len(history) > 6 {
			history = history[len(history)-6:]
		}
		for _, msg := range history {
			messages = append(messages, llm.Message{Role: msg.Role, Content: msg.Content})
		}
		messages = append(messages, llm.Message{Role: "user", Content: input.Body.Message})

		resp, err := d.Chat.Chat(ctx, messages, llm.ChatOptions{Temperature: 0.3, MaxTokens: 600})
		if err != nil {
			return nil, huma.Error502BadGateway("model call failed", err)
		}

		d.Registry.AppendMessage(conversation.ID, "user", input.Body.Message)
		d.Registry.AppendMessage(conversation.ID, "assistant", resp.Text)

		out := &AskAgentOutput{}
		out.Body.Response = resp.Text
		out.Body.ConversationID = conversation.ID
		return out, nil
	})
}

// buildAskPrompt assembles the system prompt from the agent's documents, its
// latest run output, and the durable activity trail of that run.
func (d Deps) buildAskPrompt(ctx context.Context, agentID string) (string, error) {
	identity, err := d.Skills.Identity(agentID)
	if err != nil {
		return "", err
	}
	skills, err := d.Skills.Read(agentID)
	if err != nil {
		return "", err
	}

	outputSummary := ""
	activityContext := ""
	if latest, found := d.Registry.LatestForAgent(agentID); found {
		if latest.LatestOutput != nil {
			if encoded, marshalErr := json.MarshalIndent(latest.LatestOutput, "", "  "); marshalErr == nil {
				outputSummary = truncate(string(encoded), 3000)
			}
		}
		entries, listErr := d.Store.Activity().ListBySession(ctx, latest.ID)
		if listErr != nil {
			return "", listErr
		}
		if len(entries) > 50 {
			entries = entries[:50]
		}
		lines := make([]string, 0, len(entries))
		for _, entry := range entries {
			if entry.AgentID == agentID {
				lines = append(lines, fmt.Sprintf("[%s] %s", entry.EventType, entry.Message))
			}
		}
		activityContext = truncate(strings.Join(lines, "\n"), 2000)
	}
	if outputSummary == "" {
		outputSummary = "No recent run data."
	}

	return fmt.Sprintf(
		"%s\n\nYour skills and procedures:\n%s\n\n"+
			"You just completed a run. Here is a summary of what you did:\n%s\n\n"+
			"Activity log from your last run:\n%s\n\n"+
			"Answer the user's question about your work. Be specific and reference actual data "+
			"from your run (invoice numbers, amounts, vendor names, customer names, decisions made). "+
			"If you flagged an exception, explain why. If you matched an invoice, explain the logic. "+
			"Be conversational and helpful.",
		identity, skills, outputSummary, activityContext,
	), nil
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
