package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sitedesk/foreman/internal/domain"
	"github.com/sitedesk/foreman/internal/fixtures"
	"github.com/sitedesk/foreman/internal/llm"
)

func (rt *Runtime) runInquiryRouter(ctx context.Context, em *Emitter) (map[string]any, error) {
	const agentID = "inquiry_router"

	payload, err := fixtures.Load("inquiry_emails.json")
	if err != nil {
		return nil, err
	}
	emails, _ := payload["emails"].([]any)

	if err := em.Reasoning(ctx, fmt.Sprintf(
		"Loading customer inquiry inbox. Found %d incoming emails to classify and route "+
			"to the appropriate department (estimating, billing, operations, management).", len(emails))); err != nil {
		return nil, err
	}
	rt.pause(ctx, 300*time.Millisecond)

	if err := em.ToolCall(ctx, "load_inquiry_emails", map[string]any{"email_count": len(emails)}); err != nil {
		return nil, err
	}
	rt.pause(ctx, 200*time.Millisecond)

	if err := em.Reasoning(ctx,
		"Analyzing each email's subject, sender, and content to determine the correct department routing, "+
			"urgency level, and create appropriate internal tasks."); err != nil {
		return nil, err
	}
	rt.pause(ctx, 200*time.Millisecond)

	if err := em.ToolCall(ctx, "route_inquiries", map[string]any{"emails": len(emails)}); err != nil {
		return nil, err
	}
	rt.pause(ctx, 100*time.Millisecond)

	result, err := rt.acquirer.Request(ctx, llm.Request{
		AgentID: agentID,
		Objective: "Route customer inquiries. Return JSON with key routes (array). " +
			"Each route item must include from, subject, route, priority, description.",
		Context:     payload,
		MaxTokens:   900,
		Temperature: 0.1,
		Validator:   validateInquiryRoutes,
	})
	if err != nil {
		return nil, err
	}
	if err := em.EmitLLM(ctx, EventToolResult,
		map[string]any{"tool": "llm_analysis", "result": map[string]any{}, "summary": "LLM analysis complete"},
		"LLM analysis", result.PromptTokens, result.CompletionTokens); err != nil {
		return nil, err
	}

	routes, ok := result.Data["routes"].([]any)
	if !ok {
		return nil, fmt.Errorf("runInquiryRouter: model output missing routes[]")
	}

	if err := em.Reasoning(ctx, fmt.Sprintf(
		"Routing decisions complete. Processing %d inquiries and creating internal tasks.", len(routes))); err != nil {
		return nil, err
	}
	rt.pause(ctx, 200*time.Millisecond)

	for _, raw := range routes {
		route, routeOK := raw.(map[string]any)
		if !routeOK {
			continue
		}
		subject := stringField(route, "subject")
		sender := stringField(route, "from")
		destination := stringField(route, "route")
		priority := defaultString(stringField(route, "priority"), "medium")
		description := stringField(route, "description")
		if description == "" {
			description = fmt.Sprintf("From %s -> %s", sender, destination)
		}
		if subject == "" || sender == "" || destination == "" {
			return nil, fmt.Errorf("runInquiryRouter: route entry missing required fields")
		}

		if err := em.ToolCall(ctx, "route_email",
			map[string]any{"from": sender, "subject": subject}); err != nil {
			return nil, err
		}
		rt.pause(ctx, 100*time.Millisecond)

		if err := rt.stores.Tasks.Insert(ctx, &domain.InternalTask{
			AgentID:     agentID,
			Title:       "Route customer inquiry: " + subject,
			Description: description,
			Priority:    priority,
			Status:      "open",
		}); err != nil {
			return nil, err
		}

		if err := em.ToolResult(ctx, "route_email",
			map[string]any{"from": sender, "subject": subject, "route": destination, "priority": priority},
			fmt.Sprintf("%s → %s [%s]: %s", sender, destination, priority, subject)); err != nil {
			return nil, err
		}
		rt.pause(ctx, 150*time.Millisecond)
	}

	if err := em.StatusChange(ctx, "complete",
		fmt.Sprintf("Routed %d customer inquiries.", len(routes))); err != nil {
		return nil, err
	}

	deptCounts := make(map[string]int)
	urgentCount := 0
	for _, raw := range routes {
		route, routeOK := raw.(map[string]any)
		if !routeOK {
			continue
		}
		deptCounts[defaultString(stringField(route, "route"), "Other")]++
		if strings.EqualFold(stringField(route, "priority"), "high") {
			urgentCount++
		}
	}
	inboxSummary := map[string]any{
		"total_emails": len(routes),
		"urgent":       urgentCount,
		"departments":  deptCounts,
	}

	return map[string]any{"routes": routes, "inbox_summary": inboxSummary}, nil
}
