package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sitedesk/foreman/internal/domain"
	"github.com/sitedesk/foreman/internal/llm"
)

func arBucketHint(days int) string {
	switch {
	case days <= 29:
		return "0-29 days (within terms)"
	case days <= 59:
		return "30-59 days (polite reminder range)"
	case days <= 89:
		return "60-89 days (firm follow-up range)"
	case days <= 104:
		return "90-104 days (collections escalation range)"
	}
	return "105+ days (attorney escalation range)"
}

// arChooseAccountAction has the model decide the follow-up action for one
// aging account and compose the outbound email where applicable.
func (rt *Runtime) arChooseAccountAction(ctx context.Context, account *domain.ARAccount, index, total int) (*llm.StructuredResult, error) {
	objective := fmt.Sprintf(
		"Analyze this accounts receivable account and determine the correct follow-up action. "+
			"This is account %d of %d. The account falls in the %s aging bucket. "+
			"Return JSON with keys: action (polite_reminder|firm_email_plus_internal_task|"+
			"escalated_to_collections|attorney_escalation_105_days|skip_retainage|no_action_within_terms), "+
			"reason (1-2 sentence explanation), "+
			"email_subject (required for polite_reminder, firm_email_plus_internal_task, escalated_to_collections, attorney_escalation_105_days), "+
			"email_body (required for same — write a professional email following the tone guidelines in your skills), "+
			"recipient (email address — use billing@<companyname>.com format if not known; "+
			"for attorney_escalation_105_days, use attorney contact info from skills).",
		index, total, arBucketHint(account.DaysOut))

	return rt.acquirer.Request(ctx, llm.Request{
		AgentID:     "ar_followup",
		Objective:   objective,
		Context:     map[string]any{"account": account},
		MaxTokens:   800,
		Temperature: 0.15,
		Validator:   validateARSingleAccount,
	})
}

func (rt *Runtime) runARFollowup(ctx context.Context, em *Emitter) (map[string]any, error) {
	const agentID = "ar_followup"

	accounts, err := rt.stores.AR.ListAging(ctx)
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, fmt.Errorf("runARFollowup: no aging accounts to review")
	}

	if err := em.StatusChange(ctx, "working", "AR Follow-Up Agent started aging review"); err != nil {
		return nil, err
	}
	if err := rt.stores.AgentStatus.Update(ctx, agentID, domain.StatusUpdate{
		Status:          "working",
		CurrentActivity: "Reviewing AR aging accounts",
	}); err != nil {
		return nil, err
	}

	minDays, maxDays := accounts[0].DaysOut, accounts[0].DaysOut
	totalOutstanding := 0.0
	for _, a := range accounts {
		if a.DaysOut < minDays {
			minDays = a.DaysOut
		}
		if a.DaysOut > maxDays {
			maxDays = a.DaysOut
		}
		totalOutstanding += a.Amount
	}
	totalOutstanding = round2(totalOutstanding)

	if err := em.Reasoning(ctx, fmt.Sprintf(
		"Loading AR aging data. Found %d accounts to review, ranging from %d to %d days outstanding.",
		len(accounts), minDays, maxDays)); err != nil {
		return nil, err
	}
	scanPayload := map[string]any{"accounts": len(accounts), "total_outstanding": totalOutstanding}
	if err := em.ToolCall(ctx, "scan_ar_aging", scanPayload); err != nil {
		return nil, err
	}
	if err := em.ToolResult(ctx, "scan_ar_aging", scanPayload,
		fmt.Sprintf("Loaded %d accounts totaling $%.2f outstanding.", len(accounts), totalOutstanding)); err != nil {
		return nil, err
	}

	var results []map[string]any
	emailsSent, escalated, skipped := 0, 0, 0

	for idx, account := range accounts {
		customer := account.CustomerName

		if err := rt.stores.AgentStatus.Update(ctx, agentID, domain.StatusUpdate{
			Status:          "working",
			CurrentActivity: fmt.Sprintf("Reviewing %s (%d/%d)", customer, idx+1, len(accounts)),
		}); err != nil {
			return nil, err
		}

		retainageNote := ""
		if account.IsRetainage {
			retainageNote = " (Retainage balance)"
		}
		if err := em.Reasoning(ctx, fmt.Sprintf(
			"Reviewing account %d of %d: %s — $%.2f outstanding, %d days.%s",
			idx+1, len(accounts), customer, account.Amount, account.DaysOut, retainageNote)); err != nil {
			return nil, err
		}

		if err := em.ToolCall(ctx, "review_account", map[string]any{
			"customer":     customer,
			"days_out":     account.DaysOut,
			"amount":       account.Amount,
			"is_retainage": account.IsRetainage,
			"notes":        account.Notes,
		}); err != nil {
			return nil, err
		}
		if err := em.ToolResult(ctx, "review_account",
			map[string]any{"customer": customer, "days_out": account.DaysOut, "amount": account.Amount},
			fmt.Sprintf("Loaded account details for %s.", customer)); err != nil {
			return nil, err
		}

		decision, err := rt.arChooseAccountAction(ctx, account, idx+1, len(accounts))
		if err != nil {
			return nil, err
		}
		if err := em.EmitLLM(ctx, EventToolResult,
			map[string]any{"tool": "llm_analysis", "result": map[string]any{}, "summary": "Analyzed " + customer},
			"LLM analysis for "+customer, decision.PromptTokens, decision.CompletionTokens); err != nil {
			return nil, err
		}

		action := stringField(decision.Data, "action")
		reason := stringField(decision.Data, "reason")
		if reason == "" {
			reason = "Model-selected AR action."
		}
		if !arAllowedActions[action] {
			return nil, fmt.Errorf("runARFollowup: invalid action %q for %s", action, customer)
		}

		if err := em.ToolCall(ctx, "determine_action", map[string]any{
			"customer": customer,
			"days_out": account.DaysOut,
			"amount":   account.Amount,
			"action":   action,
		}); err != nil {
			return nil, err
		}
		if err := em.ToolResult(ctx, "determine_action",
			map[string]any{"customer": customer, "action": action, "reason": reason},
			fmt.Sprintf("Action for %s: %s.", customer, strings.ReplaceAll(action, "_", " "))); err != nil {
			return nil, err
		}

		recipient := stringField(decision.Data, "recipient")
		if recipient == "" {
			recipient = "billing@" + strings.ReplaceAll(strings.ToLower(customer), " ", "") + ".com"
		}
		subject := stringField(decision.Data, "email_subject")
		body := stringField(decision.Data, "email_body")

		switch action {
		case "polite_reminder", "firm_email_plus_internal_task", "escalated_to_collections":
			if subject != "" && body != "" {
				if err := em.ToolCall(ctx, "compose_email",
					map[string]any{"recipient": recipient, "subject": subject}); err != nil {
					return nil, err
				}
				if err := rt.stores.Communications.Insert(ctx, &domain.Communication{
					AgentID:   agentID,
					Recipient: recipient,
					Subject:   subject,
					Body:      body,
					Channel:   "email",
				}); err != nil {
					return nil, err
				}
				if err := em.Communication(ctx, recipient, subject, body); err != nil {
					return nil, err
				}
				emailsSent++
			}
		}

		if action == "escalated_to_collections" {
			if err := em.ToolCall(ctx, "escalate_to_collections",
				map[string]any{"customer": customer, "amount": account.Amount}); err != nil {
				return nil, err
			}
			if err := rt.stores.Collections.Insert(ctx, &domain.CollectionsEntry{
				CustomerName: customer,
				Amount:       account.Amount,
				Reason:       reason,
			}); err != nil {
				return nil, err
			}
			rt.escalate(ctx, fmt.Sprintf("AR escalation: %s ($%.2f, %d days) moved to collections queue",
				customer, account.Amount, account.DaysOut))
			if err := em.ToolResult(ctx, "escalate_to_collections",
				map[string]any{"customer": customer, "amount": account.Amount, "reason": reason},
				fmt.Sprintf("Escalated %s ($%.2f) to collections queue.", customer, account.Amount)); err != nil {
				return nil, err
			}
			escalated++
		}

		if action == "firm_email_plus_internal_task" {
			title := "AR follow-up call: " + customer
			description := fmt.Sprintf("Follow up by phone on $%.2f outstanding (%d days). %s",
				account.Amount, account.DaysOut, reason)
			if err := em.ToolCall(ctx, "create_internal_task",
				map[string]any{"title": title, "priority": "high"}); err != nil {
				return nil, err
			}
			due := time.Now().UTC().AddDate(0, 0, 2)
			if err := rt.stores.Tasks.Insert(ctx, &domain.InternalTask{
				AgentID:     agentID,
				Title:       title,
				Description: description,
				Priority:    "high",
				DueDate:     &due,
				Status:      "open",
			}); err != nil {
				return nil, err
			}
			if err := em.ToolResult(ctx, "create_internal_task",
				map[string]any{"title": title, "priority": "high"},
				"Created internal follow-up task for "+customer); err != nil {
				return nil, err
			}
		}

		if action == "skip_retainage" || action == "no_action_within_terms" {
			skipped++
		}

		if err := em.ToolResult(ctx, "complete_account",
			map[string]any{"customer": customer, "action": action},
			fmt.Sprintf("Completed review of %s — %s.", customer, strings.ReplaceAll(action, "_", " "))); err != nil {
			return nil, err
		}

		results = append(results, map[string]any{
			"customer":     customer,
			"action":       action,
			"reason":       reason,
			"amount":       account.Amount,
			"days_out":     account.DaysOut,
			"is_retainage": account.IsRetainage,
		})
	}

	buckets := map[string]int{"current": 0, "30_60": 0, "61_90": 0, "over_90": 0}
	bucketAmounts := map[string]float64{"current": 0, "30_60": 0, "61_90": 0, "over_90": 0}
	for _, a := range accounts {
		var key string
		switch {
		case a.DaysOut <= 30:
			key = "current"
		case a.DaysOut <= 60:
			key = "30_60"
		case a.DaysOut <= 90:
			key = "61_90"
		default:
			key = "over_90"
		}
		buckets[key]++
		bucketAmounts[key] += a.Amount
	}
	for key, amount := range bucketAmounts {
		bucketAmounts[key] = round2(amount)
	}

	return map[string]any{
		"results": results,
		"aging_summary": map[string]any{
			"total_accounts":    len(accounts),
			"total_outstanding": totalOutstanding,
			"buckets":           buckets,
			"bucket_amounts":    bucketAmounts,
		},
		"queue_progress": map[string]any{
			"total":         len(accounts),
			"actions_taken": emailsSent + escalated,
			"emails_sent":   emailsSent,
			"escalated":     escalated,
			"skipped":       skipped,
		},
	}, nil
}
