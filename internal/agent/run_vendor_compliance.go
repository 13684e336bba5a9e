package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sitedesk/foreman/internal/domain"
	"github.com/sitedesk/foreman/internal/fixtures"
	"github.com/sitedesk/foreman/internal/llm"
)

// complianceExpectations pulls the demo acceptance assertions out of the
// vendor fixture so the validator can enforce them.
func complianceExpectations(payload map[string]any) []ComplianceExpectation {
	raw, ok := payload["expected_findings"]
	if !ok {
		return nil
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil
	}
	var expectations []ComplianceExpectation
	if err := json.Unmarshal(encoded, &expectations); err != nil {
		return nil
	}
	return expectations
}

func (rt *Runtime) runVendorCompliance(ctx context.Context, em *Emitter) (map[string]any, error) {
	const agentID = "vendor_compliance"

	payload, err := fixtures.Load("vendor_compliance_records.json")
	if err != nil {
		return nil, err
	}
	vendors, _ := payload["vendors"].([]any)
	if len(vendors) == 0 {
		return nil, fmt.Errorf("runVendorCompliance: fixture has no vendors")
	}

	vendorEmails := make(map[string]string, len(vendors))
	for _, raw := range vendors {
		v, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		vendorEmails[stringField(v, "name")] = stringField(v, "email")
	}

	if err := em.Reasoning(ctx, fmt.Sprintf(
		"Loading vendor compliance records. Found %d active vendors to audit for "+
			"insurance certificates, W-9 status, licensing, and contract terms.", len(vendors))); err != nil {
		return nil, err
	}
	rt.pause(ctx, 300*time.Millisecond)

	if err := em.ToolCall(ctx, "scan_vendor_records", map[string]any{"vendor_count": len(vendors)}); err != nil {
		return nil, err
	}
	rt.pause(ctx, 200*time.Millisecond)

	if err := em.Reasoning(ctx,
		"Scanning each vendor's documentation for expired insurance, missing W-9 forms, "+
			"lapsed licenses, and contract renewal deadlines."); err != nil {
		return nil, err
	}
	rt.pause(ctx, 200*time.Millisecond)

	result, err := rt.acquirer.Request(ctx, llm.Request{
		AgentID: agentID,
		Objective: "Scan vendor compliance and return JSON with key findings (array). " +
			"Each finding must include: vendor, issue, reason, action_type " +
			"(renewal_email|urgent_hold_task|w9_email|contract_task), " +
			"subject (optional), body (optional), task_title (optional), task_description (optional), task_priority (optional).",
		Context:     payload,
		MaxTokens:   2000,
		Temperature: 0.1,
		Validator:   makeVendorComplianceValidator(complianceExpectations(payload)),
	})
	if err != nil {
		return nil, err
	}
	if err := em.EmitLLM(ctx, EventToolResult,
		map[string]any{"tool": "llm_analysis", "result": map[string]any{}, "summary": "LLM analysis complete"},
		"LLM analysis", result.PromptTokens, result.CompletionTokens); err != nil {
		return nil, err
	}

	findings, ok := result.Data["findings"].([]any)
	if !ok {
		return nil, fmt.Errorf("runVendorCompliance: model output missing findings[]")
	}

	if err := em.Reasoning(ctx, fmt.Sprintf(
		"Audit complete. Identified %d compliance issue(s) across %d vendors. "+
			"Processing each finding and executing required actions.", len(findings), len(vendors))); err != nil {
		return nil, err
	}
	rt.pause(ctx, 300*time.Millisecond)

	expiredCount, expiringCount := 0, 0
	for _, raw := range findings {
		finding, findingOK := raw.(map[string]any)
		if !findingOK {
			continue
		}
		vendorName := stringField(finding, "vendor")
		actionType := stringField(finding, "action_type")
		if vendorName == "" || actionType == "" {
			return nil, fmt.Errorf("runVendorCompliance: finding missing vendor/action_type")
		}
		email, knownVendor := vendorEmails[vendorName]
		if !knownVendor {
			continue
		}
		issue := stringField(finding, "issue")

		if err := em.ToolCall(ctx, "check_vendor",
			map[string]any{"vendor": vendorName, "issue": issue, "action": actionType}); err != nil {
			return nil, err
		}
		rt.pause(ctx, 100*time.Millisecond)

		if err := em.ToolResult(ctx, "check_vendor",
			map[string]any{"vendor": vendorName, "issue": issue, "action_type": actionType, "reason": stringField(finding, "reason")},
			fmt.Sprintf("%s: %s — action: %s", vendorName, issue, strings.ReplaceAll(actionType, "_", " "))); err != nil {
			return nil, err
		}
		rt.pause(ctx, 150*time.Millisecond)

		switch actionType {
		case "renewal_email", "w9_email":
			subject := stringField(finding, "subject")
			body := stringField(finding, "body")
			if subject == "" || body == "" {
				return nil, fmt.Errorf("runVendorCompliance: missing email content for %s", vendorName)
			}
			if err := rt.stores.Communications.Insert(ctx, &domain.Communication{
				AgentID:   agentID,
				Recipient: email,
				Subject:   subject,
				Body:      body,
				Channel:   "email",
			}); err != nil {
				return nil, err
			}
			if err := em.Communication(ctx, email, subject, body); err != nil {
				return nil, err
			}

		case "urgent_hold_task", "contract_task":
			title := stringField(finding, "task_title")
			if title == "" {
				title = "Compliance task: " + vendorName
			}
			description := stringField(finding, "task_description")
			if description == "" {
				description = stringField(finding, "reason")
			}
			priority := stringField(finding, "task_priority")
			if priority == "" {
				if actionType == "urgent_hold_task" {
					priority = "critical"
				} else {
					priority = "medium"
				}
			}
			if err := rt.stores.Tasks.Insert(ctx, &domain.InternalTask{
				AgentID:     agentID,
				Title:       title,
				Description: description,
				Priority:    priority,
				Status:      "open",
			}); err != nil {
				return nil, err
			}
		}
	}

	for _, raw := range findings {
		finding, findingOK := raw.(map[string]any)
		if !findingOK {
			continue
		}
		switch stringField(finding, "action_type") {
		case "urgent_hold_task":
			expiredCount++
		case "renewal_email", "contract_task", "w9_email":
			expiringCount++
		}
	}

	complianceSummary := map[string]any{
		"total_vendors": len(vendors),
		"compliant":     len(vendors) - expiredCount - expiringCount,
		"expiring":      expiringCount,
		"non_compliant": expiredCount,
		"issues_found":  len(findings),
	}

	if err := em.StatusChange(ctx, "complete", fmt.Sprintf(
		"Vendor compliance audit finished: %d issue(s) across %d vendors.", len(findings), len(vendors))); err != nil {
		return nil, err
	}

	return map[string]any{"findings": findings, "compliance_summary": complianceSummary}, nil
}
