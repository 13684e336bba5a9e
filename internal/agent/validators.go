package agent

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sitedesk/foreman/internal/llm"
)

// Validators are pure functions from a candidate JSON object to a list of
// human-readable error strings; an empty list means valid. They never touch
// the network or the database.

func isNonEmptyString(v any) bool {
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) != ""
}

func isNumber(v any) bool {
	switch v.(type) {
	case float64, int, int64:
		return true
	}
	return false
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return 0
}

func stringField(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return strings.TrimSpace(s)
}

func validateTrainingRuleFlag(payload map[string]any) []string {
	if _, ok := payload["training_rule_active"].(bool); !ok {
		return []string{"training_rule_active must be boolean"}
	}
	return nil
}

// makePOStepValidator enforces allowed-action set membership plus per-action
// required arguments for one PO-matching step.
func makePOStepValidator(allowedActions []string, availablePONumbers map[string]bool) llm.ValidatorFunc {
	allowed := make(map[string]bool, len(allowedActions))
	sorted := make([]string, 0, len(allowedActions))
	for _, a := range allowedActions {
		allowed[a] = true
		sorted = append(sorted, a)
	}
	sort.Strings(sorted)

	return func(payload map[string]any) []string {
		var errs []string
		action := stringField(payload, "action")

		if !allowed[action] {
			return []string{"action must be one of: " + strings.Join(sorted, ", ")}
		}
		if !isNonEmptyString(payload["reason"]) {
			errs = append(errs, "reason is required")
		}
		args, ok := payload["args"].(map[string]any)
		if !ok {
			return append(errs, "args must be object")
		}

		switch action {
		case actionSelectPO:
			poNumber := stringField(args, "po_number")
			if poNumber == "" {
				errs = append(errs, "select_po requires args.po_number")
			} else if len(availablePONumbers) > 0 && !availablePONumbers[poNumber] {
				errs = append(errs, "select_po args.po_number must be in available po matches")
			}
		case actionAssignCoding:
			if !isNonEmptyString(args["job_id"]) {
				errs = append(errs, "assign_coding requires args.job_id")
			}
			if !isNonEmptyString(args["gl_code"]) {
				errs = append(errs, "assign_coding requires args.gl_code")
			}
		case actionFlagException:
			if !isNonEmptyString(args["reason_code"]) {
				errs = append(errs, "flag_exception requires args.reason_code")
			}
			if !isNonEmptyString(args["details"]) {
				errs = append(errs, "flag_exception requires args.details")
			}
		case actionGetProjectDetails:
			if !isNonEmptyString(args["project_id"]) {
				errs = append(errs, "get_project_details requires args.project_id")
			}
		case actionSendNotification:
			for _, field := range []string{"recipient", "subject", "body"} {
				if !isNonEmptyString(args[field]) {
					errs = append(errs, "send_notification requires args."+field)
				}
			}
		case actionCompleteInvoice:
			finalStatus := strings.ToLower(stringField(args, "final_status"))
			if finalStatus != "matched" && finalStatus != "exception" {
				errs = append(errs, "complete_invoice args.final_status must be matched|exception")
			}
			confidence := strings.ToLower(stringField(args, "confidence"))
			if confidence != "low" && confidence != "medium" && confidence != "high" {
				errs = append(errs, "complete_invoice args.confidence must be low|medium|high")
			}
			if !isNonEmptyString(args["summary"]) {
				errs = append(errs, "complete_invoice requires args.summary")
			}
		}

		return errs
	}
}

// arAllowedActions is the fixed action vocabulary for AR follow-up.
var arAllowedActions = map[string]bool{
	"polite_reminder":               true,
	"firm_email_plus_internal_task": true,
	"escalated_to_collections":      true,
	"attorney_escalation_105_days":  true,
	"skip_retainage":                true,
	"no_action_within_terms":        true,
}

func validateARSingleAccount(payload map[string]any) []string {
	var errs []string
	action := stringField(payload, "action")
	if !arAllowedActions[action] {
		names := make([]string, 0, len(arAllowedActions))
		for a := range arAllowedActions {
			names = append(names, a)
		}
		sort.Strings(names)
		errs = append(errs, "action must be one of: "+strings.Join(names, ", "))
	}
	if !isNonEmptyString(payload["reason"]) {
		errs = append(errs, "reason is required")
	}
	switch action {
	case "polite_reminder", "firm_email_plus_internal_task", "escalated_to_collections":
		if !isNonEmptyString(payload["email_subject"]) {
			errs = append(errs, "email_subject required for "+action)
		}
		if !isNonEmptyString(payload["email_body"]) {
			errs = append(errs, "email_body required for "+action)
		}
	}
	return errs
}

// validateFinancialReport checks the batch-mode executive dashboard shape.
func validateFinancialReport(payload map[string]any) []string {
	var errs []string
	if !isNonEmptyString(payload["report_title"]) {
		errs = append(errs, "report_title is required")
	}
	sections, ok := payload["sections"].([]any)
	if !ok || len(sections) < 1 {
		return append(errs, "sections must be a non-empty array")
	}
	for idx, raw := range sections {
		sec, secOK := raw.(map[string]any)
		if !secOK {
			errs = append(errs, fmt.Sprintf("sections[%d] must be object", idx))
			continue
		}
		switch stringField(sec, "type") {
		case "table":
			if _, colsOK := sec["columns"].([]any); !colsOK {
				errs = append(errs, fmt.Sprintf("sections[%d] table needs columns array", idx))
			}
			if _, rowsOK := sec["rows"].([]any); !rowsOK {
				errs = append(errs, fmt.Sprintf("sections[%d] table needs rows array", idx))
			}
		case "chart":
			if !isNonEmptyString(sec["chart_type"]) {
				errs = append(errs, fmt.Sprintf("sections[%d] chart needs chart_type", idx))
			}
			if _, dataOK := sec["data"].(map[string]any); !dataOK {
				errs = append(errs, fmt.Sprintf("sections[%d] chart needs data object", idx))
			}
		case "narrative":
			if !isNonEmptyString(sec["content"]) {
				errs = append(errs, fmt.Sprintf("sections[%d] narrative needs content", idx))
			}
		case "kpi_grid":
			if _, metricsOK := sec["metrics"].([]any); !metricsOK {
				errs = append(errs, fmt.Sprintf("sections[%d] kpi_grid needs metrics array", idx))
			}
		default:
			errs = append(errs, fmt.Sprintf("sections[%d].type must be one of kpi_grid|table|chart|narrative", idx))
		}
	}
	return errs
}

// validateFinancialQueryReport checks the chat-mode report shape.
func validateFinancialQueryReport(payload map[string]any) []string {
	var errs []string
	if !isNonEmptyString(payload["report_title"]) {
		errs = append(errs, "report_title is required")
	}
	if !isNonEmptyString(payload["response_text"]) {
		errs = append(errs, "response_text is required")
	}
	if sections, ok := payload["sections"].([]any); !ok || len(sections) < 1 {
		errs = append(errs, "sections must be a non-empty array")
	}
	return errs
}

// ComplianceExpectation is one demo acceptance assertion: a finding whose
// vendor contains the substring must exist with exactly this action type.
// These come from the fixture file, not from code.
type ComplianceExpectation struct {
	VendorContains string `json:"vendor_contains"`
	ActionType     string `json:"action_type"`
}

var complianceActionTypes = map[string]bool{
	"renewal_email":    true,
	"urgent_hold_task": true,
	"w9_email":         true,
	"contract_task":    true,
}

// makeVendorComplianceValidator checks per-finding shape and the configured
// acceptance expectations.
func makeVendorComplianceValidator(expectations []ComplianceExpectation) llm.ValidatorFunc {
	return func(payload map[string]any) []string {
		var errs []string
		findings, ok := payload["findings"].([]any)
		if !ok {
			return []string{"findings must be an array"}
		}
		for idx, raw := range findings {
			row, rowOK := raw.(map[string]any)
			if !rowOK {
				errs = append(errs, fmt.Sprintf("findings[%d] must be object", idx))
				continue
			}
			for _, field := range []string{"vendor", "issue", "reason"} {
				if !isNonEmptyString(row[field]) {
					errs = append(errs, fmt.Sprintf("findings[%d].%s is required", idx, field))
				}
			}
			actionType := stringField(row, "action_type")
			if !complianceActionTypes[actionType] {
				errs = append(errs, fmt.Sprintf("findings[%d].action_type invalid", idx))
			}
			switch actionType {
			case "renewal_email", "w9_email":
				if !isNonEmptyString(row["subject"]) {
					errs = append(errs, fmt.Sprintf("findings[%d].subject required for email action", idx))
				}
				if !isNonEmptyString(row["body"]) {
					errs = append(errs, fmt.Sprintf("findings[%d].body required for email action", idx))
				}
			case "urgent_hold_task", "contract_task":
				if !isNonEmptyString(row["task_title"]) {
					errs = append(errs, fmt.Sprintf("findings[%d].task_title required for task action", idx))
				}
				if !isNonEmptyString(row["task_description"]) {
					errs = append(errs, fmt.Sprintf("findings[%d].task_description required for task action", idx))
				}
			}
		}

		hasFinding := func(vendorSub, actionType string) bool {
			for _, raw := range findings {
				row, rowOK := raw.(map[string]any)
				if !rowOK {
					continue
				}
				vendor := strings.ToLower(stringField(row, "vendor"))
				if strings.Contains(vendor, strings.ToLower(vendorSub)) && stringField(row, "action_type") == actionType {
					return true
				}
			}
			return false
		}

		for _, exp := range expectations {
			if !hasFinding(exp.VendorContains, exp.ActionType) {
				errs = append(errs, fmt.Sprintf("missing %s for %s", exp.ActionType, exp.VendorContains))
			}
		}
		return errs
	}
}

func validateScheduleOutput(payload map[string]any) []string {
	var errs []string
	assignments, ok := payload["assignments"].(map[string]any)
	if !ok {
		errs = append(errs, "assignments must be object")
	} else {
		if len(assignments) == 0 {
			errs = append(errs, "assignments cannot be empty")
		}
		for crewID, jobs := range assignments {
			if strings.TrimSpace(crewID) == "" {
				errs = append(errs, "assignments key must be crew_id string")
			}
			if _, jobsOK := jobs.([]any); !jobsOK {
				errs = append(errs, fmt.Sprintf("assignments[%s] must be array", crewID))
			}
		}
	}
	for _, field := range []string{"unoptimized_drive_minutes", "optimized_drive_minutes", "improvement_percent"} {
		if !isNumber(payload[field]) {
			errs = append(errs, field+" must be numeric")
		}
	}
	if isNumber(payload["optimized_drive_minutes"]) && isNumber(payload["unoptimized_drive_minutes"]) {
		if asFloat(payload["optimized_drive_minutes"]) >= asFloat(payload["unoptimized_drive_minutes"]) {
			errs = append(errs, "optimized_drive_minutes must be lower than unoptimized_drive_minutes")
		}
	}
	if isNumber(payload["improvement_percent"]) && asFloat(payload["improvement_percent"]) < 20 {
		errs = append(errs, "improvement_percent must be at least 20")
	}
	return errs
}

// validateProjectAnalysis checks one project's deep-dive analysis output.
func validateProjectAnalysis(payload map[string]any) []string {
	var errs []string
	for _, field := range []string{
		"executive_summary", "root_cause_analysis", "recommendation",
		"proposal_vs_actual_insight", "labor_insight", "schedule_insight",
	} {
		if !isNonEmptyString(payload[field]) {
			errs = append(errs, field+" is required")
		}
	}
	if _, ok := payload["create_task"].(bool); !ok {
		errs = append(errs, "create_task must be boolean")
	}
	if !isNonEmptyString(payload["status_color"]) {
		errs = append(errs, "status_color is required (green/amber/red)")
	}
	if !isNonEmptyString(payload["finding"]) {
		errs = append(errs, "finding is required (on_track/at_risk/behind_schedule)")
	}
	if chain, ok := payload["reasoning_chain"].([]any); !ok || len(chain) < 3 {
		errs = append(errs, "reasoning_chain must be an array of at least 3 reasoning steps")
	}
	return errs
}

func validateMaintenanceIssues(payload map[string]any) []string {
	var errs []string
	issues, ok := payload["issues"].([]any)
	if !ok {
		return []string{"issues must be an array"}
	}
	for idx, raw := range issues {
		row, rowOK := raw.(map[string]any)
		if !rowOK {
			errs = append(errs, fmt.Sprintf("issues[%d] must be object", idx))
			continue
		}
		for _, field := range []string{"unit", "issue", "action", "severity"} {
			if !isNonEmptyString(row[field]) {
				errs = append(errs, fmt.Sprintf("issues[%d].%s is required", idx, field))
			}
		}
		if _, taskOK := row["create_task"].(bool); !taskOK {
			errs = append(errs, fmt.Sprintf("issues[%d].create_task must be boolean", idx))
		}
	}
	return errs
}

func validateTrainingIssues(payload map[string]any) []string {
	var errs []string
	issues, ok := payload["issues"].([]any)
	if !ok {
		return []string{"issues must be an array"}
	}
	for idx, raw := range issues {
		row, rowOK := raw.(map[string]any)
		if !rowOK {
			errs = append(errs, fmt.Sprintf("issues[%d] must be object", idx))
			continue
		}
		for _, field := range []string{"name", "issue_type", "detail"} {
			if !isNonEmptyString(row[field]) {
				errs = append(errs, fmt.Sprintf("issues[%d].%s is required", idx, field))
			}
		}
		if _, taskOK := row["create_task"].(bool); !taskOK {
			errs = append(errs, fmt.Sprintf("issues[%d].create_task must be boolean", idx))
		}
	}
	return errs
}

func validateChecklistEntries(entries any, key string) []string {
	list, ok := entries.([]any)
	if !ok {
		return []string{fmt.Sprintf("checklist.%s must be an array", key)}
	}
	var errs []string
	for idx, raw := range list {
		item, itemOK := raw.(map[string]any)
		if !itemOK {
			errs = append(errs, fmt.Sprintf("checklist.%s[%d] must be object", key, idx))
			continue
		}
		name := item["name"]
		if name == nil {
			name = item["item"]
		}
		if !isNonEmptyString(name) {
			errs = append(errs, fmt.Sprintf("checklist.%s[%d] requires name/item", key, idx))
		}
		if !isNonEmptyString(item["status"]) {
			errs = append(errs, fmt.Sprintf("checklist.%s[%d] requires status", key, idx))
		}
	}
	return errs
}

func validateOnboardingPlan(payload map[string]any) []string {
	var errs []string
	hire, hireOK := payload["hire"].(map[string]any)
	if !hireOK {
		errs = append(errs, "hire must be object")
	} else {
		for _, field := range []string{"name", "role", "division", "start_date", "hiring_manager"} {
			if !isNonEmptyString(hire[field]) {
				errs = append(errs, "hire."+field+" is required")
			}
		}
	}
	checklist, checklistOK := payload["checklist"].(map[string]any)
	if !checklistOK {
		errs = append(errs, "checklist must be object")
	} else {
		errs = append(errs, validateChecklistEntries(checklist["documents"], "documents")...)
		errs = append(errs, validateChecklistEntries(checklist["training"], "training")...)
		errs = append(errs, validateChecklistEntries(checklist["equipment"], "equipment")...)
	}
	for _, field := range []string{"welcome_email_recipient", "welcome_email_subject", "welcome_email_body"} {
		if !isNonEmptyString(payload[field]) {
			errs = append(errs, field+" is required")
		}
	}
	return errs
}

// validateCostEstimate checks the assembled full estimate.
func validateCostEstimate(payload map[string]any) []string {
	var errs []string
	lineItems, ok := payload["line_items"].([]any)
	if !ok || len(lineItems) < 10 {
		errs = append(errs, "line_items must be array with at least 10 items")
	} else {
		for idx, raw := range lineItems {
			li, liOK := raw.(map[string]any)
			if !liOK {
				errs = append(errs, fmt.Sprintf("line_items[%d] must be object", idx))
				continue
			}
			for _, field := range []string{"item", "category"} {
				if !isNonEmptyString(li[field]) {
					errs = append(errs, fmt.Sprintf("line_items[%d].%s is required", idx, field))
				}
			}
			for _, field := range []string{"labor_cost", "material_cost", "equipment_cost", "subtotal"} {
				if !isNumber(li[field]) {
					errs = append(errs, fmt.Sprintf("line_items[%d].%s must be numeric", idx, field))
				}
			}
		}
	}
	if subtotals, subOK := payload["category_subtotals"].(map[string]any); !subOK || len(subtotals) < 3 {
		errs = append(errs, "category_subtotals must cover at least 3 categories")
	}
	if !isNumber(payload["direct_cost_total"]) || asFloat(payload["direct_cost_total"]) < 100000 {
		errs = append(errs, "direct_cost_total must be realistic for site work")
	}
	markups, markupsOK := payload["markups"].(map[string]any)
	if !markupsOK {
		errs = append(errs, "markups must be object")
	} else {
		for _, field := range []string{"overhead", "profit", "contingency"} {
			if !isNumber(markups[field]) {
				errs = append(errs, "markups."+field+" must be numeric")
			}
		}
	}
	if !isNumber(payload["grand_total"]) || asFloat(payload["grand_total"]) < 100000 {
		errs = append(errs, "grand_total must be realistic for site work")
	}
	if assumptions, ok := payload["assumptions"].([]any); !ok || len(assumptions) == 0 {
		errs = append(errs, "assumptions must be non-empty array")
	}
	if _, ok := payload["exclusions"].([]any); !ok {
		errs = append(errs, "exclusions must be array")
	}
	return errs
}

// validateCostCategory checks a single category pricing result.
func validateCostCategory(payload map[string]any) []string {
	var errs []string
	if !isNonEmptyString(payload["category"]) {
		errs = append(errs, "category is required")
	}
	lineItems, ok := payload["line_items"].([]any)
	if !ok || len(lineItems) == 0 {
		errs = append(errs, "line_items must be non-empty array")
	} else {
		for idx, raw := range lineItems {
			li, liOK := raw.(map[string]any)
			if !liOK {
				errs = append(errs, fmt.Sprintf("line_items[%d] must be object", idx))
				continue
			}
			if !isNonEmptyString(li["item"]) {
				errs = append(errs, fmt.Sprintf("line_items[%d].item is required", idx))
			}
			for _, field := range []string{"labor_cost", "material_cost", "equipment_cost", "subtotal"} {
				if !isNumber(li[field]) {
					errs = append(errs, fmt.Sprintf("line_items[%d].%s must be numeric", idx, field))
				}
			}
		}
	}
	if !isNumber(payload["category_subtotal"]) {
		errs = append(errs, "category_subtotal must be numeric")
	}
	return errs
}

func validateProposalNarrative(payload map[string]any) []string {
	var errs []string
	if !isNonEmptyString(payload["scope_narrative"]) {
		errs = append(errs, "scope_narrative is required")
	}
	if assumptions, ok := payload["assumptions"].([]any); !ok || len(assumptions) < 4 {
		errs = append(errs, "assumptions must have at least 4 items")
	}
	if exclusions, ok := payload["exclusions"].([]any); !ok || len(exclusions) < 3 {
		errs = append(errs, "exclusions must have at least 3 items")
	}
	if !isNonEmptyString(payload["schedule_statement"]) {
		errs = append(errs, "schedule_statement is required")
	}
	if !isNonEmptyString(payload["validity_statement"]) {
		errs = append(errs, "validity_statement is required")
	}
	return errs
}

func validateInquiryRoutes(payload map[string]any) []string {
	var errs []string
	routes, ok := payload["routes"].([]any)
	if !ok {
		return []string{"routes must be an array"}
	}
	for idx, raw := range routes {
		route, routeOK := raw.(map[string]any)
		if !routeOK {
			errs = append(errs, fmt.Sprintf("routes[%d] must be object", idx))
			continue
		}
		for _, field := range []string{"from", "subject", "route", "priority", "description"} {
			if !isNonEmptyString(route[field]) {
				errs = append(errs, fmt.Sprintf("routes[%d].%s is required", idx, field))
			}
		}
	}
	return errs
}
