package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sitedesk/foreman/internal/domain"
	"github.com/sitedesk/foreman/internal/fixtures"
	"github.com/sitedesk/foreman/internal/llm"
)

const poMaxSteps = 16

var (
	invoiceNumberPattern = regexp.MustCompile(`Invoice #:?\s*(INV-[A-Z0-9-]+)`)
	invoiceDatePattern   = regexp.MustCompile(`Date:?\s*(\d{4}-\d{2}-\d{2})`)
	invoicePORefPattern  = regexp.MustCompile(`PO Ref:?\s*(PO-\d{4}-\d{4})`)
	invoiceTotalPattern  = regexp.MustCompile(`Total:?\s*\$([\d,]+\.\d{2})`)
)

// readInvoiceDocument extracts key fields from a stored invoice document.
func readInvoiceDocument(filePath string) (map[string]any, error) {
	text, err := fixtures.Document(filePath)
	if err != nil {
		return nil, fmt.Errorf("readInvoiceDocument: %w", err)
	}

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}

	vendor := "Unknown Vendor"
	if len(lines) > 0 {
		vendor = lines[0]
	}
	excerpt := lines
	if len(excerpt) > 12 {
		excerpt = excerpt[:12]
	}

	data := map[string]any{
		"vendor":       vendor,
		"text_excerpt": strings.Join(excerpt, " "),
	}
	if m := invoiceNumberPattern.FindStringSubmatch(text); m != nil {
		data["invoice_number"] = m[1]
	}
	if m := invoiceDatePattern.FindStringSubmatch(text); m != nil {
		data["invoice_date"] = m[1]
	}
	if m := invoicePORefPattern.FindStringSubmatch(text); m != nil {
		data["po_reference"] = m[1]
	}
	if m := invoiceTotalPattern.FindStringSubmatch(text); m != nil {
		total, parseErr := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
		if parseErr == nil {
			data["total"] = total
		}
	}
	return data, nil
}

type poDecision struct {
	Action string
	Reason string
	Args   map[string]any
	Usage  *llm.StructuredResult
}

// poChooseNextAction asks the model for the single next step, gated by the
// allowed-action set for the current state.
func (rt *Runtime) poChooseNextAction(ctx context.Context, state *poState, trainingRuleActive bool, stepNumber int) (*poDecision, error) {
	allowed := poAllowedActions(state, trainingRuleActive)
	if len(allowed) == 0 {
		return nil, fmt.Errorf("poChooseNextAction: no allowed actions for %s", state.Invoice.InvoiceNumber)
	}

	availablePONumbers := make(map[string]bool, len(state.POMatches))
	for _, po := range state.POMatches {
		if po.PONumber != "" {
			availablePONumbers[po.PONumber] = true
		}
	}

	result, err := rt.acquirer.Request(ctx, llm.Request{
		AgentID: "po_match",
		Objective: "Choose the single best next PO processing action for this invoice. " +
			"Return JSON with keys: action, reason, args. " +
			"Only choose from allowed_actions. " +
			"Use explicit tool-like progression and avoid skipping steps. " +
			"If exception path is needed, use flag_exception then complete_invoice. " +
			"For matched path, use assign_coding -> mark_complete -> post_to_vista -> complete_invoice. " +
			"When training_rule_active is true and variance exception exceeds $1,000, " +
			"include PM notification before complete_invoice.",
		Context: map[string]any{
			"step_number":          stepNumber,
			"training_rule_active": trainingRuleActive,
			"allowed_actions":      allowed,
			"state":                summarizePOState(state),
		},
		MaxTokens:   700,
		Temperature: 0.1,
		Validator:   makePOStepValidator(allowed, availablePONumbers),
	})
	if err != nil {
		return nil, err
	}

	action, _ := result.Data["action"].(string)
	reason := strings.TrimSpace(stringField(result.Data, "reason"))
	if reason == "" {
		reason = "Model-selected next step."
	}
	args, _ := result.Data["args"].(map[string]any)
	if args == nil {
		args = map[string]any{}
	}
	return &poDecision{Action: strings.TrimSpace(action), Reason: reason, Args: args, Usage: result}, nil
}

func (rt *Runtime) runPOMatch(ctx context.Context, em *Emitter) (map[string]any, error) {
	const agentID = "po_match"

	trainingRule, err := rt.trainingRuleActive(ctx, agentID)
	if err != nil {
		return nil, err
	}

	if err := em.StatusChange(ctx, "working", "PO Match Agent started invoice queue processing"); err != nil {
		return nil, err
	}
	if err := rt.stores.AgentStatus.Update(ctx, agentID, domain.StatusUpdate{
		Status:          "working",
		CurrentActivity: "Processing invoice queue",
	}); err != nil {
		return nil, err
	}

	invoices, err := rt.stores.Invoices.ListPending(ctx, trainingRule)
	if err != nil {
		return nil, err
	}

	var processed []map[string]any
	for index, invoice := range invoices {
		if err := em.Reasoning(ctx, fmt.Sprintf("Processing %s (%d of %d) from %s.",
			invoice.InvoiceNumber, index+1, len(invoices), invoice.Vendor)); err != nil {
			return nil, err
		}

		row, invErr := rt.processInvoice(ctx, em, *invoice, trainingRule)
		if invErr != nil {
			return nil, invErr
		}
		processed = append(processed, row)
	}

	matched := 0
	exceptions := 0
	for _, row := range processed {
		switch row["status"] {
		case "matched":
			matched++
		case "exception":
			exceptions++
		}
	}

	summarySubject := "PO Match Daily Summary"
	summaryBody := fmt.Sprintf("Processed %d invoice(s): %d matched, %d exception(s).",
		len(processed), matched, exceptions)
	if err := rt.stores.Communications.Insert(ctx, &domain.Communication{
		AgentID:   agentID,
		Recipient: "apmanager@rpmx.com",
		Subject:   summarySubject,
		Body:      summaryBody,
		Channel:   "email",
	}); err != nil {
		return nil, err
	}
	if err := em.Communication(ctx, "apmanager@rpmx.com", summarySubject, summaryBody); err != nil {
		return nil, err
	}

	return map[string]any{
		"processed": processed,
		"queue_progress": map[string]any{
			"total":      len(processed),
			"matched":    matched,
			"exceptions": exceptions,
		},
		"training_rule_active": trainingRule,
	}, nil
}

// processInvoice drives one invoice through the matching state machine,
// bounded by the step ceiling.
func (rt *Runtime) processInvoice(ctx context.Context, em *Emitter, invoice domain.Invoice, trainingRule bool) (map[string]any, error) {
	const agentID = "po_match"
	state := newPOState(invoice)

	for step := 1; step <= poMaxSteps; step++ {
		decision, err := rt.poChooseNextAction(ctx, state, trainingRule, step)
		if err != nil {
			return nil, err
		}
		if err := em.EmitLLM(ctx, EventToolResult,
			map[string]any{"tool": "llm_analysis", "result": map[string]any{}, "summary": "LLM analysis complete"},
			"LLM analysis", decision.Usage.PromptTokens, decision.Usage.CompletionTokens); err != nil {
			return nil, err
		}

		state.StepHistory = append(state.StepHistory, poStep{Step: step, Action: decision.Action, Reason: decision.Reason})
		if err := em.Reasoning(ctx, fmt.Sprintf("Step %d: %s", step, decision.Reason)); err != nil {
			return nil, err
		}
		if err := em.ToolCall(ctx, decision.Action, decision.Args); err != nil {
			return nil, err
		}

		done, err := rt.applyPOAction(ctx, em, state, decision)
		if err != nil {
			return nil, err
		}
		if done {
			row := buildPOResultRow(state, decision)
			rt.pause(ctx, 120*time.Millisecond)
			return row, nil
		}
	}

	return nil, fmt.Errorf("processInvoice: step limit exceeded for %s", invoice.InvoiceNumber)
}

// applyPOAction executes one model-chosen action against the state and the
// stores. Returns true when the invoice is fully completed.
func (rt *Runtime) applyPOAction(ctx context.Context, em *Emitter, state *poState, decision *poDecision) (bool, error) {
	const agentID = "po_match"
	invoice := &state.Invoice
	args := decision.Args

	switch decision.Action {
	case actionReadInvoice:
		filePath := stringField(args, "file_path")
		if filePath == "" {
			filePath = invoice.FilePath
		}
		data, err := readInvoiceDocument(filePath)
		if err != nil {
			return false, err
		}
		state.InvoiceData = data
		return false, em.ToolResult(ctx, actionReadInvoice, data,
			fmt.Sprintf("Read invoice document %s and extracted key fields.", invoice.InvoiceNumber))

	case actionSearchPOs:
		poNumber := stringField(args, "po_number")
		if poNumber == "" {
			poNumber = stringField(state.InvoiceData, "po_reference")
		}
		if poNumber == "" {
			poNumber = invoice.POReference
		}
		vendor := stringField(args, "vendor")
		if vendor == "" {
			vendor = stringField(state.InvoiceData, "vendor")
		}
		if vendor == "" {
			vendor = invoice.Vendor
		}
		amount := invoice.Amount
		if v, ok := args["amount"]; ok && isNumber(v) {
			amount = asFloat(v)
		}

		matches, err := rt.stores.Invoices.SearchPOs(ctx, poNumber, vendor, &amount)
		if err != nil {
			return false, err
		}
		state.POMatches = state.POMatches[:0]
		for _, m := range matches {
			state.POMatches = append(state.POMatches, *m)
		}
		state.SearchedPO = true

		preview := state.POMatches
		if len(preview) > 5 {
			preview = preview[:5]
		}
		return false, em.ToolResult(ctx, actionSearchPOs,
			map[string]any{"matches": preview},
			fmt.Sprintf("Found %d purchase-order candidate(s).", len(state.POMatches)))

	case actionSelectPO:
		poNumber := stringField(args, "po_number")
		var selected *domain.POMatch
		for i := range state.POMatches {
			if state.POMatches[i].PONumber == poNumber {
				selected = &state.POMatches[i]
				break
			}
		}
		if selected == nil {
			return false, fmt.Errorf("applyPOAction: select_po could not find %s", poNumber)
		}
		state.SelectedPO = selected
		return false, em.ToolResult(ctx, actionSelectPO,
			map[string]any{"selected_po": selected},
			fmt.Sprintf("Selected PO %s for invoice %s.", selected.PONumber, invoice.InvoiceNumber))

	case actionCheckDuplicate:
		poNumber := stringField(args, "po_number")
		if poNumber == "" && state.SelectedPO != nil {
			poNumber = state.SelectedPO.PONumber
		}
		if poNumber == "" {
			return false, fmt.Errorf("applyPOAction: check_duplicate requires selected PO")
		}
		duplicates, err := rt.stores.Invoices.CheckDuplicate(ctx, poNumber, invoice.InvoiceNumber)
		if err != nil {
			return false, err
		}
		state.Duplicates = state.Duplicates[:0]
		for _, d := range duplicates {
			state.Duplicates = append(state.Duplicates, *d)
		}
		state.CheckedDuplicate = true
		return false, em.ToolResult(ctx, actionCheckDuplicate,
			map[string]any{"duplicates": state.Duplicates},
			fmt.Sprintf("Duplicate check returned %d prior matched invoice(s).", len(state.Duplicates)))

	case actionAssignCoding:
		jobID := stringField(args, "job_id")
		glCode := stringField(args, "gl_code")
		if err := rt.stores.Invoices.AssignCoding(ctx, invoice.InvoiceNumber, jobID, glCode); err != nil {
			return false, err
		}
		if state.SelectedPO != nil {
			state.SelectedPO.JobID = jobID
			state.SelectedPO.GLCode = glCode
		}
		state.Coded = true
		return false, em.ToolResult(ctx, actionAssignCoding,
			map[string]any{"invoice_id": invoice.InvoiceNumber, "job_id": jobID, "gl_code": glCode},
			fmt.Sprintf("Assigned coding %s to %s.", glCode, invoice.InvoiceNumber))

	case actionMarkComplete:
		if err := rt.stores.Invoices.SetStatus(ctx, invoice.InvoiceNumber, "matched", decision.Reason); err != nil {
			return false, err
		}
		state.Status = "matched"
		state.MarkedComplete = true
		return false, em.ToolResult(ctx, actionMarkComplete,
			map[string]any{"invoice_id": invoice.InvoiceNumber, "status": "matched"},
			fmt.Sprintf("Marked %s as matched.", invoice.InvoiceNumber))

	case actionPostToVista:
		rt.pause(ctx, 350*time.Millisecond)
		state.PostedToVista = true
		return false, em.ToolResult(ctx, actionPostToVista,
			map[string]any{"invoice_id": invoice.InvoiceNumber, "confirmation": "Posted to Vista (stubbed)"},
			fmt.Sprintf("Posted %s to Vista.", invoice.InvoiceNumber))

	case actionFlagException:
		reasonCode := strings.ToLower(stringField(args, "reason_code"))
		details := stringField(args, "details")

		reviewContext := buildReviewContext(state)
		reviewID, err := rt.stores.Review.Insert(ctx, &domain.ReviewItem{
			AgentID:    agentID,
			ItemRef:    invoice.InvoiceNumber,
			ReasonCode: reasonCode,
			Details:    details,
			Context:    reviewContext,
			Status:     "open",
		})
		if err != nil {
			return false, err
		}
		if err := rt.stores.Invoices.SetStatus(ctx, invoice.InvoiceNumber, "exception", details); err != nil {
			return false, err
		}
		state.Status = "exception"
		state.ExceptionReasonCode = reasonCode
		state.Details = details
		rt.escalate(ctx, fmt.Sprintf("Invoice %s flagged for review (%s): %s",
			invoice.InvoiceNumber, reasonCode, details))
		return false, em.ToolResult(ctx, actionFlagException,
			map[string]any{"review_id": reviewID, "reason": reasonCode, "details": details},
			fmt.Sprintf("Flagged %s for review (%s).", invoice.InvoiceNumber, reasonCode))

	case actionGetProjectDetails:
		projectID := stringField(args, "project_id")
		if projectID == "" && state.SelectedPO != nil {
			projectID = state.SelectedPO.JobID
		}
		if projectID == "" {
			return false, fmt.Errorf("applyPOAction: get_project_details requires project_id")
		}
		project, err := rt.stores.Projects.Get(ctx, projectID)
		if err != nil {
			return false, err
		}
		state.Project = project
		return false, em.ToolResult(ctx, actionGetProjectDetails,
			map[string]any{"project": project},
			fmt.Sprintf("Loaded project details for %s.", projectID))

	case actionSendNotification:
		recipient := stringField(args, "recipient")
		subject := stringField(args, "subject")
		body := stringField(args, "body")
		if err := rt.stores.Communications.Insert(ctx, &domain.Communication{
			AgentID:   agentID,
			Recipient: recipient,
			Subject:   subject,
			Body:      body,
			Channel:   "email",
		}); err != nil {
			return false, err
		}
		state.NotifiedPM = true
		if err := em.ToolResult(ctx, actionSendNotification,
			map[string]any{"recipient": recipient, "subject": subject},
			fmt.Sprintf("Sent notification to %s.", recipient)); err != nil {
			return false, err
		}
		return false, em.Communication(ctx, recipient, subject, body)

	case actionCompleteInvoice:
		finalStatus := strings.ToLower(stringField(args, "final_status"))
		if finalStatus != state.Status {
			return false, fmt.Errorf("applyPOAction: complete_invoice status mismatch for %s (final_status=%s, state=%s)",
				invoice.InvoiceNumber, finalStatus, state.Status)
		}
		if finalStatus == "matched" && !state.PostedToVista {
			return false, fmt.Errorf("applyPOAction: matched invoice %s not posted to Vista", invoice.InvoiceNumber)
		}
		summary := stringField(args, "summary")
		if err := em.ToolResult(ctx, actionCompleteInvoice,
			map[string]any{"invoice_id": invoice.InvoiceNumber, "status": finalStatus, "summary": summary},
			fmt.Sprintf("Completed processing for %s as %s.", invoice.InvoiceNumber, finalStatus)); err != nil {
			return false, err
		}
		return true, nil
	}

	return false, fmt.Errorf("applyPOAction: unsupported action %q", decision.Action)
}

// buildReviewContext snapshots the invoice state for the human reviewer.
func buildReviewContext(state *poState) string {
	matches := state.POMatches
	if len(matches) > 5 {
		matches = matches[:5]
	}
	snapshot := map[string]any{
		"invoice":      state.Invoice,
		"invoice_data": state.InvoiceData,
		"po_matches":   matches,
		"selected_po":  state.SelectedPO,
		"duplicates":   state.Duplicates,
		"project":      state.Project,
		"step_history": state.StepHistory,
	}
	if amount, percent, ok := poVariance(state); ok {
		snapshot["variance_amount"] = amount
		snapshot["variance_pct"] = percent
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func buildPOResultRow(state *poState, decision *poDecision) map[string]any {
	confidence := normalizeConfidence(strings.ToLower(stringField(decision.Args, "confidence")), "medium")
	summary := stringField(decision.Args, "summary")

	if state.Status == "matched" {
		row := map[string]any{
			"invoice_number": state.Invoice.InvoiceNumber,
			"status":         "matched",
			"confidence":     confidence,
			"reason":         summary,
		}
		if state.SelectedPO != nil {
			row["po_number"] = state.SelectedPO.PONumber
			row["gl_code"] = state.SelectedPO.GLCode
		}
		if state.Invoice.POReference != "" {
			row["match_method"] = "exact_po"
		} else {
			row["match_method"] = "fuzzy_vendor_amount"
		}
		return row
	}

	reason := state.ExceptionReasonCode
	if reason == "" {
		reason = "manual_review"
	}
	details := state.Details
	if details == "" {
		details = summary
	}
	row := map[string]any{
		"invoice_number": state.Invoice.InvoiceNumber,
		"status":         "exception",
		"reason":         reason,
		"confidence":     confidence,
		"details":        details,
	}
	if amount, percent, ok := poVariance(state); ok {
		row["variance_amount"] = amount
		if percent != nil {
			row["variance_pct"] = *percent
		}
	}
	return row
}
