package agent

import (
	"math"

	"github.com/sitedesk/foreman/internal/domain"
)

// PO matching actions. The model picks one per step; the gate below decides
// which are legal given the current invoice state.
const (
	actionReadInvoice       = "read_invoice"
	actionSearchPOs         = "search_purchase_orders"
	actionSelectPO          = "select_po"
	actionCheckDuplicate    = "check_duplicate"
	actionAssignCoding      = "assign_coding"
	actionMarkComplete      = "mark_complete"
	actionPostToVista       = "post_to_vista"
	actionFlagException     = "flag_exception"
	actionGetProjectDetails = "get_project_details"
	actionSendNotification  = "send_notification"
	actionCompleteInvoice   = "complete_invoice"
)

type poStep struct {
	Step   int    `json:"step"`
	Action string `json:"action"`
	Reason string `json:"reason"`
}

// poState tracks one invoice through the matching state machine.
type poState struct {
	Invoice             domain.Invoice
	InvoiceData         map[string]any
	POMatches           []domain.POMatch
	SelectedPO          *domain.POMatch
	Duplicates          []domain.DuplicateRef
	Project             *domain.Project
	SearchedPO          bool
	CheckedDuplicate    bool
	Coded               bool
	MarkedComplete      bool
	PostedToVista       bool
	Status              string
	ExceptionReasonCode string
	Details             string
	NotifiedPM          bool
	StepHistory         []poStep
}

func newPOState(inv domain.Invoice) *poState {
	return &poState{Invoice: inv, Status: "pending"}
}

func orderedUnique(actions []string) []string {
	seen := make(map[string]bool, len(actions))
	out := make([]string, 0, len(actions))
	for _, a := range actions {
		if !seen[a] {
			seen[a] = true
			out = append(out, a)
		}
	}
	return out
}

// poAllowedActions returns the legal next actions for the current state.
// The model never gets to pick anything outside this set.
func poAllowedActions(state *poState, trainingRuleActive bool) []string {
	if state.Status == "matched" {
		var actions []string
		if state.MarkedComplete && !state.PostedToVista {
			actions = append(actions, actionPostToVista)
		}
		if state.PostedToVista {
			actions = append(actions, actionCompleteInvoice)
		}
		return orderedUnique(actions)
	}

	if state.Status == "exception" {
		var actions []string
		if trainingRuleActive &&
			state.ExceptionReasonCode == "price_variance" &&
			state.SelectedPO != nil &&
			!state.NotifiedPM {
			if state.Project == nil {
				actions = append(actions, actionGetProjectDetails)
			} else {
				actions = append(actions, actionSendNotification)
			}
		}
		actions = append(actions, actionCompleteInvoice)
		return orderedUnique(actions)
	}

	// pending
	if state.InvoiceData == nil {
		return []string{actionReadInvoice}
	}
	if !state.SearchedPO {
		return []string{actionSearchPOs}
	}

	var actions []string
	if len(state.POMatches) > 0 && state.SelectedPO == nil {
		actions = append(actions, actionSelectPO)
	}
	if state.SelectedPO != nil && !state.CheckedDuplicate {
		actions = append(actions, actionCheckDuplicate)
	}
	if state.CheckedDuplicate && len(state.Duplicates) > 0 {
		actions = append(actions, actionFlagException)
	}
	if len(state.POMatches) == 0 {
		actions = append(actions, actionFlagException)
	}
	if state.SelectedPO != nil && state.CheckedDuplicate && len(state.Duplicates) == 0 && !state.Coded {
		actions = append(actions, actionAssignCoding, actionFlagException)
	}
	if state.Coded && !state.MarkedComplete {
		actions = append(actions, actionMarkComplete)
	}
	if state.MarkedComplete && !state.PostedToVista {
		actions = append(actions, actionPostToVista)
	}
	return orderedUnique(actions)
}

// poVariance returns invoice-vs-PO variance in dollars and percent.
// The bool is false when no PO has been selected.
func poVariance(state *poState) (amount float64, percent *float64, ok bool) {
	if state.SelectedPO == nil {
		return 0, nil, false
	}
	amount = round2(state.Invoice.Amount - state.SelectedPO.Amount)
	if state.SelectedPO.Amount != 0 {
		p := round1(amount / state.SelectedPO.Amount * 100)
		percent = &p
	}
	return amount, percent, true
}

// summarizePOState builds the model-facing view of the invoice state.
func summarizePOState(state *poState) map[string]any {
	matches := state.POMatches
	if len(matches) > 5 {
		matches = matches[:5]
	}
	recent := state.StepHistory
	if len(recent) > 6 {
		recent = recent[len(recent)-6:]
	}

	var variance map[string]any
	if amount, percent, ok := poVariance(state); ok {
		variance = map[string]any{"amount": amount, "percent": percent}
	}

	return map[string]any{
		"invoice":      state.Invoice,
		"invoice_data": state.InvoiceData,
		"po_matches":   matches,
		"selected_po":  state.SelectedPO,
		"duplicates":   state.Duplicates,
		"project":      state.Project,
		"status":       state.Status,
		"flags": map[string]bool{
			"searched_po":       state.SearchedPO,
			"checked_duplicate": state.CheckedDuplicate,
			"coded":             state.Coded,
			"marked_complete":   state.MarkedComplete,
			"posted_to_vista":   state.PostedToVista,
			"notified_pm":       state.NotifiedPM,
		},
		"exception_reason_code": state.ExceptionReasonCode,
		"variance":              variance,
		"recent_actions":        recent,
	}
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round1(v float64) float64 { return math.Round(v*10) / 10 }

func normalizeConfidence(value, fallback string) string {
	switch value {
	case "low", "medium", "high":
		return value
	}
	return fallback
}
