package agent_test

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitedesk/foreman/internal/agent"
	"github.com/sitedesk/foreman/internal/domain"
	"github.com/sitedesk/foreman/internal/llm"
)

// scriptedChatter plays the model side of a PO-matching run. It decodes the
// acquirer's user payload and walks the happy path by picking the highest
// priority action from allowed_actions, so the run exercises the real
// acquirer, validators, and state machine end to end.
type scriptedChatter struct {
	mu    sync.Mutex
	calls int

	// choose, when set, gets first crack at each step decision.
	choose func(allowed map[string]bool, state map[string]any) (map[string]any, bool)
}

var poActionPriority = []string{
	"read_invoice",
	"search_purchase_orders",
	"select_po",
	"check_duplicate",
	"assign_coding",
	"mark_complete",
	"post_to_vista",
	"complete_invoice",
	"get_project_details",
	"send_notification",
	"flag_exception",
}

func (c *scriptedChatter) Chat(_ context.Context, messages []llm.Message, _ llm.ChatOptions) (*llm.Response, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()

	if len(messages) < 2 {
		return nil, fmt.Errorf("scriptedChatter: unexpected message count %d", len(messages))
	}

	var payload struct {
		Objective string         `json:"objective"`
		Context   map[string]any `json:"context"`
	}
	if err := json.Unmarshal([]byte(messages[1].Content), &payload); err != nil {
		return nil, fmt.Errorf("scriptedChatter: decode payload: %w", err)
	}

	// The skills-inspection request carries no context; step requests always
	// carry allowed_actions.
	allowedRaw, hasActions := payload.Context["allowed_actions"].([]any)
	if !hasActions {
		return reply(`{"training_rule_active": false}`), nil
	}
	allowed := make(map[string]bool, len(allowedRaw))
	for _, a := range allowedRaw {
		if s, ok := a.(string); ok {
			allowed[s] = true
		}
	}
	state, _ := payload.Context["state"].(map[string]any)

	if c.choose != nil {
		if decision, ok := c.choose(allowed, state); ok {
			data, err := json.Marshal(decision)
			if err != nil {
				return nil, err
			}
			return reply(string(data)), nil
		}
	}

	for _, action := range poActionPriority {
		if !allowed[action] {
			continue
		}
		decision := map[string]any{
			"action": action,
			"reason": "Next step per standard matching procedure.",
			"args":   buildArgs(action, state),
		}
		data, err := json.Marshal(decision)
		if err != nil {
			return nil, err
		}
		return reply(string(data)), nil
	}
	return nil, fmt.Errorf("scriptedChatter: no allowed action in %v", allowedRaw)
}

func buildArgs(action string, state map[string]any) map[string]any {
	switch action {
	case "select_po":
		matches, _ := state["po_matches"].([]any)
		if len(matches) > 0 {
			if first, ok := matches[0].(map[string]any); ok {
				return map[string]any{"po_number": first["po_number"]}
			}
		}
	case "assign_coding":
		if selected, ok := state["selected_po"].(map[string]any); ok {
			return map[string]any{"job_id": selected["job_id"], "gl_code": selected["gl_code"]}
		}
	case "flag_exception":
		return map[string]any{"reason_code": "no_po_match", "details": "No purchase order candidates found."}
	case "complete_invoice":
		status, _ := state["status"].(string)
		return map[string]any{
			"final_status": status,
			"confidence":   "high",
			"summary":      "Invoice matched to its purchase order and posted.",
		}
	}
	return map[string]any{}
}

func reply(text string) *llm.Response {
	return &llm.Response{Text: text, PromptTokens: 120, CompletionTokens: 40, TotalTokens: 160}
}

type fakeInvoiceRepo struct {
	mu       sync.Mutex
	pending  []*domain.Invoice
	matches  []*domain.POMatch
	statuses map[string]string
	codings  map[string][2]string
}

func (r *fakeInvoiceRepo) ListPending(context.Context, bool) ([]*domain.Invoice, error) {
	return r.pending, nil
}

func (r *fakeInvoiceRepo) SearchPOs(context.Context, string, string, *float64) ([]*domain.POMatch, error) {
	return r.matches, nil
}

func (r *fakeInvoiceRepo) CheckDuplicate(context.Context, string, string) ([]*domain.DuplicateRef, error) {
	return nil, nil
}

func (r *fakeInvoiceRepo) AssignCoding(_ context.Context, invoiceNumber, jobID, glCode string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.codings == nil {
		r.codings = make(map[string][2]string)
	}
	r.codings[invoiceNumber] = [2]string{jobID, glCode}
	return nil
}

func (r *fakeInvoiceRepo) SetStatus(_ context.Context, invoiceNumber, status, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.statuses == nil {
		r.statuses = make(map[string]string)
	}
	r.statuses[invoiceNumber] = status
	return nil
}

type fakeReviewRepo struct {
	mu    sync.Mutex
	items []*domain.ReviewItem
}

func (r *fakeReviewRepo) Insert(_ context.Context, item *domain.ReviewItem) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, item)
	return int64(len(r.items)), nil
}

func (r *fakeReviewRepo) ListByAgent(context.Context, string) ([]*domain.ReviewItem, error) {
	return nil, nil
}
func (r *fakeReviewRepo) OpenCounts(context.Context) (map[string]int, error) { return nil, nil }
func (r *fakeReviewRepo) Resolve(context.Context, int64, string) error       { return nil }
func (r *fakeReviewRepo) DeleteByAgent(context.Context, string) error        { return nil }
func (r *fakeReviewRepo) Clear(context.Context) error                        { return nil }

type fakeCommunicationRepo struct {
	mu   sync.Mutex
	sent []*domain.Communication
}

func (r *fakeCommunicationRepo) Insert(_ context.Context, c *domain.Communication) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, c)
	return nil
}

func (r *fakeCommunicationRepo) List(context.Context, int) ([]*domain.Communication, error) {
	return nil, nil
}

func (r *fakeCommunicationRepo) ListByAgent(context.Context, string) ([]*domain.Communication, error) {
	return nil, nil
}
func (r *fakeCommunicationRepo) DeleteByAgent(context.Context, string) error { return nil }
func (r *fakeCommunicationRepo) Clear(context.Context) error                 { return nil }

type fakeAgentStatusRepo struct {
	mu      sync.Mutex
	updates []domain.StatusUpdate
}

func (r *fakeAgentStatusRepo) Get(context.Context, string) (*domain.AgentStatus, error) {
	return &domain.AgentStatus{Status: "idle"}, nil
}

func (r *fakeAgentStatusRepo) List(context.Context) ([]*domain.AgentStatus, error) { return nil, nil }

func (r *fakeAgentStatusRepo) Update(_ context.Context, _ string, upd domain.StatusUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, upd)
	return nil
}

func (r *fakeAgentStatusRepo) Reset(context.Context) error { return nil }

func writeSkills(t *testing.T, agentID string) *agent.SkillsStore {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, agentID), 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, agentID, "skills.md"),
		[]byte("# Skills\nMatch invoices to purchase orders and flag exceptions.\n"), 0o644))
	return agent.NewSkillsStore(dir)
}

func TestRuntimeRunPOMatch(t *testing.T) {
	t.Parallel()

	skills := writeSkills(t, "po_match")
	chatter := &scriptedChatter{}
	registry := agent.NewRegistry()

	invoices := &fakeInvoiceRepo{
		pending: []*domain.Invoice{{
			InvoiceNumber: "INV-9001",
			Vendor:        "Martin Materials Inc",
			Amount:        12450,
			POReference:   "PO-2024-0892",
			FilePath:      "invoices/INV-9001.txt",
			Status:        "pending",
		}},
		matches: []*domain.POMatch{{
			PurchaseOrder: domain.PurchaseOrder{
				PONumber: "PO-2024-0892",
				Amount:   12450,
				JobID:    "MR-2024-015",
				GLCode:   "5100",
				Vendor:   "Martin Materials Inc",
			},
			Confidence: 0.99,
		}},
	}
	review := &fakeReviewRepo{}
	comms := &fakeCommunicationRepo{}
	status := &fakeAgentStatusRepo{}
	activity := &recordingActivityRepo{}

	rt := agent.NewRuntime(agent.RuntimeConfig{
		Registry: registry,
		Acquirer: llm.NewAcquirer(chatter, skills),
		Skills:   skills,
		Stores: agent.Stores{
			Invoices:       invoices,
			Review:         review,
			Communications: comms,
			AgentStatus:    status,
			Activity:       activity,
		},
	})

	s := registry.CreateSession("po_match")
	result, err := rt.Run(context.Background(), "po_match", s.ID)
	require.NoError(t, err)

	processed, ok := result.Output["processed"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, processed, 1)
	row := processed[0]
	assert.Equal(t, "INV-9001", row["invoice_number"])
	assert.Equal(t, "matched", row["status"])
	assert.Equal(t, "PO-2024-0892", row["po_number"])
	assert.Equal(t, "exact_po", row["match_method"])
	assert.Equal(t, "high", row["confidence"])

	progress, ok := result.Output["queue_progress"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 1, progress["matched"])
	assert.Equal(t, 0, progress["exceptions"])

	// Store side effects of the matched path.
	assert.Equal(t, "matched", invoices.statuses["INV-9001"])
	assert.Equal(t, [2]string{"MR-2024-015", "5100"}, invoices.codings["INV-9001"])
	assert.Empty(t, review.items)

	require.Len(t, comms.sent, 1)
	assert.Equal(t, "apmanager@rpmx.com", comms.sent[0].Recipient)
	assert.Contains(t, comms.sent[0].Body, "1 matched")

	// Session ends with exactly one terminal complete event and done set.
	session, ok := registry.GetSession(s.ID)
	require.True(t, ok)
	assert.True(t, session.Done)
	terminal := 0
	for _, event := range session.Events {
		if event.Type == agent.EventComplete || event.Type == agent.EventError {
			terminal++
		}
	}
	assert.Equal(t, 1, terminal)
	assert.Equal(t, agent.EventComplete, session.Events[len(session.Events)-1].Type)
	assert.Equal(t, result.Output, session.LatestOutput)

	// Run accounting: real token usage flowed through from the model calls.
	assert.Greater(t, result.TotalCost, 0.0)
	assert.Greater(t, result.InputTokens, 0)

	// Status went working then idle with the run recorded.
	require.NotEmpty(t, status.updates)
	last := status.updates[len(status.updates)-1]
	assert.Equal(t, "idle", last.Status)
	assert.True(t, last.SetLastRun)
	assert.Equal(t, 1, last.AdditionalTasks)

	// Activity rows were written for persisted events.
	assert.NotEmpty(t, activity.all())
}

func TestRuntimeRunPOMatchExceptionPath(t *testing.T) {
	t.Parallel()

	skills := writeSkills(t, "po_match")
	registry := agent.NewRegistry()

	// No PO candidates at all forces the exception path.
	invoices := &fakeInvoiceRepo{
		pending: []*domain.Invoice{{
			InvoiceNumber: "INV-9003",
			Vendor:        "Apex Grading LLC",
			Amount:        4100,
			FilePath:      "invoices/INV-9003.txt",
			Status:        "pending",
		}},
	}
	review := &fakeReviewRepo{}
	comms := &fakeCommunicationRepo{}
	status := &fakeAgentStatusRepo{}

	rt := agent.NewRuntime(agent.RuntimeConfig{
		Registry: registry,
		Acquirer: llm.NewAcquirer(&scriptedChatter{}, skills),
		Skills:   skills,
		Stores: agent.Stores{
			Invoices:       invoices,
			Review:         review,
			Communications: comms,
			AgentStatus:    status,
			Activity:       &recordingActivityRepo{},
		},
	})

	s := registry.CreateSession("po_match")
	result, err := rt.Run(context.Background(), "po_match", s.ID)
	require.NoError(t, err)

	processed, ok := result.Output["processed"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, processed, 1)
	assert.Equal(t, "exception", processed[0]["status"])
	assert.Equal(t, "no_po_match", processed[0]["reason"])

	assert.Equal(t, "exception", invoices.statuses["INV-9003"])
	require.Len(t, review.items, 1)
	assert.Equal(t, "po_match", review.items[0].AgentID)
	assert.Equal(t, "INV-9003", review.items[0].ItemRef)
	assert.Equal(t, "no_po_match", review.items[0].ReasonCode)
	assert.Equal(t, "open", review.items[0].Status)
}

func TestRuntimeRunPOMatchVarianceException(t *testing.T) {
	t.Parallel()

	skills := writeSkills(t, "po_match")
	registry := agent.NewRegistry()

	// Invoice comes in $1,250 over the selected PO. The model flags a price
	// variance once it can see the variance in the state summary.
	invoices := &fakeInvoiceRepo{
		pending: []*domain.Invoice{{
			InvoiceNumber: "INV-9002",
			Vendor:        "Southeast Grading Co",
			Amount:        47250,
			POReference:   "PO-2024-0756",
			FilePath:      "invoices/INV-9002.txt",
			Status:        "pending",
		}},
		matches: []*domain.POMatch{{
			PurchaseOrder: domain.PurchaseOrder{
				PONumber: "PO-2024-0756",
				Amount:   46000,
				JobID:    "CL-2024-008",
				GLCode:   "5300",
				Vendor:   "Southeast Grading Co",
			},
			Confidence: 0.97,
		}},
	}

	chatter := &scriptedChatter{
		choose: func(allowed map[string]bool, state map[string]any) (map[string]any, bool) {
			if !allowed["flag_exception"] {
				return nil, false
			}
			variance, _ := state["variance"].(map[string]any)
			amount, _ := variance["amount"].(float64)
			if amount <= 1000 {
				return nil, false
			}
			return map[string]any{
				"action": "flag_exception",
				"reason": "Invoice exceeds the purchase order by more than the variance threshold.",
				"args": map[string]any{
					"reason_code": "price_variance",
					"details":     "Invoice total is $1,250.00 over PO-2024-0756.",
				},
			}, true
		},
	}

	review := &fakeReviewRepo{}
	status := &fakeAgentStatusRepo{}

	rt := agent.NewRuntime(agent.RuntimeConfig{
		Registry: registry,
		Acquirer: llm.NewAcquirer(chatter, skills),
		Skills:   skills,
		Stores: agent.Stores{
			Invoices:       invoices,
			Review:         review,
			Communications: &fakeCommunicationRepo{},
			AgentStatus:    status,
			Activity:       &recordingActivityRepo{},
		},
	})

	s := registry.CreateSession("po_match")
	result, err := rt.Run(context.Background(), "po_match", s.ID)
	require.NoError(t, err)

	processed, ok := result.Output["processed"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, processed, 1)
	row := processed[0]
	assert.Equal(t, "exception", row["status"])
	assert.Equal(t, "price_variance", row["reason"])
	assert.Equal(t, 1250.0, row["variance_amount"])
	assert.Equal(t, 2.7, row["variance_pct"])

	assert.Equal(t, "exception", invoices.statuses["INV-9002"])
	require.Len(t, review.items, 1)
	assert.Equal(t, "price_variance", review.items[0].ReasonCode)
	assert.Contains(t, review.items[0].Context, "variance_amount")
}

func TestRuntimeRunUnknownAgent(t *testing.T) {
	t.Parallel()

	registry := agent.NewRegistry()
	rt := agent.NewRuntime(agent.RuntimeConfig{Registry: registry})

	s := registry.CreateSession("bogus")
	_, err := rt.Run(context.Background(), "bogus", s.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown agent id")
}
