package agent_test

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitedesk/foreman/internal/agent"
	"github.com/sitedesk/foreman/internal/domain"
	"github.com/sitedesk/foreman/internal/llm"
)

// arScriptedChatter decides the follow-up action for each account the way a
// collections analyst would: purely from the aging bucket and retainage flag.
type arScriptedChatter struct{}

func (arScriptedChatter) Chat(_ context.Context, messages []llm.Message, _ llm.ChatOptions) (*llm.Response, error) {
	if len(messages) < 2 {
		return nil, fmt.Errorf("arScriptedChatter: unexpected message count %d", len(messages))
	}

	var payload struct {
		Context map[string]any `json:"context"`
	}
	if err := json.Unmarshal([]byte(messages[1].Content), &payload); err != nil {
		return nil, fmt.Errorf("arScriptedChatter: decode payload: %w", err)
	}
	account, ok := payload.Context["account"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("arScriptedChatter: missing account context")
	}

	customer, _ := account["customer_name"].(string)
	days, _ := account["days_out"].(float64)
	retainage, _ := account["is_retainage"].(bool)

	decision := map[string]any{
		"reason":    fmt.Sprintf("%s is %d days outstanding.", customer, int(days)),
		"recipient": "billing@" + strings.ReplaceAll(strings.ToLower(customer), " ", "") + ".com",
	}
	switch {
	case retainage:
		decision["action"] = "skip_retainage"
	case days <= 29:
		decision["action"] = "no_action_within_terms"
	case days <= 59:
		decision["action"] = "polite_reminder"
		decision["email_subject"] = "Friendly reminder: open invoice"
		decision["email_body"] = "Just a friendly note that your invoice is past due."
	case days <= 89:
		decision["action"] = "firm_email_plus_internal_task"
		decision["email_subject"] = "Past due: payment required"
		decision["email_body"] = "Your account is seriously past due. Please remit payment."
	case days <= 104:
		decision["action"] = "escalated_to_collections"
		decision["email_subject"] = "Final notice before collections"
		decision["email_body"] = "Your balance is being referred to our collections team."
	default:
		decision["action"] = "attorney_escalation_105_days"
		decision["email_subject"] = "Notice of attorney referral"
		decision["email_body"] = "This matter has been referred to our attorney."
	}

	data, err := json.Marshal(decision)
	if err != nil {
		return nil, err
	}
	return reply(string(data)), nil
}

type fakeARRepo struct {
	accounts []*domain.ARAccount
}

func (r *fakeARRepo) ListAging(context.Context) ([]*domain.ARAccount, error) {
	return r.accounts, nil
}

type fakeCollectionsRepo struct {
	mu      sync.Mutex
	entries []*domain.CollectionsEntry
}

func (r *fakeCollectionsRepo) Insert(_ context.Context, entry *domain.CollectionsEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}

func (r *fakeCollectionsRepo) List(context.Context) ([]*domain.CollectionsEntry, error) {
	return nil, nil
}
func (r *fakeCollectionsRepo) Clear(context.Context) error { return nil }

type fakeTaskRepo struct {
	mu    sync.Mutex
	tasks []*domain.InternalTask
}

func (r *fakeTaskRepo) Insert(_ context.Context, task *domain.InternalTask) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = append(r.tasks, task)
	return nil
}

func (r *fakeTaskRepo) ListByAgent(context.Context, string) ([]*domain.InternalTask, error) {
	return nil, nil
}
func (r *fakeTaskRepo) Clear(context.Context) error { return nil }

type recordingEscalator struct {
	mu    sync.Mutex
	notes []string
}

func (e *recordingEscalator) Escalate(_ context.Context, text string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.notes = append(e.notes, text)
}

func TestRuntimeRunARFollowup(t *testing.T) {
	t.Parallel()

	skills := writeSkills(t, "ar_followup")
	registry := agent.NewRegistry()

	ar := &fakeARRepo{accounts: []*domain.ARAccount{
		{CustomerName: "Summit Builders", DaysOut: 15, Amount: 42000},
		{CustomerName: "Harbor View Development", DaysOut: 35, Amount: 18500},
		{CustomerName: "Cascade Civil Group", DaysOut: 67, Amount: 61200},
		{CustomerName: "Mesa Ridge Partners", DaysOut: 95, Amount: 87400},
		{CustomerName: "Pinnacle Construction", DaysOut: 40, Amount: 25000, IsRetainage: true},
	}}
	collections := &fakeCollectionsRepo{}
	tasks := &fakeTaskRepo{}
	comms := &fakeCommunicationRepo{}
	status := &fakeAgentStatusRepo{}
	escalator := &recordingEscalator{}

	rt := agent.NewRuntime(agent.RuntimeConfig{
		Registry:  registry,
		Acquirer:  llm.NewAcquirer(arScriptedChatter{}, skills),
		Skills:    skills,
		Escalator: escalator,
		Stores: agent.Stores{
			AR:             ar,
			Collections:    collections,
			Tasks:          tasks,
			Communications: comms,
			AgentStatus:    status,
			Activity:       &recordingActivityRepo{},
		},
	})

	s := registry.CreateSession("ar_followup")
	result, err := rt.Run(context.Background(), "ar_followup", s.ID)
	require.NoError(t, err)

	results, ok := result.Output["results"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, results, 5)

	actionByCustomer := make(map[string]string, len(results))
	for _, row := range results {
		actionByCustomer[row["customer"].(string)] = row["action"].(string)
	}
	assert.Equal(t, "no_action_within_terms", actionByCustomer["Summit Builders"])
	assert.Equal(t, "polite_reminder", actionByCustomer["Harbor View Development"])
	assert.Equal(t, "firm_email_plus_internal_task", actionByCustomer["Cascade Civil Group"])
	assert.Equal(t, "escalated_to_collections", actionByCustomer["Mesa Ridge Partners"])
	assert.Equal(t, "skip_retainage", actionByCustomer["Pinnacle Construction"])

	progress, ok := result.Output["queue_progress"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 5, progress["total"])
	assert.Equal(t, 3, progress["emails_sent"])
	assert.Equal(t, 1, progress["escalated"])
	assert.Equal(t, 2, progress["skipped"])
	assert.Equal(t, 4, progress["actions_taken"])

	summary, ok := result.Output["aging_summary"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 5, summary["total_accounts"])
	assert.Equal(t, 234100.0, summary["total_outstanding"])
	buckets, ok := summary["buckets"].(map[string]int)
	require.True(t, ok)
	assert.Equal(t, 1, buckets["current"])
	assert.Equal(t, 2, buckets["30_60"])
	assert.Equal(t, 1, buckets["61_90"])
	assert.Equal(t, 1, buckets["over_90"])

	// One email each for the reminder, firm, and collections accounts.
	require.Len(t, comms.sent, 3)
	recipients := make([]string, 0, len(comms.sent))
	for _, c := range comms.sent {
		recipients = append(recipients, c.Recipient)
		assert.Equal(t, "ar_followup", c.AgentID)
		assert.Equal(t, "email", c.Channel)
	}
	assert.Contains(t, recipients, "billing@mesaridgepartners.com")

	// The 95-day account landed in collections and pinged the escalation channel.
	require.Len(t, collections.entries, 1)
	assert.Equal(t, "Mesa Ridge Partners", collections.entries[0].CustomerName)
	assert.Equal(t, 87400.0, collections.entries[0].Amount)
	require.Len(t, escalator.notes, 1)
	assert.Contains(t, escalator.notes[0], "Mesa Ridge Partners")

	// The firm-email account got a follow-up call task.
	require.Len(t, tasks.tasks, 1)
	assert.Equal(t, "AR follow-up call: Cascade Civil Group", tasks.tasks[0].Title)
	assert.Equal(t, "high", tasks.tasks[0].Priority)
	require.NotNil(t, tasks.tasks[0].DueDate)

	session, ok := registry.GetSession(s.ID)
	require.True(t, ok)
	assert.True(t, session.Done)
	assert.Equal(t, agent.EventComplete, session.Events[len(session.Events)-1].Type)
}
