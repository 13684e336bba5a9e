package llm

import (
	"context"
	"encoding/json"
	"fmt"
)

const (
	systemPrompt = "You are an autonomous construction back-office agent. " +
		"Return strict JSON only, no markdown, no commentary. " +
		"Use the provided skills and objective to decide the output."

	strictRetryPrompt = "Return one valid JSON object only. " +
		"No markdown, no prose, no trailing text."

	repairJSONPrompt = "Convert the following content into strict valid JSON only. " +
		"Do not add explanation, markdown, or code fences. Preserve meaning."

	repairSchemaPrompt = "Repair the JSON so it satisfies all validation errors. " +
		"Return a single strict JSON object only."

	shapeAttempts  = 3
	repairAttempts = 3

	defaultMaxTokens = 1200
)

// ValidatorFunc checks a candidate object and returns human-readable error
// strings; an empty slice means valid. Validators are pure functions.
type ValidatorFunc func(candidate map[string]any) []string

// SkillsReader supplies the per-agent steering text injected into every
// acquisition call.
type SkillsReader interface {
	Read(agentID string) (string, error)
}

// StructuredResult is a validated JSON object plus the real token usage
// accumulated across every model sub-call made to produce it.
type StructuredResult struct {
	Data             map[string]any
	PromptTokens     int
	CompletionTokens int
}

// Request describes one structured-response acquisition.
type Request struct {
	AgentID     string
	Objective   string
	Context     map[string]any
	MaxTokens   int     // 0 = default
	Temperature float64 // used on the first shape attempt only
	Validator   ValidatorFunc
	Model       string // empty = client default
}

// Acquirer turns free-form model output into validated JSON objects. It runs
// a bounded shape-acquisition loop (is it JSON at all?) followed by a bounded
// validation-repair loop (is it the right shape?), and either returns a
// result whose Data passes the supplied validator or fails with a
// *ContractError. There is no partial success.
type Acquirer struct {
	chatter Chatter
	skills  SkillsReader
}

// NewAcquirer creates an Acquirer over the given gateway and skills source.
func NewAcquirer(chatter Chatter, skills SkillsReader) *Acquirer {
	return &Acquirer{chatter: chatter, skills: skills}
}

// Request acquires one structured response. All sub-call token usage is
// summed into the returned result.
func (a *Acquirer) Request(ctx context.Context, req Request) (*StructuredResult, error) {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	acc := &usageAccumulator{chatter: a.chatter, maxTokens: maxTokens, model: req.Model}

	skills, err := a.skills.Read(req.AgentID)
	if err != nil {
		return nil, fmt.Errorf("llm.Acquirer.Request: %w", err)
	}

	userPayload, err := json.Marshal(map[string]any{
		"agent_id":  req.AgentID,
		"objective": req.Objective,
		"skills":    skills,
		"context":   req.Context,
	})
	if err != nil {
		return nil, fmt.Errorf("llm.Acquirer.Request: marshal payload: %w", err)
	}

	var (
		candidate map[string]any
		lastText  string
	)

	// JSON-shape acquisition loop.
	for attempt := 1; attempt <= shapeAttempts; attempt++ {
		system := systemPrompt
		temp := 0.0
		if attempt == 1 {
			temp = req.Temperature
		}
		if attempt == shapeAttempts {
			system = strictRetryPrompt
		}

		text, chatErr := acc.chat(ctx, []Message{
			{Role: "system", Content: system},
			{Role: "user", Content: string(userPayload)},
		}, temp)
		if chatErr != nil {
			return nil, fmt.Errorf("llm.Acquirer.Request: %w", chatErr)
		}

		parsed, raw, parseErr := a.parseCandidate(ctx, acc, text)
		if parseErr != nil {
			return nil, fmt.Errorf("llm.Acquirer.Request: %w", parseErr)
		}
		lastText = raw
		if parsed != nil {
			candidate = parsed
			break
		}
	}

	if candidate == nil {
		return nil, &ContractError{AgentID: req.AgentID, Preview: preview(lastText)}
	}

	if req.Validator == nil {
		return acc.result(candidate), nil
	}

	validationErrors := req.Validator(candidate)
	if len(validationErrors) == 0 {
		return acc.result(candidate), nil
	}

	// Validation-repair loop: feed the validator's error strings back to the
	// model together with the failing candidate and the original context.
	current := candidate
	for attempt := 1; attempt <= repairAttempts; attempt++ {
		repairPayload, marshalErr := json.Marshal(map[string]any{
			"objective":         req.Objective,
			"validation_errors": validationErrors,
			"candidate":         current,
			"context":           req.Context,
		})
		if marshalErr != nil {
			return nil, fmt.Errorf("llm.Acquirer.Request: marshal repair payload: %w", marshalErr)
		}

		text, chatErr := acc.chat(ctx, []Message{
			{Role: "system", Content: repairSchemaPrompt},
			{Role: "user", Content: string(repairPayload)},
		}, 0.0)
		if chatErr != nil {
			return nil, fmt.Errorf("llm.Acquirer.Request: %w", chatErr)
		}

		repaired, raw, parseErr := a.parseCandidate(ctx, acc, text)
		if parseErr != nil {
			return nil, fmt.Errorf("llm.Acquirer.Request: %w", parseErr)
		}
		lastText = raw
		if repaired == nil {
			continue
		}

		validationErrors = req.Validator(repaired)
		if len(validationErrors) == 0 {
			return acc.result(repaired), nil
		}
		current = repaired
	}

	return nil, &ContractError{
		AgentID:          req.AgentID,
		Preview:          preview(lastText),
		ValidationErrors: validationErrors,
	}
}

// parseCandidate parses raw model text, spending at most one model repair
// sub-call (temperature 0) when the local parse fails. Returns the parsed
// object (nil if unrecoverable) and the last raw text seen.
func (a *Acquirer) parseCandidate(ctx context.Context, acc *usageAccumulator, text string) (map[string]any, string, error) {
	if parsed := TryParseObject(text); parsed != nil {
		return parsed, text, nil
	}

	repaired, err := acc.chat(ctx, []Message{
		{Role: "system", Content: repairJSONPrompt},
		{Role: "user", Content: text},
	}, 0.0)
	if err != nil {
		return nil, text, err
	}

	return TryParseObject(repaired), repaired, nil
}

// usageAccumulator sums token usage across every sub-call of one Request.
type usageAccumulator struct {
	chatter          Chatter
	maxTokens        int
	model            string
	promptTokens     int
	completionTokens int
}

func (u *usageAccumulator) chat(ctx context.Context, messages []Message, temperature float64) (string, error) {
	resp, err := u.chatter.Chat(ctx, messages, ChatOptions{
		Temperature: temperature,
		MaxTokens:   u.maxTokens,
		Model:       u.model,
	})
	if err != nil {
		return "", err
	}
	u.promptTokens += resp.PromptTokens
	u.completionTokens += resp.CompletionTokens
	return resp.Text, nil
}

func (u *usageAccumulator) result(data map[string]any) *StructuredResult {
	return &StructuredResult{
		Data:             data,
		PromptTokens:     u.promptTokens,
		CompletionTokens: u.completionTokens,
	}
}
