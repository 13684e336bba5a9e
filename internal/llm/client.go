package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	maxAttempts    = 3
	baseBackoff    = 1 * time.Second
	maxBackoff     = 8 * time.Second
	bodyPreviewLen = 300
)

// Message is one chat message sent to the model API.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatOptions tunes a single chat-completion call.
type ChatOptions struct {
	Temperature float64
	MaxTokens   int
	Model       string // empty = client default
}

// Response carries the extracted text and real token usage for one call.
type Response struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Chatter is the gateway contract the Acquirer and runners depend on.
type Chatter interface {
	Chat(ctx context.Context, messages []Message, opts ChatOptions) (*Response, error)
}

// Client is a chat-completion client for an OpenAI-compatible API.
// Transient failures (transport errors, 408/409/425/429/5xx) are retried
// with exponential backoff; other 4xx fail immediately. Content-level
// failures (no choices, empty text) are never retried.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewClient creates a Client. An empty apiKey produces a client whose Chat
// always fails with ErrNotConfigured.
func NewClient(baseURL, apiKey, model string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Enabled reports whether a credential is configured.
func (c *Client) Enabled() bool { return c.apiKey != "" }

type chatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content json.RawMessage `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// Chat sends a chat-completion request and returns the extracted text plus
// real token usage.
func (c *Client) Chat(ctx context.Context, messages []Message, opts ChatOptions) (*Response, error) {
	if !c.Enabled() {
		return nil, ErrNotConfigured
	}

	model := opts.Model
	if model == "" {
		model = c.model
	}

	payload := chatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}

	var (
		data    *chatCompletionResponse
		lastErr error
	)

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			delay := baseBackoff << (attempt - 2)
			if delay > maxBackoff {
				delay = maxBackoff
			}
			log.Debug().Int("attempt", attempt).Dur("delay", delay).Msg("llm.Client.Chat: retrying")
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("llm.Client.Chat: %w", ctx.Err())
			case <-time.After(delay):
			}
		}

		var err error
		data, err = c.doRequest(ctx, &payload)
		if err == nil {
			break
		}

		var upstream *UpstreamError
		if errors.As(err, &upstream) && !upstream.Transient {
			return nil, fmt.Errorf("llm.Client.Chat: %w", err)
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("llm.Client.Chat: %w", err)
		}

		lastErr = err
		data = nil
	}

	if data == nil {
		return nil, fmt.Errorf("llm.Client.Chat: retries exhausted: %w", lastErr)
	}

	if len(data.Choices) == 0 {
		return nil, errors.New("llm.Client.Chat: response did not contain choices")
	}

	text := strings.TrimSpace(extractText(data.Choices[0].Message.Content))
	if text == "" {
		return nil, errors.New("llm.Client.Chat: response did not contain text content")
	}

	return &Response{
		Text:             text,
		PromptTokens:     data.Usage.PromptTokens,
		CompletionTokens: data.Usage.CompletionTokens,
		TotalTokens:      data.Usage.TotalTokens,
	}, nil
}

func (c *Client) doRequest(ctx context.Context, payload *chatCompletionRequest) (*chatCompletionResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Transport and timeout errors are retryable.
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if transientStatus(resp.StatusCode) {
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Transient: true}
	}
	if resp.StatusCode >= 400 {
		detail := raw
		if len(detail) > bodyPreviewLen {
			detail = detail[:bodyPreviewLen]
		}
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Body: string(detail)}
	}

	var data chatCompletionResponse
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &data, nil
}

func transientStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusConflict, http.StatusTooEarly, http.StatusTooManyRequests:
		return true
	}
	return code >= 500
}

// extractText handles both plain-string content and the list-of-parts form
// some providers return.
func extractText(content json.RawMessage) string {
	if len(content) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(content, &s); err == nil {
		return s
	}

	var parts []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(content, &parts); err == nil {
		texts := make([]string, 0, len(parts))
		for _, p := range parts {
			if p.Type == "text" {
				texts = append(texts, p.Text)
			}
		}
		return strings.Join(texts, "\n")
	}

	return string(content)
}
