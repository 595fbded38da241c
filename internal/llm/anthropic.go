package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mikan1111/mafuyu/internal/httpkit"
)

const (
	anthropicAPIURL     = "https://api.anthropic.com/v1/messages"
	anthropicAPIVersion = "2023-06-01"
	anthropicMaxTokens  = 2048
)

// AnthropicClient is a client for the Anthropic Messages API.
type AnthropicClient struct {
	apiKey     string
	model      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewAnthropicClient creates a new Anthropic client bound to a model.
func NewAnthropicClient(apiKey, model string, logger *slog.Logger) *AnthropicClient {
	if logger == nil {
		logger = slog.Default()
	}
	// Long prompts can take a while before the first byte arrives.
	t := httpkit.NewTransport()
	t.ResponseHeaderTimeout = 120 * time.Second

	return &AnthropicClient{
		apiKey: apiKey,
		model:  model,
		logger: logger.With("provider", "anthropic"),
		httpClient: &http.Client{
			Timeout:   5 * time.Minute,
			Transport: t,
		},
	}
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	Messages  []anthropicMessage `json:"messages"`
	System    string             `json:"system,omitempty"`
	MaxTokens int                `json:"max_tokens"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text,omitempty"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Chat sends a chat completion request and returns the generated text.
func (c *AnthropicClient) Chat(ctx context.Context, messages []Message) (string, error) {
	msgs, systemPrompt := convertToAnthropic(messages)

	req := anthropicRequest{
		Model:     c.model,
		Messages:  msgs,
		System:    systemPrompt,
		MaxTokens: anthropicMaxTokens,
	}

	jsonData, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, anthropicAPIURL, bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", &BackendError{Provider: "anthropic", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body := httpkit.ReadErrorBody(resp.Body, 512)
		return "", &BackendError{Provider: "anthropic", Err: fmt.Errorf("API error %d: %s", resp.StatusCode, body)}
	}

	var ar anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&ar); err != nil {
		return "", &BackendError{Provider: "anthropic", Err: fmt.Errorf("decode response: %w", err)}
	}

	c.logger.Debug("chat completed",
		"stop_reason", ar.StopReason,
		"input_tokens", ar.Usage.InputTokens,
		"output_tokens", ar.Usage.OutputTokens,
	)

	var b strings.Builder
	for _, block := range ar.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return strings.TrimSpace(b.String()), nil
}

// Ping verifies the API key is set. The Messages API has no cheap health
// endpoint, so this only checks local configuration.
func (c *AnthropicClient) Ping(ctx context.Context) error {
	if c.apiKey == "" {
		return &BackendError{Provider: "anthropic", Err: fmt.Errorf("api key not configured")}
	}
	return nil
}

// convertToAnthropic splits leading system turns into the system prompt
// and maps the rest onto the Messages API shape. Anthropic requires
// alternating user/assistant roles starting with user, so consecutive
// same-role turns are merged.
func convertToAnthropic(messages []Message) ([]anthropicMessage, string) {
	var systemParts []string
	var out []anthropicMessage

	for _, m := range messages {
		if m.Role == RoleSystem {
			systemParts = append(systemParts, m.Content)
			continue
		}
		role := m.Role
		if role != RoleAssistant {
			role = "user"
		}
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content += "\n\n" + m.Content
			continue
		}
		out = append(out, anthropicMessage{Role: role, Content: m.Content})
	}

	// The API rejects a conversation that opens with an assistant turn.
	if len(out) > 0 && out[0].Role == RoleAssistant {
		out = append([]anthropicMessage{{Role: "user", Content: "(continue)"}}, out...)
	}

	return out, strings.Join(systemParts, "\n\n")
}
