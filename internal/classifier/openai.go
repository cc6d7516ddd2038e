package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/calbot-io/calbot/internal/dispatch"
	"github.com/calbot-io/calbot/internal/logging"
)

const (
	// DefaultBaseURL targets the OpenAI API; any compatible server works.
	DefaultBaseURL = "https://api.openai.com/v1"

	// DefaultModel is the classification model when none is configured.
	DefaultModel = "gpt-4o-mini"

	defaultRequestTimeout = 30 * time.Second
)

// Classifier maps one user message to at most one tool call, or to a plain
// text reply when no calendar operation is intended.
type Classifier interface {
	Classify(ctx context.Context, userID, text string) (*dispatch.ToolCallRequest, string, error)
}

// Config holds the settings for an OpenAI-compatible endpoint.
type Config struct {
	BaseURL string // e.g. https://api.openai.com/v1
	Model   string
	APIKey  string
}

// OpenAIClassifier implements Classifier against a chat completions endpoint
// with function calling.
type OpenAIClassifier struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

// NewOpenAIClassifier creates a classifier. Zero-value config fields fall
// back to the package defaults.
func NewOpenAIClassifier(cfg Config, logger *slog.Logger) *OpenAIClassifier {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAIClassifier{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
		logger:     logger,
	}
}

// Classify sends the message with the operation schemas attached. When the
// model emits tool calls only the first is honored; a content-only response
// becomes a plain reply.
func (c *OpenAIClassifier) Classify(ctx context.Context, userID, text string) (*dispatch.ToolCallRequest, string, error) {
	payload := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt()},
			{Role: "user", Content: text},
		},
		Tools: toolDefs(),
	}

	body, err := c.post(ctx, "/chat/completions", payload)
	if err != nil {
		return nil, "", fmt.Errorf("classify: %w", err)
	}

	var resp chatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, "", fmt.Errorf("classify decode: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, "", fmt.Errorf("classify: empty response")
	}

	msg := resp.Choices[0].Message
	if len(msg.ToolCalls) == 0 {
		return nil, msg.Content, nil
	}
	if len(msg.ToolCalls) > 1 {
		c.logger.Warn("model emitted multiple tool calls, dispatching first only",
			logging.Operation("classify"),
			slog.Int("tool_calls", len(msg.ToolCalls)))
	}

	call := msg.ToolCalls[0]
	args := map[string]any{}
	if call.Function.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
			return nil, "", fmt.Errorf("classify: malformed tool arguments: %w", err)
		}
	}

	return dispatch.NewToolCallRequest(userID, call.Function.Name, args), "", nil
}

func (c *OpenAIClassifier) post(ctx context.Context, path string, payload any) ([]byte, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(payloadBytes))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("completions API error (%d): %s", resp.StatusCode, string(body))
	}

	return io.ReadAll(resp.Body)
}

// toolDefs wraps the dispatch schemas in the chat completions tool format.
func toolDefs() []toolDef {
	schemas := dispatch.Schemas()
	defs := make([]toolDef, 0, len(schemas))
	for _, s := range schemas {
		defs = append(defs, toolDef{
			Type: "function",
			Function: toolFunction{
				Name:        s.Name,
				Description: s.Description,
				Parameters:  s.Parameters,
			},
		})
	}
	return defs
}

func systemPrompt() string {
	return fmt.Sprintf(`You are a calendar assistant. Today is %s (UTC).
When the user asks to create, list, update, or delete calendar events, call
the matching tool with RFC3339 timestamps. Resolve relative dates like
"tomorrow" against today's date. When the message is not about calendar
operations, answer briefly in plain text without calling any tool.`,
		time.Now().UTC().Format("Monday, 2006-01-02"))
}
