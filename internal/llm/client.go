package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/nugget/relaybot/internal/httpkit"
)

// Diagnostic texts returned by Complete in place of a model reply.
const (
	connectFailureText  = "Sorry, I couldn't connect to the model API. Error: %v"
	unexpectedReplyText = "Sorry, I received an unexpected response from the model API."
)

const (
	defaultTemperature    = 0.7
	defaultMaxTokens      = 999999999
	defaultRequestTimeout = 5 * time.Minute
)

// ErrMalformedResponse means the endpoint answered but the reply had no
// first choice to read.
var ErrMalformedResponse = errors.New("llm: response has no choices")

// TransportError wraps any failure to obtain a response: connection
// errors, timeouts and non-2xx statuses.
type TransportError struct {
	StatusCode int // zero when no HTTP response was received
	Err        error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("llm: HTTP %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("llm: request failed: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error { return e.Err }

// Config configures a Client.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int64
	Timeout     time.Duration
}

// Client sends conversations to an OpenAI-compatible chat completions
// endpoint. Each call is a single request; the SDK's automatic retries
// are disabled.
type Client struct {
	api         openai.Client
	model       string
	temperature float64
	maxTokens   int64
	logger      *slog.Logger
}

// NewClient creates a completion client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = defaultTemperature
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultRequestTimeout
	}

	api := openai.NewClient(
		option.WithBaseURL(cfg.BaseURL),
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpkit.NewClient(httpkit.WithTimeout(cfg.Timeout))),
		option.WithMaxRetries(0),
	)

	return &Client{
		api:         api,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		logger:      logger,
	}
}

// Model returns the configured model identifier.
func (c *Client) Model() string { return c.model }

// Chat sends the ordered messages and returns the first choice's text.
func (c *Client) Chat(ctx context.Context, messages []Message) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.model),
		Messages:    toParams(messages),
		Temperature: openai.Float(c.temperature),
		MaxTokens:   openai.Int(c.maxTokens),
	}

	if c.logger.Enabled(ctx, LevelTrace) {
		if payload, err := json.Marshal(params); err == nil {
			c.logger.Log(ctx, LevelTrace, "llm request payload", "payload", string(payload))
		}
	}

	start := time.Now()
	completion, err := c.api.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return "", &TransportError{StatusCode: apiErr.StatusCode, Err: err}
		}
		return "", &TransportError{Err: err}
	}

	if c.logger.Enabled(ctx, LevelTrace) {
		c.logger.Log(ctx, LevelTrace, "llm response payload", "payload", completion.RawJSON())
	}

	if len(completion.Choices) == 0 {
		return "", ErrMalformedResponse
	}

	c.logger.Debug("llm call completed",
		"model", c.model,
		"messages", len(messages),
		"elapsed", time.Since(start).Round(time.Millisecond),
		"prompt_tokens", completion.Usage.PromptTokens,
		"completion_tokens", completion.Usage.CompletionTokens,
	)

	return completion.Choices[0].Message.Content, nil
}

// Complete is Chat with failures rendered as diagnostic text.
func (c *Client) Complete(ctx context.Context, messages []Message) string {
	reply, err := c.Chat(ctx, messages)
	if err != nil {
		c.logger.Warn("llm call failed", "model", c.model, "error", err)
		return Diagnostic(err)
	}
	return reply
}

// Diagnostic converts a Chat error into the user-facing text that
// Complete substitutes for the reply.
func Diagnostic(err error) string {
	var te *TransportError
	if errors.As(err, &te) {
		return fmt.Sprintf(connectFailureText, te.Err)
	}
	return unexpectedReplyText
}

// toParams converts messages to SDK parameters, preserving order.
func toParams(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, len(messages))
	for i, m := range messages {
		switch m.Role {
		case RoleSystem:
			out[i] = openai.SystemMessage(m.Content)
		case RoleAssistant:
			out[i] = openai.AssistantMessage(m.Content)
		case RoleTool:
			out[i] = openai.ToolMessage(m.Content, m.ToolCallID)
		default:
			out[i] = openai.UserMessage(m.Content)
		}
	}
	return out
}
