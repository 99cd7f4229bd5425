// Package ai wraps the completion gateway. Its output is probabilistic and
// semi-structured; callers must re-validate everything before it influences
// persistence.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/feedscout/feedscout/internal/metrics"
)

const (
	defaultTimeout     = 30 * time.Second
	largePromptChars   = 50000
	largePromptTimeout = 120 * time.Second
	retryPause         = time.Second
)

// Kind classifies completion failures.
type Kind string

const (
	KindNotConfigured Kind = "not_configured"
	KindTimeout       Kind = "timeout"
	KindAPI           Kind = "api_error"
)

// Error is a typed completion-gateway failure.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ai: %s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("ai: %s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// IsTimeout reports whether err is a gateway timeout.
func IsTimeout(err error) bool {
	var aiErr *Error
	return errors.As(err, &aiErr) && aiErr.Kind == KindTimeout
}

// ResponseFormat asks the gateway for schema-constrained JSON output.
type ResponseFormat struct {
	Type       string      `json:"type"`
	JSONSchema *JSONSchema `json:"json_schema,omitempty"`
}

// JSONSchema names a JSON schema the model output must satisfy.
type JSONSchema struct {
	Name   string         `json:"name"`
	Schema map[string]any `json:"schema"`
}

// Request is one completion call.
type Request struct {
	Prompt         string
	Model          string // empty uses the client default
	Temperature    *float64
	ResponseFormat *ResponseFormat
	Timeout        time.Duration // zero scales with prompt size
}

// Completer is the completion surface consumed by the detection pipeline.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Config holds gateway settings.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
}

// Client talks to an OpenAI-compatible chat-completions gateway.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     zerolog.Logger
}

var _ Completer = (*Client)(nil)

// NewClient constructs a gateway client. Per-request timeouts are applied via
// context, so the underlying HTTP client carries none.
func NewClient(cfg Config, logger zerolog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://ai-gateway.vercel.sh/v1"
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{},
		logger:     logger,
	}
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	Stream         bool            `json:"stream"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Complete issues one synchronous completion. Timeouts scale with prompt size
// unless the request pins one; a single automatic retry follows a timeout,
// after which the typed error propagates.
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	if c.cfg.APIKey == "" {
		return "", &Error{Kind: KindNotConfigured, Msg: "API key not configured"}
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
		if len(req.Prompt) > largePromptChars {
			timeout = largePromptTimeout
		}
	}

	model := req.Model
	if model == "" {
		model = c.cfg.Model
	}
	temperature := c.cfg.Temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}

	payload := chatRequest{
		Model:          model,
		Messages:       []chatMessage{{Role: "user", Content: req.Prompt}},
		Temperature:    temperature,
		Stream:         false,
		ResponseFormat: req.ResponseFormat,
	}

	c.logger.Info().
		Str("model", model).
		Int("prompt_length", len(req.Prompt)).
		Dur("timeout", timeout).
		Msg("calling completion gateway")

	start := time.Now()
	content, err := c.send(ctx, payload, timeout)
	if err != nil && IsTimeout(err) {
		c.logger.Warn().Err(err).Msg("completion timed out, retrying once")
		time.Sleep(retryPause)
		content, err = c.send(ctx, payload, timeout)
	}
	metrics.CompletionDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		outcome := "error"
		if IsTimeout(err) {
			outcome = "timeout"
		}
		metrics.CompletionRequests.WithLabelValues(outcome).Inc()
		return "", err
	}
	metrics.CompletionRequests.WithLabelValues("ok").Inc()

	c.logger.Info().Int("response_length", len(content)).Msg("completion received")
	return content, nil
}

func (c *Client) send(ctx context.Context, payload chatRequest, timeout time.Duration) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", &Error{Kind: KindAPI, Msg: "encode request", Err: err}
	}

	endpoint := strings.TrimSuffix(c.cfg.BaseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return "", &Error{Kind: KindAPI, Msg: "build request", Err: err}
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if isTimeoutErr(err) {
			return "", &Error{Kind: KindTimeout, Msg: "gateway timeout", Err: err}
		}
		return "", &Error{Kind: KindAPI, Msg: "http error", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &Error{Kind: KindAPI, Msg: "read response", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return "", &Error{Kind: KindAPI, Msg: fmt.Sprintf("http %d: %s", resp.StatusCode, snippet(body))}
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", &Error{Kind: KindAPI, Msg: "decode response", Err: err}
	}
	if parsed.Error != nil {
		return "", &Error{Kind: KindAPI, Msg: parsed.Error.Message}
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return "", &Error{Kind: KindAPI, Msg: "no content in response"}
	}
	return parsed.Choices[0].Message.Content, nil
}

func isTimeoutErr(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr) && urlErr.Timeout()
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
