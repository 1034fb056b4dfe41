package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"medocs-backend/internal/llm"
	"medocs-backend/internal/shared/metrics"
	"medocs-backend/internal/shared/telemetry"
)

// DefaultBaseURL is the public OpenAI API root.
const DefaultBaseURL = "https://api.openai.com/v1"

const (
	defaultTimeout     = 120 * time.Second
	defaultMaxAttempts = 3
	baseBackoff        = 500 * time.Millisecond
	maxBackoff         = 10 * time.Second
	maxResponseBytes   = 4 << 20
)

// Client implements llm.Client on the Chat Completions endpoint in JSON mode.
type Client struct {
	apiKey      string
	model       string
	endpoint    string
	http        *http.Client
	maxAttempts int
	noZeroTemp  map[string]bool
	sleep       func(context.Context, time.Duration) error
}

// Option customizes a Client.
type Option func(*Client)

// WithBaseURL points the client at a compatible gateway or a test server.
func WithBaseURL(base string) Option {
	return func(c *Client) {
		if base = strings.TrimRight(strings.TrimSpace(base), "/"); base != "" {
			c.endpoint = base + "/chat/completions"
		}
	}
}

// WithHTTPClient replaces the transport. The timeout argument of NewClient
// is ignored when this is set.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithMaxAttempts bounds calls per operation, counting retries on 429 and 5xx.
func WithMaxAttempts(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithoutZeroTemperature lists models that must be called without temperature.
func WithoutZeroTemperature(models ...string) Option {
	return func(c *Client) {
		for _, m := range models {
			if m = strings.ToLower(strings.TrimSpace(m)); m != "" {
				c.noZeroTemp[m] = true
			}
		}
	}
}

// NewClient builds a client for model. A zero timeout uses the default.
func NewClient(apiKey, model string, timeout time.Duration, opts ...Option) (*Client, error) {
	if strings.TrimSpace(model) == "" {
		return nil, errors.New("LLM_MODEL is required for OpenAI")
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("OPENAI_API_KEY is required")
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := &Client{
		apiKey:      apiKey,
		model:       model,
		endpoint:    DefaultBaseURL + "/chat/completions",
		http:        &http.Client{Timeout: timeout},
		maxAttempts: defaultMaxAttempts,
		noZeroTemp:  map[string]bool{},
		sleep:       sleepCtx,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

var errTransport = errors.New("openai transport")

// APIError is an error reported by the provider, either as a non-2xx status
// or as an error object in the body.
type APIError struct {
	StatusCode int
	Type       string
	Message    string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if e.Type != "" {
		msg += " (" + e.Type + ")"
	}
	if e.StatusCode >= http.StatusBadRequest {
		return fmt.Sprintf("openai: status %d: %s", e.StatusCode, msg)
	}
	return "openai: " + msg
}

// Temporary reports whether the same request may succeed later.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

func (e *APIError) rejectsTemperature() bool {
	lower := strings.ToLower(e.Message)
	return strings.Contains(lower, "temperature") && strings.Contains(lower, "unsupported")
}

type chatMessage struct {
	Role string `json:"role"`
	// string, or []contentPart for image input
	Content any `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    *float64      `json:"temperature,omitempty"`
	ResponseFormat struct {
		Type string `json:"type"`
	} `json:"response_format"`
}

type usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

type chatReply struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *usage `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// complete runs one JSON-mode completion for op and returns the reply text.
// A model that refuses temperature 0 is asked again once without it;
// throttling and server errors are retried with backoff.
func (c *Client) complete(ctx context.Context, op string, messages []chatMessage) (string, error) {
	zeroTemp := c.allowsZeroTemperature()
	for attempt := 1; ; attempt++ {
		text, used, err := c.post(ctx, c.newRequest(messages, zeroTemp))
		if err == nil {
			metrics.ObserveLLMCall(op, "ok")
			c.logUsage(ctx, op, attempt, used)
			return text, nil
		}

		var apiErr *APIError
		isAPI := errors.As(err, &apiErr)
		switch {
		case isAPI && zeroTemp && apiErr.rejectsTemperature():
			zeroTemp = false
		case attempt < c.maxAttempts && c.retryable(ctx, err):
			wait := backoff(attempt, apiErr)
			telemetry.Warn("llm.retry", map[string]any{
				"op":         op,
				"model":      c.model,
				"attempt":    attempt,
				"wait_ms":    wait.Milliseconds(),
				"err":        err,
				"request_id": telemetry.RequestID(ctx),
			})
			if err := c.sleep(ctx, wait); err != nil {
				metrics.ObserveLLMCall(op, "error")
				return "", err
			}
		default:
			metrics.ObserveLLMCall(op, "error")
			return "", fmt.Errorf("%s: %w", op, err)
		}
		metrics.ObserveLLMCall(op, "retry")
	}
}

func (c *Client) newRequest(messages []chatMessage, zeroTemp bool) chatRequest {
	req := chatRequest{Model: c.model, Messages: messages}
	req.ResponseFormat.Type = "json_object"
	if zeroTemp {
		zero := 0.0
		req.Temperature = &zero
	}
	return req
}

func (c *Client) post(ctx context.Context, body chatRequest) (string, *usage, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %w", errTransport, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", nil, fmt.Errorf("openai read: %w", err)
	}

	var reply chatReply
	decodeErr := json.Unmarshal(raw, &reply)
	if reply.Error != nil || resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
		if reply.Error != nil {
			apiErr.Message, apiErr.Type = reply.Error.Message, reply.Error.Type
		}
		return "", nil, apiErr
	}
	if decodeErr != nil {
		return "", nil, fmt.Errorf("openai decode: %w", decodeErr)
	}
	if len(reply.Choices) == 0 {
		return "", nil, errors.New("openai: reply has no choices")
	}
	text := strings.TrimSpace(reply.Choices[0].Message.Content)
	if text == "" {
		return "", nil, errors.New("openai: reply content is empty")
	}
	return text, reply.Usage, nil
}

func (c *Client) retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	return errors.Is(err, errTransport)
}

func (c *Client) allowsZeroTemperature() bool {
	model := strings.ToLower(strings.TrimSpace(c.model))
	return !isGPT5(model) && !c.noZeroTemp[model]
}

func isGPT5(model string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(model)), "gpt-5")
}

// backoff doubles from baseBackoff per attempt, stretched to a server
// supplied Retry-After and capped at maxBackoff.
func backoff(attempt int, apiErr *APIError) time.Duration {
	wait := baseBackoff << (attempt - 1)
	if apiErr != nil && apiErr.RetryAfter > wait {
		wait = apiErr.RetryAfter
	}
	if wait > maxBackoff {
		wait = maxBackoff
	}
	return wait
}

func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (c *Client) logUsage(ctx context.Context, op string, attempts int, used *usage) {
	fields := map[string]any{
		"model":      c.model,
		"op":         op,
		"attempts":   attempts,
		"request_id": telemetry.RequestID(ctx),
	}
	if used != nil {
		fields["prompt_tokens"] = used.PromptTokens
		fields["completion_tokens"] = used.CompletionTokens
		metrics.AddLLMTokens(op, used.PromptTokens, used.CompletionTokens)
	}
	telemetry.Info("llm.completion", fields)
}

var _ llm.Client = (*Client)(nil)
