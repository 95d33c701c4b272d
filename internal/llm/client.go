package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	jsonResponseType      = "json_object"
	defaultTemperature    = 0.3
	defaultHTTPTimeout    = 120 * time.Second
	defaultRetryMaxDelay  = 10 * time.Second
	defaultRetryBaseDelay = 1 * time.Second
	defaultRetryAttempts  = 3
)

// Config captures the runtime settings required to talk to the model API.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	TimeoutSeconds int
	Retries        int
}

// Usage reports the token accounting from the final completion event.
type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

// Result is the full model response for one conversion request.
type Result struct {
	Content string
	Usage   Usage
}

// Client wraps the chat completion endpoint.
type Client struct {
	cfg        Config
	httpClient *http.Client
	// streamClient has no overall timeout; streamed responses are bounded by
	// the request context instead.
	streamClient *http.Client

	retryMaxAttempts int
	retryBaseDelay   time.Duration
	retryMaxDelay    time.Duration
	sleeper          func(time.Duration)
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP clients.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
			c.streamClient = client
		}
	}
}

// WithRetryMaxAttempts overrides the default retry count.
func WithRetryMaxAttempts(attempts int) Option {
	return func(c *Client) {
		c.retryMaxAttempts = attempts
	}
}

// WithRetryBackoff overrides the retry backoff delays.
func WithRetryBackoff(baseDelay, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.retryBaseDelay = baseDelay
		c.retryMaxDelay = maxDelay
	}
}

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Client) {
		c.sleeper = sleeper
	}
}

// NewClient constructs a client from the supplied configuration.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	attempts := defaultRetryAttempts
	if cfg.Retries > 0 {
		attempts = cfg.Retries
	}
	client := &Client{
		cfg: Config{
			APIKey:         strings.TrimSpace(cfg.APIKey),
			BaseURL:        strings.TrimSpace(cfg.BaseURL),
			Model:          strings.TrimSpace(cfg.Model),
			TimeoutSeconds: cfg.TimeoutSeconds,
			Retries:        cfg.Retries,
		},
		httpClient:       &http.Client{Timeout: timeout},
		streamClient:     &http.Client{},
		retryMaxAttempts: attempts,
		retryBaseDelay:   defaultRetryBaseDelay,
		retryMaxDelay:    defaultRetryMaxDelay,
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.cfg.BaseURL == "" {
		client.cfg.BaseURL = "https://api.openai.com/v1/chat/completions"
	}
	return client
}

type httpStatusError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("model request: http %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
	Stream         bool              `json:"stream,omitempty"`
	StreamOptions  map[string]any    `json:"stream_options,omitempty"`
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
		// Some providers return the streaming schema even when stream=false.
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		Text         string `json:"text"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *Usage `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// CompleteJSON issues a blocking JSON-only completion with the supplied
// prompts and returns the raw payload the model produced.
func (c *Client) CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (Result, error) {
	var empty Result
	payload, err := c.buildRequest(systemPrompt, userPrompt, false)
	if err != nil {
		return empty, err
	}

	attempts := c.retryAttempts()
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		completion, err := c.sendOnce(ctx, payload)
		if err == nil {
			content := extractContent(completion)
			if content == "" {
				err = fmt.Errorf("model complete: empty content (finish_reason=%q)", extractFinishReason(completion))
			} else {
				result := Result{Content: content}
				if completion.Usage != nil {
					result.Usage = *completion.Usage
				}
				return result, nil
			}
		}
		delay, retry := c.retryDelay(ctx, err, attempt, attempts)
		if !retry {
			return empty, err
		}
		if err := c.sleep(ctx, delay); err != nil {
			return empty, err
		}
		lastErr = err
	}
	return empty, fmt.Errorf("model complete: failed after %d attempts: %w", attempts, lastErr)
}

func (c *Client) buildRequest(systemPrompt, userPrompt string, stream bool) (chatRequest, error) {
	var empty chatRequest
	systemPrompt = strings.TrimSpace(systemPrompt)
	userPrompt = strings.TrimSpace(userPrompt)
	if systemPrompt == "" {
		return empty, errors.New("model request: system prompt required")
	}
	if userPrompt == "" {
		return empty, errors.New("model request: user prompt required")
	}
	if c.cfg.APIKey == "" {
		return empty, errors.New("model request: api key required")
	}
	req := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature:    defaultTemperature,
		ResponseFormat: map[string]string{"type": jsonResponseType},
		Stream:         stream,
	}
	if stream {
		req.StreamOptions = map[string]any{"include_usage": true}
	}
	return req, nil
}

func (c *Client) sendOnce(ctx context.Context, payload chatRequest) (chatResponse, error) {
	var completion chatResponse
	resp, body, err := c.post(ctx, c.httpClient, payload)
	if err != nil {
		return completion, err
	}
	defer resp.Body.Close()
	if err := json.Unmarshal(body, &completion); err != nil {
		return completion, fmt.Errorf("model request: decode response: %w", err)
	}
	if completion.Error != nil {
		return completion, fmt.Errorf("model request: api error: %s", strings.TrimSpace(completion.Error.Message))
	}
	return completion, nil
}

func (c *Client) post(ctx context.Context, client *http.Client, payload chatRequest) (*http.Response, []byte, error) {
	resp, err := c.do(ctx, client, payload)
	if err != nil {
		return nil, nil, err
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		resp.Body.Close()
		return nil, nil, fmt.Errorf("model request: read body: %w", err)
	}
	return resp, body, nil
}

func (c *Client) do(ctx context.Context, client *http.Client, payload chatRequest) (*http.Response, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("model request: encode body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("model request: new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	if payload.Stream {
		req.Header.Set("Accept", "text/event-stream")
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("model request: http error: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
		resp.Body.Close()
		retryAfter, _ := parseRetryAfter(resp.Header.Get("Retry-After"))
		return nil, &httpStatusError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
			RetryAfter: retryAfter,
		}
	}
	return resp, nil
}

func extractContent(completion chatResponse) string {
	for _, choice := range completion.Choices {
		if content := firstNonEmpty(choice.Message.Content, choice.Delta.Content, choice.Text); content != "" {
			return content
		}
	}
	return ""
}

func extractFinishReason(completion chatResponse) string {
	for _, choice := range completion.Choices {
		if reason := strings.TrimSpace(choice.FinishReason); reason != "" {
			return reason
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func (c *Client) retryAttempts() int {
	if c == nil || c.retryMaxAttempts <= 0 {
		return 1
	}
	return c.retryMaxAttempts
}

func (c *Client) retryDelay(ctx context.Context, err error, attempt, maxAttempts int) (time.Duration, bool) {
	if attempt >= maxAttempts || err == nil {
		return 0, false
	}
	if ctx == nil || ctx.Err() != nil {
		return 0, false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return 0, false
	}

	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == http.StatusRequestTimeout,
			statusErr.StatusCode == http.StatusTooManyRequests,
			statusErr.StatusCode >= http.StatusInternalServerError:
			if statusErr.RetryAfter > 0 {
				return c.capDelay(statusErr.RetryAfter), true
			}
			return c.backoffDelay(attempt), true
		default:
			return 0, false
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return c.backoffDelay(attempt), true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return c.backoffDelay(attempt), true
	}
	return 0, false
}

func (c *Client) backoffDelay(attempt int) time.Duration {
	base := c.retryBaseDelay
	if base <= 0 {
		return 0
	}
	// attempt 1 -> base, attempt 2 -> base*2, attempt 3 -> base*4, ...
	delay := base
	for i := 1; i < attempt; i++ {
		if delay > c.retryMaxDelay/2 {
			delay = c.retryMaxDelay
			break
		}
		delay *= 2
	}
	return c.capDelay(delay)
}

func (c *Client) capDelay(delay time.Duration) time.Duration {
	if delay < 0 {
		return 0
	}
	if c.retryMaxDelay > 0 && delay > c.retryMaxDelay {
		return c.retryMaxDelay
	}
	return delay
}

func (c *Client) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if c.sleeper != nil {
		c.sleeper(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func parseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		delay := time.Until(when)
		if delay < 0 {
			return 0, false
		}
		return delay, true
	}
	return 0, false
}
