// Package nim provides clients for the NIM OpenAI-compatible microservices:
// an embedding gateway and a chat completion gateway. Both wrap every call in
// a bounded retry policy with exponential backoff and surface a typed
// domain.GatewayError once retries are exhausted.
package nim

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/AlphaAgentAI/alphaagent-mvp/engine/domain"
	"github.com/AlphaAgentAI/alphaagent-mvp/pkg/resilience"
)

// maxResponseSize bounds gateway response bodies.
const maxResponseSize = 10 * 1024 * 1024

// EmbedMode selects the embedding input type.
type EmbedMode string

const (
	ModePassage EmbedMode = "passage"
	ModeQuery   EmbedMode = "query"
)

// Config holds the immutable gateway configuration. It is read once at
// construction; no component looks up endpoints at call time.
type Config struct {
	EmbedBaseURL string
	LLMBaseURL   string
	EmbedModel   string
	LLMModel     string
	MaxTokens    int
	Temperature  float64
	CallTimeout  time.Duration
}

// DefaultConfig returns the gateway defaults matching the NIM containers.
func DefaultConfig() Config {
	return Config{
		EmbedBaseURL: "http://localhost:8001",
		LLMBaseURL:   "http://localhost:8000",
		EmbedModel:   "nvidia/llama-3.2-nv-embedqa-1b-v2",
		LLMModel:     "nvidia/llama-3.1-nemotron-nano-4b-v1.1",
		MaxTokens:    1024,
		Temperature:  0.15,
		CallTimeout:  180 * time.Second,
	}
}

// Client talks to the NIM embedding and chat endpoints.
type Client struct {
	cfg     Config
	http    *http.Client
	retry   resilience.RetryPolicy
	limiter *resilience.Limiter
	breaker *resilience.Breaker
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithRetryPolicy sets the retry policy for both gateways.
func WithRetryPolicy(p resilience.RetryPolicy) Option {
	return func(c *Client) { c.retry = p }
}

// WithLimiter rate-limits outbound gateway requests.
func WithLimiter(l *resilience.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// WithBreaker protects the gateways with a circuit breaker.
func WithBreaker(b *resilience.Breaker) Option {
	return func(c *Client) { c.breaker = b }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a NIM client.
func NewClient(cfg Config, opts ...Option) *Client {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultConfig().CallTimeout
	}
	c := &Client{
		cfg:   cfg,
		retry: resilience.DefaultRetry,
		http: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   cfg.CallTimeout,
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type embedRequest struct {
	Model     string   `json:"model"`
	Input     []string `json:"input"`
	InputType string   `json:"input_type"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed generates one embedding per input text, preserving input order.
func (c *Client) Embed(ctx context.Context, texts []string, mode EmbedMode) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	payload := embedRequest{Model: c.cfg.EmbedModel, Input: texts, InputType: string(mode)}
	url := strings.TrimRight(c.cfg.EmbedBaseURL, "/") + "/v1/embeddings"

	var out embedResponse
	if err := c.call(ctx, "embedding", url, payload, &out); err != nil {
		return nil, err
	}

	if len(out.Data) != len(texts) {
		return nil, &domain.GatewayError{
			Gateway: "embedding",
			Op:      "embed",
			Err:     fmt.Errorf("expected %d embeddings, got %d", len(texts), len(out.Data)),
		}
	}

	vectors := make([][]float32, len(out.Data))
	for i, d := range out.Data {
		if len(d.Embedding) == 0 {
			return nil, &domain.GatewayError{
				Gateway: "embedding",
				Op:      "embed",
				Err:     fmt.Errorf("empty embedding at position %d", i),
			}
		}
		if i > 0 && len(d.Embedding) != len(vectors[0]) {
			return nil, &domain.GatewayError{
				Gateway: "embedding",
				Op:      "embed",
				Err:     fmt.Errorf("dimension mismatch at position %d: %d != %d", i, len(d.Embedding), len(vectors[0])),
			}
		}
		vectors[i] = d.Embedding
	}
	return vectors, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete generates a chat completion from a system prompt and user message.
func (c *Client) Complete(ctx context.Context, systemPrompt, userMessage string) (string, error) {
	payload := chatRequest{
		Model: c.cfg.LLMModel,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userMessage},
		},
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
	}
	url := strings.TrimRight(c.cfg.LLMBaseURL, "/") + "/v1/chat/completions"

	var out chatResponse
	if err := c.call(ctx, "completion", url, payload, &out); err != nil {
		return "", err
	}

	if len(out.Choices) == 0 {
		return "", &domain.GatewayError{
			Gateway: "completion",
			Op:      "complete",
			Err:     fmt.Errorf("response has no choices"),
		}
	}
	return out.Choices[0].Message.Content, nil
}

// call POSTs a JSON payload with retry, rate limiting, and breaker
// protection, decoding the response into out.
func (c *Client) call(ctx context.Context, gateway, url string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return &domain.GatewayError{Gateway: gateway, Op: "marshal request", Err: err}
	}

	op := func(ctx context.Context) error {
		return c.post(ctx, url, body, out)
	}
	if c.breaker != nil {
		inner := op
		op = func(ctx context.Context) error { return c.breaker.Call(ctx, inner) }
	}
	if c.limiter != nil {
		inner := op
		op = func(ctx context.Context) error { return c.limiter.CallWait(ctx, inner) }
	}

	if err := c.retry.Do(ctx, op); err != nil {
		c.logger.Error("gateway call failed after retries", "gateway", gateway, "url", url, "err", err)
		return &domain.GatewayError{Gateway: gateway, Op: "POST " + url, Err: err}
	}
	return nil
}

func (c *Client) post(ctx context.Context, url string, body []byte, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, truncate(string(data), 500))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
