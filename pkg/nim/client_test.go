package nim

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AlphaAgentAI/alphaagent-mvp/engine/domain"
	"github.com/AlphaAgentAI/alphaagent-mvp/pkg/resilience"
)

func fastRetry() resilience.RetryPolicy {
	return resilience.RetryPolicy{MaxAttempts: 3, InitialWait: time.Millisecond}
}

func TestEmbedSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req embedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if req.InputType != "passage" {
			t.Errorf("expected input_type passage, got %s", req.InputType)
		}
		resp := map[string]any{"data": []map[string]any{
			{"embedding": []float32{1, 0}},
			{"embedding": []float32{0, 1}},
		}}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := NewClient(Config{EmbedBaseURL: srv.URL, CallTimeout: time.Second}, WithRetryPolicy(fastRetry()))
	vecs, err := c.Embed(context.Background(), []string{"a", "b"}, ModePassage)
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(vecs) != 2 || vecs[0][0] != 1 || vecs[1][1] != 1 {
		t.Errorf("unexpected vectors: %v", vecs)
	}
}

func TestEmbedEmptyInput(t *testing.T) {
	c := NewClient(Config{EmbedBaseURL: "http://unused"})
	vecs, err := c.Embed(context.Background(), nil, ModeQuery)
	if err != nil || vecs != nil {
		t.Errorf("empty input should be a no-op, got %v %v", vecs, err)
	}
}

func TestEmbedCountMismatchIsGatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"data": []map[string]any{{"embedding": []float32{1}}}})
	}))
	defer srv.Close()

	c := NewClient(Config{EmbedBaseURL: srv.URL, CallTimeout: time.Second}, WithRetryPolicy(fastRetry()))
	_, err := c.Embed(context.Background(), []string{"a", "b"}, ModePassage)
	var ge *domain.GatewayError
	if !errors.As(err, &ge) {
		t.Fatalf("expected GatewayError, got %v", err)
	}
	if ge.Gateway != "embedding" {
		t.Errorf("unexpected gateway: %s", ge.Gateway)
	}
}

func TestEmbedRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"data": []map[string]any{{"embedding": []float32{1}}}})
	}))
	defer srv.Close()

	c := NewClient(Config{EmbedBaseURL: srv.URL, CallTimeout: time.Second}, WithRetryPolicy(fastRetry()))
	vecs, err := c.Embed(context.Background(), []string{"a"}, ModeQuery)
	if err != nil {
		t.Fatalf("expected success after retries: %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", calls.Load())
	}
	if len(vecs) != 1 {
		t.Errorf("unexpected vectors: %v", vecs)
	}
}

func TestEmbedExhaustedRetriesSurfaceGatewayError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(Config{EmbedBaseURL: srv.URL, CallTimeout: time.Second}, WithRetryPolicy(fastRetry()))
	_, err := c.Embed(context.Background(), []string{"a"}, ModeQuery)
	var ge *domain.GatewayError
	if !errors.As(err, &ge) {
		t.Fatalf("expected GatewayError, got %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestCompleteSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Errorf("unexpected messages: %+v", req.Messages)
		}
		resp := map[string]any{"choices": []map[string]any{
			{"message": map[string]any{"content": "cited answer"}},
		}}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := NewClient(Config{LLMBaseURL: srv.URL, MaxTokens: 64, CallTimeout: time.Second}, WithRetryPolicy(fastRetry()))
	text, err := c.Complete(context.Background(), "you are an analyst", "what is revenue?")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if text != "cited answer" {
		t.Errorf("unexpected text: %q", text)
	}
}

func TestCompleteMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer srv.Close()

	c := NewClient(Config{LLMBaseURL: srv.URL, CallTimeout: time.Second}, WithRetryPolicy(fastRetry()))
	_, err := c.Complete(context.Background(), "s", "u")
	var ge *domain.GatewayError
	if !errors.As(err, &ge) {
		t.Fatalf("expected GatewayError, got %v", err)
	}
	if ge.Gateway != "completion" {
		t.Errorf("unexpected gateway: %s", ge.Gateway)
	}
}

func TestBreakerShortCircuitsGateway(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	breaker := resilience.NewBreaker(resilience.BreakerOpts{FailThreshold: 2, Cooldown: time.Minute})
	c := NewClient(Config{LLMBaseURL: srv.URL, CallTimeout: time.Second},
		WithRetryPolicy(resilience.RetryPolicy{MaxAttempts: 1}),
		WithBreaker(breaker),
	)

	_, _ = c.Complete(context.Background(), "s", "u")
	_, _ = c.Complete(context.Background(), "s", "u")
	_, err := c.Complete(context.Background(), "s", "u")
	if !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Errorf("expected circuit open, got %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("breaker should stop the third call, got %d calls", calls.Load())
	}
}
