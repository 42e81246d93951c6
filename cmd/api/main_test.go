package main

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/AlphaAgentAI/alphaagent-mvp/engine/domain"
	"github.com/AlphaAgentAI/alphaagent-mvp/engine/quant"
	"github.com/AlphaAgentAI/alphaagent-mvp/engine/rag"
	"github.com/AlphaAgentAI/alphaagent-mvp/pkg/nim"
)

type stubEmbed struct{}

func (stubEmbed) Embed(_ context.Context, texts []string, _ nim.EmbedMode) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1}
	}
	return out, nil
}

type stubLLM struct{}

func (stubLLM) Complete(context.Context, string, string) (string, error) {
	return "stub answer", nil
}

type stubSearch struct{}

func (stubSearch) Search(context.Context, []float32, int) ([]domain.Citation, error) {
	return nil, nil
}

type stubMetrics struct{}

func (stubMetrics) Load(context.Context, string) (quant.Metrics, error) {
	return nil, domain.ErrNotFound
}

func testService() *rag.Service {
	return rag.New(stubEmbed{}, stubLLM{}, stubSearch{}, stubMetrics{}, rag.DefaultOptions(), slog.Default(), nil)
}

func TestHandleHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	handleHealth(rec, httptest.NewRequest("GET", "/api/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestHandleQuery(t *testing.T) {
	h := handleQuery(testService(), slog.Default())

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest("POST", "/api/query", strings.NewReader(`{"question":"what changed?"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "stub answer") {
		t.Errorf("body = %s", rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"trace"`) {
		t.Errorf("response missing trace: %s", rec.Body.String())
	}
}

func TestHandleQueryBadRequest(t *testing.T) {
	h := handleQuery(testService(), slog.Default())

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest("POST", "/api/query", strings.NewReader(`not json`)))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed body: status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h(rec, httptest.NewRequest("POST", "/api/query", strings.NewReader(`{"question":""}`)))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty question: status = %d", rec.Code)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg := loadConfig()
	if cfg.Port != "8080" || cfg.TopK != 5 {
		t.Errorf("defaults = %+v", cfg)
	}
}
