package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/AlphaAgentAI/alphaagent-mvp/engine/domain"
	"github.com/AlphaAgentAI/alphaagent-mvp/engine/quant"
	"github.com/AlphaAgentAI/alphaagent-mvp/pkg/nim"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		question string
		want     domain.QueryType
	}{
		{"Draft an investment memo for ALPH", domain.QueryMemo},
		{"memo on compliance posture", domain.QueryMemo}, // memo outranks compliance
		{"Does ALPH violate any surveillance policy?", domain.QueryCompliance},
		{"Compare ALPH and BETA margins", domain.QueryComparative},
		{"ALPH versus BETA", domain.QueryComparative},
		{"Calculate the YoY CapEx variance for ALPH", domain.QueryMath},
		{"What did ALPH report last quarter?", domain.QueryRAG},
	}
	for _, tt := range tests {
		if got := Classify(tt.question); got != tt.want {
			t.Errorf("Classify(%q) = %s, want %s", tt.question, got, tt.want)
		}
	}
}

func TestDetectTickers(t *testing.T) {
	registry := []string{"ALPH", "BETA", "GAMM"}

	got := DetectTickers("how is beta doing against ALPH?", registry)
	if len(got) != 2 || got[0] != "ALPH" || got[1] != "BETA" {
		t.Errorf("got %v, want [ALPH BETA] in registry order", got)
	}

	if got := DetectTickers("ALPHABET earnings", registry); got != nil {
		t.Errorf("substring must not match: got %v", got)
	}
	if got := DetectTickers("nothing relevant", registry); got != nil {
		t.Errorf("got %v, want none", got)
	}
}

func TestPersonaExhaustive(t *testing.T) {
	for _, qt := range []domain.QueryType{
		domain.QueryRAG, domain.QueryMemo, domain.QueryCompliance,
		domain.QueryComparative, domain.QueryMath,
	} {
		if Persona(qt) == "" {
			t.Errorf("no persona for %s", qt)
		}
	}
}

type fakeEmbed struct {
	err error
}

func (f *fakeEmbed) Embed(_ context.Context, texts []string, _ nim.EmbedMode) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

type fakeLLM struct {
	system string
	user   string
	err    error
}

func (f *fakeLLM) Complete(_ context.Context, system, user string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.system = system
	f.user = user
	return "synthesized answer", nil
}

type fakeSearch struct {
	hits []domain.Citation
	err  error
}

func (f *fakeSearch) Search(context.Context, []float32, int) ([]domain.Citation, error) {
	return f.hits, f.err
}

type fakeMetrics struct {
	byTicker map[string]quant.Metrics
}

func (f *fakeMetrics) Load(_ context.Context, ticker string) (quant.Metrics, error) {
	m, ok := f.byTicker[ticker]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return m, nil
}

func metricRows(values map[string]float64) quant.Metrics {
	var m quant.Metrics
	for _, name := range []string{
		"Revenue_TTM", "EBITDA_TTM", "CapEx_Current", "CapEx_Prior",
		"NetDebt_to_EBITDA", "VaR_99_1d",
	} {
		if v, ok := values[name]; ok {
			m = append(m, quant.Row{Name: name, Value: v, HasValue: true, Unit: "USD B"})
		}
	}
	return m
}

func newTestService(embed *fakeEmbed, llm *fakeLLM, search *fakeSearch, source *fakeMetrics) *Service {
	return New(embed, llm, search, source, DefaultOptions(), nil, nil)
}

func TestQueryMemoFullPipeline(t *testing.T) {
	search := &fakeSearch{hits: []domain.Citation{
		{DocID: "ALPH_10K.pdf", ChunkID: 0, Text: "capex grew sharply", Score: 0.91},
		{DocID: "ALPH_10K.pdf", ChunkID: 3, Text: "leverage increased", Score: 0.85},
	}}
	llm := &fakeLLM{}
	source := &fakeMetrics{byTicker: map[string]quant.Metrics{
		"ALPH": metricRows(map[string]float64{
			"Revenue_TTM":       12.4,
			"EBITDA_TTM":        3.1,
			"CapEx_Current":     1.85,
			"CapEx_Prior":       1.42,
			"NetDebt_to_EBITDA": 2.8,
			"VaR_99_1d":         12,
		}),
	}}
	svc := newTestService(&fakeEmbed{}, llm, search, source)

	result, err := svc.Query(context.Background(), "Write an investment memo for ALPH")
	if err != nil {
		t.Fatal(err)
	}

	if result.Answer != "synthesized answer" {
		t.Errorf("Answer = %q", result.Answer)
	}
	if len(result.Citations) != 2 {
		t.Errorf("Citations = %d, want 2", len(result.Citations))
	}
	if len(result.MathResults) != 3 {
		t.Fatalf("MathResults = %d, want 3", len(result.MathResults))
	}
	if result.MathResults[0].Calculation != "CapEx YoY Variance" || result.MathResults[0].Result != "+30.28%" {
		t.Errorf("yoy = %+v", result.MathResults[0])
	}
	if result.MathResults[2].Result != "2.80x" {
		t.Errorf("leverage = %+v", result.MathResults[2])
	}

	if result.Compliance == nil {
		t.Fatal("memo query with metrics must run compliance")
	}
	if result.Compliance.OverallStatus != domain.StatusFlag {
		t.Errorf("compliance status = %s, want FLAG (leverage 2.8 > 2.5)", result.Compliance.OverallStatus)
	}

	agents := make([]string, len(result.Trace))
	for i, step := range result.Trace {
		agents[i] = step.Agent
	}
	want := []string{"Orchestrator", "SEC Research Analyst", "Quant Analyst", "Compliance Officer", "Synthesis LLM"}
	if len(agents) != len(want) {
		t.Fatalf("trace = %v, want %v", agents, want)
	}
	for i := range want {
		if agents[i] != want[i] {
			t.Fatalf("trace = %v, want %v", agents, want)
		}
	}

	if !strings.Contains(llm.system, "Investment Brief Writer") {
		t.Error("memo query must use the summarization persona")
	}
	for _, section := range []string{
		"RETRIEVED DOCUMENTS:",
		"[Source: ALPH_10K.pdf | score=0.910] capex grew sharply",
		"STRUCTURED METRICS (from XLSX):",
		"--- ALPH Key Metrics ---",
		"CALCULATION RESULTS (deterministic, not generated):",
		"[ALPH] CapEx YoY Variance: +30.28%",
		"--- Compliance Assessment ---",
	} {
		if !strings.Contains(llm.user, section) {
			t.Errorf("grounding message missing %q", section)
		}
	}
}

func TestQueryPlainRAGSkipsQuantAndCompliance(t *testing.T) {
	svc := newTestService(&fakeEmbed{}, &fakeLLM{}, &fakeSearch{}, &fakeMetrics{})

	result, err := svc.Query(context.Background(), "Summarize the latest filings")
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Trace) != 3 {
		t.Errorf("trace has %d steps, want 3 (classify, retrieve, synthesize)", len(result.Trace))
	}
	if result.Compliance != nil {
		t.Error("no compliance step expected")
	}
	if len(result.MathResults) != 0 {
		t.Errorf("MathResults = %d, want 0", len(result.MathResults))
	}
}

func TestQueryComplianceLastEntityWins(t *testing.T) {
	source := &fakeMetrics{byTicker: map[string]quant.Metrics{
		"ALPH": metricRows(map[string]float64{"NetDebt_to_EBITDA": 1.2}),
		"BETA": metricRows(map[string]float64{"NetDebt_to_EBITDA": 2.9}),
	}}
	svc := newTestService(&fakeEmbed{}, &fakeLLM{}, &fakeSearch{}, source)

	result, err := svc.Query(context.Background(), "Run a policy audit for ALPH and BETA")
	if err != nil {
		t.Fatal(err)
	}
	if result.Compliance == nil {
		t.Fatal("expected a compliance assessment")
	}
	if result.Compliance.Ticker != "BETA" {
		t.Errorf("Compliance.Ticker = %s, want BETA (last checked entity)", result.Compliance.Ticker)
	}
}

func TestQueryEmbedFailureIsStepError(t *testing.T) {
	svc := newTestService(&fakeEmbed{err: errors.New("gateway down")}, &fakeLLM{}, &fakeSearch{}, &fakeMetrics{})

	result, err := svc.Query(context.Background(), "anything")
	if result != nil {
		t.Error("no partial result on gateway failure")
	}
	var stepErr *domain.StepError
	if !errors.As(err, &stepErr) || stepErr.Step != "retrieve" {
		t.Errorf("err = %v, want StepError{Step: retrieve}", err)
	}
}

func TestQuerySynthesisFailureIsStepError(t *testing.T) {
	svc := newTestService(&fakeEmbed{}, &fakeLLM{err: errors.New("llm down")}, &fakeSearch{}, &fakeMetrics{})

	result, err := svc.Query(context.Background(), "anything")
	if result != nil {
		t.Error("no partial result on gateway failure")
	}
	var stepErr *domain.StepError
	if !errors.As(err, &stepErr) || stepErr.Step != "synthesize" {
		t.Errorf("err = %v, want StepError{Step: synthesize}", err)
	}
}

func TestQueryRejectsEmptyQuestion(t *testing.T) {
	svc := newTestService(&fakeEmbed{}, &fakeLLM{}, &fakeSearch{}, &fakeMetrics{})
	if _, err := svc.Query(context.Background(), ""); err == nil {
		t.Error("empty question must be rejected")
	}
}

func TestQueryMissingMetricsTolerated(t *testing.T) {
	svc := newTestService(&fakeEmbed{}, &fakeLLM{}, &fakeSearch{}, &fakeMetrics{})

	result, err := svc.Query(context.Background(), "Audit GAMM compliance posture")
	if err != nil {
		t.Fatal(err)
	}
	if result.Compliance != nil {
		t.Error("no metrics means no compliance assessment")
	}
}
