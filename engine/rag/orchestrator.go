// Package rag orchestrates multi-agent financial research queries. A query
// moves through five strictly sequential steps: classify, retrieve, quant,
// compliance, synthesize. Each executed step appends to the result trace, so
// a caller can audit exactly which agents ran and what they produced.
package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/AlphaAgentAI/alphaagent-mvp/engine/compliance"
	"github.com/AlphaAgentAI/alphaagent-mvp/engine/domain"
	"github.com/AlphaAgentAI/alphaagent-mvp/engine/quant"
	"github.com/AlphaAgentAI/alphaagent-mvp/engine/semantic"
	"github.com/AlphaAgentAI/alphaagent-mvp/pkg/metrics"
	"github.com/AlphaAgentAI/alphaagent-mvp/pkg/nim"
)

// EmbeddingGateway produces query embeddings.
type EmbeddingGateway interface {
	Embed(ctx context.Context, texts []string, mode nim.EmbedMode) ([][]float32, error)
}

// CompletionGateway produces the synthesized answer.
type CompletionGateway interface {
	Complete(ctx context.Context, systemPrompt, userMessage string) (string, error)
}

// MetricSource loads structured metrics for a ticker.
type MetricSource interface {
	Load(ctx context.Context, ticker string) (quant.Metrics, error)
}

// Options configures the orchestrator.
type Options struct {
	// TopK is the number of chunks retrieved per query.
	TopK int
	// Tickers is the entity registry used for detection.
	Tickers []string
}

// DefaultOptions returns the orchestrator defaults.
func DefaultOptions() Options {
	return Options{TopK: 5, Tickers: domain.DefaultTickers}
}

// Service is the multi-agent orchestrator.
type Service struct {
	embed   EmbeddingGateway
	llm     CompletionGateway
	search  semantic.Searcher
	metrics MetricSource
	opts    Options
	logger  *slog.Logger
	reg     *metrics.Registry
}

// New creates an orchestrator Service. logger and reg may be nil.
func New(embed EmbeddingGateway, llm CompletionGateway, search semantic.Searcher, source MetricSource, opts Options, logger *slog.Logger, reg *metrics.Registry) *Service {
	if opts.TopK <= 0 {
		opts.TopK = DefaultOptions().TopK
	}
	if len(opts.Tickers) == 0 {
		opts.Tickers = domain.DefaultTickers
	}
	if logger == nil {
		logger = slog.Default()
	}
	if reg == nil {
		reg = metrics.New()
	}
	return &Service{embed: embed, llm: llm, search: search, metrics: source, opts: opts, logger: logger, reg: reg}
}

var tracer = otel.Tracer("engine/rag")

// Query executes a full multi-agent research query. The returned result is a
// fresh envelope owned by the caller. A gateway failure aborts the query with
// a StepError; no partial result is returned.
func (s *Service) Query(ctx context.Context, question string) (*domain.AgentResult, error) {
	if err := domain.ValidateQuery(question); err != nil {
		return nil, fmt.Errorf("rag: %w", err)
	}

	ctx, span := tracer.Start(ctx, "rag.query")
	defer span.End()

	start := time.Now()
	result := &domain.AgentResult{MathResults: []domain.CalculationResult{}}

	// Step 1: Orchestrator classifies and plans.
	queryType, tickers := s.classify(ctx, question, result)
	s.reg.Counter(metrics.WithLabels("rag_queries_total", "type", string(queryType))).Inc()

	// Step 2: SEC analyst retrieves documents.
	hits, err := s.retrieve(ctx, question, tickers, result)
	if err != nil {
		return nil, &domain.StepError{Step: "retrieve", Err: err}
	}

	// Step 3: Quant analyst loads metrics and calculates.
	formatted, numeric := s.runQuant(ctx, tickers, result)

	// Step 4: Compliance officer checks policy thresholds.
	if (queryType == domain.QueryCompliance || queryType == domain.QueryMemo) && len(tickers) > 0 {
		s.runCompliance(ctx, tickers, numeric, result)
	}

	// Step 5: Synthesis via the completion gateway.
	if err := s.synthesize(ctx, question, queryType, hits, formatted, result); err != nil {
		return nil, &domain.StepError{Step: "synthesize", Err: err}
	}

	result.TotalMS = time.Since(start).Milliseconds()
	s.reg.Histogram("rag_query_duration_seconds", nil).Since(start)
	s.logger.Info("query complete", "type", queryType, "tickers", tickers,
		"citations", len(result.Citations), "total_ms", result.TotalMS)
	return result, nil
}

func (s *Service) classify(ctx context.Context, question string, result *domain.AgentResult) (domain.QueryType, []string) {
	_, span := tracer.Start(ctx, "rag.classify")
	defer span.End()

	t0 := time.Now()
	queryType := Classify(question)
	tickers := DetectTickers(question, s.opts.Tickers)

	detected := "none detected"
	if len(tickers) > 0 {
		detected = strings.Join(tickers, ", ")
	}
	result.Trace = append(result.Trace, domain.AgentStep{
		Agent:         "Orchestrator",
		Action:        "Classify & Plan",
		InputSummary:  truncate(question, 100),
		OutputSummary: fmt.Sprintf("Type: %s | Tickers: %s", queryType, detected),
		DurationMS:    time.Since(t0).Milliseconds(),
	})
	return queryType, tickers
}

func (s *Service) retrieve(ctx context.Context, question string, tickers []string, result *domain.AgentResult) ([]domain.Citation, error) {
	ctx, span := tracer.Start(ctx, "rag.retrieve")
	defer span.End()

	t0 := time.Now()
	searchQuery := question
	if len(tickers) > 0 {
		searchQuery = strings.Join(tickers, " ") + " " + question
	}

	vectors, err := s.embed.Embed(ctx, []string{searchQuery}, nim.ModeQuery)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embed query: got %d vectors for one input", len(vectors))
	}

	hits, err := s.search.Search(ctx, vectors[0], s.opts.TopK)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("search: %w", err)
	}
	result.Citations = hits

	docs := map[string]bool{}
	for _, h := range hits {
		docs[h.DocID] = true
	}
	result.Trace = append(result.Trace, domain.AgentStep{
		Agent:         "SEC Research Analyst",
		Action:        "Document Retrieval (Embeddings + Cosine Search)",
		InputSummary:  truncate(searchQuery, 80),
		OutputSummary: fmt.Sprintf("Retrieved %d chunks from %d documents", len(hits), len(docs)),
		DurationMS:    time.Since(t0).Milliseconds(),
	})
	return hits, nil
}

// runQuant loads each detected ticker's metrics and runs the standard
// calculations. A ticker without a workbook is skipped; metric loading never
// fails the query.
func (s *Service) runQuant(ctx context.Context, tickers []string, result *domain.AgentResult) (map[string]map[string]string, map[string]map[string]float64) {
	ctx, span := tracer.Start(ctx, "rag.quant")
	defer span.End()

	formatted := make(map[string]map[string]string)
	numeric := make(map[string]map[string]float64)

	for _, ticker := range tickers {
		t0 := time.Now()
		m, err := s.metrics.Load(ctx, ticker)
		if err != nil {
			if !errors.Is(err, domain.ErrNotFound) {
				s.logger.Warn("metric load failed", "ticker", ticker, "err", err)
			}
			continue
		}
		if len(m) == 0 {
			continue
		}
		formatted[ticker] = m.Formatted()
		num := m.Numeric()
		numeric[ticker] = num

		if cur, ok := num["CapEx_Current"]; ok {
			if prior, ok := num["CapEx_Prior"]; ok {
				r := quant.YoYVariance(cur, prior)
				r.Ticker = ticker
				r.Calculation = "CapEx YoY Variance"
				result.MathResults = append(result.MathResults, r)
			}
		}
		if ebitda, ok := num["EBITDA_TTM"]; ok {
			if revenue, ok := num["Revenue_TTM"]; ok {
				r := quant.Margin(ebitda, revenue, "EBITDA")
				r.Ticker = ticker
				result.MathResults = append(result.MathResults, r)
			}
		}
		if ratio, ok := num["NetDebt_to_EBITDA"]; ok {
			// Net debt is re-derived as ratio * EBITDA so the calculation
			// shows its inputs; EBITDA defaults to 1 when absent.
			// TODO: add a NetDebt_USD_B row to the workbooks and use it here
			// instead of reconstructing from the ratio.
			ebitda := 1.0
			if v, ok := num["EBITDA_TTM"]; ok {
				ebitda = v
			}
			r := quant.Leverage(ratio*ebitda, ebitda)
			r.Ticker = ticker
			result.MathResults = append(result.MathResults, r)
		}

		result.Trace = append(result.Trace, domain.AgentStep{
			Agent:         "Quant Analyst",
			Action:        fmt.Sprintf("Load Metrics + Calculate (%s)", ticker),
			InputSummary:  fmt.Sprintf("XLSX: %s", quant.Key(ticker)),
			OutputSummary: fmt.Sprintf("Loaded %d metrics, ran %d calculations", len(m), len(result.MathResults)),
			DurationMS:    time.Since(t0).Milliseconds(),
		})
	}
	return formatted, numeric
}

// runCompliance checks each ticker with metrics against the policy table.
// When several tickers are checked the result keeps the last assessment,
// matching the single-slot compliance field of the result envelope.
func (s *Service) runCompliance(ctx context.Context, tickers []string, numeric map[string]map[string]float64, result *domain.AgentResult) {
	_, span := tracer.Start(ctx, "rag.compliance")
	defer span.End()

	for _, ticker := range tickers {
		t0 := time.Now()
		num := numeric[ticker]

		check := map[string]float64{}
		if cur, ok := num["CapEx_Current"]; ok {
			if prior, ok := num["CapEx_Prior"]; ok && prior != 0 {
				check["capex_yoy_pct"] = (cur - prior) / prior * 100
			}
		}
		if ratio, ok := num["NetDebt_to_EBITDA"]; ok {
			check["leverage_ratio"] = ratio
		}
		if v, ok := num["VaR_99_1d"]; ok {
			check["var_99_usd_m"] = v
		}
		if len(check) == 0 {
			continue
		}

		assessment := compliance.Run(check, ticker)
		result.Compliance = &assessment
		result.Trace = append(result.Trace, domain.AgentStep{
			Agent:         "Compliance Officer",
			Action:        fmt.Sprintf("Policy Threshold Check (%s)", ticker),
			InputSummary:  fmt.Sprintf("Checking %d metrics against internal policies", len(check)),
			OutputSummary: fmt.Sprintf("Status: %s | %d flags", assessment.OverallStatus, assessment.Flags),
			DurationMS:    time.Since(t0).Milliseconds(),
		})
	}
}

func (s *Service) synthesize(ctx context.Context, question string, queryType domain.QueryType, hits []domain.Citation, formatted map[string]map[string]string, result *domain.AgentResult) error {
	ctx, span := tracer.Start(ctx, "rag.synthesize")
	defer span.End()

	t0 := time.Now()
	userMessage := buildGroundingMessage(question, hits, formatted, result)

	answer, err := s.llm.Complete(ctx, Persona(queryType), userMessage)
	if err != nil {
		span.RecordError(err)
		return err
	}
	result.Answer = answer
	result.Trace = append(result.Trace, domain.AgentStep{
		Agent:         "Synthesis LLM",
		Action:        "Generate Response with Citations",
		InputSummary:  fmt.Sprintf("Context: %d doc chunks + %d ticker metrics", len(hits), len(formatted)),
		OutputSummary: fmt.Sprintf("Generated %d chars", len(answer)),
		DurationMS:    time.Since(t0).Milliseconds(),
	})
	return nil
}

// buildGroundingMessage assembles the single user message carrying all
// grounding: retrieved chunks, structured metrics, deterministic calculation
// results, and the compliance assessment when present.
func buildGroundingMessage(question string, hits []domain.Citation, formatted map[string]map[string]string, result *domain.AgentResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "User Question:\n%s\n\n", question)

	b.WriteString("RETRIEVED DOCUMENTS:\n")
	for i, h := range hits {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[Source: %s | score=%.3f] %s", h.DocID, h.Score, h.Text)
	}

	if len(formatted) > 0 {
		b.WriteString("\n\nSTRUCTURED METRICS (from XLSX):\n")
		for _, ticker := range sortedTickers(formatted) {
			fmt.Fprintf(&b, "\n--- %s Key Metrics ---\n", ticker)
			m := formatted[ticker]
			names := make([]string, 0, len(m))
			for name := range m {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Fprintf(&b, "  %s: %s\n", name, m[name])
			}
		}
	}

	if len(result.MathResults) > 0 {
		b.WriteString("\n\nCALCULATION RESULTS (deterministic, not generated):\n")
		for _, r := range result.MathResults {
			fmt.Fprintf(&b, "  [%s] %s: %s\n", r.Ticker, r.Calculation, r.Result)
			if r.Interpretation != "" {
				fmt.Fprintf(&b, "    %s\n", r.Interpretation)
			}
		}
	}

	if result.Compliance != nil {
		fmt.Fprintf(&b, "\n\n--- Compliance Assessment ---\n%s", compliance.FormatReport(*result.Compliance))
	}
	return b.String()
}

func sortedTickers(m map[string]map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
