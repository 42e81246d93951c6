// Command api serves the AlphaAgent research API: POST /api/query runs the
// multi-agent pipeline, /api/health reports readiness, /metrics exposes the
// Prometheus registry.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/AlphaAgentAI/alphaagent-mvp/engine/docstore"
	"github.com/AlphaAgentAI/alphaagent-mvp/engine/domain"
	"github.com/AlphaAgentAI/alphaagent-mvp/engine/quant"
	"github.com/AlphaAgentAI/alphaagent-mvp/engine/rag"
	"github.com/AlphaAgentAI/alphaagent-mvp/engine/semantic"
	"github.com/AlphaAgentAI/alphaagent-mvp/pkg/metrics"
	"github.com/AlphaAgentAI/alphaagent-mvp/pkg/mid"
	"github.com/AlphaAgentAI/alphaagent-mvp/pkg/nim"
	"github.com/AlphaAgentAI/alphaagent-mvp/pkg/resilience"
)

// Config holds all environment-based configuration.
type Config struct {
	Port         string
	DataRoot     string
	IndexFile    string
	EmbedBaseURL string
	LLMBaseURL   string
	EmbedModel   string
	LLMModel     string
	TopK         int
	QdrantURL    string
	Collection   string
	UseQdrant    bool
	CORSOrigin   string
}

func loadConfig() Config {
	return Config{
		Port:         envOr("PORT", "8080"),
		DataRoot:     envOr("DATA_ROOT", "./data"),
		IndexFile:    envOr("INDEX_FILE", "./index/index.jsonl"),
		EmbedBaseURL: envOr("EMBED_BASE_URL", "http://localhost:8001"),
		LLMBaseURL:   envOr("LLM_BASE_URL", "http://localhost:8000"),
		EmbedModel:   envOr("EMBED_MODEL", nim.DefaultConfig().EmbedModel),
		LLMModel:     envOr("LLM_MODEL", nim.DefaultConfig().LLMModel),
		TopK:         envInt("TOP_K", 5),
		QdrantURL:    envOr("QDRANT_URL", "localhost:6334"),
		Collection:   envOr("QDRANT_COLLECTION", "alphaagent"),
		UseQdrant:    envOr("USE_QDRANT", "") == "true",
		CORSOrigin:   envOr("CORS_ORIGIN", "*"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func main() {
	godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := loadConfig()

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Gateways ---
	nimCfg := nim.DefaultConfig()
	nimCfg.EmbedBaseURL = cfg.EmbedBaseURL
	nimCfg.LLMBaseURL = cfg.LLMBaseURL
	nimCfg.EmbedModel = cfg.EmbedModel
	nimCfg.LLMModel = cfg.LLMModel
	gateway := nim.NewClient(nimCfg,
		nim.WithLogger(logger),
		nim.WithBreaker(resilience.NewBreaker(resilience.DefaultBreakerOpts)),
	)

	// --- Searcher: Qdrant or the local JSONL index ---
	searcher, cleanup, err := buildSearcher(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	// --- Metric loader over the document store ---
	store := docstore.NewFS(cfg.DataRoot, ".xlsx")
	loader := quant.NewLoader(store, logger)

	// --- Orchestrator ---
	reg := metrics.New()
	svc := rag.New(gateway, gateway, searcher, loader,
		rag.Options{TopK: cfg.TopK, Tickers: domain.DefaultTickers}, logger, reg)

	// --- HTTP server ---
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", handleHealth)
	mux.Handle("GET /metrics", reg.Handler())
	mux.HandleFunc("POST /api/query", handleQuery(svc, logger))

	handler := mid.Chain(mux,
		mid.Recover(logger),
		mid.OTel("alphaagent-api"),
		mid.Logger(logger),
		mid.CORS(cfg.CORSOrigin),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 300 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

// buildSearcher loads the local JSONL index, or connects to Qdrant when
// USE_QDRANT is set.
func buildSearcher(cfg Config, logger *slog.Logger) (semantic.Searcher, func(), error) {
	if cfg.UseQdrant {
		vs, err := semantic.NewRemote(cfg.QdrantURL, cfg.Collection)
		if err != nil {
			return nil, nil, fmt.Errorf("qdrant connect: %w", err)
		}
		logger.Info("using qdrant searcher", "collection", cfg.Collection)
		return vs, func() { vs.Close() }, nil
	}

	idx, err := semantic.Load(cfg.IndexFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load index: %w", err)
	}
	logger.Info("index loaded", "file", cfg.IndexFile, "chunks", idx.Len(), "dims", idx.Dims())
	return idx, func() {}, nil
}

// --- Handlers ---

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// QueryRequest is the JSON body for POST /api/query.
type QueryRequest struct {
	Question string `json:"question"`
}

func handleQuery(svc *rag.Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req QueryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}
		if req.Question == "" {
			http.Error(w, `{"error":"question is required"}`, http.StatusBadRequest)
			return
		}

		result, err := svc.Query(r.Context(), req.Question)
		if err != nil {
			logger.Error("query failed", "err", err)
			var stepErr *domain.StepError
			if errors.As(err, &stepErr) {
				http.Error(w, fmt.Sprintf(`{"error":"query failed at step %q"}`, stepErr.Step),
					http.StatusBadGateway)
				return
			}
			http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(result)
	}
}
