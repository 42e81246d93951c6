// Command indexer builds the vector index from the research document corpus.
// It runs one build and exits, or stays resident with -listen and rebuilds on
// NATS request. With -remote the built records are also upserted into Qdrant.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/AlphaAgentAI/alphaagent-mvp/engine/docstore"
	"github.com/AlphaAgentAI/alphaagent-mvp/engine/domain"
	"github.com/AlphaAgentAI/alphaagent-mvp/engine/ingest"
	"github.com/AlphaAgentAI/alphaagent-mvp/engine/semantic"
	"github.com/AlphaAgentAI/alphaagent-mvp/pkg/metrics"
	"github.com/AlphaAgentAI/alphaagent-mvp/pkg/natsutil"
	"github.com/AlphaAgentAI/alphaagent-mvp/pkg/nim"
	"github.com/AlphaAgentAI/alphaagent-mvp/pkg/resilience"
)

// Config holds all environment-based configuration.
type Config struct {
	DataRoot     string
	IndexRoot    string
	EmbedBaseURL string
	EmbedModel   string
	EmbedRate    float64
	NATSURL      string
	QdrantURL    string
	Collection   string

	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Bucket    string
	S3Prefix    string
	S3UseSSL    bool
}

func loadConfig() Config {
	return Config{
		DataRoot:     envOr("DATA_ROOT", "./data"),
		IndexRoot:    envOr("INDEX_ROOT", "./index"),
		EmbedBaseURL: envOr("EMBED_BASE_URL", "http://localhost:8001"),
		EmbedModel:   envOr("EMBED_MODEL", nim.DefaultConfig().EmbedModel),
		EmbedRate:    envFloat("EMBED_RATE", 4),
		NATSURL:      envOr("NATS_URL", "nats://localhost:4222"),
		QdrantURL:    envOr("QDRANT_URL", "localhost:6334"),
		Collection:   envOr("QDRANT_COLLECTION", "alphaagent"),
		S3Endpoint:   envOr("S3_ENDPOINT", ""),
		S3AccessKey:  envOr("S3_ACCESS_KEY", ""),
		S3SecretKey:  envOr("S3_SECRET_KEY", ""),
		S3Bucket:     envOr("S3_BUCKET", "research"),
		S3Prefix:     envOr("S3_PREFIX", ""),
		S3UseSSL:     envOr("S3_USE_SSL", "") == "true",
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func main() {
	var (
		force   = flag.Bool("force", false, "rebuild even if an index exists")
		window  = flag.Int("window", ingest.DefaultWindowChars, "chunk window in characters")
		overlap = flag.Int("overlap", ingest.DefaultOverlapChars, "chunk overlap in characters")
		batch   = flag.Int("batch", ingest.DefaultBatchSize, "embedding batch size")
		remote  = flag.Bool("remote", false, "also upsert records into Qdrant")
		listen  = flag.Bool("listen", false, "stay resident and rebuild on NATS request")
	)
	flag.Parse()

	godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := loadConfig()
	opts := ingest.BuildOptions{
		OutDir:       cfg.IndexRoot,
		DataRoot:     cfg.DataRoot,
		EmbedModel:   cfg.EmbedModel,
		Force:        *force,
		WindowChars:  *window,
		OverlapChars: *overlap,
		BatchSize:    *batch,
	}

	if err := run(cfg, opts, *remote, *listen, logger); err != nil {
		logger.Error("indexer exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, opts ingest.BuildOptions, remote, listen bool, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := buildStore(cfg)
	if err != nil {
		return err
	}

	nimCfg := nim.DefaultConfig()
	nimCfg.EmbedBaseURL = cfg.EmbedBaseURL
	nimCfg.EmbedModel = cfg.EmbedModel
	embedder := nim.NewClient(nimCfg,
		nim.WithLogger(logger),
		nim.WithLimiter(resilience.NewLimiter(cfg.EmbedRate, 1)),
		nim.WithBreaker(resilience.NewBreaker(resilience.DefaultBreakerOpts)),
	)

	reg := metrics.New()
	builder := ingest.NewBuilder(store, embedder, logger, reg)

	manifest, err := builder.Build(ctx, opts)
	switch {
	case err == nil:
		logger.Info("build finished", "chunks", manifest.NumChunks, "documents", manifest.NumDocuments)
	case errors.Is(err, domain.ErrIndexExists):
		logger.Info("existing index kept", "chunks", manifest.NumChunks)
	default:
		return fmt.Errorf("build: %w", err)
	}

	if remote {
		if err := pushRemote(ctx, cfg, manifest); err != nil {
			return err
		}
	}

	if !listen {
		return nil
	}

	nc, err := natsutil.Connect(cfg.NATSURL, "alphaagent-indexer")
	if err != nil {
		return err
	}
	defer nc.Drain()

	consumer := ingest.NewConsumer(builder, nc, opts, logger)
	sub, err := consumer.Start()
	if err != nil {
		return err
	}
	defer sub.Drain()

	logger.Info("indexer listening for build requests", "subject", ingest.SubjectBuild)
	<-ctx.Done()
	logger.Info("shutdown signal received")
	return nil
}

// buildStore selects the object backend when S3 credentials are configured,
// the local filesystem otherwise.
func buildStore(cfg Config) (docstore.Store, error) {
	if cfg.S3Endpoint != "" {
		return docstore.NewObject(docstore.ObjectConfig{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			Prefix:    cfg.S3Prefix,
			UseSSL:    cfg.S3UseSSL,
		})
	}
	return docstore.NewFS(cfg.DataRoot, ".pdf", ".xlsx", ".txt", ".md"), nil
}

// pushRemote mirrors the freshly built index into Qdrant.
func pushRemote(ctx context.Context, cfg Config, manifest domain.IndexManifest) error {
	records, err := ingest.LoadRecords(manifest.IndexFile)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	vs, err := semantic.NewRemote(cfg.QdrantURL, cfg.Collection)
	if err != nil {
		return err
	}
	defer vs.Close()

	if err := vs.EnsureCollection(ctx, len(records[0].Embedding)); err != nil {
		return err
	}
	if err := vs.Upsert(ctx, records); err != nil {
		return err
	}
	slog.Info("records upserted to qdrant", "collection", cfg.Collection, "points", len(records))
	return nil
}
