// Package ingest builds the vector index: it enumerates a document store,
// extracts text, chunks it into overlapping windows, embeds the chunks, and
// writes a JSONL index file plus a manifest describing the build.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/AlphaAgentAI/alphaagent-mvp/engine/docstore"
	"github.com/AlphaAgentAI/alphaagent-mvp/engine/domain"
	"github.com/AlphaAgentAI/alphaagent-mvp/pkg/fn"
	"github.com/AlphaAgentAI/alphaagent-mvp/pkg/metrics"
	"github.com/AlphaAgentAI/alphaagent-mvp/pkg/nim"
)

const (
	// IndexFileName is the JSONL index written into the output directory.
	IndexFileName = "index.jsonl"
	// ManifestFileName is the build manifest written next to the index.
	ManifestFileName = "manifest.json"
	// DefaultBatchSize is the number of chunks embedded per gateway call.
	DefaultBatchSize = 16
)

// Embedder generates one vector per input text, preserving order.
type Embedder interface {
	Embed(ctx context.Context, texts []string, mode nim.EmbedMode) ([][]float32, error)
}

// BuildOptions configures one index build.
type BuildOptions struct {
	// OutDir receives the index file and manifest.
	OutDir string
	// DataRoot labels the document source in the manifest.
	DataRoot string
	// EmbedModel labels the embedding model in the manifest.
	EmbedModel string
	// Force rebuilds even when a manifest already exists.
	Force bool

	WindowChars  int
	OverlapChars int
	BatchSize    int
}

func (o *BuildOptions) defaults() {
	if o.WindowChars == 0 {
		o.WindowChars = DefaultWindowChars
	}
	if o.OverlapChars == 0 {
		o.OverlapChars = DefaultOverlapChars
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
}

// Builder turns a document store into an on-disk vector index.
type Builder struct {
	store    docstore.Store
	embedder Embedder
	logger   *slog.Logger
	reg      *metrics.Registry
}

// NewBuilder creates a Builder. logger and reg may be nil.
func NewBuilder(store docstore.Store, embedder Embedder, logger *slog.Logger, reg *metrics.Registry) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	if reg == nil {
		reg = metrics.New()
	}
	return &Builder{store: store, embedder: embedder, logger: logger, reg: reg}
}

// docText pairs a document key with its extracted text.
type docText struct {
	key  string
	text string
}

// Build runs a full index build. If a manifest already exists in OutDir and
// Force is not set, the existing manifest is returned along with
// domain.ErrIndexExists. Documents whose extraction fails are skipped and
// recorded in the manifest, never aborting the build.
func (b *Builder) Build(ctx context.Context, opts BuildOptions) (domain.IndexManifest, error) {
	opts.defaults()
	if err := domain.ValidateChunking(opts.WindowChars, opts.OverlapChars); err != nil {
		return domain.IndexManifest{}, fmt.Errorf("ingest: %w", err)
	}

	manifestPath := filepath.Join(opts.OutDir, ManifestFileName)
	if !opts.Force {
		if existing, err := LoadManifest(manifestPath); err == nil {
			b.logger.Info("index already built, skipping", "manifest", manifestPath,
				"chunks", existing.NumChunks)
			return existing, fmt.Errorf("ingest: %s: %w", opts.OutDir, domain.ErrIndexExists)
		}
	}

	start := time.Now()
	entries, err := b.store.List(ctx)
	if err != nil {
		return domain.IndexManifest{}, fmt.Errorf("ingest: list documents: %w", err)
	}

	extract := fn.TracedStage("ingest.extract", b.extractStage())

	var (
		chunks  []domain.Chunk
		skipped []string
		numDocs int
	)
	for _, entry := range entries {
		if _, ok := ExtractorFor(entry.Key); !ok {
			continue
		}

		res := extract(ctx, entry.Key)
		if res.IsErr() {
			_, err := res.Unwrap()
			b.logger.Warn("document skipped", "key", entry.Key, "err", err)
			b.reg.Counter("ingest_documents_skipped_total").Inc()
			skipped = append(skipped, entry.Key)
			continue
		}
		doc, _ := res.Unwrap()

		windows := ChunkText(doc.text, opts.WindowChars, opts.OverlapChars)
		if len(windows) == 0 {
			b.logger.Warn("document yielded no text", "key", entry.Key)
			skipped = append(skipped, entry.Key)
			continue
		}
		for i, w := range windows {
			chunks = append(chunks, domain.Chunk{
				DocID:      entry.Key,
				ChunkID:    i,
				Text:       w,
				SourcePath: entry.Key,
			})
		}
		numDocs++
		b.reg.Counter("ingest_documents_indexed_total").Inc()
	}

	records, err := b.embedChunks(ctx, chunks, opts.BatchSize)
	if err != nil {
		return domain.IndexManifest{}, err
	}

	if err := os.MkdirAll(opts.OutDir, 0o755); err != nil {
		return domain.IndexManifest{}, fmt.Errorf("ingest: create output dir: %w", err)
	}
	indexPath := filepath.Join(opts.OutDir, IndexFileName)
	if err := writeJSONL(indexPath, records); err != nil {
		return domain.IndexManifest{}, err
	}

	manifest := domain.IndexManifest{
		NumChunks:    len(records),
		NumDocuments: numDocs,
		DataRoot:     opts.DataRoot,
		IndexFile:    indexPath,
		EmbedModel:   opts.EmbedModel,
		ChunkChars:   opts.WindowChars,
		ChunkOverlap: opts.OverlapChars,
		Skipped:      skipped,
	}
	if err := writeManifest(manifestPath, manifest); err != nil {
		return domain.IndexManifest{}, err
	}

	b.reg.Counter("ingest_chunks_indexed_total").Add(int64(len(records)))
	b.logger.Info("index build complete",
		"documents", numDocs, "chunks", len(records), "skipped", len(skipped),
		"elapsed", time.Since(start).Round(time.Millisecond))
	return manifest, nil
}

// extractStage is the per-document read-and-extract pipeline stage.
func (b *Builder) extractStage() fn.Stage[string, docText] {
	return func(ctx context.Context, key string) fn.Result[docText] {
		data, err := b.store.Read(ctx, key)
		if err != nil {
			return fn.Err[docText](&domain.ExtractionError{Path: key, Err: err})
		}
		ex, ok := ExtractorFor(key)
		if !ok {
			return fn.Err[docText](&domain.ExtractionError{Path: key, Err: fmt.Errorf("unsupported format")})
		}
		text, err := ex(data)
		if err != nil {
			return fn.Err[docText](&domain.ExtractionError{Path: key, Err: err})
		}
		return fn.Ok(docText{key: key, text: text})
	}
}

// embedChunks embeds chunks in fixed-size sequential batches, preserving
// chunk order across batch boundaries.
func (b *Builder) embedChunks(ctx context.Context, chunks []domain.Chunk, batchSize int) ([]domain.IndexedRecord, error) {
	records := make([]domain.IndexedRecord, 0, len(chunks))
	for lo := 0; lo < len(chunks); lo += batchSize {
		hi := min(lo+batchSize, len(chunks))
		batch := chunks[lo:hi]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}
		vectors, err := b.embedder.Embed(ctx, texts, nim.ModePassage)
		if err != nil {
			return nil, fmt.Errorf("ingest: embed batch %d-%d: %w", lo, hi, err)
		}
		if len(vectors) != len(batch) {
			return nil, fmt.Errorf("ingest: embed batch %d-%d: got %d vectors for %d chunks", lo, hi, len(vectors), len(batch))
		}
		for i, c := range batch {
			records = append(records, domain.IndexedRecord{
				DocID:      c.DocID,
				ChunkID:    c.ChunkID,
				SourcePath: c.SourcePath,
				Text:       c.Text,
				Embedding:  vectors[i],
			})
		}
		b.logger.Debug("embedded batch", "from", lo, "to", hi)
	}
	return records, nil
}

// writeJSONL writes records one JSON object per line, atomically via a
// temp file rename.
func writeJSONL(path string, records []domain.IndexedRecord) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".index-*.jsonl")
	if err != nil {
		return fmt.Errorf("ingest: create index file: %w", err)
	}
	defer os.Remove(tmp.Name())

	enc := json.NewEncoder(tmp)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			tmp.Close()
			return fmt.Errorf("ingest: write index record: %w", err)
		}
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("ingest: close index file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("ingest: finalize index file: %w", err)
	}
	return nil
}

func writeManifest(path string, m domain.IndexManifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("ingest: marshal manifest: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("ingest: write manifest: %w", err)
	}
	return nil
}

// LoadRecords reads a JSONL index file back into memory. Records keep their
// file order, which is also chunk order within each document.
func LoadRecords(path string) ([]domain.IndexedRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("ingest: index %s: %w", path, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("ingest: open index: %w", err)
	}
	defer f.Close()

	var records []domain.IndexedRecord
	dec := json.NewDecoder(f)
	for dec.More() {
		var r domain.IndexedRecord
		if err := dec.Decode(&r); err != nil {
			return nil, fmt.Errorf("ingest: decode record %d: %w", len(records), err)
		}
		records = append(records, r)
	}
	return records, nil
}

// LoadManifest reads a build manifest from disk.
func LoadManifest(path string) (domain.IndexManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.IndexManifest{}, fmt.Errorf("ingest: manifest %s: %w", path, domain.ErrNotFound)
		}
		return domain.IndexManifest{}, fmt.Errorf("ingest: read manifest: %w", err)
	}
	var m domain.IndexManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return domain.IndexManifest{}, fmt.Errorf("ingest: decode manifest %s: %w", path, err)
	}
	return m, nil
}
