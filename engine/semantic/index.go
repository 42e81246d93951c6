// Package semantic provides vector similarity search over indexed chunks.
// Two backends share one contract: a flat in-memory index loaded from the
// JSONL file the ingest builder writes, and a remote Qdrant collection. Both
// rank by cosine similarity and return citations without raw embeddings.
package semantic

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/AlphaAgentAI/alphaagent-mvp/engine/domain"
	"github.com/AlphaAgentAI/alphaagent-mvp/engine/ingest"
)

// Searcher ranks chunks by similarity to a query vector.
type Searcher interface {
	Search(ctx context.Context, vector []float32, topK int) ([]domain.Citation, error)
}

// Index is a flat in-memory cosine index. Vectors are L2-normalized at load
// time so a search is one dot product per record. Immutable after New.
type Index struct {
	vectors [][]float32
	chunks  []domain.Chunk
	dims    int
}

// New builds an Index from records. All embeddings must share one dimension.
func New(records []domain.IndexedRecord) (*Index, error) {
	idx := &Index{}
	for i, r := range records {
		if len(r.Embedding) == 0 {
			return nil, fmt.Errorf("semantic: record %d (%s/%d): empty embedding", i, r.DocID, r.ChunkID)
		}
		if idx.dims == 0 {
			idx.dims = len(r.Embedding)
		} else if len(r.Embedding) != idx.dims {
			return nil, fmt.Errorf("semantic: record %d (%s/%d): dimension %d, index has %d",
				i, r.DocID, r.ChunkID, len(r.Embedding), idx.dims)
		}
		idx.vectors = append(idx.vectors, normalize(r.Embedding))
		idx.chunks = append(idx.chunks, r.Chunk())
	}
	return idx, nil
}

// Load reads a JSONL index file and builds an Index from it.
func Load(path string) (*Index, error) {
	records, err := ingest.LoadRecords(path)
	if err != nil {
		return nil, err
	}
	return New(records)
}

// Len returns the number of indexed chunks.
func (idx *Index) Len() int { return len(idx.chunks) }

// Dims returns the embedding dimension, or 0 for an empty index.
func (idx *Index) Dims() int { return idx.dims }

// Search returns the topK most similar chunks in descending score order.
// Ties keep index order. topK larger than the index is clamped; an empty
// index returns no results.
func (idx *Index) Search(_ context.Context, vector []float32, topK int) ([]domain.Citation, error) {
	if topK <= 0 || len(idx.chunks) == 0 {
		return nil, nil
	}
	if len(vector) != idx.dims {
		return nil, fmt.Errorf("semantic: query dimension %d, index has %d", len(vector), idx.dims)
	}

	q := normalize(vector)
	scores := make([]float64, len(idx.vectors))
	for i, v := range idx.vectors {
		scores[i] = dot(q, v)
	}

	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return scores[order[a]] > scores[order[b]] })

	if topK > len(order) {
		topK = len(order)
	}
	results := make([]domain.Citation, topK)
	for i := 0; i < topK; i++ {
		c := idx.chunks[order[i]]
		results[i] = domain.Citation{
			DocID:      c.DocID,
			ChunkID:    c.ChunkID,
			SourcePath: c.SourcePath,
			Text:       c.Text,
			Score:      scores[order[i]],
		}
	}
	return results, nil
}

// normalize returns v scaled to unit length. The epsilon keeps zero vectors
// finite instead of producing NaN scores.
func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum) + 1e-12
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
