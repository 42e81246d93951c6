// Package domain defines core domain types, constants, and validation for the
// AlphaAgent engine. Every pipeline and orchestration package builds on these
// types; the on-disk index record and manifest shapes here are a compatibility
// surface and must round-trip exactly.
package domain

// Chunk is a bounded text window extracted from a document for embedding.
// ChunkID is 0-based and contiguous within a document.
type Chunk struct {
	DocID      string `json:"doc_id"`
	ChunkID    int    `json:"chunk_id"`
	Text       string `json:"text"`
	SourcePath string `json:"source_path"`
}

// IndexedRecord is a Chunk plus its embedding vector. One record per chunk,
// serialized as one JSON line in the index file. Embedding length is constant
// across a whole index (the embedding model's output dimension).
type IndexedRecord struct {
	DocID      string    `json:"doc_id"`
	ChunkID    int       `json:"chunk_id"`
	SourcePath string    `json:"source_path"`
	Text       string    `json:"text"`
	Embedding  []float32 `json:"embedding"`
}

// Chunk returns the record's chunk without the embedding.
func (r IndexedRecord) Chunk() Chunk {
	return Chunk{DocID: r.DocID, ChunkID: r.ChunkID, Text: r.Text, SourcePath: r.SourcePath}
}

// IndexManifest summarizes one index build. Recomputed on every build, never
// mutated afterward. Field names match the manifest.json written next to the
// index file.
type IndexManifest struct {
	NumChunks    int      `json:"num_chunks"`
	NumDocuments int      `json:"num_documents"`
	DataRoot     string   `json:"data_root"`
	IndexFile    string   `json:"index_file"`
	EmbedModel   string   `json:"embed_model"`
	ChunkChars   int      `json:"chunk_chars"`
	ChunkOverlap int      `json:"chunk_overlap"`
	Skipped      []string `json:"skipped,omitempty"`
}

// Metric is one structured financial metric scoped to a ticker.
type Metric struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
	Note  string  `json:"note"`
}

// CalculationResult is the output of one deterministic financial calculation.
// A failed calculation (division by zero, missing input) is still a result:
// Failed is set and Result holds the explanatory string, so the trace stays
// complete and auditable.
type CalculationResult struct {
	Ticker         string `json:"ticker,omitempty"`
	Calculation    string `json:"calculation"`
	Formula        string `json:"formula"`
	Inputs         string `json:"inputs"`
	Result         string `json:"result"`
	AbsoluteChange string `json:"absolute_change,omitempty"`
	Direction      string `json:"direction,omitempty"`
	Interpretation string `json:"interpretation,omitempty"`
	Failed         bool   `json:"failed,omitempty"`
}

// Status is a compliance check outcome.
type Status string

const (
	StatusPass Status = "PASS"
	StatusFlag Status = "FLAG"
)

// PolicyFinding is the outcome of checking one metric against one policy
// threshold.
type PolicyFinding struct {
	Metric            string  `json:"metric"`
	Value             float64 `json:"value"`
	Threshold         float64 `json:"threshold"`
	Direction         string  `json:"direction"`
	Status            Status  `json:"status"`
	Detail            string  `json:"detail"`
	PolicyRef         string  `json:"policy_ref,omitempty"`
	PolicyDescription string  `json:"policy_description,omitempty"`
}

// ComplianceResult aggregates policy findings for one ticker. OverallStatus
// is FLAG iff any finding is FLAG.
type ComplianceResult struct {
	Ticker         string          `json:"ticker"`
	OverallStatus  Status          `json:"overall_status"`
	TotalChecks    int             `json:"total_checks"`
	Flags          int             `json:"flags"`
	Passes         int             `json:"passes"`
	Findings       []PolicyFinding `json:"findings"`
	Recommendation string          `json:"recommendation"`
}

// AgentStep records a single step of the orchestration trace, ordered by
// execution time, append-only.
type AgentStep struct {
	Agent         string `json:"agent"`
	Action        string `json:"action"`
	InputSummary  string `json:"input_summary"`
	OutputSummary string `json:"output_summary"`
	DurationMS    int64  `json:"duration_ms"`
}

// Citation is a retrieved chunk returned to the caller: an IndexedRecord
// minus the raw embedding, plus its similarity score.
type Citation struct {
	DocID      string  `json:"doc_id"`
	ChunkID    int     `json:"chunk_id"`
	SourcePath string  `json:"source_path"`
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
}

// AgentResult is the per-query envelope: final answer, ordered trace,
// citations, optional compliance assessment, calculation results, and total
// elapsed time. Created fresh per query and owned by the caller.
type AgentResult struct {
	Answer      string              `json:"answer"`
	Trace       []AgentStep         `json:"trace"`
	Citations   []Citation          `json:"citations"`
	Compliance  *ComplianceResult   `json:"compliance,omitempty"`
	MathResults []CalculationResult `json:"math_results"`
	TotalMS     int64               `json:"total_ms"`
}

// QueryType classifies a user query for agent routing.
type QueryType string

const (
	QueryRAG         QueryType = "rag"
	QueryMemo        QueryType = "memo"
	QueryCompliance  QueryType = "compliance"
	QueryComparative QueryType = "comparative"
	QueryMath        QueryType = "math"
)

// DefaultTickers is the registry of tracked entities in the research dataset.
var DefaultTickers = []string{"ALPH", "BETA", "GAMM"}
