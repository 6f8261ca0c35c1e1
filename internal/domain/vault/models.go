// Package vault maintains the searchable index over the user's note
// collection: markdown files are chunked, mirrored into SQLite (plus an FTS5
// shadow table), embedded on demand, and queried through a hybrid
// BM25 + vector retriever.
package vault

import "time"

// RetrievalMethod identifies how a retrieved chunk was ranked.
type RetrievalMethod string

const (
	MethodBM25   RetrievalMethod = "bm25"
	MethodVector RetrievalMethod = "vector"
	MethodHybrid RetrievalMethod = "hybrid"
)

// Note is an indexed markdown file, keyed by its vault-relative path.
//
// DB table: note (migration 001)
type Note struct {
	Path      string
	Title     string
	Mtime     int64 // unix seconds of the source file
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NoteChunk is a token window cut from a note. A chunk with a NULL embedding
// column is pending; the embedder fills Embedding (JSON float array) and
// EmbeddingModel in one pass.
//
// DB table: note_chunk (migration 001)
// FTS5 sync: automatic via triggers note_chunk_ai/au/ad (same migration)
type NoteChunk struct {
	ID             string
	NotePath       string
	ChunkIndex     int64
	ChunkText      string
	TokenCount     *int64
	Embedding      *string
	EmbeddingModel *string
	EmbeddedAt     *time.Time
	CreatedAt      time.Time
}

// IsPending reports whether the chunk still needs an embedding.
func (c *NoteChunk) IsPending() bool {
	return c.Embedding == nil
}

// Result is a single ranked chunk returned by the retriever. Snippet is an
// FTS5 highlight for keyword hits and a chunk-text prefix for vector-only
// hits.
type Result struct {
	ChunkID  string
	NotePath string
	Title    string
	Snippet  string
	Score    float64
	Method   RetrievalMethod
}
