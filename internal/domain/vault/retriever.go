package vault

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/matiasleandrokruk/notepilot/internal/infra/llm"
)

const (
	rrfK                 = 60 // RRF constant
	defaultRetrieveLimit = 5
	maxRetrieveLimit     = 50
	snippetMaxRunes      = 200
)

// HybridRetriever ranks note chunks against a query by fusing FTS5 BM25
// keyword salience with in-memory cosine similarity over the stored vectors.
// The two searches run concurrently; if the query cannot be embedded (no
// active embedding model, provider down) the retriever degrades to
// keyword-only results without error.
type HybridRetriever struct {
	db    *sql.DB
	index *Index
	log   zerolog.Logger
}

// NewHybridRetriever creates a retriever over the given index.
func NewHybridRetriever(db *sql.DB, index *Index, log zerolog.Logger) *HybridRetriever {
	return &HybridRetriever{db: db, index: index, log: log}
}

// Retrieve returns at most maxResults chunks ranked by Reciprocal Rank
// Fusion (k=60), dropping results whose fused score falls below minScore.
// maxResults <= 0 selects the default limit; large values are capped.
func (r *HybridRetriever) Retrieve(ctx context.Context, query string, maxResults int, minScore float64) ([]Result, error) {
	limit := resolveLimit(maxResults)

	var (
		bm25Results []bm25Row
		vecResults  []vectorRow
		bm25Err     error
		wg          sync.WaitGroup
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		bm25Results, bm25Err = r.bm25Search(ctx, query, limit)
	}()
	go func() {
		defer wg.Done()
		vecResults = r.vectorSearchWithFallback(ctx, query, limit)
	}()
	wg.Wait()

	if bm25Err != nil {
		return nil, fmt.Errorf("vault: bm25 search: %w", bm25Err)
	}

	merged := rrfMerge(bm25Results, vecResults, limit)
	out := merged[:0]
	for _, res := range merged {
		if res.Score >= minScore {
			out = append(out, res)
		}
	}
	return out, nil
}

// vectorSearchWithFallback embeds the query and runs the cosine scan.
// Any failure degrades to nil so BM25 results still surface.
func (r *HybridRetriever) vectorSearchWithFallback(ctx context.Context, query string, limit int) []vectorRow {
	embedder := r.index.currentEmbedder()
	if embedder == nil {
		return nil
	}
	resp, err := embedder.Embed(ctx, llm.EmbedRequest{Texts: []string{query}})
	if err != nil || len(resp.Embeddings) == 0 {
		r.log.Debug().Err(err).Msg("query embed failed, keyword-only retrieval")
		return nil
	}
	results, err := r.vectorSearch(ctx, resp.Embeddings[0], limit)
	if err != nil {
		r.log.Debug().Err(err).Msg("vector search failed, keyword-only retrieval")
		return nil
	}
	return results
}

// bm25Row holds a single FTS5 result.
type bm25Row struct {
	chunkID  string
	notePath string
	title    string
	snippet  string
	score    float64 // bm25() is negative, lower = better
}

// bm25Search executes FTS5 MATCH ordered by BM25. Raw SQL: fts5 virtual
// tables are outside what query generators can describe.
func (r *HybridRetriever) bm25Search(ctx context.Context, query string, limit int) ([]bm25Row, error) {
	const ftsQuery = `
		SELECT f.id, f.note_path, n.title,
		       snippet(note_chunk_fts, 2, '', '', '...', 24) AS snippet,
		       bm25(note_chunk_fts) AS score
		FROM note_chunk_fts f
		JOIN note n ON n.path = f.note_path
		WHERE note_chunk_fts MATCH ?
		ORDER BY bm25(note_chunk_fts)
		LIMIT ?`

	rows, err := r.db.QueryContext(ctx, ftsQuery, query, limit)
	if err != nil {
		// Invalid MATCH syntax errors out — treat as no keyword hits.
		return nil, nil //nolint:nilerr
	}
	defer rows.Close()

	var results []bm25Row
	for rows.Next() {
		var row bm25Row
		if scanErr := rows.Scan(&row.chunkID, &row.notePath, &row.title, &row.snippet, &row.score); scanErr != nil {
			return nil, fmt.Errorf("bm25 scan: %w", scanErr)
		}
		results = append(results, row)
	}
	return results, rows.Err()
}

// vectorRow holds a single cosine-ranked result.
type vectorRow struct {
	chunkID    string
	notePath   string
	title      string
	chunkText  string
	similarity float32
}

// vectorSearch loads every embedded chunk, scores it against queryVec in
// memory, and returns the top-limit rows. The pure-Go SQLite driver has no
// vector extension; vault-sized corpora make the full scan acceptable.
func (r *HybridRetriever) vectorSearch(ctx context.Context, queryVec []float32, limit int) ([]vectorRow, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT c.id, c.note_path, n.title, c.chunk_text, c.embedding
		 FROM note_chunk c
		 JOIN note n ON n.path = c.note_path
		 WHERE c.embedding IS NOT NULL`,
	)
	if err != nil {
		return nil, fmt.Errorf("vector fetch: %w", err)
	}
	defer rows.Close()

	var scored []vectorRow
	for rows.Next() {
		var (
			row     vectorRow
			encoded string
		)
		if scanErr := rows.Scan(&row.chunkID, &row.notePath, &row.title, &row.chunkText, &encoded); scanErr != nil {
			return nil, fmt.Errorf("vector scan: %w", scanErr)
		}
		vec, decodeErr := decodeEmbedding(encoded)
		if decodeErr != nil {
			continue // skip malformed vectors
		}
		row.similarity = cosineSimilarity(queryVec, vec)
		scored = append(scored, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(scored, func(i, j int) bool {
		return scored[i].similarity > scored[j].similarity
	})
	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

// rrfMerge fuses both rankings via Reciprocal Rank Fusion. Chunks present in
// both lists get a combined score and the hybrid method tag.
func rrfMerge(bm25Results []bm25Row, vecResults []vectorRow, limit int) []Result {
	type docInfo struct {
		notePath string
		title    string
		snippet  string
		method   RetrievalMethod
	}

	scores := make(map[string]float64)
	docs := make(map[string]docInfo)

	for rank, row := range bm25Results {
		scores[row.chunkID] += 1.0 / float64(rrfK+rank+1)
		docs[row.chunkID] = docInfo{
			notePath: row.notePath,
			title:    row.title,
			snippet:  row.snippet,
			method:   MethodBM25,
		}
	}

	for rank, row := range vecResults {
		scores[row.chunkID] += 1.0 / float64(rrfK+rank+1)
		if existing, ok := docs[row.chunkID]; ok {
			existing.method = MethodHybrid
			docs[row.chunkID] = existing
		} else {
			docs[row.chunkID] = docInfo{
				notePath: row.notePath,
				title:    row.title,
				snippet:  truncateSnippet(row.chunkText),
				method:   MethodVector,
			}
		}
	}

	type ranked struct {
		id    string
		score float64
	}
	all := make([]ranked, 0, len(scores))
	for id, score := range scores {
		all = append(all, ranked{id: id, score: score})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].score != all[j].score {
			return all[i].score > all[j].score
		}
		return all[i].id < all[j].id // stable order on ties
	})

	results := make([]Result, 0, min(limit, len(all)))
	for i := 0; i < len(all) && i < limit; i++ {
		info := docs[all[i].id]
		results = append(results, Result{
			ChunkID:  all[i].id,
			NotePath: info.notePath,
			Title:    info.title,
			Snippet:  info.snippet,
			Score:    all[i].score,
			Method:   info.method,
		})
	}
	return results
}

// cosineSimilarity computes the cosine of the angle between two vectors.
// Mismatched lengths or zero vectors score 0.
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// encodeEmbedding serialises a vector to JSON TEXT, e.g. "[0.1,0.2]".
func encodeEmbedding(vec []float32) (string, error) {
	b, err := json.Marshal(vec)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// decodeEmbedding parses the JSON TEXT form back into a vector.
func decodeEmbedding(encoded string) ([]float32, error) {
	var vec []float32
	if err := json.Unmarshal([]byte(encoded), &vec); err != nil {
		return nil, err
	}
	return vec, nil
}

// resolveLimit applies the default and the hard cap.
func resolveLimit(requested int) int {
	if requested <= 0 {
		return defaultRetrieveLimit
	}
	if requested > maxRetrieveLimit {
		return maxRetrieveLimit
	}
	return requested
}

// truncateSnippet shortens chunk text for vector-only hits.
func truncateSnippet(text string) string {
	runes := []rune(text)
	if len(runes) <= snippetMaxRunes {
		return text
	}
	return string(runes[:snippetMaxRunes]) + "..."
}
