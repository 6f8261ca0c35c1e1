package vault

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/matiasleandrokruk/notepilot/internal/infra/llm"
)

const (
	embedMaxRetries = 3
	embedBaseDelay  = 100 * time.Millisecond
	embedBatchSize  = 32
)

// Index keeps the note_chunk table in sync with the markdown files under the
// vault directory and fills in missing embeddings. The embedder slot is
// swapped whenever the active embedding model changes; a nil embedder leaves
// chunks pending and the retriever degrades to keyword-only results.
type Index struct {
	db       *sql.DB
	vaultDir string
	log      zerolog.Logger

	mu          sync.Mutex
	embedder    llm.Embedder
	initialized bool
}

// NewIndex creates an Index over the given DB and vault directory. The
// schema must already be migrated.
func NewIndex(db *sql.DB, vaultDir string, log zerolog.Logger) *Index {
	return &Index{db: db, vaultDir: vaultDir, log: log}
}

// SetEmbedder swaps the live embedder used for chunk embeddings. A nil value
// pauses embedding until a model is activated again.
func (x *Index) SetEmbedder(e llm.Embedder) {
	x.mu.Lock()
	x.embedder = e
	x.mu.Unlock()
}

// currentEmbedder returns the live embedder, or nil when none is active.
func (x *Index) currentEmbedder() llm.Embedder {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.embedder
}

// GetOrInitialize performs the first scan-and-embed pass over the vault and
// records the embedder for later Refresh calls. Subsequent calls are cheap:
// once initialized only the embedder slot is updated.
func (x *Index) GetOrInitialize(ctx context.Context, embedder llm.Embedder) error {
	x.SetEmbedder(embedder)

	x.mu.Lock()
	done := x.initialized
	x.mu.Unlock()
	if done {
		return nil
	}

	if err := x.Refresh(ctx, false); err != nil {
		return err
	}

	x.mu.Lock()
	x.initialized = true
	x.mu.Unlock()
	return nil
}

// Refresh re-synchronizes the index with the vault directory and embeds
// pending chunks. With force=true every chunk is reset to pending first, so
// the whole vault is re-embedded (used after switching embedding models).
func (x *Index) Refresh(ctx context.Context, force bool) error {
	if err := x.scanVault(ctx); err != nil {
		return fmt.Errorf("vault: scan: %w", err)
	}

	if force {
		if _, err := x.db.ExecContext(ctx,
			`UPDATE note_chunk SET embedding = NULL, embedding_model = NULL, embedded_at = NULL`,
		); err != nil {
			return fmt.Errorf("vault: reset embeddings: %w", err)
		}
	}

	return x.embedPending(ctx)
}

// AddNote upserts a note and replaces its chunks. The FTS5 mirror follows via
// triggers, so the fresh chunks are keyword-searchable as soon as the
// transaction commits; embeddings stay pending until the next embed pass.
func (x *Index) AddNote(ctx context.Context, relPath, content string, mtime int64) error {
	now := time.Now().UTC()
	title := noteTitle(relPath, content)

	tx, err := x.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("vault: add note %q: %w", relPath, err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO note (path, title, mtime, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET title = excluded.title,
		     mtime = excluded.mtime, updated_at = excluded.updated_at`,
		relPath, title, mtime, now, now,
	); err != nil {
		return fmt.Errorf("vault: upsert note %q: %w", relPath, err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM note_chunk WHERE note_path = ?`, relPath,
	); err != nil {
		return fmt.Errorf("vault: clear chunks %q: %w", relPath, err)
	}

	for i, chunkText := range Chunk(content, DefaultChunkSize, DefaultChunkOverlap) {
		tokenCount := int64(len(strings.Fields(chunkText)))
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO note_chunk (id, note_path, chunk_index, chunk_text, token_count, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			uuid.NewString(), relPath, int64(i), chunkText, tokenCount, now,
		); err != nil {
			return fmt.Errorf("vault: insert chunk %q[%d]: %w", relPath, i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("vault: add note %q: %w", relPath, err)
	}
	return nil
}

// RemoveNote deletes a note; chunks and FTS rows follow via cascade and
// triggers. Removing an unindexed path is a no-op.
func (x *Index) RemoveNote(ctx context.Context, relPath string) error {
	if _, err := x.db.ExecContext(ctx, `DELETE FROM note WHERE path = ?`, relPath); err != nil {
		return fmt.Errorf("vault: remove note %q: %w", relPath, err)
	}
	return nil
}

// PendingChunks returns the number of chunks still waiting for an embedding.
func (x *Index) PendingChunks(ctx context.Context) (int, error) {
	var n int
	err := x.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM note_chunk WHERE embedding IS NULL`,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("vault: count pending: %w", err)
	}
	return n, nil
}

// scanVault walks the vault directory, re-ingests new or modified .md files
// (mtime comparison) and drops notes whose files are gone.
func (x *Index) scanVault(ctx context.Context) error {
	indexed, err := x.indexedMtimes(ctx)
	if err != nil {
		return err
	}

	seen := make(map[string]bool)
	walkErr := filepath.WalkDir(x.vaultDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			// Hidden directories (.obsidian, .git) hold no notes.
			if name := d.Name(); name != "." && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(d.Name(), ".md") {
			return nil
		}

		rel, relErr := filepath.Rel(x.vaultDir, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)
		seen[rel] = true

		info, infoErr := d.Info()
		if infoErr != nil {
			return infoErr
		}
		mtime := info.ModTime().Unix()
		if prev, ok := indexed[rel]; ok && prev == mtime {
			return nil // unchanged
		}

		content, readErr := os.ReadFile(path)
		if readErr != nil {
			return readErr
		}
		return x.AddNote(ctx, rel, string(content), mtime)
	})
	if walkErr != nil {
		if os.IsNotExist(walkErr) {
			x.log.Warn().Str("vault_dir", x.vaultDir).Msg("vault directory missing, index left as-is")
			return nil
		}
		return walkErr
	}

	for rel := range indexed {
		if !seen[rel] {
			if err := x.RemoveNote(ctx, rel); err != nil {
				return err
			}
		}
	}
	return nil
}

// indexedMtimes returns path → mtime for every indexed note.
func (x *Index) indexedMtimes(ctx context.Context) (map[string]int64, error) {
	rows, err := x.db.QueryContext(ctx, `SELECT path, mtime FROM note`)
	if err != nil {
		return nil, fmt.Errorf("vault: list notes: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var (
			path  string
			mtime int64
		)
		if err := rows.Scan(&path, &mtime); err != nil {
			return nil, fmt.Errorf("vault: scan note row: %w", err)
		}
		out[path] = mtime
	}
	return out, rows.Err()
}

// pendingChunk pairs a chunk id with its text for the embed pass.
type pendingChunk struct {
	id   string
	text string
}

// embedPending embeds every pending chunk in batches. Without a live
// embedder the pass is skipped and chunks stay pending.
func (x *Index) embedPending(ctx context.Context) error {
	embedder := x.currentEmbedder()
	if embedder == nil {
		pending, err := x.PendingChunks(ctx)
		if err != nil {
			return err
		}
		if pending > 0 {
			x.log.Info().Int("pending", pending).Msg("no embedding model active, chunks left pending")
		}
		return nil
	}
	modelKey := embedder.Meta().Model

	for {
		batch, err := x.fetchPending(ctx, embedBatchSize)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.text
		}

		vecs, err := x.embedWithRetry(ctx, embedder, texts)
		if err != nil {
			return fmt.Errorf("vault: embed batch: %w", err)
		}
		if err := x.storeVectors(ctx, batch, vecs, modelKey); err != nil {
			return fmt.Errorf("vault: store vectors: %w", err)
		}
	}
}

// fetchPending returns up to limit chunks whose embedding is NULL.
func (x *Index) fetchPending(ctx context.Context, limit int) ([]pendingChunk, error) {
	rows, err := x.db.QueryContext(ctx,
		`SELECT id, chunk_text FROM note_chunk
		 WHERE embedding IS NULL
		 ORDER BY note_path, chunk_index
		 LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("vault: fetch pending: %w", err)
	}
	defer rows.Close()

	var out []pendingChunk
	for rows.Next() {
		var c pendingChunk
		if err := rows.Scan(&c.id, &c.text); err != nil {
			return nil, fmt.Errorf("vault: scan pending row: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// embedWithRetry calls Embed with exponential backoff
// (attempts: 3, delays 100ms/200ms).
func (x *Index) embedWithRetry(ctx context.Context, embedder llm.Embedder, texts []string) ([][]float32, error) {
	var lastErr error
	delay := embedBaseDelay
	for attempt := 0; attempt < embedMaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
				delay *= 2
			}
		}
		resp, err := embedder.Embed(ctx, llm.EmbedRequest{Texts: texts})
		if err == nil {
			if len(resp.Embeddings) != len(texts) {
				return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(resp.Embeddings), len(texts))
			}
			return resp.Embeddings, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("all %d retries failed: %w", embedMaxRetries, lastErr)
}

// storeVectors writes the JSON-encoded vectors back in one transaction.
func (x *Index) storeVectors(ctx context.Context, batch []pendingChunk, vecs [][]float32, modelKey string) error {
	now := time.Now().UTC()
	tx, err := x.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	for i, c := range batch {
		encoded, encErr := encodeEmbedding(vecs[i])
		if encErr != nil {
			return fmt.Errorf("encode embedding[%d]: %w", i, encErr)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE note_chunk SET embedding = ?, embedding_model = ?, embedded_at = ? WHERE id = ?`,
			encoded, modelKey, now, c.id,
		); err != nil {
			return fmt.Errorf("update note_chunk[%d]: %w", i, err)
		}
	}
	return tx.Commit()
}
