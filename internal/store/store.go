// Package store persists indexed chunks with embeddings in PostgreSQL and
// serves cosine similarity search via pgvector.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
)

// DB is the database capability required by Store. *pgxpool.Pool satisfies
// it. Following Go best practices: interfaces are defined by the consumer,
// not the provider.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store manages the docs table. It is safe for concurrent use; every write
// method is its own transaction, so concurrent writers to the same document
// id resolve last-write-wins.
type Store struct {
	db     DB
	logger *slog.Logger
}

// New creates a Store. logger may be nil.
func New(db DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

const insertChunkSQL = `
	INSERT INTO docs (id, document_id, slug, title, content, metadata, embedding, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, now()))`

// ReplaceForDocument atomically replaces every chunk owned by the given
// document id with the new set: delete-then-insert in a single transaction,
// so stale chunks never outlive new content once the replacement commits.
func (s *Store) ReplaceForDocument(ctx context.Context, documentID string, chunks []Chunk) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM docs WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("failed to delete prior chunks for %q: %w", documentID, err)
	}

	for _, chunk := range chunks {
		if err := insertChunk(ctx, tx, chunk); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit chunk replacement for %q: %w", documentID, err)
	}

	s.logger.Debug("replaced document chunks", "document_id", documentID, "chunks", len(chunks))
	return nil
}

func insertChunk(ctx context.Context, tx pgx.Tx, chunk Chunk) error {
	metadataJSON, err := json.Marshal(chunk.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata for chunk %s: %w", chunk.ID, err)
	}

	var embedding *pgvector.Vector
	if chunk.Embedding != nil {
		v := pgvector.NewVector(chunk.Embedding)
		embedding = &v
	}

	var createdAt any
	if !chunk.CreatedAt.IsZero() {
		createdAt = chunk.CreatedAt
	}

	if _, err := tx.Exec(ctx, insertChunkSQL,
		chunk.ID, chunk.DocumentID, chunk.Slug, chunk.Title, chunk.Content,
		metadataJSON, embedding, createdAt,
	); err != nil {
		return fmt.Errorf("failed to insert chunk %s: %w", chunk.ID, err)
	}
	return nil
}

// DeleteForDocument removes every chunk owned by the document id and returns
// the number of rows removed.
func (s *Store) DeleteForDocument(ctx context.Context, documentID string) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM docs WHERE document_id = $1`, documentID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete chunks for %q: %w", documentID, err)
	}
	return tag.RowsAffected(), nil
}

// Search returns chunks whose cosine similarity to the query embedding meets
// the threshold, ordered by similarity descending, capped to limit. Rows
// without an embedding are never considered.
func (s *Store) Search(ctx context.Context, embedding []float32, limit int, threshold float32) ([]SearchRow, error) {
	query := pgvector.NewVector(embedding)

	rows, err := s.db.Query(ctx, `
		SELECT id, document_id, slug, title, content, metadata, created_at,
		       1 - (embedding <=> $1) AS similarity
		FROM docs
		WHERE embedding IS NOT NULL
		  AND 1 - (embedding <=> $1) >= $2
		ORDER BY similarity DESC
		LIMIT $3`,
		query, threshold, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("similarity search failed: %w", err)
	}
	defer rows.Close()

	return s.scanSearchRows(rows, true)
}

// Navigation returns every chunk in the reserved navigation category,
// regardless of similarity. Callers assign the pinned score.
func (s *Store) Navigation(ctx context.Context) ([]SearchRow, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, document_id, slug, title, content, metadata, created_at
		FROM docs
		WHERE metadata->>'source' = $1
		ORDER BY slug`,
		SourceNavigation,
	)
	if err != nil {
		return nil, fmt.Errorf("navigation fetch failed: %w", err)
	}
	defer rows.Close()

	return s.scanSearchRows(rows, false)
}

func (s *Store) scanSearchRows(rows pgx.Rows, withSimilarity bool) ([]SearchRow, error) {
	var results []SearchRow
	for rows.Next() {
		var (
			row          SearchRow
			metadataJSON []byte
		)

		dest := []any{&row.ID, &row.DocumentID, &row.Slug, &row.Title, &row.Content, &metadataJSON, &row.CreatedAt}
		if withSimilarity {
			dest = append(dest, &row.Similarity)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan search row: %w", err)
		}

		if err := json.Unmarshal(metadataJSON, &row.Metadata); err != nil {
			s.logger.Warn("failed to parse chunk metadata", "chunk_id", row.ID, "error", err)
			row.Metadata = map[string]any{}
		}

		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search row iteration failed: %w", err)
	}
	return results, nil
}

// ContentHashesByPrefix returns document_id -> stored content hash for every
// chunk whose document id starts with the prefix. Used by batch
// reconciliation to detect no-op updates.
func (s *Store) ContentHashesByPrefix(ctx context.Context, prefix string) (map[string]string, error) {
	rows, err := s.db.Query(ctx, `
		SELECT document_id, COALESCE(metadata->>'content_hash', '')
		FROM docs
		WHERE document_id LIKE $1 || '%'`,
		prefix,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list content hashes for prefix %q: %w", prefix, err)
	}
	defer rows.Close()

	hashes := make(map[string]string)
	for rows.Next() {
		var id, hash string
		if err := rows.Scan(&id, &hash); err != nil {
			return nil, fmt.Errorf("failed to scan content hash row: %w", err)
		}
		hashes[id] = hash
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("content hash iteration failed: %w", err)
	}
	return hashes, nil
}

// ApplyBatch commits a batch reconciliation in one transaction: each upserted
// chunk replaces the full chunk set of its document id, then every document
// id in removals is deleted. A failure rolls the whole batch back.
func (s *Store) ApplyBatch(ctx context.Context, upserts []Chunk, removals []string) error {
	if len(upserts) == 0 && len(removals) == 0 {
		return nil
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin batch transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, chunk := range upserts {
		if _, err := tx.Exec(ctx, `DELETE FROM docs WHERE document_id = $1`, chunk.DocumentID); err != nil {
			return fmt.Errorf("failed to clear document %q: %w", chunk.DocumentID, err)
		}
		if err := insertChunk(ctx, tx, chunk); err != nil {
			return err
		}
	}

	if len(removals) > 0 {
		tag, err := tx.Exec(ctx, `DELETE FROM docs WHERE document_id = ANY($1)`, removals)
		if err != nil {
			return fmt.Errorf("failed to delete removed documents: %w", err)
		}
		s.logger.Info("deleted removed batch documents", "count", tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return nil
}
