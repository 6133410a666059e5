// Package checkpoint persists the change feed position as a single logical
// row. The sequence token is opaque; absence means "start from now" so a
// fresh deployment does not replay the source database's full history.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// StartFromNow is the feed's "skip backlog" sentinel, returned when no
// checkpoint has ever been saved.
const StartFromNow = "now"

// checkpointRowID pins the table to one row.
const checkpointRowID = 1

// DB is the database capability required by Store. *pgxpool.Pool satisfies it.
// Following Go best practices: interfaces are defined by the consumer, not
// the provider.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is a durable single-value store for the last processed change feed
// sequence token.
type Store struct {
	db     DB
	logger *slog.Logger
}

// New creates a checkpoint Store. logger may be nil.
func New(db DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

// Load returns the stored sequence token, or StartFromNow when no checkpoint
// exists yet.
func (s *Store) Load(ctx context.Context) (string, error) {
	var seq string
	err := s.db.QueryRow(ctx,
		`SELECT last_seq FROM change_checkpoint WHERE id = $1`, checkpointRowID,
	).Scan(&seq)
	if errors.Is(err, pgx.ErrNoRows) {
		return StartFromNow, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load checkpoint: %w", err)
	}
	return seq, nil
}

// Save advances the checkpoint to the given sequence token.
func (s *Store) Save(ctx context.Context, seq string) error {
	if seq == "" {
		return fmt.Errorf("sequence token must not be empty")
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO change_checkpoint (id, last_seq)
		VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET last_seq = EXCLUDED.last_seq, updated_at = now()`,
		checkpointRowID, seq,
	)
	if err != nil {
		return fmt.Errorf("failed to save checkpoint %q: %w", seq, err)
	}
	return nil
}

// Reset removes the checkpoint so the next connection starts from "now".
// This is the only supported way to move the checkpoint backwards.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.db.Exec(ctx,
		`DELETE FROM change_checkpoint WHERE id = $1`, checkpointRowID,
	)
	if err != nil {
		return fmt.Errorf("failed to reset checkpoint: %w", err)
	}
	s.logger.Info("checkpoint reset")
	return nil
}
