// Package listener consumes the source database's continuous change feed,
// checkpoints its position, and dispatches each change to the ingest
// pipeline. Feed interruptions are retried with capped exponential backoff.
package listener

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"docmirror/internal/couchdb"
)

// ChangeIterator yields changes from one feed connection. Next returns
// io.EOF when the connection ends and couchdb.ErrMalformedChange for lines
// that cannot be decoded; the latter does not end the stream.
type ChangeIterator interface {
	Next() (*couchdb.Change, error)
	Close() error
}

// ConnectFunc opens a change feed starting after the given sequence.
// Adapting *couchdb.Client:
//
//	func(ctx context.Context, since string) (listener.ChangeIterator, error) {
//		return client.Changes(ctx, since)
//	}
type ConnectFunc func(ctx context.Context, since string) (ChangeIterator, error)

// Ingester applies one document change. *ingest.Pipeline satisfies it.
type Ingester interface {
	IngestDocument(ctx context.Context, doc *couchdb.Document) error
	DeleteDocument(ctx context.Context, documentID string) error
}

// Checkpoints persists the feed position. *checkpoint.Store satisfies it.
type Checkpoints interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, seq string) error
}

// Config controls dispatch filtering and reconnect pacing.
type Config struct {
	// AllowedPrefixes limits dispatch to documents whose path starts with
	// one of these prefixes. Empty means dispatch everything.
	AllowedPrefixes []string

	BackoffFloor   time.Duration
	BackoffCeiling time.Duration
}

const (
	defaultBackoffFloor   = 1 * time.Second
	defaultBackoffCeiling = 60 * time.Second
)

// Listener runs the change feed consumption loop.
type Listener struct {
	connect     ConnectFunc
	ingester    Ingester
	checkpoints Checkpoints
	cfg         Config
	logger      *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Listener.
func New(connect ConnectFunc, ingester Ingester, checkpoints Checkpoints, cfg Config, logger *slog.Logger) (*Listener, error) {
	if connect == nil {
		return nil, fmt.Errorf("connect function is required")
	}
	if ingester == nil {
		return nil, fmt.Errorf("ingester is required")
	}
	if checkpoints == nil {
		return nil, fmt.Errorf("checkpoint store is required")
	}
	if cfg.BackoffFloor <= 0 {
		cfg.BackoffFloor = defaultBackoffFloor
	}
	if cfg.BackoffCeiling < cfg.BackoffFloor {
		cfg.BackoffCeiling = defaultBackoffCeiling
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{
		connect:     connect,
		ingester:    ingester,
		checkpoints: checkpoints,
		cfg:         cfg,
		logger:      logger,
	}, nil
}

// Run consumes the feed until ctx is canceled. Every failure, connecting or
// mid-stream, waits out the current backoff and reconnects from the last
// checkpoint; a successful connection resets the backoff to the floor.
func (l *Listener) Run(ctx context.Context) error {
	backoff := l.cfg.BackoffFloor

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		since, err := l.checkpoints.Load(ctx)
		if err != nil {
			l.logger.Error("failed to load checkpoint", "error", err)
			if err := l.wait(ctx, backoff); err != nil {
				return err
			}
			backoff = nextBackoff(backoff, l.cfg.BackoffCeiling)
			continue
		}

		stream, err := l.connect(ctx, since)
		if err != nil {
			l.logger.Warn("failed to connect to change feed",
				"since", since,
				"retry_in", backoff.String(),
				"error", err)
			if err := l.wait(ctx, backoff); err != nil {
				return err
			}
			backoff = nextBackoff(backoff, l.cfg.BackoffCeiling)
			continue
		}

		l.logger.Info("connected to change feed", "since", since)
		backoff = l.cfg.BackoffFloor

		err = l.consume(ctx, stream)
		stream.Close()
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		l.logger.Warn("change feed interrupted",
			"retry_in", backoff.String(),
			"error", err)
		if err := l.wait(ctx, backoff); err != nil {
			return err
		}
		backoff = nextBackoff(backoff, l.cfg.BackoffCeiling)
	}
}

// consume drains one feed connection. The checkpoint is saved before each
// change is dispatched, so a crash mid-dispatch skips that change on
// restart instead of reprocessing it.
func (l *Listener) consume(ctx context.Context, stream ChangeIterator) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		change, err := stream.Next()
		if err != nil {
			if errors.Is(err, couchdb.ErrMalformedChange) {
				l.logger.Warn("skipping malformed change", "error", err)
				continue
			}
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("change feed ended")
			}
			return err
		}

		if change.Seq != "" {
			if err := l.checkpoints.Save(ctx, change.Seq); err != nil {
				l.logger.Error("failed to save checkpoint",
					"seq", change.Seq,
					"error", err)
			}
		}

		l.dispatch(ctx, change)
	}
}

// dispatch applies one change. Ingest failures are logged, never fatal to
// the feed.
func (l *Listener) dispatch(ctx context.Context, change *couchdb.Change) {
	if change.Deleted {
		if err := l.ingester.DeleteDocument(ctx, change.ID); err != nil {
			l.logger.Error("failed to delete document", "document_id", change.ID, "error", err)
		}
		return
	}

	doc := change.Doc
	if doc == nil {
		l.logger.Debug("change without document body", "seq", change.Seq, "document_id", change.ID)
		return
	}
	if doc.Deleted {
		if err := l.ingester.DeleteDocument(ctx, doc.ID); err != nil {
			l.logger.Error("failed to delete document", "document_id", doc.ID, "error", err)
		}
		return
	}
	if doc.Kind != couchdb.KindPlain {
		return
	}
	if !l.pathAllowed(doc.Path) {
		return
	}

	if err := l.ingester.IngestDocument(ctx, doc); err != nil {
		l.logger.Error("failed to ingest document", "document_id", doc.ID, "error", err)
	}
}

func (l *Listener) pathAllowed(path string) bool {
	if len(l.cfg.AllowedPrefixes) == 0 {
		return true
	}
	for _, prefix := range l.cfg.AllowedPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func (l *Listener) wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// nextBackoff doubles the delay up to the ceiling.
func nextBackoff(current, ceiling time.Duration) time.Duration {
	next := current * 2
	if next > ceiling {
		return ceiling
	}
	return next
}

// Start runs the listener in the background. Use Stop to shut it down.
func (l *Listener) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.done = make(chan struct{})

	go func() {
		defer close(l.done)
		if err := l.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			l.logger.Error("listener stopped", "error", err)
		}
	}()
}

// Stop cancels the background listener and waits up to timeout for it to
// finish.
func (l *Listener) Stop(timeout time.Duration) error {
	if l.cancel == nil {
		return nil
	}
	l.cancel()
	select {
	case <-l.done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("listener did not stop within %s", timeout)
	}
}
