// Package views tracks per-post view counters with an in-memory throttle
// that suppresses repeated counts from the same caller within a window.
package views

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
)

// DB is the database capability the service needs. *pgxpool.Pool
// satisfies it.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const (
	defaultWindow     = 30 * time.Minute
	defaultMaxEntries = 10000
)

// Service increments and reads post view counters.
type Service struct {
	db     DB
	logger *slog.Logger

	window     time.Duration
	maxEntries int

	mu   sync.Mutex
	seen map[string]time.Time
	now  func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithWindow sets the per-caller suppression window.
func WithWindow(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.window = d
		}
	}
}

// WithMaxEntries caps the throttle map size.
func WithMaxEntries(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxEntries = n
		}
	}
}

// New creates a view counter service.
func New(db DB, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		db:         db,
		logger:     logger,
		window:     defaultWindow,
		maxEntries: defaultMaxEntries,
		seen:       make(map[string]time.Time),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Increment counts one view of slug attributed to callerKey, typically a
// hashed client address. A repeat view from the same caller inside the
// suppression window returns the current count without incrementing.
func (s *Service) Increment(ctx context.Context, slug, callerKey string) (int64, error) {
	if slug == "" {
		return 0, fmt.Errorf("slug is required")
	}

	if s.suppressed(slug, callerKey) {
		return s.Count(ctx, slug)
	}

	var count int64
	err := s.db.QueryRow(ctx, `
		INSERT INTO post_views (slug, view_count, updated_at)
		VALUES ($1, 1, now())
		ON CONFLICT (slug) DO UPDATE
		SET view_count = post_views.view_count + 1, updated_at = now()
		RETURNING view_count`, slug).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to increment views for %q: %w", slug, err)
	}
	return count, nil
}

// Count returns the current view count for slug, zero when never viewed.
func (s *Service) Count(ctx context.Context, slug string) (int64, error) {
	var count int64
	err := s.db.QueryRow(ctx,
		`SELECT view_count FROM post_views WHERE slug = $1`, slug).Scan(&count)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read views for %q: %w", slug, err)
	}
	return count, nil
}

// Counts returns view counts for every slug in slugs. Slugs never viewed
// are absent from the result.
func (s *Service) Counts(ctx context.Context, slugs []string) (map[string]int64, error) {
	if len(slugs) == 0 {
		return map[string]int64{}, nil
	}

	rows, err := s.db.Query(ctx,
		`SELECT slug, view_count FROM post_views WHERE slug = ANY($1)`, slugs)
	if err != nil {
		return nil, fmt.Errorf("failed to read view counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64, len(slugs))
	for rows.Next() {
		var slug string
		var count int64
		if err := rows.Scan(&slug, &count); err != nil {
			return nil, fmt.Errorf("failed to scan view count: %w", err)
		}
		counts[slug] = count
	}
	return counts, rows.Err()
}

// suppressed records the view attempt and reports whether an earlier attempt
// from the same caller is still within the window. An empty caller key is
// never suppressed.
func (s *Service) suppressed(slug, callerKey string) bool {
	if callerKey == "" {
		return false
	}
	key := callerKey + "|" + slug
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if last, ok := s.seen[key]; ok && now.Sub(last) < s.window {
		return true
	}

	if len(s.seen) >= s.maxEntries {
		s.prune(now)
	}
	s.seen[key] = now
	return false
}

// prune drops expired entries; called with mu held. If everything is live
// the map simply grows past the cap until entries age out.
func (s *Service) prune(now time.Time) {
	for key, last := range s.seen {
		if now.Sub(last) >= s.window {
			delete(s.seen, key)
		}
	}
}
