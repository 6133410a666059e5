package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/google/uuid"

	"docmirror/internal/store"
)

// ErrInvalidQueryEmbedding indicates the embedding model returned a vector
// whose dimension does not match the index.
var ErrInvalidQueryEmbedding = errors.New("invalid query embedding")

// NavigationSimilarity is the fixed score assigned to pinned navigation
// entries so they always outrank organic matches.
const NavigationSimilarity = 0.99

// EmbedFunc computes the embedding for an expanded query.
type EmbedFunc func(ctx context.Context, text string) ([]float32, error)

// SearchStore is the read side of the chunk store the engine needs.
// *store.Store satisfies it.
type SearchStore interface {
	Search(ctx context.Context, embedding []float32, limit int, threshold float32) ([]store.SearchRow, error)
	Navigation(ctx context.Context) ([]store.SearchRow, error)
}

// Result is one ranked retrieval hit.
type Result struct {
	ID         uuid.UUID      `json:"id"`
	Slug       string         `json:"slug"`
	Title      string         `json:"title"`
	Content    string         `json:"content"`
	Metadata   map[string]any `json:"metadata"`
	Similarity float32        `json:"similarity"`
}

// Engine runs expanded, embedded, threshold-filtered similarity search.
type Engine struct {
	store     SearchStore
	embed     EmbedFunc
	expander  *Expander
	dimension int
	logger    *slog.Logger
}

// NewEngine creates an Engine. A nil expander means no query expansion.
func NewEngine(st SearchStore, embed EmbedFunc, expander *Expander, dimension int, logger *slog.Logger) *Engine {
	if expander == nil {
		expander = NewExpander(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:     st,
		embed:     embed,
		expander:  expander,
		dimension: dimension,
		logger:    logger,
	}
}

// Search expands and embeds the query, then returns up to limit chunks with
// cosine similarity at or above threshold, most similar first.
func (e *Engine) Search(ctx context.Context, query string, limit int, threshold float32) ([]Result, error) {
	expanded := e.expander.Expand(query)
	if expanded != query {
		e.logger.Debug("expanded query", "query", query, "expanded", expanded)
	}

	embedding, err := e.embed(ctx, expanded)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(embedding) != e.dimension {
		return nil, fmt.Errorf("%w: got %d dimensions, want %d",
			ErrInvalidQueryEmbedding, len(embedding), e.dimension)
	}

	rows, err := e.store.Search(ctx, embedding, limit, threshold)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	results := make([]Result, 0, len(rows))
	for _, row := range rows {
		results = append(results, Result{
			ID:         row.ID,
			Slug:       row.Slug,
			Title:      row.Title,
			Content:    row.Content,
			Metadata:   row.Metadata,
			Similarity: roundSimilarity(row.Similarity),
		})
	}
	return results, nil
}

// SearchWithNavigation runs Search and merges pinned navigation entries
// ahead of the organic results. Navigation entries carry the fixed
// NavigationSimilarity score, duplicates are dropped by chunk id, and the
// merged list is capped at limit.
func (e *Engine) SearchWithNavigation(ctx context.Context, query string, limit int, threshold float32) ([]Result, error) {
	organic, err := e.Search(ctx, query, limit, threshold)
	if err != nil {
		return nil, err
	}

	nav, err := e.store.Navigation(ctx)
	if err != nil {
		e.logger.Warn("failed to load navigation entries", "error", err)
		return organic, nil
	}

	merged := make([]Result, 0, len(nav)+len(organic))
	seen := make(map[uuid.UUID]bool, len(nav))
	for _, row := range nav {
		seen[row.ID] = true
		merged = append(merged, Result{
			ID:         row.ID,
			Slug:       row.Slug,
			Title:      row.Title,
			Content:    row.Content,
			Metadata:   row.Metadata,
			Similarity: NavigationSimilarity,
		})
	}
	for _, r := range organic {
		if seen[r.ID] {
			continue
		}
		merged = append(merged, r)
	}

	if limit > 0 && len(merged) > limit {
		merged = merged[:limit]
	}
	return merged, nil
}

func roundSimilarity(s float32) float32 {
	return float32(math.Round(float64(s)*10000) / 10000)
}
