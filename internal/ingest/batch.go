package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"docmirror/internal/store"
)

// Item is one externally supplied content unit for namespace replacement,
// for example a portfolio page or a navigation entry.
type Item struct {
	Slug     string         `json:"slug"`
	Title    string         `json:"title"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ItemError records a per-item failure during a batch.
type ItemError struct {
	Slug string
	Err  error
}

// ReplaceResult summarizes a namespace replacement batch.
type ReplaceResult struct {
	Processed int
	Updated   int
	Skipped   int
	Errors    []ItemError
}

// ContentHash computes a stable fingerprint over an item's indexable fields.
// Metadata is canonicalized through JSON so map iteration order cannot
// change the hash.
func ContentHash(slug, title, content string, metadata map[string]any) (string, error) {
	canonical := []byte("{}")
	if len(metadata) > 0 {
		var err error
		canonical, err = json.Marshal(metadata)
		if err != nil {
			return "", fmt.Errorf("failed to canonicalize metadata: %w", err)
		}
	}

	h := sha256.New()
	h.Write([]byte(slug))
	h.Write([]byte(title))
	h.Write([]byte(content))
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ReplaceNamespace reconciles the batch namespace against the supplied items
// in one transaction: unchanged items (matched by content hash) are skipped
// without re-embedding, changed or new ones are embedded and upserted, and
// previously stored documents absent from the batch are removed. Per-item
// failures are collected and do not abort the batch.
func (p *Pipeline) ReplaceNamespace(ctx context.Context, items []Item) (*ReplaceResult, error) {
	prefix := p.cfg.PortfolioPrefix
	existing, err := p.store.ContentHashesByPrefix(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to load existing content hashes: %w", err)
	}

	result := &ReplaceResult{}
	seen := make(map[string]bool, len(items))
	var upserts []store.Chunk

	for _, item := range items {
		result.Processed++
		documentID := prefix + item.Slug
		seen[documentID] = true

		hash, err := ContentHash(item.Slug, item.Title, item.Content, item.Metadata)
		if err != nil {
			result.Errors = append(result.Errors, ItemError{Slug: item.Slug, Err: err})
			continue
		}
		if existing[documentID] == hash {
			result.Skipped++
			continue
		}

		enhanced := p.enhance(item.Content, item.Title, enrichmentFromMetadata(item.Metadata))
		embedding, err := p.embed(ctx, enhanced)
		if err != nil {
			result.Errors = append(result.Errors, ItemError{Slug: item.Slug, Err: err})
			p.logger.Warn("failed to embed batch item", "slug", item.Slug, "error", err)
			continue
		}

		metadata := make(map[string]any, len(item.Metadata)+2)
		for k, v := range item.Metadata {
			metadata[k] = v
		}
		metadata[store.MetaContentHash] = hash
		metadata[store.MetaUpdatedAt] = time.Now().UTC().Format(time.RFC3339)
		if _, ok := metadata[store.MetaSource]; !ok {
			metadata[store.MetaSource] = store.SourcePortfolio
		}

		upserts = append(upserts, store.Chunk{
			ID:         uuid.New(),
			DocumentID: documentID,
			Slug:       item.Slug,
			Title:      item.Title,
			Content:    item.Content,
			Metadata:   metadata,
			Embedding:  embedding,
		})
		result.Updated++
	}

	var removals []string
	for documentID := range existing {
		if !seen[documentID] {
			removals = append(removals, documentID)
		}
	}
	sort.Strings(removals)

	if err := p.store.ApplyBatch(ctx, upserts, removals); err != nil {
		return nil, fmt.Errorf("failed to apply batch: %w", err)
	}

	p.logger.Info("namespace batch applied",
		"processed", result.Processed,
		"updated", result.Updated,
		"skipped", result.Skipped,
		"removed", len(removals),
		"errors", len(result.Errors))
	return result, nil
}
