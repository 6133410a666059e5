// Package ingest turns qualifying source documents into indexed, embedded
// chunks: reconstruct, chunk, enhance, embed, then replace the document's
// chunk set atomically. It also provides full-corpus reingestion and
// hash-based batch reconciliation for externally pushed content.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"docmirror/internal/couchdb"
	"docmirror/internal/store"
)

// ErrNoChunksEmbedded indicates that every chunk embedding for a document
// failed. The pipeline makes no database change in that case, so prior
// content for the document stays retrievable.
var ErrNoChunksEmbedded = errors.New("no chunks embedded")

// EmbedFunc computes an embedding vector for one text. Expressed as a
// function type so tests can substitute deterministic stand-ins.
type EmbedFunc func(ctx context.Context, text string) ([]float32, error)

// ChunkStore is the persistence capability the pipeline needs.
// *store.Store satisfies it.
type ChunkStore interface {
	ReplaceForDocument(ctx context.Context, documentID string, chunks []store.Chunk) error
	DeleteForDocument(ctx context.Context, documentID string) (int64, error)
	ContentHashesByPrefix(ctx context.Context, prefix string) (map[string]string, error)
	ApplyBatch(ctx context.Context, upserts []store.Chunk, removals []string) error
}

// ContentResolver reconstructs a document's text one fragment at a time.
// *couchdb.Reconstructor satisfies it.
type ContentResolver interface {
	Content(ctx context.Context, doc *couchdb.Document) string
}

// Lister lists the full source corpus as a bulk map. *couchdb.Client
// satisfies it.
type Lister interface {
	AllDocs(ctx context.Context) (map[string]*couchdb.Document, error)
}

// Config holds the path prefixes that drive qualification and source
// categorization.
type Config struct {
	BlogPrefix      string
	KBPrefix        string
	PortfolioPrefix string
}

// Params collects the pipeline's dependencies.
type Params struct {
	Store    ChunkStore
	Resolver ContentResolver
	Lister   Lister
	Chunker  Chunker
	Enhance  EnhanceFunc
	Embed    EmbedFunc
	Config   Config
	Logger   *slog.Logger
}

// Pipeline ingests source documents into the vector mirror.
type Pipeline struct {
	store    ChunkStore
	resolver ContentResolver
	lister   Lister
	chunker  Chunker
	enhance  EnhanceFunc
	embed    EmbedFunc
	cfg      Config
	logger   *slog.Logger
}

// New creates a Pipeline. Enhance defaults to the package Enhance function
// and Chunker to the default word windower when unset.
func New(p Params) (*Pipeline, error) {
	if p.Store == nil {
		return nil, fmt.Errorf("chunk store is required")
	}
	if p.Embed == nil {
		return nil, fmt.Errorf("embed function is required")
	}
	if p.Chunker == nil {
		p.Chunker = NewWordChunker(DefaultChunkSize, DefaultChunkOverlap)
	}
	if p.Enhance == nil {
		p.Enhance = Enhance
	}
	if p.Logger == nil {
		p.Logger = slog.Default()
	}

	return &Pipeline{
		store:    p.Store,
		resolver: p.Resolver,
		lister:   p.Lister,
		chunker:  p.Chunker,
		enhance:  p.Enhance,
		embed:    p.Embed,
		cfg:      p.Config,
		logger:   p.Logger,
	}, nil
}

// IngestDocument ingests one source document, reconstructing its content
// fragment by fragment. An empty document is a no-op.
func (p *Pipeline) IngestDocument(ctx context.Context, doc *couchdb.Document) error {
	if p.resolver == nil {
		return fmt.Errorf("content resolver not configured")
	}
	_, err := p.ingestContent(ctx, doc, p.resolver.Content(ctx, doc))
	return err
}

// ingestContent runs the chunk/enhance/embed/replace sequence over already
// reconstructed content. Returns whether anything was stored.
func (p *Pipeline) ingestContent(ctx context.Context, doc *couchdb.Document, content string) (bool, error) {
	if strings.TrimSpace(content) == "" {
		p.logger.Debug("skipping document with empty content", "document_id", doc.ID)
		return false, nil
	}

	slug := doc.Slug
	if slug == "" {
		slug = doc.ID
	}
	title := doc.Title
	if title == "" {
		title = slug
	}
	source := p.sourceCategory(doc.Path)

	chunks := p.chunker.Split(content)
	records := make([]store.Chunk, 0, len(chunks))
	for i, chunk := range chunks {
		enhanced := p.enhance(chunk.Text, title, Enrichment{Summary: doc.Summary, Tags: doc.Tags})
		embedding, err := p.embed(ctx, enhanced)
		if err != nil {
			p.logger.Warn("failed to embed chunk, dropping",
				"document_id", doc.ID,
				"chunk_index", i,
				"error", err)
			continue
		}

		metadata := map[string]any{
			store.MetaTags:       doc.Tags,
			store.MetaCreatedAt:  doc.CreatedAt,
			store.MetaUpdatedAt:  doc.UpdatedAt,
			store.MetaSource:     source,
			store.MetaChunkIndex: i,
		}
		if doc.Summary != "" {
			metadata[store.MetaSummary] = doc.Summary
		}
		if chunk.Heading != "" {
			metadata[store.MetaHeading] = chunk.Heading
		}

		records = append(records, store.Chunk{
			ID:         uuid.New(),
			DocumentID: doc.ID,
			Slug:       slug,
			Title:      title,
			Content:    chunk.Text,
			Metadata:   metadata,
			Embedding:  embedding,
		})
	}

	// Replace only on partial success or better; an attempt where every
	// embedding failed must leave the stored chunks untouched.
	if len(records) == 0 {
		return false, fmt.Errorf("%w: %s", ErrNoChunksEmbedded, doc.ID)
	}

	if err := p.store.ReplaceForDocument(ctx, doc.ID, records); err != nil {
		return false, fmt.Errorf("failed to store chunks for %q: %w", doc.ID, err)
	}

	p.logger.Info("ingested document",
		"document_id", doc.ID,
		"chunks_total", len(chunks),
		"chunks_stored", len(records))
	return true, nil
}

// DeleteDocument removes every indexed chunk for the document id.
func (p *Pipeline) DeleteDocument(ctx context.Context, documentID string) error {
	deleted, err := p.store.DeleteForDocument(ctx, documentID)
	if err != nil {
		return err
	}
	p.logger.Info("deleted document chunks", "document_id", documentID, "chunks", deleted)
	return nil
}

// ReindexResult summarizes a full-corpus ingestion pass.
type ReindexResult struct {
	Ingested int
	Skipped  int
	Deleted  int
	Failed   int
	Duration time.Duration
}

// IngestAll performs a full-corpus pass over the source database: deleted
// documents have their chunks removed, non-qualifying documents are skipped,
// and everything else is ingested using the preloaded bulk map so child
// fragments resolve without per-document round trips. Individual document
// failures are logged and counted, never fatal to the pass.
func (p *Pipeline) IngestAll(ctx context.Context) (*ReindexResult, error) {
	if p.lister == nil {
		return nil, fmt.Errorf("document lister not configured")
	}

	start := time.Now()
	docs, err := p.lister.AllDocs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list source documents: %w", err)
	}

	ids := make([]string, 0, len(docs))
	for id := range docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	result := &ReindexResult{}
	for _, id := range ids {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		doc := docs[id]
		if doc.Deleted {
			if _, err := p.store.DeleteForDocument(ctx, doc.ID); err != nil {
				p.logger.Warn("failed to delete chunks for deleted document", "document_id", doc.ID, "error", err)
				result.Failed++
				continue
			}
			result.Deleted++
			continue
		}

		if !p.qualifies(doc) {
			result.Skipped++
			continue
		}

		stored, err := p.ingestContent(ctx, doc, couchdb.ContentFromSet(doc, docs))
		if err != nil {
			p.logger.Warn("failed to ingest document", "document_id", doc.ID, "error", err)
			result.Failed++
			continue
		}
		if stored {
			result.Ingested++
		} else {
			result.Skipped++
		}
	}

	result.Duration = time.Since(start)
	p.logger.Info("full ingestion completed",
		"ingested", result.Ingested,
		"skipped", result.Skipped,
		"deleted", result.Deleted,
		"failed", result.Failed,
		"duration", result.Duration.String())
	return result, nil
}

// qualifies reports whether the document is indexable: a plain container
// whose path falls under one of the configured prefixes.
func (p *Pipeline) qualifies(doc *couchdb.Document) bool {
	if doc.Kind != couchdb.KindPlain {
		return false
	}
	return strings.HasPrefix(doc.Path, p.cfg.BlogPrefix) ||
		strings.HasPrefix(doc.Path, p.cfg.KBPrefix)
}

func (p *Pipeline) sourceCategory(path string) string {
	switch {
	case strings.HasPrefix(path, p.cfg.BlogPrefix):
		return store.SourceBlog
	case strings.HasPrefix(path, p.cfg.KBPrefix):
		return store.SourceKnowledge
	case strings.HasPrefix(path, p.cfg.PortfolioPrefix):
		return store.SourcePortfolio
	default:
		return "unknown"
	}
}
