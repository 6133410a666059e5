package couchdb

import (
	"context"
	"encoding/base64"
	"log/slog"
	"strings"
)

// Fetcher is the single-document lookup used when reconstructing content one
// fragment at a time. *Client satisfies it.
type Fetcher interface {
	Get(ctx context.Context, id string) (*Document, error)
}

// Reconstructor rebuilds the full content of a logical document from its
// ordered leaf fragments, fetching each fragment individually. For listing
// passes that already hold every document, use ContentFromSet and
// BinaryContentFromSet instead to avoid per-fragment round trips.
type Reconstructor struct {
	fetcher Fetcher
	logger  *slog.Logger
}

// NewReconstructor creates a Reconstructor. logger may be nil.
func NewReconstructor(fetcher Fetcher, logger *slog.Logger) *Reconstructor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconstructor{fetcher: fetcher, logger: logger}
}

// Content returns the document's text content: inline data when present,
// otherwise the in-order concatenation of its leaf fragments. Missing or
// unfetchable fragments are skipped; partial reconstruction is acceptable.
func (r *Reconstructor) Content(ctx context.Context, doc *Document) string {
	return assembleText(doc, r.resolve(ctx))
}

// BinaryContent returns the document's binary content, base64-decoding each
// fragment. A fragment that fails to decode is logged and skipped rather than
// failing the whole document.
func (r *Reconstructor) BinaryContent(ctx context.Context, doc *Document) []byte {
	return assembleBinary(doc, r.resolve(ctx), r.logger)
}

func (r *Reconstructor) resolve(ctx context.Context) func(string) *Document {
	return func(id string) *Document {
		child, err := r.fetcher.Get(ctx, id)
		if err != nil {
			r.logger.Debug("child fragment unavailable", "id", id, "error", err)
			return nil
		}
		return child
	}
}

// ContentFromSet reconstructs text content using a preloaded map of all
// documents, avoiding per-fragment fetches.
func ContentFromSet(doc *Document, docs map[string]*Document) string {
	return assembleText(doc, func(id string) *Document { return docs[id] })
}

// BinaryContentFromSet is the bulk-map variant of BinaryContent.
func BinaryContentFromSet(doc *Document, docs map[string]*Document, logger *slog.Logger) []byte {
	if logger == nil {
		logger = slog.Default()
	}
	return assembleBinary(doc, func(id string) *Document { return docs[id] }, logger)
}

func assembleText(doc *Document, resolve func(string) *Document) string {
	if doc.Data != "" {
		return doc.Data
	}

	var b strings.Builder
	for _, id := range doc.Children {
		child := resolve(id)
		if child == nil || child.Kind != KindLeaf || child.Data == "" {
			continue
		}
		b.WriteString(child.Data)
	}
	return b.String()
}

func assembleBinary(doc *Document, resolve func(string) *Document, logger *slog.Logger) []byte {
	var parts []byte
	for _, id := range doc.Children {
		child := resolve(id)
		if child == nil || child.Kind != KindLeaf || child.Data == "" {
			continue
		}
		data, err := base64.StdEncoding.DecodeString(child.Data)
		if err != nil {
			logger.Warn("failed to decode base64 fragment, skipping", "id", id, "error", err)
			continue
		}
		parts = append(parts, data...)
	}
	return parts
}
