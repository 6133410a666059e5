package store

import (
	"time"

	"github.com/google/uuid"
)

// Metadata keys persisted in the chunk metadata bag.
const (
	MetaTags        = "tags"
	MetaCreatedAt   = "created_at"
	MetaUpdatedAt   = "updated_at"
	MetaSource      = "source"
	MetaContentHash = "content_hash"
	MetaChunkIndex  = "chunk_index"
	MetaHeading     = "heading"
	MetaSummary     = "summary"
)

// Source categories recorded in chunk metadata. SourceNavigation marks the
// reserved category that retrieval pins into every chat query.
const (
	SourceBlog       = "blog"
	SourceKnowledge  = "kb"
	SourcePortfolio  = "portfolio"
	SourceNavigation = "navigation"
)

// Chunk is one indexed text window of a logical document, ready to persist.
// Its primary key is independent of the owning document id; many chunks share
// one DocumentID.
type Chunk struct {
	ID         uuid.UUID
	DocumentID string
	Slug       string
	Title      string
	Content    string
	Metadata   map[string]any
	Embedding  []float32 // nil means not embedded
	CreatedAt  time.Time
}

// SearchRow is one similarity search hit.
type SearchRow struct {
	ID         uuid.UUID
	DocumentID string
	Slug       string
	Title      string
	Content    string
	Metadata   map[string]any
	CreatedAt  time.Time
	Similarity float32
}
