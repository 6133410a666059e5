package ingest

import "strings"

// Enrichment is the display metadata folded into a chunk's embedding input.
type Enrichment struct {
	Summary string
	Tags    []string
}

// EnhanceFunc builds the embedding input for a chunk by structuring it with
// its title and selected metadata. The enhanced text is only embedded, never
// stored; the original chunk text is what retrieval returns.
type EnhanceFunc func(content, title string, meta Enrichment) string

// Enhance is the default EnhanceFunc: a Title/Summary/Tags/Content framing
// that gives the embedding model context beyond the raw chunk.
func Enhance(content, title string, meta Enrichment) string {
	var parts []string
	if title != "" {
		parts = append(parts, "Title: "+title)
	}
	if meta.Summary != "" {
		parts = append(parts, "Summary: "+meta.Summary)
	}
	if len(meta.Tags) > 0 {
		parts = append(parts, "Tags: "+strings.Join(meta.Tags, ", "))
	}
	parts = append(parts, "Content: "+content)
	return strings.Join(parts, "\n")
}

// enrichmentFromMetadata pulls the enhanceable fields out of a free-form
// metadata bag, tolerating the JSON decoder's []any tag shape.
func enrichmentFromMetadata(metadata map[string]any) Enrichment {
	var meta Enrichment
	if s, ok := metadata["summary"].(string); ok {
		meta.Summary = s
	}
	switch tags := metadata["tags"].(type) {
	case []string:
		meta.Tags = tags
	case []any:
		for _, tag := range tags {
			if s, ok := tag.(string); ok {
				meta.Tags = append(meta.Tags, s)
			}
		}
	}
	return meta
}
