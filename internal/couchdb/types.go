package couchdb

import "encoding/json"

// Document kinds stored in the source database. A "plain" document with
// children is a container whose content lives in ordered "leaf" fragments;
// a leaf holds one piece of text or base64-encoded bytes.
const (
	KindPlain = "plain"
	KindLeaf  = "leaf"
)

// Document is the source document shape consumed from the store.
type Document struct {
	ID       string   `json:"_id"`
	Rev      string   `json:"_rev,omitempty"`
	Kind     string   `json:"type"`
	Path     string   `json:"path,omitempty"`
	Children []string `json:"children,omitempty"`
	Data     string   `json:"data,omitempty"`
	Deleted  bool     `json:"deleted,omitempty"`

	// Display metadata carried on container documents.
	Slug      string   `json:"slug,omitempty"`
	Title     string   `json:"title,omitempty"`
	Summary   string   `json:"summary,omitempty"`
	Tags      []string `json:"tags,omitempty"`
	CreatedAt string   `json:"created_at,omitempty"`
	UpdatedAt string   `json:"updated_at,omitempty"`
}

// Change is one record from the continuous changes feed.
type Change struct {
	Seq     string
	ID      string
	Doc     *Document
	Deleted bool
}

// changeWire mirrors the feed's JSON. seq is kept raw because older servers
// emit numeric sequence values while newer ones emit opaque strings.
type changeWire struct {
	Seq     json.RawMessage `json:"seq"`
	ID      string          `json:"id"`
	Doc     *Document       `json:"doc"`
	Deleted bool            `json:"deleted"`
}

// UnmarshalJSON decodes a change record, normalizing the sequence token to a
// string so callers can treat it as opaque.
func (c *Change) UnmarshalJSON(data []byte) error {
	var wire changeWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	c.Seq = normalizeSeq(wire.Seq)
	c.ID = wire.ID
	c.Doc = wire.Doc
	c.Deleted = wire.Deleted
	return nil
}

func normalizeSeq(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	// Numeric sequence from a pre-2.x server: keep the literal digits.
	return string(raw)
}
