package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docmirror/internal/couchdb"
	"docmirror/internal/log"
	"docmirror/internal/store"
)

type fakeChunkStore struct {
	replaced map[string][]store.Chunk
	deleted  []string
	hashes   map[string]string

	batchUpserts  []store.Chunk
	batchRemovals []string

	replaceErr error
	deleteErr  error
	batchErr   error
}

func newFakeChunkStore() *fakeChunkStore {
	return &fakeChunkStore{
		replaced: make(map[string][]store.Chunk),
		hashes:   make(map[string]string),
	}
}

func (f *fakeChunkStore) ReplaceForDocument(_ context.Context, documentID string, chunks []store.Chunk) error {
	if f.replaceErr != nil {
		return f.replaceErr
	}
	f.replaced[documentID] = chunks
	return nil
}

func (f *fakeChunkStore) DeleteForDocument(_ context.Context, documentID string) (int64, error) {
	if f.deleteErr != nil {
		return 0, f.deleteErr
	}
	f.deleted = append(f.deleted, documentID)
	return 1, nil
}

func (f *fakeChunkStore) ContentHashesByPrefix(_ context.Context, _ string) (map[string]string, error) {
	return f.hashes, nil
}

func (f *fakeChunkStore) ApplyBatch(_ context.Context, upserts []store.Chunk, removals []string) error {
	if f.batchErr != nil {
		return f.batchErr
	}
	f.batchUpserts = upserts
	f.batchRemovals = removals
	for _, c := range upserts {
		if h, ok := c.Metadata[store.MetaContentHash].(string); ok {
			f.hashes[c.DocumentID] = h
		}
	}
	for _, id := range removals {
		delete(f.hashes, id)
	}
	return nil
}

type fakeResolver struct {
	content string
}

func (f *fakeResolver) Content(_ context.Context, _ *couchdb.Document) string {
	return f.content
}

type fakeLister struct {
	docs map[string]*couchdb.Document
	err  error
}

func (f *fakeLister) AllDocs(_ context.Context) (map[string]*couchdb.Document, error) {
	return f.docs, f.err
}

func stubEmbed(_ context.Context, _ string) ([]float32, error) {
	return []float32{1.0}, nil
}

func newTestPipeline(t *testing.T, st *fakeChunkStore, opts Params) *Pipeline {
	t.Helper()
	opts.Store = st
	if opts.Embed == nil {
		opts.Embed = stubEmbed
	}
	opts.Logger = log.NewNop()
	if opts.Config == (Config{}) {
		opts.Config = Config{BlogPrefix: "blog/", KBPrefix: "kb/", PortfolioPrefix: "portfolio/"}
	}
	p, err := New(opts)
	require.NoError(t, err)
	return p
}

func TestIngestDocument(t *testing.T) {
	doc := &couchdb.Document{
		ID:    "blog/a",
		Kind:  couchdb.KindPlain,
		Path:  "blog/a",
		Slug:  "a",
		Title: "Post A",
		Tags:  []string{"go"},
	}

	t.Run("stores one chunk for short content", func(t *testing.T) {
		st := newFakeChunkStore()
		p := newTestPipeline(t, st, Params{Resolver: &fakeResolver{content: "Hello World"}})

		require.NoError(t, p.IngestDocument(context.Background(), doc))

		chunks := st.replaced["blog/a"]
		require.Len(t, chunks, 1)
		assert.Equal(t, "Hello World", chunks[0].Content)
		assert.Equal(t, "a", chunks[0].Slug)
		assert.Equal(t, "Post A", chunks[0].Title)
		assert.Equal(t, []float32{1.0}, chunks[0].Embedding)
		assert.Equal(t, store.SourceBlog, chunks[0].Metadata[store.MetaSource])
		assert.Equal(t, 0, chunks[0].Metadata[store.MetaChunkIndex])
	})

	t.Run("empty content is a no-op", func(t *testing.T) {
		st := newFakeChunkStore()
		p := newTestPipeline(t, st, Params{Resolver: &fakeResolver{content: "  \n "}})

		require.NoError(t, p.IngestDocument(context.Background(), doc))
		assert.Empty(t, st.replaced)
	})

	t.Run("all embeddings failing leaves the store untouched", func(t *testing.T) {
		st := newFakeChunkStore()
		embed := func(context.Context, string) ([]float32, error) {
			return nil, errors.New("model unavailable")
		}
		p := newTestPipeline(t, st, Params{Resolver: &fakeResolver{content: "some text"}, Embed: embed})

		err := p.IngestDocument(context.Background(), doc)
		require.ErrorIs(t, err, ErrNoChunksEmbedded)
		assert.Empty(t, st.replaced)
	})

	t.Run("partial embedding failure keeps the surviving chunks", func(t *testing.T) {
		st := newFakeChunkStore()
		calls := 0
		embed := func(context.Context, string) ([]float32, error) {
			calls++
			if calls == 1 {
				return nil, errors.New("transient")
			}
			return []float32{1.0}, nil
		}
		p := newTestPipeline(t, st, Params{
			Resolver: &fakeResolver{content: words(12)},
			Chunker:  NewWordChunker(5, 0),
			Embed:    embed,
		})

		require.NoError(t, p.IngestDocument(context.Background(), doc))
		// 12 words at size 5 yields 3 windows, first embed fails.
		require.Len(t, st.replaced["blog/a"], 2)
	})

	t.Run("missing slug and title fall back to the id", func(t *testing.T) {
		st := newFakeChunkStore()
		p := newTestPipeline(t, st, Params{Resolver: &fakeResolver{content: "text"}})
		bare := &couchdb.Document{ID: "kb/note", Kind: couchdb.KindPlain, Path: "kb/note"}

		require.NoError(t, p.IngestDocument(context.Background(), bare))

		chunks := st.replaced["kb/note"]
		require.Len(t, chunks, 1)
		assert.Equal(t, "kb/note", chunks[0].Slug)
		assert.Equal(t, "kb/note", chunks[0].Title)
		assert.Equal(t, store.SourceKnowledge, chunks[0].Metadata[store.MetaSource])
	})
}

func TestDeleteDocument(t *testing.T) {
	st := newFakeChunkStore()
	p := newTestPipeline(t, st, Params{Resolver: &fakeResolver{}})

	require.NoError(t, p.DeleteDocument(context.Background(), "blog/gone"))
	assert.Equal(t, []string{"blog/gone"}, st.deleted)
}

func TestIngestAll(t *testing.T) {
	leaf := func(id, data string) *couchdb.Document {
		return &couchdb.Document{ID: id, Kind: couchdb.KindLeaf, Data: data}
	}

	t.Run("reconstructs from the bulk set and counts outcomes", func(t *testing.T) {
		docs := map[string]*couchdb.Document{
			"blog/a": {
				ID: "blog/a", Kind: couchdb.KindPlain, Path: "blog/a",
				Slug: "a", Title: "A", Children: []string{"leaf:1", "leaf:2"},
			},
			"leaf:1":      leaf("leaf:1", "Hello "),
			"leaf:2":      leaf("leaf:2", "World"),
			"private/x":   {ID: "private/x", Kind: couchdb.KindPlain, Path: "private/x", Children: []string{"leaf:1"}},
			"blog/gone":   {ID: "blog/gone", Deleted: true},
			"blog/hollow": {ID: "blog/hollow", Kind: couchdb.KindPlain, Path: "blog/hollow"},
		}
		st := newFakeChunkStore()
		p := newTestPipeline(t, st, Params{Lister: &fakeLister{docs: docs}})

		result, err := p.IngestAll(context.Background())
		require.NoError(t, err)

		assert.Equal(t, 1, result.Ingested)
		assert.Equal(t, 1, result.Deleted)
		// leaves, the out-of-prefix doc, and the empty doc are skipped
		assert.Equal(t, 4, result.Skipped)
		assert.Equal(t, 0, result.Failed)

		chunks := st.replaced["blog/a"]
		require.Len(t, chunks, 1)
		assert.Equal(t, "Hello World", chunks[0].Content)
		assert.Equal(t, []string{"blog/gone"}, st.deleted)
	})

	t.Run("per-document failures do not abort the pass", func(t *testing.T) {
		docs := map[string]*couchdb.Document{
			"blog/bad":  {ID: "blog/bad", Kind: couchdb.KindPlain, Path: "blog/bad", Children: []string{"leaf:b"}},
			"blog/good": {ID: "blog/good", Kind: couchdb.KindPlain, Path: "blog/good", Children: []string{"leaf:g"}},
			"leaf:b":    leaf("leaf:b", "bad text"),
			"leaf:g":    leaf("leaf:g", "good text"),
		}
		st := newFakeChunkStore()
		embed := func(_ context.Context, text string) ([]float32, error) {
			if strings.Contains(text, "bad") {
				return nil, errors.New("boom")
			}
			return []float32{1.0}, nil
		}
		p := newTestPipeline(t, st, Params{Lister: &fakeLister{docs: docs}, Embed: embed})

		result, err := p.IngestAll(context.Background())
		require.NoError(t, err)

		assert.Equal(t, 1, result.Ingested)
		assert.Equal(t, 1, result.Failed)
		assert.Contains(t, st.replaced, "blog/good")
		assert.NotContains(t, st.replaced, "blog/bad")
	})

	t.Run("listing failure is fatal", func(t *testing.T) {
		st := newFakeChunkStore()
		p := newTestPipeline(t, st, Params{Lister: &fakeLister{err: errors.New("down")}})

		_, err := p.IngestAll(context.Background())
		require.Error(t, err)
	})
}
