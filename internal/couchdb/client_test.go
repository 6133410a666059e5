package couchdb

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docmirror/internal/log"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := New(Config{BaseURL: srv.URL, Database: "testdb"}, log.NewNop())
	require.NoError(t, err)
	return client
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{Database: "db"}, nil)
	assert.Error(t, err)

	_, err = New(Config{BaseURL: "http://localhost:5984"}, nil)
	assert.Error(t, err)
}

func TestGet_DecodesDocument(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/testdb/blog%2Fa.md", r.URL.EscapedPath())
		fmt.Fprint(w, `{"_id":"blog/a.md","type":"plain","path":"blog/a.md","children":["c1","c2"],"tags":["go"]}`)
	}))

	doc, err := client.Get(context.Background(), "blog/a.md")
	require.NoError(t, err)
	assert.Equal(t, "blog/a.md", doc.ID)
	assert.Equal(t, KindPlain, doc.Kind)
	assert.Equal(t, []string{"c1", "c2"}, doc.Children)
	assert.Equal(t, []string{"go"}, doc.Tags)
}

func TestGet_NotFound(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"not_found"}`, http.StatusNotFound)
	}))

	_, err := client.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAllDocs_BuildsBulkMap(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/testdb/_all_docs", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("include_docs"))
		fmt.Fprint(w, `{"rows":[
			{"id":"blog/a","doc":{"_id":"blog/a","type":"plain","children":["c1"]}},
			{"id":"c1","doc":{"_id":"c1","type":"leaf","data":"Hello"}},
			{"id":"_design/x"}
		]}`)
	}))

	docs, err := client.AllDocs(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "Hello", docs["c1"].Data)
	assert.NotContains(t, docs, "_design/x")
}

func TestChanges_StreamsSinceCheckpoint(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/testdb/_changes", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "continuous", q.Get("feed"))
		assert.Equal(t, "true", q.Get("include_docs"))
		assert.Equal(t, "5-abc", q.Get("since"))
		assert.Equal(t, "true", q.Get("heartbeat"))

		fmt.Fprintln(w, `{"seq":"6-def","id":"kb/n","doc":{"_id":"kb/n","type":"plain"}}`)
	}))

	stream, err := client.Changes(context.Background(), "5-abc")
	require.NoError(t, err)
	defer stream.Close()

	change, err := stream.Next()
	require.NoError(t, err)
	assert.Equal(t, "6-def", change.Seq)
}

func TestChanges_ServerErrorIsTransportError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))

	_, err := client.Changes(context.Background(), "now")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}
