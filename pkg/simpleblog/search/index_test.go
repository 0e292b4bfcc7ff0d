package search_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-blog/pkg/simpleblog"
	"github.com/tendant/simple-blog/pkg/simpleblog/search"
	"github.com/tendant/simple-blog/pkg/simpleblog/store/memory"
)

func newIndex(t *testing.T) *search.Index {
	t.Helper()
	idx, err := search.Open(filepath.Join(t.TempDir(), "blog.bleve"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func doc(id, name, content string) *simpleblog.Document {
	now := time.Now().UTC()
	return &simpleblog.Document{
		Header: simpleblog.Header{
			ID:          id,
			State:       simpleblog.ContentStatePublished,
			Name:        name,
			Author:      "pat",
			UpdatedDate: now,
		},
		Content: content,
	}
}

func TestIndexAndQuery(t *testing.T) {
	idx := newIndex(t)

	require.NoError(t, idx.IndexDocument(doc("1", "Concurrency in practice", "goroutines and channels")))
	require.NoError(t, idx.IndexDocument(doc("2", "Gardening notes", "tomatoes need sun")))

	count, err := idx.Count()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)

	hits, err := idx.Query("goroutines", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "1", hits[0].ID)
	assert.Equal(t, "Concurrency in practice", hits[0].Name)
	assert.Equal(t, "pat", hits[0].Author)
}

func TestDeleteRemovesFromResults(t *testing.T) {
	idx := newIndex(t)

	require.NoError(t, idx.IndexDocument(doc("1", "Post", "searchable text")))
	require.NoError(t, idx.Delete("1"))

	hits, err := idx.Query("searchable", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestReindexReplacesDocument(t *testing.T) {
	idx := newIndex(t)

	require.NoError(t, idx.IndexDocument(doc("1", "Post", "old body")))
	require.NoError(t, idx.IndexDocument(doc("1", "Post", "fresh body")))

	count, err := idx.Count()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)

	hits, err := idx.Query("fresh", 10)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
	hits, err = idx.Query("old", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestRebuildFromProvider(t *testing.T) {
	ctx := context.Background()
	provider := memory.New()
	require.NoError(t, provider.Initialise(ctx))

	for _, name := range []string{"walrus watching", "bird watching"} {
		_, err := provider.Save(ctx, &simpleblog.Document{
			Header:  simpleblog.Header{State: simpleblog.ContentStatePublished, Name: name},
			Content: "field notes on " + name,
		})
		require.NoError(t, err)
	}

	idx := newIndex(t)
	require.NoError(t, idx.Rebuild(ctx, provider))

	count, err := idx.Count()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)

	hits, err := idx.Query("walrus", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "walrus watching", hits[0].Name)
}
