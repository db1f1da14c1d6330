package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hollowbrook/kbflow/core"
	"github.com/hollowbrook/kbflow/storage/memory"
)

func TestListerNewDocuments(t *testing.T) {
	store := memory.NewStore()
	store.Put("source/a.txt", []byte("alpha"), "text/plain")
	store.Put("source/b.txt", []byte("bravo"), "text/plain")

	lister := NewLister(store, "source/", "processed/", nil)
	items, counts, err := lister.List(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, counts.SourceTotal)
	assert.Equal(t, 0, counts.AlreadyProcessed)
	require.Len(t, items, 2)
	assert.Equal(t, "source/a.txt", items[0].Doc.Key)
	assert.False(t, items[0].Reindex)
	assert.NotEmpty(t, items[0].Doc.Fingerprint)
}

func TestListerSkipsProcessedDocuments(t *testing.T) {
	store := memory.NewStore()
	content := []byte("unchanged content")
	store.Put("source/a.txt", content, "text/plain")

	// Simulate a previous promote of identical content.
	infos, err := store.List(context.Background(), "source/")
	require.NoError(t, err)
	processedKey := ProcessedKey("source/", "processed/", "source/a.txt", infos[0].Fingerprint)
	store.Put(processedKey, content, "text/plain")

	lister := NewLister(store, "source/", "processed/", nil)
	items, counts, err := lister.List(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, counts.SourceTotal)
	assert.Equal(t, 1, counts.AlreadyProcessed)
	assert.Empty(t, items)
}

func TestListerDetectsChangedDocument(t *testing.T) {
	store := memory.NewStore()
	store.Put("source/a.txt", []byte("version two"), "text/plain")

	// Processed copy of the old version carries the old fingerprint tag.
	staleKey := "processed/a_00000000.txt"
	store.Put(staleKey, []byte("version one"), "text/plain")

	lister := NewLister(store, "source/", "processed/", nil)
	items, counts, err := lister.List(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, counts.AlreadyProcessed)
	require.Len(t, items, 1)
	assert.True(t, items[0].Reindex)
	assert.Equal(t, staleKey, items[0].StaleProcessedKey)
}

func TestListerIgnoresForeignProcessedObjects(t *testing.T) {
	store := memory.NewStore()
	store.Put("source/a.txt", []byte("content"), "text/plain")
	store.Put("processed/manually-placed.txt", []byte("whatever"), "text/plain")

	lister := NewLister(store, "source/", "processed/", nil)
	items, _, err := lister.List(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.False(t, items[0].Reindex)
}

func TestListerListingFailureIsRunFatal(t *testing.T) {
	store := memory.NewStore()
	store.ListErr = errors.New("endpoint unreachable")

	lister := NewLister(store, "source/", "processed/", nil)
	_, _, err := lister.List(context.Background())
	require.Error(t, err)
	assert.True(t, core.IsListing(err))
}
