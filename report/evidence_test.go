package report

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func newTestArchive(t *testing.T) *DocumentArchive {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})

	archive, err := NewDocumentArchive(db)
	require.NoError(t, err)
	return archive
}

func TestDocumentArchive_FetchReturnsThreadDocumentsInOrder(t *testing.T) {
	archive := newTestArchive(t)
	ctx := context.Background()

	require.NoError(t, archive.Put(ctx, "t-1", "first.md", "alpha"))
	require.NoError(t, archive.Put(ctx, "t-1", "second.md", "beta"))
	require.NoError(t, archive.Put(ctx, "t-2", "other.md", "gamma"))

	fragments, err := archive.Fetch(ctx, Query{ThreadID: "t-1"})
	require.NoError(t, err)

	require.Len(t, fragments, 2)
	assert.Equal(t, "first.md", fragments[0].Ref)
	assert.Equal(t, "alpha", fragments[0].Text)
	assert.Equal(t, "second.md", fragments[1].Ref)
	assert.Equal(t, "beta", fragments[1].Text)
}

func TestDocumentArchive_FetchUnknownThreadIsEmpty(t *testing.T) {
	archive := newTestArchive(t)

	fragments, err := archive.Fetch(context.Background(), Query{ThreadID: "t-none"})
	require.NoError(t, err)
	assert.Empty(t, fragments)
}

func TestDocumentArchive_FetchRequiresThreadID(t *testing.T) {
	archive := newTestArchive(t)

	_, err := archive.Fetch(context.Background(), Query{})
	require.Error(t, err)
}
