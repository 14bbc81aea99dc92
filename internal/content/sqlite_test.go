package content

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contentexpiry/internal/db"
	"contentexpiry/internal/domain"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	conn, err := db.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, EnsureSchema(conn))
	return NewSQLiteStore(conn)
}

func TestStore_CreateDefaultsAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.Create(ctx, domain.ContentItem{Title: "Hello"})
	require.NoError(t, err)

	item, err := s.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, "Hello", item.Title)
	assert.Equal(t, "post", item.Type)
	assert.Equal(t, domain.StatusPublish, item.Status)
	assert.False(t, item.CreatedAt.IsZero())

	missing, err := s.Get(ctx, id+100)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestStore_SetStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id, err := s.Create(ctx, domain.ContentItem{Title: "a"})
	require.NoError(t, err)

	require.NoError(t, s.SetStatus(ctx, id, domain.StatusDraft))
	item, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDraft, item.Status)

	assert.ErrorIs(t, s.SetStatus(ctx, 999, domain.StatusDraft), ErrNotFound)
}

func TestStore_Meta(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id, err := s.Create(ctx, domain.ContentItem{Title: "a"})
	require.NoError(t, err)

	v, err := s.GetMeta(ctx, id, "k")
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, s.SetMeta(ctx, id, "k", "one"))
	require.NoError(t, s.SetMeta(ctx, id, "k", "two"))
	v, err = s.GetMeta(ctx, id, "k")
	require.NoError(t, err)
	assert.Equal(t, "two", v)

	require.NoError(t, s.DeleteMeta(ctx, id, "k"))
	require.NoError(t, s.DeleteMeta(ctx, id, "k"))
	v, err = s.GetMeta(ctx, id, "k")
	require.NoError(t, err)
	assert.Empty(t, v)
}

func TestStore_DeleteRemovesItemAndMeta(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id, err := s.Create(ctx, domain.ContentItem{Title: "a"})
	require.NoError(t, err)
	require.NoError(t, s.SetMeta(ctx, id, "k", "v"))

	require.NoError(t, s.Delete(ctx, id))

	item, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, item)
	v, err := s.GetMeta(ctx, id, "k")
	require.NoError(t, err)
	assert.Empty(t, v)

	assert.ErrorIs(t, s.Delete(ctx, id), ErrNotFound)
}
