package executor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contentexpiry/internal/content"
	"contentexpiry/internal/db"
	"contentexpiry/internal/domain"
	"contentexpiry/internal/events"
)

type recorder struct{ got []events.Event }

func (r *recorder) Publish(_ context.Context, e events.Event) { r.got = append(r.got, e) }

func (r *recorder) names() []string {
	out := make([]string, 0, len(r.got))
	for _, e := range r.got {
		out = append(out, e.Name())
	}
	return out
}

func newItems(t *testing.T) content.Store {
	t.Helper()
	conn, err := db.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, content.EnsureSchema(conn))
	return content.NewSQLiteStore(conn)
}

func seed(t *testing.T, items content.Store) int64 {
	t.Helper()
	id, err := items.Create(context.Background(), domain.ContentItem{Title: "Spring sale", Type: "post"})
	require.NoError(t, err)
	return id
}

func ptr(s string) *string { return &s }

func TestProcess_Unpublish(t *testing.T) {
	ctx := context.Background()
	items := newItems(t)
	id := seed(t, items)
	require.NoError(t, items.SetMeta(ctx, id, domain.RedirectMetaKey, "https://example.com/old"))
	rec := &recorder{}
	e := New(items, rec)

	ok := e.Process(ctx, domain.Schedule{ID: 1, ContentID: id, Action: domain.ActionUnpublish})
	require.True(t, ok)

	item, err := items.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDraft, item.Status)
	meta, err := items.GetMeta(ctx, id, domain.RedirectMetaKey)
	require.NoError(t, err)
	assert.Empty(t, meta)

	assert.Equal(t, []string{events.NameBeforeExpiryAction, events.NameAfterExpiryAction}, rec.names())
	after := rec.got[1].(events.AfterExpiryAction)
	assert.True(t, after.Result)
	assert.Equal(t, int64(1), after.Schedule.ID)
}

func TestProcess_Delete(t *testing.T) {
	ctx := context.Background()
	items := newItems(t)
	id := seed(t, items)
	e := New(items, nil)

	require.True(t, e.Process(ctx, domain.Schedule{ID: 1, ContentID: id, Action: domain.ActionDelete}))
	item, err := items.Get(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, item)
}

func TestProcess_Redirect(t *testing.T) {
	ctx := context.Background()
	items := newItems(t)
	id := seed(t, items)
	e := New(items, nil)

	require.True(t, e.Process(ctx, domain.Schedule{ID: 1, ContentID: id, Action: domain.ActionRedirect, RedirectTarget: ptr("https://example.com/new")}))
	meta, err := items.GetMeta(ctx, id, domain.RedirectMetaKey)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/new", meta)

	item, err := items.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPublish, item.Status)
}

func TestProcess_RedirectInvalidTarget(t *testing.T) {
	ctx := context.Background()
	items := newItems(t)
	id := seed(t, items)
	rec := &recorder{}
	e := New(items, rec)

	for _, target := range []*string{nil, ptr(""), ptr("not a url"), ptr("ftp://example.com/x"), ptr("javascript:alert(1)")} {
		assert.False(t, e.Process(ctx, domain.Schedule{ID: 1, ContentID: id, Action: domain.ActionRedirect, RedirectTarget: target}))
	}
	meta, err := items.GetMeta(ctx, id, domain.RedirectMetaKey)
	require.NoError(t, err)
	assert.Empty(t, meta)

	last := rec.got[len(rec.got)-1].(events.AfterExpiryAction)
	assert.False(t, last.Result)
}

func TestProcess_ChangeStatus(t *testing.T) {
	ctx := context.Background()
	items := newItems(t)
	id := seed(t, items)
	require.NoError(t, items.SetMeta(ctx, id, domain.RedirectMetaKey, "https://example.com/old"))
	e := New(items, nil)

	require.True(t, e.Process(ctx, domain.Schedule{ID: 1, ContentID: id, Action: domain.ActionChangeStatus, TargetStatus: ptr("private")}))
	item, err := items.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "private", item.Status)
	meta, err := items.GetMeta(ctx, id, domain.RedirectMetaKey)
	require.NoError(t, err)
	assert.Empty(t, meta)
}

func TestProcess_ChangeStatusEmpty(t *testing.T) {
	ctx := context.Background()
	items := newItems(t)
	id := seed(t, items)
	e := New(items, nil)

	assert.False(t, e.Process(ctx, domain.Schedule{ID: 1, ContentID: id, Action: domain.ActionChangeStatus}))
	assert.False(t, e.Process(ctx, domain.Schedule{ID: 1, ContentID: id, Action: domain.ActionChangeStatus, TargetStatus: ptr("  ")}))

	item, err := items.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPublish, item.Status)
}

func TestProcess_MissingContentSkipsEvents(t *testing.T) {
	items := newItems(t)
	rec := &recorder{}
	e := New(items, rec)

	assert.False(t, e.Process(context.Background(), domain.Schedule{ID: 1, ContentID: 9999, Action: domain.ActionUnpublish}))
	assert.False(t, e.Process(context.Background(), domain.Schedule{ID: 2, ContentID: 0, Action: domain.ActionUnpublish}))
	assert.Empty(t, rec.got)
}

func TestProcess_UnknownActionFails(t *testing.T) {
	ctx := context.Background()
	items := newItems(t)
	id := seed(t, items)
	rec := &recorder{}
	e := New(items, rec)

	assert.False(t, e.Process(ctx, domain.Schedule{ID: 1, ContentID: id, Action: "archive"}))
	assert.Equal(t, []string{events.NameBeforeExpiryAction, events.NameAfterExpiryAction}, rec.names())
}

func TestRegister_CustomAction(t *testing.T) {
	ctx := context.Background()
	items := newItems(t)
	id := seed(t, items)
	e := New(items, nil)

	var seen int64
	require.NoError(t, e.Register("archive", HandlerFunc(func(_ context.Context, s domain.Schedule) error {
		seen = s.ContentID
		return nil
	})))
	require.NoError(t, e.Register("flaky", HandlerFunc(func(context.Context, domain.Schedule) error {
		return errors.New("boom")
	})))

	assert.True(t, e.Has("archive"))
	assert.True(t, e.Process(ctx, domain.Schedule{ID: 1, ContentID: id, Action: "archive"}))
	assert.Equal(t, id, seen)
	assert.False(t, e.Process(ctx, domain.Schedule{ID: 2, ContentID: id, Action: "flaky"}))

	assert.Error(t, e.Register("unpublish", HandlerFunc(func(context.Context, domain.Schedule) error { return nil })))
	assert.Error(t, e.Register(" ", HandlerFunc(func(context.Context, domain.Schedule) error { return nil })))
	assert.Equal(t, []string{"archive", "change_status", "delete", "flaky", "redirect", "unpublish"}, e.Actions())
}
