package archive

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/powerhouse-kz/powerhouse/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)
	require.NoError(t, store.Migrate(context.Background()))
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestPutObjectIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	body := []byte(`{"id":"a1","sum":100}`)
	require.NoError(t, store.PutObject(ctx, model.KindContract, "a1", body))
	require.NoError(t, store.PutObject(ctx, model.KindContract, "a1", body))

	count, err := store.CountObjects(ctx, model.KindContract)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	ids, err := store.ListObjectIDs(ctx, model.KindContract)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"a1": true}, ids)
}

func TestPutObjectLastWriteWins(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.PutObject(ctx, model.KindLot, "l1", []byte(`{"v":1}`)))
	require.NoError(t, store.PutObject(ctx, model.KindLot, "l1", []byte(`{"v":2}`)))

	bodies, err := store.GetObjects(ctx, model.KindLot)
	require.NoError(t, err)
	require.Len(t, bodies, 1)
	assert.JSONEq(t, `{"v":2}`, string(bodies[0]))
}

func TestHasObject(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	has, err := store.HasObject(ctx, model.KindPlan, "p1")
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, store.PutObject(ctx, model.KindPlan, "p1", []byte(`{"id":"p1"}`)))

	has, err = store.HasObject(ctx, model.KindPlan, "p1")
	require.NoError(t, err)
	assert.True(t, has)

	// Same identifier under a different kind is a different record.
	has, err = store.HasObject(ctx, model.KindLot, "p1")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestCorruptedObjectReportedAbsent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.PutObject(ctx, model.KindContract, "ok", []byte(`{"id":"ok"}`)))
	require.NoError(t, store.PutObject(ctx, model.KindContract, "bad", []byte(`{"id":"bad"}`)))

	// Corrupt one record directly, bypassing PutObject.
	_, err := store.db.Exec(`UPDATE raw_objects SET body = '{"truncat' WHERE id = 'bad'`)
	require.NoError(t, err)

	has, err := store.HasObject(ctx, model.KindContract, "bad")
	require.NoError(t, err)
	assert.False(t, has, "corrupted record must read as absent")

	ids, err := store.ListObjectIDs(ctx, model.KindContract)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"ok": true}, ids)

	bodies, err := store.GetObjects(ctx, model.KindContract)
	require.NoError(t, err)
	require.Len(t, bodies, 1, "corruption of one record must not block reads of others")
	assert.JSONEq(t, `{"id":"ok"}`, string(bodies[0]))
}

func TestPutPageAndListPages(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.PutPage(ctx, model.KindLot, 1, []byte(`{"content":[1]}`), 1))
	require.NoError(t, store.PutPage(ctx, model.KindLot, 0, []byte(`{"content":[1,2]}`), 2))
	require.NoError(t, store.PutPage(ctx, model.KindLot, 0, []byte(`{"content":[1,2]}`), 2))

	pages, err := store.ListPages(ctx, model.KindLot)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, pages)

	pages, err = store.ListPages(ctx, model.KindPlan)
	require.NoError(t, err)
	assert.Empty(t, pages)
}

func TestPutPageRejectsNegativePage(t *testing.T) {
	store := newTestStore(t)
	err := store.PutPage(context.Background(), model.KindLot, -1, []byte(`{}`), 0)
	assert.Error(t, err)
}

func TestLoadCheckpoint(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.PutPage(ctx, model.KindPlan, 0, []byte(`{"content":[]}`), 0))
	require.NoError(t, store.PutPage(ctx, model.KindPlan, 1, []byte(`{"content":[]}`), 0))
	require.NoError(t, store.PutObject(ctx, model.KindPlan, "p1", []byte(`{"id":"p1"}`)))
	require.NoError(t, store.PutObject(ctx, model.KindContract, "c1", []byte(`{"id":"c1"}`)))

	cp, err := store.LoadCheckpoint(ctx, model.AllKinds)
	require.NoError(t, err)

	assert.Equal(t, map[int]bool{0: true, 1: true}, cp.PagesFor(model.KindPlan))
	assert.Equal(t, map[string]bool{"p1": true}, cp.ObjectsFor(model.KindPlan))
	assert.Equal(t, map[string]bool{"c1": true}, cp.ObjectsFor(model.KindContract))
	assert.Empty(t, cp.PagesFor(model.KindLot))
}

func TestMigrateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.Migrate(ctx))

	var version int
	require.NoError(t, store.db.QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, ExpectedSchemaVersion, version)
}
