package callbackstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hrygo/botgateway/internal/callbackstore"
	"github.com/hrygo/botgateway/internal/storedb"
)

func newTestStore(t *testing.T) *callbackstore.Store {
	t.Helper()
	db, err := storedb.Open(storedb.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return callbackstore.New(db)
}

func TestPutGetDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	msg := "ok"
	require.NoError(t, store.Put(ctx, &callbackstore.Record{QueryID: "7", Alert: true, Message: &msg}))

	rec, err := store.Get(ctx, "7")
	require.NoError(t, err)
	require.True(t, rec.Alert)
	require.Equal(t, "ok", *rec.Message)

	require.NoError(t, store.Delete(ctx, "7"))
	_, err = store.Get(ctx, "7")
	require.ErrorIs(t, err, callbackstore.ErrNotFound)
}

func TestPutIsUpsertByQueryID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, &callbackstore.Record{QueryID: "1", CacheTime: 1}))
	require.NoError(t, store.Put(ctx, &callbackstore.Record{QueryID: "1", CacheTime: 2}))

	rec, err := store.Get(ctx, "1")
	require.NoError(t, err)
	require.Equal(t, 2, rec.CacheTime)
}

func TestDeleteMissingIsNoop(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Delete(context.Background(), "missing"))
}
