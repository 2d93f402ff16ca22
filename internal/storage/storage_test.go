package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/go-redis/redismock/v9"
	"github.com/pocketbase/dbx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()

	db, err := dbx.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.DB().SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	store := NewSQLiteStore(db)
	require.NoError(t, store.EnsureSchema(context.Background()))
	return store
}

// Behavior shared by every backend that can run without a server.
func TestStores_Contract(t *testing.T) {
	backends := map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store { return NewMemoryStore() },
		"sqlite": func(t *testing.T) Store { return setupSQLiteStore(t) },
	}

	for name, newStore := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := newStore(t)

			_, err := store.Get(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, store.Set(ctx, "a", []byte(`[1]`)))
			value, err := store.Get(ctx, "a")
			require.NoError(t, err)
			assert.Equal(t, `[1]`, string(value))

			require.NoError(t, store.SetMany(ctx, map[string][]byte{
				"a": []byte(`[2]`),
				"b": []byte(`{"x":1}`),
			}))
			value, err = store.Get(ctx, "a")
			require.NoError(t, err)
			assert.Equal(t, `[2]`, string(value))
			value, err = store.Get(ctx, "b")
			require.NoError(t, err)
			assert.Equal(t, `{"x":1}`, string(value))

			require.NoError(t, store.Delete(ctx, "a", "b", "never-set"))
			_, err = store.Get(ctx, "a")
			assert.ErrorIs(t, err, ErrNotFound)
			_, err = store.Get(ctx, "b")
			assert.ErrorIs(t, err, ErrNotFound)

			assert.NoError(t, store.Ping(ctx))
		})
	}
}

func TestSQLiteStore_SchemaLifecycle(t *testing.T) {
	ctx := context.Background()
	store := setupSQLiteStore(t)

	// idempotent
	require.NoError(t, store.EnsureSchema(ctx))
	require.NoError(t, store.Set(ctx, "market:tickets", []byte("[]")))

	require.NoError(t, store.DropSchema(ctx))
	_, err := store.Get(ctx, "market:tickets")
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))

	require.NoError(t, store.EnsureSchema(ctx))
	_, err = store.Get(ctx, "market:tickets")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	original := []byte("abc")
	require.NoError(t, store.Set(ctx, "k", original))
	original[0] = 'z'

	value, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(value))
}

func TestMemoryStore_HonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := NewMemoryStore()
	assert.ErrorIs(t, store.Set(ctx, "k", []byte("v")), context.Canceled)
	_, err := store.Get(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRedisStore_Get(t *testing.T) {
	db, mock := redismock.NewClientMock()
	defer mock.ClearExpect()
	store := NewRedisStore(db)
	ctx := context.Background()

	mock.ExpectGet("market:tickets").SetVal(`[]`)
	mock.ExpectGet("market:userSession").RedisNil()

	value, err := store.Get(ctx, "market:tickets")
	require.NoError(t, err)
	assert.Equal(t, `[]`, string(value))

	_, err = store.Get(ctx, "market:userSession")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStore_GetError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	defer mock.ClearExpect()
	store := NewRedisStore(db)

	mock.ExpectGet("market:tickets").SetErr(errors.New("connection reset"))

	_, err := store.Get(context.Background(), "market:tickets")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStore_SetManyUsesTransaction(t *testing.T) {
	db, mock := redismock.NewClientMock()
	defer mock.ClearExpect()
	store := NewRedisStore(db)

	mock.ExpectTxPipeline()
	mock.ExpectSet("market:ownerships", `[]`, 0).SetVal("OK")
	mock.ExpectSet("market:tickets", `[{"id":"1"}]`, 0).SetVal("OK")
	mock.ExpectSet("market:transactions", `[]`, 0).SetVal("OK")
	mock.ExpectTxPipelineExec()

	err := store.SetMany(context.Background(), map[string][]byte{
		"market:tickets":      []byte(`[{"id":"1"}]`),
		"market:transactions": []byte(`[]`),
		"market:ownerships":   []byte(`[]`),
	})

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStore_SetAndDelete(t *testing.T) {
	db, mock := redismock.NewClientMock()
	defer mock.ClearExpect()
	store := NewRedisStore(db)
	ctx := context.Background()

	mock.ExpectSet("market:userSession", `{"id":"2"}`, 0).SetVal("OK")
	mock.ExpectDel("market:userSession", "market:tickets").SetVal(2)
	mock.ExpectPing().SetVal("PONG")

	require.NoError(t, store.Set(ctx, "market:userSession", []byte(`{"id":"2"}`)))
	require.NoError(t, store.Delete(ctx, "market:userSession", "market:tickets"))
	require.NoError(t, store.Delete(ctx))
	require.NoError(t, store.Ping(ctx))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNamespace_JSONRoundTrip(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryStore()
	ns := NewNamespace(backend, "test:")

	type doc struct {
		Name string `json:"name"`
	}

	var got doc
	found, err := ns.LoadJSON(ctx, KeyTickets, &got)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, ns.SaveJSONMany(ctx, map[string]any{
		KeyTickets:      []doc{{Name: "a"}},
		KeyTransactions: []doc{},
	}))

	raw, err := backend.Get(ctx, "test:tickets")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"name":"a"}]`, string(raw))

	var docs []doc
	found, err = ns.LoadJSON(ctx, KeyTickets, &docs)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []doc{{Name: "a"}}, docs)

	require.NoError(t, ns.Delete(ctx, AllKeys...))
	found, err = ns.LoadJSON(ctx, KeyTickets, &docs)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestNamespace_LoadRejectsCorruptValue(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryStore()
	require.NoError(t, backend.Set(ctx, "market:tickets", []byte("not json")))

	var tickets []map[string]any
	_, err := NewNamespace(backend, "market:").LoadJSON(ctx, KeyTickets, &tickets)
	assert.ErrorContains(t, err, "decode tickets")
}
