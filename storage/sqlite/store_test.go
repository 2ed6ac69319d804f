package sqlite

import (
	"context"
	"database/sql"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jonwraymond/offlineworker/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "offline.db")
	store, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, store.Close())
	})
	return store, path
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(" ")
	require.Error(t, err)
}

func TestOpenRunsMigrations(t *testing.T) {
	_, path := openTestStore(t)

	sqlDB, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer func() { _ = sqlDB.Close() }()

	for _, table := range []string{"caches", "cache_entries", "schema_migrations"} {
		var name string
		err := sqlDB.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		require.NoError(t, err, "table %s", table)
	}
}

func TestOpenIsRepeatable(t *testing.T) {
	store, path := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Open(ctx, "lusotown-v3.0.1-core"))
	require.NoError(t, store.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	names, err := reopened.Names(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"lusotown-v3.0.1-core"}, names)
}

func TestStoreEntryRoundTrip(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()
	storedAt := time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC)

	entry := &cache.Entry{
		Key:      "GET https://lusotown.example/api/events?lang=pt",
		Method:   http.MethodGet,
		URL:      "https://lusotown.example/api/events?lang=pt",
		Status:   http.StatusOK,
		Header:   http.Header{"Content-Type": []string{"application/json"}, "Vary": []string{"Accept", "Accept-Language"}},
		Body:     []byte(`{"events":["Noite de Fado"]}`),
		StoredAt: storedAt,
	}
	require.NoError(t, store.Set(ctx, "api", entry))

	got, ok, err := store.Get(ctx, "api", entry.Key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, entry.Body, got.Body)
	assert.Equal(t, entry.Header, got.Header)
	assert.Equal(t, entry.Status, got.Status)
	assert.True(t, storedAt.Equal(got.StoredAt))

	entry.Body = []byte(`{"events":[]}`)
	require.NoError(t, store.Set(ctx, "api", entry))
	got, _, err = store.Get(ctx, "api", entry.Key)
	require.NoError(t, err)
	assert.Equal(t, `{"events":[]}`, string(got.Body))

	_, ok, err = store.Get(ctx, "api", "GET https://lusotown.example/missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStoreDropCascades(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "old-images", &cache.Entry{Key: "GET https://a/x.png", Method: http.MethodGet, Status: 200}))

	existed, err := store.Drop(ctx, "old-images")
	require.NoError(t, err)
	assert.True(t, existed)

	existed, err = store.Drop(ctx, "old-images")
	require.NoError(t, err)
	assert.False(t, existed)

	_, ok, err := store.Get(ctx, "old-images", "GET https://a/x.png")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = store.Keys(ctx, "old-images")
	assert.ErrorIs(t, err, cache.ErrUnknownCache)
}

func TestStoreKeysSorted(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	for _, k := range []string{"GET https://a/c", "GET https://a/a", "GET https://a/b"} {
		require.NoError(t, store.Set(ctx, "core", &cache.Entry{Key: k, Method: http.MethodGet, Status: 200}))
	}
	require.NoError(t, store.Delete(ctx, "core", "GET https://a/b"))
	require.NoError(t, store.Delete(ctx, "core", "GET https://a/b"))

	keys, err := store.Keys(ctx, "core")
	require.NoError(t, err)
	assert.Equal(t, []string{"GET https://a/a", "GET https://a/c"}, keys)
}

func TestStoreBacksRegistry(t *testing.T) {
	store, _ := openTestStore(t)
	reg, err := cache.NewRegistry(store)
	require.NoError(t, err)
	ctx := context.Background()
	tiers := cache.NewTierSet("lusotown", "3.0.1", cache.DefaultTierLimits())

	req := httptest.NewRequest(http.MethodGet, "https://lusotown.example/events?category=fado-nights", nil)
	resp := &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"text/html"}},
		Body:       io.NopCloser(strings.NewReader("<h1>Noite de Fado</h1>")),
	}
	require.NoError(t, reg.Put(ctx, tiers.Cultural, req, resp))

	got, ok := reg.Match(ctx, tiers.Cultural, req)
	require.True(t, ok)
	body, err := io.ReadAll(got.Body)
	require.NoError(t, err)
	assert.Equal(t, "<h1>Noite de Fado</h1>", string(body))

	deleted, err := reg.Sweep(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{tiers.Cultural.Name}, deleted)
}

func TestStoreClosed(t *testing.T) {
	var s *Store
	_, err := s.Names(context.Background())
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.NoError(t, s.Close())
}
