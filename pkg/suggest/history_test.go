package suggest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exploopio/findingscope/pkg/errors"
	"github.com/exploopio/findingscope/pkg/kv"
)

func TestHistory_Push(t *testing.T) {
	ctx := context.Background()
	h, err := LoadHistory(ctx, kv.NewMemoryStore())
	require.NoError(t, err)
	assert.Empty(t, h.Entries())

	for _, q := range []string{"s3", "iam", "  ", "", "rds", "s3"} {
		require.NoError(t, h.Push(ctx, q))
	}
	assert.Equal(t, []string{"s3", "rds", "iam"}, h.Entries())

	for _, q := range []string{"a", "b", "c", "d"} {
		require.NoError(t, h.Push(ctx, q))
	}
	assert.Equal(t, []string{"d", "c", "b", "a", "s3"}, h.Entries())
	assert.Len(t, h.Entries(), HistoryLimit)
}

func TestHistory_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := kv.NewFileStore(filepath.Join(t.TempDir(), "history.json"))
	require.NoError(t, err)

	h, err := LoadHistory(ctx, store)
	require.NoError(t, err)
	for _, q := range []string{"one", "two", "three"} {
		require.NoError(t, h.Push(ctx, q))
	}

	raw, err := store.Get(ctx, HistoryKey)
	require.NoError(t, err)
	assert.JSONEq(t, `["three","two","one"]`, string(raw))

	reloaded, err := LoadHistory(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, []string{"three", "two", "one"}, reloaded.Entries())

	require.NoError(t, reloaded.Clear(ctx))
	again, err := LoadHistory(ctx, store)
	require.NoError(t, err)
	assert.Empty(t, again.Entries())
}

func TestHistory_LoadNormalizes(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	require.NoError(t, store.Set(ctx, HistoryKey, []byte(`["a"," b ","a","","c","d","e","f"]`)))

	h, err := LoadHistory(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, h.Entries())
}

func TestHistory_Corrupt(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	require.NoError(t, store.Set(ctx, HistoryKey, []byte(`{"not":"a list"}`)))

	h, err := LoadHistory(ctx, store)
	require.Error(t, err)
	assert.Equal(t, errors.KindInvalidInput, errors.GetKind(err))
	require.NotNil(t, h)
	assert.Empty(t, h.Entries())

	require.NoError(t, h.Push(ctx, "fresh"))
	raw, err := store.Get(ctx, HistoryKey)
	require.NoError(t, err)
	assert.JSONEq(t, `["fresh"]`, string(raw))
}

func TestHistory_NilStore(t *testing.T) {
	ctx := context.Background()
	h, err := LoadHistory(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, h.Push(ctx, "q"))
	assert.Equal(t, []string{"q"}, h.Entries())
}
