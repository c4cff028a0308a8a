package localstore

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runStoreContract(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, found, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.Set(ctx, "a", []byte(`{"x":1}`)))
	v, found, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.True(t, found)
	assert.JSONEq(t, `{"x":1}`, string(v))

	require.NoError(t, s.Set(ctx, "a", []byte(`[1,2]`)))
	v, _, err = s.Get(ctx, "a")
	require.NoError(t, err)
	assert.JSONEq(t, `[1,2]`, string(v))

	require.NoError(t, s.Set(ctx, "b", []byte(`"tok"`)))
	require.NoError(t, s.Delete(ctx, "a", "b", "never-set"))
	_, found, err = s.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, found)
	_, found, err = s.Get(ctx, "b")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryStore_Contract(t *testing.T) {
	runStoreContract(t, NewMemoryStore())
}

func TestFileStore_Contract(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	runStoreContract(t, s)
}

func TestFileStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s1, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, SetJSON(ctx, s1, KeyWishlistProductIDs, []string{"p1", "p2"}))

	s2, err := NewFileStore(dir)
	require.NoError(t, err)
	var ids []string
	found, err := GetJSON(ctx, s2, KeyWishlistProductIDs, &ids)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []string{"p1", "p2"}, ids)
}

func TestFileStore_RejectsInvalidJSON(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	assert.Error(t, s.Set(context.Background(), "k", []byte("not json")))
}

func TestFileStore_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "localstore.json"), []byte("{broken"), 0o644))
	_, err := NewFileStore(dir)
	assert.Error(t, err)
}

func TestScoped_IsolatesNamespaces(t *testing.T) {
	ctx := context.Background()
	base := NewMemoryStore()
	a := Scoped(base, "client-a")
	b := Scoped(base, "client-b")

	require.NoError(t, SetString(ctx, a, KeyAuthToken, "token-a"))
	tok, err := GetString(ctx, b, KeyAuthToken)
	require.NoError(t, err)
	assert.Empty(t, tok)

	tok, err = GetString(ctx, a, KeyAuthToken)
	require.NoError(t, err)
	assert.Equal(t, "token-a", tok)

	raw, found, err := base.Get(ctx, "client:client-a:"+KeyAuthToken)
	require.NoError(t, err)
	assert.True(t, found)
	assert.JSONEq(t, `"token-a"`, string(raw))

	_, _, err = a.Get(ctx, "")
	assert.ErrorIs(t, err, ErrEmptyKey)
}

func TestSetString_EmptyDeletes(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, SetString(ctx, s, KeyAuthToken, "x"))
	require.NoError(t, SetString(ctx, s, KeyAuthToken, ""))
	assert.Equal(t, 0, s.Len())
}

func TestGetJSON_DecodeError(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Set(ctx, KeyCartItems, []byte(`{"not":"a list"}`)))
	var out []string
	found, err := GetJSON(ctx, s, KeyCartItems, &out)
	assert.True(t, found)
	assert.Error(t, err)
}

func TestOpen_Drivers(t *testing.T) {
	ctx := context.Background()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	s, release, err := Open(ctx, OpenOptions{Driver: "memory"}, log)
	require.NoError(t, err)
	runStoreContract(t, s)
	release()

	s, release, err = Open(ctx, OpenOptions{Driver: "file", FileDir: t.TempDir()}, log)
	require.NoError(t, err)
	runStoreContract(t, s)
	release()

	_, _, err = Open(ctx, OpenOptions{Driver: "sqlite"}, log)
	assert.ErrorContains(t, err, `unsupported store driver "sqlite"`)
}
