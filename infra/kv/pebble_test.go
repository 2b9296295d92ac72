package kv

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPebbleStoreRoundTrip(t *testing.T) {
	store, err := OpenPebble(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Get("missing")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Apply(map[string][]byte{
		"a/1": []byte("one"),
		"a/2": []byte("two"),
		"b/1": []byte("three"),
	}, nil))

	val, err := store.Get("a/2")
	require.NoError(t, err)
	require.Equal(t, []byte("two"), val)

	var keys []string
	require.NoError(t, store.Scan("a/", "a/~", func(key string, _ []byte) error {
		keys = append(keys, key)
		return nil
	}))
	require.Equal(t, []string{"a/1", "a/2"}, keys)

	require.NoError(t, store.Apply(nil, map[string]struct{}{"a/1": {}}))
	_, err = store.Get("a/1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPebbleStorePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	store, err := OpenPebble(dir)
	require.NoError(t, err)
	require.NoError(t, store.Apply(map[string][]byte{"k": []byte("v")}, nil))
	require.NoError(t, store.Close())

	reopened, err := OpenPebble(dir)
	require.NoError(t, err)
	defer reopened.Close()

	val, err := reopened.Get("k")
	require.NoError(t, err)
	require.Equal(t, []byte("v"), val)
}
