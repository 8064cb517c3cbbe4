package state

import (
	"testing"

	"github.com/stretchr/testify/require"

	"bondchain/storage"
)

func TestKVGetMissingKey(t *testing.T) {
	manager := NewManager(storage.NewMemDB())

	var out string
	ok, err := manager.KVGet([]byte("missing"), &out)
	require.NoError(t, err)
	require.False(t, ok)
	require.Empty(t, out)
}

func TestKVPutRoundTrip(t *testing.T) {
	manager := NewManager(storage.NewMemDB())

	type payload struct {
		Name  string
		Count uint64
	}
	require.NoError(t, manager.KVPut([]byte("key"), payload{Name: "bond", Count: 7}))

	var out payload
	ok, err := manager.KVGet([]byte("key"), &out)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, payload{Name: "bond", Count: 7}, out)
}

func TestKVAppendAndGetList(t *testing.T) {
	manager := NewManager(storage.NewMemDB())
	key := []byte("list")

	var empty [][]byte
	require.NoError(t, manager.KVGetList(key, &empty))
	require.Empty(t, empty)

	require.NoError(t, manager.KVAppend(key, []byte("a")))
	require.NoError(t, manager.KVAppend(key, []byte("b")))

	var out [][]byte
	require.NoError(t, manager.KVGetList(key, &out))
	require.Equal(t, [][]byte{[]byte("a"), []byte("b")}, out)
}

func TestKVPutOverwrites(t *testing.T) {
	manager := NewManager(storage.NewMemDB())

	require.NoError(t, manager.KVPut([]byte("key"), "first"))
	require.NoError(t, manager.KVPut([]byte("key"), "second"))

	var out string
	ok, err := manager.KVGet([]byte("key"), &out)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "second", out)
}

func TestNilManagerErrors(t *testing.T) {
	var manager *Manager
	_, err := manager.KVGet([]byte("key"), nil)
	require.ErrorIs(t, err, errNilDatabase)
	require.ErrorIs(t, manager.KVPut([]byte("key"), "v"), errNilDatabase)
}
