package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemDBMissingKey(t *testing.T) {
	db := NewMemDB()
	defer db.Close()

	_, err := db.Get([]byte("absent"))
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, db.Put([]byte("ledger:root"), []byte{0x01}))
	got, err := db.Get([]byte("ledger:root"))
	require.NoError(t, err)
	require.Equal(t, []byte{0x01}, got)
	require.NotNil(t, db.TrieDB())
}

func TestLevelDBPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	db, err := NewLevelDBWithOptions(dir, LevelDBOptions{CacheMB: 16, Handles: 32})
	require.NoError(t, err)
	require.NoError(t, db.Put([]byte("ledger:root"), []byte("root")))
	db.Close()

	reopened, err := NewLevelDB(dir)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get([]byte("ledger:root"))
	require.NoError(t, err)
	require.Equal(t, []byte("root"), got)
}
