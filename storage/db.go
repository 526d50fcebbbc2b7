package storage

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/ethdb"
	gethleveldb "github.com/ethereum/go-ethereum/ethdb/leveldb"
	"github.com/ethereum/go-ethereum/triedb"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = errors.New("storage: key not found")

// Database is the key-value store backing the ledger state trie. Besides raw
// metadata access it exposes the trie node database layered over the same
// store so every committed ledger root lands next to the metadata that points
// at it.
type Database interface {
	Put(key []byte, value []byte) error
	Get(key []byte) ([]byte, error)
	TrieDB() *triedb.Database
	Close()
}

type backed struct {
	disk   ethdb.Database
	trieDB *triedb.Database
}

func newBacked(disk ethdb.Database) backed {
	return backed{disk: disk, trieDB: triedb.NewDatabase(disk, nil)}
}

func (b backed) Put(key []byte, value []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("storage: empty key")
	}
	return b.disk.Put(key, value)
}

func (b backed) Get(key []byte) ([]byte, error) {
	ok, err := b.disk.Has(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return b.disk.Get(key)
}

func (b backed) TrieDB() *triedb.Database { return b.trieDB }

func (b backed) close() {
	if b.trieDB != nil {
		_ = b.trieDB.Close()
	}
	_ = b.disk.Close()
}

// --- In-Memory DB (tests and ephemeral nodes) ---

type MemDB struct {
	backed
}

func NewMemDB() *MemDB {
	return &MemDB{backed: newBacked(rawdb.NewMemoryDatabase())}
}

// Close satisfies the Database interface for MemDB.
func (db *MemDB) Close() { db.close() }

// --- Persistent DB ---

// LevelDB is a persistent key-value store using LevelDB.
type LevelDB struct {
	backed
}

// LevelDBOptions tunes the on-disk store. Zero values fall back to defaults.
type LevelDBOptions struct {
	CacheMB int
	Handles int
}

// NewLevelDB creates or opens a LevelDB database at the specified path.
func NewLevelDB(path string) (*LevelDB, error) {
	return NewLevelDBWithOptions(path, LevelDBOptions{})
}

// NewLevelDBWithOptions opens the store with explicit cache and file handle
// limits.
func NewLevelDBWithOptions(path string, opts LevelDBOptions) (*LevelDB, error) {
	kv, err := gethleveldb.NewCustom(path, "creatorpay/ledger/", func(o *opt.Options) {
		if opts.CacheMB > 0 {
			o.BlockCacheCapacity = opts.CacheMB / 2 * opt.MiB
			o.WriteBuffer = opts.CacheMB / 4 * opt.MiB
		}
		if opts.Handles > 0 {
			o.OpenFilesCacheCapacity = opts.Handles
		}
	})
	if err != nil {
		return nil, fmt.Errorf("storage: open leveldb %s: %w", path, err)
	}
	return &LevelDB{backed: newBacked(rawdb.NewDatabase(kv))}, nil
}

// Close closes the database connection.
func (ldb *LevelDB) Close() { ldb.close() }
