// Package leveldb implements block storage on top of goleveldb. Blocks are
// keyed by hash, the main chain by big endian height and the state snapshot
// lives under its own key.
package leveldb

import (
	"encoding/binary"
	"errors"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/syndtr/goleveldb/leveldb"
	ldberrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

// Key prefixes for the different record types.
var (
	prefixBlock  = []byte("b")
	prefixHeight = []byte("h")
	keyState     = []byte("s")
)

var defaultOptions = opt.Options{
	Compression:        opt.SnappyCompression,
	BlockCacheCapacity: 32 * opt.MiB,
	WriteBuffer:        16 * opt.MiB,
}

// LevelDB defines a thin wrapper around leveldb that implements the
// database.Storage interface.
type LevelDB struct {
	ldb *leveldb.DB
}

// New opens a leveldb instance defined by the given path. A corrupted
// database is recovered.
func New(path string, evHandler func(v string, args ...any)) (*LevelDB, error) {
	ldb, err := leveldb.OpenFile(path, &defaultOptions)

	// If the database is corrupted, attempt to recover.
	var corrupted *ldberrors.ErrCorrupted
	if errors.As(err, &corrupted) {
		evHandler("leveldb: New: corruption detected: path[%s]: %s", path, err)

		ldb, err = leveldb.RecoverFile(path, &defaultOptions)
		if err != nil {
			return nil, err
		}

		evHandler("leveldb: New: recovered from corruption: path[%s]", path)
	}

	// If the database cannot be opened for any other
	// reason, return the error as-is.
	if err != nil {
		return nil, err
	}

	return &LevelDB{ldb: ldb}, nil
}

// Close closes the leveldb instance.
func (db *LevelDB) Close() error {
	return db.ldb.Close()
}

// StoreBlock writes the block and its height entry in one batch.
func (db *LevelDB) StoreBlock(block database.Block) error {
	data, err := database.Encode(block)
	if err != nil {
		return err
	}

	hash := block.Hash()

	batch := new(leveldb.Batch)
	batch.Put(blockKey(hash), data)
	batch.Put(heightKey(block.Header.Height), hash[:])

	return db.ldb.Write(batch, &opt.WriteOptions{Sync: true})
}

// GetBlockByHeight returns the main chain block at the height.
func (db *LevelDB) GetBlockByHeight(height uint64) (database.Block, error) {
	data, err := db.get(heightKey(height))
	if err != nil {
		return database.Block{}, err
	}

	var hash database.Hash
	copy(hash[:], data)

	return db.GetBlockByHash(hash)
}

// GetBlockByHash returns the block with the hash.
func (db *LevelDB) GetBlockByHash(hash database.Hash) (database.Block, error) {
	data, err := db.get(blockKey(hash))
	if err != nil {
		return database.Block{}, err
	}

	var block database.Block
	if err := database.Decode(data, &block); err != nil {
		return database.Block{}, err
	}

	return block, nil
}

// StoreState replaces the stored state snapshot.
func (db *LevelDB) StoreState(data []byte) error {
	return db.ldb.Put(keyState, data, &opt.WriteOptions{Sync: true})
}

// LoadState returns the stored state snapshot.
func (db *LevelDB) LoadState() ([]byte, error) {
	return db.get(keyState)
}

// =============================================================================

func (db *LevelDB) get(key []byte) ([]byte, error) {
	data, err := db.ldb.Get(key, nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, database.ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

func blockKey(hash database.Hash) []byte {
	return append(append([]byte{}, prefixBlock...), hash[:]...)
}

func heightKey(height uint64) []byte {
	return binary.BigEndian.AppendUint64(append([]byte{}, prefixHeight...), height)
}
