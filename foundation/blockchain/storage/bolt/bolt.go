// Package bolt implements block storage on top of bbolt using one bucket
// for blocks, one for the main chain heights and one for metadata.
package bolt

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	bolt "go.etcd.io/bbolt"
)

// FileName is the name of the database file inside the data directory.
const FileName = "chain.db"

// Bucket names.
var (
	bucketBlocks  = []byte("blocks")  // hash -> block bytes
	bucketHeights = []byte("heights") // height (big endian) -> hash
	bucketMeta    = []byte("meta")

	metaKeyState = []byte("state")
)

// Bolt wraps bbolt for chain persistence. This implements the
// database.Storage interface.
type Bolt struct {
	db *bolt.DB
}

// New opens or creates the chain database in the data directory.
func New(dataDir string) (*Bolt, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	db, err := bolt.Open(filepath.Join(dataDir, FileName), 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketBlocks, bucketHeights, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	return &Bolt{db: db}, nil
}

// Close closes the database.
func (b *Bolt) Close() error {
	return b.db.Close()
}

// StoreBlock writes the block and its height entry in one transaction.
func (b *Bolt) StoreBlock(block database.Block) error {
	data, err := database.Encode(block)
	if err != nil {
		return err
	}

	hash := block.Hash()

	return b.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketBlocks).Put(hash[:], data); err != nil {
			return err
		}
		return tx.Bucket(bucketHeights).Put(heightKey(block.Header.Height), hash[:])
	})
}

// GetBlockByHeight returns the main chain block at the height.
func (b *Bolt) GetBlockByHeight(height uint64) (database.Block, error) {
	var block database.Block

	err := b.db.View(func(tx *bolt.Tx) error {
		hash := tx.Bucket(bucketHeights).Get(heightKey(height))
		if hash == nil {
			return database.ErrNotFound
		}

		return decodeBlock(tx, hash, &block)
	})

	return block, err
}

// GetBlockByHash returns the block with the hash.
func (b *Bolt) GetBlockByHash(hash database.Hash) (database.Block, error) {
	var block database.Block

	err := b.db.View(func(tx *bolt.Tx) error {
		return decodeBlock(tx, hash[:], &block)
	})

	return block, err
}

// StoreState replaces the stored state snapshot.
func (b *Bolt) StoreState(data []byte) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMeta).Put(metaKeyState, data)
	})
}

// LoadState returns the stored state snapshot.
func (b *Bolt) LoadState() ([]byte, error) {
	var data []byte

	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketMeta).Get(metaKeyState)
		if v == nil {
			return database.ErrNotFound
		}

		// Values are only valid for the life of the transaction.
		data = append([]byte(nil), v...)
		return nil
	})

	return data, err
}

// =============================================================================

func decodeBlock(tx *bolt.Tx, hash []byte, block *database.Block) error {
	data := tx.Bucket(bucketBlocks).Get(hash)
	if data == nil {
		return database.ErrNotFound
	}

	return database.Decode(data, block)
}

func heightKey(height uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, height)
	return key
}
