// Package disk implements the ability to read and write blocks to disk
// with each block stored in its own JSON file.
package disk

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strconv"
	"sync"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
)

const stateFile = "state.cbor"

// Disk represents the serialization implementation for reading and storing
// blocks in their own separate files on disk. Blocks are named by hash and
// the main chain is recorded as one small file per height holding the hash.
// This implements the database.Storage interface.
type Disk struct {
	dbPath string
	mu     sync.RWMutex
}

// New constructs a Disk value for use.
func New(dbPath string) (*Disk, error) {
	for _, dir := range []string{"blocks", "heights"} {
		if err := os.MkdirAll(path.Join(dbPath, dir), 0755); err != nil {
			return nil, err
		}
	}

	return &Disk{dbPath: dbPath}, nil
}

// Close in this implementation has nothing to do since a new file is
// written to disk for each new block and then immediately closed.
func (d *Disk) Close() error {
	return nil
}

// StoreBlock writes the block to its own file and records it as the main
// chain block at its height.
func (d *Disk) StoreBlock(block database.Block) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	blockData := database.NewBlockData(block)

	// Marshal the block for writing to disk in a more human readable format.
	data, err := json.MarshalIndent(blockData, "", "  ")
	if err != nil {
		return err
	}

	if err := writeFile(d.blockPath(blockData.Hash), data); err != nil {
		return err
	}

	return writeFile(d.heightPath(block.Header.Height), []byte(blockData.Hash.String()))
}

// GetBlockByHeight returns the main chain block at the height.
func (d *Disk) GetBlockByHeight(height uint64) (database.Block, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	data, err := os.ReadFile(d.heightPath(height))
	if err != nil {
		return database.Block{}, notFound(err)
	}

	hash, err := database.ToHash(string(data))
	if err != nil {
		return database.Block{}, fmt.Errorf("height %d: %w", height, err)
	}

	return d.readBlock(hash)
}

// GetBlockByHash returns the block with the hash.
func (d *Disk) GetBlockByHash(hash database.Hash) (database.Block, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.readBlock(hash)
}

// StoreState replaces the stored state snapshot.
func (d *Disk) StoreState(data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	return writeFile(path.Join(d.dbPath, stateFile), data)
}

// LoadState returns the stored state snapshot.
func (d *Disk) LoadState() ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	data, err := os.ReadFile(path.Join(d.dbPath, stateFile))
	if err != nil {
		return nil, notFound(err)
	}

	return data, nil
}

// =============================================================================

func (d *Disk) readBlock(hash database.Hash) (database.Block, error) {

	// Open the block file for the specified hash.
	f, err := os.Open(d.blockPath(hash))
	if err != nil {
		return database.Block{}, notFound(err)
	}
	defer f.Close()

	// Decode the contents of the block.
	var blockData database.BlockData
	if err := json.NewDecoder(f).Decode(&blockData); err != nil {
		return database.Block{}, err
	}

	return database.ToBlock(blockData)
}

// blockPath forms the path to the specified block.
func (d *Disk) blockPath(hash database.Hash) string {
	return path.Join(d.dbPath, "blocks", fmt.Sprintf("%s.json", hash))
}

// heightPath forms the path to the main chain entry for the height.
func (d *Disk) heightPath(height uint64) string {
	return path.Join(d.dbPath, "heights", strconv.FormatUint(height, 10))
}

// writeFile writes the data to a temp file and renames it into place so a
// reader never sees a partial file.
func writeFile(name string, data []byte) error {
	tmp := name + ".tmp"

	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}

	return os.Rename(tmp, name)
}

func notFound(err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return database.ErrNotFound
	}
	return err
}
