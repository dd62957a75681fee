// Package memory implements the ability to read and write blocks to memory
// using maps.
package memory

import (
	"sync"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
)

// Memory represents the serialization implementation for reading and storing
// blocks in memory. This implements the database.Storage interface.
type Memory struct {
	mu      sync.RWMutex
	blocks  map[database.Hash]database.Block
	heights map[uint64]database.Hash
	state   []byte
}

// New constructs an Memory value for use.
func New() *Memory {
	return &Memory{
		blocks:  make(map[database.Hash]database.Block),
		heights: make(map[uint64]database.Hash),
	}
}

// Close in this implementation has nothing to do since everything
// is in memory.
func (m *Memory) Close() error {
	return nil
}

// StoreBlock stores the block by hash and makes it the main chain block at
// its height.
func (m *Memory) StoreBlock(block database.Block) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	hash := block.Hash()
	m.blocks[hash] = block
	m.heights[block.Header.Height] = hash

	return nil
}

// GetBlockByHeight returns the main chain block at the height.
func (m *Memory) GetBlockByHeight(height uint64) (database.Block, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	hash, exists := m.heights[height]
	if !exists {
		return database.Block{}, database.ErrNotFound
	}

	return m.blocks[hash], nil
}

// GetBlockByHash returns the block with the hash.
func (m *Memory) GetBlockByHash(hash database.Hash) (database.Block, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	block, exists := m.blocks[hash]
	if !exists {
		return database.Block{}, database.ErrNotFound
	}

	return block, nil
}

// StoreState replaces the stored state snapshot.
func (m *Memory) StoreState(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state = append([]byte(nil), data...)
	return nil
}

// LoadState returns the stored state snapshot.
func (m *Memory) LoadState() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.state == nil {
		return nil, database.ErrNotFound
	}

	return append([]byte(nil), m.state...), nil
}
