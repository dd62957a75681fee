// Package database provides the block and transaction types for the
// blockchain along with the contract a durable store must implement.
package database

import "errors"

// ErrNotFound is returned by a Storage when the requested value does not
// exist.
var ErrNotFound = errors.New("not found")

// Storage interface represents the behavior required to be implemented by
// any package providing support for durably storing the blockchain. Blocks
// are addressable by hash, and by height for blocks on the main chain. The
// state snapshot is an opaque value written after each committed block.
type Storage interface {
	StoreBlock(block Block) error
	GetBlockByHeight(height uint64) (Block, error)
	GetBlockByHash(hash Hash) (Block, error)
	StoreState(data []byte) error
	LoadState() ([]byte, error)
	Close() error
}
