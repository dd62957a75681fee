// Package chain manages the main chain, side chains and orphan blocks on top
// of the UTXO ledger. Every mutation happens under one write lock so readers
// never observe a partially applied block or reorganization.
package chain

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/ardanlabs/utxochain/foundation/blockchain/difficulty"
	"github.com/ardanlabs/utxochain/foundation/blockchain/genesis"
	"github.com/ardanlabs/utxochain/foundation/blockchain/ledger"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Set of limits enforced by the chain manager.
const (
	MaxForkDepth     = 1000
	MaxOrphans       = 500
	DefaultCacheSize = 1024
)

// EventHandler defines a function that is called when events
// occur in the processing of blocks.
type EventHandler func(v string, args ...any)

// Outcome classifies what happened to a block handed to AddBlock.
type Outcome int

// Set of outcomes for AddBlock.
const (
	Known Outcome = iota
	ExtendsMain
	Orphan
	ExtendsFork
)

// String implements the fmt.Stringer interface.
func (o Outcome) String() string {
	switch o {
	case ExtendsMain:
		return "extends-main"
	case Orphan:
		return "orphan"
	case ExtendsFork:
		return "extends-fork"
	}
	return "known"
}

// =============================================================================

// Config represents the configuration required to construct a chain.
type Config struct {
	Storage     database.Storage
	Genesis     genesis.Genesis
	Checkpoints map[uint64]database.Hash
	CacheSize   int
	EvHandler   EventHandler
}

// Chain owns the ledger and decides where every received block belongs.
type Chain struct {
	mu          sync.RWMutex
	ledger      *ledger.Ledger
	storage     database.Storage
	cache       *lru.Cache[uint64, database.Block]
	forks       map[database.Hash]database.Block
	orphans     map[database.Hash]database.Block
	checkpoints map[uint64]database.Hash
	interval    uint64
	genesis     genesis.Genesis
	evHandler   EventHandler
}

// New constructs a chain from the persisted state in storage. When storage
// holds no state, the genesis block is built, applied and stored.
func New(cfg Config) (*Chain, error) {

	// Build a safe event handler function for use.
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	cacheSize := cfg.CacheSize
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}

	cache, err := lru.New[uint64, database.Block](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("block cache: %w", err)
	}

	c := Chain{
		ledger:      ledger.New(),
		storage:     cfg.Storage,
		cache:       cache,
		forks:       make(map[database.Hash]database.Block),
		orphans:     make(map[database.Hash]database.Block),
		checkpoints: make(map[uint64]database.Hash),
		interval:    cfg.Genesis.CheckpointInterval,
		genesis:     cfg.Genesis,
		evHandler:   ev,
	}

	data, err := cfg.Storage.LoadState()
	switch {
	case err == nil:
		if err := c.restore(data); err != nil {
			return nil, err
		}

	case errors.Is(err, database.ErrNotFound):
		if err := c.initGenesis(); err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("load state: %w", err)
	}

	// The genesis block is always a checkpoint.
	gen, err := c.storage.GetBlockByHeight(genesis.Height)
	if err != nil {
		return nil, fmt.Errorf("genesis block missing from storage: %w", err)
	}
	c.checkpoints[genesis.Height] = gen.Hash()

	for height, hash := range cfg.Checkpoints {
		if existing, exists := c.checkpoints[height]; exists && existing != hash {
			return nil, fmt.Errorf("%w: height %d: have %s, configured %s", ErrCheckpointConflict, height, existing.Short(), hash.Short())
		}

		if height <= c.ledger.Height() {
			blk, err := c.blockByHeight(height)
			if err != nil {
				return nil, fmt.Errorf("checkpoint height %d: %w", height, err)
			}
			if blk.Hash() != hash {
				return nil, fmt.Errorf("%w: height %d: chain has %s, configured %s", ErrCheckpointMismatch, height, blk.Hash().Short(), hash.Short())
			}
		}

		c.checkpoints[height] = hash
	}

	ev("chain: New: height[%d]: best[%s]: checkpoints[%d]", c.ledger.Height(), c.ledger.BestHash().Short(), len(c.checkpoints))

	return &c, nil
}

// =============================================================================

// Height returns the height of the main chain tip.
func (c *Chain) Height() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.ledger.Height()
}

// BestHash returns the hash of the main chain tip.
func (c *Chain) BestHash() database.Hash {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.ledger.BestHash()
}

// Tip returns the height and hash of the main chain tip read together.
func (c *Chain) Tip() (uint64, database.Hash) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.ledger.Height(), c.ledger.BestHash()
}

// TotalSupply returns the amount created by all coinbases on the main chain.
func (c *Chain) TotalSupply() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.ledger.TotalSupply()
}

// Balance returns the unspent amount owned by the fingerprint.
func (c *Chain) Balance(fp database.Fingerprint) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.ledger.Balance(fp)
}

// Nonce returns the current nonce for the fingerprint.
func (c *Chain) Nonce(fp database.Fingerprint) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.ledger.Nonce(fp)
}

// HasUTXO reports if the outpoint is unspent.
func (c *Chain) HasUTXO(op database.OutPoint) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.ledger.HasUTXO(op)
}

// UTXO returns the unspent output for the outpoint.
func (c *Chain) UTXO(op database.OutPoint) (database.TxOutput, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.ledger.UTXO(op)
}

// UTXOsByFingerprint returns the unspent outputs owned by the fingerprint.
func (c *Chain) UTXOsByFingerprint(fp database.Fingerprint) []ledger.UTXO {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.ledger.UTXOsByFingerprint(fp)
}

// UTXOCount returns the size of the UTXO set.
func (c *Chain) UTXOCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.ledger.UTXOCount()
}

// ForkCount returns the number of blocks held on side chains.
func (c *Chain) ForkCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.forks)
}

// OrphanCount returns the number of blocks waiting for their parent.
func (c *Chain) OrphanCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.orphans)
}

// BlockByHeight returns the main chain block at the height.
func (c *Chain) BlockByHeight(height uint64) (database.Block, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.blockByHeight(height)
}

// BlockByHash returns the block with the hash from the main chain or the
// side chains.
func (c *Chain) BlockByHash(hash database.Hash) (database.Block, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if blk, exists := c.forks[hash]; exists {
		return blk, nil
	}

	blk, onMain := c.mainBlock(hash)
	if !onMain {
		return database.Block{}, database.ErrNotFound
	}

	return blk, nil
}

// CurrentDifficulty returns the compact bits of the tip block.
func (c *Chain) CurrentDifficulty() uint32 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	tip, err := c.blockByHeight(c.ledger.Height())
	if err != nil {
		return difficulty.GenesisBits
	}

	return tip.Header.Bits
}

// =============================================================================

// blockByHeight returns the main chain block at the height using the cache.
func (c *Chain) blockByHeight(height uint64) (database.Block, error) {
	if height == 0 || height > c.ledger.Height() {
		return database.Block{}, database.ErrNotFound
	}

	if blk, exists := c.cache.Get(height); exists {
		return blk, nil
	}

	blk, err := c.storage.GetBlockByHeight(height)
	if err != nil {
		return database.Block{}, err
	}

	c.cache.Add(height, blk)

	return blk, nil
}

// mainBlock returns the block if the hash is part of the main chain.
func (c *Chain) mainBlock(hash database.Hash) (database.Block, bool) {
	blk, err := c.storage.GetBlockByHash(hash)
	if err != nil {
		return database.Block{}, false
	}

	main, err := c.blockByHeight(blk.Header.Height)
	if err != nil || main.Hash() != hash {
		return database.Block{}, false
	}

	return main, true
}

// known reports if the hash is on the main chain, a side chain or waiting
// as an orphan.
func (c *Chain) known(hash database.Hash) bool {
	if _, exists := c.forks[hash]; exists {
		return true
	}

	if _, exists := c.orphans[hash]; exists {
		return true
	}

	_, onMain := c.mainBlock(hash)
	return onMain
}
