package chain

import (
	"fmt"
	"maps"
	"slices"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/ardanlabs/utxochain/foundation/blockchain/ledger"
)

// Checkpoint pins the main chain block at a height.
type Checkpoint struct {
	_      struct{}      `cbor:",toarray"`
	Height uint64        `json:"height"`
	Hash   database.Hash `json:"hash"`
}

// snapshot is the state written to storage after every committed block.
type snapshot struct {
	_           struct{}        `cbor:",toarray"`
	Ledger      ledger.Snapshot `json:"ledger"`
	Checkpoints []Checkpoint    `json:"checkpoints"`
}

// initGenesis builds the genesis block, applies it without a proof of work
// check and stores it.
func (c *Chain) initGenesis() error {
	blk, err := c.genesis.Block()
	if err != nil {
		return fmt.Errorf("genesis block: %w", err)
	}

	if err := c.ledger.ApplyBlock(blk); err != nil {
		return fmt.Errorf("apply genesis: %w", err)
	}

	c.checkpoints[blk.Header.Height] = blk.Hash()

	if err := c.persist(blk); err != nil {
		return fmt.Errorf("store genesis: %w", err)
	}

	c.evHandler("chain: initGenesis: blk[%d]: hash[%s]", blk.Header.Height, blk.Hash().Short())

	return nil
}

// restore loads the ledger and checkpoints from the stored snapshot.
func (c *Chain) restore(data []byte) error {
	var s snapshot
	if err := database.Decode(data, &s); err != nil {
		return fmt.Errorf("decode state: %w", err)
	}

	c.ledger = ledger.FromSnapshot(s.Ledger)
	for _, cp := range s.Checkpoints {
		c.checkpoints[cp.Height] = cp.Hash
	}

	c.evHandler("chain: restore: height[%d]: utxos[%d]", c.ledger.Height(), c.ledger.UTXOCount())

	return nil
}

// persist stores the blocks and then the state snapshot.
func (c *Chain) persist(blocks ...database.Block) error {
	if err := c.storeBlocks(blocks...); err != nil {
		return err
	}

	return c.storeState()
}

// storeBlocks stores the blocks as the main chain blocks at their heights.
func (c *Chain) storeBlocks(blocks ...database.Block) error {
	for _, blk := range blocks {
		if err := c.storage.StoreBlock(blk); err != nil {
			return fmt.Errorf("store block %d: %w", blk.Header.Height, err)
		}
	}

	return nil
}

// storeState writes the ledger snapshot and checkpoints.
func (c *Chain) storeState() error {
	s := snapshot{
		Ledger:      c.ledger.Snapshot(),
		Checkpoints: c.checkpointList(),
	}

	data, err := database.Encode(s)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	if err := c.storage.StoreState(data); err != nil {
		return fmt.Errorf("store state: %w", err)
	}

	return nil
}

func (c *Chain) checkpointList() []Checkpoint {
	list := make([]Checkpoint, 0, len(c.checkpoints))
	for _, height := range slices.Sorted(maps.Keys(c.checkpoints)) {
		list = append(list, Checkpoint{Height: height, Hash: c.checkpoints[height]})
	}
	return list
}
