package chain

import (
	"bytes"
	"fmt"
	"slices"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/ardanlabs/utxochain/foundation/blockchain/ledger"
)

// AddBlock validates the block and places it on the main chain, on a side
// chain or in the orphan set. A side chain with more work than the main
// chain triggers a reorganization. Blocks already known are ignored.
func (c *Chain) AddBlock(block database.Block) (Outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.addBlock(block)
}

// addBlock performs the work of AddBlock with the write lock held. Orphans
// connected by this block are fed back through here recursively.
func (c *Chain) addBlock(block database.Block) (Outcome, error) {
	hash := block.Hash()

	c.evHandler("chain: addBlock: started: blk[%d]: hash[%s]: prev[%s]", block.Header.Height, hash.Short(), block.Header.PrevHash.Short())

	// Known blocks were validated when they were added. The genesis block
	// carries no proof of work and is only ever known.
	if c.known(hash) {
		c.evHandler("chain: addBlock: blk[%d]: already known", block.Header.Height)
		return Known, nil
	}

	if err := c.validateBlock(block); err != nil {
		return Known, err
	}

	// The block extends the main chain.
	if block.Header.Height == c.ledger.Height()+1 && block.Header.PrevHash == c.ledger.BestHash() {
		if err := c.applyToMain(block); err != nil {
			return Known, err
		}

		c.evHandler("chain: addBlock: blk[%d]: extends main chain", block.Header.Height)

		c.connectOrphans(hash)
		return ExtendsMain, nil
	}

	// The parent is unknown so wait for it to show up.
	parent, onMain := c.mainBlock(block.Header.PrevHash)
	if !onMain {
		fork, inForks := c.forks[block.Header.PrevHash]
		if !inForks {
			c.addOrphan(hash, block)
			return Orphan, nil
		}
		parent = fork
	}

	if block.Header.Height != parent.Header.Height+1 {
		return Known, &ledger.InvalidBlockHeightError{Expected: parent.Header.Height + 1, Got: block.Header.Height}
	}

	// The block extends or creates a side chain.
	c.forks[hash] = block

	c.evHandler("chain: addBlock: blk[%d]: extends side chain: forks[%d]", block.Header.Height, len(c.forks))

	if err := c.evaluateReorg(block); err != nil {
		delete(c.forks, hash)
		return Known, err
	}

	c.connectOrphans(hash)
	return ExtendsFork, nil
}

// validateBlock performs the checks that don't depend on where the block
// lands: checkpoint first, then proof of work, then structure.
func (c *Chain) validateBlock(block database.Block) error {
	if err := c.validateCheckpoint(block); err != nil {
		return err
	}

	if err := block.ValidatePOW(); err != nil {
		return err
	}

	return block.Validate(c.evHandler)
}

// applyToMain applies the block to the ledger and persists it. When storage
// fails the ledger change is rolled back.
func (c *Chain) applyToMain(block database.Block) error {
	if err := c.verifySignatures(block); err != nil {
		return err
	}

	if err := c.ledger.ApplyBlock(block); err != nil {
		return fmt.Errorf("apply blk[%d]: %w", block.Header.Height, err)
	}

	if err := c.storeBlocks(block); err != nil {
		c.undoMain(block, false)
		return err
	}

	c.cache.Add(block.Header.Height, block)

	// The checkpoint for the new tip has to be in the snapshot.
	added, err := c.autoCheckpoint()
	if err != nil {
		c.undoMain(block, false)
		return err
	}

	if err := c.storeState(); err != nil {
		c.undoMain(block, added)
		return err
	}

	return nil
}

// undoMain takes back a block applied by applyToMain that could not be
// committed to storage.
func (c *Chain) undoMain(block database.Block, checkpointed bool) {
	if err := c.ledger.RollbackBlock(block); err != nil {
		c.evHandler("chain: undoMain: blk[%d]: ERROR: rollback after storage failure: %s", block.Header.Height, err)
	}

	c.cache.Remove(block.Header.Height)

	if checkpointed {
		delete(c.checkpoints, block.Header.Height)
	}
}

// =============================================================================

// addOrphan stores the block until its parent arrives. When the orphan set
// is full the orphan with the greatest height is dropped since it is the
// furthest from connecting.
func (c *Chain) addOrphan(hash database.Hash, block database.Block) {
	if len(c.orphans) >= MaxOrphans {
		var drop database.Hash
		var dropHeight uint64
		for h, b := range c.orphans {
			if b.Header.Height >= dropHeight {
				drop, dropHeight = h, b.Header.Height
			}
		}

		delete(c.orphans, drop)
		c.evHandler("chain: addOrphan: orphan set full: dropped[%s]", drop.Short())
	}

	c.orphans[hash] = block

	c.evHandler("chain: addOrphan: blk[%d]: parent[%s] unknown: orphans[%d]", block.Header.Height, block.Header.PrevHash.Short(), len(c.orphans))
}

// connectOrphans feeds every orphan whose parent is the specified block back
// through addBlock. A failing orphan is dropped without failing the parent.
func (c *Chain) connectOrphans(parent database.Hash) {
	var children []database.Block
	for hash, blk := range c.orphans {
		if blk.Header.PrevHash == parent {
			children = append(children, blk)
			delete(c.orphans, hash)
		}
	}

	slices.SortFunc(children, func(a, b database.Block) int {
		ah, bh := a.Hash(), b.Hash()
		return bytes.Compare(ah[:], bh[:])
	})

	for _, blk := range children {
		c.evHandler("chain: connectOrphans: blk[%d]: parent[%s] found", blk.Header.Height, parent.Short())

		if _, err := c.addBlock(blk); err != nil {
			c.evHandler("chain: connectOrphans: blk[%d]: ERROR: %s", blk.Header.Height, err)
		}
	}
}
