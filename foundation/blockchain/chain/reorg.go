package chain

import (
	"fmt"
	"math/bits"
	"slices"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/ardanlabs/utxochain/foundation/blockchain/difficulty"
)

// evaluateReorg compares the work of the side chain ending at the tip with
// the work of the main chain over the same span and reorganizes when the
// side chain has strictly more.
func (c *Chain) evaluateReorg(tip database.Block) error {
	undo, apply, err := c.reorgPath(tip)
	if err != nil {
		return err
	}

	forkWork := chainWork(apply)
	mainWork := chainWork(undo)

	if forkWork <= mainWork {
		c.evHandler("chain: evaluateReorg: fork has less work: fork[%d]: main[%d]", forkWork, mainWork)
		return nil
	}

	c.evHandler("chain: evaluateReorg: fork has more work: fork[%d]: main[%d]: reorganizing", forkWork, mainWork)

	return c.reorganize(undo, apply)
}

// reorgPath walks the side chain back from the tip to its common ancestor
// with the main chain. It returns the main chain blocks above the ancestor
// and the side chain blocks above the ancestor, both ordered by height.
func (c *Chain) reorgPath(tip database.Block) (undo []database.Block, apply []database.Block, err error) {
	apply = []database.Block{tip}
	prev := tip.Header.PrevHash

	var ancestor database.Block
	for {
		if blk, onMain := c.mainBlock(prev); onMain {
			ancestor = blk
			break
		}

		if len(apply) >= MaxForkDepth {
			return nil, nil, fmt.Errorf("%w: more than %d blocks", ErrForkTooDeep, MaxForkDepth)
		}

		blk, exists := c.forks[prev]
		if !exists {
			return nil, nil, fmt.Errorf("%w: missing block %s", ErrIncompleteFork, prev.Short())
		}

		apply = append(apply, blk)
		prev = blk.Header.PrevHash
	}

	slices.Reverse(apply)

	for height := ancestor.Header.Height + 1; height <= c.ledger.Height(); height++ {
		blk, err := c.blockByHeight(height)
		if err != nil {
			return nil, nil, fmt.Errorf("main chain block %d: %w", height, err)
		}
		undo = append(undo, blk)
	}

	return undo, apply, nil
}

// reorganize switches the main chain to the side chain. Every block on both
// lists is checked against the checkpoints before anything is changed. A
// failure while applying restores the original main chain.
func (c *Chain) reorganize(undo []database.Block, apply []database.Block) error {
	for _, blk := range undo {
		if _, exists := c.checkpoints[blk.Header.Height]; exists {
			return fmt.Errorf("%w: height %d", ErrCheckpointViolation, blk.Header.Height)
		}
	}

	for _, blk := range apply {
		if hash, exists := c.checkpoints[blk.Header.Height]; exists && hash != blk.Hash() {
			return fmt.Errorf("%w: height %d", ErrCheckpointViolation, blk.Header.Height)
		}
	}

	c.evHandler("chain: reorganize: undo[%d]: apply[%d]", len(undo), len(apply))

	for i := len(undo) - 1; i >= 0; i-- {
		c.evHandler("chain: reorganize: rollback blk[%d]: hash[%s]", undo[i].Header.Height, undo[i].Hash().Short())

		if err := c.ledger.RollbackBlock(undo[i]); err != nil {
			c.restoreMain(nil, undo[i+1:])
			return fmt.Errorf("rollback blk[%d]: %w", undo[i].Header.Height, err)
		}
		c.cache.Remove(undo[i].Header.Height)
	}

	for i, blk := range apply {
		c.evHandler("chain: reorganize: apply blk[%d]: hash[%s]", blk.Header.Height, blk.Hash().Short())

		err := c.verifySignatures(blk)
		if err == nil {
			err = c.ledger.ApplyBlock(blk)
		}

		if err != nil {
			c.restoreMain(apply[:i], undo)
			return fmt.Errorf("apply fork blk[%d]: %w", blk.Header.Height, err)
		}
	}

	if err := c.storeBlocks(apply...); err != nil {
		c.restoreMain(apply, undo)
		return err
	}

	for _, blk := range apply {
		c.cache.Add(blk.Header.Height, blk)
	}

	// Checkpoints taken on the new main chain go out with the snapshot.
	var added []uint64
	for _, blk := range apply {
		ok, err := c.intervalCheckpoint(blk.Header.Height)
		if err != nil {
			c.dropCheckpoints(added)
			c.restoreMain(apply, undo)
			return err
		}
		if ok {
			added = append(added, blk.Header.Height)
		}
	}

	if err := c.storeState(); err != nil {
		c.dropCheckpoints(added)
		c.restoreMain(apply, undo)
		return err
	}

	// Undone blocks become a side chain and the applied blocks leave it.
	for _, blk := range undo {
		c.forks[blk.Hash()] = blk
	}

	for _, blk := range apply {
		delete(c.forks, blk.Hash())
	}

	c.evHandler("chain: reorganize: completed: height[%d]: best[%s]", c.ledger.Height(), c.ledger.BestHash().Short())

	return nil
}

// restoreMain undoes the applied side chain blocks and applies the original
// main chain blocks again. These blocks were valid moments ago so a failure
// here means the ledger is corrupt and is only logged.
func (c *Chain) restoreMain(applied []database.Block, undone []database.Block) {
	c.evHandler("chain: restoreMain: rollback[%d]: reapply[%d]", len(applied), len(undone))

	for i := len(applied) - 1; i >= 0; i-- {
		if err := c.ledger.RollbackBlock(applied[i]); err != nil {
			c.evHandler("chain: restoreMain: blk[%d]: ERROR: rollback: %s", applied[i].Header.Height, err)
		}
		c.cache.Remove(applied[i].Header.Height)
	}

	for _, blk := range undone {
		if err := c.ledger.ApplyBlock(blk); err != nil {
			c.evHandler("chain: restoreMain: blk[%d]: ERROR: apply: %s", blk.Header.Height, err)
		}
		c.cache.Remove(blk.Header.Height)
	}

	if err := c.persist(undone...); err != nil {
		c.evHandler("chain: restoreMain: ERROR: persist: %s", err)
	}
}

// dropCheckpoints removes checkpoints recorded by a reorganization that
// is being taken back.
func (c *Chain) dropCheckpoints(heights []uint64) {
	for _, height := range heights {
		delete(c.checkpoints, height)
	}
}

// chainWork sums the work of the blocks. The sum saturates.
func chainWork(blocks []database.Block) uint64 {
	var work uint64
	for _, blk := range blocks {
		sum, carry := bits.Add64(work, difficulty.Work(blk.Header.Bits), 0)
		if carry != 0 {
			return ^uint64(0)
		}
		work = sum
	}
	return work
}
