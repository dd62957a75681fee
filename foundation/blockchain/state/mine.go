package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ardanlabs/utxochain/foundation/blockchain/chain"
	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/ardanlabs/utxochain/foundation/metrics"
)

// ErrNoTransactions is returned when a block is requested to be created
// and there are not enough transactions.
var ErrNoTransactions = errors.New("no transactions in mempool")

// =============================================================================

// MineNewBlock attempts to create a new block with a proper hash that can
// become the next block in the chain. The template is built under the chain's
// read lock, the proof of work runs without any lock and the block is only
// committed if the tip didn't move in the meantime. When it did, the work is
// discarded and a new template is built.
func (s *State) MineNewBlock(ctx context.Context) (database.Block, error) {
	for {
		s.evHandler("state: MineNewBlock: MINING: check mempool count")

		// Are there enough transactions in the pool.
		if s.mempool.Count() == 0 {
			return database.Block{}, ErrNoTransactions
		}

		s.evHandler("state: MineNewBlock: MINING: build template")

		// Pick the best transactions from the mempool.
		txs := s.mempool.Transactions(int(s.genesis.TransPerBlock))

		tmpl, err := s.chain.Template(s.beneficiary, txs)
		if err != nil {
			return database.Block{}, err
		}

		// Transactions that can't be mined on the current chain will never
		// be, so they leave the mempool.
		for _, hash := range tmpl.Dropped {
			s.evHandler("state: MineNewBlock: MINING: remove invalid tx[%s]", hash.Short())
			s.mempool.Remove(hash)
		}

		if len(tmpl.Block.Txs) == 1 {
			if len(tmpl.Dropped) == 0 {
				return database.Block{}, ErrNoTransactions
			}
			continue
		}

		s.evHandler("state: MineNewBlock: MINING: perform POW: blk[%d]: txs[%d]", tmpl.Block.Header.Height, len(tmpl.Block.Txs))

		// Attempt to create a new block by solving the POW puzzle. This can be cancelled.
		block, err := database.POW(ctx, tmpl.Block, s.evHandler)
		if err != nil {
			return database.Block{}, err
		}

		// Just check one more time we were not cancelled.
		if ctx.Err() != nil {
			return database.Block{}, ctx.Err()
		}

		s.evHandler("state: MineNewBlock: MINING: commit block")

		if err := s.chain.CommitMined(block, tmpl.Height, tmpl.BestHash); err != nil {
			if errors.Is(err, chain.ErrStaleTip) {
				s.evHandler("state: MineNewBlock: MINING: tip moved, retrying: %s", err)
				metrics.AddStaleTemplate()
				continue
			}
			return database.Block{}, err
		}

		s.confirmed(block)
		metrics.AddBlockMined()

		return block, nil
	}
}

// ProcessProposedBlock takes a block received from a peer, validates it and
// if that passes, adds the block to the local blockchain.
func (s *State) ProcessProposedBlock(block database.Block) error {
	s.evHandler("state: ProcessProposedBlock: started: prevBlk[%s]: newBlk[%s]: numTrans[%d]", block.Header.PrevHash.Short(), block.Hash().Short(), len(block.Txs))
	defer s.evHandler("state: ProcessProposedBlock: completed: newBlk[%s]", block.Hash().Short())

	best := s.chain.BestHash()

	outcome, err := s.chain.AddBlock(block)
	if err != nil {
		metrics.AddBlockOutcome("rejected")
		return err
	}
	metrics.AddBlockOutcome(outcome.String())

	// Side chain blocks that don't cause a reorganization leave the mempool
	// alone.
	if s.chain.BestHash() == best {
		return nil
	}

	s.confirmed(block)

	// A block being mined is now built on an old tip. It would fail to
	// commit so stop it early.
	if s.Worker != nil {
		s.Worker.SignalCancelMining()
	}

	return nil
}

// =============================================================================

// confirmed purges the block's transactions from the mempool, saves the
// mempool and lets the application know about the new block.
func (s *State) confirmed(block database.Block) {
	n := s.mempool.RemoveConfirmed(block)
	s.evHandler("state: confirmed: blk[%d]: removed from mempool[%d]", block.Header.Height, n)

	s.saveMempool()
	metrics.SetChainHeight(s.chain.Height())

	s.blockEvent(block)
}

// blockEvent provides a specific event about a new block in the chain for
// application specific support.
func (s *State) blockEvent(block database.Block) {
	blockHeaderJSON, err := json.Marshal(block.Header)
	if err != nil {
		blockHeaderJSON = []byte(fmt.Sprintf("%q", err.Error()))
	}

	blockTxsJSON, err := json.Marshal(block.Txs)
	if err != nil {
		blockTxsJSON = []byte(fmt.Sprintf("%q", err.Error()))
	}

	s.evHandler(`viewer: block: {"hash":%q,"header":%s,"txs":%s}`, block.Hash(), string(blockHeaderJSON), string(blockTxsJSON))
}
