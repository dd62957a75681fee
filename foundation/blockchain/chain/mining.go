package chain

import (
	"fmt"
	"maps"
	"time"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/ardanlabs/utxochain/foundation/blockchain/difficulty"
)

// Template is a candidate block along with the tip it was built on.
type Template struct {
	Block    database.Block
	Height   uint64        // Height of the tip when the template was built.
	BestHash database.Hash // Hash of the tip when the template was built.
	Dropped  []database.Hash
}

// Template assembles the next block under the read lock. The candidate
// transactions are checked against the current state and against each
// other, and the ones that can't be included are reported in Dropped.
func (c *Chain) Template(beneficiary database.Fingerprint, txs []database.Tx) (Template, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	height := c.ledger.Height()
	best := c.ledger.BestHash()
	next := height + 1
	timestamp := uint64(time.Now().UTC().Unix())

	included, dropped := c.selectTransactions(txs)

	coinbase := database.NewCoinbase(beneficiary, c.genesis.MiningReward, next, timestamp)
	blockTxs := append([]database.Tx{coinbase}, included...)

	root, err := database.CalculateMerkleRoot(blockTxs)
	if err != nil {
		return Template{}, fmt.Errorf("merkle root: %w", err)
	}

	t := Template{
		Block: database.Block{
			Header: database.BlockHeader{
				Version:    1,
				PrevHash:   best,
				MerkleRoot: root,
				Timestamp:  timestamp,
				Bits:       c.nextBits(next),
				Height:     next,
			},
			Txs: blockTxs,
		},
		Height:   height,
		BestHash: best,
		Dropped:  dropped,
	}

	return t, nil
}

// CommitMined adds a block mined from a template. The tip must still be the
// one the template was built on, otherwise ErrStaleTip is returned and the
// block is discarded.
func (c *Chain) CommitMined(block database.Block, expHeight uint64, expHash database.Hash) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ledger.Height() != expHeight || c.ledger.BestHash() != expHash {
		return fmt.Errorf("%w: expected %d/%s, now %d/%s", ErrStaleTip, expHeight, expHash.Short(), c.ledger.Height(), c.ledger.BestHash().Short())
	}

	if err := c.validateBlock(block); err != nil {
		return err
	}

	if err := c.applyToMain(block); err != nil {
		return err
	}

	c.evHandler("chain: CommitMined: blk[%d]: hash[%s]", block.Header.Height, block.Hash().Short())

	c.connectOrphans(block.Hash())

	return nil
}

// =============================================================================

// selectTransactions keeps the transactions that can be applied together on
// top of the current state. Spending outputs of other candidates is not
// supported, such a transaction waits for the next block.
func (c *Chain) selectTransactions(txs []database.Tx) (included []database.Tx, dropped []database.Hash) {
	spent := make(map[database.OutPoint]bool)
	nonces := make(map[database.Fingerprint]uint64)
	size := 0

	for _, tx := range txs {
		if len(included)+1 >= database.MaxBlockTxs {
			break
		}

		if err := c.validateTransaction(tx); err != nil {
			c.evHandler("chain: selectTransactions: tx[%s]: dropped: %s", tx, err)
			dropped = append(dropped, tx.Hash())
			continue
		}

		if !c.spendable(tx, spent, nonces) {
			c.evHandler("chain: selectTransactions: tx[%s]: conflicts with another candidate", tx)
			dropped = append(dropped, tx.Hash())
			continue
		}

		// Leave room for the header and coinbase.
		txSize := tx.Size()
		if size+txSize > database.MaxBlockSize-1024 {
			continue
		}
		size += txSize

		for _, in := range tx.Inputs {
			spent[in.OutPoint()] = true
		}

		included = append(included, tx)
	}

	return included, dropped
}

// spendable checks the transaction doesn't spend an output already spent by
// another candidate and that its nonces follow the ones already used. The
// nonces map holds the next expected nonce per fingerprint and is only
// updated when the transaction is spendable.
func (c *Chain) spendable(tx database.Tx, spent map[database.OutPoint]bool, nonces map[database.Fingerprint]uint64) bool {
	next := make(map[database.Fingerprint]uint64)

	for _, in := range tx.Inputs {
		if spent[in.OutPoint()] {
			return false
		}

		if in.Nonce == nil {
			continue
		}

		out, _ := c.ledger.UTXO(in.OutPoint())

		expected, exists := next[out.Recipient]
		if !exists {
			expected, exists = nonces[out.Recipient]
		}
		if !exists {
			expected = c.ledger.Nonce(out.Recipient)
		}

		if *in.Nonce != expected {
			return false
		}

		next[out.Recipient] = expected + 1
	}

	maps.Copy(nonces, next)

	return true
}

// nextBits returns the bits for the block at the height. The tip's bits are
// reused unless the height starts a new epoch.
func (c *Chain) nextBits(height uint64) uint32 {
	tip, err := c.blockByHeight(height - 1)
	if err != nil {
		return difficulty.GenesisBits
	}

	if !difficulty.ShouldAdjust(height) || height <= difficulty.AdjustmentInterval {
		return tip.Header.Bits
	}

	start, err := c.blockByHeight(height - difficulty.AdjustmentInterval)
	if err != nil {
		c.evHandler("chain: nextBits: epoch start block missing, keeping bits: %s", err)
		return tip.Header.Bits
	}

	var actual uint64
	if tip.Header.Timestamp > start.Header.Timestamp {
		actual = tip.Header.Timestamp - start.Header.Timestamp
	}

	bits := difficulty.AdjustDifficulty(tip.Header.Bits, actual, difficulty.ExpectedEpochTime())

	c.evHandler("chain: nextBits: retarget at height[%d]: actual[%ds]: expected[%ds]: old[0x%08x]: new[0x%08x]", height, actual, difficulty.ExpectedEpochTime(), tip.Header.Bits, bits)

	return bits
}
