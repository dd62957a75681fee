package chain

import (
	"fmt"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/ardanlabs/utxochain/foundation/blockchain/ledger"
	"github.com/ardanlabs/utxochain/foundation/blockchain/signature"
)

// ValidateTransaction checks a transaction against the current main chain:
// it is well formed, every input is unspent, owned by the input's public
// key and signed by it, and the fee covers the size.
func (c *Chain) ValidateTransaction(tx database.Tx) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.validateTransaction(tx)
}

func (c *Chain) validateTransaction(tx database.Tx) error {
	if err := tx.ValidateSpend(); err != nil {
		return err
	}

	for i, in := range tx.Inputs {
		out, exists := c.ledger.UTXO(in.OutPoint())
		if !exists {
			return fmt.Errorf("input %d: %w: %s", i, ledger.ErrUTXONotFound, in.OutPoint())
		}

		if err := verifyInput(tx, i, out); err != nil {
			return err
		}
	}

	return c.ledger.ValidateTransactionFee(tx)
}

// verifySignatures checks every input of every non coinbase transaction in
// the block before the ledger is touched. Outputs created earlier in the
// same block can be spent by later transactions.
func (c *Chain) verifySignatures(block database.Block) error {
	created := make(map[database.OutPoint]database.TxOutput)

	for txIdx, tx := range block.Txs {
		if txIdx > 0 {
			for i, in := range tx.Inputs {
				out, exists := c.ledger.UTXO(in.OutPoint())
				if !exists {
					out, exists = created[in.OutPoint()]
				}
				if !exists {
					return fmt.Errorf("tx[%d] input %d: %w: %s", txIdx, i, ledger.ErrUTXONotFound, in.OutPoint())
				}

				if err := verifyInput(tx, i, out); err != nil {
					return fmt.Errorf("tx[%d]: %w", txIdx, err)
				}
			}
		}

		hash := tx.Hash()
		for idx, out := range tx.Outputs {
			created[database.NewOutPoint(hash, uint32(idx))] = out
		}
	}

	return nil
}

// verifyInput checks the input's public key owns the spent output and
// produced the input's signature.
func verifyInput(tx database.Tx, index int, spent database.TxOutput) error {
	publicKey := tx.Inputs[index].PublicKey

	if database.FingerprintFromPublicKey(publicKey) != spent.Recipient {
		return fmt.Errorf("input %d: %w", index, ErrOwnership)
	}

	ok, err := signature.VerifyInputSignature(tx, index, publicKey)
	if err != nil {
		return fmt.Errorf("input %d: %w: %s", index, ErrInvalidSignature, err)
	}

	if !ok {
		return fmt.Errorf("input %d: %w", index, ErrInvalidSignature)
	}

	return nil
}
