package state

import (
	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/ardanlabs/utxochain/foundation/metrics"
)

// SubmitWalletTransaction accepts a transaction from a wallet for inclusion.
// The transaction is shared with the known peers.
func (s *State) SubmitWalletTransaction(tx database.Tx) error {
	if err := s.addMempool(tx); err != nil {
		return err
	}

	if s.Worker != nil {
		s.Worker.SignalShareTx(tx)
		s.Worker.SignalStartMining()
	}

	return nil
}

// SubmitNodeTransaction accepts a transaction from a node for inclusion.
func (s *State) SubmitNodeTransaction(tx database.Tx) error {
	if err := s.addMempool(tx); err != nil {
		return err
	}

	if s.Worker != nil {
		s.Worker.SignalStartMining()
	}

	return nil
}

// =============================================================================

// addMempool validates the transaction against the main chain before it is
// placed in the mempool.
func (s *State) addMempool(tx database.Tx) error {
	s.evHandler("state: addMempool: tx[%s]: validate", tx)

	if err := s.chain.ValidateTransaction(tx); err != nil {
		return err
	}

	if err := s.mempool.Add(tx, s.chain); err != nil {
		return err
	}

	metrics.SetMempoolSize(s.mempool.Count())

	return nil
}
