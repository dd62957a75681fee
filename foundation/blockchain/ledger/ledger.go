// Package ledger implements the UTXO state machine. Blocks are applied and
// rolled back one at a time, and every output consumed while applying a
// block is journaled by height so the rollback is an exact replay.
package ledger

import (
	"bytes"
	"fmt"
	"math/bits"
	"slices"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
)

// Protocol constants enforced by the ledger.
const (
	BlockReward   = 5_000_000_000
	MinFeePerByte = 100
)

// UTXO pairs an unspent output with the outpoint that identifies it.
type UTXO struct {
	_        struct{}          `cbor:",toarray"`
	OutPoint database.OutPoint `json:"outpoint"`
	Output   database.TxOutput `json:"output"`
}

// =============================================================================

// Ledger maintains the UTXO set, the nonce table, the consumed UTXO journal
// and the chain pointers. A Ledger is not safe for concurrent use, the chain
// manager serializes access to it.
type Ledger struct {
	utxos    map[database.OutPoint]database.TxOutput
	nonces   map[database.Fingerprint]uint64
	consumed map[uint64]map[database.OutPoint]database.TxOutput
	height   uint64
	bestHash database.Hash
	supply   uint64
}

// New constructs an empty ledger at height 0.
func New() *Ledger {
	return &Ledger{
		utxos:    make(map[database.OutPoint]database.TxOutput),
		nonces:   make(map[database.Fingerprint]uint64),
		consumed: make(map[uint64]map[database.OutPoint]database.TxOutput),
	}
}

// Height returns the height of the last applied block.
func (l *Ledger) Height() uint64 {
	return l.height
}

// BestHash returns the hash of the last applied block.
func (l *Ledger) BestHash() database.Hash {
	return l.bestHash
}

// TotalSupply returns the amount created by all applied coinbases.
func (l *Ledger) TotalSupply() uint64 {
	return l.supply
}

// Nonce returns the current nonce for the fingerprint.
func (l *Ledger) Nonce(fp database.Fingerprint) uint64 {
	return l.nonces[fp]
}

// HasUTXO reports if the outpoint is unspent.
func (l *Ledger) HasUTXO(op database.OutPoint) bool {
	_, exists := l.utxos[op]
	return exists
}

// UTXO returns the unspent output for the outpoint.
func (l *Ledger) UTXO(op database.OutPoint) (database.TxOutput, bool) {
	out, exists := l.utxos[op]
	return out, exists
}

// UTXOCount returns the number of unspent outputs.
func (l *Ledger) UTXOCount() int {
	return len(l.utxos)
}

// Balance returns the sum of all unspent outputs owned by the fingerprint.
// The sum saturates instead of wrapping.
func (l *Ledger) Balance(fp database.Fingerprint) uint64 {
	var balance uint64
	for _, out := range l.utxos {
		if out.Recipient == fp {
			balance = saturatingAdd(balance, out.Amount)
		}
	}
	return balance
}

// UTXOsByFingerprint returns the unspent outputs owned by the fingerprint
// ordered by outpoint.
func (l *Ledger) UTXOsByFingerprint(fp database.Fingerprint) []UTXO {
	var utxos []UTXO
	for op, out := range l.utxos {
		if out.Recipient == fp {
			utxos = append(utxos, UTXO{OutPoint: op, Output: out})
		}
	}

	slices.SortFunc(utxos, func(a, b UTXO) int {
		return compareOutPoints(a.OutPoint, b.OutPoint)
	})

	return utxos
}

// =============================================================================

// ApplyBlock validates the block against the current state and applies it.
// The apply is all or nothing, an error leaves the ledger untouched.
func (l *Ledger) ApplyBlock(block database.Block) error {
	expected := l.height + 1
	if block.Header.Height != expected {
		return &InvalidBlockHeightError{Expected: expected, Got: block.Header.Height}
	}

	genesis := l.height == 0 && block.Header.Height == 1
	if !genesis && block.Header.PrevHash != l.bestHash {
		return fmt.Errorf("%w: expected %s, got %s", ErrInvalidPreviousHash, l.bestHash.Short(), block.Header.PrevHash.Short())
	}

	if len(block.Txs) == 0 {
		return &InvalidCoinbaseError{Reason: "block has no transactions"}
	}

	u := undo{ledger: l, supply: l.supply}
	journal := make(map[database.OutPoint]database.TxOutput)

	if err := l.applyCoinbase(&u, block.Txs[0]); err != nil {
		u.revert()
		return err
	}

	for i, tx := range block.Txs[1:] {
		if err := l.applyTransaction(&u, journal, tx); err != nil {
			u.revert()
			return fmt.Errorf("tx[%d] %s: %w", i+1, tx.Hash().Short(), err)
		}
	}

	l.consumed[block.Header.Height] = journal
	l.height = block.Header.Height
	l.bestHash = block.Hash()

	return nil
}

// RollbackBlock reverses the block that was last applied. Consumed outputs
// are restored from the journal, nonces are decremented, created outputs are
// removed and the coinbase amount is taken out of the supply.
func (l *Ledger) RollbackBlock(block database.Block) error {
	if block.Header.Height != l.height {
		return &InvalidBlockHeightError{Expected: l.height, Got: block.Header.Height}
	}

	journal := l.consumed[block.Header.Height]

	// Restore before removing so an output created and spent inside this
	// block ends up removed.
	for op, out := range journal {
		l.utxos[op] = out
	}

	for _, tx := range block.Txs {
		for _, in := range tx.Inputs {
			if in.Nonce == nil {
				continue
			}

			out, exists := l.utxos[in.OutPoint()]
			if !exists {
				continue
			}

			switch n := l.nonces[out.Recipient]; {
			case n > 1:
				l.nonces[out.Recipient] = n - 1
			default:
				delete(l.nonces, out.Recipient)
			}
		}
	}

	for i, tx := range block.Txs {
		hash := tx.Hash()
		for idx, out := range tx.Outputs {
			delete(l.utxos, database.NewOutPoint(hash, uint32(idx)))

			if i == 0 {
				l.supply = saturatingSub(l.supply, out.Amount)
			}
		}
	}

	delete(l.consumed, block.Header.Height)
	l.height--
	l.bestHash = block.Header.PrevHash

	return nil
}

// =============================================================================

// CalculateTransactionFee returns inputs minus outputs for the transaction
// using the current UTXO set. The result saturates at zero. Coinbase
// transactions have no fee.
func (l *Ledger) CalculateTransactionFee(tx database.Tx) (uint64, error) {
	if tx.IsCoinbase() {
		return 0, nil
	}

	inputs, outputs, err := l.sums(tx)
	if err != nil {
		return 0, err
	}

	return saturatingSub(inputs, outputs), nil
}

// ValidateTransactionFee checks the transaction's fee covers its size at
// MinFeePerByte. Coinbase transactions are exempt.
func (l *Ledger) ValidateTransactionFee(tx database.Tx) error {
	if tx.IsCoinbase() {
		return nil
	}

	_, err := l.validateFee(tx)
	return err
}

func (l *Ledger) validateFee(tx database.Tx) (uint64, error) {
	inputs, outputs, err := l.sums(tx)
	if err != nil {
		return 0, err
	}

	if inputs < outputs {
		return 0, &InsufficientInputsError{Inputs: inputs, Outputs: outputs}
	}
	fee := inputs - outputs

	hi, required := bits.Mul64(uint64(tx.Size()), MinFeePerByte)
	if hi != 0 {
		return 0, ErrArithmeticOverflow
	}

	if fee < required {
		return 0, &InsufficientFeeError{Required: required, Provided: fee}
	}

	return fee, nil
}

func (l *Ledger) sums(tx database.Tx) (inputs uint64, outputs uint64, err error) {
	for _, in := range tx.Inputs {
		out, exists := l.utxos[in.OutPoint()]
		if !exists {
			return 0, 0, fmt.Errorf("%w: %s", ErrUTXONotFound, in.OutPoint())
		}

		if inputs, err = checkedAdd(inputs, out.Amount); err != nil {
			return 0, 0, err
		}
	}

	for _, out := range tx.Outputs {
		if outputs, err = checkedAdd(outputs, out.Amount); err != nil {
			return 0, 0, err
		}
	}

	return inputs, outputs, nil
}

// =============================================================================

func (l *Ledger) applyCoinbase(u *undo, tx database.Tx) error {
	switch {
	case len(tx.Inputs) != 0:
		return &InvalidCoinbaseError{Reason: "coinbase must have no inputs"}
	case len(tx.Outputs) != 1:
		return &InvalidCoinbaseError{Reason: fmt.Sprintf("coinbase must have exactly one output, got %d", len(tx.Outputs))}
	case tx.Outputs[0].Amount > BlockReward:
		return &InvalidCoinbaseError{Reason: fmt.Sprintf("coinbase amount %d exceeds reward %d", tx.Outputs[0].Amount, BlockReward)}
	}

	supply, err := checkedAdd(l.supply, tx.Outputs[0].Amount)
	if err != nil {
		return err
	}

	op := database.NewOutPoint(tx.Hash(), 0)
	if _, exists := l.utxos[op]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateUTXO, op)
	}

	u.add(op)
	l.utxos[op] = tx.Outputs[0]
	l.supply = supply

	return nil
}

func (l *Ledger) applyTransaction(u *undo, journal map[database.OutPoint]database.TxOutput, tx database.Tx) error {
	if tx.IsCoinbase() {
		return &InvalidTransactionError{Reason: "coinbase is only allowed as the first transaction"}
	}

	if _, err := l.validateFee(tx); err != nil {
		return err
	}

	for _, in := range tx.Inputs {
		op := in.OutPoint()

		out, exists := l.utxos[op]
		if !exists {
			return fmt.Errorf("%w: %s", ErrUTXONotFound, op)
		}

		u.remove(op, out)
		delete(l.utxos, op)
		journal[op] = out

		if in.Nonce == nil {
			continue
		}

		current := l.nonces[out.Recipient]
		if *in.Nonce != current {
			return &InvalidNonceError{Expected: current, Got: *in.Nonce}
		}

		next, err := checkedAdd(current, 1)
		if err != nil {
			return err
		}

		u.nonce(out.Recipient)
		l.nonces[out.Recipient] = next
	}

	hash := tx.Hash()
	for idx, out := range tx.Outputs {
		op := database.NewOutPoint(hash, uint32(idx))
		if _, exists := l.utxos[op]; exists {
			return fmt.Errorf("%w: %s", ErrDuplicateUTXO, op)
		}

		u.add(op)
		l.utxos[op] = out
	}

	return nil
}

// =============================================================================

// undo records the inverse of every mutation made while applying a block so
// a failed apply can be reverted.
type undo struct {
	ledger  *Ledger
	supply  uint64
	added   []database.OutPoint
	removed []UTXO
	nonces  []nonceEntry
}

type nonceEntry struct {
	fp      database.Fingerprint
	value   uint64
	existed bool
}

func (u *undo) add(op database.OutPoint) {
	u.added = append(u.added, op)
}

func (u *undo) remove(op database.OutPoint, out database.TxOutput) {
	u.removed = append(u.removed, UTXO{OutPoint: op, Output: out})
}

func (u *undo) nonce(fp database.Fingerprint) {
	value, existed := u.ledger.nonces[fp]
	u.nonces = append(u.nonces, nonceEntry{fp: fp, value: value, existed: existed})
}

func (u *undo) revert() {
	l := u.ledger

	for i := len(u.nonces) - 1; i >= 0; i-- {
		n := u.nonces[i]
		switch n.existed {
		case true:
			l.nonces[n.fp] = n.value
		default:
			delete(l.nonces, n.fp)
		}
	}

	for i := len(u.added) - 1; i >= 0; i-- {
		delete(l.utxos, u.added[i])
	}

	for i := len(u.removed) - 1; i >= 0; i-- {
		l.utxos[u.removed[i].OutPoint] = u.removed[i].Output
	}

	l.supply = u.supply
}

// =============================================================================

func checkedAdd(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, ErrArithmeticOverflow
	}
	return sum, nil
}

func saturatingAdd(a, b uint64) uint64 {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return ^uint64(0)
	}
	return sum
}

func saturatingSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}

func compareOutPoints(a, b database.OutPoint) int {
	if c := bytes.Compare(a.TxHash[:], b.TxHash[:]); c != 0 {
		return c
	}

	switch {
	case a.Index < b.Index:
		return -1
	case a.Index > b.Index:
		return 1
	}
	return 0
}
