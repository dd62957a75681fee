package database

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/bits"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Set of limits a transaction must honor to be structurally valid.
const (
	MaxTxSize    = 1_000_000
	MaxTxInputs  = 1000
	MaxTxOutputs = 1000
)

// Set of errors returned by structural transaction validation.
var (
	ErrNoInputs       = errors.New("transaction has no inputs")
	ErrNoOutputs      = errors.New("transaction has no outputs")
	ErrZeroAmount     = errors.New("transaction output has a zero amount")
	ErrAmountOverflow = errors.New("transaction output amounts overflow")
)

// =============================================================================

// OutPoint identifies a transaction output and is the key into the UTXO set.
type OutPoint struct {
	_      struct{} `cbor:",toarray"`
	TxHash Hash     `json:"tx_hash"`
	Index  uint32   `json:"index"`
}

// NewOutPoint constructs an outpoint for the output at the index of the
// specified transaction.
func NewOutPoint(txHash Hash, index uint32) OutPoint {
	return OutPoint{
		TxHash: txHash,
		Index:  index,
	}
}

// String implements the fmt.Stringer interface.
func (op OutPoint) String() string {
	return fmt.Sprintf("%s:%d", op.TxHash.Short(), op.Index)
}

// TxInput spends a previously created output.
type TxInput struct {
	_          struct{}      `cbor:",toarray"`
	PrevTxHash Hash          `json:"prev_tx_hash"`
	Index      uint32        `json:"index"`
	Signature  hexutil.Bytes `json:"signature"`
	PublicKey  hexutil.Bytes `json:"public_key"`
	Nonce      *uint64       `json:"nonce,omitempty"`
}

// OutPoint returns the outpoint this input is spending.
func (in TxInput) OutPoint() OutPoint {
	return NewOutPoint(in.PrevTxHash, in.Index)
}

// TxOutput creates new value owned by the recipient.
type TxOutput struct {
	_         struct{}      `cbor:",toarray"`
	Amount    uint64        `json:"amount"`
	Recipient Fingerprint   `json:"recipient"`
	Script    hexutil.Bytes `json:"script,omitempty"`
}

// Tx represents a transaction moving value between outputs.
type Tx struct {
	_         struct{}      `cbor:",toarray"`
	Version   uint32        `json:"version"`
	Inputs    []TxInput     `json:"inputs"`
	Outputs   []TxOutput    `json:"outputs"`
	Timestamp uint64        `json:"timestamp"`
	Data      hexutil.Bytes `json:"data,omitempty"`
}

// NewCoinbase constructs the transaction that creates the block reward. The
// height is carried in the data field so coinbase transactions for the same
// recipient never share a hash.
func NewCoinbase(recipient Fingerprint, amount uint64, height uint64, timestamp uint64) Tx {
	data := make([]byte, 8)
	binary.LittleEndian.PutUint64(data, height)

	return Tx{
		Version: 1,
		Outputs: []TxOutput{
			{Amount: amount, Recipient: recipient},
		},
		Timestamp: timestamp,
		Data:      data,
	}
}

// Encode returns the canonical encoding of the transaction.
func (tx Tx) Encode() ([]byte, error) {
	return Encode(tx)
}

// Hash returns the unique hash for the transaction.
func (tx Tx) Hash() Hash {
	data, err := tx.Encode()
	if err != nil {
		return ZeroHash
	}
	return HashBytes(data)
}

// SigningHash returns the hash that is signed for each input. Signatures
// are cleared so the hash does not depend on them.
func (tx Tx) SigningHash() Hash {
	cpy := tx
	cpy.Inputs = make([]TxInput, len(tx.Inputs))
	for i, in := range tx.Inputs {
		in.Signature = nil
		cpy.Inputs[i] = in
	}

	return cpy.Hash()
}

// Size returns the number of bytes in the canonical encoding.
func (tx Tx) Size() int {
	data, err := tx.Encode()
	if err != nil {
		return 0
	}
	return len(data)
}

// IsCoinbase reports if the transaction creates new supply.
func (tx Tx) IsCoinbase() bool {
	return len(tx.Inputs) == 0
}

// TotalOutput returns the sum of all the output amounts.
func (tx Tx) TotalOutput() (uint64, error) {
	var total uint64
	for _, out := range tx.Outputs {
		sum, carry := bits.Add64(total, out.Amount, 0)
		if carry != 0 {
			return 0, ErrAmountOverflow
		}
		total = sum
	}

	return total, nil
}

// Validate performs the structural checks that don't require chain state.
func (tx Tx) Validate() error {
	if size := tx.Size(); size > MaxTxSize {
		return fmt.Errorf("transaction size %d exceeds max %d", size, MaxTxSize)
	}

	if len(tx.Inputs) > MaxTxInputs {
		return fmt.Errorf("transaction has %d inputs, max %d", len(tx.Inputs), MaxTxInputs)
	}

	if len(tx.Outputs) > MaxTxOutputs {
		return fmt.Errorf("transaction has %d outputs, max %d", len(tx.Outputs), MaxTxOutputs)
	}

	if len(tx.Outputs) == 0 {
		return ErrNoOutputs
	}

	for _, out := range tx.Outputs {
		if out.Amount == 0 {
			return ErrZeroAmount
		}
	}

	if _, err := tx.TotalOutput(); err != nil {
		return err
	}

	return nil
}

// ValidateSpend performs the structural checks for a transaction that must
// spend existing outputs.
func (tx Tx) ValidateSpend() error {
	if len(tx.Inputs) == 0 {
		return ErrNoInputs
	}

	return tx.Validate()
}

// String implements the fmt.Stringer interface for logging.
func (tx Tx) String() string {
	return fmt.Sprintf("%s:in[%d]:out[%d]", tx.Hash().Short(), len(tx.Inputs), len(tx.Outputs))
}

// Digest implements the merkle.Hashable interface.
func (tx Tx) Digest() ([]byte, error) {
	data, err := tx.Encode()
	if err != nil {
		return nil, err
	}

	h := HashBytes(data)
	return h[:], nil
}

// Equals implements the merkle.Hashable interface.
func (tx Tx) Equals(other Tx) bool {
	return tx.Hash() == other.Hash()
}
