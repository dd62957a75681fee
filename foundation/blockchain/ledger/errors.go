package ledger

import (
	"errors"
	"fmt"
)

// Set of sentinel errors returned by the ledger. Errors carrying details
// wrap these or are one of the typed errors below.
var (
	ErrUTXONotFound        = errors.New("utxo not found")
	ErrInvalidPreviousHash = errors.New("invalid previous hash")
	ErrArithmeticOverflow  = errors.New("arithmetic overflow")
	ErrDuplicateUTXO       = errors.New("duplicate utxo")
)

// InvalidBlockHeightError is returned when a block doesn't follow the
// current height.
type InvalidBlockHeightError struct {
	Expected uint64
	Got      uint64
}

func (e *InvalidBlockHeightError) Error() string {
	return fmt.Sprintf("invalid block height: expected %d, got %d", e.Expected, e.Got)
}

// InvalidNonceError is returned when an input carries a nonce that doesn't
// match the owner's current nonce.
type InvalidNonceError struct {
	Expected uint64
	Got      uint64
}

func (e *InvalidNonceError) Error() string {
	return fmt.Sprintf("invalid nonce: expected %d, got %d", e.Expected, e.Got)
}

// InsufficientInputsError is returned when a transaction spends more than
// its inputs provide.
type InsufficientInputsError struct {
	Inputs  uint64
	Outputs uint64
}

func (e *InsufficientInputsError) Error() string {
	return fmt.Sprintf("insufficient inputs: inputs %d, outputs %d", e.Inputs, e.Outputs)
}

// InsufficientFeeError is returned when a transaction's fee is below the
// minimum for its size.
type InsufficientFeeError struct {
	Required uint64
	Provided uint64
}

func (e *InsufficientFeeError) Error() string {
	return fmt.Sprintf("insufficient fee: required %d, provided %d", e.Required, e.Provided)
}

// InvalidCoinbaseError is returned when the first transaction of a block is
// not a valid coinbase.
type InvalidCoinbaseError struct {
	Reason string
}

func (e *InvalidCoinbaseError) Error() string {
	return "invalid coinbase: " + e.Reason
}

// InvalidTransactionError is returned for a malformed transaction.
type InvalidTransactionError struct {
	Reason string
}

func (e *InvalidTransactionError) Error() string {
	return "invalid transaction: " + e.Reason
}
