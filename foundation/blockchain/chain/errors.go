package chain

import (
	"errors"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
)

// Set of errors returned by the chain manager. Ledger errors are returned
// wrapped so they can still be matched with errors.Is and errors.As.
var (
	ErrInvalidProofOfWork  = database.ErrInvalidProofOfWork
	ErrCheckpointMismatch  = errors.New("block does not match checkpoint")
	ErrCheckpointViolation = errors.New("reorganization would replace a checkpointed block")
	ErrCheckpointConflict  = errors.New("conflicting checkpoint")
	ErrForkTooDeep         = errors.New("fork chain too deep")
	ErrIncompleteFork      = errors.New("incomplete fork chain")
	ErrStaleTip            = errors.New("chain tip changed")
	ErrInvalidSignature    = errors.New("invalid input signature")
	ErrOwnership           = errors.New("public key does not own the input")
)
