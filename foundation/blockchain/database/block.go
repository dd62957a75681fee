package database

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"math/big"

	"github.com/ardanlabs/utxochain/foundation/blockchain/difficulty"
	"github.com/ardanlabs/utxochain/foundation/blockchain/merkle"
)

// Set of limits a block must honor to be structurally valid.
const (
	MaxBlockSize = 4_000_000
	MaxBlockTxs  = 10_000
)

// Set of errors returned by block validation.
var (
	ErrInvalidProofOfWork = errors.New("invalid proof of work")
	ErrInvalidMerkleRoot  = errors.New("merkle root does not match transactions")
	ErrMissingCoinbase    = errors.New("block has no coinbase transaction")
)

// =============================================================================

// BlockHeader represents common information required for each block.
type BlockHeader struct {
	_          struct{} `cbor:",toarray"`
	Version    uint32   `json:"version"`
	PrevHash   Hash     `json:"prev_hash"`   // Hash of the previous block in the chain.
	MerkleRoot Hash     `json:"merkle_root"` // Merkle root of the transaction hashes.
	Timestamp  uint64   `json:"timestamp"`   // Time the block was mined.
	Bits       uint32   `json:"bits"`        // Compact difficulty target.
	Nonce      uint64   `json:"nonce"`       // Value identified to solve the hash solution.
	Height     uint64   `json:"height"`      // Block height in the chain, genesis is 1.
}

// Bytes returns the canonical encoding of the header that is hashed.
func (bh BlockHeader) Bytes() []byte {
	b := make([]byte, 0, 4+32+32+8+4+8+8)
	b = binary.LittleEndian.AppendUint32(b, bh.Version)
	b = append(b, bh.PrevHash[:]...)
	b = append(b, bh.MerkleRoot[:]...)
	b = binary.LittleEndian.AppendUint64(b, bh.Timestamp)
	b = binary.LittleEndian.AppendUint32(b, bh.Bits)
	b = binary.LittleEndian.AppendUint64(b, bh.Nonce)
	b = binary.LittleEndian.AppendUint64(b, bh.Height)
	return b
}

// Hash returns the unique hash for the header.
func (bh BlockHeader) Hash() Hash {
	return HashBytes(bh.Bytes())
}

// =============================================================================

// Block represents a group of transactions batched together.
type Block struct {
	_      struct{}    `cbor:",toarray"`
	Header BlockHeader `json:"header"`
	Txs    []Tx        `json:"txs"`
}

// Hash returns the unique hash for the block. Only the header is hashed, the
// merkle root commits to the transactions.
func (b Block) Hash() Hash {
	return b.Header.Hash()
}

// Height returns the height of the block.
func (b Block) Height() uint64 {
	return b.Header.Height
}

// PrevHash returns the hash of the parent block.
func (b Block) PrevHash() Hash {
	return b.Header.PrevHash
}

// Size returns the number of bytes in the canonical encoding.
func (b Block) Size() int {
	data, err := Encode(b)
	if err != nil {
		return 0
	}
	return len(data)
}

// CalculateMerkleRoot returns the merkle root for the transactions. A block
// with no transactions has a zero root.
func CalculateMerkleRoot(txs []Tx) (Hash, error) {
	if len(txs) == 0 {
		return ZeroHash, nil
	}

	tree, err := merkle.NewTree(txs)
	if err != nil {
		return ZeroHash, err
	}

	var root Hash
	copy(root[:], tree.MerkleRoot)

	return root, nil
}

// ValidatePOW checks the declared bits are allowed and the header hash
// satisfies them.
func (b Block) ValidatePOW() error {
	if err := difficulty.ValidateBits(b.Header.Bits); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidProofOfWork, err)
	}

	hash := b.Hash()
	if !difficulty.HashMeetsTarget(hash, b.Header.Bits) {
		return fmt.Errorf("%w: block hash %s exceeds target for bits 0x%08x", ErrInvalidProofOfWork, hash.Short(), b.Header.Bits)
	}

	return nil
}

// Validate performs the structural checks that don't require chain state.
func (b Block) Validate(evHandler func(v string, args ...any)) error {
	evHandler("database: Validate: blk[%d]: check: transaction count", b.Header.Height)

	if len(b.Txs) > MaxBlockTxs {
		return fmt.Errorf("block contains %d transactions, max %d", len(b.Txs), MaxBlockTxs)
	}

	if len(b.Txs) == 0 || !b.Txs[0].IsCoinbase() {
		return ErrMissingCoinbase
	}

	evHandler("database: Validate: blk[%d]: check: block size", b.Header.Height)

	if size := b.Size(); size > MaxBlockSize {
		return fmt.Errorf("block size %d exceeds max %d", size, MaxBlockSize)
	}

	evHandler("database: Validate: blk[%d]: check: merkle root does match transactions", b.Header.Height)

	root, err := CalculateMerkleRoot(b.Txs)
	if err != nil {
		return err
	}

	if root != b.Header.MerkleRoot {
		return fmt.Errorf("%w: got %s, exp %s", ErrInvalidMerkleRoot, b.Header.MerkleRoot.Short(), root.Short())
	}

	evHandler("database: Validate: blk[%d]: check: transactions are well formed", b.Header.Height)

	for i, tx := range b.Txs {
		validate := tx.ValidateSpend
		if i == 0 {
			validate = tx.Validate
		}

		if err := validate(); err != nil {
			return fmt.Errorf("tx[%d] %s: %w", i, tx.Hash().Short(), err)
		}
	}

	return nil
}

// =============================================================================

// POW performs the work of mining to find a nonce that solves the block's
// difficulty target. The block is returned with the winning nonce.
func POW(ctx context.Context, b Block, ev func(v string, args ...any)) (Block, error) {
	ev("database: POW: MINING: started: blk[%d]", b.Header.Height)
	defer ev("database: POW: MINING: completed: blk[%d]", b.Header.Height)

	for _, tx := range b.Txs {
		ev("database: POW: MINING: tx[%s]", tx)
	}

	// Choose a random starting point for the nonce. After this, the nonce
	// will be incremented by 1 until a solution is found by us or another node.
	nBig, err := rand.Int(rand.Reader, big.NewInt(math.MaxInt64))
	if err != nil {
		return Block{}, err
	}
	b.Header.Nonce = nBig.Uint64()

	var attempts uint64
	for {
		attempts++
		if attempts%1_000_000 == 0 {
			ev("database: POW: MINING: attempts[%d]", attempts)
		}

		if ctx.Err() != nil {
			ev("database: POW: MINING: CANCELLED")
			return Block{}, ctx.Err()
		}

		hash := b.Hash()
		if !difficulty.HashMeetsTarget(hash, b.Header.Bits) {
			b.Header.Nonce++
			continue
		}

		ev("database: POW: MINING: SOLVED: prevBlk[%s]: newBlk[%s]: attempts[%d]", b.Header.PrevHash.Short(), hash.Short(), attempts)

		return b, nil
	}
}

// =============================================================================

// BlockData represents what is written to a JSON store and returned by the
// web api.
type BlockData struct {
	Hash   Hash        `json:"hash"`
	Header BlockHeader `json:"header"`
	Txs    []Tx        `json:"txs"`
}

// NewBlockData constructs the value to serialize.
func NewBlockData(b Block) BlockData {
	return BlockData{
		Hash:   b.Hash(),
		Header: b.Header,
		Txs:    b.Txs,
	}
}

// ToBlock converts a BlockData into a Block and checks the recorded hash.
func ToBlock(bd BlockData) (Block, error) {
	b := Block{
		Header: bd.Header,
		Txs:    bd.Txs,
	}

	if !bd.Hash.IsZero() && b.Hash() != bd.Hash {
		return Block{}, fmt.Errorf("block data hash mismatch, got %s, exp %s", b.Hash().Short(), bd.Hash.Short())
	}

	return b, nil
}
