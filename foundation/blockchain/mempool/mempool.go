// Package mempool maintains the pool of transactions waiting to be mined,
// ordered by the fee they pay per byte.
package mempool

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/google/btree"
)

// Default settings for the mempool.
const (
	DefaultMaxTransactions = 10_000
	DefaultMaxTxSize       = 100_000
	DefaultMinFeePerByte   = 1
)

// Set of error variables for the mempool.
var (
	ErrDuplicate          = errors.New("transaction already in mempool")
	ErrTooLarge           = errors.New("transaction too large")
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrFeeTooLow          = errors.New("fee too low")
	ErrNotFound           = errors.New("transaction not found")
	ErrEmpty              = errors.New("mempool is empty")
)

// UTXOView provides the outputs the transactions spend.
type UTXOView interface {
	UTXO(op database.OutPoint) (database.TxOutput, bool)
}

// Config represents the limits of the mempool.
type Config struct {
	_               struct{} `cbor:",toarray"`
	MaxTransactions int
	MaxTxSize       int
	MinFeePerByte   uint64
}

// DefaultConfig returns the default limits.
func DefaultConfig() Config {
	return Config{
		MaxTransactions: DefaultMaxTransactions,
		MaxTxSize:       DefaultMaxTxSize,
		MinFeePerByte:   DefaultMinFeePerByte,
	}
}

// Entry represents a transaction in the mempool.
type Entry struct {
	_          struct{}      `cbor:",toarray"`
	Hash       database.Hash `json:"hash"`
	Tx         database.Tx   `json:"tx"`
	FeePerByte uint64        `json:"fee_per_byte"`
}

// feeKey orders the fee index from the highest fee per byte to the lowest.
// Within the same fee the order of arrival is kept.
type feeKey struct {
	fee  uint64
	seq  uint64
	hash database.Hash
}

func lessFeeKey(a, b feeKey) bool {
	if a.fee != b.fee {
		return a.fee > b.fee
	}
	return a.seq < b.seq
}

type entry struct {
	Entry
	key  feeKey
	size int
}

// Mempool represents a cache of transactions indexed by hash with a
// second index on the fee per byte.
type Mempool struct {
	mu    sync.RWMutex
	cfg   Config
	pool  map[database.Hash]*entry
	byFee *btree.BTreeG[feeKey]
	seq   uint64
	size  int
}

// New constructs a mempool with the specified limits. Zero values take
// the defaults.
func New(cfg Config) *Mempool {
	def := DefaultConfig()
	if cfg.MaxTransactions <= 0 {
		cfg.MaxTransactions = def.MaxTransactions
	}
	if cfg.MaxTxSize <= 0 {
		cfg.MaxTxSize = def.MaxTxSize
	}
	if cfg.MinFeePerByte == 0 {
		cfg.MinFeePerByte = def.MinFeePerByte
	}

	mp := Mempool{
		cfg:   cfg,
		pool:  make(map[database.Hash]*entry),
		byFee: btree.NewG(32, lessFeeKey),
	}

	return &mp
}

// Config returns the limits of the mempool.
func (mp *Mempool) Config() Config {
	return mp.cfg
}

// Count returns the current number of transactions in the pool.
func (mp *Mempool) Count() int {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	return len(mp.pool)
}

// TotalSize returns the sum of the encoded sizes of the transactions.
func (mp *Mempool) TotalSize() int {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	return mp.size
}

// Contains reports whether the transaction is in the pool.
func (mp *Mempool) Contains(hash database.Hash) bool {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	_, exists := mp.pool[hash]
	return exists
}

// Fee returns the fee per byte recorded for the transaction.
func (mp *Mempool) Fee(hash database.Hash) (uint64, bool) {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	e, exists := mp.pool[hash]
	if !exists {
		return 0, false
	}
	return e.FeePerByte, true
}

// Add validates the transaction's fee against the view and adds it to the
// pool. When the pool is full the entry with the lowest fee per byte is
// evicted to make room.
func (mp *Mempool) Add(tx database.Tx, view UTXOView) error {
	hash := tx.Hash()
	size := tx.Size()

	mp.mu.Lock()
	defer mp.mu.Unlock()

	if _, exists := mp.pool[hash]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicate, hash)
	}

	if size > mp.cfg.MaxTxSize {
		return fmt.Errorf("%w: %d bytes, max %d", ErrTooLarge, size, mp.cfg.MaxTxSize)
	}

	fee, err := mp.feePerByte(tx, size, view)
	if err != nil {
		return err
	}

	if len(mp.pool) >= mp.cfg.MaxTransactions {
		if _, err := mp.evictLowest(); err != nil {
			return err
		}
	}

	mp.insert(Entry{Hash: hash, Tx: tx, FeePerByte: fee}, size)

	return nil
}

// Transactions returns up to limit transactions from the highest fee per
// byte to the lowest. A negative limit returns them all.
func (mp *Mempool) Transactions(limit int) []database.Tx {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	if limit < 0 || limit > len(mp.pool) {
		limit = len(mp.pool)
	}

	txs := make([]database.Tx, 0, limit)
	mp.byFee.Ascend(func(k feeKey) bool {
		if len(txs) == limit {
			return false
		}
		txs = append(txs, mp.pool[k.hash].Tx)
		return true
	})

	return txs
}

// Entries returns a copy of every entry from the highest fee per byte to
// the lowest.
func (mp *Mempool) Entries() []Entry {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	return mp.entries()
}

// Remove deletes the transaction from the pool.
func (mp *Mempool) Remove(hash database.Hash) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if !mp.remove(hash) {
		return fmt.Errorf("%w: %s", ErrNotFound, hash)
	}

	return nil
}

// RemoveConfirmed deletes every transaction of the block from the pool and
// returns how many were present.
func (mp *Mempool) RemoveConfirmed(block database.Block) int {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	var removed int
	for _, tx := range block.Txs {
		if mp.remove(tx.Hash()) {
			removed++
		}
	}

	return removed
}

// EvictLowest removes the transaction with the lowest fee per byte.
func (mp *Mempool) EvictLowest() (database.Hash, error) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	return mp.evictLowest()
}

// Clear removes all the transactions from the pool.
func (mp *Mempool) Clear() {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.pool = make(map[database.Hash]*entry)
	mp.byFee.Clear(false)
	mp.size = 0
}

// =============================================================================

// feePerByte resolves the inputs against the view and divides the fee by
// the size of the transaction.
func (mp *Mempool) feePerByte(tx database.Tx, size int, view UTXOView) (uint64, error) {
	var inputs uint64
	for i, in := range tx.Inputs {
		out, exists := view.UTXO(in.OutPoint())
		if !exists {
			return 0, fmt.Errorf("%w: input %d: output %s not found", ErrInvalidTransaction, i, in.OutPoint())
		}

		sum := inputs + out.Amount
		if sum < inputs {
			return 0, fmt.Errorf("%w: input amounts overflow", ErrInvalidTransaction)
		}
		inputs = sum
	}

	outputs, err := tx.TotalOutput()
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrInvalidTransaction, err)
	}

	if outputs > inputs {
		return 0, fmt.Errorf("%w: outputs %d exceed inputs %d", ErrInvalidTransaction, outputs, inputs)
	}

	fee := (inputs - outputs) / uint64(size)
	if fee < mp.cfg.MinFeePerByte {
		return 0, fmt.Errorf("%w: %d per byte, min %d", ErrFeeTooLow, fee, mp.cfg.MinFeePerByte)
	}

	return fee, nil
}

func (mp *Mempool) insert(e Entry, size int) {
	mp.seq++
	key := feeKey{fee: e.FeePerByte, seq: mp.seq, hash: e.Hash}

	mp.pool[e.Hash] = &entry{Entry: e, key: key, size: size}
	mp.byFee.ReplaceOrInsert(key)
	mp.size += size
}

func (mp *Mempool) remove(hash database.Hash) bool {
	e, exists := mp.pool[hash]
	if !exists {
		return false
	}

	delete(mp.pool, hash)
	mp.byFee.Delete(e.key)
	mp.size -= e.size

	return true
}

func (mp *Mempool) evictLowest() (database.Hash, error) {
	key, exists := mp.byFee.Max()
	if !exists {
		return database.Hash{}, ErrEmpty
	}

	mp.remove(key.hash)

	return key.hash, nil
}

func (mp *Mempool) entries() []Entry {
	entries := make([]Entry, 0, len(mp.pool))
	mp.byFee.Ascend(func(k feeKey) bool {
		entries = append(entries, mp.pool[k.hash].Entry)
		return true
	})

	return entries
}
