package ledger

import (
	"bytes"
	"maps"
	"slices"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
)

// NonceEntry is the nonce recorded for a fingerprint.
type NonceEntry struct {
	_           struct{}             `cbor:",toarray"`
	Fingerprint database.Fingerprint `json:"fingerprint"`
	Nonce       uint64               `json:"nonce"`
}

// ConsumedEntry holds the outputs consumed by the block at the height.
type ConsumedEntry struct {
	_      struct{} `cbor:",toarray"`
	Height uint64   `json:"height"`
	UTXOs  []UTXO   `json:"utxos"`
}

// Snapshot is the complete serializable state of a ledger. Every slice is
// sorted so two equal ledgers produce equal snapshots.
type Snapshot struct {
	_           struct{}        `cbor:",toarray"`
	Height      uint64          `json:"height"`
	BestHash    database.Hash   `json:"best_hash"`
	TotalSupply uint64          `json:"total_supply"`
	UTXOs       []UTXO          `json:"utxos"`
	Nonces      []NonceEntry    `json:"nonces"`
	Consumed    []ConsumedEntry `json:"consumed"`
}

// Snapshot captures the current state of the ledger.
func (l *Ledger) Snapshot() Snapshot {
	s := Snapshot{
		Height:      l.height,
		BestHash:    l.bestHash,
		TotalSupply: l.supply,
		UTXOs:       sortedUTXOs(l.utxos),
		Nonces:      make([]NonceEntry, 0, len(l.nonces)),
		Consumed:    make([]ConsumedEntry, 0, len(l.consumed)),
	}

	for fp, nonce := range l.nonces {
		s.Nonces = append(s.Nonces, NonceEntry{Fingerprint: fp, Nonce: nonce})
	}
	slices.SortFunc(s.Nonces, func(a, b NonceEntry) int {
		return bytes.Compare(a.Fingerprint[:], b.Fingerprint[:])
	})

	for _, height := range slices.Sorted(maps.Keys(l.consumed)) {
		s.Consumed = append(s.Consumed, ConsumedEntry{Height: height, UTXOs: sortedUTXOs(l.consumed[height])})
	}

	return s
}

// FromSnapshot constructs a ledger holding the captured state.
func FromSnapshot(s Snapshot) *Ledger {
	l := New()
	l.height = s.Height
	l.bestHash = s.BestHash
	l.supply = s.TotalSupply

	for _, u := range s.UTXOs {
		l.utxos[u.OutPoint] = u.Output
	}

	for _, n := range s.Nonces {
		l.nonces[n.Fingerprint] = n.Nonce
	}

	for _, c := range s.Consumed {
		journal := make(map[database.OutPoint]database.TxOutput, len(c.UTXOs))
		for _, u := range c.UTXOs {
			journal[u.OutPoint] = u.Output
		}
		l.consumed[c.Height] = journal
	}

	return l
}

// Clone returns a deep copy of the ledger.
func (l *Ledger) Clone() *Ledger {
	cpy := &Ledger{
		utxos:    maps.Clone(l.utxos),
		nonces:   maps.Clone(l.nonces),
		consumed: make(map[uint64]map[database.OutPoint]database.TxOutput, len(l.consumed)),
		height:   l.height,
		bestHash: l.bestHash,
		supply:   l.supply,
	}

	for height, journal := range l.consumed {
		cpy.consumed[height] = maps.Clone(journal)
	}

	return cpy
}

func sortedUTXOs(m map[database.OutPoint]database.TxOutput) []UTXO {
	utxos := make([]UTXO, 0, len(m))
	for op, out := range m {
		utxos = append(utxos, UTXO{OutPoint: op, Output: out})
	}

	slices.SortFunc(utxos, func(a, b UTXO) int {
		return compareOutPoints(a.OutPoint, b.OutPoint)
	})

	return utxos
}

// Restore replaces the state of the ledger with the captured state.
func (l *Ledger) Restore(s Snapshot) {
	*l = *FromSnapshot(s)
}
