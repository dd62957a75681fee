package state

import (
	"github.com/ardanlabs/utxochain/foundation/blockchain/chain"
	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/ardanlabs/utxochain/foundation/blockchain/genesis"
	"github.com/ardanlabs/utxochain/foundation/blockchain/ledger"
	"github.com/ardanlabs/utxochain/foundation/blockchain/mempool"
	"github.com/ardanlabs/utxochain/foundation/blockchain/peer"
)

// QueryLatest represents to query the latest block in the chain.
const QueryLatest = ^uint64(0) >> 1

// Status represents the summary of the chain.
type Status struct {
	Height      uint64        `json:"height"`
	BestHash    database.Hash `json:"best_hash"`
	TotalSupply uint64        `json:"total_supply"`
	Difficulty  uint32        `json:"difficulty"`
	UTXOs       int           `json:"utxos"`
	Forks       int           `json:"forks"`
	Orphans     int           `json:"orphans"`
	Mempool     int           `json:"mempool"`
}

// =============================================================================

// RetrieveHost returns a copy of host information.
func (s *State) RetrieveHost() string {
	return s.host
}

// RetrieveGenesis returns a copy of the genesis information.
func (s *State) RetrieveGenesis() genesis.Genesis {
	return s.genesis
}

// RetrieveStatus returns the summary of the chain.
func (s *State) RetrieveStatus() Status {
	height, best := s.chain.Tip()

	return Status{
		Height:      height,
		BestHash:    best,
		TotalSupply: s.chain.TotalSupply(),
		Difficulty:  s.chain.CurrentDifficulty(),
		UTXOs:       s.chain.UTXOCount(),
		Forks:       s.chain.ForkCount(),
		Orphans:     s.chain.OrphanCount(),
		Mempool:     s.mempool.Count(),
	}
}

// RetrieveLatestBlock returns a copy the current latest block.
func (s *State) RetrieveLatestBlock() (database.Block, error) {
	return s.chain.BlockByHeight(s.chain.Height())
}

// RetrieveMempool returns a copy of the mempool entries from the highest fee
// per byte to the lowest.
func (s *State) RetrieveMempool() []mempool.Entry {
	return s.mempool.Entries()
}

// RetrieveKnownPeers retrieves a copy of the known peer list.
func (s *State) RetrieveKnownPeers() []peer.Peer {
	return s.knownPeers.Copy(s.host)
}

// RetrieveCheckpoints returns the checkpoints ordered by height.
func (s *State) RetrieveCheckpoints() []chain.Checkpoint {
	return s.chain.Checkpoints()
}

// AddKnownPeer provides the ability to add a new peer.
func (s *State) AddKnownPeer(peer peer.Peer) bool {
	return s.knownPeers.Add(peer)
}

// RemoveKnownPeer removes the peer from the known peers.
func (s *State) RemoveKnownPeer(peer peer.Peer) {
	s.knownPeers.Remove(peer)
}

// =============================================================================

// QueryBalance returns the sum of the unspent outputs owned by the fingerprint.
func (s *State) QueryBalance(fp database.Fingerprint) uint64 {
	return s.chain.Balance(fp)
}

// QueryNonce returns the next nonce expected for the fingerprint.
func (s *State) QueryNonce(fp database.Fingerprint) uint64 {
	return s.chain.Nonce(fp)
}

// QueryUTXO returns the unspent output at the outpoint.
func (s *State) QueryUTXO(op database.OutPoint) (database.TxOutput, bool) {
	return s.chain.UTXO(op)
}

// QueryUTXOs returns the unspent outputs owned by the fingerprint.
func (s *State) QueryUTXOs(fp database.Fingerprint) []ledger.UTXO {
	return s.chain.UTXOsByFingerprint(fp)
}

// QueryBlockByHash returns the block with the hash from the main chain or a
// side chain.
func (s *State) QueryBlockByHash(hash database.Hash) (database.Block, error) {
	return s.chain.BlockByHash(hash)
}

// QueryBlocksByNumber returns the set of main chain blocks between the
// heights. QueryLatest can be used for either value.
func (s *State) QueryBlocksByNumber(from uint64, to uint64) []database.Block {
	height := s.chain.Height()

	if from == QueryLatest {
		from = height
	}
	if to == QueryLatest || to > height {
		to = height
	}

	var out []database.Block
	for i := from; i <= to; i++ {
		block, err := s.chain.BlockByHeight(i)
		if err != nil {
			s.evHandler("state: QueryBlocksByNumber: blk[%d]: ERROR: %s", i, err)
			return out
		}
		out = append(out, block)
	}

	return out
}

// AddCheckpoint records the main chain block at the height as a checkpoint.
func (s *State) AddCheckpoint(height uint64) error {
	return s.chain.AddCheckpoint(height)
}
