// Package state is the core API for the blockchain node. It ties the chain
// manager and the mempool together and implements the mining protocol and
// the network workflows.
package state

import (
	"sync"

	"github.com/ardanlabs/utxochain/foundation/blockchain/chain"
	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/ardanlabs/utxochain/foundation/blockchain/genesis"
	"github.com/ardanlabs/utxochain/foundation/blockchain/mempool"
	"github.com/ardanlabs/utxochain/foundation/blockchain/peer"
	"github.com/ardanlabs/utxochain/foundation/metrics"
)

// EventHandler defines a function that is called when events
// occur in the processing of blocks and transactions.
type EventHandler func(v string, args ...any)

// Worker interface represents the behavior required to be implemented by any
// package providing support for mining, peer updates, and transaction sharing.
type Worker interface {
	Shutdown()
	Sync()
	SignalStartMining()
	SignalCancelMining()
	SignalShareTx(tx database.Tx)
}

// =============================================================================

// Config represents the configuration required to start
// the blockchain node.
type Config struct {
	Beneficiary database.Fingerprint
	Host        string
	Storage     database.Storage
	Genesis     genesis.Genesis
	Checkpoints map[uint64]database.Hash
	MempoolPath string
	Mempool     mempool.Config
	KnownPeers  *peer.PeerSet
	EvHandler   EventHandler
}

// State manages the blockchain node.
type State struct {
	beneficiary database.Fingerprint
	host        string
	mempoolPath string
	evHandler   EventHandler

	mu          sync.Mutex
	allowMining bool

	knownPeers *peer.PeerSet
	genesis    genesis.Genesis
	storage    database.Storage
	chain      *chain.Chain
	mempool    *mempool.Mempool

	Worker Worker
}

// New constructs the state for the node. The chain is restored from storage
// and the mempool from its file when one exists.
func New(cfg Config) (*State, error) {

	// Build a safe event handler function for use.
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	// The chain restores the ledger from the last state snapshot or starts
	// a new chain from the genesis block.
	chn, err := chain.New(chain.Config{
		Storage:     cfg.Storage,
		Genesis:     cfg.Genesis,
		Checkpoints: cfg.Checkpoints,
		EvHandler:   chain.EventHandler(ev),
	})
	if err != nil {
		return nil, err
	}

	// Transactions that were pending when the node stopped are loaded back
	// as they were saved.
	mp := mempool.New(cfg.Mempool)
	if cfg.MempoolPath != "" {
		mp, err = mempool.LoadOrNew(cfg.MempoolPath, cfg.Mempool)
		if err != nil {
			return nil, err
		}
	}

	knownPeers := cfg.KnownPeers
	if knownPeers == nil {
		knownPeers = peer.NewPeerSet()
	}

	state := State{
		beneficiary: cfg.Beneficiary,
		host:        cfg.Host,
		mempoolPath: cfg.MempoolPath,
		evHandler:   ev,
		allowMining: true,

		knownPeers: knownPeers,
		genesis:    cfg.Genesis,
		storage:    cfg.Storage,
		chain:      chn,
		mempool:    mp,
	}

	metrics.SetChainHeight(chn.Height())
	metrics.SetMempoolSize(mp.Count())

	ev("state: New: height[%d]: best[%s]: mempool[%d]", chn.Height(), chn.BestHash().Short(), mp.Count())

	// The Worker is not set here. The call to worker.Run will assign itself
	// and start everything up and running for the node.

	return &state, nil
}

// Shutdown cleanly brings the node down.
func (s *State) Shutdown() error {
	s.evHandler("state: shutdown: started")
	defer s.evHandler("state: shutdown: completed")

	// Make sure the database file is properly closed.
	defer func() {
		s.storage.Close()
	}()

	// Stop all blockchain writing activity.
	if s.Worker != nil {
		s.Worker.Shutdown()
	}

	return s.saveMempool()
}

// IsMiningAllowed identifies if we are allowed to mine blocks. This
// might be turned off if the blockchain needs to be resynced.
func (s *State) IsMiningAllowed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.allowMining
}

// Resync turns mining off while the blocks missing from this node are
// requested from the known peers.
func (s *State) Resync() {
	s.mu.Lock()
	if !s.allowMining {
		s.mu.Unlock()
		return
	}
	s.allowMining = false
	s.mu.Unlock()

	go func() {
		s.evHandler("state: Resync: started: *****************************")
		defer func() {
			s.mu.Lock()
			s.allowMining = true
			s.mu.Unlock()
			s.evHandler("state: Resync: completed: *****************************")
		}()

		if s.Worker != nil {
			s.Worker.Sync()
		}
	}()
}

// =============================================================================

// saveMempool writes the mempool to its file when one is configured.
func (s *State) saveMempool() error {
	metrics.SetMempoolSize(s.mempool.Count())

	if s.mempoolPath == "" {
		return nil
	}

	if err := s.mempool.Save(s.mempoolPath); err != nil {
		s.evHandler("state: saveMempool: ERROR: %s", err)
		return err
	}

	return nil
}
