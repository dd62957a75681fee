// Package worker runs the node's background loops: mining blocks from the
// mempool, sharing new transactions and keeping up with the peers.
package worker

import (
	"sync"
	"time"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/ardanlabs/utxochain/foundation/blockchain/state"
)

// peerUpdateInterval is how often the peers are asked for their status and
// any blocks this node is missing.
const peerUpdateInterval = time.Minute

// =============================================================================

// Worker owns the goroutines that drive the state. It implements the
// state.Worker interface.
type Worker struct {
	state     *state.State
	evHandler state.EventHandler

	wg     sync.WaitGroup
	ticker *time.Ticker
	shut   chan struct{}

	// Signals hold at most one pending value. A second signal sent before
	// the first is taken is the same request and is dropped.
	startMining  chan struct{}
	cancelMining chan struct{}

	txSharing chan database.Tx
}

// Run builds the worker, registers it with the state and syncs with the
// peers before the background loops start.
func Run(st *state.State, evHandler state.EventHandler) *Worker {
	w := Worker{
		state:        st,
		evHandler:    evHandler,
		ticker:       time.NewTicker(peerUpdateInterval),
		shut:         make(chan struct{}),
		startMining:  make(chan struct{}, 1),
		cancelMining: make(chan struct{}, 1),
		txSharing:    make(chan database.Tx, maxTxShareRequests),
	}

	st.Worker = &w

	// Mining on a stale chain only produces blocks that lose the commit.
	w.Sync()

	for _, loop := range []func(){w.peerOperations, w.miningOperations, w.shareTxOperations} {
		w.wg.Go(loop)
	}

	// The mempool file may have brought back transactions to mine.
	w.SignalStartMining()

	return &w
}

// =============================================================================

// Shutdown stops the loops and waits for them to return. A block being
// mined is abandoned.
func (w *Worker) Shutdown() {
	w.evHandler("worker: shutdown: started")
	defer w.evHandler("worker: shutdown: completed")

	w.ticker.Stop()
	w.SignalCancelMining()

	close(w.shut)
	w.wg.Wait()
}

// SignalStartMining asks the mining loop to build a template from the
// mempool. Nothing happens while a resync has mining turned off.
func (w *Worker) SignalStartMining() {
	if !w.state.IsMiningAllowed() {
		w.evHandler("worker: SignalStartMining: mining turned off")
		return
	}

	signal(w.startMining)
	w.evHandler("worker: SignalStartMining: mining signaled")
}

// SignalCancelMining stops the proof of work in progress. The state calls
// it when the tip moves under a miner: a block mined on the old tip would
// only be discarded as stale at commit time, so the search is cut short and
// the mining loop starts again from a new template.
func (w *Worker) SignalCancelMining() {
	signal(w.cancelMining)
	w.evHandler("worker: SignalCancelMining: MINING: CANCEL: signaled")
}

// SignalShareTx queues the transaction for the peers. When the queue is
// full the transaction is not shared; peers still pick it up from this
// node's mempool on their next sync.
func (w *Worker) SignalShareTx(tx database.Tx) {
	select {
	case w.txSharing <- tx:
		w.evHandler("worker: SignalShareTx: share Tx signaled")
	default:
		w.evHandler("worker: SignalShareTx: queue full, tx[%s] not shared", tx.Hash().Short())
	}
}

// =============================================================================

// signal leaves a value in the channel unless one is already pending.
func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// isShutdown reports if Shutdown has been called.
func (w *Worker) isShutdown() bool {
	select {
	case <-w.shut:
		return true
	default:
		return false
	}
}
