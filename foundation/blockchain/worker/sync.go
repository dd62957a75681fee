package worker

// Sync updates the peer list, mempool and blocks.
func (w *Worker) Sync() {
	w.evHandler("worker: sync: started")
	defer w.evHandler("worker: sync: completed")

	for _, pr := range w.state.RetrieveKnownPeers() {

		// Retrieve the status of this peer.
		peerStatus, err := w.state.NetRequestPeerStatus(pr)
		if err != nil {
			w.evHandler("worker: sync: queryPeerStatus: %s: ERROR: %s", pr.Host, err)
			continue
		}

		// Add new peers to this nodes list.
		w.addNewPeers(peerStatus.KnownPeers)

		// If this peer has blocks we don't have, we need to add them. This
		// happens before the mempool so its transactions are checked against
		// the newest outputs.
		if peerStatus.LatestBlockHeight > w.state.RetrieveStatus().Height {
			w.evHandler("worker: sync: retrievePeerBlocks: %s: latestBlockHeight[%d]", pr.Host, peerStatus.LatestBlockHeight)

			if err := w.state.NetRequestPeerBlocks(pr); err != nil {
				w.evHandler("worker: sync: retrievePeerBlocks: %s: ERROR %s", pr.Host, err)
			}
		}

		// Retrieve the mempool from the peer.
		txs, err := w.state.NetRequestPeerMempool(pr)
		if err != nil {
			w.evHandler("worker: sync: retrievePeerMempool: %s: ERROR: %s", pr.Host, err)
			continue
		}

		for _, tx := range txs {
			w.evHandler("worker: sync: retrievePeerMempool: %s: Add Tx: %s", pr.Host, tx)
			if err := w.state.SubmitNodeTransaction(tx); err != nil {
				w.evHandler("worker: sync: retrievePeerMempool: %s: tx[%s]: WARNING: %s", pr.Host, tx, err)
			}
		}
	}
}
