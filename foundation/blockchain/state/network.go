package state

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/ardanlabs/utxochain/foundation/blockchain/mempool"
	"github.com/ardanlabs/utxochain/foundation/blockchain/peer"
	"golang.org/x/sync/errgroup"
)

const baseURL = "http://%s/v1/node"

// syncOverlap is how many blocks below our tip are requested again when
// syncing, so a peer on a short side chain hands us the fork point.
const syncOverlap = 100

// client is used for all node to node calls.
var client = http.Client{
	Timeout: 30 * time.Second,
}

// NetSendBlockToPeers takes the new mined block and sends it to all known
// peers at the same time.
func (s *State) NetSendBlockToPeers(block database.Block) error {
	s.evHandler("state: NetSendBlockToPeers: started")
	defer s.evHandler("state: NetSendBlockToPeers: completed")

	var g errgroup.Group

	for _, pr := range s.RetrieveKnownPeers() {
		g.Go(func() error {
			url := fmt.Sprintf("%s/block/propose", fmt.Sprintf(baseURL, pr.Host))

			var status struct {
				Status string `json:"status"`
			}

			if err := send(http.MethodPost, url, database.NewBlockData(block), &status); err != nil {
				return fmt.Errorf("%s: %w", pr.Host, err)
			}

			s.evHandler("state: NetSendBlockToPeers: sent to peer[%s]", pr)
			return nil
		})
	}

	return g.Wait()
}

// NetSendTxToPeers shares a new transaction with the known peers.
func (s *State) NetSendTxToPeers(tx database.Tx) {
	s.evHandler("state: NetSendTxToPeers: started")
	defer s.evHandler("state: NetSendTxToPeers: completed")

	// CORE NOTE: Bitcoin does not send the full transaction immediately to save
	// on bandwidth. A node will send the transaction's hash first so the
	// receiving node can check if they already have the transaction or not.

	// For now, the full transaction is sent.
	var g errgroup.Group
	g.SetLimit(10)

	for _, pr := range s.RetrieveKnownPeers() {
		g.Go(func() error {
			url := fmt.Sprintf("%s/tx/submit", fmt.Sprintf(baseURL, pr.Host))
			if err := send(http.MethodPost, url, tx, nil); err != nil {
				s.evHandler("state: NetSendTxToPeers: WARNING: %s: %s", pr.Host, err)
			}
			return nil
		})
	}

	g.Wait()
}

// NetRequestPeerStatus looks for new nodes on the blockchain by asking
// known nodes for their peer list. New nodes are added to the list.
func (s *State) NetRequestPeerStatus(pr peer.Peer) (peer.PeerStatus, error) {
	s.evHandler("state: NetRequestPeerStatus: started: %s", pr)
	defer s.evHandler("state: NetRequestPeerStatus: completed: %s", pr)

	url := fmt.Sprintf("%s/status", fmt.Sprintf(baseURL, pr.Host))

	var ps peer.PeerStatus
	if err := send(http.MethodGet, url, nil, &ps); err != nil {
		return peer.PeerStatus{}, err
	}

	s.evHandler("state: NetRequestPeerStatus: peer-node[%s]: latest-blkheight[%d]: peer-list[%s]", pr, ps.LatestBlockHeight, ps.KnownPeers)

	return ps, nil
}

// NetRequestAddPeer lets the peer know this node is available.
func (s *State) NetRequestAddPeer(pr peer.Peer) error {
	s.evHandler("state: NetRequestAddPeer: started: %s", pr)
	defer s.evHandler("state: NetRequestAddPeer: completed: %s", pr)

	url := fmt.Sprintf("%s/peers", fmt.Sprintf(baseURL, pr.Host))

	return send(http.MethodPost, url, peer.New(s.host), nil)
}

// NetRequestPeerMempool asks the peer for the transactions in their mempool.
func (s *State) NetRequestPeerMempool(pr peer.Peer) ([]database.Tx, error) {
	s.evHandler("state: NetRequestPeerMempool: started: %s", pr)
	defer s.evHandler("state: NetRequestPeerMempool: completed: %s", pr)

	url := fmt.Sprintf("%s/tx/list", fmt.Sprintf(baseURL, pr.Host))

	var entries []mempool.Entry
	if err := send(http.MethodGet, url, nil, &entries); err != nil {
		return nil, err
	}

	s.evHandler("state: NetRequestPeerMempool: len[%d]", len(entries))

	txs := make([]database.Tx, len(entries))
	for i, e := range entries {
		txs[i] = e.Tx
	}

	return txs, nil
}

// NetRequestPeerBlocks queries the specified node asking for blocks this
// node does not have and adds them to the chain.
func (s *State) NetRequestPeerBlocks(pr peer.Peer) error {
	s.evHandler("state: NetRequestPeerBlocks: started: %s", pr)
	defer s.evHandler("state: NetRequestPeerBlocks: completed: %s", pr)

	// CORE NOTE: Ideally you want to start by pulling just block headers and
	// performing the cryptographic audit so you know you're not being attacked.
	// Here the full blocks are requested and every block goes through the
	// complete validation as it is added.

	from := uint64(1)
	if height := s.chain.Height(); height > syncOverlap {
		from = height - syncOverlap
	}

	url := fmt.Sprintf("%s/block/list/%d/latest", fmt.Sprintf(baseURL, pr.Host), from)

	var blocks []database.BlockData
	if err := send(http.MethodGet, url, nil, &blocks); err != nil {
		return err
	}

	s.evHandler("state: NetRequestPeerBlocks: found blocks[%d]", len(blocks))

	for _, bd := range blocks {
		block, err := database.ToBlock(bd)
		if err != nil {
			return err
		}

		if err := s.ProcessProposedBlock(block); err != nil {
			return fmt.Errorf("blk[%d]: %w", block.Header.Height, err)
		}
	}

	return nil
}

// =============================================================================

// send is a helper function to send an HTTP request to a node.
func send(method string, url string, dataSend any, dataRecv any) error {
	var body io.Reader

	if dataSend != nil {
		data, err := json.Marshal(dataSend)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(context.Background(), method, url, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	if resp.StatusCode != http.StatusOK {
		msg, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		return errors.New(string(msg))
	}

	if dataRecv != nil {
		if err := json.NewDecoder(resp.Body).Decode(dataRecv); err != nil {
			return err
		}
	}

	return nil
}
