// Package public maintains the group of handlers for public access.
package public

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ardanlabs/utxochain/business/web/errs"
	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/ardanlabs/utxochain/foundation/blockchain/state"
	"github.com/ardanlabs/utxochain/foundation/events"
	"github.com/ardanlabs/utxochain/foundation/nameservice"
	"github.com/ardanlabs/utxochain/foundation/web"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Handlers manages the set of public endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
	NS    *nameservice.NameService
	WS    websocket.Upgrader
	Evts  *events.Events
}

// Events handles a web socket to provide events to a client.
func (h Handlers) Events(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	// Need this to handle CORS on the websocket.
	h.WS.CheckOrigin = func(r *http.Request) bool { return true }

	// This upgrades the HTTP connection to a websocket connection.
	c, err := h.WS.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	// This provides a channel for receiving events from the blockchain.
	ch := h.Evts.Acquire(v.TraceID)
	defer h.Evts.Release(v.TraceID)

	// Starting a ticker to send a ping message over the websocket.
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	// Block waiting for events from the blockchain or ticker.
	for {
		select {
		case msg, wd := <-ch:

			// If the channel is closed, release the websocket.
			if !wd {
				return nil
			}

			if err := c.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return err
			}

		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return nil
			}
		}
	}
}

// SubmitWalletTransaction adds new user transactions to the mempool.
func (h Handlers) SubmitWalletTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	// Decode the JSON in the post call into a signed transaction.
	var tx database.Tx
	if err := web.Decode(r, &tx); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	h.Log.Infow("add user tran", "traceid", v.TraceID, "tx", tx, "inputs", len(tx.Inputs), "outputs", len(tx.Outputs))

	// Ask the state package to add this transaction to the mempool. The
	// transaction is shared with the peers and mining is signaled.
	if err := h.State.SubmitWalletTransaction(tx); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	resp := struct {
		Status string        `json:"status"`
		Hash   database.Hash `json:"hash"`
	}{
		Status: "transactions added to mempool",
		Hash:   tx.Hash(),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// SignalMining signals to start a mining operation.
func (h Handlers) SignalMining(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	if h.State.Worker != nil {
		h.State.Worker.SignalStartMining()
	}

	resp := struct {
		Status string `json:"status"`
	}{
		Status: "mining signalled",
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Genesis returns the genesis information.
func (h Handlers) Genesis(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.State.RetrieveGenesis(), http.StatusOK)
}

// Status returns the summary of the chain.
func (h Handlers) Status(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.State.RetrieveStatus(), http.StatusOK)
}

// Checkpoints returns the checkpoints ordered by height.
func (h Handlers) Checkpoints(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.State.RetrieveCheckpoints(), http.StatusOK)
}

// Balance returns the balance, nonce and unspent outputs of a fingerprint.
func (h Handlers) Balance(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	fp, err := database.ToFingerprint(web.Param(r, "fingerprint"))
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	bal := balance{
		Fingerprint: fp,
		Name:        h.NS.Lookup(fp),
		Balance:     h.State.QueryBalance(fp),
		Nonce:       h.State.QueryNonce(fp),
		UTXOs:       h.State.QueryUTXOs(fp),
	}

	return web.Respond(ctx, w, bal, http.StatusOK)
}

// UTXOs returns the unspent outputs owned by a fingerprint.
func (h Handlers) UTXOs(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	fp, err := database.ToFingerprint(web.Param(r, "fingerprint"))
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	return web.Respond(ctx, w, h.State.QueryUTXOs(fp), http.StatusOK)
}

// UTXO returns the unspent output at the outpoint.
func (h Handlers) UTXO(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	hash, err := database.ToHash(web.Param(r, "hash"))
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	index, err := strconv.ParseUint(web.Param(r, "index"), 10, 32)
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	op := database.NewOutPoint(hash, uint32(index))

	out, exists := h.State.QueryUTXO(op)
	if !exists {
		return errs.NewTrusted(fmt.Errorf("outpoint %s is not unspent", op), http.StatusNotFound)
	}

	return web.Respond(ctx, w, out, http.StatusOK)
}

// BlockByHeight returns the main chain block at the height.
func (h Handlers) BlockByHeight(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	height, err := strconv.ParseUint(web.Param(r, "height"), 10, 64)
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	blocks := h.State.QueryBlocksByNumber(height, height)
	if len(blocks) == 0 {
		return errs.NewTrusted(fmt.Errorf("block %d not found", height), http.StatusNotFound)
	}

	return web.Respond(ctx, w, database.NewBlockData(blocks[0]), http.StatusOK)
}

// BlockByHash returns the block with the hash from the main chain or a
// side chain.
func (h Handlers) BlockByHash(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	hash, err := database.ToHash(web.Param(r, "hash"))
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	block, err := h.State.QueryBlockByHash(hash)
	if err != nil {
		return errs.NewTrusted(errors.New("block not found"), http.StatusNotFound)
	}

	return web.Respond(ctx, w, database.NewBlockData(block), http.StatusOK)
}

// Mempool returns the set of uncommitted transactions. When a fingerprint
// is provided, only the transactions paying it are returned.
func (h Handlers) Mempool(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var fp database.Fingerprint
	filter := web.Param(r, "fingerprint")
	if filter != "" {
		var err error
		if fp, err = database.ToFingerprint(filter); err != nil {
			return errs.NewTrusted(err, http.StatusBadRequest)
		}
	}

	entries := h.State.RetrieveMempool()

	trans := make([]tx, 0, len(entries))
	for _, e := range entries {
		outputs := make([]output, len(e.Tx.Outputs))
		paysFilter := false
		for i, out := range e.Tx.Outputs {
			outputs[i] = output{
				Amount:    out.Amount,
				Recipient: out.Recipient,
				Name:      h.NS.Lookup(out.Recipient),
			}
			paysFilter = paysFilter || out.Recipient == fp
		}

		if filter != "" && !paysFilter {
			continue
		}

		trans = append(trans, tx{
			Hash:       e.Hash,
			FeePerByte: e.FeePerByte,
			Inputs:     e.Tx.Inputs,
			Outputs:    outputs,
			Timestamp:  e.Tx.Timestamp,
		})
	}

	return web.Respond(ctx, w, trans, http.StatusOK)
}
