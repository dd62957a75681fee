// Package storagetest provides the conformance tests every database.Storage
// implementation must pass.
package storagetest

import (
	"bytes"
	"errors"
	"testing"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/ardanlabs/utxochain/foundation/blockchain/difficulty"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

// Block constructs a small block at the height for storing.
func Block(t *testing.T, prevHash database.Hash, height uint64) database.Block {
	t.Helper()

	nonce := uint64(3)
	txs := []database.Tx{
		database.NewCoinbase(database.Fingerprint{1}, 50, height, height*300),
		{
			Version: 1,
			Inputs: []database.TxInput{
				{PrevTxHash: database.HashBytes([]byte("prev")), Index: 1, Signature: []byte{1, 2}, PublicKey: []byte{3, 4}, Nonce: &nonce},
			},
			Outputs: []database.TxOutput{
				{Amount: 10, Recipient: database.Fingerprint{2}},
			},
		},
	}

	root, err := database.CalculateMerkleRoot(txs)
	if err != nil {
		t.Fatalf("Should be able to calculate the merkle root: %v", err)
	}

	return database.Block{
		Header: database.BlockHeader{
			Version:    1,
			PrevHash:   prevHash,
			MerkleRoot: root,
			Timestamp:  height * 300,
			Bits:       difficulty.GenesisBits,
			Nonce:      height,
			Height:     height,
		},
		Txs: txs,
	}
}

// Run exercises the storage returned by the constructor.
func Run(t *testing.T, newStorage func(t *testing.T) database.Storage) {
	t.Log("Given the need to durably store blocks.")
	{
		strg := newStorage(t)
		defer strg.Close()

		t.Logf("\tTest 0:\tWhen the storage is empty.")
		{
			if _, err := strg.GetBlockByHeight(1); !errors.Is(err, database.ErrNotFound) {
				t.Fatalf("\t%s\tTest 0:\tShould get not found by height, got %v.", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould get not found by height.", success)

			if _, err := strg.GetBlockByHash(database.HashBytes([]byte("x"))); !errors.Is(err, database.ErrNotFound) {
				t.Fatalf("\t%s\tTest 0:\tShould get not found by hash, got %v.", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould get not found by hash.", success)

			if _, err := strg.LoadState(); !errors.Is(err, database.ErrNotFound) {
				t.Fatalf("\t%s\tTest 0:\tShould get not found for the state, got %v.", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould get not found for the state.", success)
		}

		b1 := Block(t, database.ZeroHash, 1)
		b2 := Block(t, b1.Hash(), 2)

		t.Logf("\tTest 1:\tWhen storing blocks.")
		{
			for _, b := range []database.Block{b1, b2} {
				if err := strg.StoreBlock(b); err != nil {
					t.Fatalf("\t%s\tTest 1:\tShould be able to store block %d: %v", failed, b.Header.Height, err)
				}
			}
			t.Logf("\t%s\tTest 1:\tShould be able to store the blocks.", success)

			got, err := strg.GetBlockByHeight(2)
			if err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould be able to read by height: %v", failed, err)
			}
			t.Logf("\t%s\tTest 1:\tShould be able to read by height.", success)

			if got.Hash() != b2.Hash() || got.Txs[1].Hash() != b2.Txs[1].Hash() {
				t.Fatalf("\t%s\tTest 1:\tShould get back the same block.", failed)
			}
			t.Logf("\t%s\tTest 1:\tShould get back the same block.", success)

			if *got.Txs[1].Inputs[0].Nonce != 3 {
				t.Fatalf("\t%s\tTest 1:\tShould keep the input nonce.", failed)
			}
			t.Logf("\t%s\tTest 1:\tShould keep the input nonce.", success)

			got, err = strg.GetBlockByHash(b1.Hash())
			if err != nil || got.Header.Height != 1 {
				t.Fatalf("\t%s\tTest 1:\tShould be able to read by hash: %v", failed, err)
			}
			t.Logf("\t%s\tTest 1:\tShould be able to read by hash.", success)
		}

		t.Logf("\tTest 2:\tWhen a block replaces the main chain at a height.")
		{
			alt := Block(t, b1.Hash(), 2)
			alt.Header.Nonce = 99

			if err := strg.StoreBlock(alt); err != nil {
				t.Fatalf("\t%s\tTest 2:\tShould be able to store the block: %v", failed, err)
			}

			got, err := strg.GetBlockByHeight(2)
			if err != nil || got.Hash() != alt.Hash() {
				t.Fatalf("\t%s\tTest 2:\tShould get the replacement at the height: %v", failed, err)
			}
			t.Logf("\t%s\tTest 2:\tShould get the replacement at the height.", success)

			if _, err := strg.GetBlockByHash(b2.Hash()); err != nil {
				t.Fatalf("\t%s\tTest 2:\tShould still find the replaced block by hash: %v", failed, err)
			}
			t.Logf("\t%s\tTest 2:\tShould still find the replaced block by hash.", success)
		}

		t.Logf("\tTest 3:\tWhen storing the state.")
		{
			for _, state := range [][]byte{[]byte("first"), []byte("second")} {
				if err := strg.StoreState(state); err != nil {
					t.Fatalf("\t%s\tTest 3:\tShould be able to store the state: %v", failed, err)
				}
			}

			data, err := strg.LoadState()
			if err != nil || !bytes.Equal(data, []byte("second")) {
				t.Fatalf("\t%s\tTest 3:\tShould get the latest state, got %q %v.", failed, data, err)
			}
			t.Logf("\t%s\tTest 3:\tShould get the latest state.", success)
		}
	}
}
