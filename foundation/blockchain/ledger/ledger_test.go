package ledger_test

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/ardanlabs/utxochain/foundation/blockchain/difficulty"
	"github.com/ardanlabs/utxochain/foundation/blockchain/ledger"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

var (
	alice = database.Fingerprint{1}
	bob   = database.Fingerprint{2}
	miner = database.Fingerprint{9}
)

func newBlock(t *testing.T, prevHash database.Hash, height uint64, txs ...database.Tx) database.Block {
	t.Helper()

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
			Height:     height,
		},
		Txs: txs,
	}
}

func genesis(t *testing.T, l *ledger.Ledger) database.Block {
	t.Helper()

	blk := newBlock(t, database.ZeroHash, 1, database.NewCoinbase(alice, ledger.BlockReward, 1, 0))
	if err := l.ApplyBlock(blk); err != nil {
		t.Fatalf("Should be able to apply the genesis block: %v", err)
	}

	return blk
}

func transfer(from database.OutPoint, fee uint64, amount uint64, nonce *uint64) database.Tx {
	return database.Tx{
		Version: 1,
		Inputs: []database.TxInput{
			{PrevTxHash: from.TxHash, Index: from.Index, Nonce: nonce},
		},
		Outputs: []database.TxOutput{
			{Amount: amount, Recipient: bob},
			{Amount: ledger.BlockReward - amount - fee, Recipient: alice},
		},
		Timestamp: 1,
	}
}

func ptr(v uint64) *uint64 {
	return &v
}

// =============================================================================

func Test_Genesis(t *testing.T) {
	t.Log("Given the need to apply the genesis block.")
	{
		t.Logf("\tTest 0:\tWhen applying a coinbase of the block reward at height 1.")
		{
			l := ledger.New()
			blk := genesis(t, l)

			if l.Height() != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould be at height 1, got %d.", failed, l.Height())
			}
			t.Logf("\t%s\tTest 0:\tShould be at height 1.", success)

			if l.TotalSupply() != 5_000_000_000 {
				t.Fatalf("\t%s\tTest 0:\tShould have a supply of 5,000,000,000, got %d.", failed, l.TotalSupply())
			}
			t.Logf("\t%s\tTest 0:\tShould have a supply of 5,000,000,000.", success)

			if l.Balance(alice) != 5_000_000_000 {
				t.Fatalf("\t%s\tTest 0:\tShould credit the recipient, got %d.", failed, l.Balance(alice))
			}
			t.Logf("\t%s\tTest 0:\tShould credit the recipient.", success)

			if l.BestHash() != blk.Hash() {
				t.Fatalf("\t%s\tTest 0:\tShould point at the genesis hash.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould point at the genesis hash.", success)

			if !l.HasUTXO(database.NewOutPoint(blk.Txs[0].Hash(), 0)) || l.UTXOCount() != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould hold the coinbase output.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould hold the coinbase output.", success)
		}
	}
}

func Test_Transfer(t *testing.T) {
	t.Log("Given the need to move value between fingerprints.")
	{
		l := ledger.New()
		gen := genesis(t, l)
		from := database.NewOutPoint(gen.Txs[0].Hash(), 0)

		t.Logf("\tTest 0:\tWhen the fee is below the minimum for the size.")
		{
			tx := transfer(from, 1000, 1_000_000_000, nil)
			blk := newBlock(t, gen.Hash(), 2, database.NewCoinbase(miner, ledger.BlockReward, 2, 600), tx)

			err := l.ApplyBlock(blk)

			var feeErr *ledger.InsufficientFeeError
			if !errors.As(err, &feeErr) {
				t.Fatalf("\t%s\tTest 0:\tShould get an insufficient fee error, got %v.", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould get an insufficient fee error.", success)

			if feeErr.Provided != 1000 || feeErr.Required != uint64(tx.Size())*ledger.MinFeePerByte {
				t.Fatalf("\t%s\tTest 0:\tShould report the fees, got %+v.", failed, feeErr)
			}
			t.Logf("\t%s\tTest 0:\tShould report the fees.", success)

			if l.Height() != 1 || l.Balance(alice) != ledger.BlockReward || l.TotalSupply() != ledger.BlockReward {
				t.Fatalf("\t%s\tTest 0:\tShould leave the ledger untouched.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould leave the ledger untouched.", success)
		}

		t.Logf("\tTest 1:\tWhen the fee covers the size.")
		{
			tx := transfer(from, 1_000_000, 1_000_000_000, nil)
			blk := newBlock(t, gen.Hash(), 2, database.NewCoinbase(miner, ledger.BlockReward, 2, 600), tx)

			fee, err := l.CalculateTransactionFee(tx)
			if err != nil || fee != 1_000_000 {
				t.Fatalf("\t%s\tTest 1:\tShould calculate the fee, got %d %v.", failed, fee, err)
			}
			t.Logf("\t%s\tTest 1:\tShould calculate the fee.", success)

			if err := l.ApplyBlock(blk); err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould be able to apply the block: %v", failed, err)
			}
			t.Logf("\t%s\tTest 1:\tShould be able to apply the block.", success)

			if l.Balance(bob) != 1_000_000_000 {
				t.Fatalf("\t%s\tTest 1:\tShould credit bob, got %d.", failed, l.Balance(bob))
			}
			t.Logf("\t%s\tTest 1:\tShould credit bob.", success)

			if exp := uint64(ledger.BlockReward - 1_000_000_000 - 1_000_000); l.Balance(alice) != exp {
				t.Fatalf("\t%s\tTest 1:\tShould return the change to alice, got %d exp %d.", failed, l.Balance(alice), exp)
			}
			t.Logf("\t%s\tTest 1:\tShould return the change to alice.", success)

			if l.HasUTXO(from) {
				t.Fatalf("\t%s\tTest 1:\tShould consume the spent output.", failed)
			}
			t.Logf("\t%s\tTest 1:\tShould consume the spent output.", success)

			if l.TotalSupply() != 2*ledger.BlockReward {
				t.Fatalf("\t%s\tTest 1:\tShould add the coinbase to the supply, got %d.", failed, l.TotalSupply())
			}
			t.Logf("\t%s\tTest 1:\tShould add the coinbase to the supply.", success)

			if got := l.UTXOsByFingerprint(alice); len(got) != 1 || got[0].OutPoint != database.NewOutPoint(tx.Hash(), 1) {
				t.Fatalf("\t%s\tTest 1:\tShould list the change output for alice, got %v.", failed, got)
			}
			t.Logf("\t%s\tTest 1:\tShould list the change output for alice.", success)
		}
	}
}

func Test_Rollback(t *testing.T) {
	t.Log("Given the need to roll back an applied block.")
	{
		t.Logf("\tTest 0:\tWhen rolling back a block with a transfer.")
		{
			l := ledger.New()
			gen := genesis(t, l)
			before := l.Snapshot()

			tx := transfer(database.NewOutPoint(gen.Txs[0].Hash(), 0), 1_000_000, 1_000_000_000, ptr(0))
			blk := newBlock(t, gen.Hash(), 2, database.NewCoinbase(miner, ledger.BlockReward, 2, 600), tx)

			if err := l.ApplyBlock(blk); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to apply the block: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to apply the block.", success)

			if l.Nonce(alice) != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould increment the nonce, got %d.", failed, l.Nonce(alice))
			}
			t.Logf("\t%s\tTest 0:\tShould increment the nonce.", success)

			if err := l.RollbackBlock(blk); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to roll back the block: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to roll back the block.", success)

			if after := l.Snapshot(); !reflect.DeepEqual(before, after) {
				t.Logf("\t\tTest 0:\tgot: %+v", after)
				t.Logf("\t\tTest 0:\texp: %+v", before)
				t.Fatalf("\t%s\tTest 0:\tShould restore the exact state.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould restore the exact state.", success)
		}

		t.Logf("\tTest 1:\tWhen a block spends an output it created.")
		{
			l := ledger.New()
			gen := genesis(t, l)
			before := l.Snapshot()

			tx1 := transfer(database.NewOutPoint(gen.Txs[0].Hash(), 0), 1_000_000, 1_000_000_000, nil)
			tx2 := database.Tx{
				Version: 1,
				Inputs: []database.TxInput{
					{PrevTxHash: tx1.Hash(), Index: 0},
				},
				Outputs: []database.TxOutput{
					{Amount: 1_000_000_000 - 1_000_000, Recipient: alice},
				},
			}
			blk := newBlock(t, gen.Hash(), 2, database.NewCoinbase(miner, ledger.BlockReward, 2, 600), tx1, tx2)

			if err := l.ApplyBlock(blk); err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould be able to apply the block: %v", failed, err)
			}
			t.Logf("\t%s\tTest 1:\tShould be able to apply the block.", success)

			if err := l.RollbackBlock(blk); err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould be able to roll back the block: %v", failed, err)
			}
			t.Logf("\t%s\tTest 1:\tShould be able to roll back the block.", success)

			if after := l.Snapshot(); !reflect.DeepEqual(before, after) {
				t.Fatalf("\t%s\tTest 1:\tShould not leave the intermediate output behind.", failed)
			}
			t.Logf("\t%s\tTest 1:\tShould not leave the intermediate output behind.", success)
		}

		t.Logf("\tTest 2:\tWhen rolling back at the wrong height.")
		{
			l := ledger.New()
			gen := genesis(t, l)

			blk := newBlock(t, gen.Hash(), 2, database.NewCoinbase(miner, ledger.BlockReward, 2, 600))

			var heightErr *ledger.InvalidBlockHeightError
			if err := l.RollbackBlock(blk); !errors.As(err, &heightErr) {
				t.Fatalf("\t%s\tTest 2:\tShould get an invalid height error, got %v.", failed, err)
			}
			t.Logf("\t%s\tTest 2:\tShould get an invalid height error.", success)
		}
	}
}

func Test_Nonce(t *testing.T) {
	t.Log("Given the need to protect spends with nonces.")
	{
		l := ledger.New()
		gen := genesis(t, l)

		tx := transfer(database.NewOutPoint(gen.Txs[0].Hash(), 0), 1_000_000, 1_000_000_000, ptr(0))
		blk2 := newBlock(t, gen.Hash(), 2, database.NewCoinbase(miner, ledger.BlockReward, 2, 600), tx)
		if err := l.ApplyBlock(blk2); err != nil {
			t.Fatalf("Should be able to apply the block: %v", err)
		}

		change := database.NewOutPoint(tx.Hash(), 1)
		spend := func(nonce uint64) database.Tx {
			return database.Tx{
				Version: 1,
				Inputs: []database.TxInput{
					{PrevTxHash: change.TxHash, Index: change.Index, Nonce: ptr(nonce)},
				},
				Outputs: []database.TxOutput{
					{Amount: 1_000, Recipient: bob},
				},
			}
		}

		t.Logf("\tTest 0:\tWhen the nonce was already used.")
		{
			blk := newBlock(t, blk2.Hash(), 3, database.NewCoinbase(miner, ledger.BlockReward, 3, 900), spend(0))

			var nonceErr *ledger.InvalidNonceError
			if err := l.ApplyBlock(blk); !errors.As(err, &nonceErr) {
				t.Fatalf("\t%s\tTest 0:\tShould get an invalid nonce error, got %v.", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould get an invalid nonce error.", success)

			if nonceErr.Expected != 1 || nonceErr.Got != 0 {
				t.Fatalf("\t%s\tTest 0:\tShould report expected 1 got 0, got %+v.", failed, nonceErr)
			}
			t.Logf("\t%s\tTest 0:\tShould report expected 1 got 0.", success)

			if !l.HasUTXO(change) || l.Height() != 2 {
				t.Fatalf("\t%s\tTest 0:\tShould leave the ledger untouched.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould leave the ledger untouched.", success)
		}

		t.Logf("\tTest 1:\tWhen the nonce is the next one.")
		{
			blk := newBlock(t, blk2.Hash(), 3, database.NewCoinbase(miner, ledger.BlockReward, 3, 900), spend(1))

			if err := l.ApplyBlock(blk); err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould be able to apply the block: %v", failed, err)
			}
			t.Logf("\t%s\tTest 1:\tShould be able to apply the block.", success)

			if l.Nonce(alice) != 2 {
				t.Fatalf("\t%s\tTest 1:\tShould be at nonce 2, got %d.", failed, l.Nonce(alice))
			}
			t.Logf("\t%s\tTest 1:\tShould be at nonce 2.", success)
		}
	}
}

func Test_ApplyErrors(t *testing.T) {
	l := ledger.New()
	gen := genesis(t, l)
	from := database.NewOutPoint(gen.Txs[0].Hash(), 0)
	coinbase := database.NewCoinbase(miner, ledger.BlockReward, 2, 600)

	fixed := database.Tx{Version: 1, Outputs: []database.TxOutput{{Amount: 10, Recipient: miner}}}
	dupGen := ledger.New()
	if err := dupGen.ApplyBlock(newBlock(t, database.ZeroHash, 1, fixed)); err != nil {
		t.Fatalf("Should be able to apply the genesis block: %v", err)
	}

	overflow := database.Tx{
		Version: 1,
		Inputs:  []database.TxInput{{PrevTxHash: from.TxHash, Index: from.Index}},
		Outputs: []database.TxOutput{
			{Amount: math.MaxUint64, Recipient: bob},
			{Amount: math.MaxUint64, Recipient: bob},
		},
	}

	overspend := database.Tx{
		Version: 1,
		Inputs:  []database.TxInput{{PrevTxHash: from.TxHash, Index: from.Index}},
		Outputs: []database.TxOutput{{Amount: ledger.BlockReward + 1, Recipient: bob}},
	}

	missing := database.Tx{
		Version: 1,
		Inputs:  []database.TxInput{{PrevTxHash: database.HashBytes([]byte("nope"))}},
		Outputs: []database.TxOutput{{Amount: 1, Recipient: bob}},
	}

	tt := []struct {
		name   string
		ledger *ledger.Ledger
		block  database.Block
		check  func(err error) bool
	}{
		{
			name:   "height",
			ledger: l,
			block:  newBlock(t, gen.Hash(), 5, coinbase),
			check: func(err error) bool {
				var e *ledger.InvalidBlockHeightError
				return errors.As(err, &e) && e.Expected == 2 && e.Got == 5
			},
		},
		{
			name:   "prevhash",
			ledger: l,
			block:  newBlock(t, database.HashBytes([]byte("other")), 2, coinbase),
			check:  func(err error) bool { return errors.Is(err, ledger.ErrInvalidPreviousHash) },
		},
		{
			name:   "coinbase",
			ledger: l,
			block:  newBlock(t, gen.Hash(), 2, database.NewCoinbase(miner, ledger.BlockReward+1, 2, 600)),
			check: func(err error) bool {
				var e *ledger.InvalidCoinbaseError
				return errors.As(err, &e)
			},
		},
		{
			name:   "notfound",
			ledger: l,
			block:  newBlock(t, gen.Hash(), 2, coinbase, missing),
			check:  func(err error) bool { return errors.Is(err, ledger.ErrUTXONotFound) },
		},
		{
			name:   "overflow",
			ledger: l,
			block:  newBlock(t, gen.Hash(), 2, coinbase, overflow),
			check:  func(err error) bool { return errors.Is(err, ledger.ErrArithmeticOverflow) },
		},
		{
			name:   "inputs",
			ledger: l,
			block:  newBlock(t, gen.Hash(), 2, coinbase, overspend),
			check: func(err error) bool {
				var e *ledger.InsufficientInputsError
				return errors.As(err, &e)
			},
		},
		{
			name:   "duplicate",
			ledger: dupGen,
			block:  newBlock(t, dupGen.BestHash(), 2, fixed),
			check:  func(err error) bool { return errors.Is(err, ledger.ErrDuplicateUTXO) },
		},
		{
			name:   "secondcoinbase",
			ledger: l,
			block:  newBlock(t, gen.Hash(), 2, coinbase, database.NewCoinbase(miner, 1, 2, 601)),
			check: func(err error) bool {
				var e *ledger.InvalidTransactionError
				return errors.As(err, &e)
			},
		},
	}

	t.Log("Given the need to reject invalid blocks.")
	{
		for testID, test := range tt {
			tf := func(t *testing.T) {
				t.Logf("\tTest %d:\tWhen handling a %s failure.", testID, test.name)
				{
					before := test.ledger.Snapshot()

					err := test.ledger.ApplyBlock(test.block)
					if !test.check(err) {
						t.Fatalf("\t%s\tTest %d:\tShould get the expected error, got %v.", failed, testID, err)
					}
					t.Logf("\t%s\tTest %d:\tShould get the expected error.", success, testID)

					if !reflect.DeepEqual(before, test.ledger.Snapshot()) {
						t.Fatalf("\t%s\tTest %d:\tShould leave the ledger untouched.", failed, testID)
					}
					t.Logf("\t%s\tTest %d:\tShould leave the ledger untouched.", success, testID)
				}
			}

			t.Run(test.name, tf)
		}
	}
}

func Test_Snapshot(t *testing.T) {
	t.Log("Given the need to persist the ledger.")
	{
		t.Logf("\tTest 0:\tWhen restoring from an encoded snapshot.")
		{
			l := ledger.New()
			gen := genesis(t, l)

			tx := transfer(database.NewOutPoint(gen.Txs[0].Hash(), 0), 1_000_000, 1_000_000_000, ptr(0))
			blk := newBlock(t, gen.Hash(), 2, database.NewCoinbase(miner, ledger.BlockReward, 2, 600), tx)
			if err := l.ApplyBlock(blk); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to apply the block: %v", failed, err)
			}

			data, err := database.Encode(l.Snapshot())
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to encode the snapshot: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to encode the snapshot.", success)

			var s ledger.Snapshot
			if err := database.Decode(data, &s); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to decode the snapshot: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to decode the snapshot.", success)

			restored := ledger.FromSnapshot(s)
			if restored.Height() != 2 || restored.Balance(bob) != 1_000_000_000 || restored.Nonce(alice) != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould restore the state.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould restore the state.", success)

			if err := restored.RollbackBlock(blk); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to roll back with the restored journal: %v", failed, err)
			}

			if restored.Balance(alice) != ledger.BlockReward || restored.Nonce(alice) != 0 {
				t.Fatalf("\t%s\tTest 0:\tShould roll back with the restored journal.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould roll back with the restored journal.", success)

			clone := l.Clone()
			if err := clone.RollbackBlock(blk); err != nil || l.Height() != 2 {
				t.Fatalf("\t%s\tTest 0:\tShould not share state with a clone.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould not share state with a clone.", success)
		}
	}
}
