package chain_test

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ardanlabs/utxochain/foundation/blockchain/chain"
	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/ardanlabs/utxochain/foundation/blockchain/difficulty"
	"github.com/ardanlabs/utxochain/foundation/blockchain/genesis"
	"github.com/ardanlabs/utxochain/foundation/blockchain/ledger"
	"github.com/ardanlabs/utxochain/foundation/blockchain/signature"
	"github.com/ardanlabs/utxochain/foundation/blockchain/storage/memory"
	"github.com/ethereum/go-ethereum/crypto"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

const (
	aliceHexKey = "fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959"
	bobHexKey   = "aed31b6b5a5dbd4b7a0ff4d4d8a4f0a3c1b1c5e3e5d7f2c3a1b2c3d4e5f60718"
)

var (
	minerA = database.Fingerprint{0xa}
	minerB = database.Fingerprint{0xb}
)

func noop(v string, args ...any) {}

func key(t *testing.T, hexKey string) *ecdsa.PrivateKey {
	t.Helper()

	pk, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		t.Fatalf("Should be able to load the private key: %v", err)
	}
	return pk
}

func newChain(t *testing.T, strg database.Storage, interval uint64) (*chain.Chain, database.Block) {
	t.Helper()

	gen := genesis.Default()
	gen.Recipient = signature.Fingerprint(&key(t, aliceHexKey).PublicKey)
	gen.CheckpointInterval = interval

	c, err := chain.New(chain.Config{
		Storage:   strg,
		Genesis:   gen,
		EvHandler: noop,
	})
	if err != nil {
		t.Fatalf("Should be able to construct the chain: %v", err)
	}

	blk, err := c.BlockByHeight(1)
	if err != nil {
		t.Fatalf("Should be able to read the genesis block: %v", err)
	}

	return c, blk
}

func mine(t *testing.T, parent database.Block, miner database.Fingerprint, txs ...database.Tx) database.Block {
	t.Helper()

	height := parent.Header.Height + 1
	timestamp := parent.Header.Timestamp + difficulty.TargetBlockTime

	all := append([]database.Tx{database.NewCoinbase(miner, ledger.BlockReward, height, timestamp)}, txs...)

	root, err := database.CalculateMerkleRoot(all)
	if err != nil {
		t.Fatalf("Should be able to calculate the merkle root: %v", err)
	}

	blk := database.Block{
		Header: database.BlockHeader{
			Version:    1,
			PrevHash:   parent.Hash(),
			MerkleRoot: root,
			Timestamp:  timestamp,
			Bits:       difficulty.GenesisBits,
			Height:     height,
		},
		Txs: all,
	}

	blk, err = database.POW(context.Background(), blk, noop)
	if err != nil {
		t.Fatalf("Should be able to mine the block: %v", err)
	}

	return blk
}

func transfer(t *testing.T, pk *ecdsa.PrivateKey, from database.OutPoint, available uint64, amount uint64, to database.Fingerprint) database.Tx {
	t.Helper()

	const fee = 1_000_000

	tx := database.Tx{
		Version: 1,
		Inputs: []database.TxInput{
			{PrevTxHash: from.TxHash, Index: from.Index},
		},
		Outputs: []database.TxOutput{
			{Amount: amount, Recipient: to},
			{Amount: available - amount - fee, Recipient: signature.Fingerprint(&pk.PublicKey)},
		},
		Timestamp: 1,
	}

	signed, err := signature.SignTx(tx, pk)
	if err != nil {
		t.Fatalf("Should be able to sign the transaction: %v", err)
	}

	return signed
}

// =============================================================================

func Test_Genesis(t *testing.T) {
	t.Log("Given the need to start a chain from genesis.")
	{
		strg := memory.New()
		c, gen := newChain(t, strg, 0)
		alice := signature.Fingerprint(&key(t, aliceHexKey).PublicKey)

		t.Logf("\tTest 0:\tWhen the storage is empty.")
		{
			if c.Height() != 1 || c.BestHash() != gen.Hash() {
				t.Fatalf("\t%s\tTest 0:\tShould be at the genesis block.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould be at the genesis block.", success)

			if c.TotalSupply() != ledger.BlockReward || c.Balance(alice) != ledger.BlockReward {
				t.Fatalf("\t%s\tTest 0:\tShould credit the genesis recipient.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould credit the genesis recipient.", success)

			cps := c.Checkpoints()
			if len(cps) != 1 || cps[0].Height != 1 || cps[0].Hash != gen.Hash() {
				t.Fatalf("\t%s\tTest 0:\tShould checkpoint the genesis block, got %v.", failed, cps)
			}
			t.Logf("\t%s\tTest 0:\tShould checkpoint the genesis block.", success)
		}

		t.Logf("\tTest 1:\tWhen the storage holds a chain.")
		{
			b2 := mine(t, gen, minerA)
			if _, err := c.AddBlock(b2); err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould be able to add a block: %v", failed, err)
			}

			restored, err := chain.New(chain.Config{Storage: strg, Genesis: genesis.Default(), EvHandler: noop})
			if err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould be able to restore the chain: %v", failed, err)
			}
			t.Logf("\t%s\tTest 1:\tShould be able to restore the chain.", success)

			if restored.Height() != 2 || restored.BestHash() != b2.Hash() || restored.Balance(minerA) != ledger.BlockReward {
				t.Fatalf("\t%s\tTest 1:\tShould restore the tip and balances.", failed)
			}
			t.Logf("\t%s\tTest 1:\tShould restore the tip and balances.", success)
		}
	}
}

func Test_ExtendMain(t *testing.T) {
	t.Log("Given the need to extend the main chain.")
	{
		c, gen := newChain(t, memory.New(), 0)
		alicePK := key(t, aliceHexKey)
		bob := signature.Fingerprint(&key(t, bobHexKey).PublicKey)

		t.Logf("\tTest 0:\tWhen the block spends the genesis output.")
		{
			tx := transfer(t, alicePK, database.NewOutPoint(gen.Txs[0].Hash(), 0), ledger.BlockReward, 1_000_000_000, bob)

			if err := c.ValidateTransaction(tx); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould validate the transaction: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould validate the transaction.", success)

			b2 := mine(t, gen, minerA, tx)

			outcome, err := c.AddBlock(b2)
			if err != nil || outcome != chain.ExtendsMain {
				t.Fatalf("\t%s\tTest 0:\tShould extend the main chain, got %s %v.", failed, outcome, err)
			}
			t.Logf("\t%s\tTest 0:\tShould extend the main chain.", success)

			if c.Balance(bob) != 1_000_000_000 {
				t.Fatalf("\t%s\tTest 0:\tShould credit bob, got %d.", failed, c.Balance(bob))
			}
			t.Logf("\t%s\tTest 0:\tShould credit bob.", success)

			outcome, err = c.AddBlock(b2)
			if err != nil || outcome != chain.Known {
				t.Fatalf("\t%s\tTest 0:\tShould ignore the block the second time, got %s %v.", failed, outcome, err)
			}
			t.Logf("\t%s\tTest 0:\tShould ignore the block the second time.", success)

			got, err := c.BlockByHash(b2.Hash())
			if err != nil || got.Header.Height != 2 {
				t.Fatalf("\t%s\tTest 0:\tShould find the block by hash: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould find the block by hash.", success)
		}
	}
}

func Test_Fork(t *testing.T) {
	t.Log("Given the need to follow the chain with the most work.")
	{
		c, gen := newChain(t, memory.New(), 0)

		b2a := mine(t, gen, minerA)
		b2b := mine(t, gen, minerB)
		b3b := mine(t, b2b, minerB)

		t.Logf("\tTest 0:\tWhen a competing block arrives at the same height.")
		{
			if outcome, err := c.AddBlock(b2a); err != nil || outcome != chain.ExtendsMain {
				t.Fatalf("\t%s\tTest 0:\tShould extend the main chain, got %s %v.", failed, outcome, err)
			}

			outcome, err := c.AddBlock(b2b)
			if err != nil || outcome != chain.ExtendsFork {
				t.Fatalf("\t%s\tTest 0:\tShould store a side chain, got %s %v.", failed, outcome, err)
			}
			t.Logf("\t%s\tTest 0:\tShould store a side chain.", success)

			if c.BestHash() != b2a.Hash() || c.ForkCount() != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould stay on the first block with equal work.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould stay on the first block with equal work.", success)
		}

		t.Logf("\tTest 1:\tWhen the side chain gets more work.")
		{
			outcome, err := c.AddBlock(b3b)
			if err != nil || outcome != chain.ExtendsFork {
				t.Fatalf("\t%s\tTest 1:\tShould reorganize, got %s %v.", failed, outcome, err)
			}
			t.Logf("\t%s\tTest 1:\tShould reorganize.", success)

			if c.Height() != 3 || c.BestHash() != b3b.Hash() {
				t.Fatalf("\t%s\tTest 1:\tShould move the tip to the side chain.", failed)
			}
			t.Logf("\t%s\tTest 1:\tShould move the tip to the side chain.", success)

			got, err := c.BlockByHeight(2)
			if err != nil || got.Hash() != b2b.Hash() {
				t.Fatalf("\t%s\tTest 1:\tShould have the side chain block at height 2: %v", failed, err)
			}
			t.Logf("\t%s\tTest 1:\tShould have the side chain block at height 2.", success)

			if c.ForkCount() != 1 {
				t.Fatalf("\t%s\tTest 1:\tShould hold only the old main chain block as a fork, got %d.", failed, c.ForkCount())
			}
			if _, err := c.BlockByHash(b2a.Hash()); err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould still find the old block: %v", failed, err)
			}
			t.Logf("\t%s\tTest 1:\tShould move the old main chain block into the fork set.", success)

			if c.Balance(minerA) != 0 || c.Balance(minerB) != 2*ledger.BlockReward {
				t.Fatalf("\t%s\tTest 1:\tShould move the rewards to the new chain.", failed)
			}
			t.Logf("\t%s\tTest 1:\tShould move the rewards to the new chain.", success)
		}
	}
}

func Test_Orphan(t *testing.T) {
	t.Log("Given the need to accept blocks out of order.")
	{
		c, gen := newChain(t, memory.New(), 0)

		b2 := mine(t, gen, minerA)
		b3 := mine(t, b2, minerA)
		b4 := mine(t, b3, minerA)

		t.Logf("\tTest 0:\tWhen the parents arrive after the children.")
		{
			for _, blk := range []database.Block{b4, b3} {
				outcome, err := c.AddBlock(blk)
				if err != nil || outcome != chain.Orphan {
					t.Fatalf("\t%s\tTest 0:\tShould hold blk %d as an orphan, got %s %v.", failed, blk.Header.Height, outcome, err)
				}
			}
			t.Logf("\t%s\tTest 0:\tShould hold the children as orphans.", success)

			if c.OrphanCount() != 2 || c.Height() != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould not change the main chain.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould not change the main chain.", success)

			outcome, err := c.AddBlock(b2)
			if err != nil || outcome != chain.ExtendsMain {
				t.Fatalf("\t%s\tTest 0:\tShould extend the main chain, got %s %v.", failed, outcome, err)
			}

			if c.Height() != 4 || c.BestHash() != b4.Hash() || c.OrphanCount() != 0 {
				t.Fatalf("\t%s\tTest 0:\tShould connect the orphans, height %d orphans %d.", failed, c.Height(), c.OrphanCount())
			}
			t.Logf("\t%s\tTest 0:\tShould connect the orphans.", success)
		}
	}
}

func Test_Checkpoint(t *testing.T) {
	t.Log("Given the need to protect checkpointed blocks.")
	{
		t.Logf("\tTest 0:\tWhen an alternate genesis block is presented.")
		{
			c, _ := newChain(t, memory.New(), 0)

			g := genesis.Default()
			g.Recipient = minerB
			alt, err := g.Block()
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to build the block: %v", failed, err)
			}

			before := c.BestHash()

			if _, err := c.AddBlock(alt); !errors.Is(err, chain.ErrCheckpointMismatch) {
				t.Fatalf("\t%s\tTest 0:\tShould reject the block, got %v.", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould reject the block.", success)

			if c.BestHash() != before || c.OrphanCount() != 0 || c.ForkCount() != 0 {
				t.Fatalf("\t%s\tTest 0:\tShould not change any state.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould not change any state.", success)
		}

		t.Logf("\tTest 1:\tWhen a reorganization would undo a checkpoint.")
		{
			c, gen := newChain(t, memory.New(), 0)

			b2a := mine(t, gen, minerA)
			b2b := mine(t, gen, minerB)
			b3b := mine(t, b2b, minerB)

			if _, err := c.AddBlock(b2a); err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould be able to add the block: %v", failed, err)
			}
			if _, err := c.AddBlock(b2b); err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould be able to add the fork block: %v", failed, err)
			}

			if err := c.AddCheckpoint(2); err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould be able to add the checkpoint: %v", failed, err)
			}
			if err := c.AddCheckpoint(2); err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould be able to add the checkpoint twice: %v", failed, err)
			}
			t.Logf("\t%s\tTest 1:\tShould be able to add the checkpoint.", success)

			if _, err := c.AddBlock(b3b); !errors.Is(err, chain.ErrCheckpointViolation) {
				t.Fatalf("\t%s\tTest 1:\tShould reject the reorganization, got %v.", failed, err)
			}
			t.Logf("\t%s\tTest 1:\tShould reject the reorganization.", success)

			if c.Height() != 2 || c.BestHash() != b2a.Hash() || c.Balance(minerA) != ledger.BlockReward {
				t.Fatalf("\t%s\tTest 1:\tShould keep the checkpointed chain.", failed)
			}
			t.Logf("\t%s\tTest 1:\tShould keep the checkpointed chain.", success)

			if _, err := c.AddBlock(mine(t, gen, database.Fingerprint{0xc})); !errors.Is(err, chain.ErrCheckpointMismatch) {
				t.Fatalf("\t%s\tTest 1:\tShould reject new blocks at the checkpoint height, got %v.", failed, err)
			}
			t.Logf("\t%s\tTest 1:\tShould reject new blocks at the checkpoint height.", success)
		}

		t.Logf("\tTest 2:\tWhen automatic checkpoints are enabled.")
		{
			c, gen := newChain(t, memory.New(), 2)

			b2 := mine(t, gen, minerA)
			b3 := mine(t, b2, minerA)
			for _, blk := range []database.Block{b2, b3} {
				if _, err := c.AddBlock(blk); err != nil {
					t.Fatalf("\t%s\tTest 2:\tShould be able to add the block: %v", failed, err)
				}
			}

			cps := c.Checkpoints()
			if len(cps) != 2 || cps[1].Height != 2 || cps[1].Hash != b2.Hash() {
				t.Fatalf("\t%s\tTest 2:\tShould checkpoint every second block, got %v.", failed, cps)
			}
			t.Logf("\t%s\tTest 2:\tShould checkpoint every second block.", success)
		}

		t.Logf("\tTest 3:\tWhen the node restarts after an automatic checkpoint.")
		{
			strg := memory.New()
			c, gen := newChain(t, strg, 2)

			b2 := mine(t, gen, minerA)
			if _, err := c.AddBlock(b2); err != nil {
				t.Fatalf("\t%s\tTest 3:\tShould be able to add the block: %v", failed, err)
			}

			restarted, _ := newChain(t, strg, 2)

			cps := restarted.Checkpoints()
			if len(cps) != 2 || cps[1].Height != 2 || cps[1].Hash != b2.Hash() {
				t.Fatalf("\t%s\tTest 3:\tShould restore the checkpoint of the tip, got %v.", failed, cps)
			}
			t.Logf("\t%s\tTest 3:\tShould restore the checkpoint of the tip.", success)

			if _, err := restarted.AddBlock(mine(t, gen, minerB)); !errors.Is(err, chain.ErrCheckpointMismatch) {
				t.Fatalf("\t%s\tTest 3:\tShould reject a competing block at the checkpoint, got %v.", failed, err)
			}
			t.Logf("\t%s\tTest 3:\tShould reject a competing block at the checkpoint.", success)
		}

		t.Logf("\tTest 4:\tWhen the node restarts after a reorganization reached a checkpoint.")
		{
			strg := memory.New()
			c, gen := newChain(t, strg, 3)

			b2a := mine(t, gen, minerA)
			b2b := mine(t, gen, minerB)
			b3b := mine(t, b2b, minerB)
			for _, blk := range []database.Block{b2a, b2b, b3b} {
				if _, err := c.AddBlock(blk); err != nil {
					t.Fatalf("\t%s\tTest 4:\tShould be able to add the block: %v", failed, err)
				}
			}

			if c.BestHash() != b3b.Hash() {
				t.Fatalf("\t%s\tTest 4:\tShould reorganize to the side chain.", failed)
			}

			restarted, _ := newChain(t, strg, 3)

			cps := restarted.Checkpoints()
			if len(cps) != 2 || cps[1].Height != 3 || cps[1].Hash != b3b.Hash() {
				t.Fatalf("\t%s\tTest 4:\tShould restore the checkpoint taken by the reorganization, got %v.", failed, cps)
			}
			t.Logf("\t%s\tTest 4:\tShould restore the checkpoint taken by the reorganization.", success)
		}
	}
}

func Test_ReorgFailure(t *testing.T) {
	t.Log("Given the need to never leave a partial reorganization behind.")
	{
		t.Logf("\tTest 0:\tWhen a side chain block can't be applied.")
		{
			strg := memory.New()
			c, gen := newChain(t, strg, 0)
			alicePK := key(t, aliceHexKey)

			b2a := mine(t, gen, minerA)
			b2b := mine(t, gen, minerB)

			// The side chain spends an output that never existed.
			missing := database.NewOutPoint(database.HashBytes([]byte("missing")), 0)
			b3b := mine(t, b2b, minerB, transfer(t, alicePK, missing, ledger.BlockReward, 10, minerB))

			for _, blk := range []database.Block{b2a, b2b} {
				if _, err := c.AddBlock(blk); err != nil {
					t.Fatalf("\t%s\tTest 0:\tShould be able to add the block: %v", failed, err)
				}
			}

			if _, err := c.AddBlock(b3b); !errors.Is(err, ledger.ErrUTXONotFound) {
				t.Fatalf("\t%s\tTest 0:\tShould reject the reorganization, got %v.", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould reject the reorganization.", success)

			if c.Height() != 2 || c.BestHash() != b2a.Hash() {
				t.Fatalf("\t%s\tTest 0:\tShould keep the main chain tip, height %d.", failed, c.Height())
			}
			t.Logf("\t%s\tTest 0:\tShould keep the main chain tip.", success)

			if c.Balance(minerA) != ledger.BlockReward || c.Balance(minerB) != 0 {
				t.Fatalf("\t%s\tTest 0:\tShould keep the main chain balances.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould keep the main chain balances.", success)

			got, err := c.BlockByHeight(2)
			if err != nil || got.Hash() != b2a.Hash() {
				t.Fatalf("\t%s\tTest 0:\tShould keep the main chain block at height 2: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould keep the main chain block at height 2.", success)

			restarted, _ := newChain(t, strg, 0)

			got, err = restarted.BlockByHeight(2)
			if restarted.Height() != 2 || restarted.BestHash() != b2a.Hash() || err != nil || got.Hash() != b2a.Hash() {
				t.Fatalf("\t%s\tTest 0:\tShould store the main chain: %v", failed, err)
			}
			if restarted.Balance(minerA) != ledger.BlockReward || restarted.Balance(minerB) != 0 {
				t.Fatalf("\t%s\tTest 0:\tShould store the main chain balances.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould store the main chain.", success)
		}
	}
}

func Test_InvalidBlocks(t *testing.T) {
	t.Log("Given the need to reject invalid blocks.")
	{
		c, gen := newChain(t, memory.New(), 0)
		bobPK := key(t, bobHexKey)

		t.Logf("\tTest 0:\tWhen the input is signed by a key that doesn't own it.")
		{
			tx := transfer(t, bobPK, database.NewOutPoint(gen.Txs[0].Hash(), 0), ledger.BlockReward, 10, minerA)

			if err := c.ValidateTransaction(tx); !errors.Is(err, chain.ErrOwnership) {
				t.Fatalf("\t%s\tTest 0:\tShould reject the transaction, got %v.", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould reject the transaction.", success)

			if _, err := c.AddBlock(mine(t, gen, minerA, tx)); !errors.Is(err, chain.ErrOwnership) {
				t.Fatalf("\t%s\tTest 0:\tShould reject the block, got %v.", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould reject the block.", success)

			if c.Height() != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould not change the chain.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould not change the chain.", success)
		}

		t.Logf("\tTest 1:\tWhen the proof of work doesn't meet the target.")
		{
			blk := mine(t, gen, minerA)
			blk.Header.Bits = difficulty.HardestBits

			if _, err := c.AddBlock(blk); !errors.Is(err, chain.ErrInvalidProofOfWork) {
				t.Fatalf("\t%s\tTest 1:\tShould reject the block, got %v.", failed, err)
			}
			t.Logf("\t%s\tTest 1:\tShould reject the block.", success)
		}
	}
}

func Test_Mining(t *testing.T) {
	t.Log("Given the need to mine from a template.")
	{
		c, gen := newChain(t, memory.New(), 0)
		alicePK := key(t, aliceHexKey)
		bobPK := key(t, bobHexKey)
		bob := signature.Fingerprint(&bobPK.PublicKey)

		good := transfer(t, alicePK, database.NewOutPoint(gen.Txs[0].Hash(), 0), ledger.BlockReward, 1000, bob)
		bad := transfer(t, bobPK, database.NewOutPoint(gen.Txs[0].Hash(), 0), ledger.BlockReward, 1000, bob)

		t.Logf("\tTest 0:\tWhen the tip doesn't change while mining.")
		{
			tmpl, err := c.Template(minerA, []database.Tx{good, bad})
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to build the template: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to build the template.", success)

			if len(tmpl.Block.Txs) != 2 || len(tmpl.Dropped) != 1 || tmpl.Dropped[0] != bad.Hash() {
				t.Fatalf("\t%s\tTest 0:\tShould include only the valid transaction.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould include only the valid transaction.", success)

			blk, err := database.POW(context.Background(), tmpl.Block, noop)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to mine the block: %v", failed, err)
			}

			if err := c.CommitMined(blk, tmpl.Height, tmpl.BestHash); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to commit the block: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to commit the block.", success)

			if c.Height() != 2 || c.Balance(bob) != 1000 {
				t.Fatalf("\t%s\tTest 0:\tShould apply the mined block.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould apply the mined block.", success)
		}

		t.Logf("\tTest 1:\tWhen the tip changes while mining.")
		{
			tmpl, err := c.Template(minerA, nil)
			if err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould be able to build the template: %v", failed, err)
			}

			tip, _ := c.BlockByHeight(c.Height())
			if _, err := c.AddBlock(mine(t, tip, minerB)); err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould be able to add a network block: %v", failed, err)
			}

			blk, err := database.POW(context.Background(), tmpl.Block, noop)
			if err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould be able to mine the block: %v", failed, err)
			}

			if err := c.CommitMined(blk, tmpl.Height, tmpl.BestHash); !errors.Is(err, chain.ErrStaleTip) {
				t.Fatalf("\t%s\tTest 1:\tShould get a stale tip error, got %v.", failed, err)
			}
			t.Logf("\t%s\tTest 1:\tShould get a stale tip error.", success)

			if c.Height() != 3 || c.Balance(minerB) != ledger.BlockReward {
				t.Fatalf("\t%s\tTest 1:\tShould keep the network block.", failed)
			}
			t.Logf("\t%s\tTest 1:\tShould keep the network block.", success)
		}
	}
}

// failingStorage fails to store the state once fail is set.
type failingStorage struct {
	*memory.Memory
	fail bool
}

func (f *failingStorage) StoreState(data []byte) error {
	if f.fail {
		return errors.New("disk full")
	}
	return f.Memory.StoreState(data)
}

func Test_StorageFailure(t *testing.T) {
	t.Log("Given the need to keep memory and storage in agreement.")
	{
		t.Logf("\tTest 0:\tWhen the state can't be stored.")
		{
			strg := failingStorage{Memory: memory.New()}
			c, gen := newChain(t, &strg, 0)

			strg.fail = true

			if _, err := c.AddBlock(mine(t, gen, minerA)); err == nil {
				t.Fatalf("\t%s\tTest 0:\tShould get the storage error.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould get the storage error.", success)

			if c.Height() != 1 || c.BestHash() != gen.Hash() || c.Balance(minerA) != 0 {
				t.Fatalf("\t%s\tTest 0:\tShould roll back the block.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould roll back the block.", success)
		}
	}
}

func Test_LoadCheckpointFile(t *testing.T) {
	hash := database.HashBytes([]byte("block"))
	path := filepath.Join(t.TempDir(), "checkpoints.txt")

	content := "# trusted blocks\n\n10:" + hash.String() + "\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("Should be able to write the file: %v", err)
	}

	cps, err := chain.LoadCheckpointFile(path)
	if err != nil {
		t.Fatalf("Should be able to load the file: %v", err)
	}

	if len(cps) != 1 || cps[10] != hash {
		t.Fatalf("Should get the checkpoint, got %v", cps)
	}

	if err := os.WriteFile(path, []byte("abc\n"), 0600); err != nil {
		t.Fatalf("Should be able to write the file: %v", err)
	}

	if _, err := chain.LoadCheckpointFile(path); err == nil {
		t.Fatalf("Should reject a malformed line")
	}

	cps, err = chain.LoadCheckpointFile(filepath.Join(t.TempDir(), "missing"))
	if err != nil || len(cps) != 0 {
		t.Fatalf("Should get no checkpoints for a missing file: %v", err)
	}
}
