package chain

import (
	"errors"
	"testing"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/ardanlabs/utxochain/foundation/blockchain/genesis"
	"github.com/ardanlabs/utxochain/foundation/blockchain/storage/memory"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

// sideBlock builds a header only block on top of the parent. The walk over
// the side chain never looks at proof of work or transactions.
func sideBlock(prev database.Hash, height uint64, nonce uint64) database.Block {
	return database.Block{
		Header: database.BlockHeader{
			Version:  1,
			PrevHash: prev,
			Height:   height,
			Nonce:    nonce,
		},
	}
}

func Test_ReorgPath(t *testing.T) {
	t.Log("Given the need to bound the walk back to the main chain.")
	{
		c, err := New(Config{
			Storage: memory.New(),
			Genesis: genesis.Default(),
		})
		if err != nil {
			t.Fatalf("Should be able to construct the chain: %v", err)
		}
		gen := c.BestHash()

		t.Logf("\tTest 0:\tWhen the side chain is %d blocks deep.", MaxForkDepth)
		{
			c.forks = make(map[database.Hash]database.Block)

			prev := gen
			var tip database.Block
			for i := range uint64(MaxForkDepth) {
				tip = sideBlock(prev, genesis.Height+1+i, 1)
				c.forks[tip.Hash()] = tip
				prev = tip.Hash()
			}

			undo, apply, err := c.reorgPath(tip)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to walk the side chain: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to walk the side chain.", success)

			if len(undo) != 0 || len(apply) != MaxForkDepth || apply[0].Header.PrevHash != gen {
				t.Fatalf("\t%s\tTest 0:\tShould apply the side chain from the genesis block, undo %d apply %d.", failed, len(undo), len(apply))
			}
			t.Logf("\t%s\tTest 0:\tShould apply the side chain from the genesis block.", success)
		}

		t.Logf("\tTest 1:\tWhen the side chain is deeper than %d blocks.", MaxForkDepth)
		{
			c.forks = make(map[database.Hash]database.Block)

			prev := gen
			var tip database.Block
			for i := range uint64(MaxForkDepth + 1) {
				tip = sideBlock(prev, genesis.Height+1+i, 2)
				c.forks[tip.Hash()] = tip
				prev = tip.Hash()
			}

			if _, _, err := c.reorgPath(tip); !errors.Is(err, ErrForkTooDeep) {
				t.Fatalf("\t%s\tTest 1:\tShould reject the side chain, got %v.", failed, err)
			}
			t.Logf("\t%s\tTest 1:\tShould reject the side chain.", success)
		}

		t.Logf("\tTest 2:\tWhen a side chain block is missing.")
		{
			c.forks = make(map[database.Hash]database.Block)

			mid := sideBlock(database.HashBytes([]byte("missing")), 3, 3)
			tip := sideBlock(mid.Hash(), 4, 3)
			c.forks[mid.Hash()] = mid
			c.forks[tip.Hash()] = tip

			if _, _, err := c.reorgPath(tip); !errors.Is(err, ErrIncompleteFork) {
				t.Fatalf("\t%s\tTest 2:\tShould reject the side chain, got %v.", failed, err)
			}
			t.Logf("\t%s\tTest 2:\tShould reject the side chain.", success)

			if c.Height() != genesis.Height || c.BestHash() != gen {
				t.Fatalf("\t%s\tTest 2:\tShould not change the main chain.", failed)
			}
			t.Logf("\t%s\tTest 2:\tShould not change the main chain.", success)
		}
	}
}
