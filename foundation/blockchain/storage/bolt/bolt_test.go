package bolt_test

import (
	"testing"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/ardanlabs/utxochain/foundation/blockchain/storage/bolt"
	"github.com/ardanlabs/utxochain/foundation/blockchain/storage/storagetest"
)

func Test_Bolt(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) database.Storage {
		b, err := bolt.New(t.TempDir())
		if err != nil {
			t.Fatalf("Should be able to open the storage: %v", err)
		}
		return b
	})
}
