// Package storage selects one of the storage backends for the chain.
package storage

import (
	"fmt"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/ardanlabs/utxochain/foundation/blockchain/storage/bolt"
	"github.com/ardanlabs/utxochain/foundation/blockchain/storage/disk"
	"github.com/ardanlabs/utxochain/foundation/blockchain/storage/leveldb"
	"github.com/ardanlabs/utxochain/foundation/blockchain/storage/memory"
)

// Set of backends that can be opened.
const (
	LevelDB = "leveldb"
	Bolt    = "bolt"
	Disk    = "disk"
	Memory  = "memory"
)

// Open constructs the backend of the specified kind at the path. The path is
// ignored for memory storage.
func Open(kind string, path string, evHandler func(v string, args ...any)) (database.Storage, error) {
	if evHandler == nil {
		evHandler = func(v string, args ...any) {}
	}

	switch kind {
	case LevelDB:
		strg, err := leveldb.New(path, evHandler)
		if err != nil {
			return nil, err
		}
		return strg, nil

	case Bolt:
		strg, err := bolt.New(path)
		if err != nil {
			return nil, err
		}
		return strg, nil

	case Disk:
		strg, err := disk.New(path)
		if err != nil {
			return nil, err
		}
		return strg, nil

	case Memory:
		return memory.New(), nil
	}

	return nil, fmt.Errorf("unknown storage %q", kind)
}
