// Package nameservice reads the zblock/accounts folder and creates a name
// service lookup for the fingerprints of the known keys.
package nameservice

import (
	"fmt"
	"io/fs"
	"maps"
	"path"
	"path/filepath"
	"strings"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/ardanlabs/utxochain/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/crypto"
)

// NameService maintains a map of fingerprints for name lookup.
type NameService struct {
	accounts map[database.Fingerprint]string
}

// New constructs a name service with the keys from the zblock/accounts folder.
func New(root string) (*NameService, error) {
	ns := NameService{
		accounts: make(map[database.Fingerprint]string),
	}

	fn := func(fileName string, info fs.FileInfo, err error) error {
		if err != nil {
			return fmt.Errorf("walkdir failure: %w", err)
		}

		if path.Ext(fileName) != ".ecdsa" {
			return nil
		}

		privateKey, err := crypto.LoadECDSA(fileName)
		if err != nil {
			return err
		}

		fp := signature.Fingerprint(&privateKey.PublicKey)
		ns.accounts[fp] = strings.TrimSuffix(path.Base(fileName), ".ecdsa")

		return nil
	}

	if err := filepath.Walk(root, fn); err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}

	return &ns, nil
}

// Lookup returns the name for the specified fingerprint.
func (ns *NameService) Lookup(fp database.Fingerprint) string {
	name, exists := ns.accounts[fp]
	if !exists {
		return fp.String()
	}
	return name
}

// Copy returns a copy of the map of names and fingerprints.
func (ns *NameService) Copy() map[database.Fingerprint]string {
	return maps.Clone(ns.accounts)
}
