package mempool

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
)

// PersistenceError is returned when the mempool file can't be written or
// read back.
type PersistenceError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (pe *PersistenceError) Error() string {
	return fmt.Sprintf("mempool persistence: %s: %s", pe.Op, pe.Err)
}

// Unwrap returns the underlying error.
func (pe *PersistenceError) Unwrap() error {
	return pe.Err
}

// file is the layout of the saved mempool. Entries are kept in fee order
// so a load rebuilds the same order of arrival within a fee.
type file struct {
	_       struct{} `cbor:",toarray"`
	Config  Config
	Entries []Entry
}

// Save writes the mempool to the path. The file is written to a temp file
// and synced before it replaces the previous one.
func (mp *Mempool) Save(path string) error {
	mp.mu.RLock()
	data, err := database.Encode(file{Config: mp.cfg, Entries: mp.entries()})
	mp.mu.RUnlock()

	if err != nil {
		return &PersistenceError{Op: "encode", Err: err}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return &PersistenceError{Op: "create directory", Err: err}
	}

	tmp := path + ".tmp"

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return &PersistenceError{Op: "create", Err: err}
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		return &PersistenceError{Op: "write", Err: err}
	}

	if err := f.Sync(); err != nil {
		f.Close()
		return &PersistenceError{Op: "sync", Err: err}
	}

	if err := f.Close(); err != nil {
		return &PersistenceError{Op: "close", Err: err}
	}

	if err := os.Rename(tmp, path); err != nil {
		return &PersistenceError{Op: "rename", Err: err}
	}

	return nil
}

// Load reads a mempool saved with Save. The entries are trusted as saved
// and are not validated again. A missing file returns fs.ErrNotExist.
func Load(path string) (*Mempool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		return nil, &PersistenceError{Op: "read", Err: err}
	}

	var f file
	if err := database.Decode(data, &f); err != nil {
		return nil, &PersistenceError{Op: "decode", Err: err}
	}

	mp := New(f.Config)
	for _, e := range f.Entries {
		mp.insert(e, e.Tx.Size())
	}

	return mp, nil
}

// LoadOrNew reads the mempool saved at the path or constructs an empty one
// with the config when there is no file.
func LoadOrNew(path string, cfg Config) (*Mempool, error) {
	mp, err := Load(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return New(cfg), nil
		}
		return nil, err
	}

	return mp, nil
}
