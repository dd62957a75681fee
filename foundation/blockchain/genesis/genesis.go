// Package genesis maintains access to the genesis file.
package genesis

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/ardanlabs/utxochain/foundation/blockchain/difficulty"
	"github.com/ardanlabs/utxochain/foundation/blockchain/ledger"
)

// Height is the height of the genesis block.
const Height = 1

// Genesis represents the genesis file.
type Genesis struct {
	Date               time.Time            `json:"date"`
	ChainID            uint16               `json:"chain_id"`            // The chain id represents an unique id for this running instance.
	TransPerBlock      uint16               `json:"trans_per_block"`     // The maximum number of transactions that can be in a block.
	Bits               uint32               `json:"bits"`                // Compact difficulty target of the genesis block.
	MiningReward       uint64               `json:"mining_reward"`       // Reward for mining a block.
	Recipient          database.Fingerprint `json:"recipient"`           // Owner of the genesis coinbase.
	CheckpointInterval uint64               `json:"checkpoint_interval"` // Blocks between automatic checkpoints, 0 disables them.
}

// Default returns the genesis used when no genesis file exists.
func Default() Genesis {
	return Genesis{
		Date:               time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		ChainID:            1,
		TransPerBlock:      100,
		Bits:               difficulty.GenesisBits,
		MiningReward:       ledger.BlockReward,
		Recipient:          database.Fingerprint{1},
		CheckpointInterval: 100,
	}
}

// =============================================================================

// Load opens and consumes the genesis file. A missing file produces the
// default genesis.
func Load(path string) (Genesis, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Default(), nil
		}
		return Genesis{}, err
	}

	var genesis Genesis
	err = json.Unmarshal(content, &genesis)
	if err != nil {
		return Genesis{}, err
	}

	if err := genesis.Validate(); err != nil {
		return Genesis{}, err
	}

	return genesis, nil
}

// Validate checks the genesis values are usable.
func (g Genesis) Validate() error {
	if err := difficulty.ValidateBits(g.Bits); err != nil {
		return fmt.Errorf("genesis bits: %w", err)
	}

	if g.MiningReward == 0 || g.MiningReward > ledger.BlockReward {
		return fmt.Errorf("genesis mining reward %d must be in (0, %d]", g.MiningReward, ledger.BlockReward)
	}

	if g.TransPerBlock == 0 {
		return errors.New("genesis trans per block must be greater than 0")
	}

	return nil
}

// Block constructs the genesis block. The genesis block is applied without
// a proof of work check so the nonce is left at zero.
func (g Genesis) Block() (database.Block, error) {
	timestamp := uint64(g.Date.Unix())
	coinbase := database.NewCoinbase(g.Recipient, g.MiningReward, Height, timestamp)

	root, err := database.CalculateMerkleRoot([]database.Tx{coinbase})
	if err != nil {
		return database.Block{}, err
	}

	block := database.Block{
		Header: database.BlockHeader{
			Version:    1,
			PrevHash:   database.ZeroHash,
			MerkleRoot: root,
			Timestamp:  timestamp,
			Bits:       g.Bits,
			Height:     Height,
		},
		Txs: []database.Tx{coinbase},
	}

	return block, nil
}
