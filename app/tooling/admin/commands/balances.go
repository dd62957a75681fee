// Package commands contains the functionality for the set of commands
// currently supported by the admin tooling.
package commands

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/ardanlabs/utxochain/foundation/blockchain/chain"
	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
)

// ErrHelp provides context that help was given.
var ErrHelp = errors.New("provided help")

// Status prints the tip of the chain and the supply.
func Status(chn *chain.Chain) {
	height, best := chn.Tip()

	fmt.Printf("Height:      %d\n", height)
	fmt.Printf("BestHash:    %s\n", best)
	fmt.Printf("TotalSupply: %d\n", chn.TotalSupply())
	fmt.Printf("Difficulty:  %#08x\n", chn.CurrentDifficulty())
	fmt.Printf("UTXOs:       %d\n", chn.UTXOCount())
}

// Balances prints the balance and unspent outputs of the fingerprint.
func Balances(fingerprint string, chn *chain.Chain) error {
	fp, err := database.ToFingerprint(fingerprint)
	if err != nil {
		return err
	}

	fmt.Printf("Fingerprint: %s  Balance: %d  Nonce: %d\n\n", fp, chn.Balance(fp), chn.Nonce(fp))

	for _, u := range chn.UTXOsByFingerprint(fp) {
		fmt.Printf("  %s: %d\n", u.OutPoint, u.Output.Amount)
	}

	return nil
}

// Blocks prints the main chain blocks between the heights.
func Blocks(from string, to string, chn *chain.Chain) error {
	start, err := strconv.ParseUint(from, 10, 64)
	if err != nil {
		return fmt.Errorf("parsing from: %w", err)
	}

	end := chn.Height()
	if to != "" {
		if end, err = strconv.ParseUint(to, 10, 64); err != nil {
			return fmt.Errorf("parsing to: %w", err)
		}
	}

	for height := start; height <= end; height++ {
		block, err := chn.BlockByHeight(height)
		if err != nil {
			return err
		}

		fmt.Printf("Block %d: %s prev[%s] bits[%#08x] txs[%d]\n", height, block.Hash(), block.Header.PrevHash.Short(), block.Header.Bits, len(block.Txs))
		for _, tx := range block.Txs {
			fmt.Printf("  %s\n", tx)
		}
	}

	return nil
}

// Checkpoints prints the recorded checkpoints.
func Checkpoints(chn *chain.Chain) {
	for _, cp := range chn.Checkpoints() {
		fmt.Printf("%d:%s\n", cp.Height, cp.Hash)
	}
}

// AddCheckpoint records the main chain block at the height as a checkpoint.
func AddCheckpoint(height string, chn *chain.Chain) error {
	h, err := strconv.ParseUint(height, 10, 64)
	if err != nil {
		return err
	}

	if err := chn.AddCheckpoint(h); err != nil {
		return err
	}

	Checkpoints(chn)

	return nil
}
