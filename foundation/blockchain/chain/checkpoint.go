package chain

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
)

// AddCheckpoint pins the main chain block at the height. Adding the same
// checkpoint twice is not an error.
func (c *Chain) AddCheckpoint(height uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.addCheckpoint(height); err != nil {
		return err
	}

	return c.storeState()
}

// Checkpoints returns the recorded checkpoints ordered by height.
func (c *Chain) Checkpoints() []Checkpoint {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.checkpointList()
}

// ValidateCheckpoint checks the block against the checkpoint at its height.
func (c *Chain) ValidateCheckpoint(block database.Block) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.validateCheckpoint(block)
}

// =============================================================================

func (c *Chain) addCheckpoint(height uint64) error {
	blk, err := c.blockByHeight(height)
	if err != nil {
		return fmt.Errorf("checkpoint height %d: %w", height, err)
	}

	hash := blk.Hash()

	if existing, exists := c.checkpoints[height]; exists {
		if existing != hash {
			return fmt.Errorf("%w: height %d: have %s, block %s", ErrCheckpointConflict, height, existing.Short(), hash.Short())
		}
		return nil
	}

	c.checkpoints[height] = hash

	c.evHandler("chain: addCheckpoint: height[%d]: hash[%s]", height, hash.Short())

	return nil
}

// autoCheckpoint records the tip as a checkpoint when the tip height is a
// multiple of the configured interval. It reports if a new checkpoint was
// recorded.
func (c *Chain) autoCheckpoint() (bool, error) {
	return c.intervalCheckpoint(c.ledger.Height())
}

// intervalCheckpoint records the main chain block at the height when the
// height is a multiple of the configured interval.
func (c *Chain) intervalCheckpoint(height uint64) (bool, error) {
	if c.interval == 0 || height%c.interval != 0 {
		return false, nil
	}

	if _, exists := c.checkpoints[height]; exists {
		return false, c.addCheckpoint(height)
	}

	if err := c.addCheckpoint(height); err != nil {
		return false, err
	}

	return true, nil
}

func (c *Chain) validateCheckpoint(block database.Block) error {
	hash, exists := c.checkpoints[block.Header.Height]
	if !exists {
		return nil
	}

	if got := block.Hash(); got != hash {
		return fmt.Errorf("%w: height %d: expected %s, got %s", ErrCheckpointMismatch, block.Header.Height, hash.Short(), got.Short())
	}

	return nil
}

// =============================================================================

// LoadCheckpointFile reads checkpoints from a file of "height:hash" lines.
// Blank lines and lines starting with # are ignored. A missing file yields
// no checkpoints.
func LoadCheckpointFile(path string) (map[uint64]database.Hash, error) {
	checkpoints := make(map[uint64]database.Hash)

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return checkpoints, nil
		}
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for line := 1; scanner.Scan(); line++ {
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		h, hexHash, found := strings.Cut(text, ":")
		if !found {
			return nil, fmt.Errorf("checkpoint file line %d: missing separator", line)
		}

		height, err := strconv.ParseUint(strings.TrimSpace(h), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("checkpoint file line %d: height: %w", line, err)
		}

		hash, err := database.ToHash(strings.TrimSpace(hexHash))
		if err != nil {
			return nil, fmt.Errorf("checkpoint file line %d: hash: %w", line, err)
		}

		checkpoints[height] = hash
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return checkpoints, nil
}
