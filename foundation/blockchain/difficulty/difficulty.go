// Package difficulty provides the proof of work target arithmetic and the
// epoch based difficulty adjustment for the blockchain.
package difficulty

import (
	"fmt"

	"github.com/holiman/uint256"
)

// Consensus parameters for difficulty adjustment.
const (
	TargetBlockTime     = 300  // Seconds between blocks.
	AdjustmentInterval  = 1008 // Blocks in one epoch.
	MaxAdjustmentFactor = 4    // Max change of the target in one epoch.
)

// Range of compact bits a block is allowed to declare.
const (
	GenesisBits = 0x1f0fffff // Easiest target allowed, used by genesis.
	HardestBits = 0x04000000 // Hardest target allowed.
)

// maxTarget is the largest target a retarget can produce: 2^224 - 1.
var maxTarget = new(uint256.Int).Rsh(new(uint256.Int).SetAllOne(), 32)

// =============================================================================

// CompactToTarget expands the compact representation into the full
// 256 bit target.
func CompactToTarget(compact uint32) *uint256.Int {
	exponent := uint(compact >> 24)
	mantissa := uint256.NewInt(uint64(compact & 0x00ffffff))

	if exponent <= 3 {
		return mantissa.Rsh(mantissa, 8*(3-exponent))
	}

	return mantissa.Lsh(mantissa, 8*(exponent-3))
}

// TargetToCompact converts a full 256 bit target into its compact
// representation. Precision below the three most significant bytes is lost.
func TargetToCompact(target *uint256.Int) uint32 {
	if target.IsZero() {
		return 0
	}

	b := target.Bytes32()

	start := 0
	for start < len(b) && b[start] == 0 {
		start++
	}
	size := len(b) - start

	var mantissa uint32
	switch {
	case size <= 3:
		for i := start; i < len(b); i++ {
			mantissa = mantissa<<8 | uint32(b[i])
		}
		mantissa <<= 8 * uint32(3-size)

	default:
		mantissa = uint32(b[start])<<16 | uint32(b[start+1])<<8 | uint32(b[start+2])
	}

	return uint32(size)<<24 | mantissa
}

// HashMeetsTarget reports if the big endian value of the hash is at or
// below the target the compact bits describe.
func HashMeetsTarget(hash [32]byte, bits uint32) bool {
	value := new(uint256.Int).SetBytes32(hash[:])
	return value.Cmp(CompactToTarget(bits)) <= 0
}

// ValidateBits checks the compact bits are within the allowed range and
// correctly encoded.
func ValidateBits(bits uint32) error {
	if bits > GenesisBits {
		return fmt.Errorf("difficulty too easy: bits 0x%08x, max allowed 0x%08x", bits, uint32(GenesisBits))
	}

	if bits < HardestBits {
		return fmt.Errorf("difficulty too hard: bits 0x%08x, min allowed 0x%08x", bits, uint32(HardestBits))
	}

	if exponent := bits >> 24; exponent > 32 {
		return fmt.Errorf("difficulty encoding invalid: bits 0x%08x, exponent %d exceeds 32", bits, exponent)
	}

	return nil
}

// Work returns the chain work credited to a block with the specified bits.
// Chain work is the sum of the raw compact values, not 2^256/(target+1).
func Work(bits uint32) uint64 {
	return uint64(bits)
}

// =============================================================================

// ShouldAdjust reports if the block at this height starts a new epoch.
func ShouldAdjust(height uint64) bool {
	return height > 0 && height%AdjustmentInterval == 0
}

// ExpectedEpochTime returns the number of seconds an epoch should take.
func ExpectedEpochTime() uint64 {
	return AdjustmentInterval * TargetBlockTime
}

// AdjustDifficulty calculates the compact target for the next epoch. The
// actual time is clamped to a factor of MaxAdjustmentFactor either way. A
// slow epoch raises the target and a fast epoch lowers it.
func AdjustDifficulty(current uint32, actualSecs uint64, expectedSecs uint64) uint32 {
	if expectedSecs < MaxAdjustmentFactor {
		return current
	}

	minTime := expectedSecs / MaxAdjustmentFactor
	maxTime := expectedSecs * MaxAdjustmentFactor
	clamped := min(max(actualSecs, minTime), maxTime)

	target := CompactToTarget(current)
	hundred := uint256.NewInt(100)

	var next uint256.Int
	switch {
	case clamped > expectedSecs:
		factor := uint256.NewInt(clamped)
		factor.Mul(factor, hundred)
		factor.Div(factor, uint256.NewInt(expectedSecs))

		next.Mul(target, factor)
		next.Div(&next, hundred)

	default:
		factor := uint256.NewInt(expectedSecs)
		factor.Mul(factor, hundred)
		factor.Div(factor, uint256.NewInt(clamped))

		next.Mul(target, hundred)
		next.Div(&next, factor)
	}

	if next.Gt(maxTarget) {
		next.Set(maxTarget)
	}

	return TargetToCompact(&next)
}
