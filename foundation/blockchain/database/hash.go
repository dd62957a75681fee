package database

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"golang.org/x/crypto/sha3"
)

// ZeroHash represents a hash of all zeros. It is the previous hash of the
// genesis block and the merkle root of an empty block.
var ZeroHash Hash

// Hash represents a SHA3-256 digest of a block header or transaction.
type Hash [32]byte

// HashBytes returns the SHA3-256 digest of the specified data.
func HashBytes(data []byte) Hash {
	return sha3.Sum256(data)
}

// IsZero reports if the hash is all zeros.
func (h Hash) IsZero() bool {
	return h == ZeroHash
}

// String returns the hex encoding of the hash.
func (h Hash) String() string {
	return hexutil.Encode(h[:])
}

// Short returns the first 8 bytes of the hex encoding for logging.
func (h Hash) Short() string {
	return hexutil.Encode(h[:8])
}

// MarshalText implements the encoding.TextMarshaler interface.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements the encoding.TextUnmarshaler interface.
func (h *Hash) UnmarshalText(data []byte) error {
	return decode32(string(data), (*[32]byte)(h))
}

// ToHash converts a hex string into a hash.
func ToHash(hex string) (Hash, error) {
	var h Hash
	if err := decode32(hex, (*[32]byte)(&h)); err != nil {
		return Hash{}, err
	}
	return h, nil
}

// =============================================================================

// Fingerprint identifies the owner of an output. It is the SHA3-256 digest
// of the owner's public key.
type Fingerprint [32]byte

// FingerprintFromPublicKey returns the fingerprint for the serialized
// public key.
func FingerprintFromPublicKey(publicKey []byte) Fingerprint {
	return sha3.Sum256(publicKey)
}

// String returns the hex encoding of the fingerprint.
func (fp Fingerprint) String() string {
	return hexutil.Encode(fp[:])
}

// MarshalText implements the encoding.TextMarshaler interface.
func (fp Fingerprint) MarshalText() ([]byte, error) {
	return []byte(fp.String()), nil
}

// UnmarshalText implements the encoding.TextUnmarshaler interface.
func (fp *Fingerprint) UnmarshalText(data []byte) error {
	return decode32(string(data), (*[32]byte)(fp))
}

// ToFingerprint converts a hex string into a fingerprint.
func ToFingerprint(hex string) (Fingerprint, error) {
	var fp Fingerprint
	if err := decode32(hex, (*[32]byte)(&fp)); err != nil {
		return Fingerprint{}, err
	}
	return fp, nil
}

// =============================================================================

func decode32(hex string, dst *[32]byte) error {
	b, err := hexutil.Decode(hex)
	if err != nil {
		return fmt.Errorf("decoding %q: %w", hex, err)
	}

	if len(b) != len(dst) {
		return fmt.Errorf("invalid length %d, expected %d bytes", len(b), len(dst))
	}

	copy(dst[:], b)
	return nil
}
