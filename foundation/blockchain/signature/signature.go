// Package signature provides helper functions for handling the blockchain
// signature needs. Inputs are signed with secp256k1 over the transaction's
// signing hash and carry the compressed public key of the owner.
package signature

import (
	"bytes"
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/ethereum/go-ethereum/crypto"
)

// Set of errors returned when verifying input signatures.
var (
	ErrInputIndex   = errors.New("input index out of range")
	ErrSignatureLen = errors.New("invalid signature length")
	ErrPublicKey    = errors.New("invalid public key")
)

// =============================================================================

// PublicKeyBytes returns the compressed form of the public key that is
// stored in inputs and hashed into fingerprints.
func PublicKeyBytes(publicKey *ecdsa.PublicKey) []byte {
	return crypto.CompressPubkey(publicKey)
}

// Fingerprint returns the fingerprint owning outputs for this key.
func Fingerprint(publicKey *ecdsa.PublicKey) database.Fingerprint {
	return database.FingerprintFromPublicKey(PublicKeyBytes(publicKey))
}

// Sign uses the specified private key to sign the hash. The result is in
// the 65 byte [R|S|V] format.
func Sign(hash database.Hash, privateKey *ecdsa.PrivateKey) ([]byte, error) {
	sig, err := crypto.Sign(hash[:], privateKey)
	if err != nil {
		return nil, err
	}

	// Check the public key extracted from the data and signature.
	pub, err := crypto.SigToPub(hash[:], sig)
	if err != nil {
		return nil, err
	}

	if !bytes.Equal(crypto.FromECDSAPub(pub), crypto.FromECDSAPub(&privateKey.PublicKey)) {
		return nil, errors.New("invalid signature")
	}

	return sig, nil
}

// Verify checks the signature of the hash was produced by the owner of the
// serialized public key.
func Verify(hash database.Hash, sig []byte, publicKey []byte) (bool, error) {
	if len(sig) != crypto.SignatureLength && len(sig) != crypto.SignatureLength-1 {
		return false, fmt.Errorf("%w: %d", ErrSignatureLen, len(sig))
	}

	switch len(publicKey) {
	case 33:
		if _, err := crypto.DecompressPubkey(publicKey); err != nil {
			return false, fmt.Errorf("%w: %s", ErrPublicKey, err)
		}
	default:
		if _, err := crypto.UnmarshalPubkey(publicKey); err != nil {
			return false, fmt.Errorf("%w: %s", ErrPublicKey, err)
		}
	}

	return crypto.VerifySignature(publicKey, hash[:], sig[:crypto.RecoveryIDOffset]), nil
}

// VerifyInputSignature checks the signature on the input at the index was
// produced by the specified public key over the transaction's signing hash.
func VerifyInputSignature(tx database.Tx, index int, publicKey []byte) (bool, error) {
	if index < 0 || index >= len(tx.Inputs) {
		return false, fmt.Errorf("%w: %d", ErrInputIndex, index)
	}

	return Verify(tx.SigningHash(), tx.Inputs[index].Signature, publicKey)
}

// SignTx signs every input of the transaction with the private key and
// returns the signed copy.
func SignTx(tx database.Tx, privateKey *ecdsa.PrivateKey) (database.Tx, error) {
	pub := PublicKeyBytes(&privateKey.PublicKey)

	inputs := make([]database.TxInput, len(tx.Inputs))
	for i, in := range tx.Inputs {
		in.PublicKey = pub
		in.Signature = nil
		inputs[i] = in
	}
	tx.Inputs = inputs

	hash := tx.SigningHash()
	for i := range tx.Inputs {
		sig, err := Sign(hash, privateKey)
		if err != nil {
			return database.Tx{}, err
		}
		tx.Inputs[i].Signature = sig
	}

	return tx, nil
}
