package database

import (
	"github.com/fxamacker/cbor/v2"
)

// encMode produces the canonical encoding used for hashing, sizing and
// storing blocks and transactions. Nil and empty slices encode the same so
// a value decoded from JSON hashes like the original.
var encMode cbor.EncMode

// decMode rejects duplicate map keys so a stored value can't be ambiguous.
var decMode cbor.DecMode

func init() {
	var err error

	opts := cbor.CoreDetEncOptions()
	opts.NilContainers = cbor.NilContainerAsEmpty

	encMode, err = opts.EncMode()
	if err != nil {
		panic(err)
	}

	decMode, err = cbor.DecOptions{DupMapKey: cbor.DupMapKeyEnforcedAPF}.DecMode()
	if err != nil {
		panic(err)
	}
}

// Encode returns the canonical binary encoding of the value.
func Encode(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Decode decodes the canonical binary encoding into the value.
func Decode(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}
