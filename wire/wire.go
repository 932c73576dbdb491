// Package wire holds the canonical CBOR encoding shared by trace files,
// memory snapshots and the run service.
package wire

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// encMode uses canonical mode for deterministic encoding.
var encMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("wire: failed to create CBOR enc mode: %v", err))
	}
	encMode = em
}

// Marshal serializes v to canonical CBOR.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal deserializes CBOR data into v.
func Unmarshal(data []byte, v any) error {
	if err := cbor.Unmarshal(data, v); err != nil {
		return fmt.Errorf("wire: unmarshal %T: %w", v, err)
	}
	return nil
}
