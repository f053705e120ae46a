package store

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// EnvelopeVersion is the current envelope schema version.
const EnvelopeVersion uint16 = 1

var (
	ErrEnvelopeVersion = errors.New("unsupported tree envelope version")
	ErrEnvelopeDecode  = errors.New("tree envelope decode failed")
)

// Envelope is the transport framing for one committed tree generation: the
// raw arena bytes plus the identity needed to route them, and optionally
// the detached COSE Sign1 state checkpoint the receiver verifies the
// rehydrated tree against.
type Envelope struct {
	Version    uint16 `cbor:"1,keyasint"`
	TreeID     []byte `cbor:"2,keyasint"`
	Generation uint64 `cbor:"3,keyasint"`
	Arena      []byte `cbor:"4,keyasint"`

	// SignedState is the serialized COSE Sign1 message over the sender's
	// TreeState, empty when the sender does not checkpoint.
	SignedState []byte `cbor:"5,keyasint,omitempty"`
}

// envelopeRaw carries the Envelope fields without the BinaryMarshaler
// methods, so the cbor codec encodes the struct rather than dispatching
// back into MarshalBinary.
type envelopeRaw Envelope

func (e Envelope) MarshalBinary() ([]byte, error) {
	return cbor.Marshal(envelopeRaw(e))
}

func (e *Envelope) UnmarshalBinary(data []byte) error {
	if err := cbor.Unmarshal(data, (*envelopeRaw)(e)); err != nil {
		return fmt.Errorf("%w: %v", ErrEnvelopeDecode, err)
	}
	if e.Version != EnvelopeVersion {
		return fmt.Errorf("%w: %d", ErrEnvelopeVersion, e.Version)
	}
	return nil
}
