package serial

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"

	dtcbor "github.com/datatrails/go-datatrails-common/cbor"
	dtcose "github.com/datatrails/go-datatrails-common/cose"
	"github.com/veraison/go-cose"
)

// TreeState is the signed commitment to a tree at a point in time. A
// receiver of a transferred arena rehydrates it and checks the result
// against a verified state before trusting the data.
type TreeState struct {
	NodeCount uint64 `cbor:"1,keyasint"`

	// SquareNorm is the accumulated leaf norm from the arena header. It is
	// detached before publishing so that verifiers are forced to recompute
	// it from the arena they actually received.
	SquareNorm float64 `cbor:"2,keyasint,omitempty"`

	// Timestamp is the unix time (milliseconds) read at the time the state
	// was signed. Including it allows the same state to be re-signed.
	Timestamp int64 `cbor:"3,keyasint"`

	Order     uint32 `cbor:"4,keyasint"`
	Dims      uint32 `cbor:"5,keyasint"`
	RootCount uint32 `cbor:"6,keyasint"`

	// TreeUUID binds the state to one tree instance.
	TreeUUID []byte `cbor:"7,keyasint"`
}

// State captures the current checkpointable state of the tree.
func (t *Tree) State(timestamp int64) TreeState {
	return TreeState{
		NodeCount:  uint64(t.NodeCount),
		SquareNorm: t.SquareNorm,
		Timestamp:  timestamp,
		Order:      uint32(t.Order),
		Dims:       uint32(t.Dims),
		RootCount:  uint32(len(t.RootIndices)),
		TreeUUID:   t.TreeUUID[:],
	}
}

// CheckState compares a verified state against the rehydrated tree.
func CheckState(t *Tree, state TreeState) error {
	if state.NodeCount != uint64(t.NodeCount) {
		return fmt.Errorf("%w: state has %d nodes, tree has %d", ErrStateMismatch, state.NodeCount, t.NodeCount)
	}
	if state.Order != uint32(t.Order) || state.Dims != uint32(t.Dims) {
		return fmt.Errorf("%w: state is order %d dims %d, tree is order %d dims %d",
			ErrStateMismatch, state.Order, state.Dims, t.Order, t.Dims)
	}
	if state.RootCount != uint32(len(t.RootIndices)) {
		return fmt.Errorf("%w: state has %d roots, tree has %d", ErrStateMismatch, state.RootCount, len(t.RootIndices))
	}
	if string(state.TreeUUID) != string(t.TreeUUID[:]) {
		return fmt.Errorf("%w: state is for tree %x, got %s", ErrStateMismatch, state.TreeUUID, t.TreeUUID)
	}
	return nil
}

// StateSigner produces a COSE Sign1 signature over a tree state.
type StateSigner struct {
	issuer    string
	cborCodec dtcbor.CBORCodec
}

func NewStateSigner(issuer string, cborCodec dtcbor.CBORCodec) StateSigner {
	return StateSigner{
		issuer:    issuer,
		cborCodec: cborCodec,
	}
}

// Sign1 signs the provided state. The square norm is detached after
// signing so that verifiers must recover it from the arena itself.
func (ss StateSigner) Sign1(coseSigner cose.Signer, keyIdentifier string, publicKey *ecdsa.PublicKey, subject string, state TreeState, external []byte) ([]byte, error) {
	payload, err := ss.cborCodec.MarshalCBOR(state)
	if err != nil {
		return nil, err
	}

	coseHeaders := cose.Headers{
		Protected: cose.ProtectedHeader{
			dtcose.HeaderLabelCWTClaims: dtcose.NewCNFClaim(
				ss.issuer, subject, keyIdentifier, coseSigner.Algorithm(), *publicKey),
		},
	}

	msg := cose.Sign1Message{
		Headers: coseHeaders,
		Payload: payload,
	}
	if err = msg.Sign(rand.Reader, external, coseSigner); err != nil {
		return nil, err
	}

	state.SquareNorm = 0
	payload, err = ss.cborCodec.MarshalCBOR(state)
	if err != nil {
		return nil, err
	}
	msg.Payload = payload

	return msg.MarshalCBOR()
}

// NewStateCodec returns the deterministic codec states are signed with.
func NewStateCodec() (dtcbor.CBORCodec, error) {
	codec, err := dtcbor.NewCBORCodec(
		dtcbor.NewDeterministicEncOpts(),
		dtcbor.NewDeterministicDecOpts(), // unsigned int decodes to uint64
	)
	if err != nil {
		return dtcbor.CBORCodec{}, err
	}
	return codec, nil
}

func newStateDecOptions() []dtcose.SignOption {
	return []dtcose.SignOption{dtcose.WithDecOptions(dtcbor.NewDeterministicDecOpts())}
}

type publicKeyProvider interface {
	PublicKey() (crypto.PublicKey, cose.Algorithm, error)
}

// DecodeSignedState decodes the TreeState values from a signed message
// without verifying them. See VerifySignedState.
func DecodeSignedState(codec dtcbor.CBORCodec, msg []byte) (*dtcose.CoseSign1Message, TreeState, error) {
	signed, err := dtcose.NewCoseSign1MessageFromCBOR(msg, newStateDecOptions()...)
	if err != nil {
		return nil, TreeState{}, err
	}

	var unverified TreeState
	if err = codec.UnmarshalInto(signed.Payload, &unverified); err != nil {
		return nil, TreeState{}, err
	}
	return signed, unverified, nil
}

// VerifySignedState applies the provided state to the signed message and
// verifies the result. The square norm is detached before publishing, so
// verification is a 3 step process:
//  1. DecodeSignedState to obtain the unverified TreeState.
//  2. Rehydrate the arena and read the square norm it reproduces.
//  3. Set that norm on the state and call this function.
func VerifySignedState(
	codec dtcbor.CBORCodec, keyProvider publicKeyProvider, signed *dtcose.CoseSign1Message, unverified TreeState, external []byte) error {

	var err error
	signed.Payload, err = codec.MarshalCBOR(unverified)
	if err != nil {
		return err
	}
	return signed.VerifyWithProvider(keyProvider, external)
}
