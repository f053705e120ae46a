package serial

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"testing"

	"github.com/datatrails/go-datatrails-common/azkeys"
	dtcose "github.com/datatrails/go-datatrails-common/cose"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGenerateECKey(t *testing.T, curve elliptic.Curve) ecdsa.PrivateKey {
	t.Helper()
	key, err := ecdsa.GenerateKey(curve, rand.Reader)
	require.NoError(t, err)
	return *key
}

func TestStateSignVerify(t *testing.T) {
	tree := buildRefinedTree(t, 64)
	tree.SquareNorm = 12.75
	state := tree.State(1234)
	assert.Equal(t, uint64(17), state.NodeCount)
	assert.Equal(t, 12.75, state.SquareNorm)

	codec, err := NewStateCodec()
	require.NoError(t, err)
	ss := NewStateSigner("synsation.org", codec)

	key := testGenerateECKey(t, elliptic.P256())
	coseSigner := azkeys.NewTestCoseSigner(t, key)
	pubKey, err := coseSigner.PublicKey()
	require.NoError(t, err)

	coseMsg, err := ss.Sign1(coseSigner, coseSigner.KeyIdentifier(), pubKey, "tree-attestor", state, nil)
	require.NoError(t, err)

	signed, unverified, err := DecodeSignedState(codec, coseMsg)
	require.NoError(t, err)
	assert.Equal(t, state.NodeCount, unverified.NodeCount)
	assert.Equal(t, state.TreeUUID, unverified.TreeUUID)

	// the square norm is detached on publish, verification must fail
	// until the receiver supplies the one their arena reproduces
	assert.Zero(t, unverified.SquareNorm)
	err = VerifySignedState(codec, dtcose.NewCWTPublicKeyProvider(signed), signed, unverified, nil)
	assert.Error(t, err)

	unverified.SquareNorm = tree.SquareNorm
	err = VerifySignedState(codec, dtcose.NewCWTPublicKeyProvider(signed), signed, unverified, nil)
	assert.NoError(t, err)

	// a tampered state must not verify
	unverified.NodeCount++
	err = VerifySignedState(codec, dtcose.NewCWTPublicKeyProvider(signed), signed, unverified, nil)
	assert.Error(t, err)
}

func TestCheckState(t *testing.T) {
	tree := buildRefinedTree(t, 64)
	state := tree.State(1234)
	require.NoError(t, CheckState(tree, state))

	bad := state
	bad.NodeCount++
	assert.ErrorIs(t, CheckState(tree, bad), ErrStateMismatch)

	bad = state
	bad.Order = 9
	assert.ErrorIs(t, CheckState(tree, bad), ErrStateMismatch)

	bad = state
	bad.RootCount = 3
	assert.ErrorIs(t, CheckState(tree, bad), ErrStateMismatch)

	bad = state
	bad.TreeUUID = []byte("0123456789abcdef")
	assert.ErrorIs(t, CheckState(tree, bad), ErrStateMismatch)
}
