package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/datatrails/go-datatrails-common/azblob"
	"github.com/google/uuid"

	"github.com/qlycool/mrcpp/serial"
)

var ErrWrongTree = errors.New("envelope tree id does not match the requested tree")

// FetchTree reads one committed generation and rehydrates it into t, which
// the caller configures with the order, dims, root box and kernel the
// sender used. The decoded envelope is returned so the caller can verify
// the signed state checkpoint, if one was committed, before trusting the
// tree.
func FetchTree(
	ctx context.Context, store treeBlobReader, treeUUID uuid.UUID, generation uint64,
	t *serial.Tree, opts ...azblob.Option,
) (*serial.SerialTree, *Envelope, error) {

	tc := TreeBlobContext{
		BlobPath: TreeBlobPath(treeUUID, generation),
	}
	if err := tc.ReadData(ctx, store, opts...); err != nil {
		return nil, nil, err
	}

	env := &Envelope{}
	if err := env.UnmarshalBinary(tc.Data); err != nil {
		return nil, nil, err
	}
	if !bytes.Equal(env.TreeID, treeUUID[:]) {
		return nil, nil, fmt.Errorf("%w: %x", ErrWrongTree, env.TreeID)
	}

	st, err := serial.Reconstruct(env.Arena, t)
	if err != nil {
		return nil, nil, err
	}
	return st, env, nil
}
