package store

import (
	"context"
	"errors"

	"github.com/datatrails/go-datatrails-common/azblob"
	"github.com/datatrails/go-datatrails-common/logger"

	"github.com/qlycool/mrcpp/serial"
)

var ErrETagRequired = errors.New("etag is required when updating any blob")

// TreeCommitter writes tree generations to blob storage with the etag
// guards needed to make concurrent committers safe: updates must match the
// etag they read, creations must not overwrite.
type TreeCommitter struct {
	Log   logger.Logger
	Store treeStore
}

func NewTreeCommitter(log logger.Logger, store treeStore) *TreeCommitter {
	return &TreeCommitter{
		Log:   log,
		Store: store,
	}
}

// CommitContext writes tc.Data to tc.BlobPath under the appropriate
// concurrency guard.
func (c *TreeCommitter) CommitContext(ctx context.Context, tc TreeBlobContext) (*azblob.WriteResponse, error) {

	opts := []azblob.Option{azblob.WithTags(tc.Tags)}
	// updates must be guarded by the etag read beforehand, so a competing
	// commit loses rather than silently clobbering
	if tc.ETag != "" {
		opts = append(opts, azblob.WithEtagMatch(tc.ETag))
	} else if !tc.Creating {
		return nil, ErrETagRequired
	}
	if tc.Creating {
		// fail without modifying if any blob exists at the path
		opts = append(opts, azblob.WithEtagNoneMatch("*"))
	}

	return c.Store.Put(ctx, tc.BlobPath, azblob.NewBytesReaderCloser(tc.Data), opts...)
}

// CommitGeneration envelopes the tree's current arena and writes it as the
// given generation. New generations are created guarded against overwrite;
// signedState may be empty. The returned context carries the path and data
// actually written.
func (c *TreeCommitter) CommitGeneration(
	ctx context.Context, tree *serial.Tree, generation uint64, signedState []byte,
) (TreeBlobContext, *azblob.WriteResponse, error) {

	env := Envelope{
		Version:     EnvelopeVersion,
		TreeID:      tree.TreeUUID[:],
		Generation:  generation,
		Arena:       tree.Serial().Bytes(),
		SignedState: signedState,
	}
	data, err := env.MarshalBinary()
	if err != nil {
		return TreeBlobContext{}, nil, err
	}
	tc := TreeBlobContext{
		BlobPath: TreeBlobPath(tree.TreeUUID, generation),
		Tags:     map[string]string{},
		Creating: true,
		Data:     data,
	}
	wr, err := c.CommitContext(ctx, tc)
	if err != nil {
		return tc, nil, err
	}
	return tc, wr, nil
}
