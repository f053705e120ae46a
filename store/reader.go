// Package store moves serialized tree arenas in and out of blob storage.
// Each tree instance owns a prefix keyed by its uuid, and every committed
// generation is a separate numbered blob holding a CBOR envelope around
// the raw arena bytes.
package store

import (
	"context"
	"io"

	"github.com/datatrails/go-datatrails-common/azblob"
)

// treeBlobReader is the narrow reading interface the fetch side requires.
// azblob.Storer satisfies it.
type treeBlobReader interface {
	Reader(
		ctx context.Context,
		identity string,
		opts ...azblob.Option,
	) (*azblob.ReaderResponse, error)
}

// treeStore adds the writing half needed by the committer.
type treeStore interface {
	treeBlobReader
	Put(
		ctx context.Context,
		identity string,
		source io.ReadSeekCloser,
		opts ...azblob.Option,
	) (*azblob.WriteResponse, error)
}

// blobRead reads the blob and its whole body. On return, regardless of
// error, the response reader is exhausted.
func blobRead(
	ctx context.Context, blobPath string, store treeBlobReader, opts ...azblob.Option,
) (*azblob.ReaderResponse, []byte, error) {

	rr, err := store.Reader(ctx, blobPath, opts...)
	if err != nil {
		return nil, nil, WrapTreeNotFound(err)
	}
	data, err := io.ReadAll(rr.Reader)
	if err != nil {
		return rr, nil, err
	}
	return rr, data, nil
}
