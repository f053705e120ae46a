package store

import (
	"context"
	"time"

	"github.com/datatrails/go-datatrails-common/azblob"
)

// TreeBlobContext is the read/write context for one tree generation blob.
// The etag fields carry the optimistic concurrency state between a read
// and the commit that follows it.
type TreeBlobContext struct {
	BlobPath string
	ETag     string
	Tags     map[string]string

	// Creating marks a blob that is expected not to exist yet; the commit
	// is guarded accordingly.
	Creating bool

	LastRead      time.Time
	LastModified  time.Time
	Data          []byte
	ContentLength int64
}

// ReadData reads the blob at BlobPath. The metadata fields are populated
// from the blob store response and on return Data holds the blob contents.
func (tc *TreeBlobContext) ReadData(
	ctx context.Context, store treeBlobReader, opts ...azblob.Option) error {

	var err error
	var rr *azblob.ReaderResponse

	rr, tc.Data, err = blobRead(ctx, tc.BlobPath, store, opts...)
	if err != nil {
		return err
	}
	tc.Tags = rr.Tags
	tc.ETag = *rr.ETag
	tc.LastRead = time.Now()
	tc.LastModified = *rr.LastModified
	tc.ContentLength = rr.ContentLength
	return nil
}
