package store

import (
	"errors"
	"fmt"

	azStorageBlob "github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
)

const azblobBlobNotFound = "BlobNotFound"

var ErrTreeNotFound = errors.New("the requested tree blob is not found")

// blobNotFound reports whether err is the azure sdk's blob not found
// response, unwrapped from the sdk's internal error chain.
func blobNotFound(err error) bool {
	ierr, ok := err.(*azStorageBlob.InternalError)
	if !ok || ierr == nil {
		return false
	}
	serr := &azStorageBlob.StorageError{}
	if !ierr.As(&serr) {
		return false
	}
	return serr.ErrorCode == azblobBlobNotFound
}

// WrapTreeNotFound translates err to ErrTreeNotFound if the actual error is
// the azure sdk blob not found error. In all other cases, including nil,
// the original err is returned as is.
func WrapTreeNotFound(err error) error {
	if err == nil || !blobNotFound(err) {
		return err
	}
	return fmt.Errorf("%s: %w", err.Error(), ErrTreeNotFound)
}

func IsTreeNotFound(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrTreeNotFound) || blobNotFound(err)
}
