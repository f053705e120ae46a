package store

import (
	"fmt"

	"github.com/google/uuid"
)

const (
	// V1TreePrefix is the blob path prefix all serialized trees live under.
	V1TreePrefix = "v1/mrtrees"

	// V1TreeBlobNameFmt names one committed generation. The zero padding
	// keeps lexical blob listing in generation order.
	V1TreeBlobNameFmt = "%016d.tree"
)

// TreePrefix is the path prefix owned by one tree instance.
func TreePrefix(treeUUID uuid.UUID) string {
	return fmt.Sprintf("%s/%s/", V1TreePrefix, treeUUID.String())
}

// TreeBlobPath is the full blob path of one committed generation.
func TreeBlobPath(treeUUID uuid.UUID, generation uint64) string {
	return TreePrefix(treeUUID) + fmt.Sprintf(V1TreeBlobNameFmt, generation)
}
