package filestore

import (
	"io"
)

// URLScheme prefixes blob references embedded in file messages.
const URLScheme = "blob://"

// FileStore is an interface for storing and retrieving files by their hash.
type FileStore interface {
	// Save saves the file content with the given hash.
	// It is idempotent: if a file with the same hash already exists, it returns nil.
	Save(r io.Reader, hash string) error

	// Get retrieves the file content for the given hash.
	Get(hash string) (io.ReadCloser, error)

	// Delete removes the blob a URL reference points at. Deleting an
	// absent blob is not an error.
	Delete(url string) error
}

// URL builds the reference stored in a message's file descriptor.
func URL(hash string) string {
	return URLScheme + hash
}
