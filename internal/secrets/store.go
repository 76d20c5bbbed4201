package secrets

import "errors"

// ErrNotFound is returned by Get when no blob is stored under the key.
var ErrNotFound = errors.New("secret not found")

// Store keeps opaque blobs by key.
type Store interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
	Delete(key string) error
}
