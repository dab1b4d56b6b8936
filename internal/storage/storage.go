package storage

import "github.com/dev-tams/s3purge/internal/purge"

// Backend is a named object store a purge job runs against.
type Backend interface {
	Name() string
	purge.Backend
}
