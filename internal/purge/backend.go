package purge

import "context"

// Lister pages through the versions and delete markers under a prefix.
// A nil cursor requests the first page.
type Lister interface {
	ListObjectVersions(ctx context.Context, bucket, prefix string, cursor *Cursor) (*Page, error)
}

// Deleter removes specific object versions.
type Deleter interface {
	DeleteObject(ctx context.Context, bucket string, ref ObjectVersionRef) error
	// DeleteObjects removes up to MaxBatchSize refs in one call. Per-object
	// failures are returned in the output, not as an error.
	DeleteObjects(ctx context.Context, bucket string, refs []ObjectVersionRef) (*DeleteOutput, error)
}

// Backend is the object storage the workflow runs against.
type Backend interface {
	Lister
	Deleter
}
