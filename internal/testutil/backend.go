// Package testutil provides an in-memory versioned object store that
// satisfies purge.Backend, for tests only.
package testutil

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/dev-tams/s3purge/internal/purge"
)

type entry struct {
	key          string
	versionID    string
	deleteMarker bool
	seq          int
}

// Backend is a fake versioned bucket store. It pages listings like S3 does
// (key ascending, newest version first) and records every call.
type Backend struct {
	mu      sync.Mutex
	buckets map[string][]entry
	seq     int

	// PageSize caps entries per listing page. Zero means 1000.
	PageSize int

	// ListErr, when set, is returned by every ListObjectVersions call.
	ListErr error
	// DeleteObjectsErr, when set, is called with the 1-based call number and
	// its error returned instead of deleting.
	DeleteObjectsErr func(call int) error
	// DeleteObjectErr, when set, is called for every single delete.
	DeleteObjectErr func(ref purge.ObjectVersionRef) error
	// FailKeys makes bulk deletes report these keys as per-object errors
	// with the mapped error code.
	FailKeys map[string]string

	ListCalls          int
	DeleteObjectCalls  []purge.ObjectVersionRef
	DeleteObjectsCalls [][]purge.ObjectVersionRef
}

// NewBackend returns an empty store.
func NewBackend() *Backend {
	return &Backend{buckets: make(map[string][]entry)}
}

// CreateBucket registers an empty bucket.
func (b *Backend) CreateBucket(bucket string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.buckets[bucket]; !ok {
		b.buckets[bucket] = nil
	}
}

// Put adds a new version of key and returns its version id.
func (b *Backend) Put(bucket, key string) string {
	return b.add(bucket, key, false)
}

// PutDeleteMarker adds a delete marker for key and returns its version id.
func (b *Backend) PutDeleteMarker(bucket, key string) string {
	return b.add(bucket, key, true)
}

func (b *Backend) add(bucket, key string, marker bool) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	id := fmt.Sprintf("v%06d", b.seq)
	b.buckets[bucket] = append(b.buckets[bucket], entry{key: key, versionID: id, deleteMarker: marker, seq: b.seq})
	return id
}

// Len returns the number of versions and markers stored in bucket.
func (b *Backend) Len(bucket string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buckets[bucket])
}

// DeleteCalls returns the total number of delete calls of either kind.
func (b *Backend) DeleteCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.DeleteObjectCalls) + len(b.DeleteObjectsCalls)
}

func (b *Backend) sorted(bucket, prefix string) []entry {
	out := make([]entry, 0, len(b.buckets[bucket]))
	for _, e := range b.buckets[bucket] {
		if strings.HasPrefix(e.key, prefix) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].key != out[j].key {
			return out[i].key < out[j].key
		}
		return out[i].seq > out[j].seq
	})
	return out
}

func (b *Backend) latestSeq(bucket string) map[string]int {
	latest := make(map[string]int)
	for _, e := range b.buckets[bucket] {
		if e.seq > latest[e.key] {
			latest[e.key] = e.seq
		}
	}
	return latest
}

// ListObjectVersions implements purge.Lister.
func (b *Backend) ListObjectVersions(_ context.Context, bucket, prefix string, cursor *purge.Cursor) (*purge.Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.ListCalls++
	if b.ListErr != nil {
		return nil, b.ListErr
	}
	if _, ok := b.buckets[bucket]; !ok {
		return nil, fmt.Errorf("NoSuchBucket: bucket %s does not exist", bucket)
	}

	size := b.PageSize
	if size <= 0 {
		size = purge.MaxBatchSize
	}

	start := 0
	if cursor != nil {
		n, err := strconv.Atoi(cursor.VersionIDMarker)
		if err != nil {
			return nil, fmt.Errorf("bad cursor %q: %w", cursor.VersionIDMarker, err)
		}
		start = n
	}

	all := b.sorted(bucket, prefix)
	latest := b.latestSeq(bucket)
	end := min(start+size, len(all))

	page := &purge.Page{}
	for _, e := range all[start:end] {
		ref := purge.ObjectVersionRef{
			Key:          e.key,
			VersionID:    e.versionID,
			DeleteMarker: e.deleteMarker,
			IsLatest:     latest[e.key] == e.seq,
		}
		if e.deleteMarker {
			page.DeleteMarkers = append(page.DeleteMarkers, ref)
		} else {
			page.Versions = append(page.Versions, ref)
		}
	}
	if end < len(all) {
		last := all[end-1]
		page.Next = &purge.Cursor{KeyMarker: last.key, VersionIDMarker: strconv.Itoa(end)}
	}
	return page, nil
}

// DeleteObject implements purge.Deleter.
func (b *Backend) DeleteObject(_ context.Context, bucket string, ref purge.ObjectVersionRef) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.DeleteObjectCalls = append(b.DeleteObjectCalls, ref)
	if b.DeleteObjectErr != nil {
		if err := b.DeleteObjectErr(ref); err != nil {
			return err
		}
	}
	b.remove(bucket, ref)
	return nil
}

// DeleteObjects implements purge.Deleter.
func (b *Backend) DeleteObjects(_ context.Context, bucket string, refs []purge.ObjectVersionRef) (*purge.DeleteOutput, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	call := append([]purge.ObjectVersionRef(nil), refs...)
	b.DeleteObjectsCalls = append(b.DeleteObjectsCalls, call)
	if b.DeleteObjectsErr != nil {
		if err := b.DeleteObjectsErr(len(b.DeleteObjectsCalls)); err != nil {
			return nil, err
		}
	}
	if len(refs) > purge.MaxBatchSize {
		return nil, fmt.Errorf("MalformedXML: %d objects exceeds the limit of %d", len(refs), purge.MaxBatchSize)
	}

	out := &purge.DeleteOutput{}
	for _, ref := range refs {
		if code, ok := b.FailKeys[ref.Key]; ok {
			out.Errors = append(out.Errors, purge.DeleteError{Ref: ref, Code: code, Message: "simulated failure"})
			continue
		}
		b.remove(bucket, ref)
		out.Deleted = append(out.Deleted, ref)
	}
	return out, nil
}

func (b *Backend) remove(bucket string, ref purge.ObjectVersionRef) {
	entries := b.buckets[bucket]
	for i, e := range entries {
		if e.key == ref.Key && e.versionID == ref.VersionID {
			b.buckets[bucket] = append(entries[:i], entries[i+1:]...)
			return
		}
	}
}

var _ purge.Backend = (*Backend)(nil)
