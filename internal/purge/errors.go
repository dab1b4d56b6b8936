package purge

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidArgument is returned, wrapped with detail, when a request is
// rejected before any backend call.
var ErrInvalidArgument = errors.New("invalid argument")

// BackendError wraps a failed listing or deletion call. The backend's own
// error is kept intact and reachable through errors.As / errors.Is.
type BackendError struct {
	// Op is "list", "delete-objects" or "delete-object".
	Op     string
	Bucket string
	Key    string
	Err    error
}

func (e *BackendError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s %s/%s: %v", e.Op, e.Bucket, e.Key, e.Err)
	}
	return fmt.Sprintf("%s bucket %s: %v", e.Op, e.Bucket, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// PartialBatchFailure reports a bulk delete that removed some refs of a batch
// and rejected others.
type PartialBatchFailure struct {
	Batch   int
	Deleted int
	Errors  []DeleteError
}

func (e *PartialBatchFailure) Error() string {
	codes := make([]string, 0, len(e.Errors))
	seen := make(map[string]struct{}, len(e.Errors))
	for _, de := range e.Errors {
		if _, ok := seen[de.Code]; ok {
			continue
		}
		seen[de.Code] = struct{}{}
		codes = append(codes, de.Code)
	}
	return fmt.Sprintf(
		"batch %d: %d deleted, %d failed (%s)",
		e.Batch,
		e.Deleted,
		len(e.Errors),
		strings.Join(codes, ", "),
	)
}

// BatchAbortError is returned when a call-level failure or cancellation stops
// a purge before every batch ran. Completed batches are not rolled back.
type BatchAbortError struct {
	Completed int
	Total     int
	Err       error
}

func (e *BatchAbortError) Error() string {
	return fmt.Sprintf("purge aborted after %d of %d batches: %v", e.Completed, e.Total, e.Err)
}

func (e *BatchAbortError) Unwrap() error { return e.Err }

func invalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
