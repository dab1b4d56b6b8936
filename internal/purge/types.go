// Package purge implements the scan, report and delete workflow for object
// versions and delete markers in a versioned bucket.
//
// A run lists every version under a key prefix, keeps the entries whose key
// contains the optional search string, prints them, and, unless the request
// is a dry run, deletes them in batches of at most 1000.
package purge

import "time"

// MaxBatchSize is the largest number of objects a bulk delete call accepts.
const MaxBatchSize = 1000

// ObjectVersionRef identifies one deletable version: either a stored object
// version or a delete marker. Both are deleted the same way.
type ObjectVersionRef struct {
	Key          string
	VersionID    string
	DeleteMarker bool
	IsLatest     bool
}

// Request configures one run.
type Request struct {
	Bucket string
	Prefix string
	// Search restricts candidates to keys containing it. Empty matches every
	// key under Prefix.
	Search string
	DryRun bool
	// KeepLatest leaves the current entry of every key in place.
	KeepLatest bool
}

// CandidateSet holds the refs selected by a scan in listing order.
type CandidateSet []ObjectVersionRef

// Cursor is the backend-issued position of the next listing page.
type Cursor struct {
	KeyMarker       string
	VersionIDMarker string
}

// Page is one page of a version listing. Next is nil on the last page.
type Page struct {
	Versions      []ObjectVersionRef
	DeleteMarkers []ObjectVersionRef
	Next          *Cursor
}

// DeleteError is a per-object failure reported inside a bulk delete response.
type DeleteError struct {
	Ref     ObjectVersionRef
	Code    string
	Message string
}

// DeleteOutput is the backend response to a bulk delete.
type DeleteOutput struct {
	Deleted []ObjectVersionRef
	Errors  []DeleteError
}

// BatchResult records what happened to one batch.
type BatchResult struct {
	// Index is 1-based.
	Index        int
	Size         int
	Deleted      int
	RunningTotal int
	Errors       []DeleteError
}

// Outcome aggregates the batches of a purge.
type Outcome struct {
	Batches          []BatchResult
	BatchesTotal     int
	BatchesCompleted int
	Deleted          int
	Failed           int
}

// State is the terminal state of a run.
type State string

const (
	StateEmptyDone  State = "empty-done"
	StateDryRunDone State = "dry-run-done"
	StateDone       State = "done"
	// StateAborted marks a purge stopped by a call-level failure or
	// cancellation.
	StateAborted State = "aborted"
)

// Summary describes a finished run.
type Summary struct {
	State    State
	Found    int
	Deleted  int
	Failed   int
	Outcome  *Outcome
	Duration time.Duration
}
