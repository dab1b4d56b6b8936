package purge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// CandidateHook runs after a scan and before the report. An error stops the
// run before anything is deleted.
type CandidateHook func(req Request, candidates CandidateSet) error

// Workflow runs purge requests against one backend. It is not safe for
// concurrent use; runs are strictly sequential.
type Workflow struct {
	backend   Backend
	out       io.Writer
	log       zerolog.Logger
	batchSize int
	strategy  Strategy
	hook      CandidateHook
}

// New returns a Workflow with batch deletion, 1000-object batches and
// report output on stdout.
func New(backend Backend, opts ...Option) *Workflow {
	wf := &Workflow{
		backend:   backend,
		out:       os.Stdout,
		log:       zerolog.Nop(),
		batchSize: MaxBatchSize,
		strategy:  StrategyBatch,
	}
	for _, opt := range opts {
		opt(wf)
	}
	return wf
}

// WithCandidateHook registers a hook called with every scan result.
func WithCandidateHook(h CandidateHook) Option {
	return func(wf *Workflow) {
		wf.hook = h
	}
}

// Run scans, reports and, unless req.DryRun is set or nothing matched,
// purges. The summary is returned even when the purge fails part way.
func (w *Workflow) Run(ctx context.Context, req Request) (*Summary, error) {
	started := time.Now()

	candidates, err := w.Scan(ctx, req)
	if err != nil {
		return nil, err
	}

	summary := &Summary{Found: len(candidates)}

	if w.hook != nil {
		if err := w.hook(req, candidates); err != nil {
			return summary, fmt.Errorf("candidate hook: %w", err)
		}
	}

	if !w.Report(req, candidates) {
		summary.State = StateEmptyDone
		summary.Duration = time.Since(started)
		w.printSummary(summary)
		return summary, nil
	}

	if req.DryRun {
		summary.State = StateDryRunDone
		summary.Duration = time.Since(started)
		w.printSummary(summary)
		return summary, nil
	}

	outcome, err := w.Purge(ctx, req.Bucket, candidates)
	summary.Outcome = outcome
	summary.Deleted = outcome.Deleted
	summary.Failed = outcome.Failed
	summary.Duration = time.Since(started)

	var abort *BatchAbortError
	if errors.As(err, &abort) {
		summary.State = StateAborted
	} else {
		summary.State = StateDone
	}
	w.printSummary(summary)

	return summary, err
}

// Scan lists every version and delete marker under req.Prefix and returns
// those matching the request filter in listing order.
func (w *Workflow) Scan(ctx context.Context, req Request) (CandidateSet, error) {
	if req.Bucket == "" {
		return nil, invalidArgument("bucket name is required")
	}
	if req.Prefix == "" {
		return nil, invalidArgument("key prefix is required")
	}

	if req.Search != "" {
		fmt.Fprintf(w.out, "Searching for objects containing '%s' under '%s' in bucket '%s'...\n", req.Search, req.Prefix, req.Bucket)
	} else {
		fmt.Fprintf(w.out, "Searching for all object versions under '%s' in bucket '%s'...\n", req.Prefix, req.Bucket)
	}

	var (
		candidates CandidateSet
		cursor     *Cursor
		pages      int
	)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page, err := w.backend.ListObjectVersions(ctx, req.Bucket, req.Prefix, cursor)
		if err != nil {
			return nil, &BackendError{Op: "list", Bucket: req.Bucket, Err: err}
		}
		if page == nil {
			break
		}
		pages++

		matched := 0
		for _, ref := range page.Versions {
			if matches(req, ref) {
				candidates = append(candidates, ref)
				matched++
			}
		}
		for _, ref := range page.DeleteMarkers {
			if matches(req, ref) {
				candidates = append(candidates, ref)
				matched++
			}
		}

		w.log.Debug().
			Str("bucket", req.Bucket).
			Int("page", pages).
			Int("versions", len(page.Versions)).
			Int("delete_markers", len(page.DeleteMarkers)).
			Int("matched", matched).
			Msg("listed page")

		if page.Next == nil {
			break
		}
		if cursor != nil && *page.Next == *cursor {
			return nil, &BackendError{
				Op:     "list",
				Bucket: req.Bucket,
				Err:    fmt.Errorf("listing cursor did not advance past key %q", cursor.KeyMarker),
			}
		}
		next := *page.Next
		cursor = &next
	}

	w.log.Debug().Str("bucket", req.Bucket).Int("pages", pages).Int("candidates", len(candidates)).Msg("scan complete")
	return candidates, nil
}

// Report prints the candidates. It returns false, after printing a notice,
// when there is nothing to delete.
func (w *Workflow) Report(req Request, candidates CandidateSet) bool {
	if len(candidates) == 0 {
		if req.Search != "" {
			fmt.Fprintf(w.out, "No objects found containing '%s' in '%s/%s'.\n", req.Search, req.Bucket, req.Prefix)
		} else {
			fmt.Fprintf(w.out, "No objects found in '%s/%s'.\n", req.Bucket, req.Prefix)
		}
		return false
	}

	mode := "EXECUTION"
	if req.DryRun {
		mode = "DRY-RUN"
	}
	fmt.Fprintf(w.out, "Objects to delete (%s):\n", mode)
	for _, c := range candidates {
		if c.DeleteMarker {
			fmt.Fprintf(w.out, "  Key: %s, VersionId: %s [delete marker]\n", c.Key, c.VersionID)
			continue
		}
		fmt.Fprintf(w.out, "  Key: %s, VersionId: %s\n", c.Key, c.VersionID)
	}

	if req.DryRun {
		fmt.Fprintln(w.out, "Dry-run mode enabled. No objects have been deleted.")
	}
	return true
}

func (w *Workflow) printSummary(s *Summary) {
	fmt.Fprintf(w.out, "Summary: found=%d deleted=%d failed=%d\n", s.Found, s.Deleted, s.Failed)
}

func matches(req Request, ref ObjectVersionRef) bool {
	if !strings.HasPrefix(ref.Key, req.Prefix) {
		return false
	}
	if req.Search != "" && !strings.Contains(ref.Key, req.Search) {
		return false
	}
	if req.KeepLatest && ref.IsLatest {
		return false
	}
	return true
}
