package purge

import (
	"context"
	"errors"
	"fmt"
)

// Purge deletes candidates in consecutive batches, one batch at a time.
//
// Per-object failures reported by the backend are recorded in the outcome
// and returned, joined, as *PartialBatchFailure errors; later batches still
// run. A failed call or a cancelled context stops the purge with a
// *BatchAbortError. Nothing is retried.
func (w *Workflow) Purge(ctx context.Context, bucket string, candidates CandidateSet) (*Outcome, error) {
	batches := splitIntoBatches(candidates, w.batchSize)
	outcome := &Outcome{
		Batches:      make([]BatchResult, 0, len(batches)),
		BatchesTotal: len(batches),
	}
	if len(batches) == 0 {
		return outcome, nil
	}

	fmt.Fprintf(w.out, "Deleting %d objects in batches of %d...\n", len(candidates), w.batchSize)

	var partial []error
	for i, batch := range batches {
		if err := ctx.Err(); err != nil {
			fmt.Fprintf(w.out, "Deletion canceled before batch %d.\n", i+1)
			return outcome, &BatchAbortError{Completed: outcome.BatchesCompleted, Total: len(batches), Err: err}
		}

		out, err := w.deleteBatch(ctx, bucket, batch)
		if err != nil {
			if out != nil {
				outcome.Deleted += len(out.Deleted)
			}
			fmt.Fprintf(w.out, "Batch %d failed: %v\n", i+1, err)
			return outcome, &BatchAbortError{Completed: outcome.BatchesCompleted, Total: len(batches), Err: err}
		}

		outcome.Deleted += len(out.Deleted)
		outcome.Failed += len(out.Errors)
		outcome.BatchesCompleted++

		res := BatchResult{
			Index:        i + 1,
			Size:         len(batch),
			Deleted:      len(out.Deleted),
			RunningTotal: outcome.Deleted,
			Errors:       out.Errors,
		}
		outcome.Batches = append(outcome.Batches, res)

		fmt.Fprintf(w.out, "Deleted %d objects in batch %d (total %d)\n", res.Deleted, res.Index, res.RunningTotal)
		for _, de := range out.Errors {
			fmt.Fprintf(w.out, "  Failed Key: %s, VersionId: %s: %s: %s\n", de.Ref.Key, de.Ref.VersionID, de.Code, de.Message)
		}
		if len(out.Errors) > 0 {
			partial = append(partial, &PartialBatchFailure{Batch: res.Index, Deleted: res.Deleted, Errors: out.Errors})
		}

		w.log.Debug().
			Str("bucket", bucket).
			Int("batch", res.Index).
			Int("size", res.Size).
			Int("deleted", res.Deleted).
			Int("failed", len(res.Errors)).
			Msg("batch deleted")
	}

	fmt.Fprintln(w.out, "Deletion complete.")
	return outcome, errors.Join(partial...)
}

func (w *Workflow) deleteBatch(ctx context.Context, bucket string, batch []ObjectVersionRef) (*DeleteOutput, error) {
	if w.strategy == StrategySingle {
		return w.deleteEach(ctx, bucket, batch)
	}

	out, err := w.backend.DeleteObjects(ctx, bucket, batch)
	if err != nil {
		return nil, &BackendError{Op: "delete-objects", Bucket: bucket, Err: err}
	}
	if out == nil {
		out = &DeleteOutput{}
	}
	return out, nil
}

// deleteEach removes refs one call at a time. The first failing call stops
// the batch; refs deleted before it are returned with the error.
func (w *Workflow) deleteEach(ctx context.Context, bucket string, batch []ObjectVersionRef) (*DeleteOutput, error) {
	out := &DeleteOutput{Deleted: make([]ObjectVersionRef, 0, len(batch))}
	for _, ref := range batch {
		fmt.Fprintf(w.out, "Deleting Key: %s, VersionId: %s\n", ref.Key, ref.VersionID)
		if err := w.backend.DeleteObject(ctx, bucket, ref); err != nil {
			return out, &BackendError{Op: "delete-object", Bucket: bucket, Key: ref.Key, Err: err}
		}
		out.Deleted = append(out.Deleted, ref)
	}
	return out, nil
}

func splitIntoBatches(refs []ObjectVersionRef, size int) [][]ObjectVersionRef {
	if size <= 0 || size > MaxBatchSize {
		size = MaxBatchSize
	}
	batches := make([][]ObjectVersionRef, 0, (len(refs)+size-1)/size)
	for i := 0; i < len(refs); i += size {
		end := min(i+size, len(refs))
		batches = append(batches, refs[i:end])
	}
	return batches
}
