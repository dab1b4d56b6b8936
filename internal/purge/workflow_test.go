package purge_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dev-tams/s3purge/internal/purge"
	"github.com/dev-tams/s3purge/internal/testutil"
)

const bucket = "test-bucket"

func newWorkflow(b purge.Backend, opts ...purge.Option) (*purge.Workflow, *bytes.Buffer) {
	var out bytes.Buffer
	opts = append([]purge.Option{purge.WithOutput(&out)}, opts...)
	return purge.New(b, opts...), &out
}

func seed(b *testutil.Backend, prefix string, n int) {
	for i := 0; i < n; i++ {
		b.Put(bucket, fmt.Sprintf("%sobj-%05d.parquet", prefix, i))
	}
}

func TestScanFiltersBySearchString(t *testing.T) {
	b := testutil.NewBackend()
	b.Put(bucket, "a/x.txt")
	v1 := b.Put(bucket, "a/error.txt")
	v2 := b.Put(bucket, "a/error.txt")
	dm := b.PutDeleteMarker(bucket, "a/error.txt")
	b.Put(bucket, "b/error.txt")

	wf, _ := newWorkflow(b)
	got, err := wf.Scan(context.Background(), purge.Request{Bucket: bucket, Prefix: "a/", Search: "error"})
	require.NoError(t, err)
	require.Len(t, got, 3)

	ids := make(map[string]bool)
	markers := 0
	for _, ref := range got {
		assert.Equal(t, "a/error.txt", ref.Key)
		ids[ref.VersionID] = true
		if ref.DeleteMarker {
			markers++
		}
	}
	assert.True(t, ids[v1])
	assert.True(t, ids[v2])
	assert.True(t, ids[dm])
	assert.Equal(t, 1, markers)
}

func TestScanWithoutSearchMatchesEverythingUnderPrefix(t *testing.T) {
	b := testutil.NewBackend()
	b.Put(bucket, "logs/2024/a.log")
	b.Put(bucket, "logs/2024/b.log")
	b.PutDeleteMarker(bucket, "logs/2024/b.log")
	b.Put(bucket, "logs/2025/c.log")

	wf, _ := newWorkflow(b)
	got, err := wf.Scan(context.Background(), purge.Request{Bucket: bucket, Prefix: "logs/2024/"})
	require.NoError(t, err)
	assert.Len(t, got, 3)
	for _, ref := range got {
		assert.True(t, strings.HasPrefix(ref.Key, "logs/2024/"), ref.Key)
	}
}

func TestScanRejectsMissingArguments(t *testing.T) {
	tests := []struct {
		name string
		req  purge.Request
	}{
		{name: "empty prefix", req: purge.Request{Bucket: bucket}},
		{name: "empty bucket", req: purge.Request{Prefix: "a/"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := testutil.NewBackend()
			wf, out := newWorkflow(b)

			_, err := wf.Scan(context.Background(), tt.req)
			require.Error(t, err)
			assert.ErrorIs(t, err, purge.ErrInvalidArgument)
			assert.Zero(t, b.ListCalls)
			assert.Empty(t, out.String())
		})
	}
}

func TestScanFollowsCursorAcrossPages(t *testing.T) {
	b := testutil.NewBackend()
	b.PageSize = 7
	seed(b, "p/", 50)

	wf, _ := newWorkflow(b)
	got, err := wf.Scan(context.Background(), purge.Request{Bucket: bucket, Prefix: "p/"})
	require.NoError(t, err)
	assert.Len(t, got, 50)
	assert.Equal(t, 8, b.ListCalls)
}

func TestScanIsRepeatable(t *testing.T) {
	b := testutil.NewBackend()
	b.PageSize = 3
	seed(b, "p/", 10)
	b.PutDeleteMarker(bucket, "p/obj-00003.parquet")

	wf, _ := newWorkflow(b)
	req := purge.Request{Bucket: bucket, Prefix: "p/", Search: "obj-0000"}

	first, err := wf.Scan(context.Background(), req)
	require.NoError(t, err)
	second, err := wf.Scan(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestScanKeepLatestSkipsCurrentEntries(t *testing.T) {
	b := testutil.NewBackend()
	old := b.Put(bucket, "k/a")
	b.Put(bucket, "k/a")
	b.Put(bucket, "k/b")

	wf, _ := newWorkflow(b)
	got, err := wf.Scan(context.Background(), purge.Request{Bucket: bucket, Prefix: "k/", KeepLatest: true})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, old, got[0].VersionID)
}

func TestScanPropagatesBackendErrors(t *testing.T) {
	b := testutil.NewBackend()
	denied := errors.New("AccessDenied: access denied")
	b.ListErr = denied

	wf, _ := newWorkflow(b)
	_, err := wf.Scan(context.Background(), purge.Request{Bucket: bucket, Prefix: "a/"})
	require.Error(t, err)
	assert.ErrorIs(t, err, denied)

	var be *purge.BackendError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "list", be.Op)
	assert.Equal(t, bucket, be.Bucket)
}

func TestScanUnknownBucket(t *testing.T) {
	wf, _ := newWorkflow(testutil.NewBackend())
	_, err := wf.Scan(context.Background(), purge.Request{Bucket: "missing", Prefix: "a/"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NoSuchBucket")
}

// laxBackend returns keys outside the requested prefix.
type laxBackend struct {
	*testutil.Backend
}

func (l laxBackend) ListObjectVersions(ctx context.Context, b, prefix string, c *purge.Cursor) (*purge.Page, error) {
	page, err := l.Backend.ListObjectVersions(ctx, b, prefix, c)
	if err != nil {
		return nil, err
	}
	page.Versions = append(page.Versions, purge.ObjectVersionRef{Key: "elsewhere/error.txt", VersionID: "x"})
	return page, nil
}

func TestScanDropsKeysOutsidePrefix(t *testing.T) {
	b := testutil.NewBackend()
	b.Put(bucket, "a/error.txt")

	wf, _ := newWorkflow(laxBackend{b})
	got, err := wf.Scan(context.Background(), purge.Request{Bucket: bucket, Prefix: "a/", Search: "error"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a/error.txt", got[0].Key)
}

// stuckBackend always returns the same cursor.
type stuckBackend struct {
	*testutil.Backend
}

func (s stuckBackend) ListObjectVersions(context.Context, string, string, *purge.Cursor) (*purge.Page, error) {
	return &purge.Page{Next: &purge.Cursor{KeyMarker: "k", VersionIDMarker: "1"}}, nil
}

func TestScanFailsWhenCursorDoesNotAdvance(t *testing.T) {
	wf, _ := newWorkflow(stuckBackend{testutil.NewBackend()})
	_, err := wf.Scan(context.Background(), purge.Request{Bucket: bucket, Prefix: "a/"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did not advance")
}

func TestScanStopsOnCanceledContext(t *testing.T) {
	b := testutil.NewBackend()
	seed(b, "p/", 5)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	wf, _ := newWorkflow(b)
	_, err := wf.Scan(ctx, purge.Request{Bucket: bucket, Prefix: "p/"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, b.ListCalls)
}

func TestReportEmpty(t *testing.T) {
	wf, out := newWorkflow(testutil.NewBackend())

	ok := wf.Report(purge.Request{Bucket: bucket, Prefix: "a/", Search: "error"}, nil)
	assert.False(t, ok)
	assert.Equal(t, "No objects found containing 'error' in 'test-bucket/a/'.\n", out.String())
}

func TestReportListsCandidatesWithMode(t *testing.T) {
	candidates := purge.CandidateSet{
		{Key: "a/error.txt", VersionID: "v1"},
		{Key: "a/error.txt", VersionID: "v2", DeleteMarker: true},
	}

	wf, out := newWorkflow(testutil.NewBackend())
	assert.True(t, wf.Report(purge.Request{Bucket: bucket, Prefix: "a/", DryRun: true}, candidates))
	assert.Equal(t, strings.Join([]string{
		"Objects to delete (DRY-RUN):",
		"  Key: a/error.txt, VersionId: v1",
		"  Key: a/error.txt, VersionId: v2 [delete marker]",
		"Dry-run mode enabled. No objects have been deleted.",
		"",
	}, "\n"), out.String())

	out.Reset()
	assert.True(t, wf.Report(purge.Request{Bucket: bucket, Prefix: "a/"}, candidates))
	assert.True(t, strings.HasPrefix(out.String(), "Objects to delete (EXECUTION):\n"))
	assert.NotContains(t, out.String(), "Dry-run")
}

func TestRunDryRunNeverDeletes(t *testing.T) {
	b := testutil.NewBackend()
	seed(b, "p/", 1500)

	wf, out := newWorkflow(b)
	summary, err := wf.Run(context.Background(), purge.Request{Bucket: bucket, Prefix: "p/", DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, purge.StateDryRunDone, summary.State)
	assert.Equal(t, 1500, summary.Found)
	assert.Zero(t, b.DeleteCalls())
	assert.Equal(t, 1500, b.Len(bucket))
	assert.Contains(t, out.String(), "Summary: found=1500 deleted=0 failed=0")
}

func TestRunEmptyNeverDeletes(t *testing.T) {
	for _, dryRun := range []bool{true, false} {
		t.Run(fmt.Sprintf("dry_run=%v", dryRun), func(t *testing.T) {
			b := testutil.NewBackend()
			b.Put(bucket, "a/x.txt")

			wf, out := newWorkflow(b)
			summary, err := wf.Run(context.Background(), purge.Request{Bucket: bucket, Prefix: "a/", Search: "nope", DryRun: dryRun})
			require.NoError(t, err)
			assert.Equal(t, purge.StateEmptyDone, summary.State)
			assert.Zero(t, b.DeleteCalls())
			assert.Contains(t, out.String(), "Summary: found=0 deleted=0 failed=0")
		})
	}
}

func TestRunDeletesScenario(t *testing.T) {
	b := testutil.NewBackend()
	b.Put(bucket, "a/x.txt")
	b.Put(bucket, "a/error.txt")
	b.Put(bucket, "a/error.txt")
	b.PutDeleteMarker(bucket, "a/error.txt")

	wf, _ := newWorkflow(b)
	summary, err := wf.Run(context.Background(), purge.Request{Bucket: bucket, Prefix: "a/", Search: "error"})
	require.NoError(t, err)
	assert.Equal(t, purge.StateDone, summary.State)
	assert.Equal(t, 3, summary.Found)
	assert.Equal(t, 3, summary.Deleted)
	assert.Equal(t, 1, b.Len(bucket))
	require.Len(t, b.DeleteObjectsCalls, 1)
	assert.Len(t, b.DeleteObjectsCalls[0], 3)
}

func TestRunCandidateHookErrorPreventsDeletion(t *testing.T) {
	b := testutil.NewBackend()
	b.Put(bucket, "a/x.txt")

	wf, _ := newWorkflow(b, purge.WithCandidateHook(func(purge.Request, purge.CandidateSet) error {
		return errors.New("disk full")
	}))
	_, err := wf.Run(context.Background(), purge.Request{Bucket: bucket, Prefix: "a/"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Zero(t, b.DeleteCalls())
}
