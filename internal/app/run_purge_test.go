package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dev-tams/s3purge/internal/config"
	"github.com/dev-tams/s3purge/internal/manifest"
	"github.com/dev-tams/s3purge/internal/notify"
	"github.com/dev-tams/s3purge/internal/purge"
	"github.com/dev-tams/s3purge/internal/storage"
	"github.com/dev-tams/s3purge/internal/testutil"
)

const testBucket = "my-bucket"

type namedBackend struct {
	*testutil.Backend
	name string
}

func (n namedBackend) Name() string { return n.name }

func boolPtr(b bool) *bool { return &b }

func testConfig(jobs ...config.JobConfig) *config.Config {
	return &config.Config{
		Version: 1,
		Storage: []config.StorageConfig{
			{Name: "primary", Type: "s3", S3: &config.S3Config{Region: "us-east-1"}},
		},
		Jobs: jobs,
	}
}

func scenarioBackend() *testutil.Backend {
	b := testutil.NewBackend()
	b.Put(testBucket, "a/x.txt")
	b.Put(testBucket, "a/error.txt")
	b.Put(testBucket, "a/error.txt")
	b.PutDeleteMarker(testBucket, "a/error.txt")
	b.Put(testBucket, "b/error.txt")
	return b
}

func runOpts(b *testutil.Backend, out *bytes.Buffer) RunOptions {
	return RunOptions{
		Out:      out,
		Backends: map[string]storage.Backend{"primary": namedBackend{Backend: b, name: "primary"}},
	}
}

func TestRunPurgeDefaultsToDryRun(t *testing.T) {
	b := scenarioBackend()
	cfg := testConfig(config.JobConfig{Name: "errors", Storage: "primary", Bucket: testBucket, Prefix: "a/", Search: "error"})

	var out bytes.Buffer
	results, err := RunPurge(context.Background(), cfg, runOpts(b, &out))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, notify.StatusSuccess, results[0].Status)
	assert.Equal(t, purge.StateDryRunDone, results[0].Summary.State)
	assert.Equal(t, 3, results[0].Summary.Found)
	assert.Zero(t, b.DeleteCalls())
	assert.Contains(t, out.String(), "Objects to delete (DRY-RUN):")
}

func TestRunPurgeDeletesWhenDryRunDisabled(t *testing.T) {
	b := scenarioBackend()
	cfg := testConfig(config.JobConfig{
		Name: "errors", Storage: "primary", Bucket: testBucket, Prefix: "a/", Search: "error",
		DryRun: boolPtr(false), Strategy: "single",
	})

	var out bytes.Buffer
	results, err := RunPurge(context.Background(), cfg, runOpts(b, &out))
	require.NoError(t, err)
	assert.Equal(t, 3, results[0].Summary.Deleted)
	assert.Len(t, b.DeleteObjectCalls, 3)
	assert.Equal(t, 2, b.Len(testBucket))
}

func TestRunPurgeDryRunOverride(t *testing.T) {
	b := scenarioBackend()
	cfg := testConfig(config.JobConfig{Name: "errors", Storage: "primary", Bucket: testBucket, Prefix: "a/", DryRun: boolPtr(false)})

	opts := runOpts(b, &bytes.Buffer{})
	opts.DryRun = boolPtr(true)
	_, err := RunPurge(context.Background(), cfg, opts)
	require.NoError(t, err)
	assert.Zero(t, b.DeleteCalls())
}

func TestRunPurgeSelectsJobs(t *testing.T) {
	b := scenarioBackend()
	cfg := testConfig(
		config.JobConfig{Name: "a", Storage: "primary", Bucket: testBucket, Prefix: "a/"},
		config.JobConfig{Name: "b", Storage: "primary", Bucket: testBucket, Prefix: "b/"},
	)

	opts := runOpts(b, &bytes.Buffer{})
	opts.Jobs = []string{"b"}
	results, err := RunPurge(context.Background(), cfg, opts)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].Job)

	opts.Jobs = []string{"missing"}
	_, err = RunPurge(context.Background(), cfg, opts)
	assert.Error(t, err)
}

func TestRunPurgeStopsAtFirstFailingJob(t *testing.T) {
	b := scenarioBackend()
	b.ListErr = errors.New("AccessDenied: access denied")
	cfg := testConfig(
		config.JobConfig{Name: "first", Storage: "primary", Bucket: testBucket, Prefix: "a/"},
		config.JobConfig{Name: "second", Storage: "primary", Bucket: testBucket, Prefix: "b/"},
	)

	results, err := RunPurge(context.Background(), cfg, runOpts(b, &bytes.Buffer{}))
	require.Error(t, err)
	assert.ErrorIs(t, err, b.ListErr)
	require.Len(t, results, 1)
	assert.Equal(t, notify.StatusFailure, results[0].Status)
	assert.Equal(t, 1, b.ListCalls)
}

func TestRunPurgeRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(config.JobConfig{Name: "bad", Storage: "primary", Bucket: testBucket})
	_, err := RunPurge(context.Background(), cfg, runOpts(testutil.NewBackend(), &bytes.Buffer{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prefix")
}

func TestRunPurgeWritesManifest(t *testing.T) {
	b := scenarioBackend()
	path := filepath.Join(t.TempDir(), "errors-{timestamp}.manifest")
	cfg := testConfig(config.JobConfig{
		Name: "errors", Storage: "primary", Bucket: testBucket, Prefix: "a/", Search: "error",
		DryRun: boolPtr(false),
		Manifest: config.ManifestConfig{
			Path:       path,
			Compress:   true,
			Encryption: config.EncryptionConfig{Enabled: true, Password: "pw"},
		},
	})

	results, err := RunPurge(context.Background(), cfg, runOpts(b, &bytes.Buffer{}))
	require.NoError(t, err)

	written := results[0].Manifest
	assert.NotContains(t, written, "{timestamp}")
	m, err := manifest.Read(written, "pw")
	require.NoError(t, err)
	assert.Equal(t, "errors", m.Header.Job)
	assert.False(t, m.Header.DryRun)
	assert.Len(t, m.Entries, 3)

	var out bytes.Buffer
	require.NoError(t, ShowManifest(written, "pw", &out))
	assert.Contains(t, out.String(), "Objects (EXECUTION, 3):")
	assert.Contains(t, out.String(), "[delete marker]")
}

func TestRunPurgeNotifies(t *testing.T) {
	var (
		mu     sync.Mutex
		events []notify.Event
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var e notify.Event
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&e))
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	b := scenarioBackend()
	cfg := testConfig(config.JobConfig{Name: "errors", Storage: "primary", Bucket: testBucket, Prefix: "a/", Search: "error", DryRun: boolPtr(false)})
	cfg.Notifications = []config.NotificationConfig{
		{Type: "webhook", On: []string{"both"}, Config: config.NotificationDetails{URL: srv.URL}},
	}

	_, err := RunPurge(context.Background(), cfg, runOpts(b, &bytes.Buffer{}))
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 1)
	e := events[0]
	assert.Equal(t, "errors", e.Job)
	assert.Equal(t, notify.StatusSuccess, e.Status)
	assert.Equal(t, string(purge.StateDone), e.State)
	assert.Equal(t, 3, e.Found)
	assert.Equal(t, 3, e.Deleted)
	assert.False(t, e.DryRun)
}

func TestRunPurgeReportsCanceledRun(t *testing.T) {
	b := scenarioBackend()
	cfg := testConfig(config.JobConfig{Name: "errors", Storage: "primary", Bucket: testBucket, Prefix: "a/", DryRun: boolPtr(false)})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := RunPurge(ctx, cfg, runOpts(b, &bytes.Buffer{}))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, err.Error(), "purge canceled for errors")
	assert.Zero(t, b.DeleteCalls())
	require.Len(t, results, 1)
}

func TestManifestPathExpandsTimestamp(t *testing.T) {
	ts := time.Date(2026, 2, 20, 2, 15, 4, 0, time.UTC)
	assert.Equal(t, "/m/errors-20260220_021504Z.jsonl", manifestPath("/m/errors-{timestamp}.jsonl", ts))
	assert.Equal(t, "/m/fixed.jsonl", manifestPath("/m/fixed.jsonl", ts))
}
