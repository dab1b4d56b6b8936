package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dev-tams/s3purge/internal/config"
	"github.com/dev-tams/s3purge/internal/notify"
)

func TestNotificationContextOutlivesCanceledRun(t *testing.T) {
	type key string
	const k key = "job"

	parent, stop := context.WithCancel(context.WithValue(context.Background(), k, "errors"))
	stop()

	ctx, cancel := notificationContext(parent)
	defer cancel()

	assert.NoError(t, ctx.Err())
	assert.Equal(t, "errors", ctx.Value(k))

	dl, ok := ctx.Deadline()
	require.True(t, ok)
	remaining := time.Until(dl)
	assert.Positive(t, remaining)
	assert.LessOrEqual(t, remaining, notificationTimeout)
}

func TestCanceledPurgeStillSendsFailureEvent(t *testing.T) {
	events := make(chan notify.Event, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var e notify.Event
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&e))
		events <- e
	}))
	defer srv.Close()

	cfg := testConfig(config.JobConfig{Name: "errors", Storage: "primary", Bucket: testBucket, Prefix: "a/", DryRun: boolPtr(false)})
	cfg.Notifications = []config.NotificationConfig{
		{Type: "webhook", On: []string{"failure"}, Config: config.NotificationDetails{URL: srv.URL}},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := RunPurge(ctx, cfg, runOpts(scenarioBackend(), &bytes.Buffer{}))
	require.Error(t, err)

	select {
	case e := <-events:
		assert.Equal(t, notify.StatusFailure, e.Status)
		assert.Equal(t, "errors", e.Job)
		assert.Contains(t, e.Error, "canceled")
	default:
		t.Fatal("expected a failure notification for the canceled run")
	}
}
