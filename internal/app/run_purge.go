package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dev-tams/s3purge/internal/config"
	"github.com/dev-tams/s3purge/internal/manifest"
	"github.com/dev-tams/s3purge/internal/notify"
	"github.com/dev-tams/s3purge/internal/purge"
	"github.com/dev-tams/s3purge/internal/storage"
)

const notificationTimeout = 5 * time.Second

// RunOptions selects and adjusts the jobs of a run.
type RunOptions struct {
	// Jobs limits the run to these job names, in config order. Empty runs
	// every job.
	Jobs []string
	// DryRun, when set, overrides every selected job's dry_run.
	DryRun *bool
	// Out receives the human-readable report. Default is os.Stdout.
	Out io.Writer
	Log zerolog.Logger
	// Backends replaces the backends built from cfg.Storage.
	Backends map[string]storage.Backend
}

type JobResult struct {
	Job      string
	Storage  string
	Status   string
	Summary  *purge.Summary
	Manifest string
	Duration time.Duration
	Err      error
}

// RunPurge runs the selected jobs one after another and stops at the first
// job that fails. Every finished job is reported to the notifiers.
func RunPurge(ctx context.Context, cfg *config.Config, opts RunOptions) ([]JobResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}

	jobs, err := selectJobs(cfg, opts.Jobs)
	if err != nil {
		return nil, err
	}

	backends := opts.Backends
	if backends == nil {
		usedStorage := make(map[string]struct{}, len(jobs))
		for _, job := range jobs {
			usedStorage[job.Storage] = struct{}{}
		}
		backends, err = storage.FromConfigByNames(ctx, cfg, usedStorage)
		if err != nil {
			return nil, err
		}
	}

	dispatcher, err := notify.NewDispatcher(cfg.Notifications)
	if err != nil {
		return nil, err
	}

	results := make([]JobResult, 0, len(jobs))
	for _, job := range jobs {
		if opts.DryRun != nil {
			job.DryRun = opts.DryRun
		}

		res := runJob(ctx, job, backends, opts)
		results = append(results, res)
		notifyResult(ctx, dispatcher, job, res, opts.Log)

		if res.Err != nil {
			return results, res.Err
		}
	}

	return results, nil
}

func runJob(ctx context.Context, job config.JobConfig, backends map[string]storage.Backend, opts RunOptions) JobResult {
	started := time.Now().UTC()
	log := opts.Log.With().Str("job", job.Name).Str("storage", job.Storage).Logger()

	res := JobResult{Job: job.Name, Storage: job.Storage, Status: notify.StatusFailure}

	backend, ok := backends[job.Storage]
	if !ok {
		res.Err = fmt.Errorf("job %s: storage %q not found", job.Name, job.Storage)
		res.Duration = time.Since(started)
		return res
	}

	strategy, err := purge.ParseStrategy(job.Strategy)
	if err != nil {
		res.Err = fmt.Errorf("job %s: %w", job.Name, err)
		res.Duration = time.Since(started)
		return res
	}

	wfOpts := []purge.Option{
		purge.WithOutput(opts.Out),
		purge.WithLogger(log),
		purge.WithStrategy(strategy),
	}
	if job.BatchSize > 0 {
		wfOpts = append(wfOpts, purge.WithBatchSize(job.BatchSize))
	}
	if job.Manifest.Path != "" {
		res.Manifest = manifestPath(job.Manifest.Path, started)
		wfOpts = append(wfOpts, purge.WithCandidateHook(manifestHook(job, res.Manifest, log)))
	}

	req := jobRequest(job)
	log.Info().
		Str("bucket", req.Bucket).
		Str("prefix", req.Prefix).
		Str("search", req.Search).
		Bool("dry_run", req.DryRun).
		Str("strategy", string(strategy)).
		Msg("purge started")

	summary, err := purge.New(backend, wfOpts...).Run(ctx, req)
	res.Summary = summary
	res.Duration = time.Since(started)

	if err != nil {
		switch {
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			res.Err = fmt.Errorf("purge timed out for %s: %w", job.Name, err)
		case errors.Is(ctx.Err(), context.Canceled):
			res.Err = fmt.Errorf("purge canceled for %s: %w", job.Name, err)
		default:
			res.Err = fmt.Errorf("purge failed for %s: %w", job.Name, err)
		}
		log.Error().Err(err).Dur("duration", res.Duration).Msg("purge failed")
		return res
	}

	res.Status = notify.StatusSuccess
	log.Info().
		Str("state", string(summary.State)).
		Int("found", summary.Found).
		Int("deleted", summary.Deleted).
		Dur("duration", res.Duration.Round(time.Millisecond)).
		Msg("purge finished")
	return res
}

func jobRequest(job config.JobConfig) purge.Request {
	return purge.Request{
		Bucket:     job.Bucket,
		Prefix:     job.Prefix,
		Search:     job.Search,
		DryRun:     job.IsDryRun(),
		KeepLatest: job.KeepLatest,
	}
}

func manifestHook(job config.JobConfig, path string, log zerolog.Logger) purge.CandidateHook {
	return func(req purge.Request, candidates purge.CandidateSet) error {
		opt := manifest.Options{Compress: job.Manifest.Compress}
		if job.Manifest.Encryption.Enabled {
			opt.Password = job.Manifest.Encryption.Password
		}
		if err := manifest.Write(path, manifest.HeaderFor(job.Name, req, len(candidates)), candidates, opt); err != nil {
			return err
		}
		log.Info().Str("manifest", path).Int("entries", len(candidates)).Msg("manifest written")
		return nil
	}
}

// manifestPath expands {timestamp} so scheduled runs keep one file each.
func manifestPath(path string, t time.Time) string {
	return strings.ReplaceAll(path, "{timestamp}", t.UTC().Format("20060102_150405Z"))
}

func selectJobs(cfg *config.Config, names []string) ([]config.JobConfig, error) {
	if len(names) == 0 {
		if len(cfg.Jobs) == 0 {
			return nil, fmt.Errorf("no jobs configured")
		}
		return cfg.Jobs, nil
	}

	want := make(map[string]struct{}, len(names))
	for _, n := range names {
		if _, ok := cfg.Job(n); !ok {
			return nil, fmt.Errorf("job %q not found in config", n)
		}
		want[n] = struct{}{}
	}

	out := make([]config.JobConfig, 0, len(want))
	for _, job := range cfg.Jobs {
		if _, ok := want[job.Name]; ok {
			out = append(out, job)
		}
	}
	return out, nil
}

func notifyResult(ctx context.Context, dispatcher *notify.Dispatcher, job config.JobConfig, res JobResult, log zerolog.Logger) {
	errMsg := ""
	if res.Err != nil {
		errMsg = res.Err.Error()
	}

	event := notify.Event{
		Job:      res.Job,
		Storage:  res.Storage,
		Bucket:   job.Bucket,
		Prefix:   job.Prefix,
		Search:   job.Search,
		Status:   res.Status,
		DryRun:   job.IsDryRun(),
		Manifest: res.Manifest,
		Duration: res.Duration.Round(time.Millisecond).String(),
		Error:    errMsg,
	}
	if s := res.Summary; s != nil {
		event.State = string(s.State)
		event.Found = s.Found
		event.Deleted = s.Deleted
		event.Failed = s.Failed
	}

	notifyCtx, cancel := notificationContext(ctx)
	defer cancel()

	if err := dispatcher.Notify(notifyCtx, event); err != nil {
		log.Warn().Err(err).Str("job", res.Job).Str("status", res.Status).Msg("notification failed")
	}
}

func notificationContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return context.WithTimeout(context.Background(), notificationTimeout)
	}
	return context.WithTimeout(context.WithoutCancel(ctx), notificationTimeout)
}
