package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dev-tams/s3purge/internal/config"
	"github.com/dev-tams/s3purge/internal/schedule"
)

type daemonJob struct {
	name     string
	schedule schedule.CronSpec
}

// RunDaemon triggers scheduled jobs once per matching minute (UTC) until ctx
// is canceled. A failed run is logged and the daemon keeps going; a run that
// exceeds runTimeout stops it.
func RunDaemon(ctx context.Context, cfg *config.Config, opts RunOptions, runTimeout time.Duration) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	jobs, err := scheduledJobs(cfg, opts)
	if err != nil {
		return err
	}

	log := opts.Log
	log.Info().Int("jobs", len(jobs)).Msg("daemon started")
	for _, job := range jobs {
		log.Info().Str("job", job.name).Time("next_run", job.schedule.Next(time.Now().UTC())).Msg("job scheduled")
	}

	lastMinute := time.Time{}
	lastRunByJob := make(map[string]time.Time, len(jobs))

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("daemon: shutdown requested")
			return nil
		default:
		}

		now := time.Now().UTC()
		currentMinute := now.Truncate(time.Minute)
		if currentMinute.Equal(lastMinute) {
			sleepUntilNextPoll(ctx, 500*time.Millisecond)
			continue
		}
		lastMinute = currentMinute

		due := dueJobs(jobs, currentMinute, lastRunByJob)
		if len(due) == 0 {
			continue
		}

		log.Info().Strs("jobs", due).Time("at", currentMinute).Msg("daemon: triggering purge jobs")

		runCtx := ctx
		cancel := func() {}
		if runTimeout > 0 {
			runCtx, cancel = context.WithTimeout(ctx, runTimeout)
		}

		runOpts := opts
		runOpts.Jobs = due
		_, err := RunPurge(runCtx, cfg, runOpts)
		cancel()

		for _, name := range due {
			lastRunByJob[name] = currentMinute
		}

		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			if runTimeout > 0 && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("daemon run timed out after %s", runTimeout)
			}
			log.Error().Err(err).Strs("jobs", due).Msg("daemon: run failed")
		}
	}
}

func scheduledJobs(cfg *config.Config, opts RunOptions) ([]daemonJob, error) {
	selected, err := selectJobs(cfg, opts.Jobs)
	if err != nil {
		return nil, err
	}

	jobs := make([]daemonJob, 0, len(selected))
	for _, job := range selected {
		s := strings.TrimSpace(job.Schedule)
		if s == "" {
			opts.Log.Debug().Str("job", job.Name).Msg("daemon: skipped (empty schedule)")
			continue
		}

		spec, err := schedule.ParseCronSpec(s)
		if err != nil {
			return nil, fmt.Errorf("job %s: invalid schedule %q: %w", job.Name, s, err)
		}
		jobs = append(jobs, daemonJob{name: job.Name, schedule: spec})
	}

	if len(jobs) == 0 {
		return nil, fmt.Errorf("daemon: no jobs with a valid non-empty schedule")
	}
	return jobs, nil
}

// dueJobs returns the jobs matching minute that have not run in it yet.
func dueJobs(jobs []daemonJob, minute time.Time, lastRun map[string]time.Time) []string {
	due := make([]string, 0, len(jobs))
	for _, job := range jobs {
		if !job.schedule.Matches(minute) {
			continue
		}
		if lm, ok := lastRun[job.name]; ok && lm.Equal(minute) {
			continue
		}
		due = append(due, job.name)
	}
	return due
}

func sleepUntilNextPoll(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
