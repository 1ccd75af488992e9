// Package janitor periodically removes staged uploads that were abandoned
// by interrupted media sends.
package janitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	"github.com/google/uuid"

	"chatsync/pkg/logger"
)

// Purger removes staged files older than cutoff and reports how many it
// removed (or would remove, on a dry run).
type Purger interface {
	PurgeStaging(cutoff time.Time, dryRun bool) (int, error)
}

type Options struct {
	Cron       string
	StagingTTL time.Duration
	DryRun     bool

	// LockDir holds the lease file that keeps two processes sharing one
	// data directory from running at the same time.
	LockDir string
	LockTTL time.Duration
	Now     func() time.Time
}

type Janitor struct {
	purger Purger
	opts   Options
	lease  *fileLease

	mu      sync.Mutex
	running bool
}

func New(purger Purger, opts Options) (*Janitor, error) {
	if opts.Cron == "" {
		return nil, errors.New("janitor: empty cron expression")
	}
	if !gronx.New().IsValid(opts.Cron) {
		return nil, fmt.Errorf("janitor: invalid cron expression %q", opts.Cron)
	}
	if opts.StagingTTL <= 0 {
		opts.StagingTTL = time.Hour
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 5 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	j := &Janitor{purger: purger, opts: opts}
	if opts.LockDir != "" {
		j.lease = newFileLease(opts.LockDir, opts.Now)
	}
	return j, nil
}

// Start runs the schedule until ctx is done. The returned func stops it.
func (j *Janitor) Start(ctx context.Context) context.CancelFunc {
	ctx, cancel := context.WithCancel(ctx)
	logger.Info("janitor_enabled", "cron", j.opts.Cron, "staging_ttl", j.opts.StagingTTL, "dry_run", j.opts.DryRun)
	go j.scheduleLoop(ctx)
	return cancel
}

func (j *Janitor) scheduleLoop(ctx context.Context) {
	for {
		next, err := gronx.NextTickAfter(j.opts.Cron, j.opts.Now(), false)
		if err != nil {
			logger.Error("janitor_nexttick_failed", "cron", j.opts.Cron, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		wait := time.Until(next)
		if wait <= 0 {
			j.runJob()
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		select {
		case <-time.After(wait):
			j.runJob()
		case <-ctx.Done():
			return
		}
	}
}

// runJob skips a tick while the previous run is still going.
func (j *Janitor) runJob() {
	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		return
	}
	j.running = true
	j.mu.Unlock()

	defer func() {
		j.mu.Lock()
		j.running = false
		j.mu.Unlock()
	}()

	if _, err := j.RunOnce(); err != nil {
		logger.Error("janitor_run_error", "error", err)
	}
}

// RunOnce purges staged uploads older than the configured TTL. When another
// process holds the lease it does nothing and returns 0.
func (j *Janitor) RunOnce() (int, error) {
	if j.lease != nil {
		owner := uuid.NewString()
		ok, err := j.lease.Acquire(owner, j.opts.LockTTL)
		if err != nil {
			return 0, fmt.Errorf("lease acquire failed: %w", err)
		}
		if !ok {
			logger.Info("janitor_lease_not_acquired")
			return 0, nil
		}
		defer func() {
			if err := j.lease.Release(owner); err != nil {
				logger.Error("janitor_lease_release_error", "error", err)
			}
		}()
	}

	started := j.opts.Now()
	cutoff := started.Add(-j.opts.StagingTTL)
	n, err := j.purger.PurgeStaging(cutoff, j.opts.DryRun)
	runs.WithLabelValues(result(err)).Inc()
	if err != nil {
		return n, err
	}
	if !j.opts.DryRun {
		purged.Add(float64(n))
	}
	logger.Info("janitor_run_complete", "purged", n, "dry_run", j.opts.DryRun, "cutoff", cutoff.Format(time.RFC3339), "elapsed", time.Since(started))
	return n, nil
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
