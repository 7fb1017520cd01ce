package resync

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/lilasstudio/crmlink/internal/audit"
	"github.com/lilasstudio/crmlink/internal/clock"
	identitydomain "github.com/lilasstudio/crmlink/internal/identity/domain"
	obsmetrics "github.com/lilasstudio/crmlink/internal/observability/metrics"
	"github.com/lilasstudio/crmlink/internal/observability/obscontext"
	pkgcachedomain "github.com/lilasstudio/crmlink/internal/pkgcache/domain"
	profiledomain "github.com/lilasstudio/crmlink/internal/profile/domain"
	"github.com/lilasstudio/crmlink/internal/ratelimit"
	"github.com/oklog/ulid/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	jobName = "bulk_resync"

	runLockKey = "resync:run"
)

// ErrRunInProgress means another process holds the run lock.
var ErrRunInProgress = errors.New("resync_run_in_progress")

// Options narrows one run; zero values fall back to the runner config.
type Options struct {
	BatchSize      int
	MaxProfiles    int
	OnlyUnresolved bool
}

type Params struct {
	fx.In

	Log      *zap.Logger
	Clock    clock.Clock
	Profiles profiledomain.Service
	Packages pkgcachedomain.Service
	Audit    audit.Recorder
	Locker   *ratelimit.Locker `optional:"true"`
	Config   Config
}

// Runner walks the profile set and refreshes each profile's package cache.
// It is the only component allowed to address "all profiles"; everything
// else in this codebase operates on a single profile at a time.
type Runner struct {
	log      *zap.Logger
	cfg      Config
	clock    clock.Clock
	profiles profiledomain.Service
	packages pkgcachedomain.Service
	audit    audit.Recorder
	locker   *ratelimit.Locker
}

func New(p Params) *Runner {
	return &Runner{
		log:      p.Log.Named("resync").With(zap.String("component", "resync")),
		cfg:      p.Config.withDefaults(),
		clock:    p.Clock,
		profiles: p.Profiles,
		packages: p.Packages,
		audit:    p.Audit,
		locker:   p.Locker,
	}
}

func (r *Runner) Run(ctx context.Context, opts Options) (Report, error) {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = r.cfg.BatchSize
	}
	maxProfiles := opts.MaxProfiles
	if maxProfiles <= 0 {
		maxProfiles = r.cfg.MaxProfilesPerRun
	}
	onlyUnresolved := opts.OnlyUnresolved || r.cfg.OnlyUnresolved

	start := r.clock.Now()
	report := Report{
		RunID:     ulid.MustNew(ulid.Timestamp(start), ulid.DefaultEntropy()).String(),
		StartedAt: start,
	}

	release, err := r.acquireRunLock(ctx)
	if err != nil {
		return report, err
	}
	defer release()

	ctx = obscontext.WithActor(ctx, "system", "resync")
	log := r.log.With(zap.String("run_id", report.RunID))
	metrics := obsmetrics.Sync()
	metrics.IncJobRun(jobName)

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, r.cfg.MaxInFlight)
	)

	pageToken := ""
	launched := 0
	done := false
	for !done {
		if err := ctx.Err(); err != nil {
			metrics.IncJobError(jobName, err)
			break
		}

		page, err := r.profiles.List(ctx, profiledomain.ListProfileRequest{
			PageToken:      pageToken,
			PageSize:       int32(batchSize),
			OnlyUnresolved: onlyUnresolved,
		})
		if err != nil {
			metrics.IncJobError(jobName, err)
			wg.Wait()
			report.Duration = r.clock.Now().Sub(start)
			return report, err
		}

		for _, profile := range page.Profiles {
			if maxProfiles > 0 && launched >= maxProfiles {
				done = true
				break
			}

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				done = true
			}
			if done {
				break
			}

			launched++
			wg.Add(1)
			go func(p profiledomain.Profile) {
				defer wg.Done()
				defer func() { <-sem }()

				result := r.syncOne(ctx, p)

				mu.Lock()
				switch {
				case result == nil:
					report.addSuccess()
					metrics.IncProfileResult(jobName, obsmetrics.ProfileResultSucceeded)
				case errors.Is(result, identitydomain.ErrUnresolvedIdentity):
					report.addSkip()
					metrics.IncProfileResult(jobName, obsmetrics.ProfileResultSkipped)
				default:
					report.addFailure(p.ID.String(), result.Error())
					metrics.IncProfileResult(jobName, obsmetrics.ProfileResultFailed)
				}
				mu.Unlock()
			}(profile)
		}

		if page.NextPageToken == "" {
			done = true
		}
		pageToken = page.NextPageToken
	}

	wg.Wait()
	report.Duration = r.clock.Now().Sub(start)
	metrics.ObserveJobDuration(jobName, report.Duration)

	r.audit.Record(ctx, audit.ActionResyncCompleted, 0, map[string]interface{}{
		"run_id":    report.RunID,
		"processed": report.Processed,
		"succeeded": report.Succeeded,
		"skipped":   report.Skipped,
		"failed":    report.Failed,
	})
	log.Info("resync run finished",
		zap.Int("processed", report.Processed),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
		zap.Duration("duration", report.Duration),
	)

	return report, nil
}

// RunForever drives periodic runs until the context ends.
func (r *Runner) RunForever(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := r.clock.Now().Add(r.cfg.RunInterval)
	metrics := obsmetrics.Sync()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		runLag := r.clock.Now().Sub(nextRun)
		if runLag > 0 {
			metrics.ObserveRunLoopLag(runLag)
		}
		if _, err := r.Run(ctx, Options{}); err != nil && !errors.Is(err, ErrRunInProgress) {
			r.log.Warn("resync run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(r.cfg.RunInterval)
	}
}

// syncOne refreshes a single profile with its own timeout so one slow or
// broken profile cannot take down the whole run.
func (r *Runner) syncOne(parent context.Context, profile profiledomain.Profile) error {
	ctx, cancel := context.WithTimeout(parent, r.cfg.ProfileTimeout)
	defer cancel()

	_, err := r.packages.Sync(ctx, profile.ID.String())
	if err != nil && !errors.Is(err, identitydomain.ErrUnresolvedIdentity) {
		r.log.Warn("profile resync failed",
			zap.String("profile_id", profile.ID.String()),
			zap.Error(err),
		)
	}
	return err
}

// acquireRunLock keeps concurrent schedulers from running the same sweep.
// Without redis there is nothing to coordinate with, so the lock is a no-op.
func (r *Runner) acquireRunLock(ctx context.Context) (func(), error) {
	if r.locker == nil {
		return func() {}, nil
	}
	token, ok, err := r.locker.TryLock(ctx, runLockKey, r.cfg.LockTTL)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrRunInProgress
	}
	return func() {
		_ = r.locker.Release(context.WithoutCancel(ctx), runLockKey, token)
	}, nil
}
