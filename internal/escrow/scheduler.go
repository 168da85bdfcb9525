// Package escrow runs the background work that moves escrowed money: delayed
// payout releases, the durable release sweep, outbox replay and invitation
// expiry.
package escrow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
)

const (
	DefaultSweepInterval  = time.Minute
	DefaultExpiryInterval = time.Hour
	DefaultReplayBatch    = 200

	releaseTag = "release"
)

// PayoutReleaser releases locked payouts.
type PayoutReleaser interface {
	ReleaseIfLocked(ctx context.Context, payoutID string) (bool, error)
	ReleaseDue(ctx context.Context, now time.Time) (int, error)
}

// LedgerReplayer retries balance adjustments that never reached the directory.
type LedgerReplayer interface {
	ReplayPending(ctx context.Context, limit int) (int, error)
}

// InvitationExpirer expires stale team invitations.
type InvitationExpirer interface {
	ExpireInvitations(ctx context.Context, now time.Time) (int, error)
}

// Config tunes the job cadence.
type Config struct {
	SweepInterval  time.Duration
	ExpiryInterval time.Duration
	ReplayBatch    int
}

// Deps are the services the jobs drive.
type Deps struct {
	Payouts     PayoutReleaser
	Ledger      LedgerReplayer
	Invitations InvitationExpirer
	Reporter    Reporter
}

// Scheduler owns the gocron scheduler and the escrow jobs.
type Scheduler struct {
	cron   gocron.Scheduler
	deps   Deps
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	// ctx is cancelled by Stop so in-flight jobs abort.
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Scheduler. Jobs run once Start is called.
func New(deps Deps, cfg Config, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if cfg.ExpiryInterval <= 0 {
		cfg.ExpiryInterval = DefaultExpiryInterval
	}
	if cfg.ReplayBatch <= 0 {
		cfg.ReplayBatch = DefaultReplayBatch
	}
	if deps.Reporter == nil {
		deps.Reporter = NopReporter{}
	}

	cron, err := gocron.NewScheduler(gocron.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:   cron,
		deps:   deps,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Start registers the recurring jobs and starts the scheduler. The release
// sweep runs immediately so releases missed while the process was down are
// caught up.
func (s *Scheduler) Start() error {
	jobs := []job{
		&sweepJob{s: s},
		&expiryJob{s: s},
	}
	for _, j := range jobs {
		opts := []gocron.JobOption{
			gocron.WithName(j.GetName()),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		}
		if j.StartImmediately() {
			opts = append(opts, gocron.WithStartAt(gocron.WithStartImmediately()))
		}
		if _, err := s.cron.NewJob(j.GetSchedule(), gocron.NewTask(j.Execute), opts...); err != nil {
			return fmt.Errorf("failed to register job %s: %w", j.GetName(), err)
		}
	}

	s.cron.Start()
	s.logger.Info("escrow scheduler started",
		"sweep_interval", s.cfg.SweepInterval,
		"expiry_interval", s.cfg.ExpiryInterval)
	return nil
}

// Stop cancels in-flight jobs and shuts the scheduler down.
func (s *Scheduler) Stop() error {
	s.cancel()
	if err := s.cron.Shutdown(); err != nil {
		return fmt.Errorf("failed to shutdown scheduler: %w", err)
	}
	s.logger.Info("escrow scheduler stopped")
	return nil
}

// ScheduleRelease arranges a best-effort release of payoutID at the given
// time. The sweep covers anything this misses.
func (s *Scheduler) ScheduleRelease(payoutID string, at time.Time) error {
	start := gocron.OneTimeJobStartImmediately()
	if at.After(s.now()) {
		start = gocron.OneTimeJobStartDateTime(at)
	}

	_, err := s.cron.NewJob(
		gocron.OneTimeJob(start),
		gocron.NewTask(s.releaseOne, payoutID),
		gocron.WithName("release:"+payoutID),
		gocron.WithTags(releaseTag),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule release of %s: %w", payoutID, err)
	}
	return nil
}

func (s *Scheduler) releaseOne(payoutID string) {
	released, err := s.deps.Payouts.ReleaseIfLocked(s.context(), payoutID)
	if err != nil {
		s.report("delayed_release", fmt.Errorf("release payout %s: %w", payoutID, err))
		return
	}
	if released {
		s.logger.Info("payout released on timer", "payout_id", payoutID)
	}
}

// Sweep releases due payouts and replays pending balance adjustments.
func (s *Scheduler) Sweep(ctx context.Context) error {
	var errs []error

	released, err := s.deps.Payouts.ReleaseDue(ctx, s.now())
	if err != nil {
		errs = append(errs, fmt.Errorf("release due payouts: %w", err))
	}
	replayed, err := s.deps.Ledger.ReplayPending(ctx, s.cfg.ReplayBatch)
	if err != nil {
		errs = append(errs, fmt.Errorf("replay adjustments: %w", err))
	}
	if released > 0 || replayed > 0 {
		s.logger.Info("escrow sweep", "released", released, "replayed", replayed)
	}
	return errors.Join(errs...)
}

// ExpireInvitations runs the invitation expiry pass.
func (s *Scheduler) ExpireInvitations(ctx context.Context) error {
	if s.deps.Invitations == nil {
		return nil
	}
	n, err := s.deps.Invitations.ExpireInvitations(ctx, s.now())
	if n > 0 {
		s.logger.Info("invitations expired", "count", n)
	}
	return err
}

func (s *Scheduler) context() context.Context {
	return s.ctx
}

func (s *Scheduler) report(job string, err error) {
	s.logger.Error("escrow job failed", "job", job, "error", err)
	s.deps.Reporter.Report(job, err)
}
