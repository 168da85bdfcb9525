package escrow

import "github.com/go-co-op/gocron/v2"

type job interface {
	GetName() string
	GetSchedule() gocron.JobDefinition
	StartImmediately() bool
	Execute()
}

// sweepJob is the durable path to release: every locked payout past its delay
// is released here even if its timer was lost.
type sweepJob struct {
	s *Scheduler
}

func (j *sweepJob) GetName() string { return "escrow_sweep" }

func (j *sweepJob) GetSchedule() gocron.JobDefinition {
	return gocron.DurationJob(j.s.cfg.SweepInterval)
}

func (j *sweepJob) StartImmediately() bool { return true }

func (j *sweepJob) Execute() {
	if err := j.s.Sweep(j.s.context()); err != nil {
		j.s.report(j.GetName(), err)
	}
}

type expiryJob struct {
	s *Scheduler
}

func (j *expiryJob) GetName() string { return "invitation_expiry" }

func (j *expiryJob) GetSchedule() gocron.JobDefinition {
	return gocron.DurationJob(j.s.cfg.ExpiryInterval)
}

func (j *expiryJob) StartImmediately() bool { return false }

func (j *expiryJob) Execute() {
	if err := j.s.ExpireInvitations(j.s.context()); err != nil {
		j.s.report(j.GetName(), err)
	}
}
