package escrow

import (
	"time"

	"github.com/getsentry/sentry-go"
)

// Reporter forwards background job failures to an error tracker.
type Reporter interface {
	Report(job string, err error)
}

// NopReporter drops reports.
type NopReporter struct{}

func (NopReporter) Report(string, error) {}

// SentryReporter sends job failures to Sentry tagged with the job name.
type SentryReporter struct {
	hub *sentry.Hub
}

// NewSentryReporter initializes the Sentry client for dsn.
func NewSentryReporter(dsn, environment string) (*SentryReporter, error) {
	err := sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: environment,
	})
	if err != nil {
		return nil, err
	}
	return &SentryReporter{hub: sentry.CurrentHub()}, nil
}

func (r *SentryReporter) Report(job string, err error) {
	r.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("job", job)
		r.hub.CaptureException(err)
	})
}

// Flush waits for buffered events to be delivered.
func (r *SentryReporter) Flush(timeout time.Duration) bool {
	return r.hub.Flush(timeout)
}
