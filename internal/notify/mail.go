package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/ganot/teamescrow/internal/domain/payout"
	"github.com/ganot/teamescrow/internal/domain/profile"
	"github.com/ganot/teamescrow/internal/domain/project"
	"github.com/ganot/teamescrow/internal/domain/task"
	"gopkg.in/gomail.v2"
)

// ProfileReader resolves a user's email address.
type ProfileReader interface {
	GetProfile(ctx context.Context, userID string) (*profile.Profile, error)
}

type mailSender interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPConfig configures outgoing mail.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
}

var mailSubjects = map[string]string{
	project.EventInvitation:    "You have been invited to a project team",
	project.EventRefund:        "Project budget refunded",
	task.EventTaskRefund:       "Task amount refunded",
	payout.EventPayoutReleased: "Payout released",
}

// Mail emails the events users act on. Other events are ignored.
type Mail struct {
	sender   mailSender
	profiles ProfileReader
	from     string
	logger   *slog.Logger
}

// NewMail creates a Mail notifier sending through SMTP.
func NewMail(cfg SMTPConfig, profiles ProfileReader, logger *slog.Logger) *Mail {
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	return newMail(d, profiles, formatFrom(cfg), logger)
}

func newMail(sender mailSender, profiles ProfileReader, from string, logger *slog.Logger) *Mail {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mail{sender: sender, profiles: profiles, from: from, logger: logger}
}

func formatFrom(cfg SMTPConfig) string {
	if cfg.FromName == "" {
		return cfg.From
	}
	return fmt.Sprintf("%s <%s>", cfg.FromName, cfg.From)
}

func (m *Mail) Notify(ctx context.Context, userID, event string, payload map[string]any) error {
	subject, ok := mailSubjects[event]
	if !ok {
		return nil
	}
	p, err := m.profiles.GetProfile(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to resolve recipient: %w", err)
	}
	if p.Email == "" {
		m.logger.DebugContext(ctx, "recipient has no email", "user_id", userID, "event", event)
		return nil
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", p.Email)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", mailBody(p.Name, subject, payload))

	if err := m.sender.DialAndSend(msg); err != nil {
		return fmt.Errorf("error sending email: %w", err)
	}
	return nil
}

func mailBody(name, subject string, payload map[string]any) string {
	var b strings.Builder
	if name != "" {
		fmt.Fprintf(&b, "Hi %s,\n\n", name)
	}
	b.WriteString(subject)
	b.WriteString(".\n\n")

	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %v\n", k, payload[k])
	}
	return b.String()
}
