package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/ganot/teamescrow/internal/domain/payout"
	"github.com/ganot/teamescrow/internal/domain/profile"
	"github.com/ganot/teamescrow/internal/domain/project"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"
)

type fakePublisher struct {
	channel string
	message []byte
	err     error
}

func (f *fakePublisher) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	f.channel = channel
	f.message, _ = message.([]byte)
	cmd := redis.NewIntCmd(ctx)
	if f.err != nil {
		cmd.SetErr(f.err)
	} else {
		cmd.SetVal(1)
	}
	return cmd
}

func TestRedis_PublishesEnvelope(t *testing.T) {
	pub := &fakePublisher{}
	r := newRedis(pub, "")
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	r.now = func() time.Time { return fixed }

	err := r.Notify(context.Background(), "f1", payout.EventPayoutReleased, map[string]any{"amount": "300.00"})
	require.NoError(t, err)
	require.Equal(t, "notifications:f1", pub.channel)

	var env Envelope
	require.NoError(t, json.Unmarshal(pub.message, &env))
	require.Equal(t, "f1", env.UserID)
	require.Equal(t, payout.EventPayoutReleased, env.Event)
	require.Equal(t, "300.00", env.Payload["amount"])
	require.True(t, fixed.Equal(env.SentAt))

	pub.err = errors.New("connection refused")
	require.Error(t, r.Notify(context.Background(), "f1", "x", nil))
}

type fakeSender struct {
	sent []*gomail.Message
}

func (f *fakeSender) DialAndSend(m ...*gomail.Message) error {
	f.sent = append(f.sent, m...)
	return nil
}

type fakeProfiles map[string]profile.Profile

func (f fakeProfiles) GetProfile(_ context.Context, userID string) (*profile.Profile, error) {
	p, ok := f[userID]
	if !ok {
		return nil, errors.New("not found")
	}
	return &p, nil
}

func TestMail_SendsSelectedEvents(t *testing.T) {
	sender := &fakeSender{}
	profiles := fakeProfiles{
		"f1": {UserID: "f1", Name: "Ada", Email: "ada@example.com"},
		"f2": {UserID: "f2"},
	}
	m := newMail(sender, profiles, "Escrow <noreply@example.com>", nil)
	ctx := context.Background()

	require.NoError(t, m.Notify(ctx, "f1", project.EventInvitation, map[string]any{"project_id": "p1"}))
	require.Len(t, sender.sent, 1)
	require.Equal(t, []string{"ada@example.com"}, sender.sent[0].GetHeader("To"))
	require.Equal(t, []string{"You have been invited to a project team"}, sender.sent[0].GetHeader("Subject"))

	// Not an emailed event.
	require.NoError(t, m.Notify(ctx, "f1", project.EventStatusChanged, nil))
	// No address on file.
	require.NoError(t, m.Notify(ctx, "f2", project.EventInvitation, nil))
	require.Len(t, sender.sent, 1)

	require.Error(t, m.Notify(ctx, "ghost", project.EventRefund, nil))
}

type failing struct{}

func (failing) Notify(context.Context, string, string, map[string]any) error {
	return errors.New("down")
}

type counting struct{ n int }

func (c *counting) Notify(context.Context, string, string, map[string]any) error {
	c.n++
	return nil
}

func TestMulti_DeliversToAll(t *testing.T) {
	c := &counting{}
	m := NewMulti(nil, failing{}, c, NewLog(nil))

	err := m.Notify(context.Background(), "u1", "e", nil)
	require.Error(t, err)
	require.Equal(t, 1, c.n)
}
