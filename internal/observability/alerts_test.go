package observability

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEmail struct {
	sent []struct{ subject, body string }
	err  error
}

func (f *fakeEmail) Send(subject, body string) error {
	f.sent = append(f.sent, struct{ subject, body string }{subject, body})
	return f.err
}

type fakeSMS struct {
	sent []string
	err  error
}

func (f *fakeSMS) Send(text string) error {
	f.sent = append(f.sent, text)
	return f.err
}

func newFixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestSendSuppressesDuplicateWithinCooldown(t *testing.T) {
	email := &fakeEmail{}
	p := NewPublisher(5*time.Minute, email, nil, zerolog.Nop())
	epoch := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p.now = newFixedClock(epoch)

	sent := p.Send("api_error", LevelError, "first failure", nil, false)
	require.True(t, sent)

	p.now = newFixedClock(epoch.Add(1 * time.Minute))
	sent = p.Send("api_error", LevelError, "second failure", nil, false)
	assert.False(t, sent)
	assert.Len(t, email.sent, 1, "cooldown should have suppressed the second email")
}

func TestSendAllowsDuplicateAfterCooldownExpires(t *testing.T) {
	p := NewPublisher(1*time.Minute, nil, nil, zerolog.Nop())
	epoch := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p.now = newFixedClock(epoch)

	require.True(t, p.Send("api_error", LevelError, "first", nil, false))

	p.now = newFixedClock(epoch.Add(2 * time.Minute))
	assert.True(t, p.Send("api_error", LevelError, "second", nil, false))
}

func TestSendForceBypassesCooldown(t *testing.T) {
	email := &fakeEmail{}
	p := NewPublisher(time.Hour, email, nil, zerolog.Nop())
	epoch := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p.now = newFixedClock(epoch)

	require.True(t, p.Send("stop_loss_triggered", LevelCritical, "first", nil, true))
	require.True(t, p.Send("stop_loss_triggered", LevelCritical, "second", nil, true))
	assert.Len(t, email.sent, 2)
}

func TestCriticalAlwaysRoutesToEmailAndSMS(t *testing.T) {
	email := &fakeEmail{}
	sms := &fakeSMS{}
	p := NewPublisher(time.Minute, email, sms, zerolog.Nop())

	p.Critical("Auto-trading emergency stop", "daily loss limit breached")

	require.Len(t, email.sent, 1)
	require.Len(t, sms.sent, 1)
	assert.Contains(t, email.sent[0].subject, "CRITICAL")
}

func TestInfoNeverRoutesToTransports(t *testing.T) {
	email := &fakeEmail{}
	sms := &fakeSMS{}
	p := NewPublisher(time.Minute, email, sms, zerolog.Nop())

	p.Info("trade executed", "bought 10 AAPL at 150.00")

	assert.Empty(t, email.sent)
	assert.Empty(t, sms.sent)
}

func TestWarningDoesNotRouteToEmail(t *testing.T) {
	email := &fakeEmail{}
	p := NewPublisher(time.Minute, email, nil, zerolog.Nop())

	p.Warning("disk_space", "disk space running low", map[string]any{"available_gb": 8.0})

	assert.Empty(t, email.sent)
}

func TestErrorRoutesToEmailButNotSMS(t *testing.T) {
	email := &fakeEmail{}
	sms := &fakeSMS{}
	p := NewPublisher(time.Minute, email, sms, zerolog.Nop())

	p.Error("database_error", "integrity check failed", nil)

	assert.Len(t, email.sent, 1)
	assert.Empty(t, sms.sent)
}

func TestTransportFailureDoesNotPreventAlertFromBeingRecorded(t *testing.T) {
	email := &fakeEmail{err: assertErr("smtp down")}
	p := NewPublisher(time.Minute, email, nil, zerolog.Nop())

	sent := p.Send("database_error", LevelError, "boom", nil, false)
	assert.True(t, sent, "a transport failure must not be mistaken for cooldown suppression")
	assert.Len(t, p.History(), 1)
}

func TestHistoryReturnsDefensiveCopy(t *testing.T) {
	p := NewPublisher(time.Minute, nil, nil, zerolog.Nop())
	p.Send("x", LevelInfo, "one", nil, true)

	history := p.History()
	history[0].Message = "mutated"

	assert.Equal(t, "one", p.History()[0].Message)
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
