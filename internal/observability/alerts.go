package observability

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Level is an alert severity, matching the teacher's reliability.AlertLevel.
type Level string

const (
	LevelInfo     Level = "INFO"
	LevelWarning  Level = "WARNING"
	LevelError    Level = "ERROR"
	LevelCritical Level = "CRITICAL"
)

// Alert is one raised notification, kept in the append-only history.
type Alert struct {
	Type      string
	Level     Level
	Message   string
	Details   map[string]any
	Timestamp time.Time
}

// EmailSender delivers a rendered alert. Satisfied by *SMTPTransport.
type EmailSender interface {
	Send(subject, body string) error
}

// SMSSender delivers a short alert text. Satisfied by *HTTPSMSTransport.
type SMSSender interface {
	Send(text string) error
}

// Publisher raises alerts with per-type cooldown suppression and routes
// ERROR/CRITICAL alerts to configured transports. Transport failures are
// logged, never returned to the caller: a misconfigured mail server must
// not block a stop-loss from executing.
type Publisher struct {
	mu       sync.Mutex
	history  []Alert
	lastSent map[string]time.Time
	cooldown time.Duration
	email    EmailSender
	sms      SMSSender
	log      zerolog.Logger
	now      func() time.Time
}

// NewPublisher creates a Publisher. email and sms may be nil, in which
// case the corresponding transport is simply skipped.
func NewPublisher(cooldown time.Duration, email EmailSender, sms SMSSender, log zerolog.Logger) *Publisher {
	return &Publisher{
		lastSent: make(map[string]time.Time),
		cooldown: cooldown,
		email:    email,
		sms:      sms,
		log:      log.With().Str("component", "alert_publisher").Logger(),
		now:      time.Now,
	}
}

// Send raises an alert of the given type/level. Unless force is true, a
// second alert of the same type within the cooldown window is suppressed
// and Send returns false. ERROR and CRITICAL alerts trigger the email
// transport; CRITICAL additionally triggers SMS if configured.
func (p *Publisher) Send(alertType string, level Level, message string, details map[string]any, force bool) bool {
	p.mu.Lock()
	now := p.now()
	if !force {
		if last, ok := p.lastSent[alertType]; ok && now.Sub(last) < p.cooldown {
			p.mu.Unlock()
			p.log.Debug().Str("type", alertType).Msg("alert suppressed by cooldown")
			return false
		}
	}

	alert := Alert{Type: alertType, Level: level, Message: message, Details: details, Timestamp: now}
	p.history = append(p.history, alert)
	p.lastSent[alertType] = now
	p.mu.Unlock()

	event := p.log.Info()
	switch level {
	case LevelCritical:
		event = p.log.Error()
	case LevelError:
		event = p.log.Error()
	case LevelWarning:
		event = p.log.Warn()
	}
	event.Str("type", alertType).Str("level", string(level)).Interface("details", details).Msg(message)

	if level == LevelError || level == LevelCritical {
		p.sendEmail(alert)
		if level == LevelCritical {
			p.sendSMS(alert)
		}
	}
	return true
}

func (p *Publisher) sendEmail(alert Alert) {
	if p.email == nil {
		return
	}
	subject := "[" + string(alert.Level) + "] " + alert.Type
	if err := p.email.Send(subject, alert.Message); err != nil {
		p.log.Warn().Err(err).Str("type", alert.Type).Msg("alert email transport failed")
	}
}

func (p *Publisher) sendSMS(alert Alert) {
	if p.sms == nil {
		return
	}
	text := "[" + string(alert.Level) + "] " + alert.Type + ": " + alert.Message
	if err := p.sms.Send(text); err != nil {
		p.log.Warn().Err(err).Str("type", alert.Type).Msg("alert sms transport failed")
	}
}

// Info raises an INFO alert, subject to the normal per-title cooldown
// (repeated identical trade-execution notices within the window are
// suppressed) and never routed to a transport. Satisfies engine.Alerts.
func (p *Publisher) Info(title, message string) {
	p.Send(title, LevelInfo, message, nil, false)
}

// Critical raises a CRITICAL alert, always bypassing cooldown (matching
// spec's stop-loss / daily-loss-limit force semantics) since these fire
// on conditions the operator must not miss even if the same title alerted
// recently. Satisfies engine.Alerts and risk.AlertPublisher.
func (p *Publisher) Critical(title, message string) {
	p.Send(title, LevelCritical, message, nil, true)
}

// Warning raises a WARNING alert, subject to cooldown.
func (p *Publisher) Warning(alertType, message string, details map[string]any) bool {
	return p.Send(alertType, LevelWarning, message, details, false)
}

// Error raises an ERROR alert, subject to cooldown.
func (p *Publisher) Error(alertType, message string, details map[string]any) bool {
	return p.Send(alertType, LevelError, message, details, false)
}

// History returns a defensive copy of every alert raised this process
// lifetime, oldest first.
func (p *Publisher) History() []Alert {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Alert, len(p.history))
	copy(out, p.history)
	return out
}
