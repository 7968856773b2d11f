package observability

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/smtp"
	"strings"
	"time"
)

// SMTPTransport emails alert bodies via net/smtp. No third-party mail
// client appears anywhere in the teacher or the rest of the pack (the
// original Python implementation uses stdlib smtplib directly too), so
// this is the one place in the observability package that reaches for
// the standard library over an ecosystem dependency — see DESIGN.md.
type SMTPTransport struct {
	addr string
	auth smtp.Auth
	from string
	to   []string
}

// NewSMTPTransport creates an email transport against an SMTP server
// requiring PLAIN auth (matching the teacher's smtp.gmail.com default).
func NewSMTPTransport(host string, port int, username, password, from string, to []string) *SMTPTransport {
	return &SMTPTransport{
		addr: fmt.Sprintf("%s:%d", host, port),
		auth: smtp.PlainAuth("", username, password, host),
		from: from,
		to:   to,
	}
}

// Send delivers one alert as a plain-text email.
func (t *SMTPTransport) Send(subject, body string) error {
	if len(t.to) == 0 {
		return fmt.Errorf("no alert recipients configured")
	}
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		t.from, strings.Join(t.to, ", "), subject, body)
	return smtp.SendMail(t.addr, t.auth, t.from, t.to, []byte(msg))
}

// HTTPSMSTransport posts an alert text to a configurable webhook. The
// teacher's pack carries no SMS-provider SDK (Twilio, AWS SNS, etc.); the
// original implementation stubs this as "send an HTTP request to whatever
// provider is configured", so this mirrors that shape against net/http
// rather than hard-coding one vendor.
type HTTPSMSTransport struct {
	client     *http.Client
	webhookURL string
	apiKey     string
	toNumber   string
}

// NewHTTPSMSTransport creates an SMS transport. webhookURL empty disables
// sending (Send returns an error rather than silently dropping the alert,
// so the Publisher's warn-log makes the missing configuration visible).
func NewHTTPSMSTransport(webhookURL, apiKey, toNumber string) *HTTPSMSTransport {
	return &HTTPSMSTransport{
		client:     &http.Client{Timeout: 10 * time.Second},
		webhookURL: webhookURL,
		apiKey:     apiKey,
		toNumber:   toNumber,
	}
}

// Send posts the alert text to the configured webhook as JSON.
func (t *HTTPSMSTransport) Send(text string) error {
	if t.webhookURL == "" {
		return fmt.Errorf("sms webhook not configured")
	}
	payload, err := json.Marshal(map[string]string{"to": t.toNumber, "body": text})
	if err != nil {
		return fmt.Errorf("failed to encode sms payload: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, t.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if t.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.apiKey)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("sms webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("sms webhook returned status %d", resp.StatusCode)
	}
	return nil
}
