// Package notification renders the transactional email templates and sends
// them through the configured provider.
package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Template IDs.
const (
	TemplateOTPCode                = "otp-code"
	TemplateAppointmentConfirmed   = "appointment-confirmed"
	TemplateAppointmentCancelled   = "appointment-cancelled"
	TemplateAppointmentRescheduled = "appointment-rescheduled"
)

// EmailSender is the interface for sending email messages. body is HTML.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// Template defines a reusable email template. Placeholders are written
// {{key}}.
type Template struct {
	ID      string `json:"id"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// TemplateEngine manages templates and renders them with data.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewTemplateEngine creates a TemplateEngine with the built-in templates registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{templates: make(map[string]*Template)}
	for _, t := range builtIn {
		e.RegisterTemplate(t)
	}
	return e
}

var builtIn = []Template{
	{
		ID:      TemplateOTPCode,
		Subject: "Your ZynCure verification code",
		Body: `<p>Your verification code is:</p>` +
			`<p style="font-size:28px;font-weight:bold;letter-spacing:6px">{{code}}</p>` +
			`<p>This code expires in {{ttl_minutes}} minutes. If you did not try to sign in, you can ignore this email.</p>`,
	},
	{
		ID:      TemplateAppointmentConfirmed,
		Subject: "Your appointment on {{date}} is confirmed",
		Body:    `<p>Hi {{patient_name}},</p><p>Dr. {{doctor_name}} confirmed your appointment on {{date}} at {{time}}.</p>`,
	},
	{
		ID:      TemplateAppointmentCancelled,
		Subject: "Your appointment on {{date}} was cancelled",
		Body: `<p>Hi {{patient_name}},</p><p>Your appointment with Dr. {{doctor_name}} on {{date}} at {{time}} was cancelled.</p>` +
			`<p>Reason: {{reason}}</p>`,
	},
	{
		ID:      TemplateAppointmentRescheduled,
		Subject: "Your appointment on {{date}} needs a new time",
		Body: `<p>Hi {{patient_name}},</p><p>Dr. {{doctor_name}} asked to reschedule your appointment on {{date}} at {{time}}.</p>` +
			`<p>Reason: {{reason}}</p><p>Please request a new slot from the doctor's calendar.</p>`,
	},
}

// RegisterTemplate adds or replaces a template in the engine.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

// Render looks up a template by ID and replaces {{key}} placeholders with
// data. Values are HTML escaped; keys absent from data are left as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (subject, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("template %q not found", templateID)
	}

	subject = t.Subject
	body = t.Body
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		subject = strings.ReplaceAll(subject, placeholder, v)
		body = strings.ReplaceAll(body, placeholder, htmlEscaper.Replace(v))
	}
	return subject, body, nil
}

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&#34;", "'", "&#39;")

// Notifier renders templates and hands them to an EmailSender.
type Notifier struct {
	sender    EmailSender
	templates *TemplateEngine
	logger    zerolog.Logger
}

func NewNotifier(sender EmailSender, templates *TemplateEngine, logger zerolog.Logger) *Notifier {
	return &Notifier{sender: sender, templates: templates, logger: logger}
}

// Send renders templateID and delivers it to recipient.
func (n *Notifier) Send(ctx context.Context, templateID, recipient string, data map[string]string) error {
	if recipient == "" {
		return errors.New("notification: empty recipient")
	}
	subject, body, err := n.templates.Render(templateID, data)
	if err != nil {
		return fmt.Errorf("render template: %w", err)
	}
	if err := n.sender.SendEmail(ctx, recipient, subject, body); err != nil {
		return fmt.Errorf("send %s: %w", templateID, err)
	}
	return nil
}

// Notify is Send for side-channel mail: failures are logged, never returned.
func (n *Notifier) Notify(ctx context.Context, templateID, recipient string, data map[string]string) {
	if err := n.Send(ctx, templateID, recipient, data); err != nil {
		n.logger.Warn().Err(err).
			Str("template", templateID).
			Msg("notification not delivered")
	}
}

// EmailCall records a single call to SendEmail.
type EmailCall struct {
	To      string
	Subject string
	Body    string
}

// MockEmailSender is a test double for EmailSender.
type MockEmailSender struct {
	mu         sync.Mutex
	calls      []EmailCall
	ShouldFail bool
	FailError  string
}

// SendEmail records the call and optionally returns an error.
func (m *MockEmailSender) SendEmail(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, EmailCall{To: to, Subject: subject, Body: body})
	if m.ShouldFail {
		return errors.New(m.FailError)
	}
	return nil
}

// Calls returns a copy of recorded email calls.
func (m *MockEmailSender) Calls() []EmailCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EmailCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// LogSender writes emails to the log instead of delivering them. It is used
// in development when no provider key is configured.
type LogSender struct {
	Logger zerolog.Logger
}

func (s LogSender) SendEmail(_ context.Context, to, subject, body string) error {
	s.Logger.Info().
		Str("to", to).
		Str("subject", subject).
		Str("body", body).
		Msg("email not sent (no provider configured)")
	return nil
}
