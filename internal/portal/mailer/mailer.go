// Package mailer renders account emails and hands them to a transport.
package mailer

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"text/template"
	"time"
)

const (
	KindVerification  = "verification"
	KindPasswordReset = "password_reset"
)

// Message is a rendered email ready for delivery.
type Message struct {
	Kind    string    `json:"kind"`
	To      string    `json:"to"`
	Name    string    `json:"name"`
	Subject string    `json:"subject"`
	Body    string    `json:"body"`
	Link    string    `json:"link"`
	SentAt  time.Time `json:"sent_at"`
}

// Sender delivers a rendered message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

var (
	verificationTmpl = template.Must(template.New("verification").Parse(
		`Hello {{.Name}},

Please confirm your email address by opening the link below:
{{.Link}}

If you did not create an account, you can ignore this email.
`))

	resetTmpl = template.Must(template.New("reset").Parse(
		`Hello {{.Name}},

A password reset was requested for your account. Open the link below to choose a new password:
{{.Link}}

This link expires in {{.TTL}}.

If you did not request this, you can ignore this email.
`))
)

// Mailer builds verification and reset emails whose links point at BaseURL.
type Mailer struct {
	AppName  string
	BaseURL  string
	ResetTTL time.Duration
	Sender   Sender
	Now      func() time.Time
}

func (m *Mailer) SendVerification(ctx context.Context, to, name, token string) error {
	msg, err := m.render(KindVerification, to, name, "/verify-email", token, verificationTmpl)
	if err != nil {
		return err
	}
	msg.Subject = "Verify your account - " + m.appName()
	return m.Sender.Send(ctx, msg)
}

func (m *Mailer) SendPasswordReset(ctx context.Context, to, name, token string) error {
	msg, err := m.render(KindPasswordReset, to, name, "/reset-password", token, resetTmpl)
	if err != nil {
		return err
	}
	msg.Subject = "Reset your password - " + m.appName()
	return m.Sender.Send(ctx, msg)
}

func (m *Mailer) render(kind, to, name, path, token string, tmpl *template.Template) (Message, error) {
	link := strings.TrimSuffix(m.BaseURL, "/") + path + "?token=" + url.QueryEscape(token)

	ttl := m.ResetTTL
	if ttl <= 0 {
		ttl = time.Hour
	}

	var body bytes.Buffer
	err := tmpl.Execute(&body, struct {
		Name string
		Link string
		TTL  time.Duration
	}{Name: name, Link: link, TTL: ttl})
	if err != nil {
		return Message{}, fmt.Errorf("failed to render %s email: %w", kind, err)
	}

	now := time.Now().UTC()
	if m.Now != nil {
		now = m.Now().UTC()
	}
	return Message{Kind: kind, To: to, Name: name, Body: body.String(), Link: link, SentAt: now}, nil
}

func (m *Mailer) appName() string {
	if m.AppName == "" {
		return "Portal"
	}
	return m.AppName
}
