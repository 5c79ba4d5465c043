package mailer

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	mail "gopkg.in/mail.v2"
)

const verificationTemplate = `
<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h2>Verify your email address</h2>
  <p>Hi {{.Name}},</p>
  <p>Please confirm this address belongs to you by clicking the link below:</p>
  <p><a href="{{.Link}}">Verify my email</a></p>
  <p>If you did not create an account, you can safely ignore this message.</p>
</div>`

const resetPasswordTemplate = `
<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h2>Reset your password</h2>
  <p>Hi {{.Name}},</p>
  <p>We received a request to reset your password. The link below is valid for one hour:</p>
  <p><a href="{{.Link}}">Reset my password</a></p>
  <p>If you did not request this, you can safely ignore this message.</p>
</div>`

const welcomeTemplate = `
<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h2>Welcome to BeaurA!</h2>
  <p>Hi {{.Name}},</p>
  <p>Your account is ready. Upload a photo and try your first transformation.</p>
</div>`

const notificationTemplate = `
<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h2>{{.Subject}}</h2>
  <p>Hi {{.Name}},</p>
  <p>{{.Message}}</p>
</div>`

// SMTPMailer sends mail through an SMTP relay using gopkg.in/mail.v2.
type SMTPMailer struct {
	dialer    *mail.Dialer
	from      string
	templates map[string]*template.Template
}

// NewSMTPMailer creates a mailer connected to the given SMTP relay. Templates
// are parsed eagerly so malformed markup fails at startup, not mid-flow.
func NewSMTPMailer(host string, port int, username, password, from string) (*SMTPMailer, error) {
	templates := make(map[string]*template.Template)
	for name, text := range map[string]string{
		"verification": verificationTemplate,
		"reset":        resetPasswordTemplate,
		"welcome":      welcomeTemplate,
		"notification": notificationTemplate,
	} {
		t, err := template.New(name).Parse(text)
		if err != nil {
			return nil, fmt.Errorf("parse %s email template: %w", name, err)
		}
		templates[name] = t
	}

	return &SMTPMailer{
		dialer:    mail.NewDialer(host, port, username, password),
		from:      from,
		templates: templates,
	}, nil
}

func (m *SMTPMailer) SendVerificationEmail(ctx context.Context, to, name, link string) error {
	return m.send(ctx, to, "Verify Your Email Address", "verification", map[string]string{
		"Name": name,
		"Link": link,
	})
}

func (m *SMTPMailer) SendResetPasswordEmail(ctx context.Context, to, name, link string) error {
	return m.send(ctx, to, "Password Reset Request", "reset", map[string]string{
		"Name": name,
		"Link": link,
	})
}

func (m *SMTPMailer) SendWelcomeEmail(ctx context.Context, to, name string) error {
	return m.send(ctx, to, "Welcome to BeaurA", "welcome", map[string]string{
		"Name": name,
	})
}

func (m *SMTPMailer) SendGeneralNotificationEmail(ctx context.Context, to, name, subject, message string) error {
	return m.send(ctx, to, subject, "notification", map[string]string{
		"Name":    name,
		"Subject": subject,
		"Message": message,
	})
}

func (m *SMTPMailer) send(ctx context.Context, to, subject, templateName string, data map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := m.render(templateName, data)
	if err != nil {
		return err
	}

	msg := mail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", body)

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("send %s email to %s: %w", templateName, to, err)
	}

	return nil
}

func (m *SMTPMailer) render(name string, data map[string]string) (string, error) {
	t, ok := m.templates[name]
	if !ok {
		return "", fmt.Errorf("unknown email template %q", name)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute %s email template: %w", name, err)
	}

	return buf.String(), nil
}
