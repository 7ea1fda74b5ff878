// SPDX-FileCopyrightText: Copyright 2025 Wilford Authors
// SPDX-License-Identifier: Apache-2.0

// Package mailer sends the transactional emails of the identity server:
// email verification, password changed, temporary password and email changed
// notices, in English and Dutch. When no email configuration is present,
// mails are logged instead of sent.
package mailer

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"net"
	"os"
	"strings"

	"github.com/wneessen/go-mail"

	"github.com/wilford-oidc/wilford/pkg/config"
	"github.com/wilford-oidc/wilford/pkg/logger"
	"github.com/wilford-oidc/wilford/pkg/storage"
)

//go:embed templates/*.html
var templateFS embed.FS

// Mailer renders and sends transactional mail. A nil client means delivery
// is disabled and mails are logged.
type Mailer struct {
	client    *mail.Client
	from      string
	banner    template.HTML
	templates *template.Template
}

// VerifyEmailData fills the verify_email template.
type VerifyEmailData struct {
	Name            string
	EmailVerifyLink string
	Banner          template.HTML
}

// PasswordChangedData fills the password_changed template.
type PasswordChangedData struct {
	Name   string
	Banner template.HTML
}

// PasswordForgottenData fills the password_forgotten template.
type PasswordForgottenData struct {
	Name              string
	TemporaryPassword string
	Banner            template.HTML
}

// EmailChangedData fills the email_changed template.
type EmailChangedData struct {
	Name   string
	Banner template.HTML
}

// New creates a mailer from the email configuration. A nil configuration
// yields a logging-only mailer.
func New(cfg *config.EmailConfig) (*Mailer, error) {
	templates, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parsing mail templates: %w", err)
	}

	m := &Mailer{templates: templates}
	if cfg == nil {
		logger.Warn("no email configuration present, mails will be logged instead of sent")
		return m, nil
	}

	m.from = cfg.From
	if cfg.BannerFile != "" {
		banner, err := os.ReadFile(cfg.BannerFile)
		if err != nil {
			return nil, fmt.Errorf("reading banner file: %w", err)
		}
		m.banner = template.HTML(banner)
	}

	localAddr, err := localIPv4()
	if err != nil {
		return nil, fmt.Errorf("selecting local address: %w", err)
	}
	dialer := net.Dialer{
		Timeout:   probeTimeout,
		LocalAddr: &net.TCPAddr{IP: localAddr},
	}

	client, err := mail.NewClient(cfg.SMTP,
		mail.WithTLSPolicy(mail.TLSOpportunistic),
		mail.WithDialContextFunc(dialer.DialContext),
	)
	if err != nil {
		return nil, fmt.Errorf("creating smtp client: %w", err)
	}
	m.client = client
	return m, nil
}

// DeliveryEnabled reports whether mails are actually sent. When false, send
// calls render and log the mail instead.
func (m *Mailer) DeliveryEnabled() bool {
	return m.client != nil
}

// SendVerifyEmail asks the user to verify a new email address.
func (m *Mailer) SendVerifyEmail(ctx context.Context, to, name string, locale storage.Locale, verifyLink string) error {
	subject := localized(locale, "Email verification", "Email verificatie")
	return m.send(ctx, to, subject, "verify_email", locale, VerifyEmailData{
		Name:            name,
		EmailVerifyLink: verifyLink,
		Banner:          m.banner,
	})
}

// SendPasswordChanged notifies the user their password was changed.
func (m *Mailer) SendPasswordChanged(ctx context.Context, to, name string, locale storage.Locale) error {
	subject := localized(locale, "Your password was changed", "Je wachtwoord is gewijzigd")
	return m.send(ctx, to, subject, "password_changed", locale, PasswordChangedData{
		Name:   name,
		Banner: m.banner,
	})
}

// SendPasswordForgotten sends the user a temporary password.
func (m *Mailer) SendPasswordForgotten(ctx context.Context, to, name string, locale storage.Locale, temporaryPassword string) error {
	subject := localized(locale, "Temporary password", "Tijdelijk wachtwoord")
	return m.send(ctx, to, subject, "password_forgotten", locale, PasswordForgottenData{
		Name:              name,
		TemporaryPassword: temporaryPassword,
		Banner:            m.banner,
	})
}

// SendEmailChanged notifies the user their email address was changed.
func (m *Mailer) SendEmailChanged(ctx context.Context, to, name string, locale storage.Locale) error {
	subject := localized(locale, "Your email address was changed", "Je email adres is gewijzigd")
	return m.send(ctx, to, subject, "email_changed", locale, EmailChangedData{
		Name:   name,
		Banner: m.banner,
	})
}

func (m *Mailer) send(ctx context.Context, to, subject, templateName string, locale storage.Locale, data any) error {
	body, err := m.render(templateName, locale, data)
	if err != nil {
		return err
	}

	if m.client == nil {
		logger.Infow("email delivery disabled, logging mail",
			"to", to,
			"subject", subject,
			"template", templateName)
		return nil
	}

	msg := mail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return fmt.Errorf("setting mail sender: %w", err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("setting mail recipient: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextHTML, body)

	if err := m.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("sending mail: %w", err)
	}
	return nil
}

// render executes the localized variant of the template, e.g.
// "verify_email.nl.html" for the Dutch locale.
func (m *Mailer) render(name string, locale storage.Locale, data any) (string, error) {
	full := fmt.Sprintf("%s.%s.html", name, strings.ToLower(string(locale)))

	var buf bytes.Buffer
	if err := m.templates.ExecuteTemplate(&buf, full, data); err != nil {
		return "", fmt.Errorf("rendering mail template %s: %w", full, err)
	}
	return buf.String(), nil
}

func localized(locale storage.Locale, en, nl string) string {
	if locale == storage.LocaleNl {
		return nl
	}
	return en
}
