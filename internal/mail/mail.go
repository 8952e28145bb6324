// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tourbook Contributors

// Package mail delivers account mail over SMTP.
package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"embed"
	"fmt"
	"log/slog"
	"mime"
	"net"
	netmail "net/mail"
	"net/smtp"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/samber/oops"

	"github.com/tourbook/tourbook/internal/auth"
)

// ResetPath is joined to the base URL in front of the raw reset token.
const ResetPath = "/api/v1/users/resetPassword/"

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.tmpl"))

// DefaultTimeout bounds one delivery when Config.Timeout is zero.
const DefaultTimeout = 10 * time.Second

// Config configures an SMTPMailer.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	BaseURL  string
	// Timeout bounds the whole SMTP conversation for one message.
	Timeout time.Duration
}

type (
	sendFunc func(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error
	dialFunc func(ctx context.Context, network, addr string) (net.Conn, error)
)

// SMTPMailer implements auth.Mailer with plain-text templated mail.
type SMTPMailer struct {
	cfg    Config
	from   *netmail.Address
	send   sendFunc
	dial   dialFunc
	now    func() time.Time
	logger *slog.Logger
}

var _ auth.Mailer = (*SMTPMailer)(nil)

// NewSMTPMailer validates cfg and returns a mailer sending through cfg.Host.
// STARTTLS is used when the server offers it.
func NewSMTPMailer(cfg Config, logger *slog.Logger) (*SMTPMailer, error) {
	if cfg.Host == "" {
		return nil, oops.Code("MAIL_CONFIG_INVALID").Errorf("mail host is required")
	}
	from, err := netmail.ParseAddress(cfg.From)
	if err != nil {
		return nil, oops.Code("MAIL_CONFIG_INVALID").With("from", cfg.From).Wrapf(err, "parse sender")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	m := &SMTPMailer{
		cfg:    cfg,
		from:   from,
		dial:   (&net.Dialer{}).DialContext,
		now:    time.Now,
		logger: logger,
	}
	m.send = m.sendSMTP
	return m, nil
}

// New returns an SMTPMailer, or a Discard mailer when cfg.Host is empty.
func New(cfg Config, logger *slog.Logger) (auth.Mailer, error) {
	if cfg.Host == "" {
		return NewDiscard(logger), nil
	}
	return NewSMTPMailer(cfg, logger)
}

// SendWelcome implements auth.Mailer.
func (m *SMTPMailer) SendWelcome(ctx context.Context, to auth.Recipient) error {
	body, err := render("welcome.txt.tmpl", map[string]any{
		"FirstName": FirstName(to.Name),
		"BaseURL":   strings.TrimRight(m.cfg.BaseURL, "/"),
	})
	if err != nil {
		return err
	}
	return m.deliver(ctx, "welcome", to, "Welcome to the Tourbook family!", body)
}

// SendPasswordReset implements auth.Mailer.
func (m *SMTPMailer) SendPasswordReset(ctx context.Context, to auth.Recipient, rawToken string, expiresAt time.Time) error {
	body, err := render("password_reset.txt.tmpl", map[string]any{
		"FirstName": FirstName(to.Name),
		"ResetURL":  ResetURL(m.cfg.BaseURL, rawToken),
		"ExpiresAt": expiresAt.UTC().Format(time.RFC1123),
	})
	if err != nil {
		return err
	}
	return m.deliver(ctx, "password_reset", to, "Your password reset token (valid for 10 minutes)", body)
}

func (m *SMTPMailer) deliver(ctx context.Context, kind string, to auth.Recipient, subject string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return oops.Code("MAIL_SEND_FAILED").With("kind", kind).Wrap(err)
	}

	rcpt := netmail.Address{Name: to.Name, Address: to.Email}
	msg := m.compose(rcpt, subject, body)
	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))

	var a smtp.Auth
	if m.cfg.Username != "" {
		a = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	start := m.now()
	if err := m.send(ctx, addr, a, m.from.Address, []string{to.Email}, msg); err != nil {
		return oops.Code("MAIL_SEND_FAILED").
			With("kind", kind).
			With("addr", addr).
			Wrapf(err, "send %s mail", kind)
	}
	m.logger.DebugContext(ctx, "mail sent",
		"kind", kind,
		"to", to.Email,
		"duration", m.now().Sub(start))
	return nil
}

// sendSMTP runs one SMTP conversation. The connection deadline is the earlier
// of ctx's deadline and the configured timeout, and canceling ctx closes the
// connection.
func (m *SMTPMailer) sendSMTP(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	conn, err := m.dial(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	deadline, _ := ctx.Deadline()
	if err := conn.SetDeadline(deadline); err != nil {
		_ = conn.Close()
		return err
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	c, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return contextCause(ctx, err)
	}
	defer func() { _ = c.Close() }()

	if err := m.converse(c, a, from, to, msg); err != nil {
		return contextCause(ctx, err)
	}
	return nil
}

func (m *SMTPMailer) converse(c *smtp.Client, a smtp.Auth, from string, to []string, msg []byte) error {
	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: m.cfg.Host, MinVersion: tls.VersionTLS12}); err != nil {
			return err
		}
	}
	if a != nil {
		if ok, _ := c.Extension("AUTH"); !ok {
			return oops.Errorf("smtp server does not support AUTH")
		}
		if err := c.Auth(a); err != nil {
			return err
		}
	}
	if err := c.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

// contextCause prefers the context error once ctx is done.
func contextCause(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return oops.Wrapf(ctxErr, "%v", err)
	}
	return err
}

func (m *SMTPMailer) compose(to netmail.Address, subject string, body []byte) []byte {
	var buf bytes.Buffer
	header := func(k, v string) { fmt.Fprintf(&buf, "%s: %s\r\n", k, v) }

	header("From", m.from.String())
	header("To", to.String())
	header("Subject", mime.QEncoding.Encode("utf-8", subject))
	header("Date", m.now().Format(time.RFC1123Z))
	header("MIME-Version", "1.0")
	header("Content-Type", "text/plain; charset=UTF-8")
	header("Content-Transfer-Encoding", "8bit")
	buf.WriteString("\r\n")

	for _, line := range strings.Split(strings.TrimRight(string(body), "\n"), "\n") {
		buf.WriteString(line)
		buf.WriteString("\r\n")
	}
	return buf.Bytes()
}

func render(name string, data any) ([]byte, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return nil, oops.Code("MAIL_RENDER_FAILED").With("template", name).Wrap(err)
	}
	return buf.Bytes(), nil
}

// ResetURL builds the link a client follows to submit a new password.
func ResetURL(baseURL, rawToken string) string {
	return strings.TrimRight(baseURL, "/") + ResetPath + rawToken
}

// FirstName returns the first word of a display name.
func FirstName(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return "there"
	}
	return fields[0]
}

// Discard is an auth.Mailer that drops every message. It is used when no
// SMTP host is configured.
type Discard struct {
	logger *slog.Logger
}

var _ auth.Mailer = (*Discard)(nil)

// NewDiscard returns a Discard mailer logging to logger.
func NewDiscard(logger *slog.Logger) *Discard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Discard{logger: logger}
}

// SendWelcome implements auth.Mailer.
func (d *Discard) SendWelcome(ctx context.Context, to auth.Recipient) error {
	d.logger.InfoContext(ctx, "mail discarded", "kind", "welcome", "to", to.Email)
	return nil
}

// SendPasswordReset implements auth.Mailer. The token is not logged.
func (d *Discard) SendPasswordReset(ctx context.Context, to auth.Recipient, _ string, expiresAt time.Time) error {
	d.logger.InfoContext(ctx, "mail discarded",
		"kind", "password_reset",
		"to", to.Email,
		"expires_at", expiresAt)
	return nil
}
