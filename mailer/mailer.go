// Package mailer delivers the sweep report to the operations mailbox over
// SMTP.
package mailer

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Settings carries the SMTP connection parameters. A non-empty Subject
// replaces the per-report subject line with a fixed one.
type Settings struct {
	Host       string
	Port       int
	Username   string
	Password   string
	From       string
	Recipients []string
	Subject    string
}

type Mailer struct {
	settings Settings
	logger   *zap.Logger
}

func New(settings Settings, logger *zap.Logger) *Mailer {
	return &Mailer{settings: settings, logger: logger}
}

// Send delivers one HTML message to every configured recipient.
func (m *Mailer) Send(subject, htmlBody string) error {
	if len(m.settings.Recipients) == 0 {
		return errors.New("no mail recipients configured")
	}
	subject = m.subjectFor(subject)

	client, err := m.dial()
	if err != nil {
		return err
	}
	defer client.Quit()

	if m.settings.Username != "" {
		auth := smtp.PlainAuth("", m.settings.Username, m.settings.Password, m.settings.Host)
		if err := client.Auth(auth); err != nil {
			return errors.Wrap(err, "smtp auth")
		}
	}

	if err := client.Mail(m.settings.From); err != nil {
		return errors.Wrapf(err, "mail from %s", m.settings.From)
	}
	for _, rcpt := range m.settings.Recipients {
		if err := client.Rcpt(rcpt); err != nil {
			return errors.Wrapf(err, "rcpt %s", rcpt)
		}
	}

	w, err := client.Data()
	if err != nil {
		return errors.Wrap(err, "smtp data")
	}
	if _, err := w.Write(buildMessage(m.settings.From, m.settings.Recipients, subject, htmlBody, time.Now())); err != nil {
		return errors.Wrap(err, "write message")
	}
	if err := w.Close(); err != nil {
		return errors.Wrap(err, "close message")
	}

	m.logger.Info("sent report mail",
		zap.String("subject", subject),
		zap.Int("recipients", len(m.settings.Recipients)),
	)
	return nil
}

func (m *Mailer) subjectFor(subject string) string {
	if m.settings.Subject != "" {
		return m.settings.Subject
	}
	return subject
}

// dial connects to the SMTP server. Port 465 means implicit TLS; anything
// else is a plain connection upgraded with STARTTLS when the server offers
// it.
func (m *Mailer) dial() (*smtp.Client, error) {
	addr := net.JoinHostPort(m.settings.Host, strconv.Itoa(m.settings.Port))

	if m.settings.Port == 465 {
		conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: m.settings.Host})
		if err != nil {
			return nil, errors.Wrapf(err, "dial %s", addr)
		}
		client, err := smtp.NewClient(conn, m.settings.Host)
		if err != nil {
			conn.Close()
			return nil, errors.Wrap(err, "smtp handshake")
		}
		return client, nil
	}

	client, err := smtp.Dial(addr)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", addr)
	}
	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: m.settings.Host}); err != nil {
			client.Close()
			return nil, errors.Wrap(err, "starttls")
		}
	}
	return client, nil
}

// buildMessage assembles the raw message with the headers an HTML body
// needs.
func buildMessage(from string, to []string, subject, htmlBody string, now time.Time) []byte {
	msg := fmt.Sprintf("From: %s\r\n", from) +
		fmt.Sprintf("To: %s\r\n", strings.Join(to, ", ")) +
		fmt.Sprintf("Subject: %s\r\n", subject) +
		fmt.Sprintf("Date: %s\r\n", now.Format(time.RFC1123Z)) +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: text/html; charset=\"utf-8\"\r\n" +
		"\r\n" +
		htmlBody
	return []byte(msg)
}
