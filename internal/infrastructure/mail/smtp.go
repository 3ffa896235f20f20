// Package mail sends activation keys over SMTP.
package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/soundvault/entitlement-service/internal/core/ports"
	"github.com/soundvault/entitlement-service/pkg/logger"
)

const defaultTimeout = 10 * time.Second

// ErrNotConfigured is returned by SendActivationKey when no SMTP host is set.
var ErrNotConfigured = errors.New("smtp host is not configured")

type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	Timeout  time.Duration
}

// SMTPMailer implements ports.ActivationMailer. Every send opens its own
// connection bounded by Config.Timeout.
type SMTPMailer struct {
	cfg  Config
	dial func(ctx context.Context, network, addr string) (net.Conn, error)
	now  func() time.Time
	log  zerolog.Logger
}

func NewSMTPMailer(cfg Config, log zerolog.Logger) *SMTPMailer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	d := &net.Dialer{}
	return &SMTPMailer{cfg: cfg, dial: d.DialContext, now: time.Now, log: log}
}

func (m *SMTPMailer) SendActivationKey(ctx context.Context, am ports.ActivationMail) error {
	if m.cfg.Host == "" {
		return ErrNotConfigured
	}
	to, err := mail.ParseAddress(am.To)
	if err != nil {
		return fmt.Errorf("recipient %q: %w", am.To, err)
	}
	from, err := mail.ParseAddress(m.cfg.From)
	if err != nil {
		return fmt.Errorf("sender %q: %w", m.cfg.From, err)
	}

	msg := composeActivationMail(from, to, am, messageID(from.Address), m.now())
	if err := m.send(ctx, from.Address, to.Address, msg); err != nil {
		return err
	}
	m.log.Info().
		Int64("user_id", am.UserID).
		Int64("payment_id", am.PaymentID).
		Str("activation_key", logger.MaskKey(am.ActivationKey)).
		Msg("activation key sent")
	return nil
}

func (m *SMTPMailer) send(ctx context.Context, from, to string, msg []byte) error {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	conn, err := m.dial(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("smtp dial %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: m.cfg.Host, MinVersion: tls.VersionTLS12}); err != nil {
			return fmt.Errorf("smtp starttls: %w", err)
		}
	}
	if m.cfg.User != "" {
		if ok, _ := c.Extension("AUTH"); ok {
			if err := c.Auth(smtp.PlainAuth("", m.cfg.User, m.cfg.Password, m.cfg.Host)); err != nil {
				return fmt.Errorf("smtp auth: %w", err)
			}
		}
	}

	if err := c.Mail(from); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := c.Rcpt(to); err != nil {
		return fmt.Errorf("smtp rcpt to: %w", err)
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		_ = w.Close()
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp data close: %w", err)
	}
	return c.Quit()
}

func messageID(from string) string {
	domain := "localhost"
	if i := strings.LastIndex(from, "@"); i >= 0 && i < len(from)-1 {
		domain = from[i+1:]
	}
	return "<" + uuid.NewString() + "@" + domain + ">"
}

func composeActivationMail(from, to *mail.Address, am ports.ActivationMail, msgID string, now time.Time) []byte {
	var b bytes.Buffer
	header := func(k, v string) { fmt.Fprintf(&b, "%s: %s\r\n", k, v) }

	header("From", from.String())
	header("To", to.String())
	header("Subject", "Your SoundVault activation key")
	header("Date", now.Format(time.RFC1123Z))
	header("Message-ID", msgID)
	header("MIME-Version", "1.0")
	header("Content-Type", `text/plain; charset="UTF-8"`)
	header("Content-Transfer-Encoding", "8bit")
	b.WriteString("\r\n")

	lines := []string{
		"Thank you for your purchase.",
		"",
		"Your activation key:",
		"",
		"    " + am.ActivationKey,
		"",
		"Plan: " + string(am.Plan),
		"Valid until: " + am.ValidUntil.UTC().Format("2006-01-02"),
		"",
		"Enter the key in the application on the device you used for the purchase.",
	}
	for _, l := range lines {
		b.WriteString(l)
		b.WriteString("\r\n")
	}
	return b.Bytes()
}
