package utils

import (
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

// ErrMailerNotConfigured is returned by the log mailer.
var ErrMailerNotConfigured = errors.New("smtp not configured")

// Mailer delivers plain text mail.
type Mailer interface {
	Send(to, subject, body string) error
}

// SMTPConfig holds the outbound mail settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	TLS      bool
}

// NewMailer returns an SMTP mailer, or a mailer that only logs when SMTP is not configured.
func NewMailer(cfg SMTPConfig) Mailer {
	if cfg.Host == "" || cfg.From == "" {
		return logMailer{}
	}
	return &SMTPMailer{cfg: cfg}
}

type logMailer struct{}

func (logMailer) Send(to, subject, _ string) error {
	Sugar.Warnw("mail dropped, smtp not configured", "to", to, "subject", subject)
	return ErrMailerNotConfigured
}

// SMTPMailer sends mail over SMTP, using STARTTLS when enabled.
type SMTPMailer struct {
	cfg SMTPConfig
}

func (m *SMTPMailer) Send(to, subject, body string) error {
	cfg := m.cfg
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	auth := smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	msg := buildMessage(cfg, to, subject, body)

	if !cfg.TLS {
		return smtp.SendMail(addr, auth, cfg.From, []string{to}, msg)
	}

	d := net.Dialer{Timeout: 5 * time.Second}
	conn, err := d.Dial("tcp", addr)
	if err != nil {
		return err
	}
	_ = conn.SetDeadline(time.Now().Add(15 * time.Second))
	c, err := smtp.NewClient(conn, cfg.Host)
	if err != nil {
		_ = conn.Close()
		return err
	}
	defer c.Close()
	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: cfg.Host}); err != nil {
			return err
		}
	}
	if cfg.Username != "" {
		if err := c.Auth(auth); err != nil {
			return err
		}
	}
	if err := c.Mail(cfg.From); err != nil {
		return err
	}
	if err := c.Rcpt(to); err != nil {
		return err
	}
	wc, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := wc.Write(msg); err != nil {
		_ = wc.Close()
		return err
	}
	if err := wc.Close(); err != nil {
		return err
	}
	return c.Quit()
}

func buildMessage(cfg SMTPConfig, to, subject, body string) []byte {
	fromName := cfg.FromName
	if fromName == "" {
		fromName = "Inkwell"
	}
	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s <%s>\r\n", mime.BEncoding.Encode("UTF-8", fromName), cfg.From)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", mime.BEncoding.Encode("UTF-8", subject))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	msg.WriteString(body)
	return []byte(msg.String())
}
