// Package email provides email sending adapters.
package email

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/artpar/carebill/ports"
)

// SMTPConfig holds SMTP server configuration.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string // sender email address
	FromName string // sender display name

	// TLS settings
	UseTLS      bool // Use STARTTLS
	SkipVerify  bool // Skip TLS certificate verification (for testing)
	UseImplicit bool // Use implicit TLS (port 465)

	Timeout time.Duration
}

// SMTPSender implements ports.EmailSender using SMTP.
type SMTPSender struct {
	config SMTPConfig
	now    func() time.Time
}

// NewSMTPSender creates a new SMTP email sender.
func NewSMTPSender(config SMTPConfig) (*SMTPSender, error) {
	if config.Host == "" {
		return nil, fmt.Errorf("SMTP host is required")
	}
	if config.From == "" {
		return nil, fmt.Errorf("SMTP sender address is required")
	}
	if config.Port == 0 {
		config.Port = 587
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	return &SMTPSender{config: config, now: time.Now}, nil
}

// Send sends an email via SMTP.
func (s *SMTPSender) Send(ctx context.Context, msg ports.EmailMessage) error {
	if len(msg.To) == 0 {
		return fmt.Errorf("email has no recipients")
	}
	addr := net.JoinHostPort(s.config.Host, fmt.Sprint(s.config.Port))
	body := s.build(msg)

	if s.config.UseImplicit {
		tlsConfig := &tls.Config{
			ServerName:         s.config.Host,
			InsecureSkipVerify: s.config.SkipVerify,
		}
		dialer := &tls.Dialer{
			NetDialer: &net.Dialer{Timeout: s.config.Timeout},
			Config:    tlsConfig,
		}
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return fmt.Errorf("dial tls: %w", err)
		}
		defer conn.Close()
		return s.deliver(conn, false, msg.To, body)
	}

	dialer := &net.Dialer{Timeout: s.config.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	return s.deliver(conn, s.config.UseTLS, msg.To, body)
}

// deliver runs the SMTP conversation on an open connection.
func (s *SMTPSender) deliver(conn net.Conn, startTLS bool, to []string, message []byte) error {
	client, err := smtp.NewClient(conn, s.config.Host)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	defer client.Close()

	if startTLS {
		if ok, _ := client.Extension("STARTTLS"); ok {
			tlsConfig := &tls.Config{
				ServerName:         s.config.Host,
				InsecureSkipVerify: s.config.SkipVerify,
			}
			if err := client.StartTLS(tlsConfig); err != nil {
				return fmt.Errorf("starttls: %w", err)
			}
		}
	}

	if s.config.Username != "" {
		auth := smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}

	if err := client.Mail(s.config.From); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("rcpt to %s: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write(message); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close data: %w", err)
	}

	return client.Quit()
}

// build renders headers and body. Messages with both bodies are sent as
// multipart/alternative.
func (s *SMTPSender) build(msg ports.EmailMessage) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s <%s>\r\n", s.config.FromName, s.config.From)
	fmt.Fprintf(&buf, "To: %s\r\n", strings.Join(msg.To, ", "))
	fmt.Fprintf(&buf, "Subject: %s\r\n", msg.Subject)
	fmt.Fprintf(&buf, "Date: %s\r\n", s.now().Format(time.RFC1123Z))
	buf.WriteString("MIME-Version: 1.0\r\n")

	switch {
	case msg.HTMLBody != "" && msg.TextBody != "":
		boundary := fmt.Sprintf("carebill-%d", s.now().UnixNano())
		fmt.Fprintf(&buf, "Content-Type: multipart/alternative; boundary=%s\r\n\r\n", boundary)
		fmt.Fprintf(&buf, "--%s\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n", boundary, msg.TextBody)
		fmt.Fprintf(&buf, "--%s\r\nContent-Type: text/html; charset=utf-8\r\n\r\n%s\r\n", boundary, msg.HTMLBody)
		fmt.Fprintf(&buf, "--%s--\r\n", boundary)
	case msg.HTMLBody != "":
		buf.WriteString("Content-Type: text/html; charset=utf-8\r\n\r\n")
		buf.WriteString(msg.HTMLBody)
	default:
		buf.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
		buf.WriteString(msg.TextBody)
	}
	return buf.Bytes()
}

var _ ports.EmailSender = (*SMTPSender)(nil)
