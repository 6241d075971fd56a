package email

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/artpar/carebill/ports"
	"github.com/rs/zerolog"
)

func TestMockSender(t *testing.T) {
	m := NewMockSender()
	ctx := context.Background()

	if _, ok := m.GetLastEmail(); ok {
		t.Error("empty mock should have no last email")
	}

	msg := ports.EmailMessage{To: []string{"office@example.com"}, Subject: "Run", TextBody: "ok"}
	if err := m.Send(ctx, msg); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if m.Count() != 1 {
		t.Errorf("Count = %d, want 1", m.Count())
	}
	last, _ := m.GetLastEmail()
	if last.Subject != "Run" {
		t.Errorf("Subject = %s, want Run", last.Subject)
	}

	want := errors.New("relay down")
	m.SetShouldFail(true, want)
	if err := m.Send(ctx, msg); !errors.Is(err, want) {
		t.Errorf("Send error = %v, want %v", err, want)
	}
	m.SetShouldFail(true, nil)
	if err := m.Send(ctx, msg); err == nil {
		t.Error("expected default failure")
	}
	if len(m.GetEmails()) != 1 {
		t.Errorf("failed sends must not be stored")
	}
}

func TestLogSender(t *testing.T) {
	var buf bytes.Buffer
	s := NewLogSender(zerolog.New(&buf))

	err := s.Send(context.Background(), ports.EmailMessage{
		To:       []string{"office@example.com"},
		Subject:  "Billing run 28/02/2025",
		TextBody: "home_care: 1 billed",
	})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "Billing run 28/02/2025") || !strings.Contains(out, "office@example.com") {
		t.Errorf("log output = %s", out)
	}
}

func TestNewSMTPSender_Validation(t *testing.T) {
	tests := []struct {
		name   string
		config SMTPConfig
	}{
		{"missing host", SMTPConfig{From: "a@example.com"}},
		{"missing from", SMTPConfig{Host: "smtp.example.com"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewSMTPSender(tt.config); err == nil {
				t.Error("expected error")
			}
		})
	}

	s, err := NewSMTPSender(SMTPConfig{Host: "smtp.example.com", From: "a@example.com"})
	if err != nil {
		t.Fatalf("NewSMTPSender error: %v", err)
	}
	if s.config.Port != 587 || s.config.Timeout != 30*time.Second {
		t.Errorf("defaults = %+v", s.config)
	}
}

func TestSMTPSender_Build(t *testing.T) {
	s, _ := NewSMTPSender(SMTPConfig{Host: "smtp.example.com", From: "billing@example.com", FromName: "carebill"})
	s.now = func() time.Time { return time.Date(2025, 2, 28, 9, 0, 0, 0, time.UTC) }

	tests := []struct {
		name string
		msg  ports.EmailMessage
		want []string
	}{
		{
			name: "text only",
			msg:  ports.EmailMessage{To: []string{"a@example.com", "b@example.com"}, Subject: "S", TextBody: "plain"},
			want: []string{"To: a@example.com, b@example.com\r\n", "Content-Type: text/plain", "plain"},
		},
		{
			name: "html only",
			msg:  ports.EmailMessage{To: []string{"a@example.com"}, Subject: "S", HTMLBody: "<p>hi</p>"},
			want: []string{"Content-Type: text/html", "<p>hi</p>"},
		},
		{
			name: "multipart",
			msg:  ports.EmailMessage{To: []string{"a@example.com"}, Subject: "S", TextBody: "plain", HTMLBody: "<p>hi</p>"},
			want: []string{"multipart/alternative", "text/plain", "text/html", "--carebill-"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := string(s.build(tt.msg))
			if !strings.HasPrefix(got, "From: carebill <billing@example.com>\r\n") {
				t.Errorf("missing From header: %q", got)
			}
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("message missing %q:\n%s", w, got)
				}
			}
		})
	}
}

func TestSMTPSender_NoRecipients(t *testing.T) {
	s, _ := NewSMTPSender(SMTPConfig{Host: "127.0.0.1", From: "a@example.com"})
	if err := s.Send(context.Background(), ports.EmailMessage{Subject: "x"}); err == nil {
		t.Error("expected error for empty recipient list")
	}
}

// mockSMTPServer is a minimal SMTP server for conversation tests.
type mockSMTPServer struct {
	listener   net.Listener
	mu         sync.Mutex
	recipients []string
	messages   []string
	failAt     string // "auth", "mail", "rcpt" or "data"
}

func newMockSMTPServer(t *testing.T) *mockSMTPServer {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &mockSMTPServer{listener: listener}
	go s.accept()
	t.Cleanup(func() { listener.Close() })
	return s
}

func (s *mockSMTPServer) port() int {
	return s.listener.Addr().(*net.TCPAddr).Port
}

func (s *mockSMTPServer) accept() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		go s.handle(conn)
	}
}

func (s *mockSMTPServer) handle(conn net.Conn) {
	defer conn.Close()
	reader := bufio.NewReader(conn)
	write := func(line string) { conn.Write([]byte(line + "\r\n")) }

	s.mu.Lock()
	failAt := s.failAt
	s.mu.Unlock()

	write("220 mock.smtp.local ESMTP")
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimSpace(line)
		cmd := strings.ToUpper(strings.SplitN(line, " ", 2)[0])

		if strings.EqualFold(cmd, failAt) {
			write("550 rejected")
			return
		}

		switch cmd {
		case "EHLO", "HELO":
			write("250-mock.smtp.local")
			write("250-AUTH PLAIN")
			write("250 OK")
		case "AUTH":
			write("235 Authentication successful")
		case "MAIL":
			write("250 OK")
		case "RCPT":
			s.mu.Lock()
			s.recipients = append(s.recipients, line)
			s.mu.Unlock()
			write("250 OK")
		case "DATA":
			write("354 Start mail input")
			var data bytes.Buffer
			for {
				l, err := reader.ReadString('\n')
				if err != nil {
					return
				}
				if strings.TrimSpace(l) == "." {
					break
				}
				data.WriteString(l)
			}
			s.mu.Lock()
			s.messages = append(s.messages, data.String())
			s.mu.Unlock()
			write("250 Message accepted")
		case "QUIT":
			write("221 Bye")
			return
		default:
			write("500 Unknown command")
		}
	}
}

func TestSMTPSender_SendWithMockServer(t *testing.T) {
	server := newMockSMTPServer(t)

	s, err := NewSMTPSender(SMTPConfig{
		Host:     "127.0.0.1",
		Port:     server.port(),
		From:     "billing@example.com",
		FromName: "carebill",
		Username: "user",
		Password: "pass",
		Timeout:  5 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewSMTPSender error: %v", err)
	}

	err = s.Send(context.Background(), ports.EmailMessage{
		To:       []string{"office@example.com", "owner@example.com"},
		Subject:  "Billing run",
		TextBody: "home_care: 2 billed",
	})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	server.mu.Lock()
	defer server.mu.Unlock()
	if len(server.recipients) != 2 {
		t.Errorf("recipients = %v, want 2", server.recipients)
	}
	if len(server.messages) != 1 || !strings.Contains(server.messages[0], "home_care: 2 billed") {
		t.Errorf("messages = %v", server.messages)
	}
}

func TestSMTPSender_ServerRejects(t *testing.T) {
	for _, stage := range []string{"auth", "mail", "rcpt", "data"} {
		t.Run(stage, func(t *testing.T) {
			server := newMockSMTPServer(t)
			server.mu.Lock()
			server.failAt = stage
			server.mu.Unlock()

			s, _ := NewSMTPSender(SMTPConfig{
				Host:     "127.0.0.1",
				Port:     server.port(),
				From:     "billing@example.com",
				Username: "user",
				Password: "pass",
				Timeout:  5 * time.Second,
			})
			err := s.Send(context.Background(), ports.EmailMessage{To: []string{"office@example.com"}, TextBody: "x"})
			if err == nil {
				t.Errorf("expected error when server rejects %s", stage)
			}
		})
	}
}

func TestSMTPSender_DialFailure(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := listener.Addr().(*net.TCPAddr).Port
	listener.Close()

	s, _ := NewSMTPSender(SMTPConfig{Host: "127.0.0.1", Port: port, From: "a@example.com", Timeout: time.Second})
	if err := s.Send(context.Background(), ports.EmailMessage{To: []string{"b@example.com"}}); err == nil {
		t.Error("expected dial error")
	}
}
