package email

import (
	"context"
	"fmt"
	"sync"

	"github.com/artpar/carebill/ports"
)

// MockSender stores sent emails in memory instead of sending them.
type MockSender struct {
	mu     sync.Mutex
	emails []ports.EmailMessage

	shouldFail bool
	failError  error
}

// NewMockSender creates a new mock email sender.
func NewMockSender() *MockSender {
	return &MockSender{}
}

// Send stores the email in memory.
func (m *MockSender) Send(ctx context.Context, msg ports.EmailMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.shouldFail {
		if m.failError != nil {
			return m.failError
		}
		return fmt.Errorf("mock email send failure")
	}
	m.emails = append(m.emails, msg)
	return nil
}

// GetEmails returns all stored emails.
func (m *MockSender) GetEmails() []ports.EmailMessage {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]ports.EmailMessage, len(m.emails))
	copy(result, m.emails)
	return result
}

// GetLastEmail returns the most recently stored email.
func (m *MockSender) GetLastEmail() (ports.EmailMessage, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.emails) == 0 {
		return ports.EmailMessage{}, false
	}
	return m.emails[len(m.emails)-1], true
}

// Count returns the number of emails sent.
func (m *MockSender) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.emails)
}

// SetShouldFail configures the mock to fail on all send attempts.
func (m *MockSender) SetShouldFail(fail bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shouldFail = fail
	m.failError = err
}

var _ ports.EmailSender = (*MockSender)(nil)
