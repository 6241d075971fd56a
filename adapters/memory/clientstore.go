// Package memory provides in-memory implementations for testing and the
// zero-configuration "memory" store driver.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/artpar/carebill/domain/billing"
	"github.com/artpar/carebill/ports"
)

// ClientStore is an in-memory implementation of ports.ClientStore.
// Clients are listed in insertion order.
type ClientStore struct {
	mu      sync.RWMutex
	clients map[string]billing.Client // by Key()
	order   []string

	listErr   error
	updateErr error
}

// NewClientStore creates a store seeded with clients.
func NewClientStore(clients ...billing.Client) *ClientStore {
	s := &ClientStore{clients: make(map[string]billing.Client)}
	for _, c := range clients {
		s.Put(c)
	}
	return s
}

// Put inserts or replaces a client.
func (s *ClientStore) Put(c billing.Client) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := c.Key()
	if _, ok := s.clients[k]; !ok {
		s.order = append(s.order, k)
	}
	s.clients[k] = c
}

// Get returns the client with the given name.
func (s *ClientStore) Get(name string) (billing.Client, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.clients[billing.Client{Name: name}.Key()]
	return c, ok
}

// List returns every client.
func (s *ClientStore) List(ctx context.Context) ([]billing.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.listErr != nil {
		return nil, s.listErr
	}
	result := make([]billing.Client, 0, len(s.order))
	for _, k := range s.order {
		result = append(result, s.clients[k])
	}
	return result, nil
}

// UpdateLastBilled sets the client's last-billed marker.
func (s *ClientStore) UpdateLastBilled(ctx context.Context, name string, date time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.updateErr != nil {
		return s.updateErr
	}
	k := billing.Client{Name: name}.Key()
	c, ok := s.clients[k]
	if !ok {
		return ports.ErrClientNotFound
	}
	d := billing.DateOf(date)
	c.LastBilled = &d
	s.clients[k] = c
	return nil
}

// FailList makes List return err (nil clears it).
func (s *ClientStore) FailList(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listErr = err
}

// FailUpdate makes UpdateLastBilled return err (nil clears it).
func (s *ClientStore) FailUpdate(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateErr = err
}

var _ ports.ClientStore = (*ClientStore)(nil)
