package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/kbralten/vxi-dash/internal/ports"
)

// Mock is an in-memory ports.Transport used by tests, grounded on
// vxi11_client.py's MockVXI11Client.
// Responses are keyed by the exact command string; Write calls are just
// recorded. Safe for concurrent use.
type Mock struct {
	mu        sync.Mutex
	Responses map[string]string
	Writes    []MockWrite
	OpenErr   error
	QueryErr  map[string]error
}

// MockWrite records one Write call for assertions in tests.
type MockWrite struct {
	Address string
	Command string
}

// NewMock builds an empty Mock transport.
func NewMock() *Mock {
	return &Mock{Responses: map[string]string{}, QueryErr: map[string]error{}}
}

func (m *Mock) Open(ctx context.Context, address string) (ports.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.OpenErr != nil {
		return nil, m.OpenErr
	}
	return &mockSession{m: m, address: address}, nil
}

type mockSession struct {
	m       *Mock
	address string
	closed  bool
}

func (s *mockSession) Address() string { return s.address }

func (s *mockSession) Query(ctx context.Context, cmd string) (string, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err, ok := s.m.QueryErr[cmd]; ok && err != nil {
		return "", err
	}
	if resp, ok := s.m.Responses[cmd]; ok {
		return resp, nil
	}
	return fmt.Sprintf("mock response to %q", cmd), nil
}

func (s *mockSession) Write(ctx context.Context, cmd string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	s.m.Writes = append(s.m.Writes, MockWrite{Address: s.address, Command: cmd})
	return nil
}

func (s *mockSession) Close() error {
	s.closed = true
	return nil
}
