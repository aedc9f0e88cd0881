// File: internal/mocks/mocks.go
package mocks

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/villagebot/api/schemas"
	"github.com/xkilldash9x/villagebot/internal/session"
)

// -- Authenticator Mock --

// MockAuthenticator mocks scheduler.Authenticator.
type MockAuthenticator struct {
	mock.Mock
}

func (m *MockAuthenticator) Authenticate(ctx context.Context, creds schemas.Credentials) (*session.Session, *schemas.PlayerState, error) {
	args := m.Called(ctx, creds)
	var s *session.Session
	if v := args.Get(0); v != nil {
		s = v.(*session.Session)
	}
	var p *schemas.PlayerState
	if v := args.Get(1); v != nil {
		p = v.(*schemas.PlayerState)
	}
	return s, p, args.Error(2)
}

func (m *MockAuthenticator) Reauthenticate(ctx context.Context, s *session.Session, creds schemas.Credentials) (*schemas.PlayerState, error) {
	args := m.Called(ctx, s, creds)
	var p *schemas.PlayerState
	if v := args.Get(0); v != nil {
		p = v.(*schemas.PlayerState)
	}
	return p, args.Error(1)
}

// -- Executor Mock --

// MockExecutor mocks scheduler.ActionExecutor.
type MockExecutor struct {
	mock.Mock
}

func (m *MockExecutor) Execute(ctx context.Context, s *session.Session, req schemas.ActionRequest) (*schemas.ActionResult, error) {
	args := m.Called(ctx, s, req)
	var res *schemas.ActionResult
	if v := args.Get(0); v != nil {
		res = v.(*schemas.ActionResult)
	}
	return res, args.Error(1)
}

// -- Activity Recorder Mock --

// MockRecorder records every entry it receives and returns a configurable error.
type MockRecorder struct {
	mock.Mock

	mu      sync.Mutex
	entries []schemas.ActivityEntry
}

func (m *MockRecorder) Record(ctx context.Context, entry schemas.ActivityEntry) error {
	m.mu.Lock()
	m.entries = append(m.entries, entry)
	m.mu.Unlock()
	args := m.Called(ctx, entry)
	return args.Error(0)
}

// Entries returns a copy of everything recorded so far.
func (m *MockRecorder) Entries() []schemas.ActivityEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]schemas.ActivityEntry(nil), m.entries...)
}

// Actions returns the Action field of every recorded entry, in order.
func (m *MockRecorder) Actions() []string {
	entries := m.Entries()
	actions := make([]string, len(entries))
	for i, e := range entries {
		actions[i] = e.Action
	}
	return actions
}
