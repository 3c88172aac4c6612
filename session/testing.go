// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/cap-demo/identity"
	"github.com/stretchr/testify/require"
)

// TestAuthenticator is an in-memory Authenticator.  Login always succeeds
// as TestUsername with TestToken.
type TestAuthenticator struct {
	events chan identity.Event

	mu       sync.Mutex
	logins   int
	logouts  int
	loginErr error
}

const (
	TestUsername = "alice"
	TestToken    = "test-access-token"
)

var _ Authenticator = (*TestAuthenticator)(nil)

// NewTestAuthenticator creates a TestAuthenticator.
func NewTestAuthenticator() *TestAuthenticator {
	return &TestAuthenticator{events: make(chan identity.Event, 16)}
}

// Events implements Authenticator.
func (a *TestAuthenticator) Events() <-chan identity.Event { return a.events }

// Emit sends e to the Manager.
func (a *TestAuthenticator) Emit(e identity.Event) { a.events <- e }

// SetLoginError makes later logins fail with err.
func (a *TestAuthenticator) SetLoginError(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.loginErr = err
}

// Login implements Authenticator.
func (a *TestAuthenticator) Login(context.Context) error {
	a.mu.Lock()
	a.logins++
	err := a.loginErr
	a.mu.Unlock()
	if err != nil {
		a.events <- identity.Event{Type: identity.EventAuthError, Err: err}
		return err
	}
	a.events <- identity.Event{Type: identity.EventAuthSuccess, Authenticated: true, Token: TestToken, Username: TestUsername}
	return nil
}

// Logout implements Authenticator.
func (a *TestAuthenticator) Logout(context.Context) error {
	a.mu.Lock()
	a.logouts++
	a.mu.Unlock()
	a.events <- identity.Event{Type: identity.EventAuthLogout}
	return nil
}

// UpdateToken implements Authenticator and always refreshes.
func (a *TestAuthenticator) UpdateToken(context.Context, time.Duration) (bool, error) {
	a.events <- identity.Event{Type: identity.EventAuthRefreshSuccess, Authenticated: true, Token: TestToken, Username: TestUsername}
	return true, nil
}

// Logins returns the number of Login calls.
func (a *TestAuthenticator) Logins() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.logins
}

// Logouts returns the number of Logout calls.
func (a *TestAuthenticator) Logouts() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.logouts
}

// StartTestManager runs a Manager over a TestAuthenticator for the duration
// of the test.  Unless s.IsLoading, the Manager is made ready with s first.
func StartTestManager(t *testing.T, s Session) (*Manager, *TestAuthenticator) {
	t.Helper()
	auth := NewTestAuthenticator()
	m, err := NewManager(auth)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	if !s.IsLoading {
		auth.Emit(identity.Event{Type: identity.EventReady, Authenticated: s.IsAuthenticated, Token: s.Token, Username: s.Username})
		require.Eventually(t, func() bool { return !m.Snapshot().IsLoading }, 5*time.Second, 5*time.Millisecond)
	}
	return m, auth
}
