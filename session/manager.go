// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hashicorp/cap-demo/identity"
	"github.com/hashicorp/go-hclog"
)

// Manager owns the one Session of an application run.
type Manager struct {
	auth   Authenticator
	logger hclog.Logger

	mu      sync.Mutex
	current Session
	subs    map[int]chan Session
	nextSub int
}

// NewManager creates a Manager for auth.  The Session starts loading and
// stays loading until auth reports identity.EventReady.
//
// Supported options: WithLogger
func NewManager(auth Authenticator, opt ...Option) (*Manager, error) {
	const op = "session.NewManager"
	if auth == nil {
		return nil, fmt.Errorf("%s: authenticator is nil: %w", op, ErrInvalidParameter)
	}
	opts := getOpts(opt...)
	return &Manager{
		auth:    auth,
		logger:  opts.withLogger,
		current: Session{IsLoading: true},
		subs:    map[int]chan Session{},
	}, nil
}

// Run applies identity events to the Session until ctx is done.  It is the
// only place the Session changes, and must run for the Manager's lifetime.
func (m *Manager) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e := <-m.auth.Events():
			m.logger.Trace("identity event", "type", e.Type.String())
			if e.Type == identity.EventTokenExpired {
				wg.Add(1)
				go func() {
					defer wg.Done()
					m.refresh(ctx)
				}()
			}
			m.apply(e)
		}
	}
}

// refresh renews an expired token, logging the user out when it can't.
// Nothing is forced when Run is stopping or the session already ended.
func (m *Manager) refresh(ctx context.Context) {
	_, err := m.auth.UpdateToken(ctx, RefreshMinValidity)
	switch {
	case err == nil:
		return
	case ctx.Err() != nil:
		m.logger.Debug("token refresh interrupted", "error", err)
		return
	case errors.Is(err, identity.ErrNotAuthenticated):
		m.logger.Debug("session ended during token refresh")
		return
	}
	m.logger.Warn("token refresh failed, logging out", "error", err)
	if err := m.auth.Logout(ctx); err != nil {
		m.logger.Warn("logout after failed refresh", "error", err)
	}
}

func (m *Manager) apply(e identity.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := m.current
	switch e.Type {
	case identity.EventReady:
		if e.Err != nil {
			m.logger.Error("identity initialization failed", "error", e.Err)
		}
		next.IsLoading = false
		next = withIdentity(next, e)
	case identity.EventAuthSuccess, identity.EventAuthRefreshSuccess:
		next = withIdentity(next, e)
	case identity.EventAuthError:
		m.logger.Warn("login failed", "error", e.Err)
		next = withIdentity(next, e)
	case identity.EventAuthRefreshError, identity.EventAuthLogout:
		next = withIdentity(next, identity.Event{})
	case identity.EventTokenExpired:
		return
	}
	if next == m.current {
		return
	}
	m.current = next
	for _, ch := range m.subs {
		publish(ch, next)
	}
}

// withIdentity copies the identity state of e into s.
func withIdentity(s Session, e identity.Event) Session {
	s.IsAuthenticated = e.Authenticated && e.Token != ""
	s.Token = ""
	s.Username = ""
	if s.IsAuthenticated {
		s.Token = e.Token
		s.Username = e.Username
	}
	return s
}

// publish replaces any unread value in ch with s.
func publish(ch chan Session, s Session) {
	select {
	case ch <- s:
	default:
		select {
		case <-ch:
		default:
		}
		ch <- s
	}
}

// Snapshot returns the current Session.
func (m *Manager) Snapshot() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Subscribe returns a channel holding the latest Session, starting with the
// current one.  Readers that fall behind only see the newest value.  The
// returned func unsubscribes and closes the channel.
func (m *Manager) Subscribe() (<-chan Session, func()) {
	ch := make(chan Session, 1)
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	ch <- m.current
	m.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			delete(m.subs, id)
			close(ch)
		})
	}
}

// Login runs the identity client's login and waits until the Session is
// authenticated.
func (m *Manager) Login(ctx context.Context) error {
	const op = "session.(Manager).Login"
	if m == nil {
		return fmt.Errorf("%s: %w", op, ErrNoManager)
	}
	ch, unsubscribe := m.Subscribe()
	defer unsubscribe()
	if err := m.auth.Login(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := waitFor(ctx, ch, func(s Session) bool { return s.IsAuthenticated }); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Logout runs the identity client's logout and waits until the Session is
// no longer authenticated, which happens even when the logout reports an
// error.
func (m *Manager) Logout(ctx context.Context) error {
	const op = "session.(Manager).Logout"
	if m == nil {
		return fmt.Errorf("%s: %w", op, ErrNoManager)
	}
	ch, unsubscribe := m.Subscribe()
	defer unsubscribe()
	logoutErr := m.auth.Logout(ctx)
	if err := waitFor(ctx, ch, func(s Session) bool { return !s.IsAuthenticated }); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if logoutErr != nil {
		return fmt.Errorf("%s: %w", op, logoutErr)
	}
	return nil
}

func waitFor(ctx context.Context, ch <-chan Session, cond func(Session) bool) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case s, ok := <-ch:
			if !ok {
				return ErrNoManager
			}
			if cond(s) {
				return nil
			}
		}
	}
}
