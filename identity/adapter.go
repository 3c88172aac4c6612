// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package identity

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/hashicorp/cap-demo/oidc"
	"github.com/hashicorp/cap-demo/oidc/callback"
	"github.com/hashicorp/cap-demo/tokenstore"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/oauth2"
)

// Adapter is the application's identity client.  It owns the relying party
// configuration and reports every change to its authentication state as an
// Event.
type Adapter struct {
	cfg    Config
	logger hclog.Logger
	store  tokenstore.Store
	opener Opener

	events    chan Event
	done      chan struct{}
	closeOnce sync.Once

	mu          sync.Mutex
	provider    *oidc.Provider
	initialized bool
	loggingIn   bool
	token       oidc.Token
	claims      map[string]interface{}
	expiryTimer *time.Timer
	// generation is bumped whenever token changes, so a stale expiry timer
	// can tell it no longer applies.
	generation uint64
}

// New creates an Adapter.  Nothing is sent to the provider until Init.
//
// Supported options: WithLogger, WithStore, WithOpener, WithEventBuffer
func New(cfg Config, opt ...Option) (*Adapter, error) {
	const op = "identity.New"
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	opts := getOpts(opt...)
	return &Adapter{
		cfg:    cfg.withDefaults(),
		logger: opts.withLogger,
		store:  opts.withStore,
		opener: opts.withOpener,
		events: make(chan Event, opts.withEventBuffer),
		done:   make(chan struct{}),
	}, nil
}

// Events returns the channel every Event is sent on.  It is never closed;
// sends are abandoned once the adapter is closed.
func (a *Adapter) Events() <-chan Event { return a.events }

// Init discovers the provider and resolves the initial authentication state
// according to opts.OnLoad.  An EventReady is sent whether or not Init
// succeeds, unless the adapter was already initialized.
func (a *Adapter) Init(ctx context.Context, opts InitOptions) (bool, error) {
	const op = "identity.(Adapter).Init"
	a.mu.Lock()
	if a.initialized {
		a.mu.Unlock()
		return false, fmt.Errorf("%s: %w", op, ErrAlreadyInitialized)
	}
	a.initialized = true
	a.mu.Unlock()

	fail := func(err error) (bool, error) {
		err = fmt.Errorf("%s: %w", op, err)
		a.logger.Error("identity initialization failed", "error", err)
		a.emit(Event{Type: EventReady, Err: err})
		return false, err
	}

	if err := opts.Validate(); err != nil {
		return fail(err)
	}
	p, err := a.newProvider()
	if err != nil {
		return fail(err)
	}
	a.mu.Lock()
	a.provider = p
	a.mu.Unlock()

	switch opts.OnLoad {
	case LoginRequired:
		if err := a.Login(ctx); err != nil {
			return fail(err)
		}
	case CheckSSO:
		t, err := a.restore(ctx, p)
		switch {
		case err != nil:
			a.logger.Warn("unable to restore session", "error", err)
		case t != nil:
			a.setToken(ctx, t)
			a.logger.Info("session restored", "username", a.Username())
			a.emit(a.event(EventAuthSuccess, nil))
		default:
			a.logger.Debug("no stored session")
		}
	}

	e := a.event(EventReady, nil)
	a.emit(e)
	return e.Authenticated, nil
}

func (a *Adapter) newProvider() (*oidc.Provider, error) {
	const op = "identity.(Adapter).newProvider"
	pc, err := oidc.NewConfig(
		a.cfg.Issuer(),
		a.cfg.ClientID,
		"",
		a.cfg.SigningAlgs,
		a.cfg.RedirectURL,
		oidc.WithScopes(a.cfg.Scopes...),
		oidc.WithAudiences(a.cfg.ClientID),
		oidc.WithProviderCA(a.cfg.ProviderCA),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	p, err := oidc.NewProvider(pc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

// restore refreshes the stored login, if there is one.  A stored login the
// provider no longer honors is deleted.
func (a *Adapter) restore(ctx context.Context, p *oidc.Provider) (oidc.Token, error) {
	const op = "identity.(Adapter).restore"
	rec, err := a.store.Load(ctx, a.storeKey())
	switch {
	case errors.Is(err, tokenstore.ErrNotFound):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	prev, err := oidc.NewToken(oidc.IDToken(rec.IDToken), &oauth2.Token{RefreshToken: rec.RefreshToken, Expiry: rec.Expiry})
	if err == nil {
		var t *oidc.Tk
		if t, err = p.Refresh(ctx, prev); err == nil {
			return t, nil
		}
	}
	if delErr := a.store.Delete(ctx, rec.Key); delErr != nil {
		err = multierror.Append(err, delErr)
	}
	return nil, fmt.Errorf("%s: %w", op, err)
}

// Login runs the authorization code flow with PKCE: it listens on the
// redirect URL, sends the browser to the provider and waits for the
// callback, the login timeout or ctx.
func (a *Adapter) Login(ctx context.Context) error {
	const op = "identity.(Adapter).Login"
	a.mu.Lock()
	p := a.provider
	switch {
	case p == nil:
		a.mu.Unlock()
		return fmt.Errorf("%s: %w", op, ErrNotInitialized)
	case a.loggingIn:
		a.mu.Unlock()
		return fmt.Errorf("%s: %w", op, ErrLoginInProgress)
	}
	a.loggingIn = true
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		a.loggingIn = false
		a.mu.Unlock()
	}()

	t, err := a.login(ctx, p)
	if err != nil {
		err = fmt.Errorf("%s: %w", op, err)
		a.logger.Error("login failed", "error", err)
		a.emit(a.event(EventAuthError, err))
		return err
	}
	a.setToken(ctx, t)
	a.logger.Info("login succeeded", "username", a.Username())
	a.emit(a.event(EventAuthSuccess, nil))
	return nil
}

func (a *Adapter) login(ctx context.Context, p *oidc.Provider) (oidc.Token, error) {
	const op = "identity.(Adapter).login"
	s, err := oidc.NewState(a.cfg.LoginTimeout)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	ctx, cancel := context.WithTimeout(ctx, a.cfg.LoginTimeout)
	defer cancel()

	respCh, handler, err := callback.AuthCodeWithChannel(ctx, p, s, successPage, failurePage)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	authURL, err := p.AuthURL(ctx, s)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	redirect, err := url.Parse(a.cfg.RedirectURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	path := redirect.Path
	if path == "" {
		path = "/"
	}
	mux := http.NewServeMux()
	mux.Handle(path, handler)

	listener, err := net.Listen("tcp", redirect.Host)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to listen for the callback on %s: %w", op, redirect.Host, err)
	}
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          a.logger.StandardLogger(&hclog.StandardLoggerOptions{InferLevels: true}),
	}
	srvCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvCh <- err
		}
	}()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Debug("callback listener shutdown", "error", err)
		}
	}()

	a.logger.Debug("opening browser for login", "issuer", a.cfg.Issuer(), "redirect_url", a.cfg.RedirectURL)
	if err := a.opener(authURL); err != nil {
		a.logger.Warn("unable to open a browser, visit the authorization URL manually", "url", authURL, "error", err)
	}

	select {
	case resp := <-respCh:
		if resp.Error != nil {
			return nil, fmt.Errorf("%s: %w", op, resp.Error)
		}
		return resp.Token, nil
	case err := <-srvCh:
		return nil, fmt.Errorf("%s: callback listener failed: %w", op, err)
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%s: %w", op, ErrLoginTimeout)
		}
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	}
}

// Logout ends the provider session, deletes the stored login and clears the
// local tokens.  The local state is cleared and an EventAuthLogout sent even
// when the provider or the store fail.
func (a *Adapter) Logout(ctx context.Context) error {
	const op = "identity.(Adapter).Logout"
	a.mu.Lock()
	p, t := a.provider, a.token
	a.mu.Unlock()
	if p == nil {
		return fmt.Errorf("%s: %w", op, ErrNotInitialized)
	}

	var result *multierror.Error
	if t != nil {
		if err := p.Logout(ctx, t); err != nil {
			result = multierror.Append(result, err)
		}
	}
	// a refresh finishing after clearToken is dropped, and one finishing
	// before it has already saved, so the delete always wins
	a.clearToken()
	if err := a.store.Delete(ctx, a.storeKey()); err != nil {
		result = multierror.Append(result, err)
	}
	a.emit(a.event(EventAuthLogout, nil))

	if err := result.ErrorOrNil(); err != nil {
		a.logger.Warn("logout incomplete", "error", err)
		return fmt.Errorf("%s: %w", op, err)
	}
	a.logger.Info("logged out")
	return nil
}

// UpdateToken refreshes the token if it expires within minValidity.  A
// negative minValidity always refreshes.  It reports whether a refresh
// happened.
func (a *Adapter) UpdateToken(ctx context.Context, minValidity time.Duration) (bool, error) {
	const op = "identity.(Adapter).UpdateToken"
	a.mu.Lock()
	p, t, gen := a.provider, a.token, a.generation
	a.mu.Unlock()
	switch {
	case p == nil:
		return false, fmt.Errorf("%s: %w", op, ErrNotInitialized)
	case t == nil:
		return false, fmt.Errorf("%s: %w", op, ErrNotAuthenticated)
	}
	if minValidity >= 0 && !t.ExpiresWithin(minValidity) {
		return false, nil
	}

	nt, err := p.Refresh(ctx, t)
	if err != nil {
		a.mu.Lock()
		moved := gen != a.generation
		a.mu.Unlock()
		if moved {
			return false, fmt.Errorf("%s: %w: %w", op, ErrNotAuthenticated, err)
		}
		err = fmt.Errorf("%s: %w", op, err)
		a.logger.Warn("token refresh failed", "error", err)
		a.emit(a.event(EventAuthRefreshError, err))
		return false, err
	}
	if !a.swapToken(ctx, nt, &gen) {
		a.logger.Debug("dropping refreshed token, the session changed during the refresh")
		return false, fmt.Errorf("%s: %w", op, ErrNotAuthenticated)
	}
	a.logger.Debug("token refreshed", "expiry", nt.Expiry())
	a.emit(a.event(EventAuthRefreshSuccess, nil))
	return true, nil
}

// Token returns the raw access token, or an empty string.
func (a *Adapter) Token() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.accessToken()
}

// IDTokenClaims returns a copy of the id_token's claims.
func (a *Adapter) IDTokenClaims() map[string]interface{} {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.claims == nil {
		return nil
	}
	c := make(map[string]interface{}, len(a.claims))
	for k, v := range a.claims {
		c[k] = v
	}
	return c
}

// Username returns the preferred_username claim, or an empty string.
func (a *Adapter) Username() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.username()
}

// Authenticated reports whether the adapter holds an access token.
func (a *Adapter) Authenticated() bool {
	return a.Token() != ""
}

// Close stops the expiry timer and releases the provider and the store.
func (a *Adapter) Close() error {
	const op = "identity.(Adapter).Close"
	var result *multierror.Error
	a.closeOnce.Do(func() {
		close(a.done)
		a.mu.Lock()
		if a.expiryTimer != nil {
			a.expiryTimer.Stop()
		}
		a.provider.Done()
		a.mu.Unlock()
		if err := a.store.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	})
	if err := result.ErrorOrNil(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (a *Adapter) storeKey() string {
	return tokenstore.Key(a.cfg.Issuer(), a.cfg.ClientID)
}

// setToken replaces the current token, persists its refresh token and arms
// the expiry timer.
func (a *Adapter) setToken(ctx context.Context, t oidc.Token) {
	a.swapToken(ctx, t, nil)
}

// swapToken is setToken, but when prev is set the token is only replaced if
// the generation still equals *prev.  The store is written under the lock so
// a concurrent Logout can't be overtaken.
func (a *Adapter) swapToken(ctx context.Context, t oidc.Token, prev *uint64) bool {
	var claims map[string]interface{}
	if err := t.IDToken().Claims(&claims); err != nil {
		a.logger.Warn("unable to read id_token claims", "error", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if prev != nil && *prev != a.generation {
		return false
	}
	a.token = t
	a.claims = claims
	a.generation++
	gen := a.generation
	if a.expiryTimer != nil {
		a.expiryTimer.Stop()
		a.expiryTimer = nil
	}
	if exp := t.Expiry(); !exp.IsZero() {
		a.expiryTimer = time.AfterFunc(time.Until(exp), func() { a.expired(gen) })
	}

	if t.RefreshToken() == "" {
		return true
	}
	rec := tokenstore.Record{
		Key:          a.storeKey(),
		RefreshToken: string(t.RefreshToken()),
		IDToken:      string(t.IDToken()),
		Expiry:       t.Expiry(),
		UpdatedAt:    time.Now(),
	}
	if err := a.store.Save(ctx, rec); err != nil {
		a.logger.Warn("unable to store the session", "error", err)
	}
	return true
}

func (a *Adapter) clearToken() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.token = nil
	a.claims = nil
	a.generation++
	if a.expiryTimer != nil {
		a.expiryTimer.Stop()
		a.expiryTimer = nil
	}
}

func (a *Adapter) expired(gen uint64) {
	a.mu.Lock()
	if gen != a.generation {
		a.mu.Unlock()
		return
	}
	a.mu.Unlock()
	a.logger.Debug("access token expired")
	a.emit(a.event(EventTokenExpired, nil))
}

// event snapshots the current state into an Event.
func (a *Adapter) event(typ EventType, err error) Event {
	a.mu.Lock()
	defer a.mu.Unlock()
	tk := a.accessToken()
	return Event{
		Type:          typ,
		Authenticated: tk != "",
		Token:         tk,
		Username:      a.username(),
		Err:           err,
	}
}

func (a *Adapter) emit(e Event) {
	select {
	case a.events <- e:
	case <-a.done:
	}
}

// accessToken requires a.mu
func (a *Adapter) accessToken() string {
	if a.token == nil {
		return ""
	}
	return string(a.token.AccessToken())
}

// username requires a.mu
func (a *Adapter) username() string {
	if u, ok := a.claims["preferred_username"].(string); ok {
		return u
	}
	return ""
}
