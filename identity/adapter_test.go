// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package identity

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/hashicorp/cap-demo/oidc"
	"github.com/hashicorp/cap-demo/tokenstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRealm = "sam-test"

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// testFreePort returns a loopback port nothing is listening on.
func testFreePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func testConfig(t *testing.T, tp *oidc.TestProvider) Config {
	t.Helper()
	return Config{
		ServerURL:    tp.ServerURL(),
		Realm:        testRealm,
		ClientID:     tp.ClientID(),
		RedirectURL:  fmt.Sprintf("http://127.0.0.1:%d/callback", testFreePort(t)),
		SigningAlgs:  []oidc.Alg{oidc.ES256},
		ProviderCA:   tp.CACert(),
		LoginTimeout: 10 * time.Second,
	}
}

// testBrowser follows the authorization URL the way a browser would, ending
// at the adapter's callback listener.
func testBrowser(tp *oidc.TestProvider) Opener {
	client := tp.HTTPClient()
	return func(authURL string) error {
		go func() {
			resp, err := client.Get(authURL)
			if err == nil {
				resp.Body.Close()
			}
		}()
		return nil
	}
}

func testAdapter(t *testing.T, tp *oidc.TestProvider, cfg Config, opt ...Option) *Adapter {
	t.Helper()
	opt = append([]Option{WithOpener(testBrowser(tp))}, opt...)
	a, err := New(cfg, opt...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

// testNextEvent reads events until one of typ arrives.
func testNextEvent(t *testing.T, a *Adapter, typ EventType) Event {
	t.Helper()
	timeout := time.After(10 * time.Second)
	for {
		select {
		case e := <-a.Events():
			if e.Type == typ {
				return e
			}
		case <-timeout:
			require.FailNow(t, "timed out waiting for event", typ.String())
		}
	}
}

func TestNew(t *testing.T) {
	t.Parallel()
	t.Run("valid", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		a, err := New(Config{
			ServerURL:   DefaultServerURL,
			Realm:       DefaultRealm,
			ClientID:    DefaultClientID,
			RedirectURL: DefaultRedirectURL,
		})
		require.NoError(err)
		assert.Equal([]oidc.Alg{oidc.RS256}, a.cfg.SigningAlgs)
		assert.Equal(DefaultLoginTimeout, a.cfg.LoginTimeout)
		assert.False(a.Authenticated())
		assert.Empty(a.Token())
		assert.Nil(a.IDTokenClaims())
	})
	t.Run("invalid", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		a, err := New(Config{})
		require.Error(err)
		assert.Nil(a)
		assert.True(errors.Is(err, ErrInvalidConfig))
	})
}

func TestAdapter_notInitialized(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	tp := oidc.StartTestProvider(t, oidc.WithTestRealm(testRealm))
	a := testAdapter(t, tp, testConfig(t, tp))
	ctx := testCtx(t)

	assert.ErrorIs(a.Login(ctx), ErrNotInitialized)
	assert.ErrorIs(a.Logout(ctx), ErrNotInitialized)
	_, err := a.UpdateToken(ctx, 0)
	assert.ErrorIs(err, ErrNotInitialized)
}

func TestAdapter_Init(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		opts      InitOptions
		badServer bool
		wantAuth  bool
		wantErrIs error
	}{
		{
			name: "check-sso-nothing-stored",
			opts: InitOptions{OnLoad: CheckSSO, PKCEMethod: S256},
		},
		{
			name:     "login-required",
			opts:     InitOptions{OnLoad: LoginRequired, PKCEMethod: S256},
			wantAuth: true,
		},
		{
			name:      "plain-pkce",
			opts:      InitOptions{OnLoad: CheckSSO, PKCEMethod: "plain"},
			wantErrIs: ErrInvalidInitOptions,
		},
		{
			name:      "iframe",
			opts:      InitOptions{OnLoad: CheckSSO, PKCEMethod: S256, CheckLoginIframe: true},
			wantErrIs: ErrInvalidInitOptions,
		},
		{
			name:      "unknown-onload",
			opts:      InitOptions{OnLoad: "sometimes", PKCEMethod: S256},
			wantErrIs: ErrInvalidInitOptions,
		},
		{
			name:      "unreachable-provider",
			opts:      InitOptions{OnLoad: CheckSSO, PKCEMethod: S256},
			badServer: true,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert, require := assert.New(t), require.New(t)
			tp := oidc.StartTestProvider(t, oidc.WithTestRealm(testRealm))
			cfg := testConfig(t, tp)
			if tt.badServer {
				cfg.Realm = "no-such-realm"
			}
			a := testAdapter(t, tp, cfg)

			authenticated, err := a.Init(testCtx(t), tt.opts)
			ready := testNextEvent(t, a, EventReady)
			if tt.wantErrIs != nil || tt.badServer {
				require.Error(err)
				if tt.wantErrIs != nil {
					assert.ErrorIs(err, tt.wantErrIs)
				}
				assert.False(authenticated)
				assert.Error(ready.Err)
				assert.False(ready.Authenticated)
				return
			}
			require.NoError(err)
			assert.NoError(ready.Err)
			assert.Equal(tt.wantAuth, authenticated)
			assert.Equal(tt.wantAuth, ready.Authenticated)
			assert.Equal(tt.wantAuth, a.Authenticated())
			if tt.wantAuth {
				assert.NotEmpty(ready.Token)
				assert.Equal(a.Token(), ready.Token)
				assert.Equal("alice", ready.Username)
				assert.Equal("alice", a.Username())
				assert.Equal("alice@example.com", a.IDTokenClaims()["email"])
			} else {
				assert.Empty(ready.Token)
				assert.Empty(a.Token())
			}

			_, err = a.Init(testCtx(t), tt.opts)
			assert.ErrorIs(err, ErrAlreadyInitialized)
		})
	}
}

func TestAdapter_checkSSO(t *testing.T) {
	t.Parallel()
	tp := oidc.StartTestProvider(t, oidc.WithTestRealm(testRealm))
	cfg := testConfig(t, tp)
	key := tokenstore.Key(cfg.Issuer(), cfg.ClientID)

	t.Run("restores", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		store := tokenstore.NewMemory()
		first := testAdapter(t, tp, cfg, WithStore(store))
		ok, err := first.Init(testCtx(t), InitOptions{OnLoad: LoginRequired, PKCEMethod: S256})
		require.NoError(err)
		require.True(ok)
		rec, err := store.Load(testCtx(t), key)
		require.NoError(err)
		assert.NotEmpty(rec.RefreshToken)
		require.NoError(first.Close())

		second := testAdapter(t, tp, cfg, WithStore(store))
		ok, err = second.Init(testCtx(t), InitOptions{OnLoad: CheckSSO, PKCEMethod: S256})
		require.NoError(err)
		assert.True(ok)
		assert.NotEmpty(second.Token())
		assert.Equal("alice", second.Username())
		e := testNextEvent(t, second, EventAuthSuccess)
		assert.True(e.Authenticated)
	})
	t.Run("revoked", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		store := tokenstore.NewMemory()
		first := testAdapter(t, tp, cfg, WithStore(store))
		_, err := first.Init(testCtx(t), InitOptions{OnLoad: LoginRequired, PKCEMethod: S256})
		require.NoError(err)
		require.NoError(first.Close())
		tp.RevokeRefreshTokens()

		second := testAdapter(t, tp, cfg, WithStore(store))
		ok, err := second.Init(testCtx(t), InitOptions{OnLoad: CheckSSO, PKCEMethod: S256})
		require.NoError(err)
		assert.False(ok)
		assert.Empty(second.Token())
		_, err = store.Load(testCtx(t), key)
		assert.ErrorIs(err, tokenstore.ErrNotFound)
	})
}

func TestAdapter_Login(t *testing.T) {
	t.Parallel()
	t.Run("denied", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := oidc.StartTestProvider(t, oidc.WithTestRealm(testRealm))
		a := testAdapter(t, tp, testConfig(t, tp))
		_, err := a.Init(testCtx(t), InitOptions{OnLoad: CheckSSO, PKCEMethod: S256})
		require.NoError(err)

		tp.DenyAuth()
		err = a.Login(testCtx(t))
		require.Error(err)
		assert.ErrorIs(err, oidc.ErrLoginFailed)
		e := testNextEvent(t, a, EventAuthError)
		assert.Error(e.Err)
		assert.False(e.Authenticated)
		assert.False(a.Authenticated())
	})
	t.Run("timeout", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := oidc.StartTestProvider(t, oidc.WithTestRealm(testRealm))
		cfg := testConfig(t, tp)
		cfg.LoginTimeout = 250 * time.Millisecond
		a := testAdapter(t, tp, cfg, WithOpener(func(string) error { return nil }))
		_, err := a.Init(testCtx(t), InitOptions{OnLoad: CheckSSO, PKCEMethod: S256})
		require.NoError(err)

		err = a.Login(testCtx(t))
		assert.ErrorIs(err, ErrLoginTimeout)
		assert.False(a.Authenticated())
	})
	t.Run("canceled", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := oidc.StartTestProvider(t, oidc.WithTestRealm(testRealm))
		a := testAdapter(t, tp, testConfig(t, tp), WithOpener(func(string) error { return errors.New("no browser") }))
		_, err := a.Init(testCtx(t), InitOptions{OnLoad: CheckSSO, PKCEMethod: S256})
		require.NoError(err)

		ctx, cancel := context.WithCancel(testCtx(t))
		time.AfterFunc(100*time.Millisecond, cancel)
		err = a.Login(ctx)
		assert.ErrorIs(err, context.Canceled)
	})
}

func TestAdapter_Logout(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	tp := oidc.StartTestProvider(t, oidc.WithTestRealm(testRealm))
	cfg := testConfig(t, tp)
	store := tokenstore.NewMemory()
	a := testAdapter(t, tp, cfg, WithStore(store))
	ok, err := a.Init(testCtx(t), InitOptions{OnLoad: LoginRequired, PKCEMethod: S256})
	require.NoError(err)
	require.True(ok)

	require.NoError(a.Logout(testCtx(t)))
	e := testNextEvent(t, a, EventAuthLogout)
	assert.False(e.Authenticated)
	assert.Empty(e.Token)
	assert.False(a.Authenticated())
	assert.Empty(a.Username())
	assert.Equal(1, tp.Logouts())
	_, err = store.Load(testCtx(t), tokenstore.Key(cfg.Issuer(), cfg.ClientID))
	assert.ErrorIs(err, tokenstore.ErrNotFound)

	// logging out again still clears the session and notifies
	require.NoError(a.Logout(testCtx(t)))
	testNextEvent(t, a, EventAuthLogout)
}

func TestAdapter_UpdateToken(t *testing.T) {
	t.Parallel()
	t.Run("not-authenticated", func(t *testing.T) {
		tp := oidc.StartTestProvider(t, oidc.WithTestRealm(testRealm))
		a := testAdapter(t, tp, testConfig(t, tp))
		_, err := a.Init(testCtx(t), InitOptions{OnLoad: CheckSSO, PKCEMethod: S256})
		require.NoError(t, err)
		_, err = a.UpdateToken(testCtx(t), 30*time.Second)
		assert.ErrorIs(t, err, ErrNotAuthenticated)
	})
	t.Run("refresh", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := oidc.StartTestProvider(t, oidc.WithTestRealm(testRealm))
		a := testAdapter(t, tp, testConfig(t, tp))
		_, err := a.Init(testCtx(t), InitOptions{OnLoad: LoginRequired, PKCEMethod: S256})
		require.NoError(err)
		before := a.Token()

		refreshed, err := a.UpdateToken(testCtx(t), 5*time.Second)
		require.NoError(err)
		assert.False(refreshed)
		assert.Equal(before, a.Token())

		// tokens issued within the same second can be identical
		time.Sleep(1100 * time.Millisecond)
		refreshed, err = a.UpdateToken(testCtx(t), -1)
		require.NoError(err)
		assert.True(refreshed)
		assert.NotEqual(before, a.Token())
		e := testNextEvent(t, a, EventAuthRefreshSuccess)
		assert.True(e.Authenticated)
		assert.Equal(a.Token(), e.Token)
	})
	t.Run("revoked", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := oidc.StartTestProvider(t, oidc.WithTestRealm(testRealm))
		a := testAdapter(t, tp, testConfig(t, tp))
		_, err := a.Init(testCtx(t), InitOptions{OnLoad: LoginRequired, PKCEMethod: S256})
		require.NoError(err)

		tp.RevokeRefreshTokens()
		refreshed, err := a.UpdateToken(testCtx(t), -1)
		require.Error(err)
		assert.False(refreshed)
		assert.ErrorIs(err, oidc.ErrRefreshFailed)
		e := testNextEvent(t, a, EventAuthRefreshError)
		assert.Error(e.Err)
	})
}

func TestAdapter_UpdateTokenDuringLogout(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	tp := oidc.StartTestProvider(t, oidc.WithTestRealm(testRealm))
	tp.DisableEndSession()
	cfg := testConfig(t, tp)
	store := tokenstore.NewMemory()
	a := testAdapter(t, tp, cfg, WithStore(store))
	_, err := a.Init(testCtx(t), InitOptions{OnLoad: LoginRequired, PKCEMethod: S256})
	require.NoError(err)
	require.True(a.Authenticated())

	tp.SetRefreshDelay(500 * time.Millisecond)
	type result struct {
		refreshed bool
		err       error
	}
	done := make(chan result, 1)
	go func() {
		refreshed, err := a.UpdateToken(testCtx(t), -1)
		done <- result{refreshed, err}
	}()

	time.Sleep(100 * time.Millisecond)
	require.NoError(a.Logout(testCtx(t)))
	testNextEvent(t, a, EventAuthLogout)

	var r result
	select {
	case r = <-done:
	case <-time.After(10 * time.Second):
		require.FailNow("refresh did not return")
	}
	assert.False(r.refreshed)
	assert.ErrorIs(r.err, ErrNotAuthenticated)
	assert.Empty(a.Token())
	assert.False(a.Authenticated())
	_, err = store.Load(testCtx(t), tokenstore.Key(cfg.Issuer(), cfg.ClientID))
	assert.ErrorIs(err, tokenstore.ErrNotFound)

	select {
	case e := <-a.Events():
		assert.NotEqual(EventAuthRefreshSuccess, e.Type)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestAdapter_tokenExpired(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	tp := oidc.StartTestProvider(t, oidc.WithTestRealm(testRealm))
	tp.SetTokenTTL(time.Second)
	a := testAdapter(t, tp, testConfig(t, tp))
	_, err := a.Init(testCtx(t), InitOptions{OnLoad: LoginRequired, PKCEMethod: S256})
	require.NoError(err)

	e := testNextEvent(t, a, EventTokenExpired)
	assert.True(e.Authenticated)
	assert.Equal(a.Token(), e.Token)

	refreshed, err := a.UpdateToken(testCtx(t), 30*time.Second)
	require.NoError(err)
	assert.True(refreshed)
}

func TestAdapter_tokenExpiredAfterLogout(t *testing.T) {
	t.Parallel()
	require := require.New(t)
	tp := oidc.StartTestProvider(t, oidc.WithTestRealm(testRealm))
	tp.SetTokenTTL(time.Second)
	a := testAdapter(t, tp, testConfig(t, tp))
	_, err := a.Init(testCtx(t), InitOptions{OnLoad: LoginRequired, PKCEMethod: S256})
	require.NoError(err)
	require.NoError(a.Logout(testCtx(t)))
	testNextEvent(t, a, EventAuthLogout)

	select {
	case e := <-a.Events():
		require.NotEqual(EventTokenExpired, e.Type)
	case <-time.After(2 * time.Second):
	}
}
