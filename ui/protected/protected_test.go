// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package protected

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/hashicorp/cap-demo/api"
	"github.com/hashicorp/cap-demo/session"
	"github.com/hashicorp/cap-demo/ui/i18n"
	"github.com/hashicorp/cap-demo/ui/messages"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func keyMsg(k string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
}

// testBackend serves status and body on every path and counts requests.
func testBackend(t *testing.T, status int, body string) (*api.Client, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	c, err := api.NewClient(srv.URL)
	require.NoError(t, err)
	return c, &calls
}

// testPage returns a sized page over s.
func testPage(t *testing.T, s session.Session, c Caller) Model {
	t.Helper()
	mgr, _ := session.StartTestManager(t, s)
	m, err := New(context.Background(), mgr, c, i18n.NewPrinter(language.English))
	require.NoError(t, err)
	m.SetSize(120, 60)
	return m
}

// testResult runs cmd, expanding batches, and returns the APIResultMsg it
// produced.
func testResult(t *testing.T, cmd tea.Cmd) messages.APIResultMsg {
	t.Helper()
	require.NotNil(t, cmd)
	switch msg := cmd().(type) {
	case messages.APIResultMsg:
		return msg
	case tea.BatchMsg:
		for _, c := range msg {
			if c == nil {
				continue
			}
			if r, ok := c().(messages.APIResultMsg); ok {
				return r
			}
		}
	}
	require.FailNow(t, "no api result")
	return messages.APIResultMsg{}
}

var loggedIn = session.Session{IsAuthenticated: true, Token: "tk", Username: "alice"}

func TestNew(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	c, _ := testBackend(t, http.StatusOK, `{}`)

	_, err := New(context.Background(), nil, c, nil)
	assert.ErrorIs(err, session.ErrNoManager)

	mgr, _ := session.StartTestManager(t, session.Session{})
	_, err = New(context.Background(), mgr, nil, nil)
	assert.ErrorIs(err, session.ErrInvalidParameter)
}

func TestModel_guarded(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	c, calls := testBackend(t, http.StatusOK, `{}`)
	m := testPage(t, session.Session{}, c)

	v := m.View()
	assert.Contains(v, "Login required")
	assert.NotContains(v, "Backend API tests")

	m, cmd := m.Update(keyMsg("1"))
	assert.Nil(cmd)
	assert.False(m.Loading())
	assert.Equal(int32(0), atomic.LoadInt32(calls))
}

func TestModel_call(t *testing.T) {
	t.Parallel()
	t.Run("ok", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		c, calls := testBackend(t, http.StatusOK, `{"ok":true}`)
		m := testPage(t, loggedIn, c)

		m, cmd := m.Update(keyMsg("1"))
		require.True(m.Loading())
		assert.Contains(m.View(), "Calling...")

		r := testResult(t, cmd)
		assert.Equal(api.Protected.Name, r.Endpoint)
		m, _ = m.Update(r)
		assert.False(m.Loading())
		assert.NoError(m.err)
		assert.Equal("{\n  \"ok\": true\n}", m.result)
		v := m.View()
		assert.Contains(v, "API response:")
		assert.Contains(v, `"ok": true`)
		assert.Equal(int32(1), atomic.LoadInt32(calls))
	})
	t.Run("unauthorized", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		c, _ := testBackend(t, http.StatusUnauthorized, `{"detail":"Invalid token"}`)
		m := testPage(t, loggedIn, c)

		m, cmd := m.Update(keyMsg("2"))
		require.True(m.Loading())
		m, _ = m.Update(testResult(t, cmd))
		v := m.View()
		assert.Contains(v, "Error: API call failed: 401 Unauthorized")
		assert.NotContains(v, "API response:")
		assert.Empty(m.result)
	})
	t.Run("no-token", func(t *testing.T) {
		t.Parallel()
		assert := assert.New(t)
		c, calls := testBackend(t, http.StatusOK, `{}`)
		m := testPage(t, session.Session{IsLoading: true}, c)
		// authenticated while the token is still being fetched
		m, _ = m.Update(messages.SessionMsg{Session: session.Session{IsAuthenticated: true, Username: "alice"}})

		m, cmd := m.Update(keyMsg("3"))
		assert.Nil(cmd)
		assert.False(m.Loading())
		assert.Contains(m.View(), "Error: No token available")
		assert.Equal(int32(0), atomic.LoadInt32(calls))
	})
}

func TestModel_sequence(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	c, calls := testBackend(t, http.StatusOK, `{"n":1}`)
	m := testPage(t, loggedIn, c)

	m, first := m.Update(keyMsg("1"))
	require.True(m.Loading())

	// other actions are ignored while a call is in flight
	m, cmd := m.Update(keyMsg("4"))
	assert.Nil(cmd)
	assert.Equal(1, m.seq)

	r := testResult(t, first)
	m, _ = m.Update(r)
	require.False(m.Loading())
	require.NotEmpty(m.result)

	// a new call clears the panel, and a late reply to the old call is
	// dropped
	m, second := m.Update(keyMsg("5"))
	require.True(m.Loading())
	assert.Empty(m.result)
	m, _ = m.Update(messages.APIResultMsg{Seq: r.Seq, Endpoint: r.Endpoint, Err: errors.New("stale")})
	assert.True(m.Loading())
	assert.NoError(m.err)

	r = testResult(t, second)
	assert.Equal(api.TestNoVerify.Name, r.Endpoint)
	m, _ = m.Update(r)
	assert.False(m.Loading())
	assert.Equal("{\n  \"n\": 1\n}", m.result)
	assert.Equal(int32(2), atomic.LoadInt32(calls))
}

func TestModel_sessionChange(t *testing.T) {
	t.Parallel()
	t.Run("logout-login", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		c, _ := testBackend(t, http.StatusOK, `{"email":"alice@example.com"}`)
		m := testPage(t, loggedIn, c)

		m, cmd := m.Update(keyMsg("2"))
		m, _ = m.Update(testResult(t, cmd))
		require.Contains(m.View(), "alice@example.com")

		m, _ = m.Update(messages.SessionMsg{})
		m, _ = m.Update(messages.SessionMsg{Session: session.Session{IsAuthenticated: true, Token: "bob-token", Username: "bob"}})
		v := m.View()
		assert.NotContains(v, "alice@example.com")
		assert.NotContains(v, "API response:")
		assert.Empty(m.active)
		assert.NoError(m.err)
	})
	t.Run("in-flight", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		c, _ := testBackend(t, http.StatusOK, `{"email":"alice@example.com"}`)
		m := testPage(t, loggedIn, c)

		m, cmd := m.Update(keyMsg("2"))
		require.True(m.Loading())
		r := testResult(t, cmd)

		// a new token before the reply arrives
		m, _ = m.Update(messages.SessionMsg{Session: session.Session{IsAuthenticated: true, Token: "bob-token", Username: "bob"}})
		assert.False(m.Loading())
		m, _ = m.Update(r)
		assert.Empty(m.result)
		assert.NotContains(m.View(), "alice@example.com")
	})
	t.Run("same-token", func(t *testing.T) {
		t.Parallel()
		assert := assert.New(t)
		c, _ := testBackend(t, http.StatusOK, `{"ok":true}`)
		m := testPage(t, loggedIn, c)

		m, cmd := m.Update(keyMsg("1"))
		m, _ = m.Update(testResult(t, cmd))
		m, _ = m.Update(messages.SessionMsg{Session: loggedIn})
		assert.Contains(m.View(), `"ok": true`)
	})
}

func TestErrorText(t *testing.T) {
	t.Parallel()
	p := i18n.NewPrinter(language.English)
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "status", err: &api.StatusError{Code: 403, StatusText: "Forbidden"}, want: "API call failed: 403 Forbidden"},
		{name: "wrapped-status", err: fmt.Errorf("call: %w", &api.StatusError{Code: 500, StatusText: "Internal Server Error"}), want: "API call failed: 500 Internal Server Error"},
		{name: "missing-token", err: api.ErrMissingToken, want: "No token available"},
		{name: "other", err: errors.New("connection refused"), want: "connection refused"},
		{name: "empty", err: errors.New(""), want: "Unknown error"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, errorText(p, tt.err))
		})
	}
	assert.Equal(t, "API 呼叫失敗: 401 Unauthorized", errorText(i18n.NewPrinter(language.TraditionalChinese), &api.StatusError{Code: 401, StatusText: "Unauthorized"}))
}
