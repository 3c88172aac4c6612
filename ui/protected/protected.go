// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package protected is the login-only page.  Besides the user's details it
// offers six backend calls, each bound to a number key, which share a single
// result panel: starting a call clears the panel and a reply is shown only
// if it belongs to the newest call.
package protected

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/hashicorp/cap-demo/api"
	"github.com/hashicorp/cap-demo/session"
	"github.com/hashicorp/cap-demo/ui/guard"
	"github.com/hashicorp/cap-demo/ui/i18n"
	"github.com/hashicorp/cap-demo/ui/messages"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#28A745")).Padding(1, 0)
	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00BFFF"))
	keyStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#007BFF"))
	activeStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFFFFF"))
	idleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#CCCCCC"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#DC3545"))
	resultStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#444444"))
)

// Caller performs one backend call.  *api.Client is the production Caller.
type Caller interface {
	Call(ctx context.Context, e api.Endpoint, token string) (json.RawMessage, error)
}

var _ Caller = (*api.Client)(nil)

type action struct {
	binding  key.Binding
	label    string
	endpoint api.Endpoint
}

var labels = map[string]string{
	api.Protected.Name:    "Call protected API",
	api.UserInfo.Name:     "Get user info",
	api.TokenInfo.Name:    "Get token info",
	api.DebugToken.Name:   "Debug token",
	api.TestNoVerify.Name: "Test without verification",
	api.TestBasic.Name:    "Basic validation",
}

func newActions() []action {
	var actions []action
	for i, e := range api.Endpoints() {
		k := fmt.Sprintf("%d", i+1)
		actions = append(actions, action{
			binding:  key.NewBinding(key.WithKeys(k), key.WithHelp(k, labels[e.Name])),
			label:    labels[e.Name],
			endpoint: e,
		})
	}
	return actions
}

// Bindings returns the keys that start the API calls, in menu order.
func Bindings() []key.Binding {
	var b []key.Binding
	for _, a := range newActions() {
		b = append(b, a.binding)
	}
	return b
}

// Model is the protected page.
type Model struct {
	ctx     context.Context
	client  Caller
	session session.Session
	printer *i18n.Printer
	actions []action

	spinner  spinner.Model
	viewport viewport.Model

	// seq numbers calls; only the reply to the newest one is shown.
	seq     int
	loading bool
	active  string
	err     error
	result  string

	width  int
	height int
}

// New creates the protected page.  ctx bounds every call the page makes.
func New(ctx context.Context, mgr *session.Manager, client Caller, p *i18n.Printer) (Model, error) {
	const op = "protected.New"
	switch {
	case mgr == nil:
		return Model{}, fmt.Errorf("%s: %w", op, session.ErrNoManager)
	case client == nil:
		return Model{}, fmt.Errorf("%s: api client is nil: %w", op, session.ErrInvalidParameter)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return Model{
		ctx:      ctx,
		client:   client,
		session:  mgr.Snapshot(),
		printer:  p,
		actions:  newActions(),
		spinner:  sp,
		viewport: viewport.New(0, 0),
	}, nil
}

// SetSize sets the page dimensions.
func (m *Model) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.viewport.Width = w - resultStyle.GetHorizontalFrameSize()
	m.viewport.Height = h - 26
	if m.viewport.Height < 5 {
		m.viewport.Height = 5
	}
}

// Loading reports whether a call is in flight.
func (m Model) Loading() bool { return m.loading }

// Update handles messages.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case messages.SessionMsg:
		prev := m.session
		m.session = msg.Session
		if !m.session.IsAuthenticated || m.session.Token != prev.Token {
			m = m.reset()
		}
		return m, nil

	case messages.APIResultMsg:
		if msg.Seq != m.seq {
			return m, nil
		}
		m.loading = false
		if msg.Err != nil {
			m.err = msg.Err
			return m, nil
		}
		m.result = api.Pretty(msg.Body)
		m.viewport.SetContent(m.result)
		m.viewport.GotoTop()
		return m, nil

	case spinner.TickMsg:
		if !m.loading {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if !m.session.IsAuthenticated {
			return m, nil
		}
		for _, a := range m.actions {
			if key.Matches(msg, a.binding) {
				if m.loading {
					return m, nil
				}
				return m.call(a.endpoint)
			}
		}
	}

	if m.result != "" {
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}
	return m, nil
}

// reset clears everything tied to the previous token.  Bumping seq drops
// the reply of a call still in flight.
func (m Model) reset() Model {
	m.active = ""
	m.result = ""
	m.err = nil
	m.loading = false
	m.seq++
	m.viewport.SetContent("")
	m.viewport.GotoTop()
	return m
}

func (m Model) call(e api.Endpoint) (Model, tea.Cmd) {
	m.active = e.Name
	m.result = ""
	m.viewport.SetContent("")
	token := m.session.Token
	if token == "" {
		m.err = api.ErrMissingToken
		return m, nil
	}
	m.err = nil
	m.loading = true
	m.seq++

	ctx, client, seq := m.ctx, m.client, m.seq
	return m, tea.Batch(m.spinner.Tick, func() tea.Msg {
		body, err := client.Call(ctx, e, token)
		return messages.APIResultMsg{Seq: seq, Endpoint: e.Name, Body: body, Err: err}
	})
}

func errorText(p *i18n.Printer, err error) string {
	var se *api.StatusError
	switch {
	case errors.As(err, &se):
		return p.T("API call failed: %d %s", se.Code, se.StatusText)
	case errors.Is(err, api.ErrMissingToken):
		return p.T("No token available")
	case err.Error() != "":
		return err.Error()
	default:
		return p.T("Unknown error")
	}
}

// View renders the page, or a login prompt without a session.
func (m Model) View() string {
	return guard.Render(m.session, m.content(), m.printer)
}

func (m Model) content() string {
	p := m.printer
	var sb strings.Builder
	sb.WriteString(titleStyle.Render(p.T("Protected page reached")))
	sb.WriteString("\n")
	sb.WriteString(p.T("You are logged in and can access the protected page."))
	sb.WriteString("\n\n")

	sb.WriteString(headingStyle.Render(p.T("User information")))
	sb.WriteString("\n")
	sb.WriteString(p.T("Username: %s", m.session.Username))
	sb.WriteString("\n")
	sb.WriteString(p.T("Status: logged in"))
	sb.WriteString("\n\n")

	sb.WriteString(headingStyle.Render(p.T("Available actions")))
	sb.WriteString("\n")
	for _, s := range []string{"View your profile", "Call protected APIs", "Perform authenticated actions"} {
		sb.WriteString("  • " + p.T(s) + "\n")
	}
	sb.WriteString("\n")

	sb.WriteString(headingStyle.Render(p.T("Backend API tests")))
	sb.WriteString("\n")
	for _, a := range m.actions {
		style := idleStyle
		if a.endpoint.Name == m.active {
			style = activeStyle
		}
		sb.WriteString("  " + keyStyle.Render(a.binding.Help().Key) + " " + style.Render(p.T(a.label)) + "\n")
	}
	sb.WriteString("\n")

	switch {
	case m.loading:
		sb.WriteString(m.spinner.View() + " " + p.T("Calling..."))
		sb.WriteString("\n")
	case m.err != nil:
		sb.WriteString(errorStyle.Render(p.T("Error: %s", errorText(p, m.err))))
		sb.WriteString("\n")
	case m.result != "":
		sb.WriteString(headingStyle.Render(p.T("API response:")))
		sb.WriteString("\n")
		sb.WriteString(resultStyle.Render(m.viewport.View()))
		sb.WriteString("\n")
	}
	return sb.String()
}
