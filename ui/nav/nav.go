// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package nav renders the navigation bar: page links on the left, the user
// and a login or logout action on the right.
package nav

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/hashicorp/cap-demo/session"
	"github.com/hashicorp/cap-demo/ui/i18n"
	"github.com/hashicorp/cap-demo/ui/messages"
)

var (
	barStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("#333333")).
			Foreground(lipgloss.Color("#FFFFFF"))

	activeStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("#007BFF")).
			Foreground(lipgloss.Color("#FFFFFF")).
			Bold(true).
			Padding(0, 1)

	linkStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("#555555")).
			Foreground(lipgloss.Color("#CCCCCC")).
			Padding(0, 1)

	userStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("#333333")).
			Foreground(lipgloss.Color("#00FF00")).
			Padding(0, 1)

	loginStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("#007BFF")).
			Foreground(lipgloss.Color("#FFFFFF")).
			Padding(0, 1)

	logoutStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("#DC3545")).
			Foreground(lipgloss.Color("#FFFFFF")).
			Padding(0, 1)
)

type link struct {
	key   string
	label string
	route messages.Route
}

var links = []link{
	{"h", "Home", messages.RouteHome},
	{"p", "Protected page", messages.RouteProtected},
}

// Model is the navigation bar.
type Model struct {
	width   int
	route   messages.Route
	session session.Session
	printer *i18n.Printer
}

// New creates the navigation bar from the manager's current session.
func New(mgr *session.Manager, p *i18n.Printer) (Model, error) {
	const op = "nav.New"
	if mgr == nil {
		return Model{}, fmt.Errorf("%s: %w", op, session.ErrNoManager)
	}
	return Model{
		route:   messages.RouteHome,
		session: mgr.Snapshot(),
		printer: p,
	}, nil
}

// SetSize sets the bar's width.
func (m *Model) SetSize(w int) {
	m.width = w
}

// Update tracks the route and session.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case messages.NavigateMsg:
		m.route = msg.Route
	case messages.SessionMsg:
		m.session = msg.Session
	}
	return m, nil
}

// View renders the bar.
func (m Model) View() string {
	left := ""
	for _, l := range links {
		label := fmt.Sprintf("%s %s", l.key, m.printer.T(l.label))
		if l.route == m.route {
			left += activeStyle.Render(label)
		} else {
			left += linkStyle.Render(label)
		}
	}

	var right string
	switch {
	case m.session.IsAuthenticated:
		right = userStyle.Render(m.printer.T("Welcome, %s!", m.session.Username)) +
			logoutStyle.Render("o "+m.printer.T("Logout"))
	case !m.session.IsLoading:
		right = loginStyle.Render("l " + m.printer.T("Login"))
	}

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	return barStyle.Render(left + barStyle.Render(fmt.Sprintf("%*s", gap, "")) + right)
}
