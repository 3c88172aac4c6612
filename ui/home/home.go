// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package home is the landing page: authentication status, a feature list
// and a collapsible view of the raw token.
package home

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/hashicorp/cap-demo/session"
	"github.com/hashicorp/cap-demo/ui/i18n"
	"github.com/hashicorp/cap-demo/ui/messages"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFFFFF")).Padding(1, 0)
	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00BFFF"))
	hintStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#828282"))
	tokenStyle   = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#A0D0A0")).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Padding(0, 1)
)

// ToggleToken shows or hides the token panel.
var ToggleToken = key.NewBinding(key.WithKeys("t"), key.WithHelp("t", "toggle token"))

var features = []string{
	"Home: shows the current authentication status",
	"Protected page: requires login",
	"Login/Logout: authenticate with the identity provider",
}

// Model is the home page.
type Model struct {
	session   session.Session
	showToken bool
	printer   *i18n.Printer
	width     int
	height    int
}

// New creates the home page from the manager's current session.
func New(mgr *session.Manager, p *i18n.Printer) (Model, error) {
	const op = "home.New"
	if mgr == nil {
		return Model{}, fmt.Errorf("%s: %w", op, session.ErrNoManager)
	}
	return Model{
		session: mgr.Snapshot(),
		printer: p,
	}, nil
}

// SetSize sets the page dimensions.
func (m *Model) SetSize(w, h int) {
	m.width = w
	m.height = h
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case messages.SessionMsg:
		m.session = msg.Session
		if m.session.Token == "" {
			m.showToken = false
		}
	case tea.KeyMsg:
		if key.Matches(msg, ToggleToken) && m.session.Token != "" {
			m.showToken = !m.showToken
		}
	}
	return m, nil
}

// View renders the page.
func (m Model) View() string {
	p := m.printer
	yesNo := func(b bool) string {
		if b {
			return p.T("yes")
		}
		return p.T("no")
	}

	var sb strings.Builder
	sb.WriteString(titleStyle.Render(p.T("Identity provider integration demo")))
	sb.WriteString("\n")

	sb.WriteString(headingStyle.Render(p.T("Authentication status")))
	sb.WriteString("\n")
	sb.WriteString(p.T("Logged in: %s", yesNo(m.session.IsAuthenticated)))
	sb.WriteString("\n")
	if m.session.IsAuthenticated {
		sb.WriteString(p.T("Username: %s", m.session.Username))
		sb.WriteString("\n")
		sb.WriteString(p.T("Token present: %s", yesNo(m.session.Token != "")))
		sb.WriteString("\n")
	}
	sb.WriteString("\n")

	sb.WriteString(headingStyle.Render(p.T("Features")))
	sb.WriteString("\n")
	for _, f := range features {
		sb.WriteString("  • " + p.T(f) + "\n")
	}

	if m.session.Token != "" {
		sb.WriteString("\n")
		sb.WriteString(headingStyle.Render(p.T("Token (debug)")))
		sb.WriteString("\n")
		if m.showToken {
			sb.WriteString(hintStyle.Render(p.T("Press %s to hide the token", "t")))
			sb.WriteString("\n")
			style := tokenStyle
			if m.width > 4 {
				style = style.Width(m.width - 4)
			}
			sb.WriteString(style.Render(m.session.Token))
		} else {
			sb.WriteString(hintStyle.Render(p.T("Press %s to show the token", "t")))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
