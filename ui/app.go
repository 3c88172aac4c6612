// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package ui is the terminal front end: a navigation bar over one of two
// pages, driven by the session manager's snapshots.
package ui

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/hashicorp/cap-demo/session"
	"github.com/hashicorp/cap-demo/ui/home"
	"github.com/hashicorp/cap-demo/ui/i18n"
	"github.com/hashicorp/cap-demo/ui/messages"
	"github.com/hashicorp/cap-demo/ui/nav"
	"github.com/hashicorp/cap-demo/ui/protected"
)

var (
	splashStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#00BFFF")).Bold(true)
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#CCCCCC"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#DC3545"))
)

// App is the root Bubble Tea model.
type App struct {
	ctx     context.Context
	mgr     *session.Manager
	printer *i18n.Printer

	// Session subscription
	session     session.Session
	updates     <-chan session.Session
	unsubscribe func()

	// View state
	route     messages.Route
	nav       nav.Model
	home      home.Model
	protected protected.Model

	spinner   spinner.Model
	help      help.Model
	loggingIn bool
	status    string
	statusErr bool

	// Dimensions
	width  int
	height int
}

// New creates the application over mgr.  ctx bounds the login, logout and
// API calls the application starts.
func New(ctx context.Context, mgr *session.Manager, client protected.Caller, p *i18n.Printer) (*App, error) {
	const op = "ui.New"
	if mgr == nil {
		return nil, fmt.Errorf("%s: %w", op, session.ErrNoManager)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	n, err := nav.New(mgr, p)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	h, err := home.New(mgr, p)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	pp, err := protected.New(ctx, mgr, client, p)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	sp := spinner.New()
	sp.Spinner = spinner.MiniDot
	sp.Style = splashStyle

	updates, unsubscribe := mgr.Subscribe()
	return &App{
		ctx:         ctx,
		mgr:         mgr,
		printer:     p,
		session:     mgr.Snapshot(),
		updates:     updates,
		unsubscribe: unsubscribe,
		route:       messages.RouteHome,
		nav:         n,
		home:        h,
		protected:   pp,
		spinner:     sp,
		help:        help.New(),
	}, nil
}

// Init starts listening for session changes.
func (a *App) Init() tea.Cmd {
	return tea.Batch(waitForSession(a.updates), a.spinner.Tick)
}

// waitForSession delivers the next snapshot from ch.
func waitForSession(ch <-chan session.Session) tea.Cmd {
	return func() tea.Msg {
		s, ok := <-ch
		if !ok {
			return messages.SessionClosedMsg{}
		}
		return messages.SessionMsg{Session: s}
	}
}

// Update handles all messages.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		contentHeight := msg.Height - 3 // nav bar, status line and help
		a.nav.SetSize(msg.Width)
		a.home.SetSize(msg.Width, contentHeight)
		a.protected.SetSize(msg.Width, contentHeight)
		a.help.Width = msg.Width
		return a, nil

	case messages.SessionMsg:
		a.session = msg.Session
		a.nav, _ = a.nav.Update(msg)
		a.home, _ = a.home.Update(msg)
		a.protected, _ = a.protected.Update(msg)
		return a, waitForSession(a.updates)

	case messages.SessionClosedMsg:
		return a, nil

	case spinner.TickMsg:
		var cmds []tea.Cmd
		if a.session.IsLoading || a.loggingIn {
			var cmd tea.Cmd
			a.spinner, cmd = a.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}
		var cmd tea.Cmd
		a.protected, cmd = a.protected.Update(msg)
		cmds = append(cmds, cmd)
		return a, tea.Batch(cmds...)

	case messages.NavigateMsg:
		a.navigate(msg.Route)
		return a, nil

	case messages.LoginMsg:
		return a, a.login()

	case messages.LogoutMsg:
		return a, a.logout()

	case messages.LoginResultMsg:
		a.loggingIn = false
		a.setStatus("", false)
		if msg.Err != nil {
			a.setStatus(a.printer.T("Login failed: %s", msg.Err.Error()), true)
		}
		return a, nil

	case messages.LogoutResultMsg:
		a.setStatus("", false)
		if msg.Err != nil {
			a.setStatus(a.printer.T("Logout failed: %s", msg.Err.Error()), true)
		}
		return a, nil

	case messages.APIResultMsg:
		var cmd tea.Cmd
		a.protected, cmd = a.protected.Update(msg)
		return a, cmd

	case tea.KeyMsg:
		if key.Matches(msg, Keys.Quit) {
			a.unsubscribe()
			return a, tea.Quit
		}
		// nothing but quitting until the identity client is ready
		if a.session.IsLoading {
			return a, nil
		}
		switch {
		case key.Matches(msg, Keys.Help):
			a.help.ShowAll = !a.help.ShowAll
			return a, nil
		case key.Matches(msg, Keys.Home):
			a.navigate(messages.RouteHome)
			return a, nil
		case key.Matches(msg, Keys.Protected):
			a.navigate(messages.RouteProtected)
			return a, nil
		case key.Matches(msg, Keys.Login):
			return a, a.login()
		case key.Matches(msg, Keys.Logout):
			return a, a.logout()
		}
	}

	// Route to active page.
	var cmd tea.Cmd
	switch a.route {
	case messages.RouteProtected:
		a.protected, cmd = a.protected.Update(msg)
	default:
		a.home, cmd = a.home.Update(msg)
	}
	return a, cmd
}

func (a *App) navigate(r messages.Route) {
	a.route = r
	a.nav, _ = a.nav.Update(messages.NavigateMsg{Route: r})
}

func (a *App) setStatus(text string, isErr bool) {
	a.status = text
	a.statusErr = isErr
}

func (a *App) login() tea.Cmd {
	if a.session.IsLoading || a.session.IsAuthenticated || a.loggingIn {
		return nil
	}
	a.loggingIn = true
	a.setStatus("", false)
	ctx, mgr := a.ctx, a.mgr
	return tea.Batch(a.spinner.Tick, func() tea.Msg {
		return messages.LoginResultMsg{Err: mgr.Login(ctx)}
	})
}

func (a *App) logout() tea.Cmd {
	if a.session.IsLoading || !a.session.IsAuthenticated {
		return nil
	}
	ctx, mgr := a.ctx, a.mgr
	return func() tea.Msg {
		return messages.LogoutResultMsg{Err: mgr.Logout(ctx)}
	}
}

// View renders the application.
func (a *App) View() string {
	p := a.printer
	if a.session.IsLoading {
		splash := a.spinner.View() + " " + splashStyle.Render(p.T("Loading..."))
		return lipgloss.Place(a.width, a.height, lipgloss.Center, lipgloss.Center, splash)
	}

	var content string
	switch a.route {
	case messages.RouteProtected:
		content = a.protected.View()
	default:
		content = a.home.View()
	}
	helpView := a.help.View(Keys)
	if h := a.height - 2 - lipgloss.Height(helpView); h > 0 {
		content = lipgloss.NewStyle().Height(h).Render(content)
	}

	var status string
	switch {
	case a.loggingIn:
		status = a.spinner.View() + " " + statusStyle.Render(p.T("Logging in..."))
	case a.statusErr:
		status = errorStyle.Render(a.status)
	default:
		status = statusStyle.Render(a.status)
	}
	return lipgloss.JoinVertical(lipgloss.Left, a.nav.View(), content, status, helpView)
}
