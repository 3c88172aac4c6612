// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package guard gates a page's content on the session being authenticated.
package guard

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/hashicorp/cap-demo/session"
	"github.com/hashicorp/cap-demo/ui/i18n"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFFFFF"))
	hintStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#828282"))
	keyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#007BFF")).Bold(true)
)

// LoginKey is the key the login prompt advertises.
const LoginKey = "l"

// Render returns child unchanged when s is authenticated, otherwise a login
// prompt.
func Render(s session.Session, child string, p *i18n.Printer) string {
	if s.IsAuthenticated {
		return child
	}
	var sb strings.Builder
	sb.WriteString(titleStyle.Render(p.T("Login required")))
	sb.WriteString("\n\n")
	sb.WriteString(p.T("You need to log in to access this page"))
	sb.WriteString("\n\n")
	sb.WriteString(hintStyle.Render(p.T("Press %s to log in", keyStyle.Render(LoginKey))))
	return sb.String()
}
