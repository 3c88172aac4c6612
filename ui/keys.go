// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package ui

import (
	"github.com/charmbracelet/bubbles/key"
	"github.com/hashicorp/cap-demo/ui/guard"
	"github.com/hashicorp/cap-demo/ui/home"
	"github.com/hashicorp/cap-demo/ui/protected"
)

// KeyMap holds the application-wide bindings.  It implements help.KeyMap.
type KeyMap struct {
	Home      key.Binding
	Protected key.Binding
	Login     key.Binding
	Logout    key.Binding
	Help      key.Binding
	Quit      key.Binding

	// page bindings, handled by the page models and listed here for help
	ToggleToken key.Binding
	Calls       []key.Binding
}

var Keys = KeyMap{
	Home:      key.NewBinding(key.WithKeys("h"), key.WithHelp("h", "home")),
	Protected: key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "protected page")),
	Login:     key.NewBinding(key.WithKeys(guard.LoginKey), key.WithHelp(guard.LoginKey, "login")),
	Logout:    key.NewBinding(key.WithKeys("o"), key.WithHelp("o", "logout")),
	Help:      key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
	Quit:      key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),

	ToggleToken: home.ToggleToken,
	Calls:       protected.Bindings(),
}

func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Home, k.Protected, k.Login, k.Logout, k.Help, k.Quit}
}

func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Home, k.Protected},
		{k.Login, k.Logout},
		{k.ToggleToken},
		k.Calls,
		{k.Help, k.Quit},
	}
}
