// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package messages

import (
	"encoding/json"

	"github.com/hashicorp/cap-demo/session"
)

// Route names a page.
type Route string

const (
	RouteHome      Route = "/"
	RouteProtected Route = "/protected"
)

// Navigation messages.
type (
	NavigateMsg struct{ Route Route }
	LoginMsg    struct{}
	LogoutMsg   struct{}
)

// Data messages.
type (
	// SessionMsg carries the latest session snapshot.
	SessionMsg struct {
		Session session.Session
	}

	// SessionClosedMsg reports the session subscription ended.
	SessionClosedMsg struct{}

	LoginResultMsg struct {
		Err error
	}

	LogoutResultMsg struct {
		Err error
	}

	// APIResultMsg is the outcome of the protected page's Seq'th call.
	APIResultMsg struct {
		Seq      int
		Endpoint string
		Body     json.RawMessage
		Err      error
	}
)
