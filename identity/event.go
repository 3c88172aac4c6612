// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package identity

// EventType identifies an Event.
type EventType int

const (
	// EventReady is sent once, when Init resolves or fails.
	EventReady EventType = iota
	EventAuthSuccess
	EventAuthError
	EventAuthRefreshSuccess
	EventAuthRefreshError
	EventAuthLogout
	// EventTokenExpired is sent when the access token's expiry passes.
	EventTokenExpired
)

func (t EventType) String() string {
	switch t {
	case EventReady:
		return "ready"
	case EventAuthSuccess:
		return "auth-success"
	case EventAuthError:
		return "auth-error"
	case EventAuthRefreshSuccess:
		return "auth-refresh-success"
	case EventAuthRefreshError:
		return "auth-refresh-error"
	case EventAuthLogout:
		return "auth-logout"
	case EventTokenExpired:
		return "token-expired"
	default:
		return "unknown"
	}
}

// Event reports a change in the adapter's authentication state.  Token and
// Username describe the state after the event.
type Event struct {
	Type          EventType
	Authenticated bool
	Token         string
	Username      string
	Err           error
}
