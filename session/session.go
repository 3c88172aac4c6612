// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package session holds the application's view of the user's authentication
// state.  A single Manager consumes identity events on its Run task and
// publishes Session snapshots to subscribers.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/hashicorp/cap-demo/identity"
)

// ErrNoManager is returned by consumers constructed without a Manager.
var ErrNoManager = errors.New("session manager is missing")

// ErrInvalidParameter is returned for missing constructor arguments.
var ErrInvalidParameter = errors.New("invalid parameter")

// RefreshMinValidity is the minimum validity requested from UpdateToken when
// the access token expires.
const RefreshMinValidity = 30 * time.Second

// Session is the authentication state the UI renders.  IsAuthenticated
// implies Token is not empty.
type Session struct {
	IsAuthenticated bool
	Token           string
	Username        string
	IsLoading       bool
}

// Authenticator is the identity client a Manager drives.  *identity.Adapter
// implements it.
type Authenticator interface {
	Events() <-chan identity.Event
	Login(ctx context.Context) error
	Logout(ctx context.Context) error
	UpdateToken(ctx context.Context, minValidity time.Duration) (bool, error)
}

var _ Authenticator = (*identity.Adapter)(nil)
