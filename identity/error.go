// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package identity

import "errors"

var (
	ErrInvalidConfig      = errors.New("invalid identity config")
	ErrInvalidInitOptions = errors.New("invalid init options")
	ErrNotInitialized     = errors.New("identity client is not initialized")
	ErrAlreadyInitialized = errors.New("identity client is already initialized")
	ErrNotAuthenticated   = errors.New("not authenticated")
	ErrLoginTimeout       = errors.New("login attempt expired")
	ErrLoginInProgress    = errors.New("a login is already in progress")
	ErrClosed             = errors.New("identity client is closed")
)
