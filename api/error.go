// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package api

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingToken is returned when a call is made without an access
	// token, before any request is sent.
	ErrMissingToken = errors.New("no token available")

	// ErrInvalidParameter is returned when a required parameter is missing
	// or malformed.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrInvalidResponse is returned when a 2xx reply body can't be decoded
	// as JSON.
	ErrInvalidResponse = errors.New("response is not JSON")
)

// StatusError is returned for a non-2xx reply.
type StatusError struct {
	Code       int
	StatusText string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API call failed: %d %s", e.Code, e.StatusText)
}
