// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package tokenstore persists the refresh token of a login between runs so a
// session can be silently restored.
package tokenstore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Load when no record exists for the key.
var ErrNotFound = errors.New("token record not found")

// ErrInvalidParameter is returned for empty keys and records.
var ErrInvalidParameter = errors.New("invalid parameter")

// Record is the persisted part of a login.
type Record struct {
	Key          string
	RefreshToken string
	IDToken      string
	Expiry       time.Time // access token expiry
	UpdatedAt    time.Time
}

// Store saves, loads and deletes Records.  Implementations are safe for
// concurrent use.
type Store interface {
	Save(ctx context.Context, r Record) error
	Load(ctx context.Context, key string) (Record, error)
	Delete(ctx context.Context, key string) error
	Close() error
}

// Key returns the record key for a client of an issuer.
func Key(issuer, clientID string) string {
	return issuer + "#" + clientID
}
