// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package callback

import (
	"context"

	"github.com/hashicorp/cap-demo/oidc"
)

// StateReader looks up the State of a login attempt by the state id the
// provider echoed back.  Read is called from the callback handler and must be
// safe for concurrent use.
type StateReader interface {
	Read(ctx context.Context, stateID string) (oidc.State, error)
}

// SingleStateReader holds the one State of a loopback login; a CLI has only
// one attempt in flight.
type SingleStateReader struct {
	State oidc.State
}

// Read returns the State when stateID is its ID, else oidc.ErrNotFound.
func (s *SingleStateReader) Read(_ context.Context, stateID string) (oidc.State, error) {
	if s.State == nil || s.State.ID() != stateID {
		return nil, oidc.ErrNotFound
	}
	return s.State, nil
}
