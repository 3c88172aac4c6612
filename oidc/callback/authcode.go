// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package callback

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/hashicorp/cap-demo/oidc"
)

// AuthCode creates an oidc authorization code callback handler which
// uses a StateReader to read existing oidc.State(s) via the request's
// oidc "state" parameter as a key for the lookup.
//
// The SuccessResponseFunc is used to create a response when callback is
// successful. The ErrorResponseFunc is to create a response when the callback
// fails.
func AuthCode(ctx context.Context, p *oidc.Provider, sr StateReader, sFn SuccessResponseFunc, eFn ErrorResponseFunc) (http.HandlerFunc, error) {
	const op = "callback.AuthCode"
	switch {
	case p == nil:
		return nil, fmt.Errorf("%s: provider is nil: %w", op, oidc.ErrInvalidParameter)
	case sr == nil:
		return nil, fmt.Errorf("%s: state reader is nil: %w", op, oidc.ErrInvalidParameter)
	case sFn == nil:
		return nil, fmt.Errorf("%s: success response func is nil: %w", op, oidc.ErrInvalidParameter)
	case eFn == nil:
		return nil, fmt.Errorf("%s: error response func is nil: %w", op, oidc.ErrInvalidParameter)
	}
	return func(w http.ResponseWriter, req *http.Request) {
		reqState := req.FormValue("state")

		if err := req.FormValue("error"); err != "" {
			// get parameters from either the body or query parameters.
			// FormValue prioritizes body values, if found
			reqError := &AuthenErrorResponse{
				Error:       err,
				Description: req.FormValue("error_description"),
				URI:         req.FormValue("error_uri"),
			}
			eFn(reqState, reqError, fmt.Errorf("%s: %s: %w", op, err, oidc.ErrLoginFailed), w, req)
			return
		}

		state, err := sr.Read(ctx, reqState)
		switch {
		case errors.Is(err, oidc.ErrNotFound) || (err == nil && state == nil):
			// could have expired or it could be invalid... no way to known for sure
			eFn(reqState, nil, fmt.Errorf("%s: auth code state not found: %w", op, oidc.ErrNotFound), w, req)
			return
		case err != nil:
			eFn(reqState, nil, fmt.Errorf("%s: unable to read auth code state: %w", op, err), w, req)
			return
		}
		if state.IsExpired() {
			eFn(reqState, nil, fmt.Errorf("%s: authentication state is expired: %w", op, oidc.ErrExpiredState), w, req)
			return
		}
		if reqState != state.ID() {
			// the state reader didn't return the correct state for the key
			// given... this is an internal sort of error on the part of the
			// reader.
			eFn(reqState, nil, fmt.Errorf("%s: authen state and response state are not equal: %w", op, oidc.ErrResponseStateInvalid), w, req)
			return
		}

		// get parameters from either the body or query parameters.
		// FormValue prioritizes body values, if found.
		reqCode := req.FormValue("code")

		responseToken, err := p.Exchange(ctx, state, reqState, reqCode)
		if err != nil {
			eFn(reqState, nil, fmt.Errorf("%s: unable to exchange authorization code: %w", op, err), w, req)
			return
		}
		sFn(reqState, responseToken, w, req)
	}, nil
}

// LoginResp is used by AuthCodeWithChannel.  The callback writes its response
// to the returned <-chan LoginResp.
type LoginResp struct {
	Token oidc.Token // Token is populated when the callback successfully exchanges the auth code.
	Error error      // Error is populated when there's an error during the callback
}

// AuthCodeWithChannel creates a one-time use authorization code callback for
// a single oidc.State.  The first completed callback (successful or not) is
// written to the returned channel, which is then closed; the response funcs
// still render every request.
func AuthCodeWithChannel(ctx context.Context, p *oidc.Provider, s oidc.State, sFn SuccessResponseFunc, eFn ErrorResponseFunc) (<-chan LoginResp, http.HandlerFunc, error) {
	const op = "callback.AuthCodeWithChannel"
	if s == nil {
		return nil, nil, fmt.Errorf("%s: state is nil: %w", op, oidc.ErrInvalidParameter)
	}
	if sFn == nil || eFn == nil {
		return nil, nil, fmt.Errorf("%s: response funcs are required: %w", op, oidc.ErrInvalidParameter)
	}
	doneCh := make(chan LoginResp, 1)
	var once sync.Once
	send := func(r LoginResp) {
		once.Do(func() {
			doneCh <- r
			close(doneCh)
		})
	}
	h, err := AuthCode(ctx, p, &SingleStateReader{State: s},
		func(state string, t oidc.Token, w http.ResponseWriter, req *http.Request) {
			sFn(state, t, w, req)
			send(LoginResp{Token: t})
		},
		func(state string, r *AuthenErrorResponse, e error, w http.ResponseWriter, req *http.Request) {
			eFn(state, r, e, w, req)
			send(LoginResp{Error: e})
		},
	)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}
	return doneCh, h, nil
}
