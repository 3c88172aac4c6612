// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package callback

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/hashicorp/cap-demo/oidc"
	"github.com/stretchr/testify/require"
)

// testSuccessFn writes a plain 200.
func testSuccessFn(_ string, _ oidc.Token, w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("login successful"))
}

// testFailFn reports the provider's error with a 401 and anything else with
// a 500, as JSON.
func testFailFn(_ string, r *AuthenErrorResponse, e error, w http.ResponseWriter, _ *http.Request) {
	code := http.StatusUnauthorized
	switch {
	case r != nil:
	case e != nil:
		code = http.StatusInternalServerError
		r = &AuthenErrorResponse{Error: "internal-callback-error", Description: e.Error()}
	default:
		code = http.StatusInternalServerError
		r = &AuthenErrorResponse{Error: "unknown-callback-error"}
	}
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(r)
}

// testNewProvider creates a new public client Provider for the TestProvider
// with the given redirect URL.
func testNewProvider(t *testing.T, redirectURL string, tp *oidc.TestProvider) *oidc.Provider {
	t.Helper()
	require := require.New(t)
	c, err := oidc.NewConfig(
		tp.Addr(),
		tp.ClientID(),
		"",
		[]oidc.Alg{oidc.ES256},
		redirectURL,
		oidc.WithProviderCA(tp.CACert()),
	)
	require.NoError(err)
	p, err := oidc.NewProvider(c)
	require.NoError(err)
	t.Cleanup(p.Done)
	return p
}
