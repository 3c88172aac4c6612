// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package jwt

import (
	"testing"
	"time"

	"github.com/hashicorp/cap-demo/oidc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	josejwt "gopkg.in/square/go-jose.v2/jwt"
)

func testClaims(issuer string, expireIn time.Duration) josejwt.Claims {
	now := time.Now()
	return josejwt.Claims{
		Issuer:   issuer,
		Subject:  "alice",
		IssuedAt: josejwt.NewNumericDate(now),
		Expiry:   josejwt.NewNumericDate(now.Add(expireIn)),
		Audience: josejwt.Audience{"account"},
	}
}

func TestParseUnverified(t *testing.T) {
	t.Parallel()
	_, priv := oidc.TestGenerateKeys(t)
	expired := oidc.TestSignJWT(t, priv, testClaims("https://issuer.example.com", -time.Hour), map[string]interface{}{"email": "alice@example.com"})

	t.Run("expired-and-unverified", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		header, claims, err := ParseUnverified(expired)
		require.NoError(err)
		assert.Equal("ES256", header["alg"])
		assert.Equal("JWT", header["typ"])
		assert.Equal("alice", claims["sub"])
		assert.Equal("alice@example.com", claims["email"])
	})
	t.Run("empty", func(t *testing.T) {
		assert := assert.New(t)
		_, _, err := ParseUnverified("")
		assert.ErrorIs(err, ErrInvalidParameter)
	})
	t.Run("malformed", func(t *testing.T) {
		assert := assert.New(t)
		_, _, err := ParseUnverified("a.b")
		assert.ErrorIs(err, ErrMalformedToken)
	})
}
