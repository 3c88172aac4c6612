// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package jwt

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hashicorp/cap-demo/oidc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewValidator(t *testing.T) {
	t.Parallel()
	pub, _ := oidc.TestGenerateKeys(t)
	ks, err := NewStaticKeySet([]string{pub})
	require.NoError(t, err)

	tests := []struct {
		name    string
		keySets []KeySet
		wantErr bool
	}{
		{name: "valid", keySets: []KeySet{ks}},
		{name: "no-keysets", wantErr: true},
		{name: "nil-keyset", keySets: []KeySet{ks, nil}, wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			got, err := NewValidator(tt.keySets)
			if tt.wantErr {
				require.Error(err)
				assert.ErrorIs(err, ErrInvalidParameter)
				return
			}
			require.NoError(err)
			assert.NotNil(got)
		})
	}
}

func TestValidator_Validate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tp := oidc.StartTestProvider(t)
	ks, err := NewOIDCDiscoveryKeySet(ctx, tp.Addr(), tp.CACert())
	require.NoError(t, err)
	_, otherPriv := oidc.TestGenerateKeys(t)

	defaultExpected := Expected{
		Issuer:            tp.Addr(),
		Audiences:         []string{"account"},
		SigningAlgorithms: []string{"RS256", "ES256"},
	}
	now := time.Now()

	tests := []struct {
		name      string
		token     func() string
		expected  Expected
		opts      []Option
		wantIsErr error
	}{
		{
			name:     "valid",
			token:    func() string { return tp.IssueAccessToken(time.Minute, nil) },
			expected: defaultExpected,
		},
		{
			name:     "valid-no-expectations",
			token:    func() string { return tp.IssueAccessToken(time.Minute, nil) },
			expected: Expected{SigningAlgorithms: []string{"ES256"}},
		},
		{
			name:      "alg-not-expected",
			token:     func() string { return tp.IssueAccessToken(time.Minute, nil) },
			expected:  Expected{},
			wantIsErr: ErrUnsupportedAlg,
		},
		{
			name: "wrong-issuer",
			token: func() string {
				return tp.IssueAccessToken(time.Minute, map[string]interface{}{"iss": "https://evil.example.com"})
			},
			expected:  defaultExpected,
			wantIsErr: ErrInvalidIssuer,
		},
		{
			name: "wrong-audience",
			token: func() string {
				return tp.IssueAccessToken(time.Minute, map[string]interface{}{"aud": "someone-else"})
			},
			expected:  defaultExpected,
			wantIsErr: ErrInvalidAudience,
		},
		{
			name: "normalized-audience",
			token: func() string {
				return tp.IssueAccessToken(time.Minute, map[string]interface{}{"aud": []string{"https://api.example.com/"}})
			},
			expected:  Expected{SigningAlgorithms: []string{"ES256"}, Audiences: []string{"https://api.example.com"}},
			opts:      []Option{WithNormalizedAudiences()},
		},
		{
			name: "wrong-subject",
			token: func() string {
				return tp.IssueAccessToken(time.Minute, nil)
			},
			expected:  Expected{SigningAlgorithms: []string{"ES256"}, Subject: "mallory"},
			wantIsErr: ErrInvalidSubject,
		},
		{
			name:      "expired",
			token:     func() string { return tp.IssueAccessToken(-time.Hour, nil) },
			expected:  defaultExpected,
			wantIsErr: ErrExpired,
		},
		{
			name:     "expired-within-leeway",
			token:    func() string { return tp.IssueAccessToken(-30*time.Second, nil) },
			expected: defaultExpected,
		},
		{
			name:  "expired-no-leeway",
			token: func() string { return tp.IssueAccessToken(-30*time.Second, nil) },
			expected: Expected{
				SigningAlgorithms: []string{"ES256"},
				ExpirationLeeway:  -1,
			},
			wantIsErr: ErrExpired,
		},
		{
			name: "not-yet-valid",
			token: func() string {
				return tp.IssueAccessToken(2*time.Hour, map[string]interface{}{"nbf": now.Add(time.Hour).Unix()})
			},
			expected:  defaultExpected,
			wantIsErr: ErrNotYetValid,
		},
		{
			name: "signed-by-unknown-key",
			token: func() string {
				return oidc.TestSignJWT(t, otherPriv, testClaims(tp.Addr(), time.Minute), nil)
			},
			expected:  defaultExpected,
			wantIsErr: ErrInvalidSignature,
		},
		{
			name:      "malformed",
			token:     func() string { return "not-a-token" },
			expected:  defaultExpected,
			wantIsErr: ErrMalformedToken,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			v, err := NewValidator([]KeySet{ks}, tt.opts...)
			require.NoError(err)
			claims, err := v.Validate(ctx, tt.token(), tt.expected)
			if tt.wantIsErr != nil {
				require.Error(err)
				assert.Truef(errors.Is(err, tt.wantIsErr), "wanted \"%s\" but got \"%s\"", tt.wantIsErr, err)
				return
			}
			require.NoError(err)
			assert.NotEmpty(claims["sub"])
		})
	}
}

func TestValidator_MultipleKeySets(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	ctx := context.Background()
	tp := oidc.StartTestProvider(t)
	pub, _ := tp.SigningKeys()
	otherPub, _ := oidc.TestGenerateKeys(t)

	first, err := NewStaticKeySet([]string{otherPub})
	require.NoError(err)
	second, err := NewStaticKeySet([]string{pub})
	require.NoError(err)

	v, err := NewValidator([]KeySet{first, second})
	require.NoError(err)
	claims, err := v.Validate(ctx, tp.IssueAccessToken(time.Minute, nil), Expected{SigningAlgorithms: []string{"ES256"}})
	require.NoError(err)
	assert.Equal(tp.Addr(), claims["iss"])
}
