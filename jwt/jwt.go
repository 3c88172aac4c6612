// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package jwt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DefaultLeewaySeconds defines the amount of leeway that's used by default
// for validating the "nbf" (Not Before) and "exp" (Expiration Time) claims.
const DefaultLeewaySeconds = 150

// Validator validates JSON Web Tokens (JWT) by providing signature
// verification and claims set validation.
type Validator struct {
	keySets                 []KeySet
	withNormalizedAudiences bool
}

// NewValidator returns a Validator that uses the given KeySets to verify JWT
// signatures.  The first KeySet to verify a token's signature wins.
//
// Supported options: WithNormalizedAudiences
func NewValidator(keySets []KeySet, opt ...Option) (*Validator, error) {
	const op = "jwt.NewValidator"
	if len(keySets) == 0 {
		return nil, fmt.Errorf("%s: at least one KeySet must be supplied: %w", op, ErrInvalidParameter)
	}
	for _, ks := range keySets {
		if ks == nil {
			return nil, fmt.Errorf("%s: KeySet must not be nil: %w", op, ErrInvalidParameter)
		}
	}
	opts := getValidatorOpts(opt...)
	return &Validator{
		keySets:                 keySets,
		withNormalizedAudiences: opts.withNormalizedAudiences,
	}, nil
}

// Expected defines the expected claims values to assert when validating a
// JWT.  For claims that involve validation of the JWT with respect to time,
// leeway fields are provided to account for potential clock skew.
type Expected struct {
	// Issuer is the expected "iss" claim; skipped when empty.
	Issuer string

	// Subject is the expected "sub" claim; skipped when empty.
	Subject string

	// Audiences contains the expected "aud" claims.  The token must contain
	// at least one of them; skipped when empty.
	Audiences []string

	// SigningAlgorithms provides the list of expected JWS "alg" header
	// values.  Defaults to RS256.
	SigningAlgorithms []string

	// NotBeforeLeeway provides the option to set an amount of leeway to use
	// when validating the "nbf" claim. Defaults to DefaultLeewaySeconds and
	// a negative value disables the leeway.
	NotBeforeLeeway time.Duration

	// ExpirationLeeway provides the option to set an amount of leeway to use
	// when validating the "exp" claim. Defaults to DefaultLeewaySeconds and
	// a negative value disables the leeway.
	ExpirationLeeway time.Duration

	// Now provides the current time for validation. Defaults to time.Now.
	Now func() time.Time
}

// Validate validates JWTs of the JWS compact serialization form.
//
// The given JWT is considered valid if:
//  1. Its signature is successfully verified by one of the KeySets.
//  2. Its "alg" header is one of the expected signing algorithms.
//  3. Its claims set and header parameter values match what's given by Expected.
//  4. It's valid with respect to the current time.  At least one of "exp",
//     "nbf" or "iat" must be present.
func (v *Validator) Validate(ctx context.Context, token string, expected Expected) (map[string]interface{}, error) {
	const op = "Validator.Validate"
	header, _, err := ParseUnverified(token)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	algs := expected.SigningAlgorithms
	if len(algs) == 0 {
		algs = []string{"RS256"}
	}
	alg, _ := header["alg"].(string)
	if !contains(algs, alg) {
		return nil, fmt.Errorf("%s: token signed with %q: %w", op, alg, ErrUnsupportedAlg)
	}

	var claims map[string]interface{}
	var verifyErr error
	for _, ks := range v.keySets {
		claims, verifyErr = ks.VerifySignature(ctx, token)
		if verifyErr == nil {
			break
		}
	}
	if verifyErr != nil {
		return nil, fmt.Errorf("%s: %w", op, verifyErr)
	}

	if expected.Issuer != "" {
		if iss, _ := claims["iss"].(string); iss != expected.Issuer {
			return nil, fmt.Errorf("%s: %q: %w", op, iss, ErrInvalidIssuer)
		}
	}
	if expected.Subject != "" {
		if sub, _ := claims["sub"].(string); sub != expected.Subject {
			return nil, fmt.Errorf("%s: %q: %w", op, sub, ErrInvalidSubject)
		}
	}
	if len(expected.Audiences) > 0 {
		if err := v.validateAudience(expected.Audiences, audiences(claims["aud"])); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}
	if err := validateTimes(claims, expected); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return claims, nil
}

func (v *Validator) validateAudience(expected, got []string) error {
	for _, e := range expected {
		if v.withNormalizedAudiences {
			e = strings.TrimSuffix(e, "/")
		}
		for _, a := range got {
			if v.withNormalizedAudiences {
				a = strings.TrimSuffix(a, "/")
			}
			if a == e {
				return nil
			}
		}
	}
	return fmt.Errorf("token audiences %v do not contain one of %v: %w", got, expected, ErrInvalidAudience)
}

func validateTimes(claims map[string]interface{}, expected Expected) error {
	now := time.Now()
	if expected.Now != nil {
		now = expected.Now()
	}
	exp, hasExp := numericDate(claims["exp"])
	nbf, hasNbf := numericDate(claims["nbf"])
	_, hasIat := numericDate(claims["iat"])
	if !hasExp && !hasNbf && !hasIat {
		return fmt.Errorf("no exp, nbf or iat claim: %w", ErrMissingClaim)
	}
	if hasExp && now.After(exp.Add(leeway(expected.ExpirationLeeway))) {
		return fmt.Errorf("expired at %s: %w", exp.UTC().Format(time.RFC3339), ErrExpired)
	}
	if hasNbf && now.Before(nbf.Add(-leeway(expected.NotBeforeLeeway))) {
		return fmt.Errorf("not valid before %s: %w", nbf.UTC().Format(time.RFC3339), ErrNotYetValid)
	}
	return nil
}

func leeway(d time.Duration) time.Duration {
	switch {
	case d < 0:
		return 0
	case d == 0:
		return DefaultLeewaySeconds * time.Second
	default:
		return d
	}
}

// numericDate converts a decoded JSON NumericDate claim into a time.
func numericDate(v interface{}) (time.Time, bool) {
	switch n := v.(type) {
	case float64:
		return time.Unix(int64(n), 0), true
	case int64:
		return time.Unix(n, 0), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return time.Time{}, false
		}
		return time.Unix(i, 0), true
	default:
		return time.Time{}, false
	}
}

// audiences returns the "aud" claim which may be a single string or a list.
func audiences(v interface{}) []string {
	switch a := v.(type) {
	case string:
		return []string{a}
	case []string:
		return a
	case []interface{}:
		out := make([]string, 0, len(a))
		for _, s := range a {
			if s, ok := s.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func contains(haystack []string, needle string) bool {
	for _, h := range haystack {
		if h == needle {
			return true
		}
	}
	return false
}
