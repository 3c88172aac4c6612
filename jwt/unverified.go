// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package jwt

import (
	"fmt"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// ParseUnverified decodes the header and claims of a JWS compact serialized
// token without verifying its signature or any of its claims.  Never use the
// result for an authorization decision.
func ParseUnverified(token string) (header map[string]interface{}, claims map[string]interface{}, err error) {
	const op = "jwt.ParseUnverified"
	if token == "" {
		return nil, nil, fmt.Errorf("%s: token is empty: %w", op, ErrInvalidParameter)
	}
	mc := jwtlib.MapClaims{}
	parsed, _, err := jwtlib.NewParser().ParseUnverified(token, mc)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w: %v", op, ErrMalformedToken, err)
	}
	return parsed.Header, map[string]interface{}(mc), nil
}
