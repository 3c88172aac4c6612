// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package jwt

import "errors"

var (
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrInvalidCACert    = errors.New("invalid CA certificate")
	ErrMalformedToken   = errors.New("malformed token")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrUnsupportedAlg   = errors.New("unsupported signing algorithm")
	ErrMissingClaim     = errors.New("missing claim")
	ErrInvalidIssuer    = errors.New("invalid issuer")
	ErrInvalidSubject   = errors.New("invalid subject")
	ErrInvalidAudience  = errors.New("invalid audience")
	ErrExpired          = errors.New("token is expired")
	ErrNotYetValid      = errors.New("token is not yet valid")
)
