// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

/*
Package jwt validates bearer tokens presented to a resource server.

A KeySet verifies signatures, using keys obtained via OIDC discovery, a JWKS
URL, or local PEM encoded public keys.  A Validator verifies the signature
with one or more KeySets and then checks the token's claims against an
Expected set of values.  ParseUnverified decodes a token without any checks,
which is only suitable for debugging.
*/
package jwt
