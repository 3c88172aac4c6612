// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

/*
callback is a package that provides callbacks (in the form of http.HandlerFunc)
for handling OIDC provider responses to authorization code flow (with PKCE)
authentication attempts.  AuthCodeWithChannel is intended for a localhost
listener started by the same process that opened the browser.
*/
package callback
