// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// capdemo is a terminal demo of an OpenID Connect login against a
// Keycloak-style provider, with a small backend API to call using the
// resulting token.
package main

import "os"

// version is set at build time via ldflags
var version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Stderr.WriteString("Error: " + err.Error() + "\n")
		os.Exit(1)
	}
}
