// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package identity

import (
	"fmt"
	"html"
	"net/http"

	"github.com/hashicorp/cap-demo/oidc"
	"github.com/hashicorp/cap-demo/oidc/callback"
)

const successHTML = `<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>Signed in</title></head>
<body>
<h1>Signed in</h1>
<p>You can close this window and return to the terminal.</p>
</body>
</html>
`

const failureHTML = `<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>Sign in failed</title></head>
<body>
<h1>Sign in failed</h1>
<p>%s</p>
</body>
</html>
`

func successPage(_ string, _ oidc.Token, w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(successHTML))
}

func failurePage(_ string, r *callback.AuthenErrorResponse, e error, w http.ResponseWriter, _ *http.Request) {
	msg := "The login could not be completed."
	status := http.StatusInternalServerError
	if r != nil {
		status = http.StatusUnauthorized
		msg = r.Error
		if r.Description != "" {
			msg += ": " + r.Description
		}
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = fmt.Fprintf(w, failureHTML, html.EscapeString(msg))
}
