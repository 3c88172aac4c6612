// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

/*
Package api is the client for the demo backend's authenticated endpoints.

Every call needs the current access token.  A missing token fails with
ErrMissingToken before anything is sent, and a non-2xx reply fails with a
*StatusError:

	c, err := api.NewClient("http://localhost:8000")
	if err != nil {
		// handle err
	}
	raw, err := c.Call(ctx, api.Protected, token)
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	fmt.Println(api.Pretty(raw))

Calls are never retried and carry no timeout of their own; ctx is the only
way to bound them.
*/
package api
