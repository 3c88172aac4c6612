// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	sdkhttp "github.com/hashicorp/cap-demo/sdk/http"
	"github.com/hashicorp/go-hclog"
)

// Client calls the demo backend.
type Client struct {
	baseURL string
	http    *http.Client
	logger  hclog.Logger
}

// NewClient creates a Client for the backend at baseURL.
//
// Supported options: WithHTTPClient, WithCACert, WithLogger
func NewClient(baseURL string, opt ...Option) (*Client, error) {
	const op = "api.NewClient"
	u, err := url.Parse(baseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%s: base url %q must be an http(s) URL: %w", op, baseURL, ErrInvalidParameter)
	}
	opts := getOpts(opt...)
	hc := opts.withHTTPClient
	if hc == nil {
		if hc, err = sdkhttp.NewClient(sdkhttp.WithCACert(opts.withCACert)); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    hc,
		logger:  opts.withLogger,
	}, nil
}

// Call sends token to e and returns the JSON reply.
func (c *Client) Call(ctx context.Context, e Endpoint, token string) (json.RawMessage, error) {
	const op = "api.(Client).Call"
	if token == "" {
		return nil, ErrMissingToken
	}

	var body io.Reader
	if e.TokenInBody {
		b, err := json.Marshal(struct {
			Token string `json:"token"`
		}{Token: token})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, e.Method, c.baseURL+e.Path, body)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if !e.TokenInBody {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	c.logger.Debug("calling api", "endpoint", e.Name, "method", e.Method, "path", e.Path)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Debug("api call failed", "endpoint", e.Name, "status", resp.StatusCode)
		return nil, &StatusError{Code: resp.StatusCode, StatusText: statusText(resp)}
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to read response: %w", op, err)
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidResponse)
	}
	return json.RawMessage(raw), nil
}

// statusText is the reason phrase the server sent, or the standard one.
func statusText(resp *http.Response) string {
	if text := strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)+" "); text != resp.Status && text != "" {
		return text
	}
	return http.StatusText(resp.StatusCode)
}

// Pretty indents raw JSON with two spaces, keeping the reply's key order.
func Pretty(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}
