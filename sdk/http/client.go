// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package http

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-cleanhttp"
)

var ErrInvalidCertificatePem = errors.New("invalid certificate PEM")

// Option defines a common functional options type which can be used in a
// variadic parameter pattern.
type Option func(interface{})

type clientOptions struct {
	withCACert  string
	withTimeout time.Duration
}

func clientDefaults() clientOptions {
	return clientOptions{}
}

func getClientOpts(opt ...Option) clientOptions {
	opts := clientDefaults()
	for _, o := range opt {
		if o == nil {
			continue
		}
		o(&opts)
	}
	return opts
}

// WithCACert provides an optional PEM encoded CA certificate which replaces
// the installed system CA chain when verifying servers.
func WithCACert(caPEM string) Option {
	return func(o interface{}) {
		if o, ok := o.(*clientOptions); ok {
			o.withCACert = caPEM
		}
	}
}

// WithTimeout provides an optional overall request timeout.  The default is
// no timeout.
func WithTimeout(d time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*clientOptions); ok {
			o.withTimeout = d
		}
	}
}

// NewClient creates a new http client with its own pooled transport.  The
// client uses the optional CA certificate when provided, otherwise it will use
// the installed system CA chain.
//
// Supported options: WithCACert, WithTimeout
func NewClient(opt ...Option) (*http.Client, error) {
	const op = "http.NewClient"
	opts := getClientOpts(opt...)
	tr := cleanhttp.DefaultPooledTransport()

	if opts.withCACert != "" {
		certPool := x509.NewCertPool()
		if ok := certPool.AppendCertsFromPEM([]byte(opts.withCACert)); !ok {
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidCertificatePem)
		}
		tr.TLSClientConfig = &tls.Config{
			RootCAs:    certPool,
			MinVersion: tls.VersionTLS12,
		}
	}

	return &http.Client{
		Transport: tr,
		Timeout:   opts.withTimeout,
	}, nil
}
