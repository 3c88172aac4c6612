// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package identity

import (
	"github.com/hashicorp/cap-demo/tokenstore"
	"github.com/hashicorp/go-hclog"
)

// Option defines a common functional options type which can be used in a
// variadic parameter pattern.
type Option func(interface{})

// ApplyOpts takes a pointer to the options struct as a set of default options
// and applies the slice of opts as overrides.
func ApplyOpts(opts interface{}, opt ...Option) {
	for _, o := range opt {
		if o == nil { // ignore any nil Options
			continue
		}
		o(opts)
	}
}

type options struct {
	withLogger      hclog.Logger
	withStore       tokenstore.Store
	withOpener      Opener
	withEventBuffer int
}

func getDefaultOptions() options {
	return options{
		withLogger:      hclog.NewNullLogger(),
		withOpener:      OpenURL,
		withEventBuffer: 16,
	}
}

func getOpts(opt ...Option) options {
	opts := getDefaultOptions()
	ApplyOpts(&opts, opt...)
	if opts.withStore == nil {
		opts.withStore = tokenstore.NewMemory()
	}
	return opts
}

// WithLogger provides an optional logger.
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if o, ok := o.(*options); ok && l != nil {
			o.withLogger = l
		}
	}
}

// WithStore provides the store used for session restore.  Defaults to an
// in-memory store.
func WithStore(s tokenstore.Store) Option {
	return func(o interface{}) {
		if o, ok := o.(*options); ok {
			o.withStore = s
		}
	}
}

// WithOpener replaces the system browser.
func WithOpener(fn Opener) Option {
	return func(o interface{}) {
		if o, ok := o.(*options); ok && fn != nil {
			o.withOpener = fn
		}
	}
}

// WithEventBuffer sets the capacity of the events channel.
func WithEventBuffer(n int) Option {
	return func(o interface{}) {
		if o, ok := o.(*options); ok && n >= 0 {
			o.withEventBuffer = n
		}
	}
}
