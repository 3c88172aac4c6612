// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package jwt

// Option defines a common functional options type which can be used in a
// variadic parameter pattern.
type Option func(interface{})

type validatorOptions struct {
	withNormalizedAudiences bool
}

func validatorDefaults() validatorOptions {
	return validatorOptions{}
}

// getValidatorOpts gets the defaults and applies the opt overrides passed
// in.
func getValidatorOpts(opt ...Option) validatorOptions {
	opts := validatorDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

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

// WithNormalizedAudiences enables removing the trailing slash (if it exists) from all bound audiences
// before comparing against the aud claims.
func WithNormalizedAudiences() Option {
	return func(o interface{}) {
		if v, ok := o.(*validatorOptions); ok {
			v.withNormalizedAudiences = true
		}
	}
}
