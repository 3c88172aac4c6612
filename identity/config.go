// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package identity

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/cap-demo/oidc"
	"github.com/hashicorp/go-multierror"
)

const (
	DefaultServerURL    = "http://localhost:8080"
	DefaultRealm        = "sam-test"
	DefaultClientID     = "myclient"
	DefaultRedirectURL  = "http://localhost:3000/callback"
	DefaultLoginTimeout = 2 * time.Minute
)

// Config identifies the client to the identity provider.
type Config struct {
	ServerURL string
	Realm     string
	ClientID  string

	// RedirectURL is the loopback URL the provider redirects the browser to.
	// Its host and port are listened on during a login.
	RedirectURL string

	// Scopes requested in addition to "openid".
	Scopes []string

	// SigningAlgs accepted for id_tokens.  Defaults to RS256.
	SigningAlgs []oidc.Alg

	// ProviderCA is an optional PEM encoded CA for the provider's TLS cert.
	ProviderCA string

	// LoginTimeout bounds a login attempt.  Defaults to DefaultLoginTimeout.
	LoginTimeout time.Duration
}

// Issuer returns the realm's issuer: {ServerURL}/realms/{Realm}.
func (c Config) Issuer() string {
	return strings.TrimSuffix(c.ServerURL, "/") + "/realms/" + c.Realm
}

// Validate returns every problem with the config.
func (c Config) Validate() error {
	const op = "identity.Config.Validate"
	var result *multierror.Error
	if c.ServerURL == "" {
		result = multierror.Append(result, fmt.Errorf("server url is empty: %w", ErrInvalidConfig))
	} else if u, err := url.Parse(c.ServerURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		result = multierror.Append(result, fmt.Errorf("server url %q must be an http(s) URL: %w", c.ServerURL, ErrInvalidConfig))
	}
	if c.Realm == "" {
		result = multierror.Append(result, fmt.Errorf("realm is empty: %w", ErrInvalidConfig))
	}
	if c.ClientID == "" {
		result = multierror.Append(result, fmt.Errorf("client id is empty: %w", ErrInvalidConfig))
	}
	if u, err := url.Parse(c.RedirectURL); err != nil || u.Scheme != "http" || u.Port() == "" {
		result = multierror.Append(result, fmt.Errorf("redirect url %q must be an http URL with a port: %w", c.RedirectURL, ErrInvalidConfig))
	}
	if err := result.ErrorOrNil(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (c Config) withDefaults() Config {
	if len(c.SigningAlgs) == 0 {
		c.SigningAlgs = []oidc.Alg{oidc.RS256}
	}
	if c.LoginTimeout <= 0 {
		c.LoginTimeout = DefaultLoginTimeout
	}
	return c
}

// OnLoad selects what Init does about an existing session.
type OnLoad string

const (
	// CheckSSO silently restores a stored session, if there is one.
	CheckSSO OnLoad = "check-sso"
	// LoginRequired runs a login during Init.
	LoginRequired OnLoad = "login-required"
)

// PKCEMethod is the PKCE code challenge method.  Only S256 is supported.
type PKCEMethod string

const S256 PKCEMethod = "S256"

// InitOptions configures Init.
type InitOptions struct {
	OnLoad           OnLoad
	PKCEMethod       PKCEMethod
	CheckLoginIframe bool
}

// Validate checks the options are ones this client can honor.
func (o InitOptions) Validate() error {
	const op = "identity.InitOptions.Validate"
	switch {
	case o.OnLoad != CheckSSO && o.OnLoad != LoginRequired:
		return fmt.Errorf("%s: unknown onLoad %q: %w", op, o.OnLoad, ErrInvalidInitOptions)
	case o.PKCEMethod != S256:
		return fmt.Errorf("%s: unsupported pkce method %q: %w", op, o.PKCEMethod, ErrInvalidInitOptions)
	case o.CheckLoginIframe:
		return fmt.Errorf("%s: login iframe checks are not supported: %w", op, ErrInvalidInitOptions)
	}
	return nil
}
