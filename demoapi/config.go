// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package demoapi

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/time/rate"
)

// ErrInvalidConfig is returned when a Config can't be served.
var ErrInvalidConfig = errors.New("invalid demo api config")

const (
	DefaultAddr          = ":8000"
	DefaultAudience      = "account"
	DefaultAllowedOrigin = "http://localhost:3000"
	DefaultRateLimit     = rate.Limit(10)
	DefaultRateBurst     = 20
)

// Config configures the Server.
type Config struct {
	// Addr is the listen address.
	Addr string

	ServerURL string
	Realm     string
	ClientID  string

	// ProviderCA is an optional PEM encoded CA for the provider's TLS cert.
	ProviderCA string

	// TokenURL is the provider's token endpoint used by the refresh proxy.
	// Defaults to {issuer}/protocol/openid-connect/token.
	TokenURL string

	// Audience every verified token must carry.  Defaults to "account".
	Audience string

	// SigningAlgs accepted for verified tokens.  Defaults to RS256 and ES256.
	SigningAlgs []string

	// KnownServerURLs are the provider addresses whose realm issuers the
	// basic check accepts without a warning.  ServerURL is always included.
	KnownServerURLs []string

	AllowedOrigins []string

	// RateLimit is the per client IP request rate; zero disables limiting.
	RateLimit rate.Limit
	RateBurst int
}

// DefaultConfig returns the configuration for a local provider.
func DefaultConfig() Config {
	return Config{
		Addr:      DefaultAddr,
		ServerURL: "http://localhost:8080",
		Realm:     "sam-test",
		ClientID:  "myclient",
		KnownServerURLs: []string{
			"http://localhost:8080",
			"http://127.0.0.1:8080",
			"http://host.docker.internal:8080",
		},
		AllowedOrigins: []string{DefaultAllowedOrigin},
		RateLimit:      DefaultRateLimit,
		RateBurst:      DefaultRateBurst,
	}
}

// Issuer returns {ServerURL}/realms/{Realm}.
func (c Config) Issuer() string {
	return issuer(c.ServerURL, c.Realm)
}

// ValidIssuers returns the realm's issuer at every known server URL.
func (c Config) ValidIssuers() []string {
	out := []string{c.Issuer()}
	for _, u := range c.KnownServerURLs {
		if iss := issuer(u, c.Realm); iss != out[0] {
			out = append(out, iss)
		}
	}
	return out
}

func issuer(serverURL, realm string) string {
	return strings.TrimSuffix(serverURL, "/") + "/realms/" + realm
}

// Validate returns every problem with the config.
func (c Config) Validate() error {
	const op = "demoapi.Config.Validate"
	var result *multierror.Error
	if c.Addr == "" {
		result = multierror.Append(result, fmt.Errorf("listen address is empty: %w", ErrInvalidConfig))
	}
	if u, err := url.Parse(c.ServerURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		result = multierror.Append(result, fmt.Errorf("server url %q must be an http(s) URL: %w", c.ServerURL, ErrInvalidConfig))
	}
	if c.Realm == "" {
		result = multierror.Append(result, fmt.Errorf("realm is empty: %w", ErrInvalidConfig))
	}
	if c.ClientID == "" {
		result = multierror.Append(result, fmt.Errorf("client id is empty: %w", ErrInvalidConfig))
	}
	if c.RateLimit < 0 || (c.RateLimit > 0 && c.RateBurst <= 0) {
		result = multierror.Append(result, fmt.Errorf("rate limit needs a positive rate and burst: %w", ErrInvalidConfig))
	}
	if err := result.ErrorOrNil(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.TokenURL == "" {
		c.TokenURL = c.Issuer() + "/protocol/openid-connect/token"
	}
	if c.Audience == "" {
		c.Audience = DefaultAudience
	}
	if len(c.SigningAlgs) == 0 {
		c.SigningAlgs = []string{"RS256", "ES256"}
	}
	return c
}
