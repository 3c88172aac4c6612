// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package config

import (
	"fmt"
	"os"

	"github.com/hashicorp/cap-demo/demoapi"
	"github.com/hashicorp/cap-demo/identity"
	"github.com/hashicorp/cap-demo/oidc"
	"golang.org/x/time/rate"
)

// IdentityConfig returns the identity adapter's config, with the provider CA
// read from identity.ca_file.
func (c *Config) IdentityConfig() (identity.Config, error) {
	const op = "config.(Config).IdentityConfig"
	ca, err := readCA(c.Identity.CAFile)
	if err != nil {
		return identity.Config{}, fmt.Errorf("%s: %w", op, err)
	}
	algs := make([]oidc.Alg, 0, len(c.Identity.SigningAlgs))
	for _, a := range c.Identity.SigningAlgs {
		algs = append(algs, oidc.Alg(a))
	}
	return identity.Config{
		ServerURL:    c.Identity.ServerURL,
		Realm:        c.Identity.Realm,
		ClientID:     c.Identity.ClientID,
		RedirectURL:  c.Identity.RedirectURL,
		Scopes:       c.Identity.Scopes,
		SigningAlgs:  algs,
		ProviderCA:   ca,
		LoginTimeout: c.Identity.LoginTimeout,
	}, nil
}

// InitOptions returns the identity adapter's Init options.
func (c *Config) InitOptions() identity.InitOptions {
	return identity.InitOptions{
		OnLoad:     identity.OnLoad(c.Identity.OnLoad),
		PKCEMethod: identity.S256,
	}
}

// APICACert returns the PEM in api.ca_file, or "" when none is configured.
func (c *Config) APICACert() (string, error) {
	const op = "config.(Config).APICACert"
	ca, err := readCA(c.API.CAFile)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return ca, nil
}

// ServerConfig returns the demo backend's config.  It shares the identity
// section's provider settings.
func (c *Config) ServerConfig() (demoapi.Config, error) {
	const op = "config.(Config).ServerConfig"
	ca, err := readCA(c.Identity.CAFile)
	if err != nil {
		return demoapi.Config{}, fmt.Errorf("%s: %w", op, err)
	}
	return demoapi.Config{
		Addr:            c.Server.Addr,
		ServerURL:       c.Identity.ServerURL,
		Realm:           c.Identity.Realm,
		ClientID:        c.Identity.ClientID,
		ProviderCA:      ca,
		TokenURL:        c.Server.TokenURL,
		Audience:        c.Server.Audience,
		KnownServerURLs: c.Server.KnownServerURLs,
		AllowedOrigins:  c.Server.AllowedOrigins,
		RateLimit:       rate.Limit(c.Server.RateLimit),
		RateBurst:       c.Server.RateBurst,
	}, nil
}

func readCA(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("unable to read CA file: %w", err)
	}
	return string(b), nil
}
