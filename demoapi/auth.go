// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package demoapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/hashicorp/cap-demo/jwt"
	"github.com/hashicorp/go-hclog"
	"github.com/labstack/echo/v4"
)

const (
	ctxToken  = "token"
	ctxClaims = "claims"
)

// requireBearer stores the request's bearer token in the echo.Context.
func requireBearer(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		scheme, token, ok := strings.Cut(c.Request().Header.Get(echo.HeaderAuthorization), " ")
		token = strings.TrimSpace(token)
		if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
			return unauthorized(c, "Not authenticated")
		}
		c.Set(ctxToken, token)
		return next(c)
	}
}

// requireVerified verifies the bearer token and stores its claims in the
// echo.Context.  It must run after requireBearer.
func (s *Server) requireVerified(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token, _ := c.Get(ctxToken).(string)
		claims, err := s.verifier.verify(c.Request().Context(), token)
		if err != nil {
			s.logger.Debug("token rejected", "error", err)
			return unauthorized(c, fmt.Sprintf("Token verification failed: %s", err))
		}
		c.Set(ctxClaims, claims)
		return next(c)
	}
}

// unauthorized returns a 401 which asks for a bearer token.
func unauthorized(c echo.Context, detail string) error {
	c.Response().Header().Set(echo.HeaderWWWAuthenticate, "Bearer")
	return &echo.HTTPError{
		Code:    http.StatusUnauthorized,
		Message: detail,
	}
}

// verifier checks tokens against the realm's published keys.  Discovery
// happens on first use and is retried on later requests until it succeeds.
type verifier struct {
	ctx    context.Context
	cfg    Config
	logger hclog.Logger

	mu        sync.Mutex
	validator *jwt.Validator
}

func newVerifier(ctx context.Context, cfg Config, logger hclog.Logger) *verifier {
	return &verifier{
		ctx:    ctx,
		cfg:    cfg,
		logger: logger,
	}
}

func (v *verifier) get() (*jwt.Validator, error) {
	const op = "demoapi.(verifier).get"
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.validator != nil {
		return v.validator, nil
	}
	ks, err := jwt.NewOIDCDiscoveryKeySet(v.ctx, v.cfg.Issuer(), v.cfg.ProviderCA)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to fetch provider keys: %w", op, err)
	}
	validator, err := jwt.NewValidator([]jwt.KeySet{ks})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	v.logger.Info("discovered provider keys", "issuer", v.cfg.Issuer())
	v.validator = validator
	return validator, nil
}

// verify checks the token's signature, audience and validity period.  The
// issuer isn't checked; the signing keys already tie the token to the realm.
func (v *verifier) verify(ctx context.Context, token string) (map[string]interface{}, error) {
	validator, err := v.get()
	if err != nil {
		return nil, err
	}
	return validator.Validate(ctx, token, jwt.Expected{
		Audiences:         []string{v.cfg.Audience},
		SigningAlgorithms: v.cfg.SigningAlgs,
	})
}

// claimsFrom returns the verified claims stored by requireVerified.
func claimsFrom(c echo.Context) map[string]interface{} {
	claims, _ := c.Get(ctxClaims).(map[string]interface{})
	return claims
}

// realmRoles returns realm_access.roles, or an empty list.
func realmRoles(claims map[string]interface{}) []string {
	roles := []string{}
	access, _ := claims["realm_access"].(map[string]interface{})
	list, _ := access["roles"].([]interface{})
	for _, r := range list {
		if s, ok := r.(string); ok {
			roles = append(roles, s)
		}
	}
	return roles
}
