// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package demoapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/oauth2"
)

type refreshResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	IDToken      string `json:"id_token,omitempty"`
}

// refreshToken forwards a refresh_token grant for the public client to the
// provider's token endpoint.
func (s *Server) refreshToken(c echo.Context) error {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.Bind(&req); err != nil || req.RefreshToken == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "refresh_token is required")
	}

	tk, err := s.refresh(c.Request().Context(), req.RefreshToken)
	if err != nil {
		s.logger.Debug("token refresh failed", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("Token refresh failed: %s", err))
	}

	resp := refreshResponse{
		AccessToken:  tk.AccessToken,
		TokenType:    tk.TokenType,
		RefreshToken: tk.RefreshToken,
	}
	if !tk.Expiry.IsZero() {
		resp.ExpiresIn = int64(time.Until(tk.Expiry).Round(time.Second).Seconds())
	}
	if idToken, ok := tk.Extra("id_token").(string); ok {
		resp.IDToken = idToken
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	const op = "demoapi.(Server).refresh"
	cfg := oauth2.Config{
		ClientID: s.cfg.ClientID,
		Endpoint: oauth2.Endpoint{
			TokenURL:  s.cfg.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.client)
	tk, err := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return tk, nil
}
