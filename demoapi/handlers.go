// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package demoapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/cap-demo/jwt"
	"github.com/labstack/echo/v4"
)

type messageResponse struct {
	Message string `json:"message"`
	Status  string `json:"status"`
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, messageResponse{
		Message: "cap-demo api is running",
		Status:  "OK",
	})
}

type publicResponse struct {
	Message   string `json:"message"`
	Data      string `json:"data"`
	Timestamp string `json:"timestamp"`
}

func (s *Server) public(c echo.Context) error {
	return c.JSON(http.StatusOK, publicResponse{
		Message:   "This is a public endpoint",
		Data:      "Anyone can access this endpoint",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

type errorMessage struct {
	Error string `json:"error"`
}

type identityConfig struct {
	ServerURLs   []string `json:"server_urls"`
	Realm        string   `json:"realm"`
	ClientID     string   `json:"client_id"`
	ValidIssuers []string `json:"valid_issuers"`
}

type debugTokenResponse struct {
	Header         map[string]interface{} `json:"header"`
	Payload        map[string]interface{} `json:"payload"`
	IdentityConfig identityConfig         `json:"identity_config"`
}

// debugToken reports problems in the body with a 200, since it exists to
// inspect tokens which may not be valid.
func (s *Server) debugToken(c echo.Context) error {
	var req struct {
		Token string `json:"token"`
	}
	if err := c.Bind(&req); err != nil || req.Token == "" {
		return c.JSON(http.StatusOK, errorMessage{Error: "no token provided"})
	}
	header, payload, err := jwt.ParseUnverified(req.Token)
	if err != nil {
		return c.JSON(http.StatusOK, errorMessage{Error: fmt.Sprintf("failed to parse token: %s", err)})
	}
	serverURLs := []string{s.cfg.ServerURL}
	for _, u := range s.cfg.KnownServerURLs {
		if u != s.cfg.ServerURL {
			serverURLs = append(serverURLs, u)
		}
	}
	return c.JSON(http.StatusOK, debugTokenResponse{
		Header:  header,
		Payload: payload,
		IdentityConfig: identityConfig{
			ServerURLs:   serverURLs,
			Realm:        s.cfg.Realm,
			ClientID:     s.cfg.ClientID,
			ValidIssuers: s.cfg.ValidIssuers(),
		},
	})
}

type payloadResponse struct {
	Message string                 `json:"message"`
	Payload map[string]interface{} `json:"payload"`
}

func (s *Server) testNoVerify(c echo.Context) error {
	token, _ := c.Get(ctxToken).(string)
	_, payload, err := jwt.ParseUnverified(token)
	if err != nil {
		return c.JSON(http.StatusOK, errorMessage{Error: fmt.Sprintf("unable to parse token: %s", err)})
	}
	return c.JSON(http.StatusOK, payloadResponse{
		Message: "Token parsed (signature not verified)",
		Payload: payload,
	})
}

type basicResponse struct {
	Message   string      `json:"message"`
	UserID    interface{} `json:"user_id"`
	Username  interface{} `json:"username"`
	Email     interface{} `json:"email"`
	Audience  interface{} `json:"audience"`
	Issuer    interface{} `json:"issuer"`
	ExpiresAt interface{} `json:"expires_at"`
}

// testBasic checks the claims a token must carry without checking its
// signature.  An issuer outside the known realms is only logged.
func (s *Server) testBasic(c echo.Context) error {
	token, _ := c.Get(ctxToken).(string)
	_, claims, err := jwt.ParseUnverified(token)
	if err != nil {
		return unauthorized(c, fmt.Sprintf("Token verification failed: %s", err))
	}
	if sub, _ := claims["sub"].(string); sub == "" {
		return unauthorized(c, "Token is missing a subject")
	}
	iss, _ := claims["iss"].(string)
	if iss == "" {
		return unauthorized(c, "Token is missing an issuer")
	}
	if !contains(s.cfg.ValidIssuers(), iss) {
		s.logger.Warn("token issuer not in the expected list, continuing", "issuer", iss, "valid_issuers", s.cfg.ValidIssuers())
	}
	if exp, ok := claims["exp"].(float64); ok && time.Now().After(time.Unix(int64(exp), 0)) {
		return unauthorized(c, "Token has expired")
	}
	return c.JSON(http.StatusOK, basicResponse{
		Message:   "Basic validation succeeded (signature not verified)",
		UserID:    claims["sub"],
		Username:  claims["preferred_username"],
		Email:     claims["email"],
		Audience:  claims["aud"],
		Issuer:    claims["iss"],
		ExpiresAt: claims["exp"],
	})
}

type tokenTimes struct {
	IssuedAt  interface{} `json:"issued_at"`
	ExpiresAt interface{} `json:"expires_at"`
	Issuer    interface{} `json:"issuer"`
}

type protectedResponse struct {
	Message   string      `json:"message"`
	UserID    interface{} `json:"user_id"`
	Username  interface{} `json:"username"`
	Email     interface{} `json:"email"`
	Roles     []string    `json:"roles"`
	TokenInfo tokenTimes  `json:"token_info"`
}

func (s *Server) protected(c echo.Context) error {
	claims := claimsFrom(c)
	return c.JSON(http.StatusOK, protectedResponse{
		Message:  "Accessed the protected endpoint",
		UserID:   claims["sub"],
		Username: claims["preferred_username"],
		Email:    claims["email"],
		Roles:    realmRoles(claims),
		TokenInfo: tokenTimes{
			IssuedAt:  claims["iat"],
			ExpiresAt: claims["exp"],
			Issuer:    claims["iss"],
		},
	})
}

type userInfoResponse struct {
	Sub               interface{} `json:"sub"`
	Email             interface{} `json:"email"`
	Name              interface{} `json:"name"`
	PreferredUsername interface{} `json:"preferred_username"`
	GivenName         interface{} `json:"given_name"`
	FamilyName        interface{} `json:"family_name"`
}

func (s *Server) userInfo(c echo.Context) error {
	claims := claimsFrom(c)
	return c.JSON(http.StatusOK, userInfoResponse{
		Sub:               claims["sub"],
		Email:             claims["email"],
		Name:              claims["name"],
		PreferredUsername: claims["preferred_username"],
		GivenName:         claims["given_name"],
		FamilyName:        claims["family_name"],
	})
}

type adminResponse struct {
	Message   string   `json:"message"`
	Note      string   `json:"note"`
	UserRoles []string `json:"user_roles"`
}

func (s *Server) adminUsers(c echo.Context) error {
	roles := realmRoles(claimsFrom(c))
	if !contains(roles, "admin") && !contains(roles, "realm-admin") {
		return echo.NewHTTPError(http.StatusForbidden, "Admin privileges are required for this endpoint")
	}
	return c.JSON(http.StatusOK, adminResponse{
		Message:   "Accessed the admin endpoint",
		Note:      "provider admin API calls go here",
		UserRoles: roles,
	})
}

type tokenUser struct {
	UserID     interface{} `json:"user_id"`
	Username   interface{} `json:"username"`
	Email      interface{} `json:"email"`
	Name       interface{} `json:"name"`
	GivenName  interface{} `json:"given_name"`
	FamilyName interface{} `json:"family_name"`
}

type tokenMetadata struct {
	IssuedAt  interface{} `json:"issued_at"`
	ExpiresAt interface{} `json:"expires_at"`
	Issuer    interface{} `json:"issuer"`
	Audience  interface{} `json:"audience"`
	TokenType interface{} `json:"token_type"`
}

type tokenPermissions struct {
	RealmRoles  []string    `json:"realm_roles"`
	ClientRoles interface{} `json:"client_roles"`
}

type tokenInfoResponse struct {
	TokenPayload  map[string]interface{} `json:"token_payload"`
	UserInfo      tokenUser              `json:"user_info"`
	TokenMetadata tokenMetadata          `json:"token_metadata"`
	Permissions   tokenPermissions       `json:"permissions"`
}

func (s *Server) tokenInfo(c echo.Context) error {
	claims := claimsFrom(c)
	clientRoles := claims["resource_access"]
	if clientRoles == nil {
		clientRoles = map[string]interface{}{}
	}
	return c.JSON(http.StatusOK, tokenInfoResponse{
		TokenPayload: claims,
		UserInfo: tokenUser{
			UserID:     claims["sub"],
			Username:   claims["preferred_username"],
			Email:      claims["email"],
			Name:       claims["name"],
			GivenName:  claims["given_name"],
			FamilyName: claims["family_name"],
		},
		TokenMetadata: tokenMetadata{
			IssuedAt:  claims["iat"],
			ExpiresAt: claims["exp"],
			Issuer:    claims["iss"],
			Audience:  claims["aud"],
			TokenType: claims["typ"],
		},
		Permissions: tokenPermissions{
			RealmRoles:  realmRoles(claims),
			ClientRoles: clientRoles,
		},
	})
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
