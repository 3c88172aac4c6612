// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"bytes"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"io"
	"log"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/cap-demo/oidc/internal/strutils"
	"github.com/stretchr/testify/require"
	"gopkg.in/square/go-jose.v2"
	"gopkg.in/square/go-jose.v2/jwt"
)

// TestProvider is a local OIDC provider which makes writing tests much easier.
// It serves discovery, the authorization and token endpoints (authorization
// code with PKCE-S256 and refresh_token grants), JWKS, userinfo and an
// end-session endpoint over TLS.
type TestProvider struct {
	httpServer *httptest.Server
	caCert     string

	jwks            *jose.JSONWebKeySet
	ecdsaPublicKey  string
	ecdsaPrivateKey string

	mu                  sync.Mutex
	clientID            string
	clientSecret        string
	allowedRedirectURIs []string
	replySubject        string
	replyUserinfo       map[string]interface{}
	customClaims        map[string]interface{}
	customAudience      string
	tokenTTL            time.Duration
	omitIDToken         bool
	disableUserInfo     bool
	disableRefresh      bool
	disableEndSession   bool
	denyAuth            bool
	refreshDelay        time.Duration

	// codes are the outstanding authorization codes
	codes map[string]testAuthRequest
	// refreshTokens are the active refresh tokens, mapped to the nonce of
	// the login they came from
	refreshTokens map[string]string
	logouts       int

	// issuerPath is prefixed to every endpoint
	issuerPath string

	t *testing.T
}

type testAuthRequest struct {
	nonce         string
	codeChallenge string
	redirectURI   string
}

// testProviderOptions is the set of available options for StartTestProvider
type testProviderOptions struct {
	withPort  int
	withRealm string
}

func testProviderDefaults() testProviderOptions {
	return testProviderOptions{}
}

func getTestProviderOpts(opt ...Option) testProviderOptions {
	opts := testProviderDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithTestPort provides an optional port for the TestProvider to listen on.
func WithTestPort(port int) Option {
	return func(o interface{}) {
		if o, ok := o.(*testProviderOptions); ok {
			o.withPort = port
		}
	}
}

// WithTestRealm serves the TestProvider under /realms/{realm}, the way
// Keycloak lays out its issuers.
func WithTestRealm(realm string) Option {
	return func(o interface{}) {
		if o, ok := o.(*testProviderOptions); ok {
			o.withRealm = realm
		}
	}
}

// StartTestProvider creates a disposable TestProvider which is stopped when
// the test completes.
//
// Supported options: WithTestPort, WithTestRealm
func StartTestProvider(t *testing.T, opt ...Option) *TestProvider {
	t.Helper()
	require := require.New(t)
	opts := getTestProviderOpts(opt...)

	p := &TestProvider{
		clientID:     "test-client-id",
		replySubject: "f2e1c6b0-6a5e-4b8e-9d5e-3c1f4c2b7a10",
		replyUserinfo: map[string]interface{}{
			"preferred_username": "alice",
			"email":              "alice@example.com",
			"name":               "Alice Doe",
			"given_name":         "Alice",
			"family_name":        "Doe",
		},
		tokenTTL:      time.Minute,
		codes:         map[string]testAuthRequest{},
		refreshTokens: map[string]string{},
		t:             t,
	}
	if opts.withRealm != "" {
		p.issuerPath = "/realms/" + opts.withRealm
	}
	p.ecdsaPublicKey, p.ecdsaPrivateKey = TestGenerateKeys(t)
	p.jwks = testJWKS(t, p.ecdsaPublicKey)

	if opts.withPort != 0 {
		p.httpServer = httptestNewUnstartedServerWithPort(t, p, opts.withPort)
	} else {
		p.httpServer = httptest.NewUnstartedServer(p)
	}
	p.httpServer.Config.ErrorLog = log.New(io.Discard, "", 0)
	p.httpServer.StartTLS()
	t.Cleanup(p.httpServer.Close)

	var buf bytes.Buffer
	err := pem.Encode(&buf, &pem.Block{Type: "CERTIFICATE", Bytes: p.httpServer.Certificate().Raw})
	require.NoError(err)
	p.caCert = buf.String()

	return p
}

// Stop stops the running TestProvider.
func (p *TestProvider) Stop() {
	p.httpServer.Close()
}

// SetClientCreds is for configuring the client information required for the
// OIDC workflows.  An empty secret makes the client public.
func (p *TestProvider) SetClientCreds(clientID, clientSecret string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clientID = clientID
	p.clientSecret = clientSecret
}

// ClientID returns the client id the provider expects.
func (p *TestProvider) ClientID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clientID
}

// SetAllowedRedirectURIs restricts the redirect URIs the provider accepts. By
// default any redirect URI is allowed.
func (p *TestProvider) SetAllowedRedirectURIs(uris []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.allowedRedirectURIs = uris
}

// SetCustomClaims lets you set claims to return in the JWTs issued by the
// provider.
func (p *TestProvider) SetCustomClaims(customClaims map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.customClaims = customClaims
}

// SetCustomAudience configures what audience value to embed in the id_token.
func (p *TestProvider) SetCustomAudience(customAudience string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.customAudience = customAudience
}

// SetUserInfoReply configures the claims returned from the userinfo endpoint
// and embedded in issued tokens.
func (p *TestProvider) SetUserInfoReply(resp map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replyUserinfo = resp
}

// SetTokenTTL configures the lifetime of issued access and id tokens.
func (p *TestProvider) SetTokenTTL(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tokenTTL = d
}

// OmitIDTokens forces an error state where the /token endpoint does not return
// id_token.
func (p *TestProvider) OmitIDTokens() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.omitIDToken = true
}

// DisableUserInfo makes the userinfo endpoint return 404 and omits it from the
// discovery config.
func (p *TestProvider) DisableUserInfo() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disableUserInfo = true
}

// DisableRefresh makes every refresh_token grant fail with invalid_grant.
func (p *TestProvider) DisableRefresh() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disableRefresh = true
}

// DisableEndSession omits the end_session_endpoint from the discovery config.
func (p *TestProvider) DisableEndSession() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disableEndSession = true
}

// SetRefreshDelay holds every successful refresh_token grant for d before
// replying.  Other endpoints keep answering in the meantime.
func (p *TestProvider) SetRefreshDelay(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refreshDelay = d
}

// DenyAuth makes the authorization endpoint redirect with access_denied.
func (p *TestProvider) DenyAuth() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.denyAuth = true
}

// RevokeRefreshTokens invalidates every refresh token issued so far.
func (p *TestProvider) RevokeRefreshTokens() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refreshTokens = map[string]string{}
}

// Logouts returns the number of successful end-session requests.
func (p *TestProvider) Logouts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.logouts
}

// Addr returns the test provider's issuer URL, including the realm path when
// WithTestRealm was used.
func (p *TestProvider) Addr() string { return p.httpServer.URL + p.issuerPath }

// ServerURL returns the scheme, host and port the TestProvider listens on.
func (p *TestProvider) ServerURL() string { return p.httpServer.URL }

// CACert returns the pem-encoded CA certificate used by the test provider's
// HTTPS server.
func (p *TestProvider) CACert() string { return p.caCert }

// SigningKeys returns the test provider's pem-encoded keys used to sign JWTs.
func (p *TestProvider) SigningKeys() (pub, priv string) {
	return p.ecdsaPublicKey, p.ecdsaPrivateKey
}

// HTTPClient returns an http client which trusts the provider's certificate.
func (p *TestProvider) HTTPClient() *http.Client {
	return p.httpServer.Client()
}

// IssueAccessToken signs an access_token the way the token endpoint does,
// with additionalClaims overriding the defaults, valid for ttl.
func (p *TestProvider) IssueAccessToken(ttl time.Duration, additionalClaims map[string]interface{}) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.accessToken(ttl, additionalClaims)
}

func (p *TestProvider) baseClaims() map[string]interface{} {
	claims := map[string]interface{}{}
	for k, v := range p.replyUserinfo {
		claims[k] = v
	}
	for k, v := range p.customClaims {
		claims[k] = v
	}
	return claims
}

// accessToken must be called with p.mu held.
func (p *TestProvider) accessToken(ttl time.Duration, additionalClaims map[string]interface{}) string {
	now := time.Now()
	std := jwt.Claims{
		Subject:   p.replySubject,
		Issuer:    p.Addr(),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now.Add(-5 * time.Second)),
		Expiry:    jwt.NewNumericDate(now.Add(ttl)),
		Audience:  jwt.Audience{"account"},
	}
	private := p.baseClaims()
	private["typ"] = "Bearer"
	private["azp"] = p.clientID
	private["realm_access"] = map[string]interface{}{"roles": []string{"offline_access", "uma_authorization"}}
	for k, v := range additionalClaims {
		private[k] = v
	}
	return TestSignJWT(p.t, p.ecdsaPrivateKey, std, private)
}

// idToken must be called with p.mu held.
func (p *TestProvider) idToken(nonce string) string {
	now := time.Now()
	std := jwt.Claims{
		Subject:   p.replySubject,
		Issuer:    p.Addr(),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now.Add(-5 * time.Second)),
		Expiry:    jwt.NewNumericDate(now.Add(p.tokenTTL)),
		Audience:  jwt.Audience{p.clientID},
	}
	if p.customAudience != "" {
		std.Audience = jwt.Audience{p.customAudience}
	}
	private := p.baseClaims()
	private["typ"] = "ID"
	private["azp"] = p.clientID
	if nonce != "" {
		private["nonce"] = nonce
	}
	return TestSignJWT(p.t, p.ecdsaPrivateKey, std, private)
}

func (p *TestProvider) writeJSON(w http.ResponseWriter, out interface{}) error {
	enc := json.NewEncoder(w)
	return enc.Encode(out)
}

func (p *TestProvider) writeAuthErrorResponse(w http.ResponseWriter, req *http.Request, errorCode, errorMessage string) {
	qv := req.URL.Query()

	redirectURI := qv.Get("redirect_uri") +
		"?state=" + url.QueryEscape(qv.Get("state")) +
		"&error=" + url.QueryEscape(errorCode)

	if errorMessage != "" {
		redirectURI += "&error_description=" + url.QueryEscape(errorMessage)
	}

	http.Redirect(w, req, redirectURI, http.StatusFound)
}

func (p *TestProvider) writeTokenErrorResponse(w http.ResponseWriter, statusCode int, errorCode, errorMessage string) {
	body := struct {
		Code string `json:"error"`
		Desc string `json:"error_description,omitempty"`
	}{
		Code: errorCode,
		Desc: errorMessage,
	}
	w.WriteHeader(statusCode)
	_ = p.writeJSON(w, &body)
}

func (p *TestProvider) redirectAllowed(uri string) bool {
	if len(p.allowedRedirectURIs) == 0 {
		return true
	}
	return strutils.StrListContains(p.allowedRedirectURIs, uri)
}

// clientAuthenticated checks the client credentials sent with a token or
// logout request, either as basic auth or form values.
func (p *TestProvider) clientAuthenticated(req *http.Request) bool {
	id, secret, ok := req.BasicAuth()
	if ok {
		id, _ = url.QueryUnescape(id)
		secret, _ = url.QueryUnescape(secret)
	} else {
		id, secret = req.FormValue("client_id"), req.FormValue("client_secret")
	}
	return id == p.clientID && secret == p.clientSecret
}

// ServeHTTP implements the test provider's http.Handler.
func (p *TestProvider) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")

	if !strings.HasPrefix(req.URL.Path, p.issuerPath) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	switch strings.TrimPrefix(req.URL.Path, p.issuerPath) {
	case "/.well-known/openid-configuration":
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		reply := struct {
			Issuer                        string   `json:"issuer"`
			AuthEndpoint                  string   `json:"authorization_endpoint"`
			TokenEndpoint                 string   `json:"token_endpoint"`
			JWKSURI                       string   `json:"jwks_uri"`
			UserinfoEndpoint              string   `json:"userinfo_endpoint,omitempty"`
			EndSessionEndpoint            string   `json:"end_session_endpoint,omitempty"`
			CodeChallengeMethodsSupported []string `json:"code_challenge_methods_supported"`
			IDTokenSigningAlgs            []string `json:"id_token_signing_alg_values_supported"`
		}{
			Issuer:                        p.Addr(),
			AuthEndpoint:                  p.Addr() + "/auth",
			TokenEndpoint:                 p.Addr() + "/token",
			JWKSURI:                       p.Addr() + "/certs",
			UserinfoEndpoint:              p.Addr() + "/userinfo",
			EndSessionEndpoint:            p.Addr() + "/logout",
			CodeChallengeMethodsSupported: []string{"S256"},
			IDTokenSigningAlgs:            []string{string(ES256)},
		}
		if p.disableUserInfo {
			reply.UserinfoEndpoint = ""
		}
		if p.disableEndSession {
			reply.EndSessionEndpoint = ""
		}
		_ = p.writeJSON(w, &reply)

	case "/auth":
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		qv := req.URL.Query()

		redirectURI := qv.Get("redirect_uri")
		if redirectURI == "" || !p.redirectAllowed(redirectURI) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		switch {
		case qv.Get("response_type") != "code":
			p.writeAuthErrorResponse(w, req, "unsupported_response_type", "")
			return
		case !strutils.StrListContains(strings.Fields(qv.Get("scope")), "openid"):
			p.writeAuthErrorResponse(w, req, "invalid_scope", "")
			return
		case qv.Get("client_id") != p.clientID:
			p.writeAuthErrorResponse(w, req, "unauthorized_client", "")
			return
		case qv.Get("code_challenge_method") != "S256" || qv.Get("code_challenge") == "":
			p.writeAuthErrorResponse(w, req, "invalid_request", "missing PKCE S256 code challenge")
			return
		case qv.Get("state") == "":
			p.writeAuthErrorResponse(w, req, "invalid_request", "missing state parameter")
			return
		case p.denyAuth:
			p.writeAuthErrorResponse(w, req, "access_denied", "user denied access")
			return
		}

		code, err := NewID("code")
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		p.codes[code] = testAuthRequest{
			nonce:         qv.Get("nonce"),
			codeChallenge: qv.Get("code_challenge"),
			redirectURI:   redirectURI,
		}
		redirectURI += "?state=" + url.QueryEscape(qv.Get("state")) +
			"&code=" + url.QueryEscape(code)
		http.Redirect(w, req, redirectURI, http.StatusFound)

	case "/certs":
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		_ = p.writeJSON(w, p.jwks)

	case "/token":
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !p.clientAuthenticated(req) {
			p.writeTokenErrorResponse(w, http.StatusUnauthorized, "invalid_client", "client authentication failed")
			return
		}

		var nonce string
		var delay time.Duration
		switch req.FormValue("grant_type") {
		case "authorization_code":
			code := req.FormValue("code")
			ar, ok := p.codes[code]
			if !ok {
				p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_grant", "unexpected auth code")
				return
			}
			delete(p.codes, code)
			if req.FormValue("redirect_uri") != ar.redirectURI {
				p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_grant", "redirect_uri mismatch")
				return
			}
			sum := sha256.Sum256([]byte(req.FormValue("code_verifier")))
			if base64.RawURLEncoding.EncodeToString(sum[:]) != ar.codeChallenge {
				p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_grant", "PKCE verification failed")
				return
			}
			nonce = ar.nonce
		case "refresh_token":
			rt := req.FormValue("refresh_token")
			n, ok := p.refreshTokens[rt]
			if p.disableRefresh || !ok {
				p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_grant", "Token is not active")
				return
			}
			delete(p.refreshTokens, rt)
			nonce = n
			delay = p.refreshDelay
		default:
			p.writeTokenErrorResponse(w, http.StatusBadRequest, "unsupported_grant_type", "bad grant_type")
			return
		}

		refreshToken, err := NewID("rt")
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		p.refreshTokens[refreshToken] = nonce

		reply := struct {
			AccessToken  string `json:"access_token"`
			TokenType    string `json:"token_type"`
			ExpiresIn    int    `json:"expires_in"`
			RefreshToken string `json:"refresh_token"`
			IDToken      string `json:"id_token,omitempty"`
			Scope        string `json:"scope"`
		}{
			AccessToken:  p.accessToken(p.tokenTTL, nil),
			TokenType:    "Bearer",
			ExpiresIn:    int(p.tokenTTL.Seconds()),
			RefreshToken: refreshToken,
			Scope:        "openid profile email",
		}
		if !p.omitIDToken {
			reply.IDToken = p.idToken(nonce)
		}
		if delay > 0 {
			p.mu.Unlock()
			time.Sleep(delay)
			p.mu.Lock()
		}
		_ = p.writeJSON(w, &reply)

	case "/userinfo":
		if p.disableUserInfo {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !strings.HasPrefix(req.Header.Get("Authorization"), "Bearer ") {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		reply := map[string]interface{}{"sub": p.replySubject}
		for k, v := range p.replyUserinfo {
			reply[k] = v
		}
		_ = p.writeJSON(w, reply)

	case "/logout":
		if p.disableEndSession {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !p.clientAuthenticated(req) {
			p.writeTokenErrorResponse(w, http.StatusUnauthorized, "invalid_client", "client authentication failed")
			return
		}
		rt := req.FormValue("refresh_token")
		if _, ok := p.refreshTokens[rt]; !ok {
			p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_grant", "Invalid refresh token")
			return
		}
		delete(p.refreshTokens, rt)
		p.logouts++
		w.WriteHeader(http.StatusNoContent)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// testJWKS converts a pem-encoded public key into JWKS data suitable for a
// verification endpoint response
func testJWKS(t *testing.T, pubKey string) *jose.JSONWebKeySet {
	t.Helper()
	require := require.New(t)

	block, _ := pem.Decode([]byte(pubKey))
	require.NotNil(block)

	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	require.NoError(err)

	return &jose.JSONWebKeySet{
		Keys: []jose.JSONWebKey{
			{
				Key:       pub,
				Algorithm: string(ES256),
				Use:       "sig",
			},
		},
	}
}

// httptestNewUnstartedServerWithPort is roughly the same as
// httptest.NewUnstartedServer() but allows the caller to explicitly choose the
// port if desired.
func httptestNewUnstartedServerWithPort(t *testing.T, handler http.Handler, port int) *httptest.Server {
	t.Helper()
	require := require.New(t)
	require.NotEmpty(port)

	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
	l, err := net.Listen("tcp", addr)
	require.NoError(err)

	return &httptest.Server{
		Listener: l,
		Config:   &http.Server{Handler: handler},
	}
}
