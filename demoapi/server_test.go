// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package demoapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/hashicorp/cap-demo/oidc"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	josejwt "gopkg.in/square/go-jose.v2/jwt"
)

const testRealm = "sam-test"

func testProvider(t *testing.T) *oidc.TestProvider {
	t.Helper()
	return oidc.StartTestProvider(t, oidc.WithTestRealm(testRealm))
}

func testServer(t *testing.T, tp *oidc.TestProvider, modify ...func(*Config)) *Server {
	t.Helper()
	cfg := DefaultConfig()
	cfg.ServerURL = tp.ServerURL()
	cfg.Realm = testRealm
	cfg.ClientID = tp.ClientID()
	cfg.ProviderCA = tp.CACert()
	cfg.TokenURL = tp.Addr() + "/token"
	cfg.RateLimit = 0
	for _, m := range modify {
		m(&cfg)
	}
	s, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func testRequest(t *testing.T, s *Server, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func testDecode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got), rec.Body.String())
	return got
}

// testForeignToken is signed by a key the provider never published.
func testForeignToken(t *testing.T, tp *oidc.TestProvider) string {
	t.Helper()
	_, priv := oidc.TestGenerateKeys(t)
	now := time.Now()
	return oidc.TestSignJWT(t, priv, josejwt.Claims{
		Subject:  "eve",
		Issuer:   tp.Addr(),
		Audience: josejwt.Audience{"account"},
		IssuedAt: josejwt.NewNumericDate(now),
		Expiry:   josejwt.NewNumericDate(now.Add(time.Minute)),
	}, nil)
}

// testRefreshToken runs an authorization code flow against the provider and
// returns the refresh token it issued.
func testRefreshToken(t *testing.T, tp *oidc.TestProvider) string {
	t.Helper()
	require := require.New(t)
	cfg := oauth2.Config{
		ClientID: tp.ClientID(),
		Endpoint: oauth2.Endpoint{
			AuthURL:   tp.Addr() + "/auth",
			TokenURL:  tp.Addr() + "/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
		RedirectURL: "http://127.0.0.1/callback",
		Scopes:      []string{"openid"},
	}
	verifier := oauth2.GenerateVerifier()

	client := *tp.HTTPClient()
	client.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
	resp, err := client.Get(cfg.AuthCodeURL("st_test", oauth2.S256ChallengeOption(verifier)))
	require.NoError(err)
	_ = resp.Body.Close()
	require.Equal(http.StatusFound, resp.StatusCode)
	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(err)

	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, tp.HTTPClient())
	tk, err := cfg.Exchange(ctx, loc.Query().Get("code"), oauth2.VerifierOption(verifier))
	require.NoError(err)
	require.NotEmpty(tk.RefreshToken)
	return tk.RefreshToken
}

func TestNew(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)

	s, err := New(Config{})
	require.Error(err)
	assert.Nil(s)
	assert.ErrorIs(err, ErrInvalidConfig)

	cfg := DefaultConfig()
	cfg.ProviderCA = "not a pem"
	s, err = New(cfg)
	require.Error(err)
	assert.Nil(s)
}

func TestServer_unauthenticated(t *testing.T) {
	t.Parallel()
	tp := testProvider(t)
	s := testServer(t, tp)

	t.Run("health", func(t *testing.T) {
		assert := assert.New(t)
		rec := testRequest(t, s, http.MethodGet, "/", "", nil)
		assert.Equal(http.StatusOK, rec.Code)
		assert.JSONEq(`{"message":"cap-demo api is running","status":"OK"}`, rec.Body.String())
	})
	t.Run("public", func(t *testing.T) {
		assert := assert.New(t)
		rec := testRequest(t, s, http.MethodGet, "/api/public", "", nil)
		assert.Equal(http.StatusOK, rec.Code)
		got := testDecode(t, rec)
		assert.Equal("This is a public endpoint", got["message"])
		assert.NotEmpty(got["timestamp"])
	})
	t.Run("not-found", func(t *testing.T) {
		assert := assert.New(t)
		rec := testRequest(t, s, http.MethodGet, "/api/nope", "", nil)
		assert.Equal(http.StatusNotFound, rec.Code)
		assert.JSONEq(`{"detail":"Not Found"}`, rec.Body.String())
	})
}

func TestServer_verified(t *testing.T) {
	t.Parallel()
	tp := testProvider(t)
	s := testServer(t, tp)

	tests := []struct {
		name     string
		token    string
		wantCode int
	}{
		{name: "valid", token: tp.IssueAccessToken(time.Minute, nil), wantCode: http.StatusOK},
		{name: "missing", token: "", wantCode: http.StatusUnauthorized},
		{name: "malformed", token: "not-a-jwt", wantCode: http.StatusUnauthorized},
		{name: "expired", token: tp.IssueAccessToken(-10*time.Minute, nil), wantCode: http.StatusUnauthorized},
		{name: "wrong-audience", token: tp.IssueAccessToken(time.Minute, map[string]interface{}{"aud": "other"}), wantCode: http.StatusUnauthorized},
		{name: "foreign-signature", token: testForeignToken(t, tp), wantCode: http.StatusUnauthorized},
	}
	for _, path := range []string{"/api/protected", "/api/user-info", "/api/token-info"} {
		path := path
		for _, tt := range tests {
			tt := tt
			t.Run(path+"/"+tt.name, func(t *testing.T) {
				t.Parallel()
				assert := assert.New(t)
				rec := testRequest(t, s, http.MethodGet, path, tt.token, nil)
				assert.Equal(tt.wantCode, rec.Code, rec.Body.String())
				if tt.wantCode == http.StatusUnauthorized {
					assert.Equal("Bearer", rec.Header().Get(echo.HeaderWWWAuthenticate))
					assert.NotEmpty(testDecode(t, rec)["detail"])
				}
			})
		}
	}
}

func TestServer_protected(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	tp := testProvider(t)
	s := testServer(t, tp)
	token := tp.IssueAccessToken(time.Minute, nil)

	rec := testRequest(t, s, http.MethodGet, "/api/protected", token, nil)
	require.Equal(http.StatusOK, rec.Code, rec.Body.String())
	got := testDecode(t, rec)
	assert.Equal("alice", got["username"])
	assert.Equal("alice@example.com", got["email"])
	assert.NotEmpty(got["user_id"])
	assert.Equal([]interface{}{"offline_access", "uma_authorization"}, got["roles"])
	info, ok := got["token_info"].(map[string]interface{})
	require.True(ok)
	assert.Equal(tp.Addr(), info["issuer"])

	rec = testRequest(t, s, http.MethodGet, "/api/user-info", token, nil)
	require.Equal(http.StatusOK, rec.Code)
	got = testDecode(t, rec)
	assert.Equal("Alice Doe", got["name"])
	assert.Equal("Alice", got["given_name"])
	assert.Equal("Doe", got["family_name"])

	rec = testRequest(t, s, http.MethodGet, "/api/token-info", token, nil)
	require.Equal(http.StatusOK, rec.Code)
	got = testDecode(t, rec)
	meta, ok := got["token_metadata"].(map[string]interface{})
	require.True(ok)
	assert.Equal("Bearer", meta["token_type"])
	perms, ok := got["permissions"].(map[string]interface{})
	require.True(ok)
	assert.Equal(map[string]interface{}{}, perms["client_roles"])
}

func TestServer_adminUsers(t *testing.T) {
	t.Parallel()
	tp := testProvider(t)
	s := testServer(t, tp)

	tests := []struct {
		name     string
		roles    []string
		wantCode int
	}{
		{name: "user", roles: []string{"offline_access"}, wantCode: http.StatusForbidden},
		{name: "admin", roles: []string{"admin"}, wantCode: http.StatusOK},
		{name: "realm-admin", roles: []string{"realm-admin"}, wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert := assert.New(t)
			token := tp.IssueAccessToken(time.Minute, map[string]interface{}{
				"realm_access": map[string]interface{}{"roles": tt.roles},
			})
			rec := testRequest(t, s, http.MethodGet, "/api/admin/users", token, nil)
			assert.Equal(tt.wantCode, rec.Code, rec.Body.String())
			got := testDecode(t, rec)
			if tt.wantCode == http.StatusForbidden {
				assert.Equal("Admin privileges are required for this endpoint", got["detail"])
				return
			}
			assert.Len(got["user_roles"], 1)
		})
	}
}

func TestServer_testBasic(t *testing.T) {
	t.Parallel()
	tp := testProvider(t)
	s := testServer(t, tp)

	tests := []struct {
		name     string
		token    string
		wantCode int
	}{
		{name: "valid", token: tp.IssueAccessToken(time.Minute, nil), wantCode: http.StatusOK},
		{name: "unknown-issuer", token: tp.IssueAccessToken(time.Minute, map[string]interface{}{"iss": "https://elsewhere.example/realms/x"}), wantCode: http.StatusOK},
		{name: "unsigned-by-provider", token: testForeignToken(t, tp), wantCode: http.StatusOK},
		{name: "expired", token: tp.IssueAccessToken(-time.Minute, nil), wantCode: http.StatusUnauthorized},
		{name: "no-subject", token: tp.IssueAccessToken(time.Minute, map[string]interface{}{"sub": ""}), wantCode: http.StatusUnauthorized},
		{name: "no-issuer", token: tp.IssueAccessToken(time.Minute, map[string]interface{}{"iss": ""}), wantCode: http.StatusUnauthorized},
		{name: "malformed", token: "a.b.c", wantCode: http.StatusUnauthorized},
		{name: "missing", token: "", wantCode: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert := assert.New(t)
			rec := testRequest(t, s, http.MethodGet, "/api/test-basic", tt.token, nil)
			assert.Equal(tt.wantCode, rec.Code, rec.Body.String())
			if tt.wantCode == http.StatusOK {
				got := testDecode(t, rec)
				assert.Equal("Basic validation succeeded (signature not verified)", got["message"])
				assert.NotEmpty(got["user_id"])
			}
		})
	}
}

func TestServer_unverified(t *testing.T) {
	t.Parallel()
	tp := testProvider(t)
	s := testServer(t, tp)
	token := tp.IssueAccessToken(time.Minute, nil)

	t.Run("test-no-verify", func(t *testing.T) {
		assert := assert.New(t)
		rec := testRequest(t, s, http.MethodGet, "/api/test-no-verify", token, nil)
		assert.Equal(http.StatusOK, rec.Code)
		got := testDecode(t, rec)
		payload, ok := got["payload"].(map[string]interface{})
		assert.True(ok)
		assert.Equal("alice", payload["preferred_username"])

		rec = testRequest(t, s, http.MethodGet, "/api/test-no-verify", "garbage", nil)
		assert.Equal(http.StatusOK, rec.Code)
		assert.Contains(testDecode(t, rec)["error"], "unable to parse token")

		rec = testRequest(t, s, http.MethodGet, "/api/test-no-verify", "", nil)
		assert.Equal(http.StatusUnauthorized, rec.Code)
	})
	t.Run("debug-token", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		rec := testRequest(t, s, http.MethodPost, "/api/debug-token", "", map[string]string{"token": token})
		require.Equal(http.StatusOK, rec.Code)
		got := testDecode(t, rec)
		header, ok := got["header"].(map[string]interface{})
		require.True(ok)
		assert.Equal("ES256", header["alg"])
		cfg, ok := got["identity_config"].(map[string]interface{})
		require.True(ok)
		assert.Equal(testRealm, cfg["realm"])
		assert.Contains(cfg["valid_issuers"], tp.Addr())

		rec = testRequest(t, s, http.MethodPost, "/api/debug-token", "", map[string]string{})
		assert.Equal(http.StatusOK, rec.Code)
		assert.JSONEq(`{"error":"no token provided"}`, rec.Body.String())

		rec = testRequest(t, s, http.MethodPost, "/api/debug-token", "", map[string]string{"token": "garbage"})
		assert.Equal(http.StatusOK, rec.Code)
		assert.Contains(testDecode(t, rec)["error"], "failed to parse token")
	})
}

func TestServer_refreshToken(t *testing.T) {
	t.Parallel()
	tp := testProvider(t)
	s := testServer(t, tp)

	t.Run("refreshed", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		rt := testRefreshToken(t, tp)
		rec := testRequest(t, s, http.MethodPost, "/api/refresh-token", "", map[string]string{"refresh_token": rt})
		require.Equal(http.StatusOK, rec.Code, rec.Body.String())
		var got refreshResponse
		require.NoError(json.Unmarshal(rec.Body.Bytes(), &got))
		assert.NotEmpty(got.AccessToken)
		assert.NotEmpty(got.IDToken)
		assert.NotEmpty(got.RefreshToken)
		assert.NotEqual(rt, got.RefreshToken)
		assert.Equal("Bearer", got.TokenType)
		assert.InDelta(60, got.ExpiresIn, 5)

		// the old refresh token was rotated out
		rec = testRequest(t, s, http.MethodPost, "/api/refresh-token", "", map[string]string{"refresh_token": rt})
		assert.Equal(http.StatusBadRequest, rec.Code)
	})
	t.Run("missing", func(t *testing.T) {
		assert := assert.New(t)
		rec := testRequest(t, s, http.MethodPost, "/api/refresh-token", "", map[string]string{})
		assert.Equal(http.StatusBadRequest, rec.Code)
		assert.JSONEq(`{"detail":"refresh_token is required"}`, rec.Body.String())
	})
	t.Run("unknown", func(t *testing.T) {
		assert := assert.New(t)
		rec := testRequest(t, s, http.MethodPost, "/api/refresh-token", "", map[string]string{"refresh_token": "rt_unknown"})
		assert.Equal(http.StatusBadRequest, rec.Code)
		assert.Contains(testDecode(t, rec)["detail"], "Token refresh failed")
	})
}

func TestServer_providerUnavailable(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	tp := testProvider(t)
	token := tp.IssueAccessToken(time.Minute, nil)
	s := testServer(t, tp)
	tp.Stop()

	rec := testRequest(t, s, http.MethodGet, "/api/protected", token, nil)
	assert.Equal(http.StatusUnauthorized, rec.Code)
	assert.Contains(testDecode(t, rec)["detail"], "unable to fetch provider keys")
}

func TestServer_cors(t *testing.T) {
	t.Parallel()
	tp := testProvider(t)
	s := testServer(t, tp)

	preflight := func(origin string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodOptions, "/api/protected", nil)
		req.Header.Set(echo.HeaderOrigin, origin)
		req.Header.Set(echo.HeaderAccessControlRequestMethod, http.MethodGet)
		req.Header.Set(echo.HeaderAccessControlRequestHeaders, "authorization,content-type")
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		return rec
	}

	assert := assert.New(t)
	rec := preflight(DefaultAllowedOrigin)
	assert.Equal(http.StatusNoContent, rec.Code)
	assert.Equal(DefaultAllowedOrigin, rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
	assert.Equal("true", rec.Header().Get(echo.HeaderAccessControlAllowCredentials))

	rec = preflight("http://evil.example")
	assert.Empty(rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
}

func TestServer_rateLimit(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	tp := testProvider(t)
	s := testServer(t, tp, func(c *Config) {
		c.RateLimit = 1
		c.RateBurst = 2
	})
	assert.Equal(http.StatusOK, testRequest(t, s, http.MethodGet, "/", "", nil).Code)
	assert.Equal(http.StatusOK, testRequest(t, s, http.MethodGet, "/", "", nil).Code)
	rec := testRequest(t, s, http.MethodGet, "/", "", nil)
	assert.Equal(http.StatusTooManyRequests, rec.Code)
	assert.JSONEq(`{"detail":"rate limit exceeded"}`, rec.Body.String())
}

func TestServer_Run(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	tp := testProvider(t)
	s := testServer(t, tp, func(c *Config) { c.Addr = "127.0.0.1:0" })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(func() bool { return s.Addr() != nil }, 5*time.Second, 10*time.Millisecond)
	resp, err := http.Get("http://" + s.Addr().String() + "/")
	require.NoError(err)
	_ = resp.Body.Close()
	assert.Equal(http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(err)
	case <-time.After(15 * time.Second):
		require.FailNow("Run didn't return after its ctx was canceled")
	}
}
