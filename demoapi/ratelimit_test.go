// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package demoapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func TestRateLimiter_Middleware(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e := echo.New()
	rl := NewRateLimiter(ctx, rate.Limit(1), 2)
	e.Use(rl.Middleware())
	e.GET("/", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	do := func(remoteAddr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = remoteAddr
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(http.StatusOK, do("192.0.2.1:1000").Code)
	assert.Equal(http.StatusOK, do("192.0.2.1:1001").Code)
	rec := do("192.0.2.1:1002")
	assert.Equal(http.StatusTooManyRequests, rec.Code)
	assert.Equal("1", rec.Header().Get("Retry-After"))

	// limits are per client ip
	assert.Equal(http.StatusOK, do("192.0.2.2:1000").Code)

	rl.mu.Lock()
	assert.Len(rl.limiters, 2)
	rl.mu.Unlock()
}
