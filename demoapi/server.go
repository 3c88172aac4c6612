// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package demoapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	sdkhttp "github.com/hashicorp/cap-demo/sdk/http"
	"github.com/hashicorp/cap-demo/sdk/id"
	"github.com/hashicorp/go-hclog"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const shutdownTimeout = 10 * time.Second

// Server is the demo backend.
type Server struct {
	cfg      Config
	logger   hclog.Logger
	echo     *echo.Echo
	client   *http.Client
	verifier *verifier

	// ctx outlives any one request; the JWKS cache and the rate limiter's
	// cleanup are bound to it.
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Server.  Close releases its background resources.
//
// Supported options: WithLogger
func New(cfg Config, opt ...Option) (*Server, error) {
	const op = "demoapi.New"
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	cfg = cfg.withDefaults()
	opts := getOpts(opt...)

	client, err := sdkhttp.NewClient(sdkhttp.WithCACert(cfg.ProviderCA), sdkhttp.WithTimeout(30*time.Second))
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create provider client: %w", op, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:    cfg,
		logger: opts.withLogger,
		client: client,
		ctx:    ctx,
		cancel: cancel,
	}
	s.verifier = newVerifier(ctx, cfg, s.logger.Named("verifier"))
	s.echo = s.routes()
	return s, nil
}

func (s *Server) routes() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.errorHandler

	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: func() string {
			reqID, err := id.New("req")
			if err != nil {
				return ""
			}
			return reqID
		},
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			args := []interface{}{
				"request_id", v.RequestID,
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
				"remote_ip", v.RemoteIP,
			}
			if v.Error != nil {
				args = append(args, "error", v.Error)
			}
			s.logger.Info("request", args...)
			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     s.cfg.AllowedOrigins,
		AllowCredentials: true,
	}))
	if s.cfg.RateLimit > 0 {
		e.Use(NewRateLimiter(s.ctx, s.cfg.RateLimit, s.cfg.RateBurst).Middleware())
	}

	e.GET("/", s.health)

	api := e.Group("/api")
	api.GET("/public", s.public)
	api.POST("/debug-token", s.debugToken)
	api.POST("/refresh-token", s.refreshToken)
	api.GET("/test-no-verify", s.testNoVerify, requireBearer)
	api.GET("/test-basic", s.testBasic, requireBearer)

	api.GET("/protected", s.protected, requireBearer, s.requireVerified)
	api.GET("/user-info", s.userInfo, requireBearer, s.requireVerified)
	api.GET("/admin/users", s.adminUsers, requireBearer, s.requireVerified)
	api.GET("/token-info", s.tokenInfo, requireBearer, s.requireVerified)
	return e
}

// Handler returns the server's http.Handler.
func (s *Server) Handler() http.Handler { return s.echo }

// Addr returns the address the server is listening on, or nil before Run
// has started listening.
func (s *Server) Addr() net.Addr { return s.echo.ListenerAddr() }

// Run serves until ctx is done, then shuts the server down gracefully.
func (s *Server) Run(ctx context.Context) error {
	const op = "demoapi.(Server).Run"
	defer s.Close()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", s.cfg.Addr, "issuer", s.cfg.Issuer())
		errCh <- s.echo.Start(s.cfg.Addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("%s: %w", op, err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("%s: unable to shutdown: %w", op, err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Close stops the server's background work.  It does not stop a running
// Run; cancel its ctx instead.
func (s *Server) Close() {
	s.cancel()
	s.client.CloseIdleConnections()
}

type errorResponse struct {
	Detail string `json:"detail"`
}

// errorHandler renders every error as {"detail": ...}.
func (s *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code := http.StatusInternalServerError
	msg := http.StatusText(code)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		msg = fmt.Sprint(he.Message)
	}
	if code >= http.StatusInternalServerError {
		s.logger.Error("request failed", "uri", c.Request().RequestURI, "error", err)
	}

	var writeErr error
	if c.Request().Method == http.MethodHead {
		writeErr = c.NoContent(code)
	} else {
		writeErr = c.JSON(code, errorResponse{Detail: msg})
	}
	if writeErr != nil {
		s.logger.Error("unable to write error response", "error", writeErr)
	}
}
