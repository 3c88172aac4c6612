// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package config loads the capdemo configuration from a YAML file, CAPDEMO_
// environment variables and command line flags, in increasing precedence.
//
// Keys are grouped by section, e.g. identity.server_url, which may also be
// set as CAPDEMO_IDENTITY_SERVER_URL.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/viper"
)

// ErrInvalidConfig is returned when a loaded configuration can't be used.
var ErrInvalidConfig = errors.New("invalid config")

const (
	EnvPrefix = "CAPDEMO"
	FileName  = ".capdemo"
	AppDir    = "capdemo"
)

// Config is the complete capdemo configuration.
type Config struct {
	Identity IdentityConfig `mapstructure:"identity"`
	API      APIConfig      `mapstructure:"api"`
	Store    StoreConfig    `mapstructure:"store"`
	Log      LogConfig      `mapstructure:"log"`
	Server   ServerConfig   `mapstructure:"server"`
}

// IdentityConfig locates the identity provider and this client in it.
type IdentityConfig struct {
	ServerURL    string        `mapstructure:"server_url"`
	Realm        string        `mapstructure:"realm"`
	ClientID     string        `mapstructure:"client_id"`
	RedirectURL  string        `mapstructure:"redirect_url"`
	Scopes       []string      `mapstructure:"scopes"`
	SigningAlgs  []string      `mapstructure:"signing_algs"`
	CAFile       string        `mapstructure:"ca_file"`
	LoginTimeout time.Duration `mapstructure:"login_timeout"`
	OnLoad       string        `mapstructure:"on_load"`
}

// APIConfig locates the backend the protected page calls.
type APIConfig struct {
	BaseURL string `mapstructure:"base_url"`
	CAFile  string `mapstructure:"ca_file"`
}

// StoreConfig locates the refresh token store.  An empty path keeps tokens
// in memory only.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// LogConfig configures the root logger.  An empty path means the command's
// default destination.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Path   string `mapstructure:"path"`
}

// ServerConfig configures the demo backend.
type ServerConfig struct {
	Addr            string   `mapstructure:"addr"`
	Audience        string   `mapstructure:"audience"`
	TokenURL        string   `mapstructure:"token_url"`
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	KnownServerURLs []string `mapstructure:"known_server_urls"`
	RateLimit       float64  `mapstructure:"rate_limit"`
	RateBurst       int      `mapstructure:"rate_burst"`
}

// Dir returns the per-user capdemo directory, falling back to the working
// directory when there is no user config dir.
func Dir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "."
	}
	return filepath.Join(dir, AppDir)
}

// New returns a viper instance with every key defaulted and bound to its
// CAPDEMO_ environment variable.  Flags may be bound to it before Load.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("identity.server_url", "http://localhost:8080")
	v.SetDefault("identity.realm", "sam-test")
	v.SetDefault("identity.client_id", "myclient")
	v.SetDefault("identity.redirect_url", "http://localhost:3000/callback")
	v.SetDefault("identity.scopes", []string{"profile", "email"})
	v.SetDefault("identity.signing_algs", []string{"RS256"})
	v.SetDefault("identity.ca_file", "")
	v.SetDefault("identity.login_timeout", 2*time.Minute)
	v.SetDefault("identity.on_load", "check-sso")

	v.SetDefault("api.base_url", "http://localhost:8000")
	v.SetDefault("api.ca_file", "")

	v.SetDefault("store.path", filepath.Join(Dir(), "tokens.db"))

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.path", "")

	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.audience", "account")
	v.SetDefault("server.token_url", "")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.known_server_urls", []string{
		"http://localhost:8080",
		"http://127.0.0.1:8080",
		"http://host.docker.internal:8080",
	})
	v.SetDefault("server.rate_limit", 10.0)
	v.SetDefault("server.rate_burst", 20)
}

// Load reads cfgFile, or .capdemo.yaml from the working directory or the
// user's capdemo directory when cfgFile is empty, into a validated Config.
// A missing default file isn't an error.
func Load(v *viper.Viper, cfgFile string) (*Config, error) {
	const op = "config.Load"
	if v == nil {
		v = New()
	}
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/" + AppDir)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("%s: unable to read config: %w", op, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%s: unable to decode config: %w", op, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &cfg, nil
}

// Validate returns every problem with the values themselves.  Identity and
// server settings are checked again by the components they configure.
func (c *Config) Validate() error {
	var result *multierror.Error
	invalid := func(format string, a ...interface{}) {
		result = multierror.Append(result, fmt.Errorf("%s: %w", fmt.Sprintf(format, a...), ErrInvalidConfig))
	}

	if c.Identity.OnLoad != "check-sso" && c.Identity.OnLoad != "login-required" {
		invalid("identity.on_load %q must be check-sso or login-required", c.Identity.OnLoad)
	}
	if c.Identity.LoginTimeout <= 0 {
		invalid("identity.login_timeout must be positive")
	}
	if u, err := url.Parse(c.API.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		invalid("api.base_url %q must be an http(s) URL", c.API.BaseURL)
	}
	if hclog.LevelFromString(c.Log.Level) == hclog.NoLevel {
		invalid("log.level %q is unknown", c.Log.Level)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		invalid("log.format %q must be text or json", c.Log.Format)
	}
	if c.Server.RateLimit < 0 || c.Server.RateBurst < 0 {
		invalid("server.rate_limit and server.rate_burst can't be negative")
	}
	return result.ErrorOrNil()
}
