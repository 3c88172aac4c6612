// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hashicorp/cap-demo/config"
	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	v       = config.New()
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "capdemo",
	Short: "OpenID Connect login demo",
	Long: `capdemo demonstrates logging in to an OpenID Connect provider from a
terminal application and calling a backend API with the resulting token.

Example usage:
  capdemo api                  # Start the demo backend on :8000
  capdemo ui                   # Start the terminal application
  capdemo ui --log-level debug # Same, with debug logs in the log file`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .capdemo.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level: trace, debug, info, warn or error")

	_ = v.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

// initConfig loads the configuration from the file, CAPDEMO_ environment
// variables and flags.
func initConfig() error {
	var err error
	cfg, err = config.Load(v, cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	return nil
}

// newLogger builds the root logger from c.  It writes to c.Path, or to
// defaultPath when that is empty, or to stderr when both are.  The returned
// func closes the log file.
func newLogger(c config.LogConfig, defaultPath string) (hclog.Logger, func() error, error) {
	var out io.Writer = os.Stderr
	closeFn := func() error { return nil }

	path := c.Path
	if path == "" {
		path = defaultPath
	}
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, nil, fmt.Errorf("creating log directory: %w", err)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		out = f
		closeFn = f.Close
	}

	logger := hclog.New(&hclog.LoggerOptions{
		Name:       "capdemo",
		Level:      hclog.LevelFromString(c.Level),
		JSONFormat: c.Format == "json",
		Output:     out,
	})
	return logger, closeFn, nil
}
