// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/hashicorp/cap-demo/demoapi"
	"github.com/spf13/cobra"
)

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Run the demo backend API",
	Long: `Run the demo backend API the terminal application calls.

Bearer tokens are verified against the identity provider's published keys.
The server.* config keys set the CORS origins, the per-client rate limit and
the provider URLs whose tokens are accepted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAPI(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(apiCmd)

	apiCmd.Flags().String("addr", ":8000", "address to listen on")
	_ = v.BindPFlag("server.addr", apiCmd.Flags().Lookup("addr"))
}

func runAPI(ctx context.Context) error {
	logger, closeLog, err := newLogger(cfg.Log, "")
	if err != nil {
		return err
	}
	defer closeLog()

	sc, err := cfg.ServerConfig()
	if err != nil {
		return err
	}
	srv, err := demoapi.New(sc, demoapi.WithLogger(logger.Named("api")))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return srv.Run(ctx)
}
