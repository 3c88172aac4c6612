// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/hashicorp/cap-demo/api"
	"github.com/hashicorp/cap-demo/config"
	"github.com/hashicorp/cap-demo/identity"
	"github.com/hashicorp/cap-demo/session"
	"github.com/hashicorp/cap-demo/tokenstore"
	"github.com/hashicorp/cap-demo/ui"
	"github.com/hashicorp/cap-demo/ui/i18n"
	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var uiCmd = &cobra.Command{
	Use:   "ui",
	Short: "Run the terminal application",
	Long: `Run the terminal application.

The identity client starts in the mode set by identity.on_load: check-sso
restores a stored session when there is one, login-required opens the
browser at the provider's login page right away.  Logs go to log.path,
by default capdemo.log in the user config directory.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runUI(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(uiCmd)
}

// openStore opens the refresh token store at path, or an in-memory one when
// path is empty.
func openStore(path string) (tokenstore.Store, error) {
	if path == "" {
		return tokenstore.NewMemory(), nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating token store directory: %w", err)
	}
	s, err := tokenstore.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening token store: %w", err)
	}
	return s, nil
}

// locale returns the user's locale settings in POSIX precedence order.
func locale() []string {
	return []string{os.Getenv("LC_ALL"), os.Getenv("LC_MESSAGES"), os.Getenv("LANG")}
}

func newAPIClient(logger hclog.Logger) (*api.Client, error) {
	ca, err := cfg.APICACert()
	if err != nil {
		return nil, err
	}
	opts := []api.Option{api.WithLogger(logger)}
	if ca != "" {
		opts = append(opts, api.WithCACert(ca))
	}
	return api.NewClient(cfg.API.BaseURL, opts...)
}

func runUI(ctx context.Context) error {
	logger, closeLog, err := newLogger(cfg.Log, filepath.Join(config.Dir(), "capdemo.log"))
	if err != nil {
		return err
	}
	defer closeLog()

	idCfg, err := cfg.IdentityConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg.Store.Path)
	if err != nil {
		return err
	}
	adapter, err := identity.New(idCfg, identity.WithLogger(logger.Named("identity")), identity.WithStore(store))
	if err != nil {
		_ = store.Close()
		return err
	}
	// closes the store too
	defer func() {
		if err := adapter.Close(); err != nil {
			logger.Warn("closing identity client", "error", err)
		}
	}()

	mgr, err := session.NewManager(adapter, session.WithLogger(logger.Named("session")))
	if err != nil {
		return err
	}
	client, err := newAPIClient(logger.Named("api"))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	printer := i18n.NewPrinter(i18n.Match(locale()...))
	app, err := ui.New(ctx, mgr, client, printer)
	if err != nil {
		return err
	}
	logger.Info("starting", "issuer", idCfg.Issuer(), "api", cfg.API.BaseURL, "language", printer.Language().String())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := mgr.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		// failures reach the UI as a logged-out session
		_, _ = adapter.Init(gctx, cfg.InitOptions())
		return nil
	})
	g.Go(func() error {
		defer cancel()
		_, err := tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(gctx)).Run()
		if errors.Is(err, tea.ErrProgramKilled) {
			return nil
		}
		return err
	})
	return g.Wait()
}
