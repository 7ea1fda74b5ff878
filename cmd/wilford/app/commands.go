// SPDX-FileCopyrightText: Copyright 2025 Wilford Authors
// SPDX-License-Identifier: Apache-2.0

// Package app provides the command-line interface of the wilford
// authorization server.
package app

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wilford-oidc/wilford/pkg/authorization"
	"github.com/wilford-oidc/wilford/pkg/config"
	"github.com/wilford-oidc/wilford/pkg/logger"
	"github.com/wilford-oidc/wilford/pkg/mailer"
	"github.com/wilford-oidc/wilford/pkg/server"
	"github.com/wilford-oidc/wilford/pkg/storage/mysql"
)

var rootCmd = &cobra.Command{
	Use:               "wilford",
	DisableAutoGenTag: true,
	Short:             "Wilford is an OAuth2 authorization server with OpenID Connect support",
	Long: `Wilford is an OAuth2 authorization server with OpenID Connect support.
It authenticates users against a local credential store or a remote EspoCRM
instance and issues access, refresh and ID tokens to registered clients.

Configuration is read from the JSON file named by the CONFIG_PATH environment
variable.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return serve(cmd.Context())
	},
}

// NewRootCmd creates the root command of the wilford CLI.
func NewRootCmd() *cobra.Command {
	return rootCmd
}

func serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	signingKey, err := cfg.ReadSigningKey()
	if err != nil {
		return err
	}
	publicKey, err := cfg.ReadPublicKey()
	if err != nil {
		return err
	}

	store, err := mysql.New(ctx, cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warnw("failed to close database", "error", err)
		}
	}()

	if err := server.EnsureInternalClient(ctx, store, cfg); err != nil {
		return err
	}

	provider, err := authorization.New(cfg, store)
	if err != nil {
		return err
	}

	mail, err := mailer.New(cfg.Email)
	if err != nil {
		return err
	}

	srv := server.New(config.BindAddress, store, cfg, provider, signingKey, publicKey, mail)
	return srv.Run(ctx)
}
