// SPDX-FileCopyrightText: Copyright 2025 Wilford Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"fmt"

	"github.com/wilford-oidc/wilford/pkg/config"
	"github.com/wilford-oidc/wilford/pkg/logger"
	"github.com/wilford-oidc/wilford/pkg/storage"
)

// internalClientName is the name of the client the consent UI uses.
const internalClientName = "Wilford"

// EnsureInternalClient creates the internal OAuth2 client on first boot. The
// generated credentials are logged once so the operator can configure the
// consent UI.
func EnsureInternalClient(ctx context.Context, store storage.Storage, cfg *config.Config) error {
	clients, err := store.ListClients(ctx)
	if err != nil {
		return fmt.Errorf("listing clients: %w", err)
	}
	for _, client := range clients {
		if client.IsInternal {
			return nil
		}
	}

	client, err := store.CreateClient(ctx, internalClientName, cfg.DefaultClient.RedirectURI, true)
	if err != nil {
		return fmt.Errorf("creating internal client: %w", err)
	}

	logger.Infow("created internal OAuth2 client",
		"client_id", client.ClientID,
		"client_secret", client.ClientSecret,
		"redirect_uri", client.RedirectURI)
	return nil
}
