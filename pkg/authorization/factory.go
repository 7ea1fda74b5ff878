// SPDX-FileCopyrightText: Copyright 2025 Wilford Authors
// SPDX-License-Identifier: Apache-2.0

package authorization

import (
	"fmt"

	"github.com/wilford-oidc/wilford/pkg/config"
	"github.com/wilford-oidc/wilford/pkg/espo"
	"github.com/wilford-oidc/wilford/pkg/storage"
)

// New constructs the provider selected by the configuration.
func New(cfg *config.Config, store storage.Storage) (Provider, error) {
	switch cfg.AuthorizationProvider {
	case config.ProviderLocal:
		return NewLocalProvider(store), nil
	case config.ProviderEspoCrm:
		if cfg.Espo == nil {
			return nil, fmt.Errorf("espo configuration is missing")
		}
		client := espo.NewClient(cfg.Espo.Host, cfg.Espo.APIKey, cfg.Espo.SecretKey)
		return NewEspoProvider(store, client), nil
	default:
		return nil, fmt.Errorf("unknown authorization provider %q", cfg.AuthorizationProvider)
	}
}
