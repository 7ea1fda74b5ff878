// SPDX-FileCopyrightText: Copyright 2025 Wilford Authors
// SPDX-License-Identifier: Apache-2.0

package oidc

import "github.com/wilford-oidc/wilford/pkg/config"

// DiscoveryDocument is the OIDC provider metadata served at
// /.well-known/openid-configuration.
type DiscoveryDocument struct {
	Issuer                           string   `json:"issuer"`
	AuthorizationEndpoint            string   `json:"authorization_endpoint"`
	TokenEndpoint                    string   `json:"token_endpoint"`
	ResponseTypesSupported           []string `json:"response_types_supported"`
	GrantTypesSupported              []string `json:"grant_types_supported"`
	IDTokenSigningAlgValuesSupported []string `json:"id_token_signing_alg_values_supported"`
	JwksURI                          string   `json:"jwks_uri"`
}

// NewDiscoveryDocument builds the provider metadata from the configured
// external endpoints.
func NewDiscoveryDocument(cfg *config.Config) DiscoveryDocument {
	return DiscoveryDocument{
		Issuer:                cfg.OidcIssuer,
		AuthorizationEndpoint: cfg.HTTP.AuthorizationEndpoint,
		TokenEndpoint:         cfg.HTTP.TokenEndpoint,
		ResponseTypesSupported: []string{
			"code",
			"id_token token",
			"token",
		},
		GrantTypesSupported:              []string{"authorization_code", "implicit"},
		IDTokenSigningAlgValuesSupported: []string{SigningAlgorithm},
		JwksURI:                          cfg.HTTP.JwksURIEndpoint,
	}
}
