// SPDX-FileCopyrightText: Copyright 2025 Wilford Authors
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"fmt"
	"net/http"
)

// DiscoveryCacheMaxAge is the Cache-Control max-age for the discovery and
// JWKS endpoints (1 hour). The signing key only changes on redeploy.
const DiscoveryCacheMaxAge = 3600

// OIDCDiscoveryHandler handles GET /.well-known/openid-configuration
// requests (OIDC Discovery 1.0).
func (h *Handler) OIDCDiscoveryHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Cache-Control", fmt.Sprintf("max-age=%d", DiscoveryCacheMaxAge))
	writeJSON(w, http.StatusOK, h.discovery)
}

// JWKSHandler handles GET /.well-known/jwks.json requests. It returns the
// public key used for verifying ID tokens.
func (h *Handler) JWKSHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Cache-Control", fmt.Sprintf("max-age=%d", DiscoveryCacheMaxAge))
	writeJSON(w, http.StatusOK, h.jwks)
}
