// SPDX-FileCopyrightText: Copyright 2025 Wilford Authors
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/wilford-oidc/wilford/pkg/logger"
	"github.com/wilford-oidc/wilford/pkg/storage"
)

// OAuth2 error kinds returned via redirect (RFC 6749 section 4.1.2.1) or as
// JSON from the token endpoint (section 5.2).
const (
	oauthInvalidRequest          = "invalid_request"
	oauthUnauthorizedClient      = "unauthorized_client"
	oauthAccessDenied            = "access_denied"
	oauthUnsupportedResponseType = "unsupported_response_type"
	oauthInvalidGrant            = "invalid_grant"
	oauthServerError             = "server_error"
)

// AuthorizeHandler handles GET /api/oauth/authorize requests. It records a
// pending authorization for the requested flow and sends the user agent to
// the login page of the consent UI.
func (h *Handler) AuthorizeHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	redirectURI := query.Get("redirect_uri")
	state := query.Get("state")
	nonce := query.Get("nonce")

	var authorizationType storage.AuthorizationType
	switch query.Get("response_type") {
	case "code":
		authorizationType = storage.TypeAuthorizationCode
	case "token":
		authorizationType = storage.TypeImplicit
	case "id_token token":
		authorizationType = storage.TypeIDToken
	default:
		redirectError(w, r, redirectURI, oauthUnsupportedResponseType, state)
		return
	}

	// OpenID Connect Core section 3.2.2.1 requires a nonce for the
	// id_token response type.
	if authorizationType == storage.TypeIDToken && nonce == "" {
		redirectError(w, r, redirectURI, oauthInvalidRequest, state)
		return
	}

	client, err := h.store.GetClient(r.Context(), query.Get("client_id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			redirectError(w, r, redirectURI, oauthUnauthorizedClient, state)
			return
		}
		logger.Warnw("failed to load client", "error", err)
		redirectError(w, r, redirectURI, oauthServerError, state)
		return
	}

	if client.RedirectURI != redirectURI {
		redirectError(w, r, redirectURI, oauthUnauthorizedClient, state)
		return
	}

	pending, err := h.store.CreatePendingAuthorization(
		r.Context(), client.ClientID, query.Get("scope"), state, nonce, authorizationType)
	if err != nil {
		logger.Warnw("failed to create pending authorization", "error", err)
		redirectError(w, r, redirectURI, oauthServerError, state)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, fmt.Sprintf("%s?authorization=%s", h.config.HTTP.UILoginPath, pending.ID), http.StatusFound)
}

// redirectError sends the user agent back to the client with an OAuth2 error
// kind. When the redirect URI itself is unusable, a plain 400 is returned
// instead.
func redirectError(w http.ResponseWriter, r *http.Request, redirectURI, kind, state string) {
	if _, err := url.ParseRequestURI(redirectURI); err != nil {
		writeStatus(w, http.StatusBadRequest)
		return
	}

	values := url.Values{}
	values.Set("error", kind)
	if state != "" {
		values.Set("state", state)
	}
	http.Redirect(w, r, fmt.Sprintf("%s?%s", redirectURI, values.Encode()), http.StatusFound)
}
