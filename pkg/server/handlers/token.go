// SPDX-FileCopyrightText: Copyright 2025 Wilford Authors
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/wilford-oidc/wilford/pkg/logger"
	"github.com/wilford-oidc/wilford/pkg/storage"
)

// TokenResponse is the token endpoint response (RFC 6749 section 5.1).
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope"`
	IDToken      string `json:"id_token"`
}

// TokenHandler handles POST /api/oauth/token requests, exchanging an
// authorization code or a refresh token for an access token.
func (h *Handler) TokenHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		tokenError(w, oauthInvalidRequest)
		return
	}

	client, err := h.store.GetClient(r.Context(), r.PostFormValue("client_id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			tokenError(w, oauthUnauthorizedClient)
			return
		}
		logger.Warnw("failed to load client", "error", err)
		tokenError(w, oauthServerError)
		return
	}

	if client.ClientSecret != r.PostFormValue("client_secret") {
		tokenError(w, oauthUnauthorizedClient)
		return
	}
	if client.RedirectURI != r.PostFormValue("redirect_uri") {
		tokenError(w, oauthUnauthorizedClient)
		return
	}

	switch r.PostFormValue("grant_type") {
	case "authorization_code":
		h.authorizationCodeGrant(w, r, client)
	case "refresh_token":
		h.refreshTokenGrant(w, r, client)
	default:
		tokenError(w, oauthInvalidRequest)
	}
}

func (h *Handler) authorizationCodeGrant(w http.ResponseWriter, r *http.Request, client *storage.Client) {
	codeValue := r.PostFormValue("code")
	if codeValue == "" {
		tokenError(w, oauthInvalidRequest)
		return
	}

	code, err := h.store.GetAuthorizationCode(r.Context(), codeValue)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			tokenError(w, oauthInvalidGrant)
			return
		}
		logger.Warnw("failed to load authorization code", "error", err)
		tokenError(w, oauthServerError)
		return
	}

	if code.ClientID != client.ClientID {
		tokenError(w, oauthInvalidGrant)
		return
	}
	if time.Now().Unix() > code.ExpiresAt {
		tokenError(w, oauthInvalidGrant)
		return
	}

	accessToken, refreshToken, err := h.store.ConsumeCodeIssueTokenPair(r.Context(), code)
	if err != nil {
		// A concurrent exchange consumed the code first.
		if errors.Is(err, storage.ErrNotFound) {
			tokenError(w, oauthInvalidGrant)
			return
		}
		logger.Warnw("failed to exchange authorization code", "error", err)
		tokenError(w, oauthServerError)
		return
	}

	h.writeTokenResponse(w, r, client, accessToken, refreshToken, code.Nonce)
}

func (h *Handler) refreshTokenGrant(w http.ResponseWriter, r *http.Request, client *storage.Client) {
	tokenValue := r.PostFormValue("refresh_token")
	if tokenValue == "" {
		tokenError(w, oauthInvalidRequest)
		return
	}

	refreshToken, err := h.store.GetRefreshToken(r.Context(), tokenValue)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			tokenError(w, oauthInvalidGrant)
			return
		}
		logger.Warnw("failed to load refresh token", "error", err)
		tokenError(w, oauthServerError)
		return
	}

	if refreshToken.ClientID != client.ClientID {
		tokenError(w, oauthInvalidGrant)
		return
	}

	accessToken, err := h.store.RefreshAccessToken(r.Context(), refreshToken)
	if err != nil {
		logger.Warnw("failed to refresh access token", "error", err)
		tokenError(w, oauthServerError)
		return
	}

	// Refresh responses carry no nonce in the ID token.
	h.writeTokenResponse(w, r, client, accessToken, refreshToken, "")
}

func (h *Handler) writeTokenResponse(
	w http.ResponseWriter,
	r *http.Request,
	client *storage.Client,
	accessToken *storage.AccessToken,
	refreshToken *storage.RefreshToken,
	nonce string,
) {
	user, err := h.store.GetUser(r.Context(), accessToken.UserID)
	if err != nil {
		logger.Warnw("failed to load token owner", "error", err)
		tokenError(w, oauthServerError)
		return
	}

	idToken, err := h.signer.CreateIDToken(client, user, accessToken, nonce)
	if err != nil {
		logger.Warnw("failed to create id token", "error", err)
		tokenError(w, oauthServerError)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, TokenResponse{
		AccessToken:  accessToken.Token,
		TokenType:    "bearer",
		ExpiresIn:    accessToken.ExpiresAt - time.Now().Unix(),
		RefreshToken: refreshToken.Token,
		Scope:        accessToken.Scopes,
		IDToken:      idToken,
	})
}

// tokenError writes an RFC 6749 section 5.2 error response.
func tokenError(w http.ResponseWriter, kind string) {
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": kind})
}
