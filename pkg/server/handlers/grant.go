// SPDX-FileCopyrightText: Copyright 2025 Wilford Authors
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/wilford-oidc/wilford/pkg/logger"
	"github.com/wilford-oidc/wilford/pkg/storage"
)

// sessionCookieTTL is the lifetime of the Authorization cookie set after an
// implicit or id_token grant.
const sessionCookieTTL = 30 * 24 * time.Hour

// GrantHandler handles GET /api/v1/auth/authorize requests, the consent
// decision of the user. On grant it redeems the pending authorization for the
// credential of its flow; on denial the pending authorization is removed and
// the client is told access was denied.
func (h *Handler) GrantHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	pending, err := h.store.GetPendingAuthorization(r.Context(), query.Get("authorization"))
	if err != nil {
		writeError(w, err)
		return
	}

	client, err := h.store.GetClient(r.Context(), pending.ClientID)
	if err != nil {
		writeError(w, err)
		return
	}

	if query.Get("grant") != "true" {
		if err := h.store.DeletePendingAuthorization(r.Context(), pending.ID); err != nil {
			logger.Warnw("failed to delete denied pending authorization", "error", err)
		}
		redirectError(w, r, client.RedirectURI, oauthAccessDenied, pending.State)
		return
	}

	switch pending.Type {
	case storage.TypeAuthorizationCode:
		h.grantAuthorizationCode(w, r, client, pending)
	case storage.TypeImplicit:
		h.grantImplicit(w, r, client, pending, false)
	case storage.TypeIDToken:
		h.grantImplicit(w, r, client, pending, true)
	default:
		writeStatus(w, http.StatusInternalServerError)
	}
}

func (h *Handler) grantAuthorizationCode(w http.ResponseWriter, r *http.Request, client *storage.Client, pending *storage.PendingAuthorization) {
	code, err := h.store.ConsumePendingIssueCode(r.Context(), pending)
	if err != nil {
		writeGrantError(w, err)
		return
	}

	values := url.Values{}
	values.Set("code", code.Code)
	if pending.State != "" {
		values.Set("state", pending.State)
	}
	http.Redirect(w, r, fmt.Sprintf("%s?%s", client.RedirectURI, values.Encode()), http.StatusFound)
}

func (h *Handler) grantImplicit(w http.ResponseWriter, r *http.Request, client *storage.Client, pending *storage.PendingAuthorization, withIDToken bool) {
	nonce := pending.Nonce

	accessToken, err := h.store.ConsumePendingIssueAccessToken(r.Context(), pending)
	if err != nil {
		writeGrantError(w, err)
		return
	}

	fragment := url.Values{}
	fragment.Set("access_token", accessToken.Token)
	fragment.Set("token_type", "bearer")
	fragment.Set("expires_in", strconv.FormatInt(accessToken.ExpiresAt-time.Now().Unix(), 10))
	if pending.State != "" {
		fragment.Set("state", pending.State)
	}

	if withIDToken {
		user, err := h.store.GetUser(r.Context(), accessToken.UserID)
		if err != nil {
			writeError(w, err)
			return
		}
		idToken, err := h.signer.CreateIDToken(client, user, accessToken, nonce)
		if err != nil {
			logger.Warnw("failed to create id token", "error", err)
			writeStatus(w, http.StatusInternalServerError)
			return
		}
		fragment.Set("id_token", idToken)
	}

	// The cookie lets the consent UI itself act as a relying party without
	// another round through the flow.
	http.SetCookie(w, &http.Cookie{
		Name:     "Authorization",
		Value:    fmt.Sprintf("Bearer %s", accessToken.Token),
		Path:     "/",
		Expires:  time.Now().Add(sessionCookieTTL),
		Secure:   true,
		SameSite: http.SameSiteNoneMode,
	})
	http.Redirect(w, r, fmt.Sprintf("%s#%s", client.RedirectURI, fragment.Encode()), http.StatusFound)
}

// writeGrantError maps redemption errors. A pending authorization without a
// user attached means the UI skipped the login step; the record state is
// internally inconsistent with consent having been given.
func writeGrantError(w http.ResponseWriter, err error) {
	if errors.Is(err, storage.ErrNotAuthorized) {
		logger.Warnw("pending authorization redeemed before authorization", "error", err)
		writeStatus(w, http.StatusInternalServerError)
		return
	}
	writeError(w, err)
}

// TokenInfoResponse reports the scopes of the credential used.
type TokenInfoResponse struct {
	Scope string `json:"scope"`
}

// TokenInfoHandler handles GET /api/v1/auth/token-info requests.
func (h *Handler) TokenInfoHandler(w http.ResponseWriter, r *http.Request) {
	auth := AuthFromContext(r.Context())
	writeJSON(w, http.StatusOK, TokenInfoResponse{Scope: auth.Scopes()})
}
