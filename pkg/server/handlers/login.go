// SPDX-FileCopyrightText: Copyright 2025 Wilford Authors
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"errors"
	"net/http"

	"github.com/wilford-oidc/wilford/pkg/authorization"
	"github.com/wilford-oidc/wilford/pkg/logger"
	"github.com/wilford-oidc/wilford/pkg/storage"
)

// AuthorizationInfoResponse describes a pending authorization to the consent UI.
type AuthorizationInfoResponse struct {
	ClientName string `json:"client_name"`
	Scopes     string `json:"scopes"`
}

// AuthorizationInfoHandler handles GET /api/v1/auth/authorization-info
// requests. The consent UI calls it after login to show the user what they
// are granting.
func (h *Handler) AuthorizationInfoHandler(w http.ResponseWriter, r *http.Request) {
	pending, err := h.store.GetPendingAuthorization(r.Context(), r.URL.Query().Get("authorization"))
	if err != nil {
		writeError(w, err)
		return
	}

	if !pending.Authorized() {
		writeStatus(w, http.StatusUnauthorized)
		return
	}

	client, err := h.store.GetClient(r.Context(), pending.ClientID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, AuthorizationInfoResponse{
		ClientName: client.Name,
		Scopes:     pending.Scopes,
	})
}

// LoginRequest is the credential payload sent by the consent UI.
type LoginRequest struct {
	Authorization string `json:"authorization"`
	Username      string `json:"username"`
	Password      string `json:"password"`
	TotpCode      string `json:"totp_code"`
}

// LoginResponse reports the outcome of a login attempt.
type LoginResponse struct {
	Status       bool `json:"status"`
	TotpRequired bool `json:"totp_required"`
}

// LoginHandler handles POST /api/v1/auth/login requests. On success the
// pending authorization transitions to Authorized.
func (h *Handler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	pending, err := h.store.GetPendingAuthorization(r.Context(), req.Authorization)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := h.provider.ValidateCredentials(r.Context(), req.Username, req.Password, req.TotpCode)
	switch {
	case errors.Is(err, authorization.ErrInvalidCredentials):
		writeJSON(w, http.StatusOK, LoginResponse{Status: false, TotpRequired: false})
		return
	case errors.Is(err, authorization.ErrTotpNeeded):
		writeJSON(w, http.StatusOK, LoginResponse{Status: false, TotpRequired: true})
		return
	case err != nil:
		logger.Warnw("credential validation failed", "error", err)
		writeStatus(w, http.StatusInternalServerError)
		return
	}

	// Admins may request any scope. Everyone else is limited to the OIDC
	// scopes plus the scopes granted to them.
	if !result.User.IsAdmin {
		allowed, err := h.scopesAllowed(r, pending, result.User.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		if !allowed {
			writeStatus(w, http.StatusForbidden)
			return
		}
	}

	if _, err := h.store.AuthorizePending(r.Context(), pending.ID, result.User.ID); err != nil {
		if errors.Is(err, storage.ErrAlreadyAuthorized) {
			writeStatus(w, http.StatusBadRequest)
			return
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{Status: true, TotpRequired: false})
}

// scopesAllowed reports whether every requested scope is either an OIDC scope
// or granted to the user.
func (h *Handler) scopesAllowed(r *http.Request, pending *storage.PendingAuthorization, userID string) (bool, error) {
	permitted, err := h.store.ListPermittedScopes(r.Context(), userID)
	if err != nil {
		return false, err
	}

	allowed := map[string]struct{}{
		"openid":  {},
		"profile": {},
		"email":   {},
	}
	for _, scope := range permitted {
		allowed[scope] = struct{}{}
	}

	for scope := range storage.ParseScopes(pending.Scopes) {
		if _, ok := allowed[scope]; !ok {
			return false, nil
		}
	}
	return true, nil
}
