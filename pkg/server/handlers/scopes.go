// SPDX-FileCopyrightText: Copyright 2025 Wilford Authors
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"net/http"
)

// PermittedScopesResponse lists the scopes granted to a user.
type PermittedScopesResponse struct {
	Scopes []string `json:"scopes"`
}

// ListPermittedScopesHandler handles
// GET /api/v1/user/permitted-scopes/list?user=… requests.
func (h *Handler) ListPermittedScopesHandler(w http.ResponseWriter, r *http.Request) {
	if !AuthFromContext(r.Context()).HasScope(ManageScope) {
		writeStatus(w, http.StatusForbidden)
		return
	}

	user, err := h.store.GetUser(r.Context(), r.URL.Query().Get("user"))
	if err != nil {
		writeError(w, err)
		return
	}

	scopes, err := h.store.ListPermittedScopes(r.Context(), user.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, PermittedScopesResponse{Scopes: scopes})
}

// AddPermittedScopeRequest grants a scope to a user.
type AddPermittedScopeRequest struct {
	To    string `json:"to"`
	Scope string `json:"scope"`
}

// AddPermittedScopeHandler handles POST /api/v1/user/permitted-scopes/add
// requests. Granting an already granted scope is an error.
func (h *Handler) AddPermittedScopeHandler(w http.ResponseWriter, r *http.Request) {
	if !AuthFromContext(r.Context()).HasScope(ManageScope) {
		writeStatus(w, http.StatusForbidden)
		return
	}

	var req AddPermittedScopeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.store.GetUser(r.Context(), req.To)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.store.GrantPermittedScope(r.Context(), user.ID, req.Scope); err != nil {
		writeError(w, err)
		return
	}
	writeEmpty(w)
}

// RemovePermittedScopeRequest revokes a scope from a user.
type RemovePermittedScopeRequest struct {
	From  string `json:"from"`
	Scope string `json:"scope"`
}

// RemovePermittedScopeHandler handles
// POST /api/v1/user/permitted-scopes/remove requests. Revoking a scope that
// was never granted is an error.
func (h *Handler) RemovePermittedScopeHandler(w http.ResponseWriter, r *http.Request) {
	if !AuthFromContext(r.Context()).HasScope(ManageScope) {
		writeStatus(w, http.StatusForbidden)
		return
	}

	var req RemovePermittedScopeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.store.GetUser(r.Context(), req.From)
	if err != nil {
		writeError(w, err)
		return
	}

	scopes, err := h.store.ListPermittedScopes(r.Context(), user.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	granted := false
	for _, scope := range scopes {
		if scope == req.Scope {
			granted = true
			break
		}
	}
	if !granted {
		writeStatus(w, http.StatusNotFound)
		return
	}

	if err := h.store.RevokePermittedScope(r.Context(), user.ID, req.Scope); err != nil {
		writeError(w, err)
		return
	}
	writeEmpty(w)
}
