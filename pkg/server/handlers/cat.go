// SPDX-FileCopyrightText: Copyright 2025 Wilford Authors
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"net/http"
)

// ConstantTokensResponse lists the constant access tokens.
type ConstantTokensResponse struct {
	Tokens []ConstantTokenInfo `json:"tokens"`
}

// ConstantTokenInfo describes one constant access token.
type ConstantTokenInfo struct {
	Name  string `json:"name"`
	Token string `json:"token"`
}

// ListConstantTokensHandler handles GET /api/v1/cat/list requests.
func (h *Handler) ListConstantTokensHandler(w http.ResponseWriter, r *http.Request) {
	if !AuthFromContext(r.Context()).HasScope(ManageScope) {
		writeStatus(w, http.StatusForbidden)
		return
	}

	tokens, err := h.store.ListConstantTokens(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	response := ConstantTokensResponse{Tokens: make([]ConstantTokenInfo, 0, len(tokens))}
	for _, token := range tokens {
		response.Tokens = append(response.Tokens, ConstantTokenInfo{
			Name:  token.Name,
			Token: token.Token,
		})
	}
	writeJSON(w, http.StatusOK, response)
}

// AddConstantTokenRequest names the constant access token to create.
type AddConstantTokenRequest struct {
	Name string `json:"name"`
}

// AddConstantTokenHandler handles POST /api/v1/cat/add requests.
func (h *Handler) AddConstantTokenHandler(w http.ResponseWriter, r *http.Request) {
	if !AuthFromContext(r.Context()).HasScope(ManageScope) {
		writeStatus(w, http.StatusForbidden)
		return
	}

	var req AddConstantTokenRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if len(req.Name) > maxClientNameLength {
		writeStatus(w, http.StatusBadRequest)
		return
	}

	if _, err := h.store.CreateConstantToken(r.Context(), req.Name); err != nil {
		writeError(w, err)
		return
	}
	writeEmpty(w)
}

// RemoveConstantTokenRequest names the constant access token to revoke.
type RemoveConstantTokenRequest struct {
	Token string `json:"token"`
}

// RemoveConstantTokenHandler handles POST /api/v1/cat/remove requests.
func (h *Handler) RemoveConstantTokenHandler(w http.ResponseWriter, r *http.Request) {
	if !AuthFromContext(r.Context()).HasScope(ManageScope) {
		writeStatus(w, http.StatusForbidden)
		return
	}

	var req RemoveConstantTokenRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if _, err := h.store.GetConstantToken(r.Context(), req.Token); err != nil {
		writeError(w, err)
		return
	}
	if err := h.store.DeleteConstantToken(r.Context(), req.Token); err != nil {
		writeError(w, err)
		return
	}
	writeEmpty(w)
}
