// SPDX-FileCopyrightText: Copyright 2025 Wilford Authors
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"errors"
	"net/http"
)

// maxClientNameLength bounds client and constant token names; longer names do
// not fit the database column.
const maxClientNameLength = 64

// ClientsResponse lists the registered OAuth2 clients.
type ClientsResponse struct {
	Clients []ClientInfo `json:"clients"`
}

// ClientInfo describes one OAuth2 client, credentials included.
type ClientInfo struct {
	Name         string `json:"name"`
	RedirectURI  string `json:"redirect_uri"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

// ListClientsHandler handles GET /api/v1/clients/list requests. The internal
// client is not included.
func (h *Handler) ListClientsHandler(w http.ResponseWriter, r *http.Request) {
	if !AuthFromContext(r.Context()).HasScope(ManageScope) {
		writeStatus(w, http.StatusForbidden)
		return
	}

	clients, err := h.store.ListClients(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	response := ClientsResponse{Clients: make([]ClientInfo, 0, len(clients))}
	for _, client := range clients {
		if client.IsInternal {
			continue
		}
		response.Clients = append(response.Clients, ClientInfo{
			Name:         client.Name,
			RedirectURI:  client.RedirectURI,
			ClientID:     client.ClientID,
			ClientSecret: client.ClientSecret,
		})
	}
	writeJSON(w, http.StatusOK, response)
}

// AddClientRequest is the payload for registering a new OAuth2 client.
type AddClientRequest struct {
	Name        string `json:"name"`
	RedirectURI string `json:"redirect_uri"`
}

// AddClientHandler handles POST /api/v1/clients/add requests.
func (h *Handler) AddClientHandler(w http.ResponseWriter, r *http.Request) {
	if !AuthFromContext(r.Context()).HasScope(ManageScope) {
		writeStatus(w, http.StatusForbidden)
		return
	}

	var req AddClientRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if len(req.Name) > maxClientNameLength {
		writeStatus(w, http.StatusBadRequest)
		return
	}

	if _, err := h.store.CreateClient(r.Context(), req.Name, req.RedirectURI, false); err != nil {
		writeError(w, err)
		return
	}
	writeEmpty(w)
}

// RemoveClientRequest names the client to remove.
type RemoveClientRequest struct {
	ClientID string `json:"client_id"`
}

// RemoveClientHandler handles POST /api/v1/clients/remove requests. The
// internal client cannot be removed.
func (h *Handler) RemoveClientHandler(w http.ResponseWriter, r *http.Request) {
	if !AuthFromContext(r.Context()).HasScope(ManageScope) {
		writeStatus(w, http.StatusForbidden)
		return
	}

	var req RemoveClientRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	client, err := h.store.GetClient(r.Context(), req.ClientID)
	if err != nil {
		writeError(w, err)
		return
	}
	if client.IsInternal {
		writeStatus(w, http.StatusBadRequest)
		return
	}

	if err := h.store.DeleteClient(r.Context(), client.ClientID); err != nil {
		writeError(w, err)
		return
	}
	writeEmpty(w)
}

// InternalClientResponse describes the internal client to the consent UI.
// The secret is not exposed.
type InternalClientResponse struct {
	Name        string `json:"name"`
	ClientID    string `json:"client_id"`
	RedirectURI string `json:"redirect_uri"`
}

// InternalClientHandler handles GET /api/v1/clients/internal requests. The
// consent UI uses it to start its own login flow, so no authentication is
// required.
func (h *Handler) InternalClientHandler(w http.ResponseWriter, r *http.Request) {
	clients, err := h.store.ListClients(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	for _, client := range clients {
		if client.IsInternal {
			writeJSON(w, http.StatusOK, InternalClientResponse{
				Name:        client.Name,
				ClientID:    client.ClientID,
				RedirectURI: client.RedirectURI,
			})
			return
		}
	}
	writeError(w, errors.New("no internal client registered"))
}
