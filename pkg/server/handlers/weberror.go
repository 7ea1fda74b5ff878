// SPDX-FileCopyrightText: Copyright 2025 Wilford Authors
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/wilford-oidc/wilford/pkg/authorization"
	"github.com/wilford-oidc/wilford/pkg/logger"
	"github.com/wilford-oidc/wilford/pkg/storage"
)

// errUnauthorized is returned by the authentication middleware when no valid
// credential accompanies the request.
var errUnauthorized = errors.New("unauthorized")

// writeJSON writes v as a JSON response body.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warnw("failed to write response body", "error", err)
	}
}

// writeEmpty writes an empty 200 response.
func writeEmpty(w http.ResponseWriter) {
	w.WriteHeader(http.StatusOK)
}

// writeStatus writes a plain response for the given status code.
func writeStatus(w http.ResponseWriter, status int) {
	http.Error(w, http.StatusText(status), status)
}

// writeError maps storage and provider errors onto HTTP status codes.
// Anything unrecognized is an internal error.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeStatus(w, http.StatusNotFound)
	case errors.Is(err, errUnauthorized),
		errors.Is(err, authorization.ErrInvalidCredentials):
		writeStatus(w, http.StatusUnauthorized)
	case errors.Is(err, authorization.ErrUnsupported):
		writeStatus(w, http.StatusMethodNotAllowed)
	case errors.Is(err, storage.ErrAlreadyExists),
		errors.Is(err, authorization.ErrAlreadyExists),
		errors.Is(err, storage.ErrAlreadyAuthorized):
		writeStatus(w, http.StatusBadRequest)
	default:
		logger.Errorw("request failed", "error", err)
		writeStatus(w, http.StatusInternalServerError)
	}
}

// decodeJSON parses the request body into v. Returns false after writing a
// 400 response when the body is not valid JSON.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeStatus(w, http.StatusBadRequest)
		return false
	}
	return true
}
