// SPDX-FileCopyrightText: Copyright 2025 Wilford Authors
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/wilford-oidc/wilford/pkg/storage"
)

// AuthMode controls which credentials the authentication middleware accepts.
type AuthMode int

const (
	// AccessTokenOnly accepts OAuth2 access tokens.
	AccessTokenOnly AuthMode = iota
	// AllowConstantToken additionally accepts constant access tokens, for
	// endpoints machine callers may use.
	AllowConstantToken
)

// Auth describes the authenticated caller of a request. Exactly one of Token
// and Cat is set.
type Auth struct {
	// User is the owner of the access token. Nil for constant tokens.
	User *storage.User
	// Token is the access token the request was made with.
	Token *storage.AccessToken
	// Cat is the constant access token the request was made with.
	Cat *storage.ConstantAccessToken
}

// HasScope reports whether the caller may use endpoints guarded by the given
// scope. Constant access tokens are manually issued machine credentials and
// carry every scope.
func (a *Auth) HasScope(scope string) bool {
	if a.Cat != nil {
		return true
	}
	return a.Token.HasScope(scope)
}

// Scopes returns the scopes of the access token, space separated.
func (a *Auth) Scopes() string {
	if a.Cat != nil {
		return ""
	}
	scopes := make([]string, 0)
	for scope := range a.Token.ScopeSet() {
		scopes = append(scopes, scope)
	}
	sort.Strings(scopes)
	return strings.Join(scopes, " ")
}

type authContextKey struct{}

// AuthFromContext returns the Auth attached by the authentication middleware.
func AuthFromContext(ctx context.Context) *Auth {
	auth, _ := ctx.Value(authContextKey{}).(*Auth)
	return auth
}

// Authenticated is a middleware that requires a valid bearer token, taken
// from either the Authorization header or an Authorization cookie. On success
// the resolved Auth is attached to the request context.
func (h *Handler) Authenticated(mode AuthMode) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				writeStatus(w, http.StatusUnauthorized)
				return
			}

			auth, err := h.resolveAuth(r.Context(), token, mode)
			if err != nil {
				writeError(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), authContextKey{}, auth)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// resolveAuth looks the token up as an access token first and, when allowed,
// falls back to the constant access tokens.
func (h *Handler) resolveAuth(ctx context.Context, token string, mode AuthMode) (*Auth, error) {
	accessToken, err := h.store.GetAccessToken(ctx, token)
	switch {
	case err == nil:
		if accessToken.Expired(time.Now()) {
			return nil, errUnauthorized
		}
		user, err := h.store.GetUser(ctx, accessToken.UserID)
		if err != nil {
			return nil, err
		}
		return &Auth{User: user, Token: accessToken}, nil
	case errors.Is(err, storage.ErrNotFound):
		if mode != AllowConstantToken {
			return nil, errUnauthorized
		}
		cat, err := h.store.GetConstantToken(ctx, token)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, errUnauthorized
		}
		if err != nil {
			return nil, err
		}
		return &Auth{Cat: cat}, nil
	default:
		return nil, err
	}
}

// bearerToken extracts the bearer token from the Authorization header or the
// Authorization cookie. Both carry a "Bearer " prefix; the cookie value may
// be quoted because of the space in it.
func bearerToken(r *http.Request) (string, bool) {
	const prefix = "Bearer "

	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, prefix) {
		return strings.TrimPrefix(header, prefix), true
	}

	cookie, err := r.Cookie("Authorization")
	if err == nil {
		value := strings.Trim(cookie.Value, `"`)
		if strings.HasPrefix(value, prefix) {
			return strings.TrimPrefix(value, prefix), true
		}
	}
	return "", false
}
