// SPDX-FileCopyrightText: Copyright 2025 Wilford Authors
// SPDX-License-Identifier: Apache-2.0

// Package handlers provides the HTTP handlers of the authorization server:
// the OAuth2/OIDC endpoints, the consent UI bridge and the management API.
package handlers

import (
	"crypto/rsa"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wilford-oidc/wilford/pkg/authorization"
	"github.com/wilford-oidc/wilford/pkg/config"
	"github.com/wilford-oidc/wilford/pkg/mailer"
	"github.com/wilford-oidc/wilford/pkg/oidc"
	"github.com/wilford-oidc/wilford/pkg/storage"
)

// ManageScope grants access to the management endpoints (clients, constant
// access tokens, user listing and scope grants).
const ManageScope = "wilford.manage"

// Handler provides HTTP handlers for all endpoints of the server.
type Handler struct {
	store     storage.Storage
	config    *config.Config
	provider  authorization.Provider
	signer    *oidc.Signer
	jwks      oidc.JWKSDocument
	discovery oidc.DiscoveryDocument
	mail      *mailer.Mailer
}

// NewHandler creates a new Handler with the given dependencies.
func NewHandler(
	store storage.Storage,
	cfg *config.Config,
	provider authorization.Provider,
	signer *oidc.Signer,
	publicKey *rsa.PublicKey,
	mail *mailer.Mailer,
) *Handler {
	return &Handler{
		store:     store,
		config:    cfg,
		provider:  provider,
		signer:    signer,
		jwks:      oidc.NewJWKSDocument(publicKey),
		discovery: oidc.NewDiscoveryDocument(cfg),
		mail:      mail,
	}
}

// Routes returns a router with all endpoints registered.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	h.WellKnownRoutes(r)
	r.Route("/api", func(r chi.Router) {
		h.OAuthRoutes(r)
		h.V1Routes(r)
	})
	return r
}

// WellKnownRoutes registers the OIDC discovery endpoints on the provided router.
func (h *Handler) WellKnownRoutes(r chi.Router) {
	r.Get("/.well-known/openid-configuration", h.OIDCDiscoveryHandler)
	r.Get("/.well-known/jwks.json", h.JWKSHandler)
}

// OAuthRoutes registers the RFC 6749 endpoints on the provided router.
func (h *Handler) OAuthRoutes(r chi.Router) {
	r.Route("/oauth", func(r chi.Router) {
		r.Get("/authorize", h.AuthorizeHandler)
		r.Post("/token", h.TokenHandler)
	})
}

// V1Routes registers the consent UI bridge and the management API on the
// provided router.
func (h *Handler) V1Routes(r chi.Router) {
	r.Route("/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Get("/authorization-info", h.AuthorizationInfoHandler)
			r.Post("/login", h.LoginHandler)
			r.Get("/authorize", h.GrantHandler)
			r.With(h.Authenticated(AllowConstantToken)).Get("/token-info", h.TokenInfoHandler)
		})

		r.Route("/clients", func(r chi.Router) {
			// The internal client endpoint is used by the consent UI before
			// the user holds any token.
			r.Get("/internal", h.InternalClientHandler)

			r.Group(func(r chi.Router) {
				r.Use(h.Authenticated(AllowConstantToken))
				r.Get("/list", h.ListClientsHandler)
				r.Post("/add", h.AddClientHandler)
				r.Post("/remove", h.RemoveClientHandler)
			})
		})

		r.Route("/cat", func(r chi.Router) {
			r.Use(h.Authenticated(AllowConstantToken))
			r.Get("/list", h.ListConstantTokensHandler)
			r.Post("/add", h.AddConstantTokenHandler)
			r.Post("/remove", h.RemoveConstantTokenHandler)
		})

		r.Route("/user", func(r chi.Router) {
			r.Post("/register", h.RegisterHandler)
			r.Get("/registration-required", h.RegistrationRequiredHandler)
			r.Post("/verify-email", h.VerifyEmailHandler)
			r.Post("/password-forgotten", h.PasswordForgottenHandler)

			r.Group(func(r chi.Router) {
				r.Use(h.Authenticated(AllowConstantToken))
				r.Get("/list", h.ListUsersHandler)
				r.Route("/permitted-scopes", func(r chi.Router) {
					r.Get("/list", h.ListPermittedScopesHandler)
					r.Post("/add", h.AddPermittedScopeHandler)
					r.Post("/remove", h.RemovePermittedScopeHandler)
				})
			})

			r.Group(func(r chi.Router) {
				r.Use(h.Authenticated(AccessTokenOnly))
				r.Get("/info", h.UserInfoHandler)
				r.Post("/change-password", h.ChangePasswordHandler)
				r.Post("/change-email", h.ChangeEmailHandler)
				r.Post("/change-name", h.ChangeNameHandler)
				r.Get("/supports-password-change", h.SupportsPasswordChangeHandler)
			})
		})
	})
}
