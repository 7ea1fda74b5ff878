// SPDX-FileCopyrightText: Copyright 2025 Wilford Authors
// SPDX-License-Identifier: Apache-2.0

// Package server assembles the HTTP server of wilford: routing, the internal
// client bootstrap and the pending authorization reaper.
package server

import (
	"context"
	"crypto/rsa"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wilford-oidc/wilford/pkg/authorization"
	"github.com/wilford-oidc/wilford/pkg/config"
	"github.com/wilford-oidc/wilford/pkg/logger"
	"github.com/wilford-oidc/wilford/pkg/mailer"
	"github.com/wilford-oidc/wilford/pkg/oidc"
	"github.com/wilford-oidc/wilford/pkg/server/handlers"
	"github.com/wilford-oidc/wilford/pkg/storage"
)

// Server is the assembled HTTP server.
type Server struct {
	httpServer *http.Server
	reaper     *Reaper
}

// New wires the handlers into a server listening on addr.
func New(
	addr string,
	store storage.Storage,
	cfg *config.Config,
	provider authorization.Provider,
	signingKey *rsa.PrivateKey,
	publicKey *rsa.PublicKey,
	mail *mailer.Mailer,
) *Server {
	handler := handlers.NewHandler(
		store,
		cfg,
		provider,
		oidc.NewSigner(cfg.OidcIssuer, signingKey),
		publicKey,
		mail,
	)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Mount("/", handler.Routes())

	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		},
		reaper: NewReaper(store),
	}
}

// Run starts the reaper and serves HTTP until the context is cancelled, then
// shuts both down.
func (s *Server) Run(ctx context.Context) error {
	s.reaper.Start()
	defer s.reaper.Stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("listening on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

// requestLogger logs one line per request.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logger.Debugw("request handled",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start))
	})
}
