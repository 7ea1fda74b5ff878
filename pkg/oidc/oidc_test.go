// SPDX-FileCopyrightText: Copyright 2025 Wilford Authors
// SPDX-License-Identifier: Apache-2.0

package oidc

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wilford-oidc/wilford/pkg/config"
	"github.com/wilford-oidc/wilford/pkg/storage"
)

func testKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func TestCreateIDToken(t *testing.T) {
	t.Parallel()

	key := testKey(t)
	signer := NewSigner("https://id.example.com", key)

	client := &storage.Client{ClientID: "client-1"}
	user := &storage.User{ID: "user-1", Name: "Alice", Email: "alice@example.com", IsAdmin: true}
	access := &storage.AccessToken{
		Token:     "tok",
		ExpiresAt: time.Now().Add(time.Hour).Unix(),
	}

	signed, err := signer.CreateIDToken(client, user, access, "n0nce")
	require.NoError(t, err)

	var claims IDTokenClaims
	parsed, err := jwt.ParseWithClaims(signed, &claims, func(token *jwt.Token) (any, error) {
		assert.Equal(t, "RS256", token.Method.Alg())
		assert.Equal(t, KeyID, token.Header["kid"])
		return &key.PublicKey, nil
	})
	require.NoError(t, err)
	require.True(t, parsed.Valid)

	assert.Equal(t, "https://id.example.com", claims.Issuer)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "client-1", claims.Audience)
	assert.Equal(t, "client-1", claims.Azp)
	assert.Equal(t, access.ExpiresAt, claims.Expiry)
	assert.Equal(t, "n0nce", claims.Nonce)
	assert.Equal(t, "Alice", claims.SubName)
	assert.Equal(t, "alice@example.com", claims.SubEmail)
	assert.True(t, claims.SubIsAdmin)
}

func TestCreateIDTokenWithoutNonce(t *testing.T) {
	t.Parallel()

	signer := NewSigner("https://id.example.com", testKey(t))
	signed, err := signer.CreateIDToken(
		&storage.Client{ClientID: "client-1"},
		&storage.User{ID: "user-1"},
		&storage.AccessToken{ExpiresAt: time.Now().Add(time.Hour).Unix()},
		"")
	require.NoError(t, err)
	// The nonce claim is omitted entirely rather than serialized empty.
	assert.NotContains(t, signed, "nonce")
}

func TestNewJWKSDocument(t *testing.T) {
	t.Parallel()

	key := testKey(t)
	doc := NewJWKSDocument(&key.PublicKey)

	require.Len(t, doc.Keys, 1)
	k := doc.Keys[0]
	assert.Equal(t, "RSA", k.Kty)
	assert.Equal(t, "sig", k.Use)
	assert.Equal(t, "RS256", k.Alg)
	assert.Equal(t, "rsa", k.Kid)
	assert.Equal(t, []string{"verify"}, k.KeyOps)
	assert.NotEmpty(t, k.N)
	assert.Equal(t, "AQAB", k.E)
	// base64url without padding
	assert.NotContains(t, k.N, "=")
	assert.NotContains(t, k.N, "+")
	assert.NotContains(t, k.N, "/")
}

func TestNewDiscoveryDocument(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{
		OidcIssuer: "https://id.example.com",
		HTTP: config.HTTPConfig{
			AuthorizationEndpoint: "https://id.example.com/authorize",
			TokenEndpoint:         "https://id.example.com/api/oauth/token",
			JwksURIEndpoint:       "https://id.example.com/.well-known/jwks.json",
		},
	}
	doc := NewDiscoveryDocument(cfg)

	assert.Equal(t, "https://id.example.com", doc.Issuer)
	assert.Equal(t, cfg.HTTP.AuthorizationEndpoint, doc.AuthorizationEndpoint)
	assert.Equal(t, cfg.HTTP.TokenEndpoint, doc.TokenEndpoint)
	assert.Equal(t, []string{"code", "id_token token", "token"}, doc.ResponseTypesSupported)
	assert.Equal(t, []string{"authorization_code", "implicit"}, doc.GrantTypesSupported)
	assert.Equal(t, []string{"RS256"}, doc.IDTokenSigningAlgValuesSupported)
	assert.Equal(t, cfg.HTTP.JwksURIEndpoint, doc.JwksURI)
}
