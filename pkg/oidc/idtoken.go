// SPDX-FileCopyrightText: Copyright 2025 Wilford Authors
// SPDX-License-Identifier: Apache-2.0

// Package oidc implements the OpenID Connect surface: RS256 ID tokens, the
// JWKS document and the discovery document.
package oidc

import (
	"crypto/rsa"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wilford-oidc/wilford/pkg/storage"
)

// KeyID identifies the single signing key in the JWKS document.
const KeyID = "rsa"

// SigningAlgorithm is the only ID-token signing algorithm the server supports.
const SigningAlgorithm = "RS256"

// IDTokenClaims are the claims carried by an ID token. Next to the standard
// OIDC claims the token carries the user's name, email and admin flag so
// relying parties do not need a userinfo round trip.
type IDTokenClaims struct {
	Issuer   string `json:"iss"`
	Subject  string `json:"sub"`
	Audience string `json:"aud"`
	Expiry   int64  `json:"exp"`
	IssuedAt int64  `json:"iat"`
	Nonce    string `json:"nonce,omitempty"`
	Azp      string `json:"azp"`

	SubName    string `json:"sub_name"`
	SubEmail   string `json:"sub_email"`
	SubIsAdmin bool   `json:"sub_is_admin"`
}

// GetExpirationTime implements jwt.Claims.
func (c IDTokenClaims) GetExpirationTime() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(time.Unix(c.Expiry, 0)), nil
}

// GetIssuedAt implements jwt.Claims.
func (c IDTokenClaims) GetIssuedAt() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(time.Unix(c.IssuedAt, 0)), nil
}

// GetNotBefore implements jwt.Claims.
func (c IDTokenClaims) GetNotBefore() (*jwt.NumericDate, error) { return nil, nil }

// GetIssuer implements jwt.Claims.
func (c IDTokenClaims) GetIssuer() (string, error) { return c.Issuer, nil }

// GetSubject implements jwt.Claims.
func (c IDTokenClaims) GetSubject() (string, error) { return c.Subject, nil }

// GetAudience implements jwt.Claims.
func (c IDTokenClaims) GetAudience() (jwt.ClaimStrings, error) {
	return jwt.ClaimStrings{c.Audience}, nil
}

// Signer creates ID tokens for one issuer with one RSA key pair.
type Signer struct {
	issuer string
	key    *rsa.PrivateKey
}

// NewSigner creates a signer for the given issuer and private key.
func NewSigner(issuer string, key *rsa.PrivateKey) *Signer {
	return &Signer{issuer: issuer, key: key}
}

// CreateIDToken signs an ID token for the user. The token expires together
// with the access token it accompanies.
func (s *Signer) CreateIDToken(client *storage.Client, user *storage.User, accessToken *storage.AccessToken, nonce string) (string, error) {
	claims := IDTokenClaims{
		Issuer:   s.issuer,
		Subject:  user.ID,
		Audience: client.ClientID,
		Expiry:   accessToken.ExpiresAt,
		IssuedAt: time.Now().Unix(),
		Nonce:    nonce,
		Azp:      client.ClientID,

		SubName:    user.Name,
		SubEmail:   user.Email,
		SubIsAdmin: user.IsAdmin,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = KeyID

	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("signing id token: %w", err)
	}
	return signed, nil
}
