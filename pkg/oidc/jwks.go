// SPDX-FileCopyrightText: Copyright 2025 Wilford Authors
// SPDX-License-Identifier: Apache-2.0

package oidc

import (
	"crypto/rsa"
	"encoding/base64"
	"math/big"
)

// JWKSDocument is the JSON Web Key Set published at the jwks_uri.
type JWKSDocument struct {
	Keys []JWK `json:"keys"`
}

// JWK describes one RSA verification key.
type JWK struct {
	Kty    string   `json:"kty"`
	Use    string   `json:"use"`
	Alg    string   `json:"alg"`
	Kid    string   `json:"kid"`
	KeyOps []string `json:"key_ops"`
	N      string   `json:"n"`
	E      string   `json:"e"`
}

// NewJWKSDocument builds the key set for the server's single signing key.
func NewJWKSDocument(publicKey *rsa.PublicKey) JWKSDocument {
	return JWKSDocument{
		Keys: []JWK{
			{
				Kty:    "RSA",
				Use:    "sig",
				Alg:    SigningAlgorithm,
				Kid:    KeyID,
				KeyOps: []string{"verify"},
				N:      encodeBigInt(publicKey.N),
				E:      encodeBigInt(big.NewInt(int64(publicKey.E))),
			},
		},
	}
}

// encodeBigInt renders the integer as unpadded base64url over its big-endian
// bytes, as RFC 7518 requires.
func encodeBigInt(v *big.Int) string {
	return base64.RawURLEncoding.EncodeToString(v.Bytes())
}
