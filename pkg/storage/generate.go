// SPDX-FileCopyrightText: Copyright 2025 Wilford Authors
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// Identifier and credential widths.
const (
	// UserIDLength is the width of generated user ids.
	UserIDLength = 32
	// PendingAuthorizationIDLength is the width of pending authorization ids.
	PendingAuthorizationIDLength = 16
	// AuthorizationCodeLength is the width of authorization codes.
	AuthorizationCodeLength = 32
	// TokenLength is the width of access, refresh and constant tokens.
	TokenLength = 32
	// VerificationCodeLength is the width of email verification codes.
	VerificationCodeLength = 32
	// ClientIDLength is the width of client ids.
	ClientIDLength = 32
	// ClientSecretLength is the width of client secrets.
	ClientSecretLength = 48
	// TempPasswordLength is the width of generated temporary passwords.
	TempPasswordLength = 16
)

const alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// GenerateString returns a cryptographically random alphanumeric string of
// the given length. It panics when the system randomness source fails, which
// is not a condition the server can recover from.
func GenerateString(length int) string {
	max := big.NewInt(int64(len(alphanumeric)))
	buf := make([]byte, length)
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic(fmt.Sprintf("reading system randomness: %v", err))
		}
		buf[i] = alphanumeric[n.Int64()]
	}
	return string(buf)
}
