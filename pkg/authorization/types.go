// SPDX-FileCopyrightText: Copyright 2025 Wilford Authors
// SPDX-License-Identifier: Apache-2.0

// Package authorization abstracts over credential backends. The server core
// only talks to the [Provider] interface; whether credentials live in the
// local database or in a remote EspoCRM instance is a deployment choice.
package authorization

import (
	"context"
	"errors"

	"github.com/wilford-oidc/wilford/pkg/storage"
)

// Sentinel errors shared by all providers. Anything else returned by a
// provider is a backend failure.
var (
	// ErrInvalidCredentials is returned when the username or password is wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrTotpNeeded is returned when the credentials are valid but a
	// two-factor code is required to complete the login.
	ErrTotpNeeded = errors.New("two-factor authentication required")

	// ErrUnsupported is returned for operations the provider does not support.
	ErrUnsupported = errors.New("unsupported operation")

	// ErrAlreadyExists is returned by RegisterUser when the email address is
	// already taken.
	ErrAlreadyExists = errors.New("user already exists")
)

// UserInformation describes the authorized user. The provider is the source
// of truth for which users can use the system; the returned id is used
// everywhere else.
type UserInformation struct {
	ID      string
	Name    string
	Email   string
	IsAdmin bool
	// EmailVerification is set when registration created a verification code
	// that still has to be sent to the user.
	EmailVerification *storage.UserEmailVerification
}

// ValidationResult is the outcome of a successful credential check.
type ValidationResult struct {
	User UserInformation
	// RequirePasswordChange signals the user must change their password
	// before new logins are accepted.
	RequirePasswordChange bool
}

// Provider validates credentials and manages the parts of the user lifecycle
// the backend owns. Check the Supports* methods before calling the optional
// operations; unsupported ones return ErrUnsupported.
type Provider interface {
	// ValidateCredentials checks the username and password, with an optional
	// TOTP code. Returns ErrInvalidCredentials or ErrTotpNeeded on rejection.
	ValidateCredentials(ctx context.Context, username, password, totpCode string) (*ValidationResult, error)

	// SupportsPasswordChange reports whether SetPassword works.
	SupportsPasswordChange() bool
	// SetPassword replaces the user's password.
	SetPassword(ctx context.Context, userID, newPassword string, requireChange bool) error

	// SupportsRegistration reports whether RegisterUser works.
	SupportsRegistration() bool
	// RegisterUser creates a new user with the given credentials.
	RegisterUser(ctx context.Context, name, email, password string, isAdmin bool, locale storage.Locale) (*UserInformation, error)

	// SupportsEmailChange reports whether SetEmail works.
	SupportsEmailChange() bool
	// SetEmail makes a verified address the user's current email.
	SetEmail(ctx context.Context, userID, newEmail string) error

	// SupportsNameChange reports whether the user's display name may be
	// edited through this server.
	SupportsNameChange() bool
}
