// SPDX-FileCopyrightText: Copyright 2025 Wilford Authors
// SPDX-License-Identifier: Apache-2.0

package authorization

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/wilford-oidc/wilford/pkg/logger"
	"github.com/wilford-oidc/wilford/pkg/storage"
)

// LocalProvider validates credentials against bcrypt hashes stored in the
// local database. It supports the full user lifecycle.
type LocalProvider struct {
	store storage.Storage
}

var _ Provider = (*LocalProvider)(nil)

// NewLocalProvider creates a provider backed by the given store.
func NewLocalProvider(store storage.Storage) *LocalProvider {
	return &LocalProvider{store: store}
}

// ValidateCredentials checks the email and password. The TOTP code is
// ignored; the local backend has no second factor.
func (p *LocalProvider) ValidateCredentials(ctx context.Context, username, password, _ string) (*ValidationResult, error) {
	user, err := p.store.GetUserByEmail(ctx, username)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("fetching user: %w", err)
	}

	hash, changeRequired, err := p.store.GetPasswordHash(ctx, user.ID)
	if errors.Is(err, storage.ErrNotFound) {
		logger.Warnw("user exists but has no stored credentials", "email", username)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("fetching password hash: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return &ValidationResult{
		User: UserInformation{
			ID:      user.ID,
			Name:    user.Name,
			Email:   user.Email,
			IsAdmin: user.IsAdmin,
		},
		RequirePasswordChange: changeRequired,
	}, nil
}

// SupportsPasswordChange reports that password changes are handled locally.
func (p *LocalProvider) SupportsPasswordChange() bool { return true }

// SetPassword replaces the user's password hash.
func (p *LocalProvider) SetPassword(ctx context.Context, userID, newPassword string, requireChange bool) error {
	if _, err := p.store.GetUser(ctx, userID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrInvalidCredentials
		}
		return fmt.Errorf("fetching user: %w", err)
	}

	hash, err := hashPassword(newPassword)
	if err != nil {
		return err
	}
	return p.store.SetPasswordHash(ctx, userID, hash, requireChange)
}

// SupportsRegistration reports that users register directly with this server.
func (p *LocalProvider) SupportsRegistration() bool { return true }

// RegisterUser creates a new user with an unverified email address and the
// given password.
func (p *LocalProvider) RegisterUser(ctx context.Context, name, email, password string, isAdmin bool, locale storage.Locale) (*UserInformation, error) {
	_, err := p.store.GetUserByEmail(ctx, email)
	if err == nil {
		return nil, ErrAlreadyExists
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("checking for existing user: %w", err)
	}

	id := storage.GenerateString(storage.UserIDLength)
	_, verification, err := p.store.CreateUser(ctx, id, name, email, isAdmin, locale, true)
	if err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("creating user: %w", err)
	}

	hash, err := hashPassword(password)
	if err != nil {
		return nil, err
	}
	if err := p.store.SetPasswordHash(ctx, id, hash, false); err != nil {
		return nil, fmt.Errorf("storing password hash: %w", err)
	}

	return &UserInformation{
		ID:                id,
		Name:              name,
		Email:             email,
		IsAdmin:           isAdmin,
		EmailVerification: verification,
	}, nil
}

// SupportsEmailChange reports that email changes are handled locally.
func (p *LocalProvider) SupportsEmailChange() bool { return true }

// SetEmail makes a verified address the user's current email.
func (p *LocalProvider) SetEmail(ctx context.Context, userID, newEmail string) error {
	if err := p.store.SetUserEmail(ctx, userID, newEmail); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrInvalidCredentials
		}
		return err
	}
	return nil
}

// SupportsNameChange reports that display names are edited locally.
func (p *LocalProvider) SupportsNameChange() bool { return true }

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}
