// SPDX-FileCopyrightText: Copyright 2025 Wilford Authors
// SPDX-License-Identifier: Apache-2.0

package authorization

import (
	"context"
	"errors"
	"fmt"

	"github.com/wilford-oidc/wilford/pkg/espo"
	"github.com/wilford-oidc/wilford/pkg/storage"
)

// EspoProvider validates credentials against a remote EspoCRM instance. The
// CRM is the source of truth; a matching local user is provisioned on first
// login and kept in sync afterwards. User management happens in the CRM, so
// registration, password and email changes are unsupported here.
type EspoProvider struct {
	store  storage.Storage
	client *espo.Client
}

var _ Provider = (*EspoProvider)(nil)

// NewEspoProvider creates a provider backed by the given CRM client.
func NewEspoProvider(store storage.Storage, client *espo.Client) *EspoProvider {
	return &EspoProvider{store: store, client: client}
}

// ValidateCredentials checks the credentials with the CRM and mirrors the
// resulting user into the local database.
func (p *EspoProvider) ValidateCredentials(ctx context.Context, username, password, totpCode string) (*ValidationResult, error) {
	status, userID, err := p.client.TryLogin(ctx, username, password, totpCode)
	if err != nil {
		return nil, fmt.Errorf("checking credentials with espocrm: %w", err)
	}
	switch status {
	case espo.LoginOk:
	case espo.LoginTotpRequired:
		return nil, ErrTotpNeeded
	default:
		return nil, ErrInvalidCredentials
	}

	espoUser, err := p.client.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("fetching espocrm user: %w", err)
	}
	if !espoUser.IsActive {
		return nil, ErrInvalidCredentials
	}

	if err := p.syncLocalUser(ctx, espoUser); err != nil {
		return nil, err
	}

	return &ValidationResult{
		User: UserInformation{
			ID:      espoUser.ID,
			Name:    espoUser.Name,
			Email:   espoUser.EmailAddress,
			IsAdmin: espoUser.IsAdmin(),
		},
	}, nil
}

// syncLocalUser makes sure the local database reflects the CRM user,
// creating it on first login.
func (p *EspoProvider) syncLocalUser(ctx context.Context, espoUser *espo.User) error {
	dbUser, err := p.store.GetUser(ctx, espoUser.ID)
	if errors.Is(err, storage.ErrNotFound) {
		_, _, err := p.store.CreateUser(ctx,
			espoUser.ID, espoUser.Name, espoUser.EmailAddress,
			espoUser.IsAdmin(), storage.LocaleNl, false)
		if err != nil {
			return fmt.Errorf("provisioning local user: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("fetching local user: %w", err)
	}

	if dbUser.IsAdmin != espoUser.IsAdmin() {
		if err := p.store.SetUserIsAdmin(ctx, dbUser.ID, espoUser.IsAdmin()); err != nil {
			return fmt.Errorf("syncing admin flag: %w", err)
		}
	}
	if dbUser.Name != espoUser.Name {
		if err := p.store.SetUserName(ctx, dbUser.ID, espoUser.Name); err != nil {
			return fmt.Errorf("syncing user name: %w", err)
		}
	}
	return nil
}

// SupportsPasswordChange reports that passwords are managed in EspoCRM.
func (p *EspoProvider) SupportsPasswordChange() bool { return false }

// SetPassword is unsupported.
func (p *EspoProvider) SetPassword(_ context.Context, _, _ string, _ bool) error {
	return ErrUnsupported
}

// SupportsRegistration reports that users are managed in EspoCRM.
func (p *EspoProvider) SupportsRegistration() bool { return false }

// RegisterUser is unsupported.
func (p *EspoProvider) RegisterUser(_ context.Context, _, _, _ string, _ bool, _ storage.Locale) (*UserInformation, error) {
	return nil, ErrUnsupported
}

// SupportsEmailChange reports that email addresses are managed in EspoCRM.
func (p *EspoProvider) SupportsEmailChange() bool { return false }

// SetEmail is unsupported.
func (p *EspoProvider) SetEmail(_ context.Context, _, _ string) error {
	return ErrUnsupported
}

// SupportsNameChange reports that display names are managed in EspoCRM.
func (p *EspoProvider) SupportsNameChange() bool { return false }
