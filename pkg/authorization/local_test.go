// SPDX-FileCopyrightText: Copyright 2025 Wilford Authors
// SPDX-License-Identifier: Apache-2.0

package authorization

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wilford-oidc/wilford/pkg/storage"
)

func TestLocalRegisterAndValidate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p := NewLocalProvider(storage.NewMemoryStorage())

	info, err := p.RegisterUser(ctx, "Alice", "alice@example.com", "hunter2", false, storage.LocaleEn)
	require.NoError(t, err)
	require.Len(t, info.ID, storage.UserIDLength)
	require.NotNil(t, info.EmailVerification)
	assert.Equal(t, "alice@example.com", info.EmailVerification.Address)

	result, err := p.ValidateCredentials(ctx, "alice@example.com", "hunter2", "")
	require.NoError(t, err)
	assert.Equal(t, info.ID, result.User.ID)
	assert.Equal(t, "Alice", result.User.Name)
	assert.False(t, result.User.IsAdmin)
	assert.False(t, result.RequirePasswordChange)

	_, err = p.ValidateCredentials(ctx, "alice@example.com", "wrong", "")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = p.ValidateCredentials(ctx, "nobody@example.com", "hunter2", "")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLocalRegisterDuplicateEmail(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p := NewLocalProvider(storage.NewMemoryStorage())

	_, err := p.RegisterUser(ctx, "Alice", "alice@example.com", "hunter2", false, storage.LocaleEn)
	require.NoError(t, err)

	_, err = p.RegisterUser(ctx, "Imposter", "alice@example.com", "other", false, storage.LocaleEn)
	require.ErrorIs(t, err, ErrAlreadyExists)
}

func TestLocalSetPassword(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p := NewLocalProvider(storage.NewMemoryStorage())

	info, err := p.RegisterUser(ctx, "Alice", "alice@example.com", "hunter2", false, storage.LocaleEn)
	require.NoError(t, err)

	require.NoError(t, p.SetPassword(ctx, info.ID, "temporary", true))

	// The old password no longer works; the new one flags a required change.
	_, err = p.ValidateCredentials(ctx, "alice@example.com", "hunter2", "")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	result, err := p.ValidateCredentials(ctx, "alice@example.com", "temporary", "")
	require.NoError(t, err)
	assert.True(t, result.RequirePasswordChange)

	require.ErrorIs(t, p.SetPassword(ctx, "missing-user", "pw", false), ErrInvalidCredentials)
}

func TestLocalCapabilities(t *testing.T) {
	t.Parallel()
	p := NewLocalProvider(storage.NewMemoryStorage())

	assert.True(t, p.SupportsPasswordChange())
	assert.True(t, p.SupportsRegistration())
	assert.True(t, p.SupportsEmailChange())
	assert.True(t, p.SupportsNameChange())
}
