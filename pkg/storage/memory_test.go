// SPDX-FileCopyrightText: Copyright 2025 Wilford Authors
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateString(t *testing.T) {
	t.Parallel()

	s := GenerateString(TokenLength)
	require.Len(t, s, TokenLength)
	for _, r := range s {
		assert.Contains(t, alphanumeric, string(r))
	}

	// Two draws should essentially never collide.
	assert.NotEqual(t, s, GenerateString(TokenLength))
}

func TestClientLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemoryStorage()

	c, err := m.CreateClient(ctx, "Test App", "https://app.example.com/callback", false)
	require.NoError(t, err)
	require.Len(t, c.ClientID, ClientIDLength)
	require.Len(t, c.ClientSecret, ClientSecretLength)
	assert.False(t, c.IsInternal)

	// Names are unique.
	_, err = m.CreateClient(ctx, "Test App", "https://other.example.com", false)
	require.ErrorIs(t, err, ErrAlreadyExists)

	got, err := m.GetClient(ctx, c.ClientID)
	require.NoError(t, err)
	assert.Equal(t, c, got)

	list, err := m.ListClients(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, m.DeleteClient(ctx, c.ClientID))
	_, err = m.GetClient(ctx, c.ClientID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPendingAuthorizationTransition(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemoryStorage()

	p, err := m.CreatePendingAuthorization(ctx, "client-1", "openid profile", "xyz", "n0nce", TypeAuthorizationCode)
	require.NoError(t, err)
	require.Len(t, p.ID, PendingAuthorizationIDLength)
	assert.False(t, p.Authorized())

	// Issuing before a user authorized is rejected.
	_, err = m.ConsumePendingIssueCode(ctx, p)
	require.ErrorIs(t, err, ErrNotAuthorized)

	authorized, err := m.AuthorizePending(ctx, p.ID, "user-1")
	require.NoError(t, err)
	assert.True(t, authorized.Authorized())
	assert.Equal(t, "user-1", authorized.UserID)

	// The transition happens at most once.
	_, err = m.AuthorizePending(ctx, p.ID, "user-2")
	require.ErrorIs(t, err, ErrAlreadyAuthorized)
}

func TestConsumePendingIssueCode(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemoryStorage()

	p, err := m.CreatePendingAuthorization(ctx, "client-1", "openid", "xyz", "n0nce", TypeAuthorizationCode)
	require.NoError(t, err)
	p, err = m.AuthorizePending(ctx, p.ID, "user-1")
	require.NoError(t, err)

	code, err := m.ConsumePendingIssueCode(ctx, p)
	require.NoError(t, err)
	require.Len(t, code.Code, AuthorizationCodeLength)
	assert.Equal(t, "client-1", code.ClientID)
	assert.Equal(t, "user-1", code.UserID)
	assert.Equal(t, "openid", code.Scopes)
	assert.Equal(t, "n0nce", code.Nonce)
	assert.Greater(t, code.ExpiresAt, time.Now().Unix())

	// The pending record is gone; the operation cannot run twice.
	_, err = m.GetPendingAuthorization(ctx, p.ID)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = m.ConsumePendingIssueCode(ctx, p)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestConsumePendingIssueAccessToken(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemoryStorage()

	p, err := m.CreatePendingAuthorization(ctx, "client-1", "openid email", "", "", TypeImplicit)
	require.NoError(t, err)
	p, err = m.AuthorizePending(ctx, p.ID, "user-1")
	require.NoError(t, err)

	token, err := m.ConsumePendingIssueAccessToken(ctx, p)
	require.NoError(t, err)
	require.Len(t, token.Token, TokenLength)
	assert.Equal(t, token.IssuedAt+int64(AccessTokenTTL/time.Second), token.ExpiresAt)
	assert.True(t, token.HasScope("email"))
	assert.False(t, token.HasScope("profile"))

	_, err = m.GetPendingAuthorization(ctx, p.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCodeExchangeAndRefresh(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemoryStorage()

	p, err := m.CreatePendingAuthorization(ctx, "client-1", "openid", "", "n0nce", TypeAuthorizationCode)
	require.NoError(t, err)
	p, err = m.AuthorizePending(ctx, p.ID, "user-1")
	require.NoError(t, err)
	code, err := m.ConsumePendingIssueCode(ctx, p)
	require.NoError(t, err)

	access, refresh, err := m.ConsumeCodeIssueTokenPair(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, code.UserID, access.UserID)
	assert.Equal(t, code.Scopes, access.Scopes)
	assert.Equal(t, code.ClientID, refresh.ClientID)
	assert.Equal(t, code.UserID, refresh.UserID)

	// The code is single-use.
	_, _, err = m.ConsumeCodeIssueTokenPair(ctx, code)
	require.ErrorIs(t, err, ErrNotFound)

	fresh, err := m.RefreshAccessToken(ctx, refresh)
	require.NoError(t, err)
	assert.NotEqual(t, access.Token, fresh.Token)
	assert.Equal(t, access.Scopes, fresh.Scopes)

	// The refresh token survives the exchange.
	_, err = m.GetRefreshToken(ctx, refresh.Token)
	require.NoError(t, err)
}

func TestAccessTokenExpiry(t *testing.T) {
	t.Parallel()

	token := &AccessToken{ExpiresAt: time.Now().Add(time.Hour).Unix()}
	assert.False(t, token.Expired(time.Now()))
	assert.True(t, token.Expired(time.Now().Add(2*time.Hour)))
}

func TestConstantTokens(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemoryStorage()

	cat, err := m.CreateConstantToken(ctx, "backup-job")
	require.NoError(t, err)
	require.Len(t, cat.Token, TokenLength)

	_, err = m.CreateConstantToken(ctx, "backup-job")
	require.ErrorIs(t, err, ErrAlreadyExists)

	got, err := m.GetConstantToken(ctx, cat.Token)
	require.NoError(t, err)
	assert.Equal(t, "backup-job", got.Name)

	list, err := m.ListConstantTokens(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, m.DeleteConstantToken(ctx, cat.Token))
	_, err = m.GetConstantToken(ctx, cat.Token)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCreateUserWithVerification(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemoryStorage()

	u, v, err := m.CreateUser(ctx, "user-1", "Alice", "alice@example.com", false, LocaleEn, true)
	require.NoError(t, err)
	require.NotNil(t, v)
	require.Len(t, v.Code, VerificationCodeLength)
	assert.Equal(t, "alice@example.com", v.Address)

	verified, err := m.IsCurrentEmailVerified(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, verified)

	// Same verify-and-commit sequence the verification endpoint runs.
	got, err := m.GetEmailVerification(ctx, u.ID, v.Code)
	require.NoError(t, err)
	require.NoError(t, m.SetEmailVerified(ctx, u.ID, got.Address, true))
	require.NoError(t, m.DeleteEmailVerification(ctx, u.ID, got.Address, got.Code))
	require.NoError(t, m.SetUserEmail(ctx, u.ID, got.Address))

	verified, err = m.IsCurrentEmailVerified(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, verified)

	_, err = m.GetEmailVerification(ctx, u.ID, v.Code)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCreateUserWithoutVerification(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemoryStorage()

	u, v, err := m.CreateUser(ctx, "user-1", "Bob", "bob@example.com", true, LocaleNl, false)
	require.NoError(t, err)
	assert.Nil(t, v)
	assert.True(t, u.IsAdmin)

	verified, err := m.IsCurrentEmailVerified(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, verified)

	// Duplicate addresses are rejected.
	_, _, err = m.CreateUser(ctx, "user-2", "Bobby", "bob@example.com", false, LocaleEn, false)
	require.ErrorIs(t, err, ErrAlreadyExists)
}

func TestEmailChange(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemoryStorage()

	u, _, err := m.CreateUser(ctx, "user-1", "Alice", "old@example.com", false, LocaleEn, false)
	require.NoError(t, err)

	// The new address must be verified before it can become current.
	v, err := m.UpdateEmail(ctx, u.ID, "new@example.com")
	require.NoError(t, err)
	err = m.SetUserEmail(ctx, u.ID, "new@example.com")
	require.ErrorIs(t, err, ErrNoVerifiedEmail)

	require.NoError(t, m.SetEmailVerified(ctx, u.ID, v.Address, true))
	require.NoError(t, m.SetUserEmail(ctx, u.ID, "new@example.com"))

	got, err := m.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", got.Email)

	_, err = m.GetUserByEmail(ctx, "new@example.com")
	require.NoError(t, err)
	_, err = m.GetUserByEmail(ctx, "old@example.com")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateEmailSupersedesPendingCode(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemoryStorage()

	u, _, err := m.CreateUser(ctx, "user-1", "Alice", "old@example.com", false, LocaleEn, false)
	require.NoError(t, err)

	first, err := m.UpdateEmail(ctx, u.ID, "new@example.com")
	require.NoError(t, err)
	second, err := m.UpdateEmail(ctx, u.ID, "new@example.com")
	require.NoError(t, err)
	require.NotEqual(t, first.Code, second.Code)

	// An address has at most one pending code: only the latest is redeemable.
	_, err = m.GetEmailVerification(ctx, u.ID, first.Code)
	require.ErrorIs(t, err, ErrNotFound)
	got, err := m.GetEmailVerification(ctx, u.ID, second.Code)
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", got.Address)

	// A code pending for a different address is untouched.
	other, err := m.UpdateEmail(ctx, u.ID, "third@example.com")
	require.NoError(t, err)
	_, err = m.GetEmailVerification(ctx, u.ID, second.Code)
	require.NoError(t, err)
	_, err = m.GetEmailVerification(ctx, u.ID, other.Code)
	require.NoError(t, err)
}

func TestGetAccessTokenForClient(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemoryStorage()

	p, err := m.CreatePendingAuthorization(ctx, "client-1", "openid", "", "", TypeImplicit)
	require.NoError(t, err)
	p, err = m.AuthorizePending(ctx, p.ID, "user-1")
	require.NoError(t, err)
	token, err := m.ConsumePendingIssueAccessToken(ctx, p)
	require.NoError(t, err)

	got, err := m.GetAccessTokenForClient(ctx, token.Token, "client-1")
	require.NoError(t, err)
	assert.Equal(t, token.Token, got.Token)

	// Another client cannot validate the token.
	_, err = m.GetAccessTokenForClient(ctx, token.Token, "client-2")
	require.ErrorIs(t, err, ErrNotFound)

	// Expired tokens are rejected even for the owning client, while the plain
	// lookup keeps returning the row.
	m.SetClock(func() time.Time { return time.Now().Add(2 * AccessTokenTTL) })
	_, err = m.GetAccessTokenForClient(ctx, token.Token, "client-1")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = m.GetAccessToken(ctx, token.Token)
	require.NoError(t, err)
}

func TestCascadeDeleteUser(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemoryStorage()

	u, _, err := m.CreateUser(ctx, "user-1", "Alice", "alice@example.com", false, LocaleEn, false)
	require.NoError(t, err)
	require.NoError(t, m.SetPasswordHash(ctx, u.ID, "hash", false))
	require.NoError(t, m.GrantPermittedScope(ctx, u.ID, "wilford.manage"))

	p, err := m.CreatePendingAuthorization(ctx, "client-1", "openid", "", "", TypeAuthorizationCode)
	require.NoError(t, err)
	p, err = m.AuthorizePending(ctx, p.ID, u.ID)
	require.NoError(t, err)
	code, err := m.ConsumePendingIssueCode(ctx, p)
	require.NoError(t, err)
	access, refresh, err := m.ConsumeCodeIssueTokenPair(ctx, code)
	require.NoError(t, err)

	require.NoError(t, m.CascadeDeleteUser(ctx, u.ID))

	_, err = m.GetUser(ctx, u.ID)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = m.GetAccessToken(ctx, access.Token)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = m.GetRefreshToken(ctx, refresh.Token)
	require.ErrorIs(t, err, ErrNotFound)
	_, _, err = m.GetPasswordHash(ctx, u.ID)
	require.ErrorIs(t, err, ErrNotFound)
	scopes, err := m.ListPermittedScopes(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, scopes)
}

func TestCredentials(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemoryStorage()

	_, _, err := m.GetPasswordHash(ctx, "nobody")
	require.ErrorIs(t, err, ErrNotFound)

	u, _, err := m.CreateUser(ctx, "user-1", "Alice", "alice@example.com", false, LocaleEn, false)
	require.NoError(t, err)

	require.NoError(t, m.SetPasswordHash(ctx, u.ID, "hash-1", true))
	hash, change, err := m.GetPasswordHash(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "hash-1", hash)
	assert.True(t, change)

	require.NoError(t, m.SetPasswordHash(ctx, u.ID, "hash-2", false))
	hash, change, err = m.GetPasswordHash(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "hash-2", hash)
	assert.False(t, change)
}

func TestPermittedScopes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemoryStorage()

	require.NoError(t, m.GrantPermittedScope(ctx, "user-1", "a"))
	require.NoError(t, m.GrantPermittedScope(ctx, "user-1", "b"))
	require.ErrorIs(t, m.GrantPermittedScope(ctx, "user-1", "a"), ErrAlreadyExists)

	scopes, err := m.ListPermittedScopes(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, scopes)

	require.NoError(t, m.RevokePermittedScope(ctx, "user-1", "a"))
	// Revoking a scope that was never granted is not an error.
	require.NoError(t, m.RevokePermittedScope(ctx, "user-1", "zzz"))

	scopes, err = m.ListPermittedScopes(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, scopes)
}

func TestDeleteExpiredPendingAuthorizations(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemoryStorage()

	base := time.Now()
	m.SetClock(func() time.Time { return base.Add(-20 * time.Minute) })
	stale, err := m.CreatePendingAuthorization(ctx, "client-1", "openid", "", "", TypeAuthorizationCode)
	require.NoError(t, err)

	m.SetClock(func() time.Time { return base })
	fresh, err := m.CreatePendingAuthorization(ctx, "client-1", "openid", "", "", TypeAuthorizationCode)
	require.NoError(t, err)

	n, err := m.DeleteExpiredPendingAuthorizations(ctx, base.Add(-PendingAuthorizationTTL))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = m.GetPendingAuthorization(ctx, stale.ID)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = m.GetPendingAuthorization(ctx, fresh.ID)
	require.NoError(t, err)
}

func TestParseScopes(t *testing.T) {
	t.Parallel()

	set := ParseScopes("openid  profile openid email")
	assert.Len(t, set, 3)
	assert.Contains(t, set, "openid")
	assert.Contains(t, set, "profile")
	assert.Contains(t, set, "email")
	assert.Empty(t, ParseScopes(""))
}
