// SPDX-FileCopyrightText: Copyright 2025 Wilford Authors
// SPDX-License-Identifier: Apache-2.0

// Package storage provides the storage interface and entity types for the
// authorization server.
package storage

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Lifetimes of short-lived credentials.
const (
	// AuthorizationCodeTTL is how long an authorization code may be exchanged.
	AuthorizationCodeTTL = 10 * time.Minute

	// AccessTokenTTL is the lifetime of an access token.
	AccessTokenTTL = time.Hour

	// PendingAuthorizationTTL is how long an abandoned pending authorization
	// is kept before the reaper removes it.
	PendingAuthorizationTTL = 10 * time.Minute
)

// Sentinel errors returned by Storage implementations.
var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is returned when a uniqueness constraint would be violated.
	ErrAlreadyExists = errors.New("already exists")

	// ErrAlreadyAuthorized is returned when a pending authorization already
	// carries a user id; the transition is one-way and happens at most once.
	ErrAlreadyAuthorized = errors.New("pending authorization is already authorized")

	// ErrNotAuthorized is returned when a code or token is requested for a
	// pending authorization that has not been authorized by a user yet.
	ErrNotAuthorized = errors.New("pending authorization is not authorized yet")

	// ErrNoVerifiedEmail is returned by SetUserEmail when the address is not
	// present as a verified address in the user's email history.
	ErrNoVerifiedEmail = errors.New("email address is not registered or not verified")
)

// Locale is the preferred language of a user.
type Locale string

// Supported locales.
const (
	LocaleEn Locale = "En"
	LocaleNl Locale = "Nl"
)

// User is a registered end user.
type User struct {
	ID      string
	Name    string
	Email   string
	IsAdmin bool
	Locale  Locale
}

// UserEmail is one address ever registered to a user. History is retained
// after an address change.
type UserEmail struct {
	UserID       string
	Address      string
	RegisteredAt int64
	Verified     bool
}

// UserEmailVerification is a pending out-of-band verification for an address.
// Deleted once the address is verified.
type UserEmailVerification struct {
	UserID string
	Address string
	Code   string
}

// Client is a registered OAuth2 client.
type Client struct {
	ClientID     string
	ClientSecret string
	Name         string
	RedirectURI  string
	// IsInternal marks the server's own front-end client created at bootstrap.
	IsInternal bool
}

// AuthorizationType is the flow a pending authorization was created for.
type AuthorizationType string

// Authorization flow types.
const (
	TypeAuthorizationCode AuthorizationType = "AuthorizationCode"
	TypeImplicit          AuthorizationType = "Implicit"
	TypeIDToken           AuthorizationType = "IdToken"
)

// PendingAuthorization is the server-side record of an in-progress OAuth flow
// awaiting end-user authentication and consent. The record is Unauthorized
// until a user id is attached; the discriminator lives in the database
// (nullable user_id column), not in application memory.
type PendingAuthorization struct {
	ID       string
	ClientID string
	Scopes   string
	State    string
	Nonce    string
	Type     AuthorizationType
	// UserID is empty while the record is Unauthorized.
	UserID    string
	CreatedAt int64
}

// Authorized reports whether a user has authenticated for this authorization.
func (p *PendingAuthorization) Authorized() bool {
	return p.UserID != ""
}

// AuthorizationCode is a one-time credential exchanged at the token endpoint.
type AuthorizationCode struct {
	Code      string
	ClientID  string
	UserID    string
	Scopes    string
	Nonce     string
	ExpiresAt int64
}

// AccessToken is an opaque bearer credential with a one-hour lifetime.
type AccessToken struct {
	Token     string
	ClientID  string
	UserID    string
	Scopes    string
	IssuedAt  int64
	ExpiresAt int64
}

// ScopeSet returns the token's scopes as a set, parsed from the
// space-separated scope string with duplicates removed.
func (t *AccessToken) ScopeSet() map[string]struct{} {
	return ParseScopes(t.Scopes)
}

// HasScope reports whether the token carries the given scope.
func (t *AccessToken) HasScope(scope string) bool {
	_, ok := t.ScopeSet()[scope]
	return ok
}

// Expired reports whether the token has expired at the given time.
func (t *AccessToken) Expired(now time.Time) bool {
	return now.Unix() >= t.ExpiresAt
}

// RefreshToken is a long-lived credential exchanged for fresh access tokens.
// It has no expiry; it lives until the user is deleted.
type RefreshToken struct {
	Token    string
	ClientID string
	UserID   string
	Scopes   string
}

// ConstantAccessToken is a manually managed bearer credential for machine
// callers; it bypasses the OAuth flow.
type ConstantAccessToken struct {
	Name  string
	Token string
}

// ParseScopes tokenizes a space-separated scope string into a set, removing
// duplicates.
func ParseScopes(scopes string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, s := range strings.Fields(scopes) {
		set[s] = struct{}{}
	}
	return set
}

// Storage is the persistence layer of the authorization server. All
// multi-row mutations happen inside a single transaction so concurrent
// requests observe either the pre- or post-state, never a partial one.
type Storage interface {
	// Clients

	// CreateClient registers a new OAuth2 client with generated credentials.
	CreateClient(ctx context.Context, name, redirectURI string, internal bool) (*Client, error)
	// GetClient returns the client with the given client id.
	GetClient(ctx context.Context, clientID string) (*Client, error)
	// ListClients returns all registered clients.
	ListClients(ctx context.Context) ([]*Client, error)
	// DeleteClient removes a client.
	DeleteClient(ctx context.Context, clientID string) error

	// Pending authorizations

	// CreatePendingAuthorization records the start of an OAuth flow.
	CreatePendingAuthorization(ctx context.Context, clientID, scopes, state, nonce string, typ AuthorizationType) (*PendingAuthorization, error)
	// GetPendingAuthorization returns the pending authorization with the given id.
	GetPendingAuthorization(ctx context.Context, id string) (*PendingAuthorization, error)
	// AuthorizePending attaches a user id to an Unauthorized record. Returns
	// ErrAlreadyAuthorized if the record already carries a user id; the
	// database column's prior value is the source of truth.
	AuthorizePending(ctx context.Context, id, userID string) (*PendingAuthorization, error)
	// DeletePendingAuthorization removes a pending authorization.
	DeletePendingAuthorization(ctx context.Context, id string) error
	// DeleteExpiredPendingAuthorizations removes records created before the
	// cutoff and returns how many were removed.
	DeleteExpiredPendingAuthorizations(ctx context.Context, cutoff time.Time) (int64, error)

	// Codes and tokens

	// ConsumePendingIssueCode atomically deletes the pending authorization
	// and issues an authorization code. Returns ErrNotAuthorized if the
	// record has no user attached.
	ConsumePendingIssueCode(ctx context.Context, pending *PendingAuthorization) (*AuthorizationCode, error)
	// ConsumePendingIssueAccessToken atomically deletes the pending
	// authorization and issues an access token (implicit and id_token flows).
	ConsumePendingIssueAccessToken(ctx context.Context, pending *PendingAuthorization) (*AccessToken, error)
	// ConsumeCodeIssueTokenPair atomically deletes the authorization code and
	// issues an access/refresh token pair.
	ConsumeCodeIssueTokenPair(ctx context.Context, code *AuthorizationCode) (*AccessToken, *RefreshToken, error)
	// GetAuthorizationCode returns the code row without consuming it.
	GetAuthorizationCode(ctx context.Context, code string) (*AuthorizationCode, error)
	// GetAccessToken returns the token row if present; no expiry check.
	GetAccessToken(ctx context.Context, token string) (*AccessToken, error)
	// GetAccessTokenForClient returns the token row only when it belongs to
	// the given client and has not expired. ErrNotFound otherwise.
	GetAccessTokenForClient(ctx context.Context, token, clientID string) (*AccessToken, error)
	// GetRefreshToken returns the refresh token row.
	GetRefreshToken(ctx context.Context, token string) (*RefreshToken, error)
	// RefreshAccessToken issues a new access token bound to the refresh
	// token's client, user and scopes. The refresh token is reused.
	RefreshAccessToken(ctx context.Context, refresh *RefreshToken) (*AccessToken, error)

	// Constant access tokens

	// CreateConstantToken creates a named machine token.
	CreateConstantToken(ctx context.Context, name string) (*ConstantAccessToken, error)
	// ListConstantTokens returns all machine tokens.
	ListConstantTokens(ctx context.Context) ([]*ConstantAccessToken, error)
	// GetConstantToken returns the machine token with the given token value.
	GetConstantToken(ctx context.Context, token string) (*ConstantAccessToken, error)
	// DeleteConstantToken revokes a machine token.
	DeleteConstantToken(ctx context.Context, token string) error

	// Users

	// CreateUser inserts the user, its email history row and, when
	// verification is required, a fresh verification record, in one
	// transaction.
	CreateUser(ctx context.Context, id, name, email string, isAdmin bool, locale Locale, requireEmailVerification bool) (*User, *UserEmailVerification, error)
	// GetUser returns the user with the given id.
	GetUser(ctx context.Context, id string) (*User, error)
	// GetUserByEmail returns the user whose current email is the given address.
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	// ListUsers returns all users.
	ListUsers(ctx context.Context) ([]*User, error)
	// CountUsers returns the total number of users.
	CountUsers(ctx context.Context) (int64, error)
	// SetUserName updates the user's display name.
	SetUserName(ctx context.Context, id, name string) error
	// SetUserIsAdmin updates the user's admin flag.
	SetUserIsAdmin(ctx context.Context, id string, isAdmin bool) error
	// SetUserEmail makes the address the user's current email. Allowed only
	// if the address exists verified in the user's email history; otherwise
	// ErrNoVerifiedEmail.
	SetUserEmail(ctx context.Context, id, email string) error
	// IsCurrentEmailVerified reports whether the user's current address has
	// been verified. Generally true, except for newly created accounts.
	IsCurrentEmailVerified(ctx context.Context, id string) (bool, error)
	// UpdateEmail registers a new address (unverified) and a fresh
	// verification code, in one transaction.
	UpdateEmail(ctx context.Context, userID, newAddress string) (*UserEmailVerification, error)
	// SetEmailVerified marks an address in the user's history as verified.
	SetEmailVerified(ctx context.Context, userID, address string, verified bool) error
	// GetEmailVerification returns the pending verification matching the code.
	GetEmailVerification(ctx context.Context, userID, code string) (*UserEmailVerification, error)
	// DeleteEmailVerification removes a consumed verification code.
	DeleteEmailVerification(ctx context.Context, userID, address, code string) error
	// CascadeDeleteUser deletes the user and every row referring to it, in
	// one transaction, in a fixed order.
	CascadeDeleteUser(ctx context.Context, id string) error

	// Credentials (local provider only)

	// SetPasswordHash stores or replaces the user's password hash.
	SetPasswordHash(ctx context.Context, userID, hash string, requireChange bool) error
	// GetPasswordHash returns the stored hash and the change-required flag.
	GetPasswordHash(ctx context.Context, userID string) (hash string, changeRequired bool, err error)

	// Permitted scopes

	// ListPermittedScopes returns the scopes granted to the user.
	ListPermittedScopes(ctx context.Context, userID string) ([]string, error)
	// GrantPermittedScope grants a scope; ErrAlreadyExists on duplicates.
	GrantPermittedScope(ctx context.Context, userID, scope string) error
	// RevokePermittedScope removes a granted scope. Does not fail when the
	// scope was not granted.
	RevokePermittedScope(ctx context.Context, userID, scope string) error
}
