// SPDX-FileCopyrightText: Copyright 2025 Wilford Authors
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"sort"
	"sync"
	"time"
)

// credentials is the stored password state of a local user.
type credentials struct {
	hash           string
	changeRequired bool
}

// MemoryStorage is an in-memory Storage implementation. It is used by tests
// and by development setups that do not want a database. All operations are
// guarded by a single mutex; the composite operations therefore have the same
// atomicity as the transactional MySQL implementation.
type MemoryStorage struct {
	mu sync.Mutex

	clients  map[string]*Client
	pending  map[string]*PendingAuthorization
	codes    map[string]*AuthorizationCode
	access   map[string]*AccessToken
	refresh  map[string]*RefreshToken
	constant map[string]*ConstantAccessToken

	users         map[string]*User
	emails        map[string][]*UserEmail
	verifications map[string][]*UserEmailVerification
	creds         map[string]credentials
	scopes        map[string]map[string]struct{}

	// now is swappable so tests can control time.
	now func() time.Time
}

var _ Storage = (*MemoryStorage)(nil)

// NewMemoryStorage creates an empty in-memory store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		clients:       make(map[string]*Client),
		pending:       make(map[string]*PendingAuthorization),
		codes:         make(map[string]*AuthorizationCode),
		access:        make(map[string]*AccessToken),
		refresh:       make(map[string]*RefreshToken),
		constant:      make(map[string]*ConstantAccessToken),
		users:         make(map[string]*User),
		emails:        make(map[string][]*UserEmail),
		verifications: make(map[string][]*UserEmailVerification),
		creds:         make(map[string]credentials),
		scopes:        make(map[string]map[string]struct{}),
		now:           time.Now,
	}
}

// SetClock replaces the time source. Tests only.
func (m *MemoryStorage) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// Clients

// CreateClient registers a new OAuth2 client with generated credentials.
func (m *MemoryStorage) CreateClient(_ context.Context, name, redirectURI string, internal bool) (*Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range m.clients {
		if c.Name == name {
			return nil, ErrAlreadyExists
		}
	}

	c := &Client{
		ClientID:     GenerateString(ClientIDLength),
		ClientSecret: GenerateString(ClientSecretLength),
		Name:         name,
		RedirectURI:  redirectURI,
		IsInternal:   internal,
	}
	m.clients[c.ClientID] = c
	out := *c
	return &out, nil
}

// GetClient returns the client with the given client id.
func (m *MemoryStorage) GetClient(_ context.Context, clientID string) (*Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.clients[clientID]
	if !ok {
		return nil, ErrNotFound
	}
	out := *c
	return &out, nil
}

// ListClients returns all registered clients.
func (m *MemoryStorage) ListClients(_ context.Context) ([]*Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*Client, 0, len(m.clients))
	for _, c := range m.clients {
		cc := *c
		out = append(out, &cc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClientID < out[j].ClientID })
	return out, nil
}

// DeleteClient removes a client.
func (m *MemoryStorage) DeleteClient(_ context.Context, clientID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.clients[clientID]; !ok {
		return ErrNotFound
	}
	delete(m.clients, clientID)
	return nil
}

// Pending authorizations

// CreatePendingAuthorization records the start of an OAuth flow.
func (m *MemoryStorage) CreatePendingAuthorization(_ context.Context, clientID, scopes, state, nonce string, typ AuthorizationType) (*PendingAuthorization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := &PendingAuthorization{
		ID:        GenerateString(PendingAuthorizationIDLength),
		ClientID:  clientID,
		Scopes:    scopes,
		State:     state,
		Nonce:     nonce,
		Type:      typ,
		CreatedAt: m.now().Unix(),
	}
	m.pending[p.ID] = p
	out := *p
	return &out, nil
}

// GetPendingAuthorization returns the pending authorization with the given id.
func (m *MemoryStorage) GetPendingAuthorization(_ context.Context, id string) (*PendingAuthorization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.pending[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *p
	return &out, nil
}

// AuthorizePending attaches a user id to an Unauthorized record.
func (m *MemoryStorage) AuthorizePending(_ context.Context, id, userID string) (*PendingAuthorization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.pending[id]
	if !ok {
		return nil, ErrNotFound
	}
	if p.UserID != "" {
		return nil, ErrAlreadyAuthorized
	}
	p.UserID = userID
	out := *p
	return &out, nil
}

// DeletePendingAuthorization removes a pending authorization.
func (m *MemoryStorage) DeletePendingAuthorization(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.pending[id]; !ok {
		return ErrNotFound
	}
	delete(m.pending, id)
	return nil
}

// DeleteExpiredPendingAuthorizations removes records created before the cutoff.
func (m *MemoryStorage) DeleteExpiredPendingAuthorizations(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for id, p := range m.pending {
		if p.CreatedAt < cutoff.Unix() {
			delete(m.pending, id)
			n++
		}
	}
	return n, nil
}

// Codes and tokens

// ConsumePendingIssueCode atomically deletes the pending authorization and
// issues an authorization code.
func (m *MemoryStorage) ConsumePendingIssueCode(_ context.Context, pending *PendingAuthorization) (*AuthorizationCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.pending[pending.ID]
	if !ok {
		return nil, ErrNotFound
	}
	if p.UserID == "" {
		return nil, ErrNotAuthorized
	}
	delete(m.pending, pending.ID)

	code := &AuthorizationCode{
		Code:      GenerateString(AuthorizationCodeLength),
		ClientID:  p.ClientID,
		UserID:    p.UserID,
		Scopes:    p.Scopes,
		Nonce:     p.Nonce,
		ExpiresAt: m.now().Add(AuthorizationCodeTTL).Unix(),
	}
	m.codes[code.Code] = code
	out := *code
	return &out, nil
}

// ConsumePendingIssueAccessToken atomically deletes the pending authorization
// and issues an access token.
func (m *MemoryStorage) ConsumePendingIssueAccessToken(_ context.Context, pending *PendingAuthorization) (*AccessToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.pending[pending.ID]
	if !ok {
		return nil, ErrNotFound
	}
	if p.UserID == "" {
		return nil, ErrNotAuthorized
	}
	delete(m.pending, pending.ID)

	token := m.issueAccessTokenLocked(p.ClientID, p.UserID, p.Scopes)
	out := *token
	return &out, nil
}

// ConsumeCodeIssueTokenPair atomically deletes the authorization code and
// issues an access/refresh token pair.
func (m *MemoryStorage) ConsumeCodeIssueTokenPair(_ context.Context, code *AuthorizationCode) (*AccessToken, *RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.codes[code.Code]
	if !ok {
		return nil, nil, ErrNotFound
	}
	delete(m.codes, code.Code)

	access := m.issueAccessTokenLocked(c.ClientID, c.UserID, c.Scopes)
	refresh := &RefreshToken{
		Token:    GenerateString(TokenLength),
		ClientID: c.ClientID,
		UserID:   c.UserID,
		Scopes:   c.Scopes,
	}
	m.refresh[refresh.Token] = refresh

	outA := *access
	outR := *refresh
	return &outA, &outR, nil
}

// issueAccessTokenLocked creates and stores a fresh access token. The caller
// must hold the mutex.
func (m *MemoryStorage) issueAccessTokenLocked(clientID, userID, scopes string) *AccessToken {
	now := m.now()
	token := &AccessToken{
		Token:     GenerateString(TokenLength),
		ClientID:  clientID,
		UserID:    userID,
		Scopes:    scopes,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(AccessTokenTTL).Unix(),
	}
	m.access[token.Token] = token
	return token
}

// GetAuthorizationCode returns the code row without consuming it.
func (m *MemoryStorage) GetAuthorizationCode(_ context.Context, code string) (*AuthorizationCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.codes[code]
	if !ok {
		return nil, ErrNotFound
	}
	out := *c
	return &out, nil
}

// GetAccessToken returns the token row if present.
func (m *MemoryStorage) GetAccessToken(_ context.Context, token string) (*AccessToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.access[token]
	if !ok {
		return nil, ErrNotFound
	}
	out := *t
	return &out, nil
}

// GetAccessTokenForClient returns the token row only when it belongs to the
// given client and has not expired.
func (m *MemoryStorage) GetAccessTokenForClient(_ context.Context, token, clientID string) (*AccessToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.access[token]
	if !ok || t.ClientID != clientID || t.Expired(m.now()) {
		return nil, ErrNotFound
	}
	out := *t
	return &out, nil
}

// GetRefreshToken returns the refresh token row.
func (m *MemoryStorage) GetRefreshToken(_ context.Context, token string) (*RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.refresh[token]
	if !ok {
		return nil, ErrNotFound
	}
	out := *t
	return &out, nil
}

// RefreshAccessToken issues a new access token bound to the refresh token's
// client, user and scopes.
func (m *MemoryStorage) RefreshAccessToken(_ context.Context, refresh *RefreshToken) (*AccessToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.refresh[refresh.Token]
	if !ok {
		return nil, ErrNotFound
	}
	token := m.issueAccessTokenLocked(r.ClientID, r.UserID, r.Scopes)
	out := *token
	return &out, nil
}

// Constant access tokens

// CreateConstantToken creates a named machine token.
func (m *MemoryStorage) CreateConstantToken(_ context.Context, name string) (*ConstantAccessToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, t := range m.constant {
		if t.Name == name {
			return nil, ErrAlreadyExists
		}
	}

	t := &ConstantAccessToken{
		Name:  name,
		Token: GenerateString(TokenLength),
	}
	m.constant[t.Token] = t
	out := *t
	return &out, nil
}

// ListConstantTokens returns all machine tokens.
func (m *MemoryStorage) ListConstantTokens(_ context.Context) ([]*ConstantAccessToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*ConstantAccessToken, 0, len(m.constant))
	for _, t := range m.constant {
		tt := *t
		out = append(out, &tt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// GetConstantToken returns the machine token with the given token value.
func (m *MemoryStorage) GetConstantToken(_ context.Context, token string) (*ConstantAccessToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.constant[token]
	if !ok {
		return nil, ErrNotFound
	}
	out := *t
	return &out, nil
}

// DeleteConstantToken revokes a machine token.
func (m *MemoryStorage) DeleteConstantToken(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.constant[token]; !ok {
		return ErrNotFound
	}
	delete(m.constant, token)
	return nil
}

// Users

// CreateUser inserts the user, its email history row and, when verification
// is required, a fresh verification record.
func (m *MemoryStorage) CreateUser(_ context.Context, id, name, email string, isAdmin bool, locale Locale, requireEmailVerification bool) (*User, *UserEmailVerification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[id]; ok {
		return nil, nil, ErrAlreadyExists
	}
	for _, u := range m.users {
		if u.Email == email {
			return nil, nil, ErrAlreadyExists
		}
	}

	u := &User{
		ID:      id,
		Name:    name,
		Email:   email,
		IsAdmin: isAdmin,
		Locale:  locale,
	}
	m.users[id] = u
	m.emails[id] = append(m.emails[id], &UserEmail{
		UserID:       id,
		Address:      email,
		RegisteredAt: m.now().Unix(),
		Verified:     !requireEmailVerification,
	})

	var verification *UserEmailVerification
	if requireEmailVerification {
		verification = &UserEmailVerification{
			UserID:  id,
			Address: email,
			Code:    GenerateString(VerificationCodeLength),
		}
		m.verifications[id] = append(m.verifications[id], verification)
	}

	outU := *u
	if verification == nil {
		return &outU, nil, nil
	}
	outV := *verification
	return &outU, &outV, nil
}

// GetUser returns the user with the given id.
func (m *MemoryStorage) GetUser(_ context.Context, id string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *u
	return &out, nil
}

// GetUserByEmail returns the user whose current email is the given address.
func (m *MemoryStorage) GetUserByEmail(_ context.Context, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if u.Email == email {
			out := *u
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

// ListUsers returns all users.
func (m *MemoryStorage) ListUsers(_ context.Context) ([]*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*User, 0, len(m.users))
	for _, u := range m.users {
		uu := *u
		out = append(out, &uu)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// CountUsers returns the total number of users.
func (m *MemoryStorage) CountUsers(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.users)), nil
}

// SetUserName updates the user's display name.
func (m *MemoryStorage) SetUserName(_ context.Context, id, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.Name = name
	return nil
}

// SetUserIsAdmin updates the user's admin flag.
func (m *MemoryStorage) SetUserIsAdmin(_ context.Context, id string, isAdmin bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.IsAdmin = isAdmin
	return nil
}

// SetUserEmail makes the address the user's current email. The address must
// exist verified in the user's email history.
func (m *MemoryStorage) SetUserEmail(_ context.Context, id, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	for _, e := range m.emails[id] {
		if e.Address == email && e.Verified {
			u.Email = email
			return nil
		}
	}
	return ErrNoVerifiedEmail
}

// IsCurrentEmailVerified reports whether the user's current address is verified.
func (m *MemoryStorage) IsCurrentEmailVerified(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return false, ErrNotFound
	}
	for _, e := range m.emails[id] {
		if e.Address == u.Email {
			return e.Verified, nil
		}
	}
	return false, nil
}

// UpdateEmail registers a new unverified address and a fresh verification
// code. An address has at most one pending code; a new request invalidates
// the previous one.
func (m *MemoryStorage) UpdateEmail(_ context.Context, userID, newAddress string) (*UserEmailVerification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[userID]; !ok {
		return nil, ErrNotFound
	}

	found := false
	for _, e := range m.emails[userID] {
		if e.Address == newAddress {
			found = true
			break
		}
	}
	if !found {
		m.emails[userID] = append(m.emails[userID], &UserEmail{
			UserID:       userID,
			Address:      newAddress,
			RegisteredAt: m.now().Unix(),
		})
	}

	kept := m.verifications[userID][:0]
	for _, old := range m.verifications[userID] {
		if old.Address != newAddress {
			kept = append(kept, old)
		}
	}

	v := &UserEmailVerification{
		UserID:  userID,
		Address: newAddress,
		Code:    GenerateString(VerificationCodeLength),
	}
	m.verifications[userID] = append(kept, v)
	out := *v
	return &out, nil
}

// SetEmailVerified marks an address in the user's history as verified.
func (m *MemoryStorage) SetEmailVerified(_ context.Context, userID, address string, verified bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range m.emails[userID] {
		if e.Address == address {
			e.Verified = verified
			return nil
		}
	}
	return ErrNotFound
}

// GetEmailVerification returns the pending verification matching the code.
func (m *MemoryStorage) GetEmailVerification(_ context.Context, userID, code string) (*UserEmailVerification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, v := range m.verifications[userID] {
		if v.Code == code {
			out := *v
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

// DeleteEmailVerification removes a consumed verification code.
func (m *MemoryStorage) DeleteEmailVerification(_ context.Context, userID, address, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	vs := m.verifications[userID]
	for i, v := range vs {
		if v.Address == address && v.Code == code {
			m.verifications[userID] = append(vs[:i], vs[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

// CascadeDeleteUser deletes the user and every row referring to it.
func (m *MemoryStorage) CascadeDeleteUser(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[id]; !ok {
		return ErrNotFound
	}

	for code, c := range m.codes {
		if c.UserID == id {
			delete(m.codes, code)
		}
	}
	for token, t := range m.access {
		if t.UserID == id {
			delete(m.access, token)
		}
	}
	for token, t := range m.refresh {
		if t.UserID == id {
			delete(m.refresh, token)
		}
	}
	for pid, p := range m.pending {
		if p.UserID == id {
			delete(m.pending, pid)
		}
	}
	delete(m.verifications, id)
	delete(m.emails, id)
	delete(m.creds, id)
	delete(m.scopes, id)
	delete(m.users, id)
	return nil
}

// Credentials

// SetPasswordHash stores or replaces the user's password hash.
func (m *MemoryStorage) SetPasswordHash(_ context.Context, userID, hash string, requireChange bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[userID]; !ok {
		return ErrNotFound
	}
	m.creds[userID] = credentials{hash: hash, changeRequired: requireChange}
	return nil
}

// GetPasswordHash returns the stored hash and the change-required flag.
func (m *MemoryStorage) GetPasswordHash(_ context.Context, userID string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.creds[userID]
	if !ok {
		return "", false, ErrNotFound
	}
	return c.hash, c.changeRequired, nil
}

// Permitted scopes

// ListPermittedScopes returns the scopes granted to the user.
func (m *MemoryStorage) ListPermittedScopes(_ context.Context, userID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, 0, len(m.scopes[userID]))
	for s := range m.scopes[userID] {
		out = append(out, s)
	}
	sort.Strings(out)
	return out, nil
}

// GrantPermittedScope grants a scope to the user.
func (m *MemoryStorage) GrantPermittedScope(_ context.Context, userID, scope string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.scopes[userID] == nil {
		m.scopes[userID] = make(map[string]struct{})
	}
	if _, ok := m.scopes[userID][scope]; ok {
		return ErrAlreadyExists
	}
	m.scopes[userID][scope] = struct{}{}
	return nil
}

// RevokePermittedScope removes a granted scope.
func (m *MemoryStorage) RevokePermittedScope(_ context.Context, userID, scope string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.scopes[userID], scope)
	return nil
}
