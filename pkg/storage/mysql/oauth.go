// SPDX-FileCopyrightText: Copyright 2025 Wilford Authors
// SPDX-License-Identifier: Apache-2.0

package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/wilford-oidc/wilford/pkg/storage"
)

// CreatePendingAuthorization records the start of an OAuth flow.
func (s *Store) CreatePendingAuthorization(ctx context.Context, clientID, scopes, state, nonce string, typ storage.AuthorizationType) (*storage.PendingAuthorization, error) {
	p := &storage.PendingAuthorization{
		ID:        storage.GenerateString(storage.PendingAuthorizationIDLength),
		ClientID:  clientID,
		Scopes:    scopes,
		State:     state,
		Nonce:     nonce,
		Type:      typ,
		CreatedAt: time.Now().Unix(),
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO oauth2_pending_authorizations (id, client_id, scopes, state, nonce, type, user_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, NULL, ?)`,
		p.ID, p.ClientID, p.Scopes, p.State, p.Nonce, string(p.Type), p.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("inserting pending authorization: %w", err)
	}
	return p, nil
}

// GetPendingAuthorization returns the pending authorization with the given id.
func (s *Store) GetPendingAuthorization(ctx context.Context, id string) (*storage.PendingAuthorization, error) {
	return scanPending(s.db.QueryRowContext(ctx,
		`SELECT id, client_id, scopes, state, nonce, type, user_id, created_at
		 FROM oauth2_pending_authorizations WHERE id = ?`, id))
}

// AuthorizePending attaches a user id to an Unauthorized record. The
// `user_id IS NULL` guard makes the transition happen at most once even under
// concurrent requests.
func (s *Store) AuthorizePending(ctx context.Context, id, userID string) (*storage.PendingAuthorization, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE oauth2_pending_authorizations SET user_id = ? WHERE id = ? AND user_id IS NULL`,
		userID, id)
	if err != nil {
		return nil, fmt.Errorf("authorizing pending authorization: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		// Distinguish a missing record from one already carrying a user.
		if _, err := s.GetPendingAuthorization(ctx, id); err != nil {
			return nil, err
		}
		return nil, storage.ErrAlreadyAuthorized
	}
	return s.GetPendingAuthorization(ctx, id)
}

// DeletePendingAuthorization removes a pending authorization.
func (s *Store) DeletePendingAuthorization(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM oauth2_pending_authorizations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting pending authorization: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// DeleteExpiredPendingAuthorizations removes records created before the cutoff.
func (s *Store) DeleteExpiredPendingAuthorizations(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM oauth2_pending_authorizations WHERE created_at < ?`, cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("deleting expired pending authorizations: %w", err)
	}
	return res.RowsAffected()
}

// ConsumePendingIssueCode atomically deletes the pending authorization and
// issues an authorization code.
func (s *Store) ConsumePendingIssueCode(ctx context.Context, pending *storage.PendingAuthorization) (*storage.AuthorizationCode, error) {
	var code *storage.AuthorizationCode
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		p, err := consumePending(ctx, tx, pending.ID)
		if err != nil {
			return err
		}

		code = &storage.AuthorizationCode{
			Code:      storage.GenerateString(storage.AuthorizationCodeLength),
			ClientID:  p.ClientID,
			UserID:    p.UserID,
			Scopes:    p.Scopes,
			Nonce:     p.Nonce,
			ExpiresAt: time.Now().Add(storage.AuthorizationCodeTTL).Unix(),
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO oauth2_authorization_codes (code, client_id, user_id, scopes, nonce, expires_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			code.Code, code.ClientID, code.UserID, code.Scopes, code.Nonce, code.ExpiresAt)
		if err != nil {
			return fmt.Errorf("inserting authorization code: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return code, nil
}

// ConsumePendingIssueAccessToken atomically deletes the pending authorization
// and issues an access token.
func (s *Store) ConsumePendingIssueAccessToken(ctx context.Context, pending *storage.PendingAuthorization) (*storage.AccessToken, error) {
	var token *storage.AccessToken
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		p, err := consumePending(ctx, tx, pending.ID)
		if err != nil {
			return err
		}

		token, err = insertAccessToken(ctx, tx, p.ClientID, p.UserID, p.Scopes)
		return err
	})
	if err != nil {
		return nil, err
	}
	return token, nil
}

// ConsumeCodeIssueTokenPair atomically deletes the authorization code and
// issues an access/refresh token pair.
func (s *Store) ConsumeCodeIssueTokenPair(ctx context.Context, code *storage.AuthorizationCode) (*storage.AccessToken, *storage.RefreshToken, error) {
	var (
		access  *storage.AccessToken
		refresh *storage.RefreshToken
	)
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var c storage.AuthorizationCode
		err := tx.QueryRowContext(ctx,
			`SELECT code, client_id, user_id, scopes, nonce, expires_at
			 FROM oauth2_authorization_codes WHERE code = ? FOR UPDATE`, code.Code).
			Scan(&c.Code, &c.ClientID, &c.UserID, &c.Scopes, &c.Nonce, &c.ExpiresAt)
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("querying authorization code: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM oauth2_authorization_codes WHERE code = ?`, c.Code); err != nil {
			return fmt.Errorf("deleting authorization code: %w", err)
		}

		access, err = insertAccessToken(ctx, tx, c.ClientID, c.UserID, c.Scopes)
		if err != nil {
			return err
		}

		refresh = &storage.RefreshToken{
			Token:    storage.GenerateString(storage.TokenLength),
			ClientID: c.ClientID,
			UserID:   c.UserID,
			Scopes:   c.Scopes,
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO oauth2_refresh_tokens (token, client_id, user_id, scopes)
			 VALUES (?, ?, ?, ?)`,
			refresh.Token, refresh.ClientID, refresh.UserID, refresh.Scopes)
		if err != nil {
			return fmt.Errorf("inserting refresh token: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return access, refresh, nil
}

// GetAuthorizationCode returns the code row without consuming it.
func (s *Store) GetAuthorizationCode(ctx context.Context, code string) (*storage.AuthorizationCode, error) {
	var c storage.AuthorizationCode
	err := s.db.QueryRowContext(ctx,
		`SELECT code, client_id, user_id, scopes, nonce, expires_at
		 FROM oauth2_authorization_codes WHERE code = ?`, code).
		Scan(&c.Code, &c.ClientID, &c.UserID, &c.Scopes, &c.Nonce, &c.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying authorization code: %w", err)
	}
	return &c, nil
}

// GetAccessToken returns the token row if present.
func (s *Store) GetAccessToken(ctx context.Context, token string) (*storage.AccessToken, error) {
	var t storage.AccessToken
	err := s.db.QueryRowContext(ctx,
		`SELECT token, client_id, user_id, scopes, issued_at, expires_at
		 FROM oauth2_access_tokens WHERE token = ?`, token).
		Scan(&t.Token, &t.ClientID, &t.UserID, &t.Scopes, &t.IssuedAt, &t.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying access token: %w", err)
	}
	return &t, nil
}

// GetAccessTokenForClient returns the token row only when it belongs to the
// given client and has not expired.
func (s *Store) GetAccessTokenForClient(ctx context.Context, token, clientID string) (*storage.AccessToken, error) {
	var t storage.AccessToken
	err := s.db.QueryRowContext(ctx,
		`SELECT token, client_id, user_id, scopes, issued_at, expires_at
		 FROM oauth2_access_tokens WHERE token = ? AND client_id = ? AND expires_at > ?`,
		token, clientID, time.Now().Unix()).
		Scan(&t.Token, &t.ClientID, &t.UserID, &t.Scopes, &t.IssuedAt, &t.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying access token for client: %w", err)
	}
	return &t, nil
}

// GetRefreshToken returns the refresh token row.
func (s *Store) GetRefreshToken(ctx context.Context, token string) (*storage.RefreshToken, error) {
	var t storage.RefreshToken
	err := s.db.QueryRowContext(ctx,
		`SELECT token, client_id, user_id, scopes
		 FROM oauth2_refresh_tokens WHERE token = ?`, token).
		Scan(&t.Token, &t.ClientID, &t.UserID, &t.Scopes)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying refresh token: %w", err)
	}
	return &t, nil
}

// RefreshAccessToken issues a new access token bound to the refresh token's
// client, user and scopes. The refresh token is reused.
func (s *Store) RefreshAccessToken(ctx context.Context, refresh *storage.RefreshToken) (*storage.AccessToken, error) {
	var token *storage.AccessToken
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var r storage.RefreshToken
		err := tx.QueryRowContext(ctx,
			`SELECT token, client_id, user_id, scopes
			 FROM oauth2_refresh_tokens WHERE token = ?`, refresh.Token).
			Scan(&r.Token, &r.ClientID, &r.UserID, &r.Scopes)
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("querying refresh token: %w", err)
		}

		token, err = insertAccessToken(ctx, tx, r.ClientID, r.UserID, r.Scopes)
		return err
	})
	if err != nil {
		return nil, err
	}
	return token, nil
}

// CreateConstantToken creates a named machine token.
func (s *Store) CreateConstantToken(ctx context.Context, name string) (*storage.ConstantAccessToken, error) {
	t := &storage.ConstantAccessToken{
		Name:  name,
		Token: storage.GenerateString(storage.TokenLength),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO constant_access_tokens (token, name) VALUES (?, ?)`,
		t.Token, t.Name)
	if err != nil {
		if isDuplicate(err) {
			return nil, storage.ErrAlreadyExists
		}
		return nil, fmt.Errorf("inserting constant token: %w", err)
	}
	return t, nil
}

// ListConstantTokens returns all machine tokens.
func (s *Store) ListConstantTokens(ctx context.Context) ([]*storage.ConstantAccessToken, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT token, name FROM constant_access_tokens ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("querying constant tokens: %w", err)
	}
	defer rows.Close()

	var out []*storage.ConstantAccessToken
	for rows.Next() {
		var t storage.ConstantAccessToken
		if err := rows.Scan(&t.Token, &t.Name); err != nil {
			return nil, fmt.Errorf("scanning constant token: %w", err)
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

// GetConstantToken returns the machine token with the given token value.
func (s *Store) GetConstantToken(ctx context.Context, token string) (*storage.ConstantAccessToken, error) {
	var t storage.ConstantAccessToken
	err := s.db.QueryRowContext(ctx,
		`SELECT token, name FROM constant_access_tokens WHERE token = ?`, token).
		Scan(&t.Token, &t.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying constant token: %w", err)
	}
	return &t, nil
}

// DeleteConstantToken revokes a machine token.
func (s *Store) DeleteConstantToken(ctx context.Context, token string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM constant_access_tokens WHERE token = ?`, token)
	if err != nil {
		return fmt.Errorf("deleting constant token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// consumePending locks, validates and deletes a pending authorization inside
// the caller's transaction. The record must be authorized.
func consumePending(ctx context.Context, tx *sql.Tx, id string) (*storage.PendingAuthorization, error) {
	p, err := scanPending(tx.QueryRowContext(ctx,
		`SELECT id, client_id, scopes, state, nonce, type, user_id, created_at
		 FROM oauth2_pending_authorizations WHERE id = ? FOR UPDATE`, id))
	if err != nil {
		return nil, err
	}
	if !p.Authorized() {
		return nil, storage.ErrNotAuthorized
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM oauth2_pending_authorizations WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("deleting pending authorization: %w", err)
	}
	return p, nil
}

// insertAccessToken creates and stores a fresh access token inside the
// caller's transaction.
func insertAccessToken(ctx context.Context, tx *sql.Tx, clientID, userID, scopes string) (*storage.AccessToken, error) {
	now := time.Now()
	t := &storage.AccessToken{
		Token:     storage.GenerateString(storage.TokenLength),
		ClientID:  clientID,
		UserID:    userID,
		Scopes:    scopes,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(storage.AccessTokenTTL).Unix(),
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO oauth2_access_tokens (token, client_id, user_id, scopes, issued_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		t.Token, t.ClientID, t.UserID, t.Scopes, t.IssuedAt, t.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("inserting access token: %w", err)
	}
	return t, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanPending(row rowScanner) (*storage.PendingAuthorization, error) {
	var (
		p      storage.PendingAuthorization
		typ    string
		userID sql.NullString
	)
	err := row.Scan(&p.ID, &p.ClientID, &p.Scopes, &p.State, &p.Nonce, &typ, &userID, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning pending authorization: %w", err)
	}
	p.Type = storage.AuthorizationType(typ)
	p.UserID = userID.String
	return &p, nil
}
