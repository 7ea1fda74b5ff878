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

// CreateUser inserts the user, its email history row and, when verification
// is required, a fresh verification record, in one transaction.
func (s *Store) CreateUser(ctx context.Context, id, name, email string, isAdmin bool, locale storage.Locale, requireEmailVerification bool) (*storage.User, *storage.UserEmailVerification, error) {
	u := &storage.User{
		ID:      id,
		Name:    name,
		Email:   email,
		IsAdmin: isAdmin,
		Locale:  locale,
	}
	var verification *storage.UserEmailVerification

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO users (id, name, email, is_admin, locale) VALUES (?, ?, ?, ?, ?)`,
			u.ID, u.Name, u.Email, u.IsAdmin, string(u.Locale))
		if err != nil {
			if isDuplicate(err) {
				return storage.ErrAlreadyExists
			}
			return fmt.Errorf("inserting user: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO user_emails (user_id, address, registered_at, verified)
			 VALUES (?, ?, ?, ?)`,
			u.ID, u.Email, time.Now().Unix(), !requireEmailVerification)
		if err != nil {
			return fmt.Errorf("inserting user email: %w", err)
		}

		if requireEmailVerification {
			verification = &storage.UserEmailVerification{
				UserID:  u.ID,
				Address: u.Email,
				Code:    storage.GenerateString(storage.VerificationCodeLength),
			}
			_, err = tx.ExecContext(ctx,
				`INSERT INTO user_email_verifications (user_id, address, code) VALUES (?, ?, ?)`,
				verification.UserID, verification.Address, verification.Code)
			if err != nil {
				return fmt.Errorf("inserting email verification: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return u, verification, nil
}

// GetUser returns the user with the given id.
func (s *Store) GetUser(ctx context.Context, id string) (*storage.User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, name, email, is_admin, locale FROM users WHERE id = ?`, id))
}

// GetUserByEmail returns the user whose current email is the given address.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*storage.User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, name, email, is_admin, locale FROM users WHERE email = ?`, email))
}

// ListUsers returns all users.
func (s *Store) ListUsers(ctx context.Context) ([]*storage.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, email, is_admin, locale FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying users: %w", err)
	}
	defer rows.Close()

	var out []*storage.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// CountUsers returns the total number of users.
func (s *Store) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting users: %w", err)
	}
	return n, nil
}

// SetUserName updates the user's display name.
func (s *Store) SetUserName(ctx context.Context, id, name string) error {
	return s.updateUser(ctx, `UPDATE users SET name = ? WHERE id = ?`, name, id)
}

// SetUserIsAdmin updates the user's admin flag.
func (s *Store) SetUserIsAdmin(ctx context.Context, id string, isAdmin bool) error {
	return s.updateUser(ctx, `UPDATE users SET is_admin = ? WHERE id = ?`, isAdmin, id)
}

// SetUserEmail makes the address the user's current email. The address must
// exist verified in the user's email history.
func (s *Store) SetUserEmail(ctx context.Context, id, email string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var verified bool
		err := tx.QueryRowContext(ctx,
			`SELECT verified FROM user_emails WHERE user_id = ? AND address = ?`,
			id, email).Scan(&verified)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && !verified) {
			return storage.ErrNoVerifiedEmail
		}
		if err != nil {
			return fmt.Errorf("querying user email: %w", err)
		}

		res, err := tx.ExecContext(ctx, `UPDATE users SET email = ? WHERE id = ?`, email, id)
		if err != nil {
			return fmt.Errorf("updating user email: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("checking rows affected: %w", err)
		}
		if n == 0 {
			return storage.ErrNotFound
		}
		return nil
	})
}

// IsCurrentEmailVerified reports whether the user's current address is verified.
func (s *Store) IsCurrentEmailVerified(ctx context.Context, id string) (bool, error) {
	var verified bool
	err := s.db.QueryRowContext(ctx,
		`SELECT e.verified FROM users u JOIN user_emails e
		 ON e.user_id = u.id AND e.address = u.email
		 WHERE u.id = ?`, id).Scan(&verified)
	if errors.Is(err, sql.ErrNoRows) {
		return false, storage.ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("querying email verification state: %w", err)
	}
	return verified, nil
}

// UpdateEmail registers a new unverified address and a fresh verification
// code, in one transaction. An address has at most one pending code; a new
// request invalidates the previous one.
func (s *Store) UpdateEmail(ctx context.Context, userID, newAddress string) (*storage.UserEmailVerification, error) {
	v := &storage.UserEmailVerification{
		UserID:  userID,
		Address: newAddress,
		Code:    storage.GenerateString(storage.VerificationCodeLength),
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT IGNORE INTO user_emails (user_id, address, registered_at, verified)
			 VALUES (?, ?, ?, FALSE)`,
			userID, newAddress, time.Now().Unix())
		if err != nil {
			return fmt.Errorf("inserting user email: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			`DELETE FROM user_email_verifications WHERE user_id = ? AND address = ?`,
			v.UserID, v.Address)
		if err != nil {
			return fmt.Errorf("removing superseded email verification: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO user_email_verifications (user_id, address, code) VALUES (?, ?, ?)`,
			v.UserID, v.Address, v.Code)
		if err != nil {
			return fmt.Errorf("inserting email verification: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

// SetEmailVerified marks an address in the user's history as verified.
func (s *Store) SetEmailVerified(ctx context.Context, userID, address string, verified bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE user_emails SET verified = ? WHERE user_id = ? AND address = ?`,
		verified, userID, address)
	if err != nil {
		return fmt.Errorf("updating email verification state: %w", err)
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

// GetEmailVerification returns the pending verification matching the code.
func (s *Store) GetEmailVerification(ctx context.Context, userID, code string) (*storage.UserEmailVerification, error) {
	var v storage.UserEmailVerification
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, address, code FROM user_email_verifications
		 WHERE user_id = ? AND code = ?`, userID, code).
		Scan(&v.UserID, &v.Address, &v.Code)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying email verification: %w", err)
	}
	return &v, nil
}

// DeleteEmailVerification removes a consumed verification code.
func (s *Store) DeleteEmailVerification(ctx context.Context, userID, address, code string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM user_email_verifications WHERE user_id = ? AND address = ? AND code = ?`,
		userID, address, code)
	if err != nil {
		return fmt.Errorf("deleting email verification: %w", err)
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

// CascadeDeleteUser deletes the user and every row referring to it, in one
// transaction. Child rows go first so the foreign keys hold throughout.
func (s *Store) CascadeDeleteUser(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM users WHERE id = ? FOR UPDATE`, id).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("querying user: %w", err)
		}

		for _, q := range []string{
			`DELETE FROM oauth2_authorization_codes WHERE user_id = ?`,
			`DELETE FROM oauth2_access_tokens WHERE user_id = ?`,
			`DELETE FROM oauth2_refresh_tokens WHERE user_id = ?`,
			`DELETE FROM oauth2_pending_authorizations WHERE user_id = ?`,
			`DELETE FROM user_email_verifications WHERE user_id = ?`,
			`DELETE FROM user_emails WHERE user_id = ?`,
			`DELETE FROM user_credentials WHERE user_id = ?`,
			`DELETE FROM user_permitted_scopes WHERE user_id = ?`,
			`DELETE FROM users WHERE id = ?`,
		} {
			if _, err := tx.ExecContext(ctx, q, id); err != nil {
				return fmt.Errorf("cascade deleting user: %w", err)
			}
		}
		return nil
	})
}

// SetPasswordHash stores or replaces the user's password hash.
func (s *Store) SetPasswordHash(ctx context.Context, userID, hash string, requireChange bool) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_credentials (user_id, password_hash, change_required)
		 VALUES (?, ?, ?)
		 ON DUPLICATE KEY UPDATE password_hash = VALUES(password_hash), change_required = VALUES(change_required)`,
		userID, hash, requireChange)
	if err != nil {
		return fmt.Errorf("storing password hash: %w", err)
	}
	return nil
}

// GetPasswordHash returns the stored hash and the change-required flag.
func (s *Store) GetPasswordHash(ctx context.Context, userID string) (string, bool, error) {
	var (
		hash           string
		changeRequired bool
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT password_hash, change_required FROM user_credentials WHERE user_id = ?`,
		userID).Scan(&hash, &changeRequired)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, storage.ErrNotFound
	}
	if err != nil {
		return "", false, fmt.Errorf("querying password hash: %w", err)
	}
	return hash, changeRequired, nil
}

// ListPermittedScopes returns the scopes granted to the user.
func (s *Store) ListPermittedScopes(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT scope FROM user_permitted_scopes WHERE user_id = ? ORDER BY scope`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying permitted scopes: %w", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var scope string
		if err := rows.Scan(&scope); err != nil {
			return nil, fmt.Errorf("scanning permitted scope: %w", err)
		}
		out = append(out, scope)
	}
	return out, rows.Err()
}

// GrantPermittedScope grants a scope to the user.
func (s *Store) GrantPermittedScope(ctx context.Context, userID, scope string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_permitted_scopes (user_id, scope) VALUES (?, ?)`, userID, scope)
	if err != nil {
		if isDuplicate(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("granting scope: %w", err)
	}
	return nil
}

// RevokePermittedScope removes a granted scope. Not an error when the scope
// was never granted.
func (s *Store) RevokePermittedScope(ctx context.Context, userID, scope string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM user_permitted_scopes WHERE user_id = ? AND scope = ?`, userID, scope)
	if err != nil {
		return fmt.Errorf("revoking scope: %w", err)
	}
	return nil
}

func (s *Store) updateUser(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating user: %w", err)
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

func scanUser(row rowScanner) (*storage.User, error) {
	var (
		u      storage.User
		locale string
	)
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.IsAdmin, &locale)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning user: %w", err)
	}
	u.Locale = storage.Locale(locale)
	return &u, nil
}
