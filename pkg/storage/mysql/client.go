// SPDX-FileCopyrightText: Copyright 2025 Wilford Authors
// SPDX-License-Identifier: Apache-2.0

package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/wilford-oidc/wilford/pkg/storage"
)

// CreateClient registers a new OAuth2 client with generated credentials.
func (s *Store) CreateClient(ctx context.Context, name, redirectURI string, internal bool) (*storage.Client, error) {
	c := &storage.Client{
		ClientID:     storage.GenerateString(storage.ClientIDLength),
		ClientSecret: storage.GenerateString(storage.ClientSecretLength),
		Name:         name,
		RedirectURI:  redirectURI,
		IsInternal:   internal,
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO oauth2_clients (client_id, client_secret, name, redirect_uri, is_internal)
		 VALUES (?, ?, ?, ?, ?)`,
		c.ClientID, c.ClientSecret, c.Name, c.RedirectURI, c.IsInternal)
	if err != nil {
		if isDuplicate(err) {
			return nil, storage.ErrAlreadyExists
		}
		return nil, fmt.Errorf("inserting client: %w", err)
	}
	return c, nil
}

// GetClient returns the client with the given client id.
func (s *Store) GetClient(ctx context.Context, clientID string) (*storage.Client, error) {
	var c storage.Client
	err := s.db.QueryRowContext(ctx,
		`SELECT client_id, client_secret, name, redirect_uri, is_internal
		 FROM oauth2_clients WHERE client_id = ?`, clientID).
		Scan(&c.ClientID, &c.ClientSecret, &c.Name, &c.RedirectURI, &c.IsInternal)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying client: %w", err)
	}
	return &c, nil
}

// ListClients returns all registered clients.
func (s *Store) ListClients(ctx context.Context) ([]*storage.Client, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT client_id, client_secret, name, redirect_uri, is_internal
		 FROM oauth2_clients ORDER BY client_id`)
	if err != nil {
		return nil, fmt.Errorf("querying clients: %w", err)
	}
	defer rows.Close()

	var out []*storage.Client
	for rows.Next() {
		var c storage.Client
		if err := rows.Scan(&c.ClientID, &c.ClientSecret, &c.Name, &c.RedirectURI, &c.IsInternal); err != nil {
			return nil, fmt.Errorf("scanning client: %w", err)
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

// DeleteClient removes a client.
func (s *Store) DeleteClient(ctx context.Context, clientID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM oauth2_clients WHERE client_id = ?`, clientID)
	if err != nil {
		return fmt.Errorf("deleting client: %w", err)
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
