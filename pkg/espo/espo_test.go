// SPDX-FileCopyrightText: Copyright 2025 Wilford Authors
// SPDX-License-Identifier: Apache-2.0

package espo

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryLoginOk(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/App/user", r.URL.Path)

		expected := base64.StdEncoding.EncodeToString([]byte("alice:hunter2"))
		assert.Equal(t, "Basic "+expected, r.Header.Get("Authorization"))
		assert.Equal(t, expected, r.Header.Get("Espo-Authorization"))
		assert.Equal(t, "false", r.Header.Get("Espo-Authorization-By-Token"))
		assert.Equal(t, "true", r.Header.Get("Espo-Authorization-Create-Token-Secret"))
		assert.Empty(t, r.Header.Get("Espo-Authorization-Code"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"user": {"id": "espo-1", "isActive": true}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key", "secret")
	status, id, err := c.TryLogin(context.Background(), "alice", "hunter2", "")
	require.NoError(t, err)
	assert.Equal(t, LoginOk, status)
	assert.Equal(t, "espo-1", id)
}

func TestTryLoginInactiveUser(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"user": {"id": "espo-1", "isActive": false}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key", "secret")
	status, _, err := c.TryLogin(context.Background(), "alice", "hunter2", "")
	require.NoError(t, err)
	assert.Equal(t, LoginInvalid, status)
}

func TestTryLoginTotpRequired(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message": "enterTotpCode"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key", "secret")
	status, _, err := c.TryLogin(context.Background(), "alice", "hunter2", "")
	require.NoError(t, err)
	assert.Equal(t, LoginTotpRequired, status)
}

func TestTryLoginTotpForwarded(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "123456", r.Header.Get("Espo-Authorization-Code"))
		_, _ = w.Write([]byte(`{"user": {"id": "espo-1", "isActive": true}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key", "secret")
	status, _, err := c.TryLogin(context.Background(), "alice", "hunter2", "123456")
	require.NoError(t, err)
	assert.Equal(t, LoginOk, status)
}

func TestTryLoginBadCredentials(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message": "wrong credentials"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key", "secret")
	status, _, err := c.TryLogin(context.Background(), "alice", "wrong", "")
	require.NoError(t, err)
	assert.Equal(t, LoginInvalid, status)
}

func TestTryLoginUnexpectedStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key", "secret")
	status, _, err := c.TryLogin(context.Background(), "alice", "hunter2", "")
	require.NoError(t, err)
	assert.Equal(t, LoginInvalid, status)
}

func TestGetUserByID(t *testing.T) {
	t.Parallel()

	c := NewClient("", "key", "secret")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/User/espo-1", r.URL.Path)
		assert.Equal(t, c.hmacHeader(http.MethodGet, "api/v1/User/espo-1"), r.Header.Get("X-Hmac-Authorization"))

		_, _ = w.Write([]byte(`{
			"id": "espo-1",
			"name": "Alice",
			"userName": "alice",
			"emailAddress": "alice@example.com",
			"type": "admin",
			"isActive": true
		}`))
	}))
	defer srv.Close()
	c.host = srv.URL

	u, err := c.GetUserByID(context.Background(), "espo-1")
	require.NoError(t, err)
	assert.Equal(t, "espo-1", u.ID)
	assert.Equal(t, "Alice", u.Name)
	assert.Equal(t, "alice@example.com", u.EmailAddress)
	assert.True(t, u.IsAdmin())
	assert.True(t, u.IsActive)
}

func TestGetUserByIDError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key", "secret")
	_, err := c.GetUserByID(context.Background(), "missing")
	require.Error(t, err)
}
