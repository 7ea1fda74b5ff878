// SPDX-FileCopyrightText: Copyright 2025 Wilford Authors
// SPDX-License-Identifier: Apache-2.0

package authorization

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wilford-oidc/wilford/pkg/espo"
	"github.com/wilford-oidc/wilford/pkg/storage"
)

// fakeEspo serves the two CRM endpoints the provider uses.
type fakeEspo struct {
	loginStatus int
	loginBody   string
	userBody    string
}

func (f *fakeEspo) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/App/user", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(f.loginStatus)
		_, _ = w.Write([]byte(f.loginBody))
	})
	mux.HandleFunc("/api/v1/User/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(f.userBody))
	})
	return mux
}

func espoUserBody(name, email, userType string, active bool) string {
	return fmt.Sprintf(`{"id": "espo-1", "name": %q, "emailAddress": %q, "type": %q, "isActive": %t}`,
		name, email, userType, active)
}

func TestEspoValidateProvisionsLocalUser(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	fake := &fakeEspo{
		loginStatus: http.StatusOK,
		loginBody:   `{"user": {"id": "espo-1", "isActive": true}}`,
		userBody:    espoUserBody("Alice", "alice@example.com", "regular", true),
	}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	store := storage.NewMemoryStorage()
	p := NewEspoProvider(store, espo.NewClient(srv.URL, "key", "secret"))

	result, err := p.ValidateCredentials(ctx, "alice", "hunter2", "")
	require.NoError(t, err)
	assert.Equal(t, "espo-1", result.User.ID)
	assert.False(t, result.User.IsAdmin)
	assert.False(t, result.RequirePasswordChange)

	// First login created the local mirror with the Dutch default locale.
	u, err := store.GetUser(ctx, "espo-1")
	require.NoError(t, err)
	assert.Equal(t, "Alice", u.Name)
	assert.Equal(t, storage.LocaleNl, u.Locale)

	verified, err := store.IsCurrentEmailVerified(ctx, "espo-1")
	require.NoError(t, err)
	assert.True(t, verified)
}

func TestEspoValidateSyncsDriftedUser(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	fake := &fakeEspo{
		loginStatus: http.StatusOK,
		loginBody:   `{"user": {"id": "espo-1", "isActive": true}}`,
		userBody:    espoUserBody("Alice Renamed", "alice@example.com", "admin", true),
	}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	store := storage.NewMemoryStorage()
	_, _, err := store.CreateUser(ctx, "espo-1", "Alice", "alice@example.com", false, storage.LocaleNl, false)
	require.NoError(t, err)

	p := NewEspoProvider(store, espo.NewClient(srv.URL, "key", "secret"))
	_, err = p.ValidateCredentials(ctx, "alice", "hunter2", "")
	require.NoError(t, err)

	u, err := store.GetUser(ctx, "espo-1")
	require.NoError(t, err)
	assert.Equal(t, "Alice Renamed", u.Name)
	assert.True(t, u.IsAdmin)
}

func TestEspoValidateTotpNeeded(t *testing.T) {
	t.Parallel()

	fake := &fakeEspo{
		loginStatus: http.StatusUnauthorized,
		loginBody:   `{"message": "enterTotpCode"}`,
	}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	p := NewEspoProvider(storage.NewMemoryStorage(), espo.NewClient(srv.URL, "key", "secret"))
	_, err := p.ValidateCredentials(context.Background(), "alice", "hunter2", "")
	require.ErrorIs(t, err, ErrTotpNeeded)
}

func TestEspoValidateInvalidCredentials(t *testing.T) {
	t.Parallel()

	fake := &fakeEspo{
		loginStatus: http.StatusUnauthorized,
		loginBody:   `{"message": "no"}`,
	}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	p := NewEspoProvider(storage.NewMemoryStorage(), espo.NewClient(srv.URL, "key", "secret"))
	_, err := p.ValidateCredentials(context.Background(), "alice", "wrong", "")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestEspoValidateInactiveUser(t *testing.T) {
	t.Parallel()

	fake := &fakeEspo{
		loginStatus: http.StatusOK,
		loginBody:   `{"user": {"id": "espo-1", "isActive": true}}`,
		userBody:    espoUserBody("Alice", "alice@example.com", "regular", false),
	}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	p := NewEspoProvider(storage.NewMemoryStorage(), espo.NewClient(srv.URL, "key", "secret"))
	_, err := p.ValidateCredentials(context.Background(), "alice", "hunter2", "")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestEspoUnsupportedOperations(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p := NewEspoProvider(storage.NewMemoryStorage(), espo.NewClient("http://crm.invalid", "key", "secret"))

	assert.False(t, p.SupportsPasswordChange())
	assert.False(t, p.SupportsRegistration())
	assert.False(t, p.SupportsEmailChange())
	assert.False(t, p.SupportsNameChange())

	require.ErrorIs(t, p.SetPassword(ctx, "u", "pw", false), ErrUnsupported)
	_, err := p.RegisterUser(ctx, "n", "e", "pw", false, storage.LocaleEn)
	require.ErrorIs(t, err, ErrUnsupported)
	require.ErrorIs(t, p.SetEmail(ctx, "u", "e"), ErrUnsupported)
}
