// SPDX-FileCopyrightText: Copyright 2025 Wilford Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wilford-oidc/wilford/pkg/config"
	"github.com/wilford-oidc/wilford/pkg/storage"
)

func TestEnsureInternalClientIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	cfg := &config.Config{
		DefaultClient: config.DefaultClientConfig{RedirectURI: "https://id.example.com/cb"},
	}

	require.NoError(t, EnsureInternalClient(ctx, store, cfg))
	require.NoError(t, EnsureInternalClient(ctx, store, cfg))

	clients, err := store.ListClients(ctx)
	require.NoError(t, err)
	require.Len(t, clients, 1)
	assert.True(t, clients[0].IsInternal)
	assert.Equal(t, internalClientName, clients[0].Name)
	assert.Equal(t, "https://id.example.com/cb", clients[0].RedirectURI)
}

func TestReaperRemovesExpiredPendingAuthorizations(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := storage.NewMemoryStorage()

	past := time.Now().Add(-2 * storage.PendingAuthorizationTTL)
	store.SetClock(func() time.Time { return past })
	_, err := store.CreatePendingAuthorization(ctx, "client", "openid", "", "", storage.TypeAuthorizationCode)
	require.NoError(t, err)

	store.SetClock(time.Now)
	fresh, err := store.CreatePendingAuthorization(ctx, "client", "openid", "", "", storage.TypeAuthorizationCode)
	require.NoError(t, err)

	reaper := NewReaper(store)
	reaper.reap()

	removed, err := store.DeleteExpiredPendingAuthorizations(ctx, time.Now().Add(-storage.PendingAuthorizationTTL))
	require.NoError(t, err)
	assert.Zero(t, removed)

	_, err = store.GetPendingAuthorization(ctx, fresh.ID)
	assert.NoError(t, err)
}

func TestReaperStartStop(t *testing.T) {
	t.Parallel()
	reaper := NewReaper(storage.NewMemoryStorage())
	reaper.interval = 10 * time.Millisecond
	reaper.Start()
	time.Sleep(30 * time.Millisecond)
	reaper.Stop()
}
