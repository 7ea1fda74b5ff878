// SPDX-FileCopyrightText: Copyright 2025 Wilford Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"time"

	"github.com/wilford-oidc/wilford/pkg/logger"
	"github.com/wilford-oidc/wilford/pkg/storage"
)

// reapInterval is how often abandoned pending authorizations are removed.
const reapInterval = time.Minute

// Reaper periodically deletes pending authorizations older than their TTL.
// Abandoned flows would otherwise accumulate forever; nothing else ever
// deletes an unredeemed record.
type Reaper struct {
	store    storage.Storage
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
}

// NewReaper creates a reaper for the given storage.
func NewReaper(store storage.Storage) *Reaper {
	return &Reaper{
		store:    store,
		interval: reapInterval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the reap loop.
func (r *Reaper) Start() {
	go r.loop()
}

// Stop terminates the reap loop and waits for it to finish.
func (r *Reaper) Stop() {
	close(r.stop)
	<-r.done
}

func (r *Reaper) loop() {
	defer close(r.done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			r.reap()
		}
	}
}

func (r *Reaper) reap() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cutoff := time.Now().Add(-storage.PendingAuthorizationTTL)
	removed, err := r.store.DeleteExpiredPendingAuthorizations(ctx, cutoff)
	if err != nil {
		logger.Warnw("failed to reap pending authorizations", "error", err)
		return
	}
	if removed > 0 {
		logger.Debugw("reaped pending authorizations", "count", removed)
	}
}
