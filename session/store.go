// Copyright 2026 The TimeNest Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/timenest/timenest-go/credential"
	"github.com/timenest/timenest-go/lib/clock"
	"github.com/timenest/timenest-go/lib/codec"
	"github.com/timenest/timenest-go/lib/kvstore"
)

// Storage keys. Both are written and cleared together; a session is
// only restored when the flag and the blob agree.
const (
	keyAuthenticated = "authenticated"
	keySession       = "session"
)

// authenticatedMarker is the value stored under keyAuthenticated,
// mirroring the flag the web client keeps alongside the profile blob.
var authenticatedMarker = []byte("true")

// Credential is the authenticated identity: the opaque bearer token
// plus the profile fields the server returned at login. It is owned
// exclusively by the Store; no other component mutates it.
type Credential struct {
	// Token is the opaque bearer string with an embedded expiry.
	Token string `cbor:"1,keyasint"`

	// UserID is the numeric account ID.
	UserID int64 `cbor:"2,keyasint"`

	// Subject is the login identity (email).
	Subject string `cbor:"3,keyasint,omitempty"`

	// DisplayName is the profile name shown to counterparts.
	DisplayName string `cbor:"4,keyasint,omitempty"`

	// AvatarURL is the profile picture reference, if any.
	AvatarURL string `cbor:"5,keyasint,omitempty"`
}

// StoreConfig holds dependencies for creating a Store.
type StoreConfig struct {
	// DB is the durable key-value store. Required.
	DB *kvstore.DB

	// Clock is used for expiry checks during restore. If nil,
	// clock.Real() is used.
	Clock clock.Clock

	// Logger is used for structured logging. If nil, slog.Default()
	// is used.
	Logger *slog.Logger
}

// Store holds the current authenticated credential and persists it
// across process restarts. All methods are safe for concurrent use.
//
// Credential transitions (login, logout, forced logout) are delivered
// to subscribers registered with Watch. There is no ambient singleton:
// construct one Store at process start and pass it by reference.
type Store struct {
	db     *kvstore.DB
	clock  clock.Clock
	logger *slog.Logger

	mu       sync.Mutex
	current  *Credential
	watchers map[uint64]func(*Credential)
	nextID   uint64
}

// NewStore creates a Store and attempts to restore a persisted session.
// A storage error during restore is logged and treated as "no stored
// session"; a restored credential that is expired or malformed is
// discarded immediately, so the store never starts authenticated with
// a dead token.
func NewStore(ctx context.Context, cfg StoreConfig) (*Store, error) {
	if cfg.DB == nil {
		return nil, fmt.Errorf("session: DB is required")
	}

	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	store := &Store{
		db:       cfg.DB,
		clock:    clk,
		logger:   logger,
		watchers: make(map[uint64]func(*Credential)),
	}
	store.restore(ctx)
	return store, nil
}

// restore loads the persisted session, discarding anything
// inconsistent, expired, or unreadable.
func (s *Store) restore(ctx context.Context) {
	flag, flagFound, err := s.db.Get(ctx, keyAuthenticated)
	if err != nil {
		s.logger.Warn("session restore failed, starting unauthenticated", "error", err)
		return
	}
	blob, blobFound, err := s.db.Get(ctx, keySession)
	if err != nil {
		s.logger.Warn("session restore failed, starting unauthenticated", "error", err)
		return
	}

	if !flagFound && !blobFound {
		return
	}
	if !flagFound || !blobFound || string(flag) != string(authenticatedMarker) {
		// The two keys disagree, likely a partial write from an old client
		// or manual tampering. Clear both rather than guess.
		s.logger.Warn("inconsistent persisted session, discarding")
		s.clearPersisted(ctx)
		return
	}

	var cred Credential
	if err := codec.Unmarshal(blob, &cred); err != nil {
		s.logger.Warn("persisted session blob unreadable, discarding", "error", err)
		s.clearPersisted(ctx)
		return
	}

	if status := credential.Check(cred.Token, s.clock.Now()); status != credential.Valid {
		s.logger.Info("persisted session no longer valid, discarding",
			"user_id", cred.UserID,
			"status", status.String(),
		)
		s.clearPersisted(ctx)
		return
	}

	s.current = &cred
	s.logger.Info("session restored", "user_id", cred.UserID)
}

func (s *Store) clearPersisted(ctx context.Context) {
	if err := s.db.DeleteAll(ctx, keyAuthenticated, keySession); err != nil {
		s.logger.Warn("clearing persisted session failed", "error", err)
	}
}

// Login stores the credential durably and in memory, overwriting any
// prior credential, and notifies watchers. Idempotent.
func (s *Store) Login(ctx context.Context, cred Credential) error {
	blob, err := codec.Marshal(cred)
	if err != nil {
		return fmt.Errorf("session: encoding credential: %w", err)
	}
	err = s.db.PutAll(ctx, map[string][]byte{
		keyAuthenticated: authenticatedMarker,
		keySession:       blob,
	})
	if err != nil {
		return fmt.Errorf("session: persisting credential: %w", err)
	}

	s.mu.Lock()
	s.current = &cred
	watchers := s.watcherListLocked()
	s.mu.Unlock()

	s.logger.Info("logged in", "user_id", cred.UserID)
	notify(watchers, &cred)
	return nil
}

// Logout clears the credential from memory and durable storage and
// notifies watchers. Succeeds even when nothing was stored. Memory is
// cleared before storage so a failed delete can never leave the
// process acting authenticated.
func (s *Store) Logout(ctx context.Context) error {
	s.mu.Lock()
	wasAuthenticated := s.current != nil
	s.current = nil
	watchers := s.watcherListLocked()
	s.mu.Unlock()

	err := s.db.DeleteAll(ctx, keyAuthenticated, keySession)

	if wasAuthenticated {
		s.logger.Info("logged out")
		notify(watchers, nil)
	}
	if err != nil {
		return fmt.Errorf("session: clearing persisted credential: %w", err)
	}
	return nil
}

// Current returns the active credential, if any.
func (s *Store) Current() (Credential, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return Credential{}, false
	}
	return *s.current, true
}

// Expired reports whether the current credential should be treated as
// expired. True when no credential is held; malformed tokens also read
// as expired.
func (s *Store) Expired() bool {
	cred, ok := s.Current()
	if !ok {
		return true
	}
	return credential.IsExpired(cred.Token, s.clock.Now())
}

// Subscription is a scoped handle for a Watch registration. Cancel is
// idempotent and safe to call from any goroutine.
type Subscription struct {
	cancel func()
	once   sync.Once
}

// Cancel removes the watcher. No new callbacks start after Cancel
// returns; one already dispatched concurrently may still arrive.
func (sub *Subscription) Cancel() { sub.once.Do(sub.cancel) }

// Watch registers a callback invoked on every credential transition:
// a non-nil credential on login, nil on logout (explicit or forced).
// Callbacks run synchronously on the goroutine performing the
// transition and must not block. The returned Subscription must be
// cancelled when the watcher is torn down.
func (s *Store) Watch(fn func(cred *Credential)) *Subscription {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.watchers[id] = fn
	s.mu.Unlock()

	return &Subscription{cancel: func() {
		s.mu.Lock()
		delete(s.watchers, id)
		s.mu.Unlock()
	}}
}

// watcherListLocked snapshots the registered callbacks so they can be
// invoked outside the lock.
func (s *Store) watcherListLocked() []func(*Credential) {
	list := make([]func(*Credential), 0, len(s.watchers))
	for _, fn := range s.watchers {
		list = append(list, fn)
	}
	return list
}

func notify(watchers []func(*Credential), cred *Credential) {
	for _, fn := range watchers {
		fn(cred)
	}
}
