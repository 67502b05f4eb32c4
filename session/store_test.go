// Copyright 2026 The TimeNest Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/timenest/timenest-go/lib/clock"
	"github.com/timenest/timenest-go/lib/kvstore"
)

// testToken builds a bearer token with the given expiry. Signature
// content is irrelevant client-side.
func testToken(t *testing.T, userID int64, expiresAt time.Time) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":     "test@example.com",
		"user_id": userID,
		"exp":     expiresAt.Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("signing test token: %v", err)
	}
	return token
}

func openTestDB(t *testing.T, path string) *kvstore.DB {
	t.Helper()
	db, err := kvstore.Open(kvstore.Config{Path: path})
	if err != nil {
		t.Fatalf("kvstore.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestStore(t *testing.T, db *kvstore.DB, clk clock.Clock) *Store {
	t.Helper()
	store, err := NewStore(context.Background(), StoreConfig{
		DB:     db,
		Clock:  clk,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store
}

func TestLoginPersistsAcrossRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	fake := clock.Fake(now)
	ctx := context.Background()

	db := openTestDB(t, path)
	store := newTestStore(t, db, fake)

	cred := Credential{
		Token:       testToken(t, 42, now.Add(time.Hour)),
		UserID:      42,
		Subject:     "test@example.com",
		DisplayName: "Ada",
	}
	if err := store.Login(ctx, cred); err != nil {
		t.Fatalf("Login: %v", err)
	}

	// Simulate a restart: fresh store over the same database.
	restored := newTestStore(t, db, fake)
	got, ok := restored.Current()
	if !ok {
		t.Fatal("restored store is unauthenticated")
	}
	if got != cred {
		t.Errorf("restored credential = %+v, want %+v", got, cred)
	}
}

func TestRestoreDiscardsExpiredCredential(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	fake := clock.Fake(now)
	ctx := context.Background()

	db := openTestDB(t, path)
	store := newTestStore(t, db, fake)
	err := store.Login(ctx, Credential{
		Token:  testToken(t, 1, now.Add(time.Minute)),
		UserID: 1,
	})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	fake.Advance(2 * time.Minute)

	restored := newTestStore(t, db, fake)
	if _, ok := restored.Current(); ok {
		t.Fatal("expired credential survived restore")
	}

	// The dead blob is cleared, not just ignored: yet another restart
	// finds clean storage.
	again := newTestStore(t, db, fake)
	if _, ok := again.Current(); ok {
		t.Fatal("expired credential resurfaced on second restore")
	}
}

func TestRestoreDiscardsInconsistentKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	db := openTestDB(t, path)

	// Blob present without the authenticated flag: a partial write.
	if err := db.Put(ctx, "session", []byte("not-even-cbor")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	store := newTestStore(t, db, clock.Fake(now))
	if _, ok := store.Current(); ok {
		t.Fatal("inconsistent session treated as authenticated")
	}
}

func TestLogoutClearsEverything(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	fake := clock.Fake(now)
	ctx := context.Background()

	db := openTestDB(t, path)
	store := newTestStore(t, db, fake)
	err := store.Login(ctx, Credential{
		Token:  testToken(t, 9, now.Add(time.Hour)),
		UserID: 9,
	})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	if err := store.Logout(ctx); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, ok := store.Current(); ok {
		t.Fatal("credential still present after logout")
	}

	restored := newTestStore(t, db, fake)
	if _, ok := restored.Current(); ok {
		t.Fatal("credential restored after logout")
	}
}

func TestLogoutWithoutLoginSucceeds(t *testing.T) {
	db := openTestDB(t, filepath.Join(t.TempDir(), "state.db"))
	store := newTestStore(t, db, clock.Fake(time.Now()))

	if err := store.Logout(context.Background()); err != nil {
		t.Errorf("Logout on empty store: %v", err)
	}
}

func TestWatchDeliversTransitions(t *testing.T) {
	db := openTestDB(t, filepath.Join(t.TempDir(), "state.db"))
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	store := newTestStore(t, db, clock.Fake(now))
	ctx := context.Background()

	var events []*Credential
	sub := store.Watch(func(cred *Credential) {
		events = append(events, cred)
	})
	defer sub.Cancel()

	cred := Credential{Token: testToken(t, 5, now.Add(time.Hour)), UserID: 5}
	if err := store.Login(ctx, cred); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if err := store.Logout(ctx); err != nil {
		t.Fatalf("Logout: %v", err)
	}

	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0] == nil || events[0].UserID != 5 {
		t.Errorf("first event = %+v, want login for user 5", events[0])
	}
	if events[1] != nil {
		t.Errorf("second event = %+v, want nil (logout)", events[1])
	}
}

func TestWatchCancelStopsDelivery(t *testing.T) {
	db := openTestDB(t, filepath.Join(t.TempDir(), "state.db"))
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	store := newTestStore(t, db, clock.Fake(now))

	calls := 0
	sub := store.Watch(func(*Credential) { calls++ })
	sub.Cancel()
	sub.Cancel() // idempotent

	err := store.Login(context.Background(), Credential{
		Token:  testToken(t, 1, now.Add(time.Hour)),
		UserID: 1,
	})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if calls != 0 {
		t.Errorf("cancelled watcher invoked %d times", calls)
	}
}

func TestExpiredPredicate(t *testing.T) {
	db := openTestDB(t, filepath.Join(t.TempDir(), "state.db"))
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	fake := clock.Fake(now)
	store := newTestStore(t, db, fake)
	ctx := context.Background()

	if !store.Expired() {
		t.Error("empty store should read as expired")
	}

	err := store.Login(ctx, Credential{
		Token:  testToken(t, 1, now.Add(time.Minute)),
		UserID: 1,
	})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if store.Expired() {
		t.Error("fresh credential reads as expired")
	}

	fake.Advance(61 * time.Second)
	if !store.Expired() {
		t.Error("credential past its expiry reads as valid")
	}
}
