// Copyright 2026 The TimeNest Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/timenest/timenest-go/chat"
	"github.com/timenest/timenest-go/lib/kvstore"
	"github.com/timenest/timenest-go/session"
)

// newTestApp wires a minimal app against an httptest server, with a
// fresh session store holding a live credential for user 7.
func newTestApp(t *testing.T, handler http.Handler) *app {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	ctx := context.Background()
	db, err := kvstore.Open(kvstore.Config{Path: filepath.Join(t.TempDir(), "session.db")})
	if err != nil {
		t.Fatalf("opening kvstore: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	store, err := session.NewStore(ctx, session.StoreConfig{DB: db})
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "ada@example.com",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("signing test token: %v", err)
	}
	err = store.Login(ctx, session.Credential{Token: token, UserID: 7, Subject: "ada@example.com"})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	client, err := chat.NewClient(chat.ClientConfig{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return &app{logger: slog.Default(), store: store, client: client}
}

// A credential the server rejects must be cleared from the store, the
// same transition local expiry detection makes, so the next invocation
// asks for a fresh login instead of retrying the dead token.
func TestConversationsClearsRejectedCredential(t *testing.T) {
	a := newTestApp(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"detail": "Could not validate credentials"}`))
	}))

	err := a.conversations(context.Background())
	if err == nil {
		t.Fatal("conversations succeeded against a rejecting server")
	}
	if !strings.Contains(err.Error(), "session expired") {
		t.Errorf("error = %q, want a session expired notice", err)
	}
	if _, ok := a.store.Current(); ok {
		t.Error("rejected credential still held after auth failure")
	}
}

// Non-auth failures must not touch the stored credential.
func TestConversationsKeepsCredentialOnServerError(t *testing.T) {
	a := newTestApp(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"detail": "temporarily unavailable"}`))
	}))

	if err := a.conversations(context.Background()); err == nil {
		t.Fatal("conversations succeeded against a failing server")
	}
	if _, ok := a.store.Current(); !ok {
		t.Error("credential dropped on a non-auth failure")
	}
}

func TestSendClearsRejectedCredential(t *testing.T) {
	a := newTestApp(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"detail": "inactive user"}`))
	}))

	err := a.send(context.Background(), 42, "hello")
	if err == nil {
		t.Fatal("send succeeded against a rejecting server")
	}
	if !strings.Contains(err.Error(), "session expired") {
		t.Errorf("error = %q, want a session expired notice", err)
	}
	if _, ok := a.store.Current(); ok {
		t.Error("rejected credential still held after auth failure")
	}
}

func TestParseConversationID(t *testing.T) {
	if id, err := parseConversationID("42"); err != nil || id != 42 {
		t.Errorf("parseConversationID(42) = %d, %v", id, err)
	}
	for _, arg := range []string{"", "abc", "0", "-3"} {
		if _, err := parseConversationID(arg); err == nil {
			t.Errorf("parseConversationID(%q) accepted", arg)
		}
	}
}
