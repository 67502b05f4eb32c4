// Copyright 2026 The TimeNest Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/timenest/timenest-go/lib/clock"
)

func TestFormatLastActivity(t *testing.T) {
	// Saturday afternoon.
	now := time.Date(2026, time.August, 29, 14, 30, 0, 0, time.UTC)

	ptr := func(ts time.Time) *time.Time { return &ts }

	cases := []struct {
		name string
		ts   *time.Time
		want string
	}{
		{"no messages", nil, NoMessagesLabel},
		{"zero timestamp", ptr(time.Time{}), NoMessagesLabel},
		{"ten minutes ago", ptr(now.Add(-10 * time.Minute)), "14:20"},
		{"zero padded hour", ptr(time.Date(2026, time.August, 29, 9, 5, 0, 0, time.UTC)), "09:05"},
		{"midnight today", ptr(time.Date(2026, time.August, 29, 0, 0, 0, 0, time.UTC)), "00:00"},
		{"yesterday evening", ptr(time.Date(2026, time.August, 28, 23, 59, 0, 0, time.UTC)), "Fri"},
		{"three days ago", ptr(time.Date(2026, time.August, 26, 14, 30, 0, 0, time.UTC)), "Wed"},
		{"six days ago", ptr(time.Date(2026, time.August, 23, 8, 0, 0, 0, time.UTC)), "Sun"},
		{"seven days ago", ptr(time.Date(2026, time.August, 22, 8, 0, 0, 0, time.UTC)), "Aug 22"},
		{"last year", ptr(time.Date(2025, time.December, 31, 8, 0, 0, 0, time.UTC)), "Dec 31"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := FormatLastActivity(tc.ts, now); got != tc.want {
				t.Errorf("FormatLastActivity = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestFormatLastActivityDeterministic(t *testing.T) {
	now := time.Date(2026, time.August, 29, 14, 30, 0, 0, time.UTC)
	ts := now.Add(-3 * 24 * time.Hour)
	first := FormatLastActivity(&ts, now)
	for i := 0; i < 10; i++ {
		if got := FormatLastActivity(&ts, now); got != first {
			t.Fatalf("label changed between calls: %q vs %q", got, first)
		}
	}
}

func TestDirectoryRefresh(t *testing.T) {
	now := time.Date(2026, time.August, 29, 14, 30, 0, 0, time.UTC)
	session := newTestSession(t, func(writer http.ResponseWriter, request *http.Request) {
		requireBearer(t, request)
		json.NewEncoder(writer).Encode(map[string]any{
			"conversations": []map[string]any{
				{
					"conversation_id": 1,
					"other_user_name": "Bruno",
					"last_message_at": now.Add(-10 * time.Minute).Format(time.RFC3339),
					"unread_count":    2,
				},
				{
					"conversation_id": 2,
					"other_user_name": "Carla",
				},
			},
			"total_count":  2,
			"unread_total": 2,
		})
	})

	directory, err := NewDirectory(DirectoryConfig{
		Session: session,
		Clock:   clock.Fake(now),
	})
	if err != nil {
		t.Fatalf("NewDirectory failed: %v", err)
	}
	if err := directory.Refresh(context.Background(), Pagination{}); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	entries := directory.Entries()
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].ActivityLabel != "14:20" {
		t.Errorf("first label = %q, want 14:20", entries[0].ActivityLabel)
	}
	if entries[1].ActivityLabel != NoMessagesLabel {
		t.Errorf("second label = %q, want %q", entries[1].ActivityLabel, NoMessagesLabel)
	}
	if directory.UnreadTotal() != 2 {
		t.Errorf("unread total = %d, want 2", directory.UnreadTotal())
	}
}

func TestDirectoryRefreshKeepsSnapshotOnFailure(t *testing.T) {
	now := time.Date(2026, time.August, 29, 14, 30, 0, 0, time.UTC)
	failing := false
	session := newTestSession(t, func(writer http.ResponseWriter, request *http.Request) {
		if failing {
			writer.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(writer).Encode(map[string]any{
			"conversations": []map[string]any{{"conversation_id": 1}},
			"total_count":   1,
		})
	})

	directory, err := NewDirectory(DirectoryConfig{Session: session, Clock: clock.Fake(now)})
	if err != nil {
		t.Fatalf("NewDirectory failed: %v", err)
	}
	if err := directory.Refresh(context.Background(), Pagination{}); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	failing = true
	if err := directory.Refresh(context.Background(), Pagination{}); err == nil {
		t.Fatal("expected error from failing refresh")
	}
	if len(directory.Entries()) != 1 {
		t.Errorf("snapshot lost after failed refresh: %+v", directory.Entries())
	}
}
