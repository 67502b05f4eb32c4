// Copyright 2026 The TimeNest Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/timenest/timenest-go/lib/clock"
)

// NoMessagesLabel is displayed for conversations with no messages yet.
const NoMessagesLabel = "No messages yet"

// DirectoryEntry is a conversation projected into display-ready form.
type DirectoryEntry struct {
	Conversation

	// ActivityLabel is the bucketed last-activity display string.
	ActivityLabel string
}

// DirectoryConfig holds configuration for creating a Directory.
type DirectoryConfig struct {
	// Session performs the authenticated list requests.
	Session *Session
	// Clock supplies the "now" used for activity bucketing. If nil,
	// the real clock is used.
	Clock clock.Clock
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Directory maintains a display-ready snapshot of the user's
// conversation list. Refresh replaces the snapshot; reads return the
// most recent one. Safe for concurrent use.
type Directory struct {
	session *Session
	clock   clock.Clock
	logger  *slog.Logger

	mu      sync.Mutex
	entries []DirectoryEntry
	unread  int
}

// NewDirectory creates a Directory over the given session.
func NewDirectory(config DirectoryConfig) (*Directory, error) {
	if config.Session == nil {
		return nil, fmt.Errorf("chat: Session is required")
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Directory{
		session: config.Session,
		clock:   clk,
		logger:  logger,
	}, nil
}

// Refresh fetches the conversation list and replaces the snapshot.
// The previous snapshot is kept on failure.
func (d *Directory) Refresh(ctx context.Context, page Pagination) error {
	list, err := d.session.ListConversations(ctx, page)
	if err != nil {
		return err
	}

	now := d.clock.Now()
	entries := make([]DirectoryEntry, len(list.Conversations))
	for i, conversation := range list.Conversations {
		entries[i] = DirectoryEntry{
			Conversation:  conversation,
			ActivityLabel: FormatLastActivity(conversation.LastMessageAt, now),
		}
	}

	d.mu.Lock()
	d.entries = entries
	d.unread = list.UnreadTotal
	d.mu.Unlock()

	d.logger.Debug("conversation directory refreshed",
		"conversations", len(entries), "unread", list.UnreadTotal)
	return nil
}

// Entries returns the current snapshot. The returned slice is a copy.
func (d *Directory) Entries() []DirectoryEntry {
	d.mu.Lock()
	defer d.mu.Unlock()
	entries := make([]DirectoryEntry, len(d.entries))
	copy(entries, d.entries)
	return entries
}

// UnreadTotal returns the unread message count across all
// conversations as of the last refresh.
func (d *Directory) UnreadTotal() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.unread
}

// FormatLastActivity buckets a last-activity instant for display:
// same calendar day as now renders as zero-padded 24-hour "HH:MM",
// within the previous six days as the abbreviated weekday, and
// anything older as abbreviated month and day. A nil timestamp means
// the conversation has no messages yet. Deterministic for a fixed
// now; comparisons use now's location.
func FormatLastActivity(lastMessageAt *time.Time, now time.Time) string {
	if lastMessageAt == nil || lastMessageAt.IsZero() {
		return NoMessagesLabel
	}
	ts := lastMessageAt.In(now.Location())
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if !ts.Before(dayStart) {
		return ts.Format("15:04")
	}
	if !ts.Before(dayStart.AddDate(0, 0, -6)) {
		return ts.Format("Mon")
	}
	return ts.Format("Jan 2")
}
