// Copyright 2026 The TimeNest Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"sort"
	"sync"
)

// Timeline is one conversation's in-memory message history. Both the
// request/response path (history fetch, send acknowledgment) and the
// push path (new-message events) merge through the same idempotent
// upsert, so interleaved deliveries of the same message collapse to a
// single entry. Entries stay sorted by (timestamp, message id) after
// every mutation. Safe for concurrent use.
type Timeline struct {
	mu sync.Mutex

	// messages is the ordered timeline. byServer indexes confirmed
	// entries by server-assigned id; byLocal indexes optimistic
	// entries awaiting their server identity.
	messages []Message
	byServer map[int64]int
	byLocal  map[string]int
}

// NewTimeline creates an empty timeline.
func NewTimeline() *Timeline {
	return &Timeline{
		byServer: make(map[int64]int),
		byLocal:  make(map[string]int),
	}
}

// Upsert merges a confirmed message into the timeline. A message id
// already present updates that entry in place; a message carrying the
// local id of an optimistic entry replaces it. Safe to call with the
// same message any number of times.
func (t *Timeline) Upsert(message Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.upsertLocked(message)
}

// UpsertAll merges a batch of confirmed messages, then re-sorts once.
func (t *Timeline) UpsertAll(messages []Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, message := range messages {
		t.upsertLocked(message)
	}
}

func (t *Timeline) upsertLocked(message Message) {
	if message.MessageID != 0 {
		if index, ok := t.byServer[message.MessageID]; ok {
			local := t.messages[index].LocalID
			t.messages[index] = message
			t.messages[index].LocalID = ""
			if local != "" {
				delete(t.byLocal, local)
			}
			// The push echo may have arrived first without the local
			// id, leaving the optimistic entry stranded alongside the
			// confirmed one. Drop it now that the id mapping is known.
			if message.LocalID != "" && message.LocalID != local {
				if stale, ok := t.byLocal[message.LocalID]; ok {
					delete(t.byLocal, message.LocalID)
					t.messages = append(t.messages[:stale], t.messages[stale+1:]...)
				}
			}
			t.sortLocked()
			return
		}
		// The push echo for a sent message can land before the send
		// response. Whichever arrives second finds the optimistic
		// entry already replaced, or replaces it here.
		if message.LocalID != "" {
			if index, ok := t.byLocal[message.LocalID]; ok {
				delete(t.byLocal, message.LocalID)
				t.messages[index] = message
				t.messages[index].LocalID = ""
				t.byServer[message.MessageID] = index
				t.sortLocked()
				return
			}
		}
		message.LocalID = ""
		t.messages = append(t.messages, message)
		t.byServer[message.MessageID] = len(t.messages) - 1
		t.sortLocked()
		return
	}

	if message.LocalID == "" {
		return
	}
	if index, ok := t.byLocal[message.LocalID]; ok {
		t.messages[index] = message
		t.sortLocked()
		return
	}
	t.messages = append(t.messages, message)
	t.byLocal[message.LocalID] = len(t.messages) - 1
	t.sortLocked()
}

// Resolve replaces the optimistic entry identified by localID with
// the server's confirmed copy. A missing local entry (already
// replaced by the push echo) degrades to a plain upsert of the
// confirmed message.
func (t *Timeline) Resolve(localID string, message Message) {
	message.LocalID = localID
	t.Upsert(message)
}

// Discard removes the optimistic entry identified by localID, if
// present. Used when a send fails.
func (t *Timeline) Discard(localID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	index, ok := t.byLocal[localID]
	if !ok {
		return
	}
	delete(t.byLocal, localID)
	t.messages = append(t.messages[:index], t.messages[index+1:]...)
	t.reindexLocked()
}

// Messages returns the ordered timeline. The returned slice is a copy.
func (t *Timeline) Messages() []Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	messages := make([]Message, len(t.messages))
	copy(messages, t.messages)
	return messages
}

// Len returns the number of entries, optimistic ones included.
func (t *Timeline) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.messages)
}

// sortLocked re-asserts (timestamp, message id) order. Push delivery
// order is not trusted to match timestamp order, so every merge
// re-sorts. The sort is stable so optimistic entries with equal
// timestamps keep their insertion order.
func (t *Timeline) sortLocked() {
	sort.SliceStable(t.messages, func(i, j int) bool {
		if !t.messages[i].CreatedAt.Equal(t.messages[j].CreatedAt) {
			return t.messages[i].CreatedAt.Before(t.messages[j].CreatedAt)
		}
		return t.messages[i].MessageID < t.messages[j].MessageID
	})
	t.reindexLocked()
}

func (t *Timeline) reindexLocked() {
	for index, message := range t.messages {
		if message.MessageID != 0 {
			t.byServer[message.MessageID] = index
		} else if message.LocalID != "" {
			t.byLocal[message.LocalID] = index
		}
	}
}
