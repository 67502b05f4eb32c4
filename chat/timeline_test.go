// Copyright 2026 The TimeNest Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"testing"
	"time"
)

func testMessage(id int64, minute int) Message {
	return Message{
		MessageID:      id,
		ConversationID: 42,
		SenderID:       9,
		Content:        "m",
		Type:           MessageText,
		Status:         StatusSent,
		CreatedAt:      time.Date(2026, 8, 30, 10, minute, 0, 0, time.UTC),
	}
}

// requireOrdered fails unless the timeline is non-decreasing in
// timestamp with unique message ids.
func requireOrdered(t *testing.T, messages []Message) {
	t.Helper()
	seen := make(map[int64]bool)
	for i, message := range messages {
		if message.MessageID != 0 {
			if seen[message.MessageID] {
				t.Fatalf("duplicate message id %d", message.MessageID)
			}
			seen[message.MessageID] = true
		}
		if i > 0 && messages[i].CreatedAt.Before(messages[i-1].CreatedAt) {
			t.Fatalf("timeline out of order at %d: %v before %v",
				i, messages[i].CreatedAt, messages[i-1].CreatedAt)
		}
	}
}

func TestTimelineUpsertIdempotent(t *testing.T) {
	timeline := NewTimeline()
	message := testMessage(101, 0)
	for i := 0; i < 3; i++ {
		timeline.Upsert(message)
	}
	if timeline.Len() != 1 {
		t.Fatalf("len = %d, want 1", timeline.Len())
	}
}

func TestTimelineUpsertUpdatesInPlace(t *testing.T) {
	timeline := NewTimeline()
	message := testMessage(101, 0)
	timeline.Upsert(message)

	message.Status = StatusRead
	message.Edited = true
	message.Content = "edited"
	timeline.Upsert(message)

	messages := timeline.Messages()
	if len(messages) != 1 {
		t.Fatalf("len = %d, want 1", len(messages))
	}
	if messages[0].Status != StatusRead || !messages[0].Edited || messages[0].Content != "edited" {
		t.Errorf("update not applied: %+v", messages[0])
	}
}

func TestTimelineSortsByTimestamp(t *testing.T) {
	timeline := NewTimeline()
	// Push delivery order does not match timestamp order.
	timeline.Upsert(testMessage(103, 5))
	timeline.Upsert(testMessage(101, 1))
	timeline.Upsert(testMessage(102, 3))

	messages := timeline.Messages()
	requireOrdered(t, messages)
	if messages[0].MessageID != 101 || messages[2].MessageID != 103 {
		t.Errorf("unexpected order: %v", messages)
	}
}

func TestTimelineEqualTimestampsOrderByID(t *testing.T) {
	timeline := NewTimeline()
	timeline.Upsert(testMessage(102, 1))
	timeline.Upsert(testMessage(101, 1))

	messages := timeline.Messages()
	if messages[0].MessageID != 101 || messages[1].MessageID != 102 {
		t.Errorf("unexpected order for equal timestamps: %v", messages)
	}
}

func TestTimelineResolveReplacesOptimistic(t *testing.T) {
	timeline := NewTimeline()
	timeline.Upsert(Message{
		ConversationID: 42,
		Content:        "on my way",
		CreatedAt:      time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC),
		LocalID:        "local-1",
	})
	if timeline.Len() != 1 {
		t.Fatalf("len = %d, want 1", timeline.Len())
	}

	timeline.Resolve("local-1", testMessage(101, 0))

	messages := timeline.Messages()
	if len(messages) != 1 {
		t.Fatalf("len = %d, want 1", len(messages))
	}
	if messages[0].MessageID != 101 || messages[0].LocalID != "" {
		t.Errorf("optimistic entry not replaced: %+v", messages[0])
	}
}

func TestTimelinePushEchoBeforeResolve(t *testing.T) {
	timeline := NewTimeline()
	timeline.Upsert(Message{
		ConversationID: 42,
		Content:        "on my way",
		CreatedAt:      time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC),
		LocalID:        "local-1",
	})

	// Push echo lands first, without the local id.
	timeline.Upsert(testMessage(101, 0))
	if timeline.Len() != 2 {
		t.Fatalf("len before resolve = %d, want 2", timeline.Len())
	}

	// The send response reconciles the stranded optimistic entry.
	timeline.Resolve("local-1", testMessage(101, 0))

	messages := timeline.Messages()
	if len(messages) != 1 {
		t.Fatalf("len = %d, want 1: %+v", len(messages), messages)
	}
	if messages[0].MessageID != 101 {
		t.Errorf("unexpected survivor: %+v", messages[0])
	}
	requireOrdered(t, messages)
}

func TestTimelineResolveBeforePushEcho(t *testing.T) {
	timeline := NewTimeline()
	timeline.Upsert(Message{
		ConversationID: 42,
		Content:        "on my way",
		CreatedAt:      time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC),
		LocalID:        "local-1",
	})
	timeline.Resolve("local-1", testMessage(101, 0))

	// Push echo arrives second; same id, no duplicate.
	timeline.Upsert(testMessage(101, 0))

	if timeline.Len() != 1 {
		t.Fatalf("len = %d, want 1", timeline.Len())
	}
}

func TestTimelineDiscard(t *testing.T) {
	timeline := NewTimeline()
	timeline.Upsert(testMessage(101, 0))
	timeline.Upsert(Message{
		ConversationID: 42,
		Content:        "failed send",
		CreatedAt:      time.Date(2026, 8, 30, 10, 1, 0, 0, time.UTC),
		LocalID:        "local-1",
	})
	timeline.Upsert(testMessage(102, 2))

	timeline.Discard("local-1")

	messages := timeline.Messages()
	if len(messages) != 2 {
		t.Fatalf("len = %d, want 2", len(messages))
	}
	for _, message := range messages {
		if message.LocalID != "" {
			t.Errorf("optimistic entry survived discard: %+v", message)
		}
	}
	requireOrdered(t, messages)

	// Discarding again is a no-op.
	timeline.Discard("local-1")
	if timeline.Len() != 2 {
		t.Errorf("len after second discard = %d, want 2", timeline.Len())
	}
}

func TestTimelineUpsertAllMergesHistory(t *testing.T) {
	timeline := NewTimeline()
	timeline.Upsert(testMessage(102, 3))

	timeline.UpsertAll([]Message{
		testMessage(101, 1),
		testMessage(102, 3),
		testMessage(103, 5),
	})

	messages := timeline.Messages()
	if len(messages) != 3 {
		t.Fatalf("len = %d, want 3", len(messages))
	}
	requireOrdered(t, messages)
}

func TestTimelineInterleavedMergeInvariant(t *testing.T) {
	timeline := NewTimeline()
	// Interleave history pages, push events, and a send round trip;
	// the invariant must hold after every step.
	steps := []func(){
		func() { timeline.UpsertAll([]Message{testMessage(101, 1), testMessage(103, 5)}) },
		func() { timeline.Upsert(testMessage(105, 9)) },
		func() {
			timeline.Upsert(Message{ConversationID: 42, Content: "x",
				CreatedAt: time.Date(2026, 8, 30, 10, 10, 0, 0, time.UTC), LocalID: "local-1"})
		},
		func() { timeline.Upsert(testMessage(104, 7)) },
		func() { timeline.Resolve("local-1", testMessage(106, 10)) },
		func() { timeline.UpsertAll([]Message{testMessage(102, 3), testMessage(103, 5)}) },
		func() { timeline.Upsert(testMessage(106, 10)) },
	}
	for i, step := range steps {
		step()
		messages := timeline.Messages()
		pending := 0
		for _, message := range messages {
			if message.MessageID == 0 {
				pending++
			}
		}
		if pending > 1 {
			t.Fatalf("step %d: %d pending entries", i, pending)
		}
		requireOrdered(t, messages)
	}
	if timeline.Len() != 6 {
		t.Fatalf("final len = %d, want 6", timeline.Len())
	}
}
