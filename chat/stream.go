// Copyright 2026 The TimeNest Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/timenest/timenest-go/lib/clock"
)

// StreamConfig holds configuration for creating a Stream.
type StreamConfig struct {
	// Session performs the authenticated history and send requests.
	Session *Session
	// ConversationID scopes the stream to one conversation.
	ConversationID int64
	// Clock timestamps optimistic entries. If nil, the real clock is
	// used.
	Clock clock.Clock
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Stream is one conversation's live message timeline. History fetches,
// send acknowledgments, and push events all merge into the same
// Timeline, reconciled by server-assigned message id. Safe for
// concurrent use.
type Stream struct {
	session        *Session
	conversationID int64
	clock          clock.Clock
	logger         *slog.Logger
	timeline       *Timeline

	mu       sync.Mutex
	watchers map[*Subscription]func([]Message)
}

// NewStream creates a Stream for one conversation.
func NewStream(config StreamConfig) (*Stream, error) {
	if config.Session == nil {
		return nil, fmt.Errorf("chat: Session is required")
	}
	if config.ConversationID == 0 {
		return nil, fmt.Errorf("chat: ConversationID is required")
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Stream{
		session:        config.Session,
		conversationID: config.ConversationID,
		clock:          clk,
		logger:         logger.With("conversation", config.ConversationID),
		timeline:       NewTimeline(),
		watchers:       make(map[*Subscription]func([]Message)),
	}, nil
}

// ConversationID returns the conversation this stream follows.
func (s *Stream) ConversationID() int64 {
	return s.conversationID
}

// LoadHistory fetches a page of the conversation's history and merges
// it into the timeline. Server order is not trusted; the merge
// re-sorts by timestamp.
func (s *Stream) LoadHistory(ctx context.Context, page Pagination) error {
	messages, err := s.session.Messages(ctx, s.conversationID, page)
	if err != nil {
		return err
	}
	s.timeline.UpsertAll(messages)
	s.notify()
	return nil
}

// Send posts a message. An optimistic entry appears in the timeline
// immediately and is replaced by the server's copy on success, or
// removed on failure. The push echo for the same message never
// produces a duplicate: both paths reconcile by server-assigned id.
func (s *Stream) Send(ctx context.Context, content string, messageType MessageType) (*Message, error) {
	if messageType == "" {
		messageType = MessageText
	}

	localID := uuid.NewString()
	s.timeline.Upsert(Message{
		ConversationID: s.conversationID,
		SenderID:       s.session.UserID(),
		Content:        content,
		Type:           messageType,
		Status:         StatusSent,
		CreatedAt:      s.clock.Now(),
		LocalID:        localID,
	})
	s.notify()

	message, err := s.session.SendMessage(ctx, SendMessageRequest{
		ConversationID: s.conversationID,
		Content:        content,
		Type:           messageType,
	})
	if err != nil {
		s.timeline.Discard(localID)
		s.notify()
		return nil, err
	}

	s.timeline.Resolve(localID, *message)
	s.notify()
	return message, nil
}

// HandlePush merges a pushed message into the timeline. Messages for
// other conversations are ignored. Wired to the connection manager's
// new-message subscription.
func (s *Stream) HandlePush(message Message) {
	if message.ConversationID != s.conversationID {
		return
	}
	if message.MessageID == 0 {
		s.logger.Warn("dropping pushed message without id")
		return
	}
	s.timeline.Upsert(message)
	s.notify()
}

// Messages returns the current timeline, ordered by timestamp. The
// returned slice is a copy.
func (s *Stream) Messages() []Message {
	return s.timeline.Messages()
}

// Watch registers fn to be called with a timeline snapshot after
// every change. Cancel the returned subscription to stop.
func (s *Stream) Watch(fn func([]Message)) *Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub := &Subscription{}
	sub.cancel = func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.watchers, sub)
	}
	s.watchers[sub] = fn
	return sub
}

func (s *Stream) notify() {
	s.mu.Lock()
	watchers := make([]func([]Message), 0, len(s.watchers))
	for _, fn := range s.watchers {
		watchers = append(watchers, fn)
	}
	s.mu.Unlock()
	if len(watchers) == 0 {
		return
	}
	snapshot := s.timeline.Messages()
	for _, fn := range watchers {
		fn(snapshot)
	}
}
