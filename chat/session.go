// Copyright 2026 The TimeNest Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// Session is an authenticated view of the chat service on behalf of
// one user. Sessions share the parent Client's HTTP transport and are
// safe for concurrent use.
type Session struct {
	client      *Client
	accessToken string
	userID      int64
}

// UserID returns the authenticated user's identifier.
func (s *Session) UserID() int64 {
	return s.userID
}

// ListConversations returns the user's conversations, ordered by the
// server most-recent-first. Pagination zero values use server
// defaults.
func (s *Session) ListConversations(ctx context.Context, page Pagination) (*ConversationList, error) {
	if s.accessToken == "" {
		return nil, ErrNoCredential
	}

	query := url.Values{}
	if page.Skip > 0 {
		query.Set("skip", strconv.Itoa(page.Skip))
	}
	if page.Limit > 0 {
		query.Set("limit", strconv.Itoa(page.Limit))
	}

	body, err := s.client.doRequest(ctx, http.MethodGet, "/conversations", s.accessToken, nil, query)
	if err != nil {
		return nil, fmt.Errorf("chat: list conversations failed: %w", err)
	}

	var list ConversationList
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("chat: failed to parse conversation list: %w", err)
	}
	return &list, nil
}

// CreateConversation returns the conversation with a counterpart about
// a marketplace context, creating it on first contact. The same
// arguments always resolve to the same conversation.
func (s *Session) CreateConversation(ctx context.Context, request CreateConversationRequest) (*Conversation, error) {
	if s.accessToken == "" {
		return nil, ErrNoCredential
	}
	if request.CounterpartID == 0 {
		return nil, fmt.Errorf("chat: counterpart user is required")
	}
	if request.Type == "" {
		request.Type = ConversationGeneral
	}

	body, err := s.client.doRequest(ctx, http.MethodPost, "/conversations", s.accessToken, request)
	if err != nil {
		return nil, fmt.Errorf("chat: create conversation failed: %w", err)
	}

	var conversation Conversation
	if err := json.Unmarshal(body, &conversation); err != nil {
		return nil, fmt.Errorf("chat: failed to parse conversation: %w", err)
	}
	return &conversation, nil
}

// Messages returns a page of a conversation's history, oldest first.
func (s *Session) Messages(ctx context.Context, conversationID int64, page Pagination) ([]Message, error) {
	if s.accessToken == "" {
		return nil, ErrNoCredential
	}

	query := url.Values{}
	if page.Skip > 0 {
		query.Set("skip", strconv.Itoa(page.Skip))
	}
	if page.Limit > 0 {
		query.Set("limit", strconv.Itoa(page.Limit))
	}

	path := fmt.Sprintf("/conversations/%d/messages", conversationID)
	body, err := s.client.doRequest(ctx, http.MethodGet, path, s.accessToken, nil, query)
	if err != nil {
		return nil, fmt.Errorf("chat: fetch messages failed: %w", err)
	}

	var messages []Message
	if err := json.Unmarshal(body, &messages); err != nil {
		return nil, fmt.Errorf("chat: failed to parse messages: %w", err)
	}
	return messages, nil
}

// SendMessage posts a message and returns the server's copy with its
// assigned identity and timestamp.
func (s *Session) SendMessage(ctx context.Context, request SendMessageRequest) (*Message, error) {
	if s.accessToken == "" {
		return nil, ErrNoCredential
	}
	if request.Content == "" {
		return nil, fmt.Errorf("chat: message content is required")
	}
	if request.Type == "" {
		request.Type = MessageText
	}

	body, err := s.client.doRequest(ctx, http.MethodPost, "/messages", s.accessToken, request)
	if err != nil {
		return nil, fmt.Errorf("chat: send message failed: %w", err)
	}

	var message Message
	if err := json.Unmarshal(body, &message); err != nil {
		return nil, fmt.Errorf("chat: failed to parse sent message: %w", err)
	}
	return &message, nil
}

// MarkRead marks all of a conversation's messages as read for this
// user.
func (s *Session) MarkRead(ctx context.Context, conversationID int64) error {
	if s.accessToken == "" {
		return ErrNoCredential
	}

	path := fmt.Sprintf("/conversations/%d/read", conversationID)
	if _, err := s.client.doRequest(ctx, http.MethodPost, path, s.accessToken, nil); err != nil {
		return fmt.Errorf("chat: mark read failed: %w", err)
	}
	return nil
}
