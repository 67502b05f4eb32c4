// Copyright 2026 The TimeNest Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import "time"

// ConversationType scopes a conversation to its marketplace context.
type ConversationType string

const (
	ConversationService ConversationType = "service"
	ConversationRequest ConversationType = "request"
	ConversationGeneral ConversationType = "general"
)

// MessageType classifies message content.
type MessageType string

const (
	MessageText   MessageType = "text"
	MessageImage  MessageType = "image"
	MessageFile   MessageType = "file"
	MessageSystem MessageType = "system"
)

// MessageStatus is the server-tracked delivery state.
type MessageStatus string

const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
)

// Profile is the account information returned at login and attached to
// conversation counterparts.
type Profile struct {
	UserID    int64  `json:"user_id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// AuthResponse is returned by Client.Login.
type AuthResponse struct {
	AccessToken string  `json:"access_token"`
	TokenType   string  `json:"token_type"`
	User        Profile `json:"user"`
}

// Conversation is a two-party thread summary as returned by the
// conversation list endpoint. Exactly one counterpart per conversation.
type Conversation struct {
	ConversationID    int64            `json:"conversation_id"`
	CounterpartID     int64            `json:"other_user_id"`
	CounterpartName   string           `json:"other_user_name"`
	CounterpartAvatar string           `json:"other_user_avatar,omitempty"`
	LastMessage       string           `json:"last_message_content,omitempty"`
	LastMessageAt     *time.Time       `json:"last_message_at,omitempty"`
	UnreadCount       int              `json:"unread_count"`
	Type              ConversationType `json:"conversation_type"`
	ContextID         int64            `json:"context_id,omitempty"`
	ContextTitle      string           `json:"context_title,omitempty"`
}

// ConversationList is the conversation list endpoint's response shape.
type ConversationList struct {
	Conversations []Conversation `json:"conversations"`
	TotalCount    int            `json:"total_count"`
	UnreadTotal   int            `json:"unread_total"`
}

// Location is an optional geotag attached to a message.
type Location struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
	Address   string  `json:"address,omitempty"`
}

// Message is a single chat message. Immutable once delivered except
// for Status and Edited transitions. MessageID is unique and stable
// once assigned by the server; LocalID is a client-side placeholder
// key for optimistic entries awaiting their server identity and never
// crosses the wire.
type Message struct {
	MessageID      int64         `json:"message_id"`
	ConversationID int64         `json:"conversation_id"`
	SenderID       int64         `json:"sender_id"`
	Content        string        `json:"content"`
	Type           MessageType   `json:"message_type"`
	Status         MessageStatus `json:"status"`
	Edited         bool          `json:"is_edited"`
	CreatedAt      time.Time     `json:"created_at"`
	FileURL        string        `json:"file_url,omitempty"`
	FileName       string        `json:"file_name,omitempty"`
	FileSize       int64         `json:"file_size,omitempty"`
	Location       *Location     `json:"location,omitempty"`

	LocalID string `json:"-"`
}

// Pagination bounds list requests. Zero values mean server defaults.
type Pagination struct {
	Skip  int
	Limit int
}

// CreateConversationRequest asks the server for the conversation with
// a counterpart about a context, creating it on first contact.
// Create-or-get: identical arguments always name the same
// conversation.
type CreateConversationRequest struct {
	CounterpartID int64            `json:"user2_id"`
	Type          ConversationType `json:"conversation_type"`
	ContextID     int64            `json:"context_id,omitempty"`
	ContextTitle  string           `json:"context_title,omitempty"`
}

// SendMessageRequest is the body of the send endpoint.
type SendMessageRequest struct {
	ConversationID int64       `json:"conversation_id"`
	Content        string      `json:"content"`
	Type           MessageType `json:"message_type"`
}
