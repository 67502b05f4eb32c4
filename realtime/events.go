// Copyright 2026 The TimeNest Authors
// SPDX-License-Identifier: Apache-2.0

package realtime

import "encoding/json"

// Wire event names. Outbound events address a conversation; inbound
// events carry their payload in the envelope's data field.
const (
	eventJoinConversation  = "join_conversation"
	eventLeaveConversation = "leave_conversation"
	eventTypingStart       = "typing_start"
	eventTypingStop        = "typing_stop"
	eventNewMessage        = "new_message"
	eventUserStatus        = "user_status"
)

// envelope is the frame format shared by both transports.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// authPayload is the first frame sent on a new connection. The token
// travels in the payload because the fallback transport cannot carry
// custom headers on every hop.
type authPayload struct {
	Token string `json:"token"`
}

// conversationRef addresses an outbound signal to one conversation.
type conversationRef struct {
	ConversationID int64 `json:"conversation_id"`
}

// mustJSON marshals a payload that cannot fail (plain structs of
// scalars).
func mustJSON(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}

// TypingEvent is an inbound typing indicator.
type TypingEvent struct {
	ConversationID int64 `json:"conversation_id"`
	UserID         int64 `json:"user_id"`
}

// UserStatusEvent reports a user going online or offline.
type UserStatusEvent struct {
	UserID int64  `json:"user_id"`
	Status string `json:"status"`
}
