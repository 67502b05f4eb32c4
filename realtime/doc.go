// Copyright 2026 The TimeNest Authors
// SPDX-License-Identifier: Apache-2.0

// Package realtime maintains the live connection to the TimeNest
// realtime endpoint. The Manager reacts to credential changes from
// the session store: login opens exactly one connection, logout
// closes it. Connections prefer websocket, fall back to HTTP long
// polling, and upgrade back to websocket when it becomes available.
//
// Inbound events (new messages, typing indicators, user status) are
// delivered to scoped subscriptions with no replay. Outbound signals
// (join/leave conversation, typing start/stop) are fire-and-forget
// and drop silently while disconnected.
package realtime
