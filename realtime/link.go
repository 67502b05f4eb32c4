// Copyright 2026 The TimeNest Authors
// SPDX-License-Identifier: Apache-2.0

package realtime

// Transport identifies which connection mode a link uses.
type Transport string

const (
	// TransportWebSocket is the preferred low-latency mode.
	TransportWebSocket Transport = "websocket"
	// TransportLongPoll is the more-compatible fallback mode.
	TransportLongPoll Transport = "longpoll"
)

// link is one live connection to the realtime endpoint. ReadEvent
// blocks until an event arrives or the link fails; WriteEvent and
// Close are safe to call concurrently with a blocked read, and Close
// unblocks it with an error.
type link interface {
	ReadEvent() (*envelope, error)
	WriteEvent(env envelope) error
	Close() error
	Transport() Transport
}
