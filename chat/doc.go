// Copyright 2026 The TimeNest Authors
// SPDX-License-Identifier: Apache-2.0

// Package chat is the request/response client for the TimeNest chat
// service: login, conversation listing and creation, message history,
// and sending. A Client holds the base URL and HTTP transport; a
// Session authenticates requests with a bearer token on behalf of one
// user.
//
// On top of the raw endpoints, Directory projects the conversation
// list into display-ready form, and Stream maintains one
// conversation's live timeline, merging history fetches, send
// acknowledgments, and pushed messages idempotently by message id.
package chat
