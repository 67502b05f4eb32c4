// Copyright 2026 The TimeNest Authors
// SPDX-License-Identifier: Apache-2.0

// Package httputil provides bounded HTTP response body helpers for the
// chat API client. All JSON response reads are capped at
// MaxResponseSize to prevent unbounded memory allocation from a
// misbehaving server. These helpers are for JSON API responses, not
// streaming bodies, which should be read incrementally.
package httputil

import (
	"encoding/json"
	"fmt"
	"io"
)

// MaxResponseSize is the bound on JSON API response body reads: 64 MB.
// Legitimate chat API responses are orders of magnitude smaller; the
// limit is generous so that it never interferes with normal operation.
const MaxResponseSize int64 = 64 << 20

// ReadResponse reads a JSON API response body up to MaxResponseSize
// bytes. Use instead of io.ReadAll when reading HTTP response bodies.
func ReadResponse(body io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(body, MaxResponseSize))
}

// DecodeResponse reads a JSON API response body (up to MaxResponseSize
// bytes) and JSON-decodes it into v. Replaces the common
// io.ReadAll + json.Unmarshal pattern.
func DecodeResponse(body io.Reader, v any) error {
	data, err := io.ReadAll(io.LimitReader(body, MaxResponseSize))
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	return json.Unmarshal(data, v)
}
