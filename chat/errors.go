// Copyright 2026 The TimeNest Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrNoCredential indicates a request that requires authentication was
// attempted without a token.
var ErrNoCredential = errors.New("no credential")

// FieldError is one entry of a validation failure, naming the request
// field that was rejected.
type FieldError struct {
	Path    string
	Message string
}

func (e FieldError) String() string {
	if e.Path == "" {
		return e.Message
	}
	return e.Path + ": " + e.Message
}

// APIError is a non-2xx response from the chat service. Detail carries
// the server's human-readable explanation; Fields is populated for
// validation failures that name individual request fields.
type APIError struct {
	StatusCode int
	Detail     string
	Fields     []FieldError
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("chat service: %s (status %d)", e.Detail, e.StatusCode)
	}
	return fmt.Sprintf("chat service: status %d", e.StatusCode)
}

// IsAuthError reports whether err is a credential problem: a missing
// token, or a 401/403 rejection from the service.
func IsAuthError(err error) bool {
	if errors.Is(err, ErrNoCredential) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden
	}
	return false
}

// errorBody is the wire shape of service errors. Detail is either a
// plain string or a list of {loc, msg} validation entries.
type errorBody struct {
	Detail json.RawMessage `json:"detail"`
}

type validationEntry struct {
	Loc []json.RawMessage `json:"loc"`
	Msg string            `json:"msg"`
}

// parseAPIError builds an APIError from a non-2xx response body. An
// undecodable body still yields an error carrying the status code.
func parseAPIError(statusCode int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: statusCode}
	var wire errorBody
	if err := json.Unmarshal(body, &wire); err != nil || len(wire.Detail) == 0 {
		apiErr.Detail = strings.TrimSpace(string(body))
		return apiErr
	}
	var detail string
	if err := json.Unmarshal(wire.Detail, &detail); err == nil {
		apiErr.Detail = detail
		return apiErr
	}
	var entries []validationEntry
	if err := json.Unmarshal(wire.Detail, &entries); err == nil {
		for _, entry := range entries {
			fe := FieldError{Path: joinLoc(entry.Loc), Message: entry.Msg}
			apiErr.Fields = append(apiErr.Fields, fe)
		}
		parts := make([]string, len(apiErr.Fields))
		for i, fe := range apiErr.Fields {
			parts[i] = fe.String()
		}
		apiErr.Detail = strings.Join(parts, "; ")
		return apiErr
	}
	apiErr.Detail = strings.TrimSpace(string(wire.Detail))
	return apiErr
}

// joinLoc renders a validation location path ("body", "content") as a
// dotted string. Segments may be strings or array indices.
func joinLoc(loc []json.RawMessage) string {
	parts := make([]string, 0, len(loc))
	for _, seg := range loc {
		var s string
		if err := json.Unmarshal(seg, &s); err == nil {
			parts = append(parts, s)
			continue
		}
		parts = append(parts, string(seg))
	}
	return strings.Join(parts, ".")
}
