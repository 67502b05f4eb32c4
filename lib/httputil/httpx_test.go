// Copyright 2026 The TimeNest Authors
// SPDX-License-Identifier: Apache-2.0

package httputil

import (
	"strings"
	"testing"
)

func TestReadResponse(t *testing.T) {
	data, err := ReadResponse(strings.NewReader(`{"ok":true}`))
	if err != nil {
		t.Fatalf("ReadResponse: %v", err)
	}
	if string(data) != `{"ok":true}` {
		t.Errorf("body = %q", data)
	}
}

func TestDecodeResponse(t *testing.T) {
	var out struct {
		Detail string `json:"detail"`
	}
	if err := DecodeResponse(strings.NewReader(`{"detail":"not found"}`), &out); err != nil {
		t.Fatalf("DecodeResponse: %v", err)
	}
	if out.Detail != "not found" {
		t.Errorf("Detail = %q", out.Detail)
	}
}

func TestDecodeResponseInvalidJSON(t *testing.T) {
	var out map[string]any
	if err := DecodeResponse(strings.NewReader("<html>"), &out); err == nil {
		t.Fatal("expected error for non-JSON body")
	}
}
