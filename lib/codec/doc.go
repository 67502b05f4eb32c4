// Copyright 2026 The TimeNest Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides deterministic CBOR encoding for locally
// persisted state, principally the session store's credential and
// profile blob. CBOR over JSON for the at-rest format: integer struct
// keys keep the blob compact and the deterministic encoding makes
// "did anything change" a byte comparison.
package codec
