// Copyright 2026 The TimeNest Authors
// SPDX-License-Identifier: Apache-2.0

// Package kvstore is a small durable key-value store over SQLite. The
// session store persists the authenticated flag and the serialized
// credential blob through it so a login survives process restarts.
//
// The store is deliberately minimal: one table, byte-slice values,
// atomic multi-key writes and deletes. There is no expiry, no
// iteration, and no schema beyond the kv table; components needing
// structured storage should own their own database, not grow this one.
package kvstore
