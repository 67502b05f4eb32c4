// Copyright 2026 The TimeNest Authors
// SPDX-License-Identifier: Apache-2.0

// Package session owns the authenticated credential's lifecycle.
//
// [Store] holds the current credential, persists it through
// lib/kvstore so a login survives restarts, and broadcasts credential
// transitions to scoped [Subscription] watchers. [Monitor] sweeps the
// store on a fixed interval and forces a logout the first tick after
// the token's embedded expiry passes, turning silent expiration into
// the same observable transition as an explicit logout.
//
// The store fails closed on restore: a persisted blob that is
// unreadable, inconsistent, expired, or malformed is discarded and the
// process starts unauthenticated.
package session
