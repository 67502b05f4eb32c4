// Copyright 2026 The TimeNest Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import "sync"

// Subscription is a scoped handle for a Watch registration. Cancel is
// idempotent and safe to call from any goroutine.
type Subscription struct {
	cancel func()
	once   sync.Once
}

// Cancel removes the watcher. No new callbacks start after Cancel
// returns; one already dispatched concurrently may still arrive.
func (sub *Subscription) Cancel() { sub.once.Do(sub.cancel) }
