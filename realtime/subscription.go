// Copyright 2026 The TimeNest Authors
// SPDX-License-Identifier: Apache-2.0

package realtime

import "sync"

// Subscription is a scoped handle for one event listener. Cancel is
// idempotent and safe to call from any goroutine, including after
// RemoveAll has already dropped the listener.
type Subscription struct {
	cancel func()
	once   sync.Once
}

// Cancel removes the listener. No new deliveries start after Cancel
// returns; one already dispatched concurrently may still arrive.
func (sub *Subscription) Cancel() { sub.once.Do(sub.cancel) }
