// Copyright 2026 The TimeNest Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts time for deterministic tests.
//
// [Real] wraps the standard time package for production use. [Fake]
// returns a clock whose time only moves when [FakeClock.Advance] is
// called, letting tests assert timer-driven behavior (the session
// monitor's expiry sweep, the connection manager's reconnect backoff)
// without wall-clock sleeps.
package clock
