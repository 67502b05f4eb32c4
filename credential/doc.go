// Copyright 2026 The TimeNest Authors
// SPDX-License-Identifier: Apache-2.0

// Package credential decodes the opaque bearer token issued by the
// TimeNest backend far enough to read its embedded expiry. It performs
// no signature verification (the token stays opaque for authorization
// purposes) and fails closed: anything that cannot be decoded is
// treated as expired.
package credential
