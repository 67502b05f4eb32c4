// Copyright 2026 The TimeNest Authors
// SPDX-License-Identifier: Apache-2.0

package credential

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// ErrMalformed is returned by Parse when the token cannot be decoded
// or carries no expiry. Callers treat it identically to expiry: a
// credential we cannot read is a credential we do not trust.
var ErrMalformed = errors.New("credential: malformed token")

// Claims is the decoded payload of a bearer token. The client never
// verifies the signature (only the server can do that); it reads the
// embedded expiry so that silent expiration becomes a local, observable
// transition with no network round-trip.
type Claims struct {
	// Subject is the account identity the token was issued to,
	// typically the login email.
	Subject string

	// UserID is the numeric account ID embedded by the server.
	UserID int64

	// ExpiresAt is the embedded expiry instant.
	ExpiresAt time.Time
}

// tokenClaims is the JWT payload shape issued by the TimeNest backend.
type tokenClaims struct {
	UserID int64 `json:"user_id"`
	jwt.RegisteredClaims
}

// Parse decodes the token payload without signature verification and
// returns its claims. Returns an error wrapping ErrMalformed when the
// token is not a decodable JWT or has no expiry claim.
func Parse(token string) (*Claims, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: empty token", ErrMalformed)
	}

	var decoded tokenClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &decoded); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if decoded.ExpiresAt == nil {
		return nil, fmt.Errorf("%w: no expiry claim", ErrMalformed)
	}

	return &Claims{
		Subject:   decoded.Subject,
		UserID:    decoded.UserID,
		ExpiresAt: decoded.ExpiresAt.Time,
	}, nil
}

// Status classifies a token at a point in time.
type Status int

const (
	// Valid means the token decoded and its expiry is in the future.
	Valid Status = iota
	// Expired means the token decoded but its expiry is at or before
	// the reference time.
	Expired
	// Malformed means the token could not be decoded. Treated like
	// Expired everywhere that matters: fail closed.
	Malformed
)

func (s Status) String() string {
	switch s {
	case Valid:
		return "valid"
	case Expired:
		return "expired"
	case Malformed:
		return "malformed"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Check classifies token against now. An absent or undecodable token
// is Malformed; a decodable token whose expiry is at or before now is
// Expired.
func Check(token string, now time.Time) Status {
	claims, err := Parse(token)
	if err != nil {
		return Malformed
	}
	if !claims.ExpiresAt.After(now) {
		return Expired
	}
	return Valid
}

// IsExpired reports whether the token should be treated as expired at
// now. True for absent, malformed, and past-expiry tokens alike.
func IsExpired(token string, now time.Time) bool {
	return Check(token, now) != Valid
}
