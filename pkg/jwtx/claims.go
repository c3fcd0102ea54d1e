// Package jwtx decodes compact three-segment signed-claims tokens without
// verifying their signature. The gate never holds the issuer's keys; it only
// needs to inspect claims (expiry, subject) on credentials minted elsewhere.
// Callers decide what to do with a token that fails to decode.
package jwtx

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MinTokenLength is the shortest raw token we treat as a candidate. Anything
// shorter cannot hold a meaningful header+payload+signature and is rejected
// before decoding is even attempted.
const MinTokenLength = 40

// Claims are the decoded payload claims of a credential. Only the claims the
// gate actually consumes get typed accessors; everything else stays reachable
// through the underlying map.
type Claims jwt.MapClaims

// ExpiresAt returns the "exp" claim as a time, and whether it was present.
// Absence of exp is not an error here, it just disables expiry-aware policy
// for this credential.
func (c Claims) ExpiresAt() (time.Time, bool) {
	exp, err := jwt.MapClaims(c).GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// Subject returns the "sub" claim, empty when absent.
func (c Claims) Subject() string {
	sub, err := jwt.MapClaims(c).GetSubject()
	if err != nil {
		return ""
	}
	return sub
}

// Email returns the "email" claim, empty when absent or not a string.
func (c Claims) Email() string {
	email, _ := c["email"].(string)
	return email
}

// Issuer returns the "iss" claim, empty when absent.
func (c Claims) Issuer() string {
	iss, err := jwt.MapClaims(c).GetIssuer()
	if err != nil {
		return ""
	}
	return iss
}
