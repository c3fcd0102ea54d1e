package jwtx

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrDecode is the root of the decode failure taxonomy. All decode
	// failures unwrap to it so callers can treat "reject this candidate"
	// uniformly: errors.Is(err, ErrDecode).
	ErrDecode = errors.New("jwtx: decode failed")

	ErrSegmentCount = fmt.Errorf("%w: token must have exactly three segments", ErrDecode)
	ErrTooShort     = fmt.Errorf("%w: token below minimum length", ErrDecode)
	ErrPayload      = fmt.Errorf("%w: payload segment", ErrDecode)
)

// IsCandidate reports whether raw is even worth decoding: three dot-separated
// segments and at least MinTokenLength characters. A candidate is not
// necessarily valid; it is merely shaped like a token.
func IsCandidate(raw string) bool {
	return len(raw) >= MinTokenLength && strings.Count(raw, ".") == 2
}

// Decode parses the payload segment of a compact three-segment token into
// Claims. It is a pure function: no I/O, no retries, and the signature is
// deliberately NOT verified. Returns an error unwrapping to ErrDecode when
// the segment count is wrong, the payload is not valid base64url, or the
// decoded bytes are not a JSON object.
func Decode(raw string) (Claims, error) {
	if len(raw) < MinTokenLength {
		return nil, ErrTooShort
	}

	segments := strings.Split(raw, ".")
	if len(segments) != 3 {
		return nil, ErrSegmentCount
	}

	payload, err := jwt.NewParser().DecodeSegment(segments[1])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPayload, err)
	}

	var claims jwt.MapClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPayload, err)
	}

	return Claims(claims), nil
}
