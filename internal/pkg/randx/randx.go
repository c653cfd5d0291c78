/*
Package randx provides identifier generation helpers.

Session IDs tag every log line of a connection; token IDs become the jti claim of issued JWTs.
*/
package randx

import (
	"strings"

	"github.com/google/uuid"
)

// SessionIDPrefix marks identifiers produced by SessionID.
const SessionIDPrefix = "sess_"

// SessionID returns a fresh identifier for a WebSocket connection.
func SessionID() string {
	return SessionIDPrefix + strings.ReplaceAll(uuid.New().String(), "-", "")
}

// TokenID returns a standard UUID v4 string used as a JWT id.
func TokenID() string {
	return uuid.New().String()
}

// IsValidSessionID reports whether id has the shape produced by SessionID.
func IsValidSessionID(id string) bool {
	raw, ok := strings.CutPrefix(id, SessionIDPrefix)
	if !ok || len(raw) != 32 {
		return false
	}

	_, err := uuid.Parse(raw)
	return err == nil
}
