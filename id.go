package umux

import (
	"strings"

	"github.com/google/uuid"
)

// urlSafeToken derives an 8-character url-safe token from a fresh UUID.
// Truncating a UUID this way is fine here: collisions only need to be rare
// within a single process's session/hook population, not globally unique.
func urlSafeToken() string {
	id := uuid.New()
	return strings.ReplaceAll(id.String(), "-", "")[:8]
}

// newSessionID creates a session identifier of the form sess-XXXXXXXX.
func newSessionID() string {
	return "sess-" + urlSafeToken()
}

// newHookID creates a hook identifier of the form hook-XXXXXXXX.
func newHookID() string {
	return "hook-" + urlSafeToken()
}
