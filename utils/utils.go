package utils

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

// GenerateDashlessUUID creates a new UUID v4 and returns its string
// representation with all dashes removed. Used for record and session ids.
func GenerateDashlessUUID() string {
	id := uuid.New()
	return strings.ReplaceAll(id.String(), "-", "")
}

// HashToken derives an access token from a session id using HMAC-SHA256.
// The derivation is deterministic so a stored session can always be found
// again from the token the client presents.
func HashToken(sessionID, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(sessionID))
	return hex.EncodeToString(mac.Sum(nil))
}
