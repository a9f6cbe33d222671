package utils

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"time"
)

// NewID returns a short random identifier, used to tag WebSocket
// connections in logs. These ids are ephemeral and never persisted;
// message and user ids come from the store.
func NewID() string {
	const size = 12

	buf := make([]byte, size)
	if _, err := rand.Read(buf); err == nil {
		return hex.EncodeToString(buf)
	}

	// crypto/rand should never fail; a timestamp id keeps log lines
	// distinguishable if it somehow does.
	return strconv.FormatInt(time.Now().UnixNano(), 10)
}
