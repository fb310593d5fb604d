package util

import (
	"crypto/rand"
	"encoding/hex"
)

// NewRequestID returns a short random id for request log correlation.
func NewRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}
