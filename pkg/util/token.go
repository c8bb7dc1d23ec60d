package util

import (
	"crypto/rand"
	"encoding/hex"
)

// GenerateSessionToken returns an opaque credential for the redis-backed
// session store.
func GenerateSessionToken() string {
	b := make([]byte, 24)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// GenerateProofSuffix returns a short random suffix appended to proof object
// keys so re-uploads never collide.
func GenerateProofSuffix() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
