package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GeneratePartyID generates a unique party ID
func GeneratePartyID() string {
	return uuid.NewString()
}

// GenerateMessageID generates a unique chat message ID
func GenerateMessageID() string {
	return uuid.NewString()
}

// GenerateSubscriptionID generates a unique channel subscription ID
func GenerateSubscriptionID() string {
	return GenerateID("sub")
}

// GenerateReactionID generates a short ephemeral ID. Reactions never leave the
// session that displays them, so 8 random bytes are plenty.
func GenerateReactionID() string {
	return GenerateID("rx")
}

// GenerateInstanceID identifies one process on a shared transport
func GenerateInstanceID() string {
	return GenerateID("instance")
}

// GenerateRequestID generates a unique request ID
func GenerateRequestID() string {
	timestamp := time.Now().UnixNano()
	b := make([]byte, 4)
	rand.Read(b)
	return fmt.Sprintf("req_%d_%s", timestamp, hex.EncodeToString(b))
}

// GenerateID generates a random ID with prefix
func GenerateID(prefix string) string {
	b := make([]byte, 8)
	rand.Read(b)
	return fmt.Sprintf("%s_%s", prefix, hex.EncodeToString(b))
}
