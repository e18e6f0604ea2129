package core

import (
	"crypto/sha256"
	"encoding/hex"
)

// cacheKeyLength is the truncation length of the content hash. Collisions
// are an accepted trade-off; the key is content-addressed, not cryptographic.
const cacheKeyLength = 16

// CacheKey derives the content-addressed cache key for a record from its
// identifying fields.
func CacheKey(record *EmailRecord) string {
	body := record.BodyText
	if body == "" {
		body = record.BodyHTML
	}
	sum := sha256.Sum256([]byte(record.Sender + record.Subject + body))
	return hex.EncodeToString(sum[:])[:cacheKeyLength]
}
