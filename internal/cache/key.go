package cache

import (
	"crypto/sha256"
	"encoding/hex"
)

// Key derives the flat cache key for a (language, normalized text)
// pair. The same pair always yields the same key, so repeated requests
// for one verse line share one entry across every tier.
func Key(lang, text string) string {
	hash := sha256.Sum256([]byte(lang + "|" + text))
	return hex.EncodeToString(hash[:16])
}
