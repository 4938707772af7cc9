package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"strconv"

	"github.com/allaspectsdev/promptstudio/internal/session"
)

// Key derives a cache key from a conversation's paired rows. Appending a
// prompt changes the rows and therefore the key.
func Key(conversationID string, rows []session.PairedRow) string {
	h := sha256.New()
	h.Write([]byte(conversationID))
	h.Write([]byte{0})
	for _, r := range rows {
		h.Write([]byte(strconv.FormatInt(r.Timestamp, 10)))
		h.Write([]byte{0})
		writeOptional(h, r.Original)
		writeOptional(h, r.Rewritten)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// writeOptional distinguishes a missing side from an empty one.
func writeOptional(h hash.Hash, s *string) {
	if s == nil {
		h.Write([]byte{1})
		return
	}
	h.Write([]byte{2})
	h.Write([]byte(*s))
	h.Write([]byte{0})
}
