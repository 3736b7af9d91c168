package versions

import (
	"encoding/binary"
	"encoding/hex"

	"golang.org/x/crypto/blake2b"

	"folio/engine/internal/store"
)

// CommitHash derives a revision's identifier from its parent's hash and its
// content. Every field is length-prefixed so adjacent fields cannot bleed
// into each other.
func CommitHash(parentHash string, content store.Content) string {
	h, _ := blake2b.New256(nil)
	var size [8]byte
	for _, part := range []string{
		parentHash,
		content.Title,
		content.Body,
		content.Summary,
		content.Category,
		content.Keywords,
		content.FileID,
	} {
		binary.BigEndian.PutUint64(size[:], uint64(len(part)))
		_, _ = h.Write(size[:])
		_, _ = h.Write([]byte(part))
	}
	return hex.EncodeToString(h.Sum(nil))
}
