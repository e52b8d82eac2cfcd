package core

import (
	"encoding/hex"

	"github.com/go-crypt/x/blake2b"
)

// HashText computes the content hash of composed embedding text using
// BLAKE2b. Identical text always produces an identical hash, which is
// how the sync engine detects that re-embedding is unnecessary.
func HashText(text string) string {
	h, _ := blake2b.New(16, nil) // 128-bit digest
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}
