package badger

import (
	"encoding/binary"

	"github.com/catadex/catadex/core"
)

// Key prefixes for different data types
const (
	catalogItemPrefix = "catitm"
	catalogSKUSeq     = "catitmseq"
	embeddingPrefix   = "embrow"
	syncJobPrefix     = "synjob"
	syncJobIDSeq      = "synjobseq"
	syncJobActiveKey  = "synjobact"
	syncJobItemPrefix = "synjobitm"
	syncJobItemIDSeq  = "synjobitmseq"
	lockKeyPrefix     = "lock"
)

// makeUint64Key generates a composite key of prefix:id with the id in
// BigEndian order, so lexicographic key order matches numeric order and
// range scans visit ids ascending.
func makeUint64Key(prefix string, id uint64) []byte {
	prefixBytes := []byte(prefix + ":")
	buf := make([]byte, len(prefixBytes)+8)
	offset := copy(buf, prefixBytes)
	binary.BigEndian.PutUint64(buf[offset:], id)
	return buf
}

// makeCatalogKey generates a key for a catalog item by SKU.
func makeCatalogKey(sku core.SKUID) []byte {
	return makeUint64Key(catalogItemPrefix, uint64(sku))
}

// catalogScanPrefix is the prefix shared by all catalog item keys.
func catalogScanPrefix() []byte {
	return []byte(catalogItemPrefix + ":")
}

// makeEmbeddingKey generates a key for an embedding row by SKU.
func makeEmbeddingKey(sku core.SKUID) []byte {
	return makeUint64Key(embeddingPrefix, uint64(sku))
}

// embeddingScanPrefix is the prefix shared by all embedding row keys.
func embeddingScanPrefix() []byte {
	return []byte(embeddingPrefix + ":")
}

// makeJobKey generates a key for a sync job by ID.
func makeJobKey(id core.JobID) []byte {
	return makeUint64Key(syncJobPrefix, uint64(id))
}

// jobScanPrefix is the prefix shared by all sync job keys.
func jobScanPrefix() []byte {
	return []byte(syncJobPrefix + ":")
}

// makeJobItemKey generates a composite key for a job audit item.
// Format: prefix:jobID:itemID, both BigEndian, so items scan in
// insertion order within a job.
func makeJobItemKey(jobID core.JobID, itemID uint64) []byte {
	prefixBytes := []byte(syncJobItemPrefix + ":")
	buf := make([]byte, len(prefixBytes)+16)
	offset := copy(buf, prefixBytes)
	binary.BigEndian.PutUint64(buf[offset:], uint64(jobID))
	offset += 8
	binary.BigEndian.PutUint64(buf[offset:], itemID)
	return buf
}

// jobItemScanPrefix is the prefix shared by one job's audit item keys.
func jobItemScanPrefix(jobID core.JobID) []byte {
	prefixBytes := []byte(syncJobItemPrefix + ":")
	buf := make([]byte, len(prefixBytes)+8)
	offset := copy(buf, prefixBytes)
	binary.BigEndian.PutUint64(buf[offset:], uint64(jobID))
	return buf
}

// makeLockKey generates the key for a named lock.
func makeLockKey(name string) []byte {
	return []byte(lockKeyPrefix + ":" + name)
}
