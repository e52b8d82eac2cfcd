// Package storage defines the repository interfaces the sync engine
// depends on - catalog rows, the embedding store, the durable job ledger
// and named locks - plus the value serialization helpers they share.
// The BadgerDB implementation lives in storage/badger.
package storage
