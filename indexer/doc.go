// Package indexer plans and executes embedding synchronization over the
// catalog: it scans rows in resumable ascending-SKU batches, decides per
// row whether an embedding must be inserted, updated, or left alone, and
// in execute mode performs the idempotent conditional write.
//
// Dry-run and execute mode share the same row comparison, so a dry-run
// summary is a trustworthy preview of what execute would do against the
// same store state.
package indexer
