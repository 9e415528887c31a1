// Package wal implements the write-ahead log engine described in
// SPEC_FULL.md / spec.md §4.E: a durable append log with adaptive batching,
// a background flusher, checkpointing, truncation, and crash recovery.
//
// Record and header framing is grounded on the block/chunk style WAL
// designs in the retrieval corpus (KevoDB's typed records, rosedblabs'
// block-based append), combined with the copy-under-mutex flush discipline
// pkg/slotcache's writer.go uses for its own dirty-range msync batching.
package wal
