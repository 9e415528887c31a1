// Package lattice implements an embeddable, crash-safe persistent graph
// store: a fixed-record node file backed either by a grown RAM buffer or a
// memory-mapped disk region, a dense reverse index for O(1) id lookup,
// semantic-prefix indices for fast name-based queries, and a chunk
// assembler for payloads that exceed a single record.
//
// A Store is not safe for concurrent writers. Concurrent readers are safe
// once isolation is enabled (see EnableIsolation); the store then uses a
// seqlock so readers never block a writer and never observe a torn record.
package lattice
