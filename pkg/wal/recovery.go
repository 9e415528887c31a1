package wal

import "fmt"

// Apply is called once per surviving log entry during Recover, in sequence
// order.
type Apply func(Entry) error

// Recover walks the log from just past the header to min(file size,
// last_valid_offset), stopping at the first sentinel or any entry that
// looks suspicious (oversized, or far beyond the last assigned sequence),
// truncating the logical recovery point there. Entries with
// sequence <= checkpoint_sequence are skipped (already applied to the data
// file). Matches spec §4.E recovery rules.
func (e *Engine) Recover(apply Apply) error {
	e.mu.Lock()
	header := e.header
	e.mu.Unlock()

	info, err := e.file.Stat()
	if err != nil {
		return fmt.Errorf("wal: stat: %w", err)
	}

	limit := int64(HeaderSize) + int64(header.LastValidOffset)
	if info.Size() < limit {
		limit = info.Size()
	}

	offset := int64(HeaderSize)
	for offset+entryHeaderSize <= limit {
		hdr := make([]byte, entryHeaderSize)
		if _, err := e.file.ReadAt(hdr, offset); err != nil {
			return fmt.Errorf("wal: read entry header at %d: %w", offset, err)
		}
		if isSentinel(hdr) {
			break
		}

		seq, op, nodeID, dataSize := decodeEntryHeader(hdr)

		suspicious := dataSize > MaxEntrySize || seq > header.Sequence+1000 || !op.valid()
		if suspicious {
			break
		}

		entryEnd := offset + entryHeaderSize + int64(dataSize)
		if entryEnd > limit {
			break
		}

		if seq <= header.CheckpointSequence {
			offset = entryEnd
			continue
		}

		payload := make([]byte, dataSize)
		if dataSize > 0 {
			if _, err := e.file.ReadAt(payload, offset+entryHeaderSize); err != nil {
				return fmt.Errorf("wal: read entry payload at %d: %w", offset, err)
			}
		}

		if apply != nil {
			if err := apply(Entry{Sequence: seq, Op: op, NodeID: nodeID, Payload: payload}); err != nil {
				return fmt.Errorf("wal: apply entry seq=%d: %w", seq, err)
			}
		}

		offset = entryEnd
	}

	return nil
}
