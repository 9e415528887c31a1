package lattice

import (
	"fmt"
	"sort"

	"github.com/synrix/lattice/pkg/storage"
)

// CorruptionReport summarizes a scan_and_repair_corruption pass.
type CorruptionReport struct {
	ScannedSlots int
	Repaired     int
	StoppedEarly bool
}

// ScanAndRepairCorruption walks every slot, clearing any that fails the
// load-time plausibility checks (invalid type or out-of-range local_id),
// stopping after 10 consecutive empty (zero-id) slots (spec §4.B).
func (s *Store) ScanAndRepairCorruption() (CorruptionReport, error) {
	var report CorruptionReport
	err := s.seq.write(func() error {
		consecutive := 0
		for i := 0; i < s.capacity; i++ {
			sl := s.slotAt(i)
			report.ScannedSlots++
			if sl.id() == 0 {
				consecutive++
				if consecutive >= 10 {
					report.StoppedEarly = true
					break
				}
				continue
			}
			if isPlausibleSlot(sl, s.opts.MaxRAMNodes) {
				consecutive = 0
				continue
			}
			name := fixedString(sl.nameBytes())
			id := sl.id()
			sl.clear()
			s.ridx.clear(LocalID(id))
			s.pidx.remove(name, id)
			s.liveCount--
			report.Repaired++
			consecutive = 0
		}
		if report.Repaired > 0 {
			s.dirty = true
		}
		return nil
	})
	return report, err
}

// CompactFile rewrites the record array with dead slots squeezed out,
// shrinking a RAM-mode store's backing buffer to its live count (rounded up
// to MaxRAMNodes). Disk mode's capacity is fixed and is only defragmented,
// never shrunk (spec's disk pre-allocation contract).
func (s *Store) CompactFile() error {
	return s.seq.write(func() error {
		newCap := s.liveCount
		if newCap < s.opts.MaxRAMNodes {
			newCap = s.opts.MaxRAMNodes
		}
		if s.opts.Mode == ModeDisk {
			newCap = s.capacity
		}

		newBuf := make([]byte, HeaderSize+newCap*RecordSize)
		newAccess := make([]int64, newCap)
		newRidx := newReverseIndex(maxOf(s.opts.MaxRAMNodes, s.opts.TotalFileNodes))

		write := 0
		for i := 0; i < s.capacity; i++ {
			sl := s.slotAt(i)
			if !sl.isLive() {
				continue
			}
			dstOff := HeaderSize + write*RecordSize
			copy(newBuf[dstOff:dstOff+RecordSize], sl)
			newRidx.set(LocalID(sl.id()), uint32(write))
			if write < len(newAccess) {
				newAccess[write] = s.lastAccess[i]
			}
			write++
		}

		switch s.opts.Mode {
		case ModeRAM:
			encodeFileHeader(newBuf, fileHeader{Magic: DataMagic, NodeCountCommitted: uint32(write), NextLocalID: s.nextLocalID})
			s.buf = newBuf
			s.capacity = newCap
			s.lastAccess = newAccess
		default: // ModeDisk: same fixed-size backing, compacted in place
			copy(s.buf, newBuf)
			encodeFileHeader(s.buf, fileHeader{Magic: DataMagic, NodeCountCommitted: uint32(write), NextLocalID: s.nextLocalID})
			s.lastAccess = newAccess
		}
		s.ridx = newRidx
		s.freeHint = write
		s.dirty = true
		return nil
	})
}

// EvictOldest implements the evict_oldest RAM-mode cache policy (spec §4.F):
// removes the n least-recently-touched live nodes.
func (s *Store) EvictOldest(n int) (int, error) {
	if s.opts.Mode != ModeRAM {
		return 0, fmt.Errorf("%w: eviction only applies to ram mode", ErrInvalidNode)
	}

	type candidate struct {
		idx        int
		lastAccess int64
	}

	var evicted int
	err := s.seq.write(func() error {
		var candidates []candidate
		for i := 0; i < s.capacity; i++ {
			if s.slotAt(i).isLive() {
				candidates = append(candidates, candidate{idx: i, lastAccess: s.lastAccess[i]})
			}
		}
		sort.Slice(candidates, func(i, j int) bool { return candidates[i].lastAccess < candidates[j].lastAccess })

		if n > len(candidates) {
			n = len(candidates)
		}
		for _, c := range candidates[:n] {
			sl := s.slotAt(c.idx)
			id := sl.id()
			name := fixedString(sl.nameBytes())
			parent := sl.parentID()
			sl.clear()
			s.ridx.clear(LocalID(id))
			s.pidx.remove(name, id)
			if parent != 0 {
				s.parentChildren[parent] = removeID(s.parentChildren[parent], id)
			}
			s.liveCount--
			if c.idx < s.freeHint {
				s.freeHint = c.idx
			}
			evicted++
		}
		if evicted > 0 {
			s.dirty = true
		}
		return nil
	})
	return evicted, err
}

// PrefetchRelated advises the kernel to read ahead a node's chunk children
// from disk, used before a streaming GetChunked call in disk mode.
func (s *Store) PrefetchRelated(id uint64) {
	if s.opts.Mode != ModeDisk || s.file == nil {
		return
	}
	idx, ok := s.resolveSlot(id)
	if !ok {
		return
	}
	count := len(s.parentChildren[id])
	if count == 0 {
		return
	}
	off := slotOffset(idx)
	span := int64(count+1) * int64(RecordSize)
	storage.HintSequential(int(s.file.Fd()), off, span)
}

// PrintStreamingStats logs a one-line summary of live/chunk/capacity state,
// gated the same way as every other diagnostic print in this codebase.
func (s *Store) PrintStreamingStats() {
	st := s.collectChunkStats()
	verbose.Printf("lattice: live=%d capacity=%d mode=%v %s", s.liveCount, s.capacity, s.opts.Mode, st)
}
