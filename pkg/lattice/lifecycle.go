package lattice

import (
	"fmt"
	"path/filepath"

	"github.com/synrix/lattice/pkg/license"
	"github.com/synrix/lattice/pkg/storage"
	"github.com/synrix/lattice/pkg/wal"
)

// walPath derives the WAL sidecar path for the data file: <path>.wal.
func (s *Store) walPath() string {
	return s.opts.Path + ".wal"
}

// EnableWAL opens (or creates) the WAL sidecar, replays every entry past the
// WAL's checkpoint sequence, and starts background flushing.
func (s *Store) EnableWAL() error {
	if s.walEngine != nil {
		return nil
	}
	e, err := wal.Open(s.fsys, s.walPath())
	if err != nil {
		return fmt.Errorf("lattice: enabling wal: %w", err)
	}
	s.walEngine = e
	return s.RecoverFromWAL()
}

// DisableWAL checkpoints and closes the WAL sidecar.
func (s *Store) DisableWAL() error {
	if s.walEngine == nil {
		return ErrWALNotEnabled
	}
	if err := s.walEngine.Checkpoint(s.Save); err != nil {
		return err
	}
	err := s.walEngine.Close()
	s.walEngine = nil
	return err
}

// Flush requests an immediate, non-blocking WAL flush.
func (s *Store) Flush() error {
	if s.walEngine == nil {
		return ErrWALNotEnabled
	}
	s.walEngine.Flush()
	return nil
}

// FlushWait blocks until seq is durably flushed to the WAL.
func (s *Store) FlushWait(seq uint64) error {
	if s.walEngine == nil {
		return ErrWALNotEnabled
	}
	return s.walEngine.FlushWait(seq)
}

// Checkpoint flushes the WAL, snapshots the data file, then truncates the
// log (spec §4.E checkpoint contract).
func (s *Store) Checkpoint() error {
	if s.walEngine == nil {
		return ErrWALNotEnabled
	}
	return s.walEngine.Checkpoint(s.Save)
}

// RecoverFromWAL replays every WAL entry past the checkpoint sequence back
// into the in-memory/mapped record array (spec §4.E recovery).
func (s *Store) RecoverFromWAL() error {
	if s.walEngine == nil {
		return ErrWALNotEnabled
	}
	return s.seq.write(func() error { return s.walEngine.Recover(s.applyWALEntry) })
}

func (s *Store) applyWALEntry(e wal.Entry) error {
	switch e.Op {
	case wal.OpAddNode:
		typ, name, data, parentID, err := wal.DecodeAddNodePayload(e.Payload)
		if err != nil {
			return err
		}
		return s.replayAddNode(e.NodeID, NodeType(typ), name, data, parentID)
	case wal.OpUpdateNode:
		_, _, data, _, err := wal.DecodeAddNodePayload(e.Payload)
		if err != nil {
			return err
		}
		idx, ok := s.resolveSlot(e.NodeID)
		if !ok {
			return nil // node since deleted; nothing to replay onto
		}
		clearBytes(s.slotAt(idx).dataBytes())
		copy(s.slotAt(idx).dataBytes(), data)
		return nil
	case wal.OpDeleteNode:
		idx, ok := s.resolveSlot(e.NodeID)
		if !ok {
			return nil
		}
		sl := s.slotAt(idx)
		if s.opts.Mode == ModeDisk {
			sl.clearID()
		} else {
			sl.clear()
		}
		s.ridx.clear(LocalID(e.NodeID))
		return nil
	case wal.OpAddChild:
		parentID, childID, err := wal.DecodeAddChildPayload(e.Payload)
		if err != nil {
			return err
		}
		if idx, ok := s.resolveSlot(childID); ok {
			s.slotAt(idx).setParentID(parentID)
			s.parentChildren[parentID] = append(s.parentChildren[parentID], childID)
		}
		return nil
	case wal.OpCheckpoint:
		return nil
	default:
		return fmt.Errorf("%w: unknown wal op %d", ErrWALCorruption, e.Op)
	}
}

// EnableIsolation turns on seqlock-guarded concurrent reads.
func (s *Store) EnableIsolation() { s.seq.enable() }

// DisableIsolation turns seqlock protection back off.
func (s *Store) DisableIsolation() { s.seq.disable() }

// SetLicenseKey switches the admission gate to a new license key's counter
// file and applies the externally resolved tier.
func (s *Store) SetLicenseKey(key string, resolved license.ResolvedLicense) error {
	gate, err := license.Open(s.fsys, key)
	if err != nil {
		return err
	}
	gate.Tier().SetFreeTierLimit(s.opts.FreeTierLimit)
	gate.Tier().ApplyLicense(resolved)
	s.gate = gate
	return nil
}

// DisableEvaluationMode lifts the in-process free-tier cap, succeeding only
// once a verified-unlimited license has been applied via SetLicenseKey.
func (s *Store) DisableEvaluationMode() error {
	return s.gate.Tier().DisableEvaluationMode()
}

// Save durably persists the store. RAM mode writes an atomic snapshot of
// the grown buffer (trimmed to capacity); disk mode flushes dirty mapped
// pages in place.
func (s *Store) Save() error {
	return s.seq.write(func() error {
		h := fileHeader{Magic: DataMagic, NodeCountCommitted: uint32(s.liveCount), NextLocalID: s.nextLocalID}
		encodeFileHeader(s.buf, h)

		switch s.opts.Mode {
		case ModeDisk:
			if err := s.mapping.Msync(0, len(s.buf)); err != nil {
				return fmt.Errorf("lattice: msync: %w", err)
			}
		default:
			if err := s.fsys.MkdirAll(filepath.Dir(s.opts.Path), 0o755); err != nil {
				return fmt.Errorf("lattice: creating parent dir: %w", err)
			}
			if err := storage.WriteSnapshot(s.opts.Path, s.buf); err != nil {
				return err
			}
		}
		s.dirty = false
		return nil
	})
}

// Close flushes pending state and releases file handles. The store must not
// be used afterward.
func (s *Store) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if s.walEngine != nil {
		record(s.walEngine.Checkpoint(s.Save))
		record(s.walEngine.Close())
	} else if s.dirty {
		record(s.Save())
	}

	if s.opts.Mode == ModeDisk {
		if s.mapping != nil {
			record(s.mapping.Unmap())
		}
		if s.file != nil {
			record(s.file.Close())
		}
	}
	return firstErr
}
