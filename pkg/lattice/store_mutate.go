package lattice

import (
	"fmt"

	"github.com/synrix/lattice/pkg/wal"
)

// admit enforces the license/admission gate (spec §4.G) before a new node is
// created. Updates, child links, and deletes never consume admission.
func (s *Store) admit() error {
	limit, capped := s.gate.Tier().EffectiveLimit()
	if !capped {
		return nil
	}
	if err := s.gate.AddOne(limit); err != nil {
		return fmt.Errorf("%w: %v", ErrFreeTierLimit, err)
	}
	return nil
}

// insertNode is the shared low-level path for every node-creating operation.
// Per spec §4.B's add pipeline (admission -> capacity -> slot write ->
// reverse index -> parent child append -> prefix index -> WAL append ->
// auto-save check), the auto-save check runs after the write lock is
// released so it can call Save without re-entering the non-reentrant
// seqlock write mutex.
func (s *Store) insertNode(typ NodeType, name string, data, payload []byte, parentID uint64) (uint64, error) {
	var id uint64
	err := s.seq.write(func() error {
		if err := s.admit(); err != nil {
			return err
		}
		var ierr error
		id, ierr = s.insertNodeLocked(typ, name, data, payload, parentID)
		return ierr
	})
	if err != nil {
		s.fail(err)
		return 0, err
	}
	s.checkAutoSave()
	return id, nil
}

// checkAutoSave implements the add pipeline's auto-save check (spec §4.B):
// once AutoSaveInterval add-path mutations have landed since the last save,
// force a snapshot so a RAM-mode store without WAL enabled isn't only
// durable up to the last caller-driven Save. A negative AutoSaveInterval
// disables the check entirely.
func (s *Store) checkAutoSave() {
	if s.opts.AutoSaveInterval < 0 {
		return
	}
	if s.opsSinceSave.Add(1) < int64(s.opts.AutoSaveInterval) {
		return
	}
	s.opsSinceSave.Store(0)
	if err := s.Save(); err != nil {
		verbose.Printf("lattice: auto-save failed: %v", err)
	}
}

// insertNodeLocked performs the actual slot allocation, encoding, index
// maintenance and WAL append. Callers must already hold the write lock
// (via seq.write) and must have performed admission checks themselves —
// AddChunked uses this directly to create a header plus N children inside
// one write transaction without re-entering seq.write.
func (s *Store) insertNodeLocked(typ NodeType, name string, data, payload []byte, parentID uint64) (uint64, error) {
	if !typ.Valid() {
		return 0, ErrInvalidNode
	}
	if len(data) > DataSize {
		return 0, fmt.Errorf("%w: data exceeds %d bytes", ErrInvalidNode, DataSize)
	}

	idx, err := s.allocateSlot()
	if err != nil {
		return 0, err
	}

	localID := s.nextLocalID
	s.nextLocalID++
	id := ComposeID(s.opts.DeviceID, localID)

	n := &Node{
		ID:         id,
		Type:       typ,
		Name:       name,
		Data:       data,
		ParentID:   parentID,
		Confidence: 1.0,
		Timestamp:  nowMicro(),
		Payload:    payload,
	}
	encodeInto(s.slotAt(idx), n)

	s.ridx.set(localID, uint32(idx))
	s.pidx.add(name, id)
	if parentID != 0 {
		s.parentChildren[parentID] = append(s.parentChildren[parentID], id)
	}
	s.liveCount++
	s.dirty = true
	s.touch(idx)

	if s.walEngine != nil {
		payloadBytes := wal.EncodeAddNodePayload(uint8(typ), name, data, parentID)
		if _, werr := s.walEngine.Append(wal.OpAddNode, id, payloadBytes); werr != nil {
			return id, fmt.Errorf("lattice: wal append: %w", werr)
		}
	}
	return id, nil
}

// Add creates a text node (spec §4.B add).
func (s *Store) Add(name string, data []byte, parentID uint64) (uint64, error) {
	return s.insertNode(TypePrimitive, name, data, nil, parentID)
}

// AddBinary creates a node whose data is an opaque binary payload, encoded
// behind the standard length-prefixed binary envelope (spec §4.B
// add_binary / §9 binary detection heuristic).
func (s *Store) AddBinary(name string, payload []byte, parentID uint64) (uint64, error) {
	env, err := encodeBinaryEnvelope(payload, false)
	if err != nil {
		s.fail(err)
		return 0, err
	}
	return s.insertNode(TypePrimitive, name, env, nil, parentID)
}

// AddCompressed is identical to AddBinary but marks the compressed-flag bit
// in the envelope; decompression itself is left to the caller (spec §9:
// the core never interprets binary contents).
func (s *Store) AddCompressed(name string, payload []byte, parentID uint64) (uint64, error) {
	env, err := encodeBinaryEnvelope(payload, true)
	if err != nil {
		s.fail(err)
		return 0, err
	}
	return s.insertNode(TypePrimitive, name, env, nil, parentID)
}

// AddDeduplicated inserts data under name unless a node with that exact name
// already exists, in which case it bumps the existing node's confidence and
// timestamp and returns its id. Per spec §9 open question 1 this path never
// writes to the WAL, so the bump becomes durable only with the next Save or
// checkpoint; a crash before then loses it.
func (s *Store) AddDeduplicated(name string, data []byte, parentID uint64) (uint64, error) {
	if existing, ok := s.findLiveByName(name); ok {
		err := s.seq.write(func() error {
			sl := s.slotAt(existing)
			sl.setConfidence(sl.confidence() + 0.01)
			sl.setTimestamp(nowMicro())
			s.dirty = true
			s.touch(existing)
			return nil
		})
		if err != nil {
			s.fail(err)
			return 0, err
		}
		return s.slotAt(existing).id(), nil
	}
	return s.insertNode(TypePrimitive, name, data, nil, parentID)
}

func (s *Store) findLiveByName(name string) (int, bool) {
	for i := 0; i < s.capacity; i++ {
		sl := s.slotAt(i)
		if sl.isLive() && fixedString(sl.nameBytes()) == name {
			return i, true
		}
	}
	return 0, false
}

// Update overwrites an existing node's data in place and refreshes its
// timestamp (spec §4.B update). Type, parentID and name are left untouched.
func (s *Store) Update(id uint64, data []byte) error {
	return s.updateData(id, TypeInvalid, data, false)
}

// UpdateBinary overwrites an existing node's data with a binary envelope.
func (s *Store) UpdateBinary(id uint64, payload []byte) error {
	env, err := encodeBinaryEnvelope(payload, false)
	if err != nil {
		s.fail(err)
		return err
	}
	return s.updateData(id, TypeInvalid, env, true)
}

func (s *Store) updateData(id uint64, newType NodeType, data []byte, isBinary bool) error {
	if len(data) > DataSize {
		return fmt.Errorf("%w: data exceeds %d bytes", ErrInvalidNode, DataSize)
	}
	err := s.seq.write(func() error {
		idx, ok := s.resolveSlot(id)
		if !ok {
			return ErrNotFound
		}
		sl := s.slotAt(idx)
		if newType != TypeInvalid {
			sl.setType(newType)
		}
		clearBytes(sl.dataBytes())
		copy(sl.dataBytes(), data)
		sl.setTimestamp(nowMicro())
		s.dirty = true
		s.touch(idx)

		if s.walEngine != nil {
			typ := uint8(sl.typ())
			name := fixedString(sl.nameBytes())
			payloadBytes := wal.EncodeAddNodePayload(typ, name, data, sl.parentID())
			if _, werr := s.walEngine.Append(wal.OpUpdateNode, id, payloadBytes); werr != nil {
				return fmt.Errorf("lattice: wal append: %w", werr)
			}
		}
		return nil
	})
	if err != nil {
		s.fail(err)
	}
	return err
}

// AddChild links an already-existing child node under parentID without
// moving or copying the child's record (spec §4.B add_child). Children are
// never persisted directly; they are reconstructed from parent_id on load.
func (s *Store) AddChild(parentID, childID uint64) error {
	return s.AddChildWithMetadata(parentID, childID, nil)
}

// AddChildWithMetadata additionally stamps the child's Payload field with
// metadata when it is non-nil, for callers attaching structured metadata to
// a link.
func (s *Store) AddChildWithMetadata(parentID, childID uint64, metadata []byte) error {
	err := s.seq.write(func() error {
		childIdx, ok := s.resolveSlot(childID)
		if !ok {
			return fmt.Errorf("%w: child %d", ErrNotFound, childID)
		}
		if _, ok := s.resolveSlot(parentID); !ok {
			return fmt.Errorf("%w: parent %d", ErrNotFound, parentID)
		}

		sl := s.slotAt(childIdx)
		sl.setParentID(parentID)
		if metadata != nil {
			clearBytes(sl.payloadBytes())
			copy(sl.payloadBytes(), metadata)
		}
		s.parentChildren[parentID] = append(s.parentChildren[parentID], childID)
		s.dirty = true
		s.touch(childIdx)

		if s.walEngine != nil {
			if _, werr := s.walEngine.Append(wal.OpAddChild, childID, wal.EncodeAddChildPayload(parentID, childID)); werr != nil {
				return fmt.Errorf("lattice: wal append: %w", werr)
			}
		}
		return nil
	})
	if err != nil {
		s.fail(err)
	}
	return err
}

// Delete removes a node. RAM mode zeroes the whole slot; disk mode zeroes
// only the id field, leaving the rest as forensic residue (spec §9 open
// question 3, resolved in SPEC_FULL.md §6).
func (s *Store) Delete(id uint64) error {
	err := s.seq.write(func() error {
		idx, ok := s.resolveSlot(id)
		if !ok {
			return ErrNotFound
		}
		sl := s.slotAt(idx)
		name := fixedString(sl.nameBytes())
		parent := sl.parentID()

		if s.opts.Mode == ModeDisk {
			sl.clearID()
		} else {
			sl.clear()
		}

		s.ridx.clear(LocalID(id))
		s.pidx.remove(name, id)
		if parent != 0 {
			s.parentChildren[parent] = removeID(s.parentChildren[parent], id)
		}
		s.liveCount--
		s.dirty = true
		if idx < s.freeHint {
			s.freeHint = idx
		}

		if s.walEngine != nil {
			if _, werr := s.walEngine.Append(wal.OpDeleteNode, id, nil); werr != nil {
				return fmt.Errorf("lattice: wal append: %w", werr)
			}
		}
		return nil
	})
	if err != nil {
		s.fail(err)
	}
	return err
}

// resolveSlot finds the slot index for id, trying the reverse index first
// (spec §4.B get_copy resolution order) and falling back to a linear scan
// when the index entry is stale or ambiguous (slot 0 is a legitimate index
// but also the zero value of an unset reverse-index entry).
func (s *Store) resolveSlot(id uint64) (int, bool) {
	localID := LocalID(id)
	if idx, ok := s.ridx.get(localID); ok {
		if int(idx) < s.capacity {
			sl := s.slotAt(int(idx))
			if sl.isLive() && sl.id() == id {
				return int(idx), true
			}
		}
	}
	for i := 0; i < s.capacity; i++ {
		sl := s.slotAt(i)
		if sl.isLive() && sl.id() == id {
			s.ridx.set(localID, uint32(i))
			return i, true
		}
	}
	return 0, false
}

// replayAddNode restores a node at its originally assigned id during WAL
// recovery, rather than minting a fresh one the way insertNodeLocked does
// for live writes. Callers must already hold the write lock.
func (s *Store) replayAddNode(id uint64, typ NodeType, name string, data []byte, parentID uint64) error {
	if !typ.Valid() {
		return ErrInvalidNode
	}
	idx, ok := s.resolveSlot(id)
	if !ok {
		var err error
		idx, err = s.allocateSlot()
		if err != nil {
			return err
		}
	}

	n := &Node{
		ID:         id,
		Type:       typ,
		Name:       name,
		Data:       data,
		ParentID:   parentID,
		Confidence: 1.0,
		Timestamp:  nowMicro(),
	}
	encodeInto(s.slotAt(idx), n)

	localID := LocalID(id)
	s.ridx.set(localID, uint32(idx))
	s.pidx.add(name, id)
	if parentID != 0 {
		s.parentChildren[parentID] = append(s.parentChildren[parentID], id)
	}
	s.liveCount++
	s.dirty = true
	if localID >= s.nextLocalID {
		s.nextLocalID = localID + 1
	}
	return nil
}

func (s *Store) touch(idx int) {
	s.accessClock++
	if idx < len(s.lastAccess) {
		s.lastAccess[idx] = s.accessClock
	}
}
