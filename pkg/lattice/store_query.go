package lattice

import "sort"

// GetCopy returns an owned copy of the node with id, with Children
// reconstructed from the parent_id side index. Data holds the decoded
// payload when the record is a binary envelope (see IsBinary), otherwise the
// text up to its first NUL.
func (s *Store) GetCopy(id uint64) (*Node, error) {
	var n *Node
	err := s.seq.read(func() error {
		idx, ok := s.resolveSlot(id)
		if !ok {
			return ErrNotFound
		}
		n = decodeNode(s.slotAt(idx))
		if isBinary, _, _ := detectBinary(n.Data); isBinary {
			n.Data = decodeBinaryEnvelope(n.Data)
		} else {
			n.Data = []byte(fixedString(n.Data))
		}
		n.Children = append([]uint64(nil), s.parentChildren[id]...)
		s.touch(idx)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return n, nil
}

// IsBinary reports whether a node's data field is a binary envelope rather
// than plain text (spec §9 detection heuristic).
func (s *Store) IsBinary(id uint64) (bool, error) {
	var isBinary bool
	err := s.seq.read(func() error {
		idx, ok := s.resolveSlot(id)
		if !ok {
			return ErrNotFound
		}
		isBinary, _, _ = detectBinary(s.slotAt(idx).dataBytes())
		return nil
	})
	return isBinary, err
}

// GetBinary decodes a node's binary envelope, returning the raw payload
// bytes (still compressed, if the compressed flag is set — decompression is
// left to the caller).
func (s *Store) GetBinary(id uint64) ([]byte, error) {
	var out []byte
	err := s.seq.read(func() error {
		idx, ok := s.resolveSlot(id)
		if !ok {
			return ErrNotFound
		}
		data := s.slotAt(idx).dataBytes()
		isBinary, _, _ := detectBinary(data)
		if !isBinary {
			return ErrInvalidNode
		}
		out = decodeBinaryEnvelope(data)
		return nil
	})
	return out, err
}

// IsChunked reports whether id names a CHUNK_HEADER parent.
func (s *Store) IsChunked(id uint64) (bool, error) {
	var chunked bool
	err := s.seq.read(func() error {
		idx, ok := s.resolveSlot(id)
		if !ok {
			return ErrNotFound
		}
		chunked = s.slotAt(idx).typ() == TypeChunkHeader
		return nil
	})
	return chunked, err
}

// GetChunkedSize returns the total logical size of a chunked blob without
// reassembling it.
func (s *Store) GetChunkedSize(id uint64) (uint64, error) {
	var size uint64
	err := s.seq.read(func() error {
		idx, ok := s.resolveSlot(id)
		if !ok {
			return ErrNotFound
		}
		sl := s.slotAt(idx)
		if sl.typ() != TypeChunkHeader {
			return ErrInvalidNode
		}
		size = decodeChunkMeta(sl.dataBytes()).TotalSize
		return nil
	})
	return size, err
}

// chunkChildren resolves a CHUNK_HEADER parent's children in the preference
// order spec §4.D's read path describes:
//  1. In disk mode, direct slot indexing via first_chunk_local_id (O(k)).
//  2. The embedded ChunkIDs array, when the write path recorded one.
//  3. A name-prefix scan of the records after the parent, sorted by the
//     parsed chunk index.
func (s *Store) chunkChildren(parentID uint64, parentIdx int, meta chunkMeta) []*Node {
	if s.opts.Mode == ModeDisk && meta.FirstChunkLocalID > 0 {
		if children, ok := s.chunkChildrenByLocalID(meta); ok {
			return children
		}
	}
	if len(meta.ChunkIDs) > 0 {
		if children := s.chunkChildrenByIDs(meta.ChunkIDs); len(children) == int(meta.ChunkCount) {
			return children
		}
	}
	return s.chunkChildrenByScan(parentID, parentIdx, meta.ChunkCount)
}

// chunkChildrenByLocalID implements preference tier 1: chunk children are
// written contiguously immediately after their parent (spec §3 invariant
// 5), so in disk mode the first child's file index is first_chunk_local_id-1
// and the rest follow sequentially.
func (s *Store) chunkChildrenByLocalID(meta chunkMeta) ([]*Node, bool) {
	start := int(meta.FirstChunkLocalID) - 1
	children := make([]*Node, 0, meta.ChunkCount)
	for i := 0; i < int(meta.ChunkCount); i++ {
		idx := start + i
		if idx < 0 || idx >= s.capacity {
			return nil, false
		}
		sl := s.slotAt(idx)
		if !sl.isLive() || sl.typ() != TypeChunkData {
			return nil, false
		}
		children = append(children, decodeNode(sl))
	}
	return children, true
}

// chunkChildrenByIDs implements preference tier 2: the parent metadata
// carried the full child id array, so each child is resolved directly.
func (s *Store) chunkChildrenByIDs(ids []uint64) []*Node {
	children := make([]*Node, 0, len(ids))
	for _, cid := range ids {
		idx, ok := s.resolveSlot(cid)
		if !ok {
			continue
		}
		sl := s.slotAt(idx)
		if sl.typ() != TypeChunkData {
			continue
		}
		children = append(children, decodeNode(sl))
	}
	return children
}

// chunkChildrenByScan implements preference tier 3: scan records after the
// parent's file index for names beginning with "C:<parentID>:" until
// chunkCount are found, then sort by the parsed chunk index.
func (s *Store) chunkChildrenByScan(parentID uint64, parentIdx int, chunkCount uint32) []*Node {
	type found struct {
		idx int
		n   *Node
	}
	var items []found
	for i := parentIdx + 1; i < s.capacity && len(items) < int(chunkCount); i++ {
		sl := s.slotAt(i)
		if !sl.isLive() || sl.typ() != TypeChunkData {
			continue
		}
		pid, idx, ok := parseChunkChildName(fixedString(sl.nameBytes()))
		if !ok || pid != parentID {
			continue
		}
		items = append(items, found{idx: idx, n: decodeNode(sl)})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].idx < items[j].idx })

	out := make([]*Node, len(items))
	for i, it := range items {
		out[i] = it.n
	}
	return out
}

// GetChunked reassembles a chunked blob in full.
func (s *Store) GetChunked(id uint64) ([]byte, error) {
	var out []byte
	err := s.seq.read(func() error {
		idx, ok := s.resolveSlot(id)
		if !ok {
			return ErrNotFound
		}
		sl := s.slotAt(idx)
		if sl.typ() != TypeChunkHeader {
			return ErrInvalidNode
		}
		meta := decodeChunkMeta(sl.dataBytes())
		children := s.chunkChildren(id, idx, meta)
		if len(children) != int(meta.ChunkCount) {
			return ErrChunkIncomplete
		}
		reassembled, rerr := reassembleChunks(children, meta.TotalSize)
		if rerr != nil {
			return rerr
		}
		out = reassembled
		return nil
	})
	return out, err
}

// GetChunkedToBuffer reassembles into a caller-provided buffer, returning
// ErrBufferTooSmall rather than growing it (spec §4.D streaming variant).
func (s *Store) GetChunkedToBuffer(id uint64, buf []byte) (int, error) {
	data, err := s.GetChunked(id)
	if err != nil {
		return 0, err
	}
	if len(buf) < len(data) {
		return 0, ErrBufferTooSmall
	}
	return copy(buf, data), nil
}

// FindByType returns owned copies of every live node of the given type.
func (s *Store) FindByType(t NodeType) ([]*Node, error) {
	var out []*Node
	err := s.seq.read(func() error {
		for i := 0; i < s.capacity; i++ {
			sl := s.slotAt(i)
			if sl.isLive() && sl.typ() == t {
				out = append(out, decodeNode(sl))
			}
		}
		return nil
	})
	return out, err
}

// FindByName looks up nodes by exact name, or — when name ends in a
// recognized prefix delimiter — via the prefix index fast path (spec §4.C).
func (s *Store) FindByName(name string) ([]*Node, error) {
	return s.FindByNameFiltered(name, FindFilters{})
}

// FindByNameFiltered additionally restricts results by confidence and
// timestamp range (spec §4.B find_by_name filters).
func (s *Store) FindByNameFiltered(name string, filters FindFilters) ([]*Node, error) {
	var out []*Node
	err := s.seq.read(func() error {
		var ids []uint64
		if bucket, ok := s.pidx.lookup(name); ok {
			ids = bucket
		} else {
			for i := 0; i < s.capacity; i++ {
				sl := s.slotAt(i)
				if sl.isLive() && fixedString(sl.nameBytes()) == name {
					ids = append(ids, sl.id())
				}
			}
		}

		for _, id := range ids {
			idx, ok := s.resolveSlot(id)
			if !ok {
				continue
			}
			sl := s.slotAt(idx)
			if !passesFilters(sl, filters) {
				continue
			}
			out = append(out, decodeNode(sl))
		}
		return nil
	})
	return out, err
}

func passesFilters(sl slot, f FindFilters) bool {
	if f.HasMinConf && sl.confidence() < f.MinConfidence {
		return false
	}
	if f.HasMinTS && sl.timestamp() < f.MinTimestamp {
		return false
	}
	if f.HasMaxTS && sl.timestamp() > f.MaxTimestamp {
		return false
	}
	return true
}

// BuildPrefixIndex forces a full rebuild of the prefix index (spec §4.C):
// used after bulk loads or once the store has grown past the incremental
// maintenance threshold.
func (s *Store) BuildPrefixIndex() error {
	return s.seq.write(func() error {
		s.pidx.reset()
		for i := 0; i < s.capacity; i++ {
			sl := s.slotAt(i)
			if sl.isLive() {
				s.pidx.add(fixedString(sl.nameBytes()), sl.id())
			}
		}
		return nil
	})
}

// AddNodeToPrefixIndex incrementally indexes a single node, used by callers
// that bypass insertNode's automatic indexing (none in this package today,
// kept for parity with spec §4.C's incremental-maintenance contract).
func (s *Store) AddNodeToPrefixIndex(id uint64, name string) {
	s.pidx.add(name, id)
}

// ValidatePrefixIndexes cross-checks every prefix bucket against a fresh
// scan and reports any mismatch (spec §4.C index integrity check).
func (s *Store) ValidatePrefixIndexes() error {
	var mismatches []string
	err := s.seq.read(func() error {
		want := newPrefixIndex()
		for i := 0; i < s.capacity; i++ {
			sl := s.slotAt(i)
			if sl.isLive() {
				want.add(fixedString(sl.nameBytes()), sl.id())
			}
		}
		for prefix, ids := range want.dynamic {
			got, _ := s.pidx.lookup(prefix)
			if !sameIDSet(ids, got) {
				mismatches = append(mismatches, prefix)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if len(mismatches) > 0 {
		sort.Strings(mismatches)
		return ErrCorruption
	}
	return nil
}

func sameIDSet(a, b []uint64) bool {
	if len(a) != len(b) {
		return false
	}
	am := make(map[uint64]int, len(a))
	for _, v := range a {
		am[v]++
	}
	for _, v := range b {
		am[v]--
	}
	for _, c := range am {
		if c != 0 {
			return false
		}
	}
	return true
}
