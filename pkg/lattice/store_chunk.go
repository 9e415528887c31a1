package lattice

import "fmt"

// AddChunked splits data across a CHUNK_HEADER parent and contiguous
// CHUNK_DATA children (spec §3 invariant 5, §4.D). The whole write runs
// inside one seq.write call, but nothing is rolled back on failure: if a
// child insert fails part-way, the header and the children already written
// stay in the store, and every admission counted before the failure stays
// counted.
func (s *Store) AddChunked(name string, data []byte, parentID uint64) (uint64, error) {
	if len(data) == 0 {
		return 0, ErrNullInput
	}
	pieces := splitChunks(data)

	var headerID uint64
	err := s.seq.write(func() error {
		for range pieces {
			if err := s.admit(); err != nil {
				return err
			}
		}
		if err := s.admit(); err != nil {
			return err
		}

		meta := chunkMeta{
			TotalSize:  uint64(len(data)),
			ChunkCount: uint32(len(pieces)),
			Checksum:   chunkChecksum(data),
		}

		var ierr error
		headerID, ierr = s.insertNodeLocked(TypeChunkHeader, chunkParentName(name), encodeChunkMeta(meta), nil, parentID)
		if ierr != nil {
			return ierr
		}

		childIDs := make([]uint64, 0, len(pieces))
		for i, piece := range pieces {
			childData, childPayload := encodeChunkChild(i, piece)
			childName := chunkChildName(headerID, i, len(pieces))
			childID, cerr := s.insertNodeLocked(TypeChunkData, childName, childData, childPayload, headerID)
			if cerr != nil {
				return cerr
			}
			childIDs = append(childIDs, childID)
		}

		// Record first_chunk_local_id (mandatory, spec §4.D write path) and
		// the full id array when it fits alongside the fixed metadata prefix.
		if len(childIDs) > 0 {
			meta.FirstChunkLocalID = LocalID(childIDs[0])
		}
		if need := ChunkMetaSize + 8*len(childIDs); need <= DataSize {
			meta.ChunkIDs = childIDs
		}
		headerIdx, ok := s.resolveSlot(headerID)
		if ok {
			copy(s.slotAt(headerIdx).dataBytes(), encodeChunkMeta(meta))
		}
		return nil
	})
	if err != nil {
		s.fail(err)
		return 0, err
	}
	s.checkAutoSave()
	return headerID, nil
}

// chunkStats is a small diagnostic summary surfaced by PrintStreamingStats.
type chunkStats struct {
	Headers  int
	Children int
}

func (s *Store) collectChunkStats() chunkStats {
	var st chunkStats
	for i := 0; i < s.capacity; i++ {
		sl := s.slotAt(i)
		if !sl.isLive() {
			continue
		}
		switch sl.typ() {
		case TypeChunkHeader:
			st.Headers++
		case TypeChunkData:
			st.Children++
		}
	}
	return st
}

func (s chunkStats) String() string {
	return fmt.Sprintf("chunk headers=%d children=%d", s.Headers, s.Children)
}
