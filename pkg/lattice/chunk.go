package lattice

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"sort"
	"strconv"
	"strings"
)

// chunkMeta is the fixed metadata blob stored in a CHUNK_HEADER parent's
// data field (spec §3 invariant 5, §4.D).
type chunkMeta struct {
	TotalSize         uint64
	ChunkCount        uint32
	Checksum          uint64
	FirstChunkLocalID uint32
	ChunkIDs          []uint64 // present only if it fits alongside the fixed prefix
}

func encodeChunkMeta(m chunkMeta) []byte {
	buf := make([]byte, DataSize)
	binary.LittleEndian.PutUint64(buf[0:8], m.TotalSize)
	binary.LittleEndian.PutUint32(buf[8:12], m.ChunkCount)
	binary.LittleEndian.PutUint64(buf[12:20], m.Checksum)
	binary.LittleEndian.PutUint32(buf[20:24], m.FirstChunkLocalID)

	if len(m.ChunkIDs) > 0 {
		need := ChunkMetaSize + 8*len(m.ChunkIDs)
		if need <= DataSize {
			off := ChunkMetaSize
			for _, id := range m.ChunkIDs {
				binary.LittleEndian.PutUint64(buf[off:off+8], id)
				off += 8
			}
		}
	}
	return buf
}

func decodeChunkMeta(data []byte) chunkMeta {
	m := chunkMeta{
		TotalSize:         binary.LittleEndian.Uint64(data[0:8]),
		ChunkCount:        binary.LittleEndian.Uint32(data[8:12]),
		Checksum:          binary.LittleEndian.Uint64(data[12:20]),
		FirstChunkLocalID: binary.LittleEndian.Uint32(data[20:24]),
	}

	need := ChunkMetaSize + 8*int(m.ChunkCount)
	if m.ChunkCount > 0 && need <= DataSize {
		ids := make([]uint64, m.ChunkCount)
		off := ChunkMetaSize
		for i := range ids {
			ids[i] = binary.LittleEndian.Uint64(data[off : off+8])
			off += 8
		}
		m.ChunkIDs = ids
	}
	return m
}

func chunkChecksum(b []byte) uint64 {
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}

// chunkParentName ensures the parent's name carries the "C:" marker spec §3
// invariant 5 requires for chunk detection.
func chunkParentName(name string) string {
	if strings.HasPrefix(name, "C:") {
		return name
	}
	return "C:" + name
}

// chunkChildName formats a CHUNK_DATA child's name per spec §4.D.
func chunkChildName(parentID uint64, index, total int) string {
	return fmt.Sprintf("C:%d:%d:%d", parentID, index, total)
}

// parseChunkChildName extracts (parentID, index) from a name produced by
// chunkChildName, used by the scan-fallback reassembly path.
func parseChunkChildName(name string) (parentID uint64, index int, ok bool) {
	if !strings.HasPrefix(name, "C:") {
		return 0, 0, false
	}
	parts := strings.Split(name[2:], ":")
	if len(parts) != 3 {
		return 0, 0, false
	}
	pid, err1 := strconv.ParseUint(parts[0], 10, 64)
	idx, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return pid, idx, true
}

// splitChunks divides bytes into ChunkPayloadSize-sized pieces, per spec
// §4.D's contiguous-chunk-children design.
func splitChunks(data []byte) [][]byte {
	if len(data) == 0 {
		return nil
	}
	var chunks [][]byte
	for off := 0; off < len(data); off += ChunkPayloadSize {
		end := off + ChunkPayloadSize
		if end > len(data) {
			end = len(data)
		}
		chunks = append(chunks, data[off:end])
	}
	return chunks
}

// encodeChunkChild builds the data+payload fields for one CHUNK_DATA child.
func encodeChunkChild(index int, payload []byte) (data, recordPayload []byte) {
	data = make([]byte, DataSize)
	binary.LittleEndian.PutUint16(data[0:2], uint16(len(payload)))
	copy(data[2:], payload)

	recordPayload = make([]byte, PayloadSize)
	binary.LittleEndian.PutUint64(recordPayload[0:8], uint64(index))
	return data, recordPayload
}

func decodeChunkChild(data, recordPayload []byte) (index int, payload []byte) {
	length := binary.LittleEndian.Uint16(data[0:2])
	payload = make([]byte, length)
	copy(payload, data[2:2+int(length)])
	index = int(binary.LittleEndian.Uint64(recordPayload[0:8]))
	return index, payload
}

// reassembleChunks sorts children by parsed index and concatenates their
// payloads, truncating to totalSize (spec §4.D reassembly contract).
func reassembleChunks(children []*Node, totalSize uint64) ([]byte, error) {
	type indexed struct {
		idx  int
		data []byte
	}
	items := make([]indexed, 0, len(children))
	for _, c := range children {
		idx, payload := decodeChunkChild(c.Data, c.Payload)
		items = append(items, indexed{idx: idx, data: payload})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].idx < items[j].idx })

	out := make([]byte, 0, totalSize)
	for _, it := range items {
		out = append(out, it.data...)
	}
	if uint64(len(out)) < totalSize {
		return nil, ErrChunkIncomplete
	}
	return out[:totalSize], nil
}
