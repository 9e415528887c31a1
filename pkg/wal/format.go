package wal

import "encoding/binary"

// Magic identifies a WAL file ("WAL ").
const Magic uint32 = 0x57414C20

// Version is the current WAL file format version.
const Version uint32 = 1

// Op is the closed set of loggable mutation kinds (spec §4.E).
type Op uint8

const (
	OpAddNode Op = iota + 1
	OpUpdateNode
	OpDeleteNode
	OpAddChild
	OpCheckpoint
)

func (op Op) valid() bool { return op >= OpAddNode && op <= OpCheckpoint }

// Header is the WAL's "State Ledger" (spec §4.E), 40 bytes, little-endian:
//
//	u32 magic
//	u32 version
//	u64 sequence              ; highest assigned
//	u64 checkpoint_sequence   ; everything <= this is applied to the data file
//	u64 commit_count          ; durability watermark
//	u64 last_valid_offset     ; end-of-valid-data byte offset
const HeaderSize = 4 + 4 + 8 + 8 + 8 + 8

type Header struct {
	Magic              uint32
	Version            uint32
	Sequence           uint64
	CheckpointSequence uint64
	CommitCount        uint64
	LastValidOffset    uint64
}

func encodeHeader(buf []byte, h Header) {
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint32(buf[4:8], h.Version)
	binary.LittleEndian.PutUint64(buf[8:16], h.Sequence)
	binary.LittleEndian.PutUint64(buf[16:24], h.CheckpointSequence)
	binary.LittleEndian.PutUint64(buf[24:32], h.CommitCount)
	binary.LittleEndian.PutUint64(buf[32:40], h.LastValidOffset)
}

func decodeHeader(buf []byte) Header {
	return Header{
		Magic:              binary.LittleEndian.Uint32(buf[0:4]),
		Version:            binary.LittleEndian.Uint32(buf[4:8]),
		Sequence:           binary.LittleEndian.Uint64(buf[8:16]),
		CheckpointSequence: binary.LittleEndian.Uint64(buf[16:24]),
		CommitCount:        binary.LittleEndian.Uint64(buf[24:32]),
		LastValidOffset:    binary.LittleEndian.Uint64(buf[32:40]),
	}
}

// entryHeaderSize is the fixed prefix of a log record: sequence(8) +
// operation(1) + node_id(8) + data_size(4) = 21 bytes (spec §4.E).
const entryHeaderSize = 8 + 1 + 8 + 4

// MaxEntrySize bounds a single entry's payload; recovery truncates the log
// at any entry claiming more than this (spec §4.E recovery rule).
const MaxEntrySize = 1 << 20 // 1,048,576

// Entry is one WAL log record.
type Entry struct {
	Sequence uint64
	Op       Op
	NodeID   uint64
	Payload  []byte
}

// encodeEntry serializes e into its wire form: header followed by payload.
func encodeEntry(e Entry) []byte {
	buf := make([]byte, entryHeaderSize+len(e.Payload))
	binary.LittleEndian.PutUint64(buf[0:8], e.Sequence)
	buf[8] = byte(e.Op)
	binary.LittleEndian.PutUint64(buf[9:17], e.NodeID)
	binary.LittleEndian.PutUint32(buf[17:21], uint32(len(e.Payload)))
	copy(buf[entryHeaderSize:], e.Payload)
	return buf
}

// isSentinel reports whether a raw entry-header-sized buffer is all zero,
// marking the end of the valid WAL region.
func isSentinel(hdr []byte) bool {
	for _, b := range hdr {
		if b != 0 {
			return false
		}
	}
	return true
}

func decodeEntryHeader(hdr []byte) (seq uint64, op Op, nodeID uint64, dataSize uint32) {
	seq = binary.LittleEndian.Uint64(hdr[0:8])
	op = Op(hdr[8])
	nodeID = binary.LittleEndian.Uint64(hdr[9:17])
	dataSize = binary.LittleEndian.Uint32(hdr[17:21])
	return
}

// --- ADD_NODE payload packing (spec §4.E) ---
// type:u8 | name_len:u32 | name | data_len:u32 | data | parent_id:u64

func EncodeAddNodePayload(nodeType uint8, name string, data []byte, parentID uint64) []byte {
	buf := make([]byte, 0, 1+4+len(name)+4+len(data)+8)
	buf = append(buf, nodeType)
	buf = appendU32Prefixed(buf, []byte(name))
	buf = appendU32Prefixed(buf, data)
	var pidBuf [8]byte
	binary.LittleEndian.PutUint64(pidBuf[:], parentID)
	buf = append(buf, pidBuf[:]...)
	return buf
}

func DecodeAddNodePayload(p []byte) (nodeType uint8, name string, data []byte, parentID uint64, err error) {
	if len(p) < 1+4 {
		return 0, "", nil, 0, ErrCorrupt
	}
	nodeType = p[0]
	rest := p[1:]

	nameBytes, rest, err := readU32Prefixed(rest)
	if err != nil {
		return 0, "", nil, 0, err
	}
	dataBytes, rest, err := readU32Prefixed(rest)
	if err != nil {
		return 0, "", nil, 0, err
	}
	if len(rest) < 8 {
		return 0, "", nil, 0, ErrCorrupt
	}
	parentID = binary.LittleEndian.Uint64(rest[:8])
	return nodeType, string(nameBytes), dataBytes, parentID, nil
}

// --- ADD_CHILD payload packing ---
// parent_id:u64 | child_id:u64

func EncodeAddChildPayload(parentID, childID uint64) []byte {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint64(buf[0:8], parentID)
	binary.LittleEndian.PutUint64(buf[8:16], childID)
	return buf
}

func DecodeAddChildPayload(p []byte) (parentID, childID uint64, err error) {
	if len(p) < 16 {
		return 0, 0, ErrCorrupt
	}
	return binary.LittleEndian.Uint64(p[0:8]), binary.LittleEndian.Uint64(p[8:16]), nil
}

func appendU32Prefixed(buf []byte, data []byte) []byte {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(data)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, data...)
	return buf
}

func readU32Prefixed(buf []byte) (data []byte, rest []byte, err error) {
	if len(buf) < 4 {
		return nil, nil, ErrCorrupt
	}
	n := binary.LittleEndian.Uint32(buf[0:4])
	buf = buf[4:]
	if uint32(len(buf)) < n {
		return nil, nil, ErrCorrupt
	}
	return buf[:n], buf[n:], nil
}
