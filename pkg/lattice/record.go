package lattice

import (
	"bytes"
	"encoding/binary"
	"math"
)

// Record layout (fixed, identical on disk and in memory):
//
//	0   id            u64
//	8   type          u8
//	9   reserved      [7]byte  (alignment padding)
//	16  name          [64]byte NUL-terminated
//	80  data          [512]byte
//	592 parent_id     u64
//	600 reservedChild u64      (was an in-memory children pointer; always
//	                            zero on write, ignored on read — see
//	                            SPEC_FULL.md §2.14 / spec.md §9 design notes)
//	608 confidence    float64 bits
//	616 timestamp     i64
//	624 payload       [64]byte
//	688 total
const (
	recOffID         = 0
	recOffType       = 8
	recOffName       = 16
	recOffData       = recOffName + NameSize       // 80
	recOffParentID   = recOffData + DataSize       // 592
	recOffReserved   = recOffParentID + 8          // 600
	recOffConfidence = recOffReserved + 8          // 608
	recOffTimestamp  = recOffConfidence + 8        // 616
	recOffPayload    = recOffTimestamp + 8         // 624
	RecordSize       = recOffPayload + PayloadSize // 688
)

// slot is a RecordSize-wide view into either a RAM-mode Go buffer or a
// disk-mode memory mapping. Using a slice view rather than a fixed-size
// array lets both backings share the same accessor code without copying.
type slot []byte

func (r slot) id() uint64 { return binary.LittleEndian.Uint64(r[recOffID:]) }

func (r slot) setID(v uint64) { binary.LittleEndian.PutUint64(r[recOffID:], v) }

func (r slot) typ() NodeType { return NodeType(r[recOffType]) }

func (r slot) setType(t NodeType) { r[recOffType] = byte(t) }

func (r slot) nameBytes() []byte { return r[recOffName : recOffName+NameSize] }

func (r slot) dataBytes() []byte { return r[recOffData : recOffData+DataSize] }

func (r slot) parentID() uint64 { return binary.LittleEndian.Uint64(r[recOffParentID:]) }

func (r slot) setParentID(v uint64) { binary.LittleEndian.PutUint64(r[recOffParentID:], v) }

func (r slot) confidence() float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(r[recOffConfidence:]))
}

func (r slot) setConfidence(v float64) {
	binary.LittleEndian.PutUint64(r[recOffConfidence:], math.Float64bits(v))
}

func (r slot) timestamp() int64 {
	return int64(binary.LittleEndian.Uint64(r[recOffTimestamp:]))
}

func (r slot) setTimestamp(v int64) {
	binary.LittleEndian.PutUint64(r[recOffTimestamp:], uint64(v))
}

func (r slot) payloadBytes() []byte { return r[recOffPayload : recOffPayload+PayloadSize] }

// isLive reports invariant 2: a slot is live iff id != 0 and type is valid.
func (r slot) isLive() bool {
	return r.id() != 0 && r.typ().Valid()
}

// clear zeroes a slot, leaving a dead record in place.
func (r slot) clear() {
	for i := range r {
		r[i] = 0
	}
}

// clearID implements the disk-mode tombstone policy resolved in
// SPEC_FULL.md §6 (spec §9 open question 3): zero only the id field,
// leaving type/name/data as forensic residue, matching the teacher's own
// pkg/slotcache/writer.go:deleteSlot tombstone style.
func (r slot) clearID() { r.setID(0) }

func setFixedString(dst []byte, s string) {
	for i := range dst {
		dst[i] = 0
	}
	n := copy(dst, s)
	if n < len(dst) {
		dst[n] = 0
	} else {
		dst[len(dst)-1] = 0
	}
}

func fixedString(src []byte) string {
	if i := bytes.IndexByte(src, 0); i >= 0 {
		return string(src[:i])
	}
	return string(src)
}

// encodeInto writes n into an existing RecordSize-wide slot. The reserved
// children-pointer field and child_count are never persisted (spec §3).
func encodeInto(r slot, n *Node) {
	r.setID(n.ID)
	r.setType(n.Type)
	setFixedString(r.nameBytes(), n.Name)
	clearBytes(r.dataBytes())
	copy(r.dataBytes(), n.Data)
	r.setParentID(n.ParentID)
	r.setConfidence(n.Confidence)
	r.setTimestamp(n.Timestamp)
	clearBytes(r.payloadBytes())
	copy(r.payloadBytes(), n.Payload)
}

func clearBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// decodeNode builds an owned Node copy from a slot. Children is left empty;
// callers reconstruct it from the parent_id side index.
func decodeNode(r slot) *Node {
	data := make([]byte, DataSize)
	copy(data, r.dataBytes())
	payload := make([]byte, PayloadSize)
	copy(payload, r.payloadBytes())

	return &Node{
		ID:         r.id(),
		Type:       r.typ(),
		Name:       fixedString(r.nameBytes()),
		Data:       data,
		ParentID:   r.parentID(),
		Confidence: r.confidence(),
		Timestamp:  r.timestamp(),
		Payload:    payload,
	}
}

// detectBinary implements the §4.B / §9 binary-vs-text heuristic: the first
// two bytes are read as a little-endian u16 length (high bit = compressed
// flag); if the implied length is plausible and the buffer does not look
// like a valid NUL-terminated string, the record is treated as binary. A
// valid string has at least two bytes before its NUL and no control bytes
// other than tab, newline and carriage return, so a NUL inside the length
// header marks an envelope. Empty and one-byte text records therefore read
// as binary.
func detectBinary(data []byte) (isBinary bool, length int, compressed bool) {
	if len(data) < 2 {
		return false, 0, false
	}
	raw := binary.LittleEndian.Uint16(data[0:2])
	compressed = raw&0x8000 != 0
	length = int(raw &^ 0x8000)

	lengthPlausible := length <= MaxBinaryLen
	end := bytes.IndexByte(data, 0)
	validString := end >= 2
	for i := 0; validString && i < end; i++ {
		if b := data[i]; b < 0x20 && b != '\t' && b != '\n' && b != '\r' {
			validString = false
		}
	}
	isBinary = lengthPlausible && !validString
	return isBinary, length, compressed
}

// encodeBinaryEnvelope writes the u16 length header (plus compressed flag)
// followed by payload into a DataSize-wide buffer.
func encodeBinaryEnvelope(payload []byte, compressed bool) ([]byte, error) {
	if len(payload) > MaxBinaryLen {
		return nil, ErrInvalidNode
	}
	buf := make([]byte, DataSize)
	length := uint16(len(payload))
	if compressed {
		length |= 0x8000
	}
	binary.LittleEndian.PutUint16(buf[0:2], length)
	copy(buf[2:], payload)
	return buf, nil
}

// decodeBinaryEnvelope extracts the payload bytes described by a binary
// envelope, per the detected length.
func decodeBinaryEnvelope(data []byte) []byte {
	_, length, _ := detectBinary(data)
	if length > len(data)-2 {
		length = len(data) - 2
	}
	out := make([]byte, length)
	copy(out, data[2:2+length])
	return out
}
