package lattice

import "encoding/binary"

// DataMagic identifies a lattice data file ("LATT").
const DataMagic uint32 = 0x4C415454

// File header layout (spec §4.A), little-endian, fixed offsets:
//
//	offset 0  : u32 magic
//	offset 4  : u32 node_count_committed
//	offset 8  : u32 next_local_id
//	offset 12 : u32 nodes_to_load
//	offset 16 : record slots begin
const (
	offMagic              = 0
	offNodeCountCommitted = 4
	offNextLocalID        = 8
	offNodesToLoad        = 12
	HeaderSize            = 16
)

type fileHeader struct {
	Magic              uint32
	NodeCountCommitted uint32
	NextLocalID        uint32
	NodesToLoad        uint32
}

func encodeFileHeader(buf []byte, h fileHeader) {
	binary.LittleEndian.PutUint32(buf[offMagic:], h.Magic)
	binary.LittleEndian.PutUint32(buf[offNodeCountCommitted:], h.NodeCountCommitted)
	binary.LittleEndian.PutUint32(buf[offNextLocalID:], h.NextLocalID)
	binary.LittleEndian.PutUint32(buf[offNodesToLoad:], h.NodesToLoad)
}

func decodeFileHeader(buf []byte) fileHeader {
	return fileHeader{
		Magic:              binary.LittleEndian.Uint32(buf[offMagic:]),
		NodeCountCommitted: binary.LittleEndian.Uint32(buf[offNodeCountCommitted:]),
		NextLocalID:        binary.LittleEndian.Uint32(buf[offNextLocalID:]),
		NodesToLoad:        binary.LittleEndian.Uint32(buf[offNodesToLoad:]),
	}
}

// slotOffset returns the byte offset of record slot i within the data file.
func slotOffset(i int) int64 {
	return HeaderSize + int64(i)*int64(RecordSize)
}
