package lattice

// NodeType is the closed set of record kinds. Values outside this set mark
// a slot corrupt on load.
type NodeType uint8

const (
	TypeInvalid NodeType = iota
	TypePrimitive
	TypeLearning
	TypePerformance
	TypeCPTMetadata
	TypeChunkHeader
	TypeChunkData
	typeCount
)

// Valid reports whether t is one of the closed enum values (excluding
// TypeInvalid, which never marks a live slot).
func (t NodeType) Valid() bool {
	return t > TypeInvalid && t < typeCount
}

const (
	// NameSize is the fixed, NUL-terminated name field width.
	NameSize = 64
	// DataSize is the fixed payload field width (text or binary envelope).
	DataSize = 512
	// PayloadSize is the fixed opaque structured-field region, untouched by
	// the core beyond copying it.
	PayloadSize = 64

	// MaxBinaryLen is the largest binary payload DataSize can hold once the
	// 2-byte length envelope is accounted for.
	MaxBinaryLen = DataSize - 2

	// ChunkPayloadSize is the payload capacity of a single CHUNK_DATA
	// record. CHUNK_DATA children reuse the standard binary envelope in
	// their data field (so a chunk can carry up to MaxBinaryLen bytes, not
	// MaxBinaryLen-8) and carry their chunk_index in the record's Payload
	// field instead of inline in data.
	ChunkPayloadSize = MaxBinaryLen

	// ChunkMetaSize is the fixed prefix of a CHUNK_HEADER parent's data
	// field: {total_size:u64, chunk_count:u32, checksum:u64,
	// first_chunk_local_id:u32}.
	ChunkMetaSize = 24
)

// Node is an owned, in-memory copy of a lattice record. get_copy never
// returns a borrowed reference into growable storage — only Node values.
type Node struct {
	ID         uint64
	Type       NodeType
	Name       string
	Data       []byte // GetCopy: text up to the first NUL, or the decoded binary payload (see IsBinary); other lookups: the raw DataSize-byte field
	ParentID   uint64
	Children   []uint64 // reconstructed from parent_id links, never persisted
	Confidence float64
	Timestamp  int64 // microseconds since epoch

	// Payload carries opaque domain-specific structured fields. The core
	// copies it verbatim and never interprets its contents.
	Payload []byte
}

// ChildCount mirrors spec's child_count field: len(Children).
func (n *Node) ChildCount() int { return len(n.Children) }

// DeviceID extracts the high 32 bits of a composed id.
func DeviceID(id uint64) uint32 { return uint32(id >> 32) }

// LocalID extracts the low 32 bits of a composed id.
func LocalID(id uint64) uint32 { return uint32(id) }

// ComposeID builds a public id from a device id and a per-writer local id.
func ComposeID(deviceID, localID uint32) uint64 {
	return uint64(deviceID)<<32 | uint64(localID)
}

// Mode selects how the node array is backed.
type Mode int

const (
	// ModeRAM holds records in a grown in-memory buffer; save writes an
	// atomic snapshot.
	ModeRAM Mode = iota
	// ModeDisk pre-allocates the file to a fixed capacity and maps it
	// directly; growth beyond that capacity is an error.
	ModeDisk
)

// Options configures Init. It is a plain struct, not a parsed config file —
// matching how the teacher's own Options types are just validated structs.
type Options struct {
	Path string

	// Mode selects RAM or disk backing. Defaults to ModeRAM.
	Mode Mode

	// MaxRAMNodes is the initial RAM-mode capacity (spec default 10,000).
	MaxRAMNodes int

	// TotalFileNodes is the disk-mode pre-allocated capacity. Required when
	// Mode == ModeDisk.
	TotalFileNodes int

	// DeviceID is embedded in the high 32 bits of every id this writer
	// assigns.
	DeviceID uint32

	// EnableWAL turns on write-ahead logging at Init.
	EnableWAL bool

	// EnableIsolation turns on seqlock-guarded concurrent reads at Init.
	EnableIsolation bool

	// LicenseKey, if set, is hashed to select the admission-gate counter
	// file. When empty, Init uses the SYNRIX_LICENSE_KEY environment
	// variable; if that is empty too, the "free" counter is used.
	LicenseKey string

	// FreeTierLimit overrides the default in-process evaluation-mode cap
	// (spec default 25,000). Zero means use the default.
	FreeTierLimit uint64

	// AutoSaveInterval is the number of add-path mutations between automatic
	// saves (spec §4.B add's "...WAL append -> auto-save check" pipeline
	// step). Zero uses DefaultAutoSaveInterval; negative disables it, leaving
	// durability entirely to the WAL and caller-driven Save.
	AutoSaveInterval int
}

// DefaultAutoSaveInterval mirrors the low end of the WAL's adaptive batch
// window (spec §4.E), so an add-heavy workload without WAL enabled still
// gets a snapshot at roughly the same cadence a flush would have occurred.
const DefaultAutoSaveInterval = 1_000

func (o *Options) setDefaults() {
	if o.MaxRAMNodes <= 0 {
		o.MaxRAMNodes = 10_000
	}
	if o.AutoSaveInterval == 0 {
		o.AutoSaveInterval = DefaultAutoSaveInterval
	}
}

// FindFilters restrict find_by_name results (spec §4.B).
type FindFilters struct {
	MinConfidence float64
	HasMinConf    bool
	MinTimestamp  int64
	HasMinTS      bool
	MaxTimestamp  int64
	HasMaxTS      bool
}
