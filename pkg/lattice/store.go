package lattice

import (
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/synrix/lattice/internal/logging"
	"github.com/synrix/lattice/pkg/license"
	"github.com/synrix/lattice/pkg/storage"
	"github.com/synrix/lattice/pkg/wal"
)

var verbose = logging.New("SYNRIX_VERBOSE")

// Store is a single lattice node store. It is not safe for concurrent
// writers; concurrent readers are safe once EnableIsolation has been called.
type Store struct {
	opts Options
	fsys storage.FS

	file    storage.File
	mapping *storage.Mapping // disk mode only; nil in RAM mode

	buf      []byte // header + slot array; grown Go slice (RAM) or mmap (disk)
	capacity int    // number of slots currently backed by buf

	liveCount   int
	nextLocalID uint32
	freeHint    int

	ridx           *reverseIndex
	pidx           *prefixIndex
	parentChildren map[uint64][]uint64

	lastAccess    []int64 // RAM-mode LRU clock per slot
	accessClock   int64

	seq seqlock

	walEngine *wal.Engine
	gate      *license.Gate

	opsSinceSave atomic.Int64

	lastErr error
	dirty   bool
	closed  bool
}

// Init opens or creates the store described by opts (spec §4.B init).
func Init(fsys storage.FS, opts Options) (*Store, error) {
	opts.setDefaults()
	if opts.Path == "" {
		return nil, ErrInvalidPath
	}
	if opts.Mode == ModeDisk && opts.TotalFileNodes <= 0 {
		return nil, fmt.Errorf("%w: disk mode requires TotalFileNodes", ErrInvalidNode)
	}

	s := &Store{
		opts:           opts,
		fsys:           fsys,
		ridx:           newReverseIndex(maxOf(opts.MaxRAMNodes, opts.TotalFileNodes)),
		pidx:           newPrefixIndex(),
		parentChildren: make(map[uint64][]uint64),
		nextLocalID:    1,
	}
	if opts.FreeTierLimit == 0 {
		opts.FreeTierLimit = license.DefaultFreeTierLimit
	}

	if opts.LicenseKey == "" {
		opts.LicenseKey = os.Getenv("SYNRIX_LICENSE_KEY")
	}
	gate, err := license.Open(fsys, opts.LicenseKey)
	if err != nil {
		return nil, fmt.Errorf("lattice: opening license gate: %w", err)
	}
	gate.Tier().SetFreeTierLimit(opts.FreeTierLimit)
	s.gate = gate

	exists, err := fsys.Exists(opts.Path)
	if err != nil {
		return nil, fmt.Errorf("lattice: stat %s: %w", opts.Path, err)
	}

	switch opts.Mode {
	case ModeDisk:
		if err := s.openDisk(exists); err != nil {
			return nil, err
		}
	default:
		if err := s.openRAM(exists); err != nil {
			return nil, err
		}
	}

	s.pidx.reset()
	s.rebuildIndices()

	if err := s.gate.Register(uint64(s.liveCount), opts.FreeTierLimit); err != nil {
		verbose.Printf("lattice: admission register failed: %v", err)
	}

	if opts.EnableIsolation {
		s.seq.enable()
	}

	if opts.EnableWAL {
		if err := s.EnableWAL(); err != nil {
			return nil, err
		}
	}

	return s, nil
}

func maxOf(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// openRAM loads an existing file into a grown in-memory buffer, or starts a
// fresh empty store.
func (s *Store) openRAM(exists bool) error {
	if !exists {
		s.capacity = s.opts.MaxRAMNodes
		s.buf = make([]byte, HeaderSize+s.capacity*RecordSize)
		s.lastAccess = make([]int64, s.capacity)
		encodeFileHeader(s.buf, fileHeader{Magic: DataMagic, NextLocalID: 1})
		return nil
	}

	data, err := s.fsys.ReadFile(s.opts.Path)
	if err != nil {
		return fmt.Errorf("lattice: reading %s: %w", s.opts.Path, err)
	}
	if len(data) < HeaderSize {
		return fmt.Errorf("%w: file smaller than header", ErrCorruption)
	}
	h := decodeFileHeader(data)
	if h.Magic != DataMagic {
		return ErrInvalidMagic
	}

	slotsInFile := (len(data) - HeaderSize) / RecordSize
	s.capacity = slotsInFile
	if s.capacity < s.opts.MaxRAMNodes {
		s.capacity = s.opts.MaxRAMNodes
	}
	s.buf = make([]byte, HeaderSize+s.capacity*RecordSize)
	copy(s.buf, data)
	s.lastAccess = make([]int64, s.capacity)

	s.nextLocalID = h.NextLocalID
	if s.nextLocalID == 0 {
		s.nextLocalID = 1
	}
	return nil
}

// openDisk pre-allocates (or opens) a fixed-capacity file and maps it.
func (s *Store) openDisk(exists bool) error {
	f, err := s.fsys.OpenFile(s.opts.Path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("lattice: open %s: %w", s.opts.Path, err)
	}
	s.file = f

	s.capacity = s.opts.TotalFileNodes
	size := int64(HeaderSize) + int64(s.capacity)*int64(RecordSize)

	if !exists {
		if err := f.Truncate(size); err != nil {
			_ = f.Close()
			return fmt.Errorf("lattice: preallocating %s: %w", s.opts.Path, err)
		}
		var hdr [HeaderSize]byte
		encodeFileHeader(hdr[:], fileHeader{Magic: DataMagic, NextLocalID: 1})
		if _, err := f.WriteAt(hdr[:], 0); err != nil {
			_ = f.Close()
			return fmt.Errorf("lattice: writing header: %w", err)
		}
	} else {
		info, err := f.Stat()
		if err != nil {
			_ = f.Close()
			return err
		}
		if info.Size() < size {
			if err := f.Truncate(size); err != nil {
				_ = f.Close()
				return fmt.Errorf("lattice: growing preallocated file: %w", err)
			}
		}
	}

	storage.HintSequential(int(f.Fd()), 0, size)

	m, err := storage.MapFile(int(f.Fd()), size)
	if err != nil {
		_ = f.Close()
		return err
	}
	s.mapping = m
	s.buf = m.Bytes()

	h := decodeFileHeader(s.buf)
	if h.Magic != DataMagic {
		return ErrInvalidMagic
	}
	s.nextLocalID = h.NextLocalID
	if s.nextLocalID == 0 {
		s.nextLocalID = 1
	}
	return nil
}

func (s *Store) slotAt(i int) slot {
	off := HeaderSize + i*RecordSize
	return slot(s.buf[off : off+RecordSize])
}

// rebuildIndices walks every slot once, reconstructing the reverse index,
// prefix index, and parent->children side index (spec §4.B/§4.C/§9).
func (s *Store) rebuildIndices() {
	s.liveCount = 0
	s.parentChildren = make(map[uint64][]uint64)

	consecutiveInvalid := 0
	for i := 0; i < s.capacity; i++ {
		sl := s.slotAt(i)
		if !sl.isLive() {
			consecutiveInvalid++
			if consecutiveInvalid >= 10 {
				break
			}
			continue
		}
		consecutiveInvalid = 0

		if !isPlausibleSlot(sl, s.opts.MaxRAMNodes) {
			continue
		}

		s.liveCount++
		localID := LocalID(sl.id())
		s.ridx.set(localID, uint32(i))

		name := fixedString(sl.nameBytes())
		s.pidx.add(name, sl.id())

		if parent := sl.parentID(); parent != 0 {
			s.parentChildren[parent] = append(s.parentChildren[parent], sl.id())
		}

		if localID >= LocalID(s.nextLocalID) {
			s.nextLocalID = localID + 1
		}
	}
}

// isPlausibleSlot implements the load-time corruption checks of spec §4.B:
// child_count is no longer persisted so this only checks type and local_id
// bounds (chunk children are exempt from the local_id bound).
func isPlausibleSlot(sl slot, maxNodes int) bool {
	if !sl.typ().Valid() {
		return false
	}
	name := fixedString(sl.nameBytes())
	isChunk := len(name) >= 2 && name[:2] == "C:"
	if !isChunk && LocalID(sl.id()) > uint32(10*maxOf(maxNodes, 1)) {
		return false
	}
	return true
}

// LastError returns the error set by the most recently failed mutation.
func (s *Store) LastError() error { return s.lastErr }

func (s *Store) fail(err error) {
	s.lastErr = err
}

func nowMicro() int64 { return time.Now().UnixMicro() }

// findFreeSlot returns the index of a dead (non-live) slot, scanning from
// freeHint so repeated allocation doesn't restart at slot 0 every time.
func (s *Store) findFreeSlot() (int, bool) {
	for i := 0; i < s.capacity; i++ {
		idx := (s.freeHint + i) % s.capacity
		if !s.slotAt(idx).isLive() {
			s.freeHint = idx + 1
			return idx, true
		}
	}
	return 0, false
}

// growRAM doubles the in-memory buffer. Disk mode never grows past its
// pre-allocated capacity (spec §4.A).
func (s *Store) growRAM() {
	newCap := s.capacity * 2
	if newCap == 0 {
		newCap = s.opts.MaxRAMNodes
	}
	newBuf := make([]byte, HeaderSize+newCap*RecordSize)
	copy(newBuf, s.buf)
	s.buf = newBuf

	newAccess := make([]int64, newCap)
	copy(newAccess, s.lastAccess)
	s.lastAccess = newAccess

	s.capacity = newCap
}

// allocateSlot finds a dead slot to reuse, growing the RAM-mode buffer if
// none is free. Disk mode returns ErrCapacityExhausted once full.
func (s *Store) allocateSlot() (int, error) {
	if idx, ok := s.findFreeSlot(); ok {
		return idx, nil
	}
	if s.opts.Mode == ModeDisk {
		return 0, ErrCapacityExhausted
	}
	s.growRAM()
	idx, ok := s.findFreeSlot()
	if !ok {
		return 0, ErrCapacityExhausted
	}
	return idx, nil
}
