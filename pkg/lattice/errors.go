package lattice

import "errors"

// Closed error taxonomy (spec §7). Every failure a Store can surface is one
// of these, optionally wrapped with fmt.Errorf("%s: %w", detail, sentinel).
var (
	ErrNullInput         = errors.New("lattice: null input")
	ErrInvalidPath       = errors.New("lattice: invalid path")
	ErrInvalidMagic      = errors.New("lattice: invalid magic")
	ErrInvalidNode       = errors.New("lattice: invalid node")
	ErrCorruption        = errors.New("lattice: corruption detected")
	ErrOutOfMemory       = errors.New("lattice: out of memory")
	ErrCapacityExhausted = errors.New("lattice: capacity exhausted")
	ErrDiskFull          = errors.New("lattice: disk full")
	ErrIO                = errors.New("lattice: io error")
	ErrWALNotEnabled     = errors.New("lattice: wal not enabled")
	ErrWALCorruption     = errors.New("lattice: wal corruption")
	ErrLicenseInvalid    = errors.New("lattice: license invalid")
	ErrFreeTierLimit     = errors.New("lattice: free tier limit reached")
	ErrChunkIncomplete   = errors.New("lattice: chunk incomplete")
	ErrBufferTooSmall    = errors.New("lattice: buffer too small")
	ErrNotFound          = errors.New("lattice: node not found")
	ErrClosed            = errors.New("lattice: store closed")
	ErrBusy              = errors.New("lattice: read retries exhausted under concurrent writes")
)
