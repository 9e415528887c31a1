package storage

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// Mapping is a shared, read-write memory mapping of an open file.
type Mapping struct {
	mu   sync.Mutex
	data []byte
}

// MapFile maps the first size bytes of fd as PROT_READ|PROT_WRITE, MAP_SHARED.
func MapFile(fd int, size int64) (*Mapping, error) {
	data, err := unix.Mmap(fd, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap: %w", err)
	}
	return &Mapping{data: data}, nil
}

// Bytes returns the mapped region. Callers must not retain it past Unmap.
func (m *Mapping) Bytes() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data
}

// Msync flushes dirty pages in [off, off+n) to the backing file.
func (m *Mapping) Msync(off, n int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.data) == 0 {
		return nil
	}
	end := off + n
	if end > len(m.data) {
		end = len(m.data)
	}
	if off >= end {
		return nil
	}
	if err := unix.Msync(m.data[off:end], unix.MS_SYNC); err != nil {
		return fmt.Errorf("msync: %w", err)
	}
	return nil
}

// Unmap releases the mapping. Idempotent.
func (m *Mapping) Unmap() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return nil
	}
	err := unix.Munmap(m.data)
	m.data = nil
	if err != nil {
		return fmt.Errorf("munmap: %w", err)
	}
	return nil
}

// HintSequential advises the kernel that fd will be read sequentially, and
// that the byte range [off, off+n) will be needed soon. Used by disk-mode
// node stores ahead of large bulk writes to reduce page-fault stalls.
func HintSequential(fd int, off, n int64) {
	_ = unix.Fadvise(fd, off, n, unix.FADV_SEQUENTIAL)
	_ = unix.Fadvise(fd, off, n, unix.FADV_WILLNEED)
}
