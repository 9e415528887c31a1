// Package fstest provides fault-injecting storage.FS/storage.File
// implementations for crash-recovery tests, scaled down from the teacher's
// much larger pkg/fs.Chaos/internal/fs.Chaos machinery (see DESIGN.md for
// what was dropped and why).
package fstest

import (
	"math/rand"
	"os"
	"sync"
	"syscall"

	"github.com/synrix/lattice/pkg/storage"
)

// Config controls fault injection probabilities, 0.0 (never) to 1.0
// (always). The zero value injects nothing.
type Config struct {
	WriteFailRate float64 // File.Write fails entirely with EIO
	SyncFailRate  float64 // File.Sync fails entirely with EIO
	OpenFailRate  float64 // FS.OpenFile fails entirely with EIO
}

// Chaos wraps a storage.FS, injecting faults per Config into OpenFile (and so
// Open and Create) and into Write, WriteAt and Sync on the files it opens;
// every other FS call passes straight through. It is safe for concurrent use.
type Chaos struct {
	fs     storage.FS
	mu     sync.Mutex
	rng    *rand.Rand
	config Config
}

// New wraps fs with deterministic fault injection seeded by seed.
func New(fs storage.FS, seed int64, config Config) *Chaos {
	return &Chaos{fs: fs, rng: rand.New(rand.NewSource(seed)), config: config}
}

func (c *Chaos) roll(rate float64) bool {
	if rate <= 0 {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rng.Float64() < rate
}

func ioErr(path string, op string) error {
	return &os.PathError{Op: op, Path: path, Err: syscall.EIO}
}

func (c *Chaos) Open(path string) (storage.File, error) { return c.OpenFile(path, os.O_RDONLY, 0) }

func (c *Chaos) Create(path string) (storage.File, error) {
	return c.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
}

func (c *Chaos) OpenFile(path string, flag int, perm os.FileMode) (storage.File, error) {
	if c.roll(c.config.OpenFailRate) {
		return nil, ioErr(path, "open")
	}
	f, err := c.fs.OpenFile(path, flag, perm)
	if err != nil {
		return nil, err
	}
	return &chaosFile{File: f, path: path, chaos: c}, nil
}

func (c *Chaos) ReadFile(path string) ([]byte, error)  { return c.fs.ReadFile(path) }
func (c *Chaos) WriteFile(path string, data []byte, perm os.FileMode) error {
	return c.fs.WriteFile(path, data, perm)
}
func (c *Chaos) MkdirAll(path string, perm os.FileMode) error { return c.fs.MkdirAll(path, perm) }
func (c *Chaos) Stat(path string) (os.FileInfo, error)        { return c.fs.Stat(path) }
func (c *Chaos) Exists(path string) (bool, error)             { return c.fs.Exists(path) }
func (c *Chaos) Remove(path string) error                     { return c.fs.Remove(path) }
func (c *Chaos) Rename(oldpath, newpath string) error         { return c.fs.Rename(oldpath, newpath) }

var _ storage.FS = (*Chaos)(nil)

// chaosFile wraps an open storage.File, injecting write/sync faults. Reads,
// seeks and close always pass through: the store/WAL recovery paths this
// package exists to exercise care about torn writes, not torn reads.
type chaosFile struct {
	storage.File
	path  string
	chaos *Chaos
}

func (f *chaosFile) Write(p []byte) (int, error) {
	if f.chaos.roll(f.chaos.config.WriteFailRate) {
		return 0, ioErr(f.path, "write")
	}
	return f.File.Write(p)
}

func (f *chaosFile) WriteAt(p []byte, off int64) (int, error) {
	if f.chaos.roll(f.chaos.config.WriteFailRate) {
		return 0, ioErr(f.path, "write")
	}
	return f.File.WriteAt(p, off)
}

func (f *chaosFile) Sync() error {
	if f.chaos.roll(f.chaos.config.SyncFailRate) {
		return ioErr(f.path, "fsync")
	}
	return f.File.Sync()
}

var _ storage.File = (*chaosFile)(nil)
