// Package storage provides the filesystem, memory-mapping, and advisory
// locking primitives shared by pkg/lattice, pkg/wal, and pkg/license.
//
// It consolidates two abstractions that the teacher codebase this project
// was bootstrapped from kept in separate, slightly inconsistent packages:
// a filesystem interface for testability, and a flock-based advisory
// locker. Here they live together as one coherent dependency.
package storage

import (
	"io"
	"os"
)

// File represents an OS-backed open file descriptor.
//
// Implementations must behave like [os.File], including that Fd returns a
// valid OS file descriptor usable with syscalls until the file is closed.
type File interface {
	io.ReadWriteCloser
	io.Seeker
	io.ReaderAt
	io.WriterAt

	Fd() uintptr
	Stat() (os.FileInfo, error)
	Sync() error
	Chmod(mode os.FileMode) error
	Truncate(size int64) error
}

// FS defines the filesystem operations the store, WAL and license gate need.
// Paths use OS semantics, not io/fs slash-separated paths.
type FS interface {
	Open(path string) (File, error)
	Create(path string) (File, error)
	OpenFile(path string, flag int, perm os.FileMode) (File, error)
	ReadFile(path string) ([]byte, error)
	WriteFile(path string, data []byte, perm os.FileMode) error
	MkdirAll(path string, perm os.FileMode) error
	Stat(path string) (os.FileInfo, error)
	Exists(path string) (bool, error)
	Remove(path string) error
	Rename(oldpath, newpath string) error
}

// Real is the production FS implementation, backed directly by the os package.
type Real struct{}

// NewReal returns a Real filesystem.
func NewReal() *Real { return &Real{} }

func (Real) Open(path string) (File, error) { return os.Open(path) }

func (Real) Create(path string) (File, error) { return os.Create(path) }

func (Real) OpenFile(path string, flag int, perm os.FileMode) (File, error) {
	return os.OpenFile(path, flag, perm)
}

func (Real) ReadFile(path string) ([]byte, error) { return os.ReadFile(path) }

func (Real) WriteFile(path string, data []byte, perm os.FileMode) error {
	return os.WriteFile(path, data, perm)
}

func (Real) MkdirAll(path string, perm os.FileMode) error { return os.MkdirAll(path, perm) }

func (Real) Stat(path string) (os.FileInfo, error) { return os.Stat(path) }

func (Real) Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (Real) Remove(path string) error { return os.Remove(path) }

func (Real) Rename(oldpath, newpath string) error { return os.Rename(oldpath, newpath) }

var _ File = (*os.File)(nil)
var _ FS = (*Real)(nil)
