package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func openTempFile(t *testing.T, size int64) *os.File {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mapped.dat")
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	if err := f.Truncate(size); err != nil {
		t.Fatalf("Truncate: %v", err)
	}
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func Test_MapFile_Bytes_Exposes_The_Mapped_Region(t *testing.T) {
	t.Parallel()

	f := openTempFile(t, 4096)
	m, err := MapFile(int(f.Fd()), 4096)
	if err != nil {
		t.Fatalf("MapFile: %v", err)
	}
	defer m.Unmap()

	data := m.Bytes()
	if len(data) != 4096 {
		t.Fatalf("len(Bytes()) = %d, want 4096", len(data))
	}
}

func Test_Writes_Through_The_Mapping_Are_Visible_After_Msync_And_Reread(t *testing.T) {
	t.Parallel()

	f := openTempFile(t, 4096)
	m, err := MapFile(int(f.Fd()), 4096)
	if err != nil {
		t.Fatalf("MapFile: %v", err)
	}
	defer m.Unmap()

	copy(m.Bytes(), []byte("hello-mmap"))
	if err := m.Msync(0, 10); err != nil {
		t.Fatalf("Msync: %v", err)
	}

	buf := make([]byte, 10)
	if _, err := f.ReadAt(buf, 0); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if string(buf) != "hello-mmap" {
		t.Errorf("ReadAt = %q, want %q", buf, "hello-mmap")
	}
}

func Test_Msync_On_An_Unmapped_Region_Is_A_No_Op(t *testing.T) {
	t.Parallel()

	f := openTempFile(t, 4096)
	m, err := MapFile(int(f.Fd()), 4096)
	if err != nil {
		t.Fatalf("MapFile: %v", err)
	}
	if err := m.Unmap(); err != nil {
		t.Fatalf("Unmap: %v", err)
	}
	if err := m.Msync(0, 10); err != nil {
		t.Errorf("Msync after Unmap should be a no-op, got: %v", err)
	}
}

func Test_Unmap_Is_Idempotent(t *testing.T) {
	t.Parallel()

	f := openTempFile(t, 4096)
	m, err := MapFile(int(f.Fd()), 4096)
	if err != nil {
		t.Fatalf("MapFile: %v", err)
	}
	if err := m.Unmap(); err != nil {
		t.Fatalf("first Unmap: %v", err)
	}
	if err := m.Unmap(); err != nil {
		t.Fatalf("second Unmap must be a no-op, got: %v", err)
	}
}

func Test_HintSequential_Does_Not_Panic_On_A_Real_Descriptor(t *testing.T) {
	t.Parallel()

	f := openTempFile(t, 4096)
	HintSequential(int(f.Fd()), 0, 4096)
}
