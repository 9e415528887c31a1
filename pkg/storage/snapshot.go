package storage

import (
	"bytes"
	"fmt"

	"github.com/natefinch/atomic"
)

// WriteSnapshot durably replaces the file at path with data using a
// temp-file-then-rename protocol, matching the POSIX half of the
// flush/unmap/close/replace/reopen/remap dance RAM-mode saves require.
//
// On POSIX filesystems rename-over-existing-file is atomic and this is the
// entire protocol. Platforms that refuse rename over an open/mapped handle
// need the caller to Unmap and Close its own mapping of path before calling
// WriteSnapshot, then reopen and remap afterward — that half of the dance is
// necessarily the caller's responsibility since only the caller holds the
// mapping.
func WriteSnapshot(path string, data []byte) error {
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("writing snapshot %s: %w", path, err)
	}
	return nil
}
