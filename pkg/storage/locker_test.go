package storage

import (
	"path/filepath"
	"testing"
	"time"
)

func Test_Lock_Then_TryLock_On_The_Same_Path_Would_Block(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "held.lock")
	locker := NewLocker(NewReal())

	held, err := locker.Lock(path)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	defer held.Close()

	if _, err := locker.TryLock(path); err != ErrWouldBlock {
		t.Fatalf("err = %v, want ErrWouldBlock", err)
	}
}

func Test_Lock_Is_Released_By_Close_Allowing_A_Subsequent_Lock(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "release.lock")
	locker := NewLocker(NewReal())

	first, err := locker.Lock(path)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	second, err := locker.TryLock(path)
	if err != nil {
		t.Fatalf("TryLock after release: %v", err)
	}
	defer second.Close()
}

func Test_Lock_Close_Is_Idempotent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "idempotent.lock")
	locker := NewLocker(NewReal())

	lk, err := locker.Lock(path)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if err := lk.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := lk.Close(); err != nil {
		t.Fatalf("second Close must be a no-op, got: %v", err)
	}
}

func Test_RLock_Allows_Multiple_Concurrent_Shared_Holders(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "shared.lock")
	locker := NewLocker(NewReal())

	a, err := locker.RLock(path)
	if err != nil {
		t.Fatalf("RLock a: %v", err)
	}
	defer a.Close()

	b, err := locker.TryRLock(path)
	if err != nil {
		t.Fatalf("TryRLock b: %v", err)
	}
	defer b.Close()
}

func Test_TryLock_Conflicts_With_An_Existing_RLock(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "conflict.lock")
	locker := NewLocker(NewReal())

	shared, err := locker.RLock(path)
	if err != nil {
		t.Fatalf("RLock: %v", err)
	}
	defer shared.Close()

	if _, err := locker.TryLock(path); err != ErrWouldBlock {
		t.Fatalf("err = %v, want ErrWouldBlock", err)
	}
}

func Test_LockWithTimeout_Rejects_A_Non_Positive_Timeout(t *testing.T) {
	t.Parallel()

	locker := NewLocker(NewReal())
	path := filepath.Join(t.TempDir(), "timeout.lock")
	if _, err := locker.LockWithTimeout(path, 0); err != ErrInvalidTimeout {
		t.Fatalf("err = %v, want ErrInvalidTimeout", err)
	}
}

func Test_LockWithTimeout_Times_Out_While_Another_Holder_Keeps_The_Lock(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "timeout-held.lock")
	locker := NewLocker(NewReal())

	held, err := locker.Lock(path)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	defer held.Close()

	start := time.Now()
	_, err = locker.LockWithTimeout(path, 50*time.Millisecond)
	elapsed := time.Since(start)

	if err != ErrWouldBlock {
		t.Fatalf("err = %v, want ErrWouldBlock", err)
	}
	if elapsed < 50*time.Millisecond {
		t.Errorf("returned after %s, want at least the 50ms timeout", elapsed)
	}
}

func Test_Lock_Creates_Missing_Parent_Directories(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "dirs", "file.lock")
	locker := NewLocker(NewReal())

	lk, err := locker.Lock(path)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	defer lk.Close()
}
