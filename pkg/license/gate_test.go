package license

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/synrix/lattice/pkg/storage"
)

func Test_KeyHash_Is_Deterministic_And_Treats_Empty_Key_As_Free(t *testing.T) {
	t.Parallel()

	if KeyHash("") != KeyHash("free") {
		t.Error("an empty key must hash the same as the literal \"free\"")
	}
	if KeyHash("abc") != KeyHash("abc") {
		t.Error("KeyHash must be deterministic")
	}
	if KeyHash("abc") == KeyHash("xyz") {
		t.Error("distinct keys should not collide in this small sample")
	}
	if len(KeyHash("abc")) != 16 {
		t.Errorf("len(KeyHash) = %d, want 16 hex chars", len(KeyHash("abc")))
	}
}

func Test_CounterPath_Is_Rooted_Under_The_Home_Directory(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	path, err := CounterPath("some-key")
	if err != nil {
		t.Fatalf("CounterPath: %v", err)
	}
	if !strings.Contains(path, ".synrix") || !strings.HasSuffix(path, ".dat") {
		t.Errorf("path = %q, want it under .synrix/license_usage and ending in .dat", path)
	}
	if !strings.Contains(path, KeyHash("some-key")) {
		t.Errorf("path = %q, want it to contain the key's hash", path)
	}
}

func newTestGate(t *testing.T, licenseKey string) *Gate {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	g, err := Open(storage.NewReal(), licenseKey)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return g
}

func Test_Register_Sums_Into_The_Counter_Total(t *testing.T) {
	g := newTestGate(t, "")
	if err := g.Register(5, 100); err != nil {
		t.Fatalf("Register: %v", err)
	}
	total, limit, err := g.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if total != 5 || limit != 100 {
		t.Errorf("Read = (%d, %d), want (5, 100)", total, limit)
	}

	if err := g.Register(3, 0); err != nil {
		t.Fatalf("Register: %v", err)
	}
	total, limit, err = g.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if total != 8 || limit != 100 {
		t.Errorf("Read after second Register = (%d, %d), want (8, 100) (limit=0 must not overwrite)", total, limit)
	}
}

func Test_AddOne_Increments_Until_The_Limit_Then_Rejects(t *testing.T) {
	g := newTestGate(t, "")
	if err := g.Register(0, 2); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := g.AddOne(2); err != nil {
		t.Fatalf("AddOne 1: %v", err)
	}
	if err := g.AddOne(2); err != nil {
		t.Fatalf("AddOne 2: %v", err)
	}
	if err := g.AddOne(2); err == nil {
		t.Fatal("expected ErrLimitReached on the third AddOne")
	}

	total, _, err := g.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if total != 2 {
		t.Errorf("total = %d, want 2 (rejected AddOne must not increment)", total)
	}
}

func Test_AddOne_Uses_The_Passed_Limit_Only_When_The_Counter_File_Is_Missing(t *testing.T) {
	g := newTestGate(t, "fresh-key")
	if err := g.AddOne(1); err != nil {
		t.Fatalf("AddOne with a fresh counter file: %v", err)
	}
	if err := g.AddOne(1); err == nil {
		t.Fatal("expected the second AddOne to hit the limit established by the first call")
	}
}

func Test_Read_On_A_Nonexistent_Counter_Returns_Zero_Without_Error(t *testing.T) {
	g := newTestGate(t, "never-touched")
	total, limit, err := g.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if total != 0 || limit != 0 {
		t.Errorf("Read = (%d, %d), want (0, 0)", total, limit)
	}
}

func Test_Tier_Returns_A_Fresh_Tier_In_Evaluation_Mode(t *testing.T) {
	g := newTestGate(t, "")
	if !g.Tier().EvaluationMode() {
		t.Error("a freshly opened gate's tier must start in evaluation mode")
	}
}

func Test_ParseCounter_FormatCounter_Roundtrip(t *testing.T) {
	t.Parallel()

	cs := counterState{total: 42, limit: 1000}
	got := parseCounter(formatCounter(cs), 0)
	if got != cs {
		t.Errorf("parseCounter(formatCounter(cs)) = %+v, want %+v", got, cs)
	}
}

func Test_ParseCounter_Falls_Back_On_Malformed_Lines(t *testing.T) {
	t.Parallel()

	got := parseCounter([]byte("not-a-number\nalso-bad\n"), 7)
	want := counterState{total: 0, limit: 7}
	if got != want {
		t.Errorf("parseCounter = %+v, want %+v", got, want)
	}
}

func Test_WithLock_Creates_Parent_Directories_As_Needed(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	g, err := Open(storage.NewReal(), "nested-key")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := g.Register(1, 10); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if !strings.Contains(filepath.ToSlash(g.path), "license_usage") {
		t.Errorf("path = %q, want it under a license_usage directory", g.path)
	}
}
