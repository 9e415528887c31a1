package lattice

import (
	"path/filepath"
	"testing"

	"github.com/synrix/lattice/internal/fstest"
	"github.com/synrix/lattice/pkg/license"
	"github.com/synrix/lattice/pkg/storage"
)

func Test_EnableWAL_Replays_Entries_After_A_Simulated_Crash(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	dir := t.TempDir()
	path := filepath.Join(dir, "crash.lattice")
	fsys := storage.NewReal()

	s1, err := Init(fsys, Options{Path: path, MaxRAMNodes: 8, EnableWAL: true})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	id, err := s1.Add("surv", []byte("ived"), 0)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s1.FlushWait(1); err != nil {
		t.Fatalf("FlushWait: %v", err)
	}
	// Close without checkpointing, simulating the process dying right
	// after the WAL entry was durably flushed but before a snapshot.
	if s1.walEngine != nil {
		_ = s1.walEngine.Close()
	}

	s2, err := Init(fsys, Options{Path: path, MaxRAMNodes: 8, EnableWAL: true})
	if err != nil {
		t.Fatalf("reopen Init: %v", err)
	}
	defer s2.Close()

	n, err := s2.GetCopy(id)
	if err != nil {
		t.Fatalf("GetCopy after recovery: %v", err)
	}
	if n.Name != "surv" || string(n.Data) != "ived" {
		t.Errorf("recovered node = %+v, want name=surv data=ived", n)
	}
	if id != n.ID {
		t.Errorf("recovered id = %d, want the original id %d preserved", n.ID, id)
	}
}

func Test_EnableWAL_Surfaces_An_Injected_Open_Failure(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	path := filepath.Join(t.TempDir(), "chaos.lattice")
	chaos := fstest.New(storage.NewReal(), 7, fstest.Config{OpenFailRate: 1})

	if _, err := Init(chaos, Options{Path: path, MaxRAMNodes: 8, EnableWAL: true}); err == nil {
		t.Fatal("expected Init to surface the injected WAL-open failure")
	}
}

func Test_Checkpoint_Survives_Transient_Sync_Failures_Via_Retry(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	path := filepath.Join(t.TempDir(), "chaos-sync.lattice")
	chaos := fstest.New(storage.NewReal(), 11, fstest.Config{SyncFailRate: 0.5})

	s, err := Init(chaos, Options{Path: path, MaxRAMNodes: 8, EnableWAL: true})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer s.Close()

	id, err := s.Add("flaky", []byte("data"), 0)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	// A transient fsync failure must be retried by the flusher rather than
	// silently dropping the already-written-but-unacknowledged entry.
	if err := s.Checkpoint(); err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}
	if _, err := s.GetCopy(id); err != nil {
		t.Fatalf("GetCopy after checkpoint: %v", err)
	}
}

func Test_Checkpoint_Truncates_The_Wal_After_A_Durable_Snapshot(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	path := filepath.Join(t.TempDir(), "cp.lattice")
	s, err := Init(storage.NewReal(), Options{Path: path, MaxRAMNodes: 8, EnableWAL: true})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer s.Close()

	if _, err := s.Add("a", nil, 0); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Checkpoint(); err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}
	if s.walEngine.Header().LastValidOffset != 0 {
		t.Error("Checkpoint must reset LastValidOffset to 0")
	}
}

func Test_DisableWAL_Checkpoints_Before_Closing_The_Engine(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	path := filepath.Join(t.TempDir(), "disable.lattice")
	s, err := Init(storage.NewReal(), Options{Path: path, MaxRAMNodes: 8, EnableWAL: true})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer s.Close()

	if _, err := s.Add("a", nil, 0); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.DisableWAL(); err != nil {
		t.Fatalf("DisableWAL: %v", err)
	}
	if s.walEngine != nil {
		t.Error("walEngine must be nil after DisableWAL")
	}
}

func Test_Flush_Without_Wal_Enabled_Returns_ErrWALNotEnabled(t *testing.T) {
	s := newTestStore(t, Options{MaxRAMNodes: 8})
	if err := s.Flush(); err != ErrWALNotEnabled {
		t.Fatalf("err = %v, want ErrWALNotEnabled", err)
	}
}

func Test_Save_Close_Ram_Mode_Roundtrips_Through_WriteSnapshot(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	path := filepath.Join(t.TempDir(), "ram.lattice")
	fsys := storage.NewReal()
	s, err := Init(fsys, Options{Path: path, MaxRAMNodes: 8})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	id, err := s.Add("a", []byte("b"), 0)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := Init(fsys, Options{Path: path, MaxRAMNodes: 8})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	if _, err := s2.GetCopy(id); err != nil {
		t.Fatalf("GetCopy after reopen: %v", err)
	}
}

func Test_DisableEvaluationMode_Fails_Without_A_Verified_Unlimited_License(t *testing.T) {
	s := newTestStore(t, Options{MaxRAMNodes: 8})
	if err := s.DisableEvaluationMode(); err == nil {
		t.Error("expected an error without a verified unlimited license")
	}
}

func Test_SetLicenseKey_Then_DisableEvaluationMode_Succeeds_With_An_Unlimited_License(t *testing.T) {
	s := newTestStore(t, Options{MaxRAMNodes: 8})
	if err := s.SetLicenseKey("ent-key", license.ResolvedLicense{Unlimited: true}); err != nil {
		t.Fatalf("SetLicenseKey: %v", err)
	}
	if err := s.DisableEvaluationMode(); err != nil {
		t.Fatalf("DisableEvaluationMode: %v", err)
	}
	if s.gate.Tier().EvaluationMode() {
		t.Error("EvaluationMode must be false after DisableEvaluationMode succeeds")
	}
}

func Test_EnableIsolation_DisableIsolation_Toggle_Seqlock_State(t *testing.T) {
	s := newTestStore(t, Options{MaxRAMNodes: 8})
	if s.seq.isEnabled() {
		t.Fatal("isolation must start disabled unless Options.EnableIsolation was set")
	}
	s.EnableIsolation()
	if !s.seq.isEnabled() {
		t.Error("EnableIsolation must enable the seqlock")
	}
	s.DisableIsolation()
	if s.seq.isEnabled() {
		t.Error("DisableIsolation must disable the seqlock")
	}
}
