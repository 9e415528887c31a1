package license

import (
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/synrix/lattice/pkg/storage"
)

// KeyHash returns the lowercased 16-hex FNV-1a-64 hash spec §6 uses to name
// a counter file. An empty key hashes the literal string "free".
func KeyHash(licenseKey string) string {
	key := licenseKey
	if key == "" {
		key = "free"
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return fmt.Sprintf("%016x", h.Sum64())
}

// CounterPath resolves the per-machine counter file location for a license
// key: <local-appdata>/Synrix/license_usage/<hash>.dat on Windows-style
// platforms, ~/.synrix/license_usage/<hash>.dat otherwise.
func CounterPath(licenseKey string) (string, error) {
	hash := KeyHash(licenseKey)

	if runtime.GOOS == "windows" {
		base := os.Getenv("LOCALAPPDATA")
		if base == "" {
			return "", fmt.Errorf("license: LOCALAPPDATA not set")
		}
		return filepath.Join(base, "Synrix", "license_usage", hash+".dat"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("license: resolving home dir: %w", err)
	}
	return filepath.Join(home, ".synrix", "license_usage", hash+".dat"), nil
}

// Gate is the per-machine file-locked admission counter.
type Gate struct {
	fsys   storage.FS
	locker *storage.Locker
	path   string

	tier Tier
}

// Open resolves the counter path for licenseKey and prepares the gate. It
// does not touch the file until Register or AddOne is called.
func Open(fsys storage.FS, licenseKey string) (*Gate, error) {
	path, err := CounterPath(licenseKey)
	if err != nil {
		return nil, err
	}
	return &Gate{
		fsys:   fsys,
		locker: storage.NewLocker(fsys),
		path:   path,
		tier:   newTier(),
	}, nil
}

type counterState struct {
	total uint64
	limit uint64
}

func parseCounter(data []byte, fallbackLimit uint64) counterState {
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	cs := counterState{total: 0, limit: fallbackLimit}
	if len(lines) >= 1 {
		if v, err := strconv.ParseUint(strings.TrimSpace(lines[0]), 10, 64); err == nil {
			cs.total = v
		}
	}
	if len(lines) >= 2 {
		if v, err := strconv.ParseUint(strings.TrimSpace(lines[1]), 10, 64); err == nil {
			cs.limit = v
		}
	}
	return cs
}

func formatCounter(cs counterState) []byte {
	return []byte(fmt.Sprintf("%d\n%d\n", cs.total, cs.limit))
}

// withLock opens (creating parents as needed) and exclusively locks the
// counter file, runs fn with its current parsed state, and rewrites the
// file if fn returns a modified state.
func (g *Gate) withLock(fallbackLimit uint64, fn func(cs counterState) (counterState, error)) error {
	if err := g.fsys.MkdirAll(filepath.Dir(g.path), 0o755); err != nil {
		return fmt.Errorf("license: creating counter dir: %w", err)
	}

	lock, err := g.locker.Lock(g.path + ".lock")
	if err != nil {
		return fmt.Errorf("license: locking counter: %w", err)
	}
	defer lock.Close()

	data, err := g.fsys.ReadFile(g.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("license: reading counter: %w", err)
	}
	cs := parseCounter(data, fallbackLimit)

	updated, err := fn(cs)
	if err != nil {
		return err
	}

	if err := g.fsys.WriteFile(g.path, formatCounter(updated), 0o644); err != nil {
		return fmt.Errorf("license: writing counter: %w", err)
	}
	return nil
}

// Register sums count (a freshly loaded store's live node count) into the
// counter's total under the same lock used by AddOne.
func (g *Gate) Register(count, limit uint64) error {
	return g.withLock(limit, func(cs counterState) (counterState, error) {
		cs.total += count
		if limit != 0 {
			cs.limit = limit
		}
		return cs, nil
	})
}

// AddOne increments the counter by one, rejecting if the stored total has
// already reached the stored limit. limit is used only when the counter
// file doesn't exist yet or is unreadable.
func (g *Gate) AddOne(limit uint64) error {
	return g.withLock(limit, func(cs counterState) (counterState, error) {
		if cs.total >= cs.limit {
			return cs, fmt.Errorf("%w: total=%d limit=%d", ErrLimitReached, cs.total, cs.limit)
		}
		cs.total++
		return cs, nil
	})
}

// Read returns the current counter state without modifying it.
func (g *Gate) Read() (total, limit uint64, err error) {
	data, rerr := g.fsys.ReadFile(g.path)
	if rerr != nil {
		if os.IsNotExist(rerr) {
			return 0, 0, nil
		}
		return 0, 0, fmt.Errorf("license: reading counter: %w", rerr)
	}
	cs := parseCounter(data, 0)
	return cs.total, cs.limit, nil
}

// Tier returns the in-process evaluation-mode/tier state.
func (g *Gate) Tier() *Tier { return &g.tier }
