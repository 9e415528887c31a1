package license

import "sync"

// DefaultFreeTierLimit is the default in-process evaluation cap (spec §4.G).
const DefaultFreeTierLimit = 25_000

// Tier holds the in-process evaluation-mode/tier state. It is distinct from
// the on-disk counter Gate guards: the counter is a hard, cross-process
// gate, while Tier only governs this process's view of its own limit.
type Tier struct {
	mu                       sync.Mutex
	evaluationMode           bool
	freeTierLimit            uint64
	licenseVerifiedUnlimited bool
}

func newTier() Tier {
	return Tier{evaluationMode: true, freeTierLimit: DefaultFreeTierLimit}
}

// SetFreeTierLimit overrides the default evaluation-mode cap.
func (t *Tier) SetFreeTierLimit(limit uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.freeTierLimit = limit
}

// ApplyLicense applies an externally resolved license (spec §6's
// {limit, unlimited} pair). An unlimited license turns off evaluation mode.
func (t *Tier) ApplyLicense(resolved ResolvedLicense) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if resolved.Unlimited {
		t.evaluationMode = false
		t.freeTierLimit = 0
		t.licenseVerifiedUnlimited = true
		return
	}
	t.freeTierLimit = resolved.Limit
}

// DisableEvaluationMode succeeds only once a license has been applied that
// resolved to unlimited.
func (t *Tier) DisableEvaluationMode() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.licenseVerifiedUnlimited {
		return ErrNotUnlimited
	}
	t.evaluationMode = false
	return nil
}

// EvaluationMode reports whether the process is still capped at FreeTierLimit.
func (t *Tier) EvaluationMode() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.evaluationMode
}

// FreeTierLimit returns the current in-process cap.
func (t *Tier) FreeTierLimit() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.freeTierLimit
}

// EffectiveLimit returns the limit AddOne calls should enforce: the
// configured free tier limit while in evaluation mode, or 0 (meaning no
// in-process cap — the per-machine counter file's own limit still applies)
// once evaluation mode is disabled.
func (t *Tier) EffectiveLimit() (limit uint64, capped bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.evaluationMode {
		return 0, false
	}
	return t.freeTierLimit, true
}
