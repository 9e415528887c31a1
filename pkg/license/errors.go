package license

import "errors"

var (
	// ErrLimitReached is returned by AddOne when the stored counter has
	// already reached the effective limit.
	ErrLimitReached = errors.New("license: limit reached")

	// ErrNotUnlimited is returned by DisableEvaluationMode when the gate
	// has not been told the license is verified unlimited.
	ErrNotUnlimited = errors.New("license: license not verified unlimited")
)

// TierLimit maps a license tier (spec §6) to its node-count ceiling.
// Tier 4 is unlimited and has no finite entry here; check Unlimited
// instead of looking tier 4 up in this table.
var TierLimit = map[uint8]uint64{
	0: 100_000,
	1: 1_000_000,
	2: 10_000_000,
	3: 50_000_000,
}

// ResolvedLicense is the only license-derived information the core ever
// sees; it is produced by an external Ed25519 verifier this package does
// not implement.
type ResolvedLicense struct {
	Limit     uint64
	Unlimited bool
}
