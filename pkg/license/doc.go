// Package license implements the admission/license gate of SPEC_FULL.md /
// spec.md §4.G: a per-machine, file-locked node counter enforcing the free
// tier cap, plus in-process evaluation-mode/tier state.
//
// This package never verifies a license signature — Ed25519 verification is
// an explicit core non-goal (spec §1); Gate consumes only the already
// resolved {limit, unlimited} pair an external verifier would produce.
package license
