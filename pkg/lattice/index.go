package lattice

import "strings"

// legacyPrefixes are the four hardcoded buckets carried forward from the
// original design (spec §4.C); every other discovered prefix lives only in
// the dynamic index.
var legacyPrefixes = [...]string{"ISA_", "MATERIAL_", "LEARNING_", "PERFORMANCE_"}

func isLegacyPrefix(p string) bool {
	for _, lp := range legacyPrefixes {
		if p == lp {
			return true
		}
	}
	return false
}

// extractPrefix returns the semantic prefix of name: everything up to and
// including the earliest '_' or ':'.
func extractPrefix(name string) (string, bool) {
	idx := strings.IndexAny(name, "_:")
	if idx < 0 {
		return "", false
	}
	return name[:idx+1], true
}

// reverseIndex is a dense local_id -> slot index mapping, capped at
// 10x the configured capacity (spec §9 resolves the oscillating
// max_nodes/2x/10x policy in favor of a single fixed 10x bound).
type reverseIndex struct {
	slotOf []uint32
	maxLen int
}

func newReverseIndex(maxNodes int) *reverseIndex {
	return &reverseIndex{maxLen: 10 * maxNodes}
}

// get returns the candidate slot for localID. The zero value is ambiguous
// with slot 0; callers must confirm the slot's stored id matches.
func (ri *reverseIndex) get(localID uint32) (slot uint32, ok bool) {
	if int(localID) >= len(ri.slotOf) {
		return 0, false
	}
	return ri.slotOf[localID], true
}

func (ri *reverseIndex) set(localID uint32, slot uint32) {
	ri.ensure(int(localID) + 1)
	if int(localID) < len(ri.slotOf) {
		ri.slotOf[localID] = slot
	}
}

func (ri *reverseIndex) clear(localID uint32) {
	if int(localID) < len(ri.slotOf) {
		ri.slotOf[localID] = 0
	}
}

func (ri *reverseIndex) ensure(n int) {
	if n <= len(ri.slotOf) {
		return
	}
	if n > ri.maxLen {
		n = ri.maxLen
	}
	if n <= len(ri.slotOf) {
		return
	}
	grown := make([]uint32, n)
	copy(grown, ri.slotOf)
	ri.slotOf = grown
}

// prefixIndex holds the hardcoded legacy buckets and the dynamic
// discovered-prefix buckets described in spec §4.C. It is built once after
// load with a single O(n) pass, then maintained incrementally by every add
// and delete whatever the store's size: nothing invalidates it for a
// rebuild on the next query, and the dirty field is never set.
type prefixIndex struct {
	hardcoded map[string][]uint64
	dynamic   map[string][]uint64
	built     bool
	dirty     bool
}

const prefixIndexIncrementalLimit = 10_000

func newPrefixIndex() *prefixIndex {
	return &prefixIndex{
		hardcoded: make(map[string][]uint64),
		dynamic:   make(map[string][]uint64),
	}
}

func (p *prefixIndex) reset() {
	p.hardcoded = make(map[string][]uint64)
	p.dynamic = make(map[string][]uint64)
	p.built = true
	p.dirty = false
}

func (p *prefixIndex) add(name string, id uint64) {
	prefix, ok := extractPrefix(name)
	if !ok {
		return
	}
	if isLegacyPrefix(prefix) {
		p.hardcoded[prefix] = append(p.hardcoded[prefix], id)
	}
	p.dynamic[prefix] = append(p.dynamic[prefix], id)
}

func (p *prefixIndex) remove(name string, id uint64) {
	prefix, ok := extractPrefix(name)
	if !ok {
		return
	}
	if isLegacyPrefix(prefix) {
		p.hardcoded[prefix] = removeID(p.hardcoded[prefix], id)
	}
	p.dynamic[prefix] = removeID(p.dynamic[prefix], id)
}

func removeID(ids []uint64, target uint64) []uint64 {
	for i, id := range ids {
		if id == target {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

// lookup returns the bucket for an exact prefix (the "pure-prefix query
// fast path" of spec §4.C).
func (p *prefixIndex) lookup(prefix string) ([]uint64, bool) {
	if ids, ok := p.hardcoded[prefix]; ok {
		return ids, true
	}
	ids, ok := p.dynamic[prefix]
	return ids, ok
}

// incrementalEligible reports whether a store with liveCount live nodes is
// below prefixIndexIncrementalLimit. Store operations do not consult it;
// the index is maintained incrementally at every size.
func (p *prefixIndex) incrementalEligible(liveCount int) bool {
	return liveCount < prefixIndexIncrementalLimit
}
