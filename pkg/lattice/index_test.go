package lattice

import "testing"

func Test_ExtractPrefix_Finds_Earliest_Underscore_Or_Colon(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		wantPrefix string
		wantOK     bool
	}{
		{"ISA_widget", "ISA_", true},
		{"C:12:0:3", "C:", true},
		{"noDelimiterHere", "", false},
		{"_leading", "_", true},
		{"", "", false},
	}

	for _, tt := range tests {
		prefix, ok := extractPrefix(tt.name)
		if prefix != tt.wantPrefix || ok != tt.wantOK {
			t.Errorf("extractPrefix(%q) = (%q, %v), want (%q, %v)", tt.name, prefix, ok, tt.wantPrefix, tt.wantOK)
		}
	}
}

func Test_IsLegacyPrefix_Recognizes_Only_The_Four_Hardcoded_Buckets(t *testing.T) {
	t.Parallel()

	for _, p := range legacyPrefixes {
		if !isLegacyPrefix(p) {
			t.Errorf("isLegacyPrefix(%q) = false, want true", p)
		}
	}
	if isLegacyPrefix("CUSTOM_") {
		t.Error("isLegacyPrefix(\"CUSTOM_\") = true, want false")
	}
}

func Test_ReverseIndex_Set_Get_Clear_Roundtrips(t *testing.T) {
	t.Parallel()

	ri := newReverseIndex(10)
	ri.set(5, 100)

	slotIdx, ok := ri.get(5)
	if !ok || slotIdx != 100 {
		t.Fatalf("get(5) = (%d, %v), want (100, true)", slotIdx, ok)
	}

	ri.clear(5)
	slotIdx, ok = ri.get(5)
	if !ok || slotIdx != 0 {
		t.Fatalf("get(5) after clear = (%d, %v), want (0, true)", slotIdx, ok)
	}
}

func Test_ReverseIndex_Get_Reports_False_Beyond_Current_Length(t *testing.T) {
	t.Parallel()

	ri := newReverseIndex(10)
	if _, ok := ri.get(999999); ok {
		t.Error("get on an id far beyond ensure()d length must report false")
	}
}

func Test_ReverseIndex_Ensure_Caps_Growth_At_MaxLen(t *testing.T) {
	t.Parallel()

	ri := newReverseIndex(1) // maxLen = 10
	ri.set(100, 1)           // request growth far beyond maxLen

	if len(ri.slotOf) > ri.maxLen {
		t.Fatalf("len(slotOf) = %d, exceeds maxLen %d", len(ri.slotOf), ri.maxLen)
	}
}

func Test_PrefixIndex_Add_Lookup_Remove_For_Legacy_And_Dynamic_Prefixes(t *testing.T) {
	t.Parallel()

	pidx := newPrefixIndex()
	pidx.add("ISA_widget", 1)
	pidx.add("ISA_gadget", 2)
	pidx.add("CUSTOM_thing", 3)

	ids, ok := pidx.lookup("ISA_")
	if !ok || len(ids) != 2 {
		t.Fatalf("lookup(ISA_) = (%v, %v), want 2 ids", ids, ok)
	}

	ids, ok = pidx.lookup("CUSTOM_")
	if !ok || len(ids) != 1 || ids[0] != 3 {
		t.Fatalf("lookup(CUSTOM_) = (%v, %v), want [3]", ids, ok)
	}

	pidx.remove("ISA_widget", 1)
	ids, ok = pidx.lookup("ISA_")
	if !ok || len(ids) != 1 || ids[0] != 2 {
		t.Fatalf("lookup(ISA_) after remove = (%v, %v), want [2]", ids, ok)
	}
}

func Test_PrefixIndex_Lookup_Reports_False_For_Unknown_Prefix(t *testing.T) {
	t.Parallel()

	pidx := newPrefixIndex()
	if _, ok := pidx.lookup("NOPE_"); ok {
		t.Error("lookup on an untouched prefix must report false")
	}
}

func Test_RemoveID_Deletes_Exactly_One_Matching_Element(t *testing.T) {
	t.Parallel()

	ids := []uint64{1, 2, 3, 2}
	got := removeID(ids, 2)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	count := 0
	for _, id := range got {
		if id == 2 {
			count++
		}
	}
	if count != 1 {
		t.Errorf("remaining count of 2 = %d, want 1 (only first match removed)", count)
	}
}

func Test_PrefixIndex_IncrementalEligible_Honors_Threshold(t *testing.T) {
	t.Parallel()

	pidx := newPrefixIndex()
	if !pidx.incrementalEligible(0) {
		t.Error("empty store must be incremental-eligible")
	}
	if pidx.incrementalEligible(prefixIndexIncrementalLimit) {
		t.Error("store at the threshold must not be incremental-eligible")
	}
}
