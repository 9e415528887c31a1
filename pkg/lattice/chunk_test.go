package lattice

import (
	"bytes"
	"testing"
)

func Test_SplitChunks_Divides_Into_ChunkPayloadSize_Pieces(t *testing.T) {
	t.Parallel()

	data := bytes.Repeat([]byte{0xAB}, ChunkPayloadSize*2+10)
	pieces := splitChunks(data)
	if len(pieces) != 3 {
		t.Fatalf("len(pieces) = %d, want 3", len(pieces))
	}
	if len(pieces[0]) != ChunkPayloadSize || len(pieces[1]) != ChunkPayloadSize {
		t.Errorf("first two pieces must be full ChunkPayloadSize, got %d and %d", len(pieces[0]), len(pieces[1]))
	}
	if len(pieces[2]) != 10 {
		t.Errorf("final piece = %d bytes, want 10", len(pieces[2]))
	}

	var rebuilt []byte
	for _, p := range pieces {
		rebuilt = append(rebuilt, p...)
	}
	if !bytes.Equal(rebuilt, data) {
		t.Error("concatenated pieces must reproduce the original data")
	}
}

func Test_SplitChunks_Empty_Input_Returns_Nil(t *testing.T) {
	t.Parallel()

	if got := splitChunks(nil); got != nil {
		t.Errorf("splitChunks(nil) = %v, want nil", got)
	}
}

func Test_EncodeDecodeChunkChild_Roundtrips_Index_And_Payload(t *testing.T) {
	t.Parallel()

	payload := []byte("a chunk of data")
	data, recordPayload := encodeChunkChild(3, payload)

	idx, got := decodeChunkChild(data, recordPayload)
	if idx != 3 {
		t.Errorf("idx = %d, want 3", idx)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("payload = %v, want %v", got, payload)
	}
}

func Test_EncodeDecodeChunkMeta_Roundtrips_Fixed_Fields(t *testing.T) {
	t.Parallel()

	m := chunkMeta{
		TotalSize:         1510,
		ChunkCount:        3,
		Checksum:          0xdeadbeef,
		FirstChunkLocalID: 7,
	}
	buf := encodeChunkMeta(m)
	got := decodeChunkMeta(buf)

	if got.TotalSize != m.TotalSize || got.ChunkCount != m.ChunkCount ||
		got.Checksum != m.Checksum || got.FirstChunkLocalID != m.FirstChunkLocalID {
		t.Errorf("decodeChunkMeta = %+v, want %+v", got, m)
	}
}

func Test_ChunkParentName_Prefixes_Exactly_Once(t *testing.T) {
	t.Parallel()

	if got := chunkParentName("foo"); got != "C:foo" {
		t.Errorf("chunkParentName(foo) = %q, want C:foo", got)
	}
	if got := chunkParentName("C:foo"); got != "C:foo" {
		t.Errorf("chunkParentName(C:foo) = %q, want C:foo (no double prefix)", got)
	}
}

func Test_ChunkChildName_ParseChunkChildName_Roundtrips(t *testing.T) {
	t.Parallel()

	name := chunkChildName(ComposeID(1, 99), 2, 5)
	parentID, idx, ok := parseChunkChildName(name)
	if !ok {
		t.Fatal("parseChunkChildName reported ok=false for a well-formed name")
	}
	if parentID != ComposeID(1, 99) || idx != 2 {
		t.Errorf("parsed (%d, %d), want (%d, 2)", parentID, idx, ComposeID(1, 99))
	}
}

func Test_ParseChunkChildName_Rejects_Malformed_Names(t *testing.T) {
	t.Parallel()

	if _, _, ok := parseChunkChildName("not-a-chunk-name"); ok {
		t.Error("parseChunkChildName must reject names without the C: prefix")
	}
	if _, _, ok := parseChunkChildName("C:only:two"); ok {
		t.Error("parseChunkChildName must reject names with the wrong part count")
	}
}

func Test_ReassembleChunks_Concatenates_In_Index_Order_Regardless_Of_Input_Order(t *testing.T) {
	t.Parallel()

	full := bytes.Repeat([]byte{1, 2, 3}, 200) // 600 bytes, splits into 2 pieces
	pieces := splitChunks(full)

	var children []*Node
	for i := len(pieces) - 1; i >= 0; i-- { // deliberately reversed
		data, payload := encodeChunkChild(i, pieces[i])
		children = append(children, &Node{Data: data, Payload: payload})
	}

	got, err := reassembleChunks(children, uint64(len(full)))
	if err != nil {
		t.Fatalf("reassembleChunks: %v", err)
	}
	if !bytes.Equal(got, full) {
		t.Error("reassembleChunks must reorder by chunk index before concatenating")
	}
}

func Test_ReassembleChunks_Reports_ErrChunkIncomplete_When_Data_Is_Short(t *testing.T) {
	t.Parallel()

	data, payload := encodeChunkChild(0, []byte("only one piece"))
	children := []*Node{{Data: data, Payload: payload}}

	_, err := reassembleChunks(children, 10_000)
	if err != ErrChunkIncomplete {
		t.Fatalf("err = %v, want ErrChunkIncomplete", err)
	}
}

func Test_ChunkChecksum_Is_Deterministic_And_Sensitive_To_Content(t *testing.T) {
	t.Parallel()

	a := chunkChecksum([]byte("hello"))
	b := chunkChecksum([]byte("hello"))
	c := chunkChecksum([]byte("hellp"))

	if a != b {
		t.Error("chunkChecksum must be deterministic for identical input")
	}
	if a == c {
		t.Error("chunkChecksum must differ for different input")
	}
}
