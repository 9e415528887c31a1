package lattice

import "testing"

func Test_EncodeDecodeFileHeader_Roundtrips_Correctly(t *testing.T) {
	t.Parallel()

	h := fileHeader{
		Magic:              DataMagic,
		NodeCountCommitted: 42,
		NextLocalID:        43,
		NodesToLoad:        10,
	}
	buf := make([]byte, HeaderSize)
	encodeFileHeader(buf, h)

	got := decodeFileHeader(buf)
	if got != h {
		t.Errorf("decodeFileHeader = %+v, want %+v", got, h)
	}
}

func Test_SlotOffset_Accounts_For_Header_And_Record_Size(t *testing.T) {
	t.Parallel()

	if off := slotOffset(0); off != HeaderSize {
		t.Errorf("slotOffset(0) = %d, want %d", off, HeaderSize)
	}
	if off := slotOffset(3); off != int64(HeaderSize)+3*int64(RecordSize) {
		t.Errorf("slotOffset(3) = %d, want %d", off, int64(HeaderSize)+3*int64(RecordSize))
	}
}
