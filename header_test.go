package storfs

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestFileInfoRoundTrip(t *testing.T) {
	cases := []struct {
		typ  FileType
		fill FillState
	}{
		{TypeRoot, FillPartial},
		{TypeDirectory, FillEmpty},
		{TypeFile, FillFull},
	}
	for _, c := range cases {
		info := NewFileInfo(c.typ, c.fill)
		if !info.NotFragment() {
			t.Errorf("NewFileInfo(%v,%v): NotFragment() = false", c.typ, c.fill)
		}
		if got := info.FileType(); got != c.typ {
			t.Errorf("FileType() = %v, want %v", got, c.typ)
		}
		if got := info.FillState(); got != c.fill {
			t.Errorf("FillState() = %v, want %v", got, c.fill)
		}
		if info.IsFragment() {
			t.Errorf("NewFileInfo(%v,%v).IsFragment() = true", c.typ, c.fill)
		}
	}
}

func TestFragmentInfoIsRecognizedAsFragment(t *testing.T) {
	info := NewFragmentInfo(FillFull)
	if !info.IsFragment() {
		t.Fatal("NewFragmentInfo(...).IsFragment() = false")
	}
	if info.NotFragment() {
		t.Fatal("NewFragmentInfo(...).NotFragment() = true")
	}
}

func TestHeaderMarshalUnmarshalRoundTrip(t *testing.T) {
	const maxName = 16
	h := Header{
		Info:             NewFileInfo(TypeFile, FillPartial),
		Name:             "config.txt",
		ChildLocation:    locNone,
		SiblingLocation:  4096,
		Reserved:         reservedDefault,
		FragmentLocation: 8192,
		FileSize:         42,
		CRC:              0xBEEF,
	}
	buf := h.MarshalBinary(maxName)
	if len(buf) != HeaderTotalSize(maxName) {
		t.Fatalf("MarshalBinary len = %d, want %d", len(buf), HeaderTotalSize(maxName))
	}
	got, err := UnmarshalHeader(buf, maxName)
	if err != nil {
		t.Fatalf("UnmarshalHeader: %v", err)
	}
	if diff := cmp.Diff(h, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestFragmentHeaderMarshalUnmarshalRoundTrip(t *testing.T) {
	h := Header{
		Info:             NewFragmentInfo(FillFull),
		Reserved:         reservedDefault,
		FragmentLocation: locNone,
		CRC:              0x1234,
	}
	buf := h.MarshalFragmentBinary()
	if len(buf) != FragmentHeaderTotalSize {
		t.Fatalf("MarshalFragmentBinary len = %d, want %d", len(buf), FragmentHeaderTotalSize)
	}
	got, err := UnmarshalFragmentHeader(buf)
	if err != nil {
		t.Fatalf("UnmarshalFragmentHeader: %v", err)
	}
	if diff := cmp.Diff(h, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestIsBlankDetectsErasedPage(t *testing.T) {
	blank := make([]byte, 512)
	for i := range blank {
		blank[i] = 0xFF
	}
	if !isBlank(blank) {
		t.Fatal("isBlank(all 0xFF) = false")
	}
	blank[200] = 0x00
	if isBlank(blank) {
		t.Fatal("isBlank(one non-0xFF byte) = true")
	}
}
