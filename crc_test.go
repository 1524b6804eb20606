package storfs

import "testing"

func TestCRC16EmptyBuffer(t *testing.T) {
	if got := crc16(nil); got != 0x0000 {
		t.Errorf("crc16(nil) = %#04x, want 0x0000", got)
	}
}

func TestCRC16IsDeterministic(t *testing.T) {
	buf := []byte("config.txt\x00")
	a := crc16(buf)
	b := crc16(buf)
	if a != b {
		t.Fatalf("crc16 not deterministic: %#04x != %#04x", a, b)
	}
}

func TestCRC16DetectsSingleBitFlip(t *testing.T) {
	buf := []byte("payload-bytes-go-here")
	orig := crc16(buf)
	flipped := append([]byte(nil), buf...)
	flipped[3] ^= 0x01
	if crc16(flipped) == orig {
		t.Fatal("crc16 did not change after a single bit flip")
	}
}

func TestCrcNameIncludesNullTerminator(t *testing.T) {
	a := crcName("abc", 16, nil)
	b := crc16([]byte("abc\x00"))
	if a != b {
		t.Fatalf("crcName(%q) = %#04x, want %#04x", "abc", a, b)
	}
}

func TestCrcPayloadUsesCustomFunc(t *testing.T) {
	called := false
	fn := func(buf []byte) uint16 {
		called = true
		return 0x4242
	}
	if got := crcPayload([]byte("data"), fn); got != 0x4242 {
		t.Fatalf("crcPayload with custom fn = %#04x, want 0x4242", got)
	}
	if !called {
		t.Fatal("custom CRC16Func was not invoked")
	}
}
