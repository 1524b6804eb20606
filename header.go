package storfs

import (
	"encoding/binary"
	"errors"
)

var errShortBuffer = errors.New("storfs: buffer shorter than header size")

// FileType occupies bits 4-2 of FileInfo.
type FileType uint8

const (
	TypeFragment  FileType = 0b000
	TypeRoot      FileType = 0b001
	TypeDirectory FileType = 0b010
	TypeFile      FileType = 0b011
)

// FillState occupies bits 6-5 of FileInfo.
type FillState uint8

const (
	FillFull    FillState = 0b01
	FillPartial FillState = 0b10
	FillEmpty   FillState = 0b11
)

// FileInfo is the one-byte bitfield at the start of every header: bit
// 7 is the "not a fragment" marker, bits 6-5 are the block-fill state,
// bits 4-2 are the file type. Bits 1-0 are unused and always read 0 on
// a header this package wrote.
type FileInfo uint8

const (
	infoNotFragmentBit = 0x80
	infoFillShift      = 5
	infoFillMask       = 0b11
	infoTypeShift      = 2
	infoTypeMask       = 0b111
)

// NewFileInfo builds a FileInfo for a main (non-fragment) header.
// Fragments are represented with NewFragmentInfo instead.
func NewFileInfo(t FileType, fill FillState) FileInfo {
	return FileInfo(infoNotFragmentBit |
		(uint8(fill)&infoFillMask)<<infoFillShift |
		(uint8(t)&infoTypeMask)<<infoTypeShift)
}

// NewFragmentInfo builds a FileInfo for a fragment (continuation)
// header: bit 7 clear, file type bits zero, as required for the
// decoder to recognize it as a fragment.
func NewFragmentInfo(fill FillState) FileInfo {
	return FileInfo((uint8(fill) & infoFillMask) << infoFillShift)
}

func (fi FileInfo) NotFragment() bool {
	return fi&infoNotFragmentBit != 0
}

func (fi FileInfo) FillState() FillState {
	return FillState((fi >> infoFillShift) & infoFillMask)
}

func (fi FileInfo) FileType() FileType {
	return FileType((fi >> infoTypeShift) & infoTypeMask)
}

// IsFragment reports whether this FileInfo decodes as a continuation
// (fragment) header: bit 7 clear and the file-type bits zero.
func (fi FileInfo) IsFragment() bool {
	return !fi.NotFragment() && fi.FileType() == TypeFragment
}

// Header is the on-media metadata prefix at the start of a page. Full
// headers (root/directory/file) populate every field; fragment headers
// only populate Info, Reserved, FragmentLocation and CRC (see
// UnmarshalHeader).
type Header struct {
	Info             FileInfo
	Name             string
	ChildLocation    uint64
	SiblingLocation  uint64
	Reserved         uint16
	FragmentLocation uint64
	FileSize         uint32
	CRC              uint16
}

const (
	// locUninitialized marks a pointer field on a never-written
	// (erased) page.
	locUninitialized = ^uint64(0)
	// locNone marks "no pointer here" on an initialized header.
	locNone = 0
	// reservedDefault is the required value of Reserved on creation.
	reservedDefault = 0xFFFF
)

// HeaderTotalSize returns the on-media size, in bytes, of a main
// header for the given name cap.
func HeaderTotalSize(maxFileName int) int {
	return 1 + maxFileName + 8 + 8 + 2 + 8 + 4 + 2
}

// FragmentHeaderTotalSize is the fixed size of a fragment
// (continuation) header: info | reserved | fragment_location | crc.
const FragmentHeaderTotalSize = 1 + 2 + 8 + 2

// MarshalBinary encodes h into a HeaderTotalSize(maxFileName)-byte
// buffer, big-endian, field order file_info | name | child | sibling |
// reserved | fragment | file_size | crc.
func (h Header) MarshalBinary(maxFileName int) []byte {
	buf := make([]byte, HeaderTotalSize(maxFileName))
	n := 0
	buf[n] = byte(h.Info)
	n++
	copy(buf[n:n+maxFileName], h.Name)
	// remaining name bytes are already zero; the null terminator is
	// implicit in the zero-fill.
	n += maxFileName
	binary.BigEndian.PutUint64(buf[n:], h.ChildLocation)
	n += 8
	binary.BigEndian.PutUint64(buf[n:], h.SiblingLocation)
	n += 8
	binary.BigEndian.PutUint16(buf[n:], h.Reserved)
	n += 2
	binary.BigEndian.PutUint64(buf[n:], h.FragmentLocation)
	n += 8
	binary.BigEndian.PutUint32(buf[n:], h.FileSize)
	n += 4
	binary.BigEndian.PutUint16(buf[n:], h.CRC)
	return buf
}

// MarshalFragmentBinary encodes a fragment (continuation) header:
// info | reserved | fragment_location | crc.
func (h Header) MarshalFragmentBinary() []byte {
	buf := make([]byte, FragmentHeaderTotalSize)
	n := 0
	buf[n] = byte(h.Info)
	n++
	binary.BigEndian.PutUint16(buf[n:], h.Reserved)
	n += 2
	binary.BigEndian.PutUint64(buf[n:], h.FragmentLocation)
	n += 8
	binary.BigEndian.PutUint16(buf[n:], h.CRC)
	return buf
}

// UnmarshalHeader decodes a HeaderTotalSize(maxFileName)-byte buffer.
// If the decoded FileInfo reports a fragment (bit 7 clear, file type
// zero), only Info, Reserved, FragmentLocation and CRC are populated,
// matching the on-media layout of a fragment header, which is shorter
// than what was read; the extra bytes are simply not a fragment
// header's concern and are ignored.
func UnmarshalHeader(buf []byte, maxFileName int) (Header, error) {
	if len(buf) < HeaderTotalSize(maxFileName) {
		return Header{}, errShortBuffer
	}
	info := FileInfo(buf[0])
	if info.IsFragment() {
		var h Header
		h.Info = info
		h.Reserved = binary.BigEndian.Uint16(buf[1:])
		h.FragmentLocation = binary.BigEndian.Uint64(buf[3:])
		h.CRC = binary.BigEndian.Uint16(buf[11:])
		return h, nil
	}
	n := 1
	var h Header
	h.Info = info
	h.Name = nameFromBytes(buf[n : n+maxFileName])
	n += maxFileName
	h.ChildLocation = binary.BigEndian.Uint64(buf[n:])
	n += 8
	h.SiblingLocation = binary.BigEndian.Uint64(buf[n:])
	n += 8
	h.Reserved = binary.BigEndian.Uint16(buf[n:])
	n += 2
	h.FragmentLocation = binary.BigEndian.Uint64(buf[n:])
	n += 8
	h.FileSize = binary.BigEndian.Uint32(buf[n:])
	n += 4
	h.CRC = binary.BigEndian.Uint16(buf[n:])
	return h, nil
}

// UnmarshalFragmentHeader decodes a FragmentHeaderTotalSize-byte
// buffer directly, for call sites that already know they are reading
// a continuation page.
func UnmarshalFragmentHeader(buf []byte) (Header, error) {
	if len(buf) < FragmentHeaderTotalSize {
		return Header{}, errShortBuffer
	}
	var h Header
	h.Info = FileInfo(buf[0])
	h.Reserved = binary.BigEndian.Uint16(buf[1:])
	h.FragmentLocation = binary.BigEndian.Uint64(buf[3:])
	h.CRC = binary.BigEndian.Uint16(buf[11:])
	return h, nil
}

func nameFromBytes(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// isBlank reports whether every byte of buf is 0xFF, i.e. the page
// this header was read from has been erased and never written.
func isBlank(buf []byte) bool {
	for _, b := range buf {
		if b != 0xFF {
			return false
		}
	}
	return true
}
