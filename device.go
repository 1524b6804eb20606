package storfs

// BlockDevice is the external block device driver collaborator (out of
// scope per the spec, consumed here only as an interface): a caller
// implements it against whatever NOR/NAND part, simulated RAM region,
// or disk image backs a given instance.
//
// Read and Write must fail with a non-nil error (surfaced as
// ErrReadFailed / ErrWriteFailed by the page I/O shim) rather than
// silently clamping if byteOffset+len(buf) exceeds the page size; they
// must not implicitly erase. Erase sets the entire page to 0xFF. Sync
// returns once the device has settled and is ready for the next
// operation.
type BlockDevice interface {
	Read(page uint64, byteOffset uint32, buf []byte) error
	Write(page uint64, byteOffset uint32, buf []byte) error
	Erase(page uint64) error
	Sync() error
}

// CRC16Func computes a CRC16 over buf. A Config with a nil CRC uses the
// built-in implementation (see crc.go).
type CRC16Func func(buf []byte) uint16
