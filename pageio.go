package storfs

// pageIO wraps a BlockDevice, enforcing the page-boundary contract
// (byteOffset+len(buf) <= pageSize) before delegating, the way
// blockReader in the teacher's squashfs reader wraps an io.ReaderAt
// with an explicit bounds-checked window.
type pageIO struct {
	dev      BlockDevice
	pageSize uint32
}

func (p pageIO) fits(byteOffset uint32, n int) bool {
	return uint64(byteOffset)+uint64(n) <= uint64(p.pageSize)
}

func (p pageIO) read(page uint64, byteOffset uint32, buf []byte) error {
	if !p.fits(byteOffset, len(buf)) {
		return newErr("pageio.read", ErrReadFailed, nil)
	}
	if err := p.dev.Read(page, byteOffset, buf); err != nil {
		return wrapErr("pageio.read", ErrReadFailed, "device read page=%d off=%d: %w", page, byteOffset, err)
	}
	return nil
}

func (p pageIO) write(page uint64, byteOffset uint32, buf []byte) error {
	if !p.fits(byteOffset, len(buf)) {
		return newErr("pageio.write", ErrWriteFailed, nil)
	}
	if err := p.dev.Write(page, byteOffset, buf); err != nil {
		return wrapErr("pageio.write", ErrWriteFailed, "device write page=%d off=%d: %w", page, byteOffset, err)
	}
	return nil
}

func (p pageIO) erase(page uint64) error {
	if err := p.dev.Erase(page); err != nil {
		return wrapErr("pageio.erase", ErrWriteFailed, "device erase page=%d: %w", page, err)
	}
	return nil
}

func (p pageIO) sync() error {
	if err := p.dev.Sync(); err != nil {
		return wrapErr("pageio.sync", ErrWriteFailed, "device sync: %w", err)
	}
	return nil
}

// readAt/writeAt address by flat media byte offset rather than
// (page, byteOffset), for callers that only think in terms of
// pointer fields. Both require the region to fit within a single
// page, matching the rest of the format's no-spanning-a-page rule.
func (p pageIO) readAt(off uint64, buf []byte) error {
	loc := locFromOffset(off, p.pageSize)
	return p.read(loc.Page, loc.Byte, buf)
}

func (p pageIO) writeAt(off uint64, buf []byte) error {
	loc := locFromOffset(off, p.pageSize)
	return p.write(loc.Page, loc.Byte, buf)
}
