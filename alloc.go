package storfs

import "golang.org/x/xerrors"

// findNextOpen scans forward page by page from candidate (a flat byte
// offset, rounded down to its page) until it finds a page whose
// header region reads entirely 0xFF — erased and never written. It
// does not mutate the cursor; callers that want to claim the page
// call allocate instead.
func (fs *FS) findNextOpen(candidate uint64) (uint64, error) {
	const op = "storfs.findNextOpen"
	page := candidate / uint64(fs.cfg.PageSize)
	for page < fs.cfg.PageCount {
		buf, err := fs.hs.raw(Loc{Page: page})
		if err != nil {
			return 0, err
		}
		if isBlank(buf) {
			return page * uint64(fs.cfg.PageSize), nil
		}
		page++
	}
	return 0, newErr(op, ErrGeneric, xerrors.New("device exhausted: no free page found"))
}

// allocate finds the next free page starting at the current cursor,
// advances and persists the cursor (both root mirrors are rewritten,
// per the write-through policy in §5), and returns its location
// (always byte 0 — every non-root header this format creates starts
// at the beginning of a page).
func (fs *FS) allocate() (Loc, error) {
	off, err := fs.findNextOpen(fs.nextOpenByte)
	if err != nil {
		return Loc{}, err
	}
	loc := locFromOffset(off, fs.cfg.PageSize)
	fs.nextOpenByte = off + uint64(fs.cfg.PageSize)
	if err := fs.persistRoot(); err != nil {
		return Loc{}, err
	}
	return loc, nil
}

// pullCursorBack moves the cursor back to off if off precedes it, so
// freed space is reused before scanning further out. Used by the
// remover.
func (fs *FS) pullCursorBack(off uint64) error {
	if off >= fs.nextOpenByte {
		return nil
	}
	fs.nextOpenByte = off
	return fs.persistRoot()
}
