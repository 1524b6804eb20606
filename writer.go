package storfs

import "golang.org/x/xerrors"

// Put writes data to stream starting at its current end of payload,
// per §4. In a truncating mode ("w", "w+") every call first erases the
// existing fragment chain and resets the size, so data replaces the
// file's payload instead of following it. The first bytes of a file live directly after its main
// header, on the main header's own page; once that page is full,
// further bytes spill into page-sized fragments chained via
// FragmentLocation, each with its own payload CRC. Every page but the
// very last in the chain is packed completely full — Get's read loop
// relies on that to know when to follow a fragment pointer instead of
// reading trailing padding.
func (s *Stream) Put(data []byte) (int, error) {
	const op = "Stream.Put"
	fs := s.fs
	if err := fs.lock(); err != nil {
		return 0, err
	}
	defer fs.unlock()

	if !s.mode.write {
		return 0, newErr(op, ErrGeneric, xerrors.New("stream not opened for writing"))
	}
	if s.deleted {
		return 0, newErr(op, ErrGeneric, xerrors.New("stream deleted"))
	}

	headerSize := uint32(HeaderTotalSize(fs.cfg.MaxFileName))
	fragHeaderSize := uint32(FragmentHeaderTotalSize)
	mainCap, fragCap := fs.payloadCapacity()

	if s.mode.truncate {
		if err := fs.freeFragmentChain(s.header.FragmentLocation); err != nil {
			return 0, err
		}
		s.header.FragmentLocation = locNone
		s.header.FileSize = headerSize
	}

	existingPayload, err := fs.payloadLength(s.header)
	if err != nil {
		return 0, err
	}
	fragCount, err := fs.fragmentChainLength(s.header)
	if err != nil {
		return 0, err
	}

	tailLoc := s.loc
	tailIsMain := true
	tailCap := mainCap
	tailUsed := existingPayload
	if fragCount > 0 {
		tailIsMain = false
		tailCap = fragCap
		tailUsed = existingPayload - mainCap - uint32(fragCount-1)*fragCap
		tailLoc, _, err = fs.lastFragment(s.loc, s.header)
		if err != nil {
			return 0, err
		}
	}

	written := 0
	remaining := data

	// Top off whatever room is left in the tail page first: read back
	// its existing payload, merge in a prefix of the new data, and
	// rewrite the whole page (erase-before-reprogram leaves no way to
	// grow a page's payload without rewriting it).
	if spare := tailCap - tailUsed; spare > 0 && len(remaining) > 0 {
		take := uint32(len(remaining))
		if take > spare {
			take = spare
		}
		merged := make([]byte, tailUsed+take)
		if tailUsed > 0 {
			old, err := fs.readPagePayload(tailLoc, tailIsMain, tailUsed)
			if err != nil {
				return written, err
			}
			copy(merged, old)
		}
		copy(merged[tailUsed:], remaining[:take])

		fill := FillPartial
		if uint32(len(merged)) == tailCap {
			fill = FillFull
		}

		if tailIsMain {
			s.header.Info = NewFileInfo(s.header.Info.FileType(), fill)
			buf := fs.buildMainPageBuffer(s.header, merged)
			newLoc, werr := fs.writePageWithRelocation(s.loc, buf, fs.mainPageVerifier(), s.pred, 0)
			if werr != nil {
				return written, werr
			}
			s.loc = newLoc
			tailLoc = newLoc
		} else {
			fh := Header{Info: NewFragmentInfo(fill), Reserved: reservedDefault, FragmentLocation: locNone, CRC: crcPayload(merged, fs.crc())}
			buf := fs.buildFragmentPageBuffer(fh, merged)
			pred, perr := fs.findPredecessor(tailLoc.Offset(fs.cfg.PageSize))
			if perr != nil {
				return written, perr
			}
			newLoc, werr := fs.writePageWithRelocation(tailLoc, buf, fs.fragmentPageVerifier(len(merged)), pred, 0)
			if werr != nil {
				return written, werr
			}
			tailLoc = newLoc
		}

		written += int(take)
		remaining = remaining[take:]
	}

	// Whatever's left is packed into brand-new fragments, each filled
	// to fragCap except possibly the last.
	for len(remaining) > 0 {
		n := len(remaining)
		if uint32(n) > fragCap {
			n = int(fragCap)
		}
		chunk := remaining[:n]

		newLoc, err := fs.allocate()
		if err != nil {
			return written, err
		}
		fill := FillPartial
		if uint32(n) == fragCap {
			fill = FillFull
		}
		fh := Header{
			Info:             NewFragmentInfo(fill),
			Reserved:         reservedDefault,
			FragmentLocation: locNone,
			CRC:              crcPayload(chunk, fs.crc()),
		}
		buf := fs.buildFragmentPageBuffer(fh, chunk)
		finalLoc, werr := fs.writePageWithRelocation(newLoc, buf, fs.fragmentPageVerifier(len(chunk)), predecessor{}, 0)
		if werr != nil {
			return written, werr
		}

		if tailIsMain {
			s.header.FragmentLocation = finalLoc.Offset(fs.cfg.PageSize)
			loc, werr := fs.writeVerified(s.loc, s.header, s.pred, 0)
			if werr != nil {
				return written, werr
			}
			s.loc = loc
		} else {
			if err := fs.relinkPointer(tailLoc, fieldFragment, finalLoc.Offset(fs.cfg.PageSize), 0); err != nil {
				return written, err
			}
		}

		tailLoc = finalLoc
		tailIsMain = false
		fragCount++
		written += n
		remaining = remaining[n:]
	}

	totalPayload := existingPayload + uint32(written)
	s.header.FileSize = headerSize + totalPayload + uint32(fragCount)*fragHeaderSize
	loc, err := fs.writeVerified(s.loc, s.header, s.pred, 0)
	if err != nil {
		return written, err
	}
	s.loc = loc
	return written, nil
}

// lastFragment walks the fragment chain from header to its tail,
// returning the tail's location and whether the chain is still empty
// (tail == the main header itself).
func (fs *FS) lastFragment(loc Loc, h Header) (Loc, bool, error) {
	if h.FragmentLocation == locNone || h.FragmentLocation == locUninitialized {
		return loc, true, nil
	}
	cur := locFromOffset(h.FragmentLocation, fs.cfg.PageSize)
	for {
		fh, err := fs.hs.storeFragment(cur)
		if err != nil {
			return Loc{}, false, err
		}
		if fh.FragmentLocation == locNone || fh.FragmentLocation == locUninitialized {
			return cur, false, nil
		}
		cur = locFromOffset(fh.FragmentLocation, fs.cfg.PageSize)
	}
}

// readPagePayload reads back n already-written payload bytes
// following the header at loc, so a tail page with spare capacity can
// be merged with new data and rewritten whole.
func (fs *FS) readPagePayload(loc Loc, isMain bool, n uint32) ([]byte, error) {
	offset := uint32(FragmentHeaderTotalSize)
	if isMain {
		offset = uint32(HeaderTotalSize(fs.cfg.MaxFileName))
	}
	buf := make([]byte, n)
	if err := fs.io.read(loc.Page, offset, buf); err != nil {
		return nil, err
	}
	if err := fs.io.sync(); err != nil {
		return nil, err
	}
	return buf, nil
}

// buildMainPageBuffer encodes a full header followed by its inline
// payload into a page-sized buffer.
func (fs *FS) buildMainPageBuffer(h Header, payload []byte) []byte {
	buf := make([]byte, fs.cfg.PageSize)
	copy(buf, h.MarshalBinary(fs.cfg.MaxFileName))
	copy(buf[HeaderTotalSize(fs.cfg.MaxFileName):], payload)
	return buf
}

// buildFragmentPageBuffer encodes a fragment header followed by its
// payload into a page-sized buffer.
func (fs *FS) buildFragmentPageBuffer(h Header, payload []byte) []byte {
	buf := make([]byte, fs.cfg.PageSize)
	copy(buf, h.MarshalFragmentBinary())
	copy(buf[FragmentHeaderTotalSize:], payload)
	return buf
}

// mainPageVerifier checks a written-back main header page by the same
// name-CRC rule any other header write uses; inline payload isn't
// covered by a CRC of its own.
func (fs *FS) mainPageVerifier() func([]byte) bool {
	return func(check []byte) bool {
		got, err := UnmarshalHeader(check[:HeaderTotalSize(fs.cfg.MaxFileName)], fs.cfg.MaxFileName)
		if err != nil {
			return false
		}
		return fs.verifyNameCRC(got)
	}
}

// fragmentPageVerifier checks a written-back fragment page's payload
// CRC over exactly payloadLen bytes.
func (fs *FS) fragmentPageVerifier(payloadLen int) func([]byte) bool {
	return func(check []byte) bool {
		got, err := UnmarshalFragmentHeader(check[:FragmentHeaderTotalSize])
		if err != nil {
			return false
		}
		return got.CRC == crcPayload(check[FragmentHeaderTotalSize:FragmentHeaderTotalSize+payloadLen], fs.crc())
	}
}

// freeFragmentChain erases every page in the chain starting at off (a
// flat byte offset), used by truncate and by the remover.
func (fs *FS) freeFragmentChain(off uint64) error {
	for off != locNone && off != locUninitialized {
		loc := locFromOffset(off, fs.cfg.PageSize)
		fh, err := fs.hs.storeFragment(loc)
		if err != nil {
			return err
		}
		next := fh.FragmentLocation
		if err := fs.io.erase(loc.Page); err != nil {
			return err
		}
		if err := fs.pullCursorBack(off); err != nil {
			return err
		}
		off = next
	}
	return nil
}
