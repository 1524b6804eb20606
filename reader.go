package storfs

import "golang.org/x/xerrors"

// Rewind resets the stream's read cursor to the beginning of the
// file's payload, per §4's STORFS_rewind.
func (s *Stream) Rewind() error {
	if s.deleted {
		return newErr("Stream.Rewind", ErrGeneric, xerrors.New("stream deleted"))
	}
	s.curLoc = s.loc
	s.curOffset = uint32(HeaderTotalSize(s.fs.cfg.MaxFileName))
	remaining, err := s.fs.payloadLength(s.header)
	if err != nil {
		return err
	}
	s.remaining = remaining
	return nil
}

// Get reads up to len(buf) bytes from the stream's current read
// position, following the fragment chain as each page's payload is
// exhausted, and returns the number of bytes read. It returns
// (0, io.EOF)-equivalent behavior by returning n=0, err=nil when the
// file has no more bytes — callers compare n against len(buf), as the
// source this spec was distilled from has no EOF sentinel of its own.
func (s *Stream) Get(buf []byte) (int, error) {
	const op = "Stream.Get"
	fs := s.fs
	if err := fs.lock(); err != nil {
		return 0, err
	}
	defer fs.unlock()

	if !s.mode.read {
		return 0, newErr(op, ErrGeneric, xerrors.New("stream not opened for reading"))
	}
	if s.deleted {
		return 0, newErr(op, ErrGeneric, xerrors.New("stream deleted"))
	}

	read := 0
	for read < len(buf) && s.remaining > 0 {
		pageSize := fs.cfg.PageSize
		avail := pageSize - s.curOffset
		want := uint32(len(buf) - read)
		if want > avail {
			want = avail
		}
		if want > s.remaining {
			want = s.remaining
		}

		if err := fs.io.read(s.curLoc.Page, s.curOffset, buf[read:read+int(want)]); err != nil {
			return read, err
		}
		if err := fs.io.sync(); err != nil {
			return read, err
		}

		read += int(want)
		s.curOffset += want
		s.remaining -= want

		if s.remaining == 0 {
			break
		}
		if s.curOffset >= pageSize {
			next, err := s.nextFragmentLoc()
			if err != nil {
				return read, err
			}
			s.curLoc = next
			s.curOffset = uint32(FragmentHeaderTotalSize)
		}
	}
	return read, nil
}

// nextFragmentLoc reads the fragment pointer out of whichever header
// (main or fragment) is at curLoc.
func (s *Stream) nextFragmentLoc() (Loc, error) {
	fs := s.fs
	var frag uint64
	if s.curLoc == s.loc {
		frag = s.header.FragmentLocation
	} else {
		fh, err := fs.hs.storeFragment(s.curLoc)
		if err != nil {
			return Loc{}, err
		}
		frag = fh.FragmentLocation
	}
	if frag == locNone || frag == locUninitialized {
		return Loc{}, newErr("Stream.Get", ErrReadFailed, xerrors.New("fragment chain ended before remaining count reached zero"))
	}
	return locFromOffset(frag, fs.cfg.PageSize), nil
}
