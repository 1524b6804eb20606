package storfs

// headerStore reads and writes headers at a given Loc. It knows
// nothing about the directory graph; it only knows how to get a
// Header's bytes on and off the media.
type headerStore struct {
	io          pageIO
	maxFileName int
}

// store reads a full header at loc, syncs, and decodes it. A blank
// (never-written) page decodes with FillState()==FillEmpty and a Name
// made of MaxFileName 0xFF bytes (there is no null terminator to stop
// at).
func (s headerStore) store(loc Loc) (Header, error) {
	buf := make([]byte, HeaderTotalSize(s.maxFileName))
	if err := s.io.read(loc.Page, loc.Byte, buf); err != nil {
		return Header{}, err
	}
	if err := s.io.sync(); err != nil {
		return Header{}, err
	}
	return UnmarshalHeader(buf, s.maxFileName)
}

// raw reads the raw header-sized buffer at loc without decoding,
// used by the allocator to test for blankness.
func (s headerStore) raw(loc Loc) ([]byte, error) {
	buf := make([]byte, HeaderTotalSize(s.maxFileName))
	if err := s.io.read(loc.Page, loc.Byte, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// create encodes h and writes it at loc, then syncs. It fails with
// ErrWriteFailed if the header would cross a page boundary.
func (s headerStore) create(loc Loc, h Header) error {
	size := HeaderTotalSize(s.maxFileName)
	if uint64(loc.Byte)+uint64(size) > uint64(s.io.pageSize) {
		return newErr("headerstore.create", ErrWriteFailed, nil)
	}
	buf := h.MarshalBinary(s.maxFileName)
	if err := s.io.write(loc.Page, loc.Byte, buf); err != nil {
		return err
	}
	return s.io.sync()
}

// createFragment encodes a fragment header at loc (always byte 0 of
// its page) and syncs.
func (s headerStore) createFragment(loc Loc, h Header) error {
	buf := h.MarshalFragmentBinary()
	if err := s.io.write(loc.Page, loc.Byte, buf); err != nil {
		return err
	}
	return s.io.sync()
}

// storeFragment reads and decodes a fragment header at loc.
func (s headerStore) storeFragment(loc Loc) (Header, error) {
	buf := make([]byte, FragmentHeaderTotalSize)
	if err := s.io.read(loc.Page, loc.Byte, buf); err != nil {
		return Header{}, err
	}
	if err := s.io.sync(); err != nil {
		return Header{}, err
	}
	return UnmarshalFragmentHeader(buf)
}
