package storfs

// payloadCapacity returns the usable payload bytes of the main
// header's own page and of a continuation fragment's page. The main
// header page has less room since it carries the full header
// (including the name); a fragment page only carries the short
// continuation header.
func (fs *FS) payloadCapacity() (mainCap, fragCap uint32) {
	headerSize := uint32(HeaderTotalSize(fs.cfg.MaxFileName))
	fragHeaderSize := uint32(FragmentHeaderTotalSize)
	return fs.cfg.PageSize - headerSize, fs.cfg.PageSize - fragHeaderSize
}

// fragmentChainLength counts the continuation pages hanging off h's
// FragmentLocation (0 if h has none).
func (fs *FS) fragmentChainLength(h Header) (int, error) {
	n := 0
	next := h.FragmentLocation
	for next != locNone && next != locUninitialized {
		n++
		fh, err := fs.hs.storeFragment(locFromOffset(next, fs.cfg.PageSize))
		if err != nil {
			return 0, err
		}
		next = fh.FragmentLocation
	}
	return n, nil
}

// payloadLength derives h's pure payload byte count from its on-media
// FileSize (total bytes including every header in the chain, per
// spec §3) and its fragment count: FileSize == header overhead +
// payload, so payload falls out directly once the overhead is known.
func (fs *FS) payloadLength(h Header) (uint32, error) {
	const op = "storfs.payloadLength"
	headerSize := uint32(HeaderTotalSize(fs.cfg.MaxFileName))
	fragHeaderSize := uint32(FragmentHeaderTotalSize)

	n, err := fs.fragmentChainLength(h)
	if err != nil {
		return 0, err
	}
	overhead := headerSize + uint32(n)*fragHeaderSize
	if h.FileSize < overhead {
		return 0, wrapErr(op, ErrGeneric, "file_size %d smaller than header overhead %d (%d fragments)", h.FileSize, overhead, n)
	}
	return h.FileSize - overhead, nil
}
