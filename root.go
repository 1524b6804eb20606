package storfs

import "golang.org/x/xerrors"

// Mount validates the root location, then either formats a blank
// partition (first call, name required) or reloads the cached root
// mirrors and cursor from an existing one. Subsequent calls may pass
// "" to simply reload the cache; reloading is automatic since the
// mirrors are re-read from media every time.
func (fs *FS) Mount(name string) error {
	const op = "storfs.Mount"
	if err := fs.lock(); err != nil {
		return err
	}
	defer fs.unlock()

	size := HeaderTotalSize(fs.cfg.MaxFileName)
	if uint64(fs.cfg.FirstByteLoc)+uint64(size) > uint64(fs.cfg.PageSize) {
		return newErr(op, ErrGeneric, xerrors.New("first_byte_loc + HEADER_TOTAL_SIZE exceeds page size"))
	}

	r0 := Loc{Page: fs.cfg.FirstPageLoc, Byte: fs.cfg.FirstByteLoc}
	r1 := Loc{Page: fs.cfg.FirstPageLoc + 1, Byte: 0}
	fs.mirrors = [2]Loc{r0, r1}

	h0, err := fs.hs.store(r0)
	if err != nil {
		return err
	}
	h1, err := fs.hs.store(r1)
	if err != nil {
		return err
	}

	if h0.Info.FillState() == FillEmpty || h1.Info.FillState() == FillEmpty {
		if name == "" {
			return newErr(op, ErrGeneric, xerrors.New("first mount requires a non-empty partition name"))
		}
		return fs.format(name)
	}

	root, ok := fs.adoptRoot(h0, h1)
	if !ok {
		return newErr(op, ErrCRC, xerrors.New("both root mirrors fail CRC verification"))
	}
	fs.cached = [2]Header{root, root}
	fs.nextOpenByte = root.FragmentLocation
	fs.mounted = true
	fs.logHeader("mount", r0, h0)
	return nil
}

// adoptRoot implements the documented resolution for mirror
// disagreement (spec.md §9 Open Question, decided in DESIGN.md):
// prefer mirror 0 if its CRC verifies, else mirror 1 if its CRC
// verifies, else fail.
func (fs *FS) adoptRoot(h0, h1 Header) (Header, bool) {
	if fs.verifyNameCRC(h0) {
		return h0, true
	}
	if fs.verifyNameCRC(h1) {
		return h1, true
	}
	return Header{}, false
}

func (fs *FS) verifyNameCRC(h Header) bool {
	return h.CRC == crcName(h.Name, fs.cfg.MaxFileName, fs.crc())
}

// format initializes a blank partition: erase both root pages, set
// the cursor past the second mirror, write a fresh root header to
// both mirrors, and verify each write.
func (fs *FS) format(name string) error {
	const op = "storfs.format"
	r0, r1 := fs.mirrors[0], fs.mirrors[1]

	if err := fs.io.erase(r0.Page); err != nil {
		return err
	}
	if err := fs.io.erase(r1.Page); err != nil {
		return err
	}

	// ChildLocation and FragmentLocation both start out pointing at the
	// allocator cursor, matching spec.md §8 scenario 1 (and the
	// original's storfs_mount): there is no empty-root sentinel distinct
	// from "points at the next free page" — an empty child/sibling
	// chain is recognized by reading the header at the pointer and
	// finding it blank, not by the pointer's own value (see
	// pointerIsEmpty).
	nextOpen := (r1.Page + 1) * uint64(fs.cfg.PageSize)
	root := Header{
		Info:             NewFileInfo(TypeRoot, FillPartial),
		Name:             name,
		ChildLocation:    nextOpen,
		SiblingLocation:  locNone,
		Reserved:         reservedDefault,
		FragmentLocation: nextOpen,
		FileSize:         uint32(2 * HeaderTotalSize(fs.cfg.MaxFileName)),
		CRC:              crcName(name, fs.cfg.MaxFileName, fs.crc()),
	}

	for _, loc := range fs.mirrors {
		if err := fs.hs.create(loc, root); err != nil {
			return err
		}
		got, err := fs.hs.store(loc)
		if err != nil {
			return err
		}
		if !fs.verifyNameCRC(got) {
			return newErr(op, ErrCRC, xerrors.New("post-format CRC verification failed"))
		}
	}

	fs.cached = [2]Header{root, root}
	fs.nextOpenByte = nextOpen
	fs.mounted = true
	fs.logHeader("format", r0, root)
	return nil
}

// persistRoot rewrites both root mirrors with the current cached
// header (with FragmentLocation set to nextOpenByte) and resyncs the
// cache. Any mutation that changes nextOpenByte or a root pointer
// must call this before returning, per the write-through policy in
// §5.
func (fs *FS) persistRoot() error {
	const op = "storfs.persistRoot"
	root := fs.cached[0]
	root.FragmentLocation = fs.nextOpenByte
	for i, loc := range fs.mirrors {
		got, err := fs.writeHeaderWithRetry(loc, root, fs.cfg.WearLevelRetries)
		if err != nil {
			return wrapErr(op, kindOf(err), "root mirror %d: %v", i, err)
		}
		fs.cached[i] = got
	}
	return nil
}

// rootHeader returns the current cached root header (mirror 0).
func (fs *FS) rootHeader() Header { return fs.cached[0] }

func (fs *FS) rootLoc() Loc { return fs.mirrors[0] }
