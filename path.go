package storfs

import "golang.org/x/xerrors"

// pointerIsEmpty reports whether a child/sibling pointer field value
// denotes "nothing here". Every ordinary node sets such a field to the
// locNone sentinel when it has no child/sibling, but the root's
// ChildLocation starts out seeded with the allocator cursor rather
// than a sentinel (format mirrors the original mount's placeholder, so
// a freshly formatted partition matches spec.md's documented byte
// layout). A non-sentinel pointer is therefore only empty if the page
// it names hasn't actually been written yet.
func (fs *FS) pointerIsEmpty(ptr uint64) (bool, error) {
	if ptr == locNone || ptr == locUninitialized {
		return true, nil
	}
	loc := locFromOffset(ptr, fs.cfg.PageSize)
	if loc.Page >= fs.cfg.PageCount {
		return true, nil
	}
	buf, err := fs.hs.raw(loc)
	if err != nil {
		return false, err
	}
	return isBlank(buf), nil
}

// walkResult is what the path walker hands back to its caller: the
// location and decoded header of the final path segment, plus the
// predecessor snapshot needed to relink that segment's pointer if a
// later write relocates it.
type walkResult struct {
	loc    Loc
	header Header
	pred   predecessor
	found  bool
}

// walk descends the directory graph along parts, starting from the
// root's child. Each segment is searched for among its parent's
// sibling chain (directories hang their entries off ChildLocation;
// entries at the same level are threaded via SiblingLocation). The
// last segment's predecessor is returned whether or not it exists
// (its location and header only when it does), so callers can decide
// to create it.
func (fs *FS) walk(parts []string) (walkResult, error) {
	const op = "storfs.walk"
	root := fs.rootHeader()

	parentRole := predecessor{role: roleRoot}
	childPtr := root.ChildLocation

	for i, name := range parts {
		last := i == len(parts)-1

		empty, err := fs.pointerIsEmpty(childPtr)
		if err != nil {
			return walkResult{}, err
		}
		if empty {
			if last {
				return walkResult{pred: parentRole, found: false}, nil
			}
			return walkResult{}, wrapErr(op, ErrGeneric, "path segment %q not found", name)
		}

		loc, h, pred, err := fs.findSibling(locFromOffset(childPtr, fs.cfg.PageSize), name, parentRole)
		if err != nil {
			return walkResult{}, err
		}
		if h.Name != name {
			if last {
				return walkResult{pred: pred, found: false}, nil
			}
			return walkResult{}, wrapErr(op, ErrGeneric, "path segment %q not found", name)
		}

		if last {
			return walkResult{loc: loc, header: h, pred: pred, found: true}, nil
		}

		if h.Info.FileType() != TypeDirectory {
			return walkResult{}, wrapErr(op, ErrGeneric, "path segment %q is not a directory", name)
		}

		parentRole = predecessor{loc: loc, role: roleParent}
		childPtr = h.ChildLocation
	}

	// Empty path: the root itself.
	return walkResult{loc: fs.rootLoc(), header: root, pred: predecessor{}, found: true}, nil
}

// findSibling scans the sibling chain starting at loc looking for
// name, returning either the matching header or, when the chain runs
// out first, the last sibling's location tagged with roleSibling (so
// a create call can append a new sibling there). The predecessor
// returned with a match is parentRole when the first entry matches,
// else the previous sibling. loc must name a written header: callers
// check for an empty chain (pointerIsEmpty) before calling.
func (fs *FS) findSibling(loc Loc, name string, parentRole predecessor) (Loc, Header, predecessor, error) {
	cur := loc
	pred := parentRole
	for {
		h, err := fs.hs.store(cur)
		if err != nil {
			return Loc{}, Header{}, predecessor{}, err
		}
		if h.Name == name {
			return cur, h, pred, nil
		}
		if h.SiblingLocation == locNone || h.SiblingLocation == locUninitialized {
			return cur, h, predecessor{loc: cur, role: roleSibling}, nil
		}
		pred = predecessor{loc: cur, role: roleSibling}
		cur = locFromOffset(h.SiblingLocation, fs.cfg.PageSize)
	}
}

// createEntry allocates a page, writes a header for typ/name there,
// and links it into the tree at pred (as pred's child or sibling,
// matching pred.role), going through writeVerified so relocation on a
// bad page is handled transparently.
func (fs *FS) createEntry(pred predecessor, name string, typ FileType) (Loc, Header, error) {
	loc, err := fs.allocate()
	if err != nil {
		return Loc{}, Header{}, err
	}
	h := Header{
		Info:             NewFileInfo(typ, FillEmpty),
		Name:             name,
		ChildLocation:    locNone,
		SiblingLocation:  locNone,
		Reserved:         reservedDefault,
		FragmentLocation: locNone,
		FileSize:         uint32(HeaderTotalSize(fs.cfg.MaxFileName)),
		CRC:              crcName(name, fs.cfg.MaxFileName, fs.crc()),
	}
	finalLoc, err := fs.writeVerified(loc, h, predecessor{}, 0)
	if err != nil {
		return Loc{}, Header{}, err
	}
	if err := fs.linkChild(pred, finalLoc); err != nil {
		return Loc{}, Header{}, err
	}
	return finalLoc, h, nil
}

// linkChild patches pred's child or sibling pointer (per pred.role) to
// point at loc, the newly created entry.
func (fs *FS) linkChild(pred predecessor, loc Loc) error {
	const op = "storfs.linkChild"
	target := loc.Offset(fs.cfg.PageSize)
	switch pred.role {
	case roleRoot:
		root := fs.rootHeader()
		root.ChildLocation = target
		fs.cached[0], fs.cached[1] = root, root
		return fs.persistRoot()
	case roleParent, roleSibling:
		h, err := fs.hs.store(pred.loc)
		if err != nil {
			return err
		}
		if pred.role == roleParent {
			h.ChildLocation = target
		} else {
			h.SiblingLocation = target
		}
		grandPred, err := fs.findPredecessor(pred.loc.Offset(fs.cfg.PageSize))
		if err != nil {
			grandPred = predecessor{}
		}
		_, err = fs.writeVerified(pred.loc, h, grandPred, 0)
		return err
	default:
		return newErr(op, ErrGeneric, xerrors.New("unsupported predecessor role for link"))
	}
}

// resolveDir walks dirParts, creating any missing directory along the
// way when create is true, and returns the final directory's location
// and the predecessor a new entry under it should link through.
func (fs *FS) resolveDir(dirParts []string, create bool) (Loc, predecessor, error) {
	const op = "storfs.resolveDir"
	loc := fs.rootLoc()
	pred := predecessor{role: roleRoot}
	h := fs.rootHeader()

	for _, name := range dirParts {
		if err := fs.validateName(name, true); err != nil {
			return Loc{}, predecessor{}, err
		}
		empty, err := fs.pointerIsEmpty(h.ChildLocation)
		if err != nil {
			return Loc{}, predecessor{}, err
		}
		if empty {
			if !create {
				return Loc{}, predecessor{}, wrapErr(op, ErrGeneric, "directory %q not found", name)
			}
			childLoc, childHeader, err := fs.createEntry(pred, name, TypeDirectory)
			if err != nil {
				return Loc{}, predecessor{}, err
			}
			loc, h = childLoc, childHeader
			pred = predecessor{loc: loc, role: roleParent}
			continue
		}
		childLoc, childHeader, childPred, err := fs.findSibling(locFromOffset(h.ChildLocation, fs.cfg.PageSize), name, predecessor{loc: loc, role: roleParent})
		if err != nil {
			return Loc{}, predecessor{}, err
		}
		if childHeader.Name != name {
			if !create {
				return Loc{}, predecessor{}, wrapErr(op, ErrGeneric, "directory %q not found", name)
			}
			newLoc, newHeader, err := fs.createEntry(childPred, name, TypeDirectory)
			if err != nil {
				return Loc{}, predecessor{}, err
			}
			loc, h = newLoc, newHeader
			pred = predecessor{loc: loc, role: roleParent}
			continue
		}
		if childHeader.Info.FileType() != TypeDirectory {
			return Loc{}, predecessor{}, wrapErr(op, ErrGeneric, "%q is not a directory", name)
		}
		loc, h = childLoc, childHeader
		pred = predecessor{loc: loc, role: roleParent}
	}
	return loc, pred, nil
}
