package storfs

import "golang.org/x/xerrors"

// Remove deletes the file or directory at path: erases its fragment
// chain (recursing into children first for a directory), relinks the
// predecessor's pointer around the gap, and pulls the allocator
// cursor back if the freed space precedes it, per §4's removal rules.
func (fs *FS) Remove(path string) error {
	const op = "storfs.Remove"
	if err := fs.lock(); err != nil {
		return err
	}
	defer fs.unlock()

	parts := splitPath(path)
	if len(parts) == 0 {
		return newErr(op, ErrGeneric, xerrors.New("cannot remove the root"))
	}

	res, err := fs.walk(parts)
	if err != nil {
		return err
	}
	if !res.found {
		return wrapErr(op, ErrGeneric, "%q not found", path)
	}

	if res.header.Info.FileType() == TypeDirectory {
		if err := fs.removeChildren(res.header.ChildLocation); err != nil {
			return err
		}
	}

	if err := fs.freeFragmentChain(res.header.FragmentLocation); err != nil {
		return err
	}

	if err := fs.unlink(res.pred, res.loc, res.header); err != nil {
		return err
	}

	if err := fs.io.erase(res.loc.Page); err != nil {
		return err
	}
	return fs.pullCursorBack(res.loc.Offset(fs.cfg.PageSize))
}

// removeChildren recursively erases every entry reachable from off (a
// directory's ChildLocation), depth-first through children, then
// across the sibling chain.
func (fs *FS) removeChildren(off uint64) error {
	if off == locNone || off == locUninitialized {
		return nil
	}
	loc := locFromOffset(off, fs.cfg.PageSize)
	h, err := fs.hs.store(loc)
	if err != nil {
		return err
	}

	if h.Info.FileType() == TypeDirectory {
		if err := fs.removeChildren(h.ChildLocation); err != nil {
			return err
		}
	}
	if err := fs.freeFragmentChain(h.FragmentLocation); err != nil {
		return err
	}
	sibling := h.SiblingLocation
	if err := fs.io.erase(loc.Page); err != nil {
		return err
	}
	if err := fs.pullCursorBack(off); err != nil {
		return err
	}
	return fs.removeChildren(sibling)
}

// unlink patches pred's pointer to skip over the removed entry at loc,
// splicing loc's sibling into the chain pred used to point at loc.
func (fs *FS) unlink(pred predecessor, loc Loc, removed Header) error {
	const op = "storfs.unlink"
	next := removed.SiblingLocation

	switch pred.role {
	case roleRoot:
		root := fs.rootHeader()
		root.ChildLocation = next
		fs.cached[0], fs.cached[1] = root, root
		return fs.persistRoot()
	case roleParent, roleSibling:
		h, err := fs.hs.store(pred.loc)
		if err != nil {
			return err
		}
		if pred.role == roleParent {
			h.ChildLocation = next
		} else {
			h.SiblingLocation = next
		}
		grandPred, gerr := fs.findPredecessor(pred.loc.Offset(fs.cfg.PageSize))
		if gerr != nil {
			grandPred = predecessor{}
		}
		_, err = fs.writeVerified(pred.loc, h, grandPred, 0)
		return err
	default:
		return newErr(op, ErrGeneric, xerrors.New("unsupported predecessor role for unlink"))
	}
}
