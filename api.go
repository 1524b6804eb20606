package storfs

import "golang.org/x/xerrors"

// Mkdir creates a directory at path, creating any missing parent
// directories along the way (mirroring os.MkdirAll rather than the
// source's single-level mkdir, since callers otherwise have to walk
// the path themselves).
func (fs *FS) Mkdir(path string) error {
	const op = "storfs.Mkdir"
	if err := fs.lock(); err != nil {
		return err
	}
	defer fs.unlock()

	parts := splitPath(path)
	if len(parts) == 0 {
		return newErr(op, ErrGeneric, xerrors.New("empty path"))
	}
	for _, p := range parts {
		if err := fs.validateName(p, true); err != nil {
			return err
		}
	}
	_, _, err := fs.resolveDir(parts, true)
	return err
}

// Touch creates an empty file at path if it does not already exist,
// creating any missing parent directories along the way.
func (fs *FS) Touch(path string) error {
	const op = "storfs.Touch"
	if err := fs.lock(); err != nil {
		return err
	}
	defer fs.unlock()

	parts := splitPath(path)
	if len(parts) == 0 {
		return newErr(op, ErrGeneric, xerrors.New("empty path"))
	}
	name := parts[len(parts)-1]
	if err := fs.validateName(name, false); err != nil {
		return err
	}

	dirLoc, pred, err := fs.resolveDir(parts[:len(parts)-1], true)
	if err != nil {
		return err
	}
	dirHeader, err := fs.hs.store(dirLoc)
	if err != nil {
		return err
	}

	empty, err := fs.pointerIsEmpty(dirHeader.ChildLocation)
	if err != nil {
		return err
	}
	if !empty {
		_, existing, existingPred, err := fs.findSibling(locFromOffset(dirHeader.ChildLocation, fs.cfg.PageSize), name, predecessor{loc: dirLoc, role: roleParent})
		if err != nil {
			return err
		}
		if existing.Name == name {
			return nil
		}
		pred = existingPred
	}

	_, _, err = fs.createEntry(pred, name, TypeFile)
	return err
}

// Open resolves path to a Stream in the given mode ("r", "r+", "w",
// "w+", "a", "a+"), creating the file first for write/append modes
// when it does not exist.
func (fs *FS) Open(path string, mode string) (*Stream, error) {
	const op = "storfs.Open"
	if err := fs.lock(); err != nil {
		return nil, err
	}
	defer fs.unlock()

	om := parseMode(mode)
	parts := splitPath(path)
	if len(parts) == 0 {
		return nil, newErr(op, ErrGeneric, xerrors.New("empty path"))
	}

	res, err := fs.walk(parts)
	if err != nil {
		return nil, err
	}
	if !res.found {
		if !om.write {
			return nil, wrapErr(op, ErrGeneric, "%q not found", path)
		}
		name := parts[len(parts)-1]
		if err := fs.validateName(name, false); err != nil {
			return nil, err
		}
		loc, h, cerr := fs.createEntry(res.pred, name, TypeFile)
		if cerr != nil {
			return nil, cerr
		}
		res = walkResult{loc: loc, header: h, pred: res.pred, found: true}
	}
	if res.header.Info.FileType() == TypeDirectory {
		return nil, wrapErr(op, ErrGeneric, "%q is a directory", path)
	}

	s := &Stream{fs: fs, loc: res.loc, header: res.header, mode: om, pred: res.pred}
	if err := s.Rewind(); err != nil {
		return nil, err
	}
	return s, nil
}

// Rm removes the file or directory at path. It is a thin alias over
// Remove kept for symmetry with Mkdir/Touch/Open's verb naming.
func (fs *FS) Rm(path string) error { return fs.Remove(path) }

// DirEntry is one child of a directory, as reported by ListDir.
type DirEntry struct {
	Name  string
	IsDir bool
	Size  uint32
}

// ListDir returns the immediate children of the directory at path
// ("" for the root). Used by tooling (e.g. internal/fuseview) that
// needs to enumerate a directory without walking the sibling chain
// itself.
func (fs *FS) ListDir(path string) ([]DirEntry, error) {
	const op = "storfs.ListDir"
	if err := fs.lock(); err != nil {
		return nil, err
	}
	defer fs.unlock()

	parts := splitPath(path)
	var childPtr uint64
	if len(parts) == 0 {
		childPtr = fs.rootHeader().ChildLocation
	} else {
		res, err := fs.walk(parts)
		if err != nil {
			return nil, err
		}
		if !res.found {
			return nil, wrapErr(op, ErrGeneric, "%q not found", path)
		}
		if res.header.Info.FileType() != TypeDirectory {
			return nil, wrapErr(op, ErrGeneric, "%q is not a directory", path)
		}
		childPtr = res.header.ChildLocation
	}

	var out []DirEntry
	for {
		empty, err := fs.pointerIsEmpty(childPtr)
		if err != nil {
			return nil, err
		}
		if empty {
			break
		}
		loc := locFromOffset(childPtr, fs.cfg.PageSize)
		h, err := fs.hs.store(loc)
		if err != nil {
			return nil, err
		}
		size := uint32(0)
		if h.Info.FileType() != TypeDirectory {
			size, err = fs.payloadLength(h)
			if err != nil {
				return nil, err
			}
		}
		out = append(out, DirEntry{
			Name:  h.Name,
			IsDir: h.Info.FileType() == TypeDirectory,
			Size:  size,
		})
		childPtr = h.SiblingLocation
	}
	return out, nil
}
