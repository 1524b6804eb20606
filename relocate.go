package storfs

import (
	"log"

	"golang.org/x/xerrors"
)

// predecessorRole tags what kind of pointer names a given header, so
// the relocator knows which field to patch without maintaining
// bidirectional links (which would double the write cost). Mirrors
// the Predecessor = Parent | Sibling | FragmentOwner enum from the
// design notes.
type predecessorRole int

const (
	roleNone predecessorRole = iota
	roleParent
	roleSibling
	roleFragmentOwner
	roleRoot
)

type predecessor struct {
	loc  Loc
	role predecessorRole
}

type pointerField int

const (
	fieldChild pointerField = iota
	fieldSibling
	fieldFragment
)

func fieldForRole(role predecessorRole) pointerField {
	switch role {
	case roleSibling:
		return fieldSibling
	case roleFragmentOwner:
		return fieldFragment
	default: // roleParent, roleRoot
		return fieldChild
	}
}

func setPointerField(h *Header, f pointerField, v uint64) {
	switch f {
	case fieldChild:
		h.ChildLocation = v
	case fieldSibling:
		h.SiblingLocation = v
	case fieldFragment:
		h.FragmentLocation = v
	}
}

// writeHeaderWithRetry implements the innermost loop of §4.11: write,
// sync, verify the name CRC; on mismatch erase the page and retry, up
// to retries times. It never relocates — that's writeVerified's job.
func (fs *FS) writeHeaderWithRetry(loc Loc, h Header, retries int) (Header, error) {
	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if err := fs.hs.create(loc, h); err != nil {
			if kindOf(err) != ErrWriteFailed {
				return Header{}, err
			}
			lastErr = err
			fs.io.erase(loc.Page)
			continue
		}
		got, err := fs.hs.store(loc)
		if err != nil {
			return Header{}, err
		}
		if fs.verifyNameCRC(got) {
			return got, nil
		}
		lastErr = newErr("writeHeaderWithRetry", ErrCRC, nil)
		fs.io.erase(loc.Page)
	}
	if lastErr == nil {
		lastErr = newErr("writeHeaderWithRetry", ErrWriteFailed, nil)
	}
	return Header{}, lastErr
}

// writeVerified is the header-only write path: path-walker creation,
// link and unlink re-links, and the writer's main-header updates go
// through it (pages carrying payload go through
// writePageWithRelocation, root mirrors through persistRoot). On
// exhausted retries it
// relocates to a fresh page, patches pred (recursively, if pred's own
// write then fails too), and returns the page the header actually
// ended up on — which callers that keep loc around (a Stream, a
// freshly created entry's own location) must adopt in place of the
// location they passed in.
func (fs *FS) writeVerified(loc Loc, h Header, pred predecessor, depth int) (Loc, error) {
	const op = "storfs.writeVerified"
	if depth > fs.cfg.MaxRelocationDepth {
		return Loc{}, newErr(op, ErrGeneric, xerrors.New("relocation recursion depth exceeded"))
	}
	got, err := fs.writeHeaderWithRetry(loc, h, fs.cfg.WearLevelRetries)
	if err == nil {
		fs.logHeader("write", loc, got)
		return loc, nil
	}
	if kindOf(err) != ErrCRC && kindOf(err) != ErrWriteFailed {
		return Loc{}, err
	}

	newLoc, aerr := fs.allocate()
	if aerr != nil {
		return Loc{}, aerr
	}
	if _, werr := fs.writeHeaderWithRetry(newLoc, h, fs.cfg.WearLevelRetries); werr != nil {
		return Loc{}, werr
	}
	log.Printf("| W |relocated header from %+v to %+v", loc, newLoc)
	if err := fs.applyRelink(newLoc, pred, depth+1); err != nil {
		return Loc{}, err
	}
	return newLoc, nil
}

// writePageWithRelocation is writeVerified's counterpart for pages
// that carry a header plus inline payload (a file's first page, or a
// fragment): buf is the full page image, verify checks it after a
// read-back. On exhausted in-place retries it relocates exactly like
// writeVerified, patching pred's pointer, and returns the page's final
// location.
func (fs *FS) writePageWithRelocation(loc Loc, buf []byte, verify func([]byte) bool, pred predecessor, depth int) (Loc, error) {
	const op = "storfs.writePageWithRelocation"
	if depth > fs.cfg.MaxRelocationDepth {
		return Loc{}, newErr(op, ErrGeneric, xerrors.New("relocation recursion depth exceeded"))
	}
	if err := fs.writePageWithRetry(loc.Page, buf, verify, fs.cfg.WearLevelRetries); err == nil {
		return loc, nil
	}

	newLoc, aerr := fs.allocate()
	if aerr != nil {
		return Loc{}, aerr
	}
	if err := fs.writePageWithRetry(newLoc.Page, buf, verify, fs.cfg.WearLevelRetries); err != nil {
		return Loc{}, err
	}
	log.Printf("| W |relocated page from %+v to %+v", loc, newLoc)
	if err := fs.applyRelink(newLoc, pred, depth+1); err != nil {
		return Loc{}, err
	}
	return newLoc, nil
}

// applyRelink patches whichever pointer named the page that just
// moved to newLoc. Recursion terminates at the root mirrors, the only
// place the roots themselves move (their cached header is mutated and
// both mirrors rewritten).
func (fs *FS) applyRelink(newLoc Loc, pred predecessor, depth int) error {
	if pred.role == roleNone {
		return nil
	}
	target := newLoc.Offset(fs.cfg.PageSize)
	if pred.role == roleRoot {
		root := fs.rootHeader()
		setPointerField(&root, fieldForRole(pred.role), target)
		fs.cached[0], fs.cached[1] = root, root
		return fs.persistRoot()
	}
	return fs.relinkPointer(pred.loc, fieldForRole(pred.role), target, depth)
}

// relinkPointer patches a single pointer field on the page at loc,
// preserving whatever payload bytes share that page (a file's header
// page may have inline data immediately following the header; a
// fragment's header page always does). It reads the whole page,
// mutates only the header bytes, and rewrites the whole page, because
// flash requires an erase before any reprogram.
func (fs *FS) relinkPointer(loc Loc, field pointerField, target uint64, depth int) error {
	const op = "storfs.relinkPointer"
	if depth > fs.cfg.MaxRelocationDepth {
		return newErr(op, ErrGeneric, xerrors.New("relocation recursion depth exceeded"))
	}

	pageBuf, err := fs.buildPatchedPage(loc, field, target)
	if err != nil {
		return err
	}
	verify := fs.pageVerifier()

	if err := fs.writePageWithRetry(loc.Page, pageBuf, verify, fs.cfg.WearLevelRetries); err == nil {
		return nil
	}

	newLoc, aerr := fs.allocate()
	if aerr != nil {
		return aerr
	}
	if err := fs.writePageWithRetry(newLoc.Page, pageBuf, verify, fs.cfg.WearLevelRetries); err != nil {
		return err
	}
	log.Printf("| W |relocated predecessor page from %+v to %+v", loc, newLoc)

	grand, gerr := fs.findPredecessor(loc.Offset(fs.cfg.PageSize))
	if gerr != nil {
		return gerr
	}
	return fs.applyRelink(newLoc, grand, depth+1)
}

// buildPatchedPage reads the full page at loc, decodes whichever
// header flavor is there (full or fragment), mutates the requested
// pointer field, and re-encodes it back into the same buffer,
// leaving any trailing payload bytes untouched.
func (fs *FS) buildPatchedPage(loc Loc, field pointerField, target uint64) ([]byte, error) {
	buf := make([]byte, fs.cfg.PageSize)
	if err := fs.io.read(loc.Page, 0, buf); err != nil {
		return nil, err
	}
	if err := fs.io.sync(); err != nil {
		return nil, err
	}
	if FileInfo(buf[0]).IsFragment() {
		fh, err := UnmarshalFragmentHeader(buf[:FragmentHeaderTotalSize])
		if err != nil {
			return nil, err
		}
		setPointerField(&fh, field, target)
		copy(buf[:FragmentHeaderTotalSize], fh.MarshalFragmentBinary())
		return buf, nil
	}
	h, err := UnmarshalHeader(buf[:HeaderTotalSize(fs.cfg.MaxFileName)], fs.cfg.MaxFileName)
	if err != nil {
		return nil, err
	}
	setPointerField(&h, field, target)
	copy(buf[:HeaderTotalSize(fs.cfg.MaxFileName)], h.MarshalBinary(fs.cfg.MaxFileName))
	return buf, nil
}

// pageVerifier returns a verification function suitable for
// writePageWithRetry: full headers are checked against the name CRC;
// fragments are checked only for structural decodability, since a
// pointer patch never changes the payload its CRC covers.
func (fs *FS) pageVerifier() func([]byte) bool {
	return func(buf []byte) bool {
		if FileInfo(buf[0]).IsFragment() {
			_, err := UnmarshalFragmentHeader(buf[:FragmentHeaderTotalSize])
			return err == nil
		}
		h, err := UnmarshalHeader(buf[:HeaderTotalSize(fs.cfg.MaxFileName)], fs.cfg.MaxFileName)
		if err != nil {
			return false
		}
		return fs.verifyNameCRC(h)
	}
}

func (fs *FS) writePageWithRetry(page uint64, buf []byte, verify func([]byte) bool, retries int) error {
	for attempt := 0; attempt <= retries; attempt++ {
		if err := fs.io.erase(page); err != nil {
			return err
		}
		if err := fs.io.write(page, 0, buf); err != nil {
			continue
		}
		if err := fs.io.sync(); err != nil {
			return err
		}
		check := make([]byte, len(buf))
		if err := fs.io.read(page, 0, check); err != nil {
			return err
		}
		if verify(check) {
			return nil
		}
	}
	return newErr("writePageWithRetry", ErrCRC, nil)
}

// findPredecessor searches forward from the root for the header whose
// child/sibling/fragment pointer equals target (a flat byte offset),
// per the design notes' recursive predecessor search. Used when a
// relocation cascades beyond the one level of predecessor the path
// walker or remover already had in hand.
func (fs *FS) findPredecessor(target uint64) (predecessor, error) {
	const op = "storfs.findPredecessor"
	root := fs.rootHeader()
	if root.ChildLocation == target {
		return predecessor{role: roleRoot}, nil
	}
	if root.ChildLocation == locNone || root.ChildLocation == locUninitialized {
		return predecessor{}, newErr(op, ErrGeneric, xerrors.New("predecessor not found: empty tree"))
	}
	return fs.searchFrom(locFromOffset(root.ChildLocation, fs.cfg.PageSize), target)
}

func (fs *FS) searchFrom(loc Loc, target uint64) (predecessor, error) {
	const op = "storfs.searchFrom"
	h, err := fs.hs.store(loc)
	if err != nil {
		return predecessor{}, err
	}
	if h.ChildLocation == target {
		return predecessor{loc: loc, role: roleParent}, nil
	}
	if h.SiblingLocation == target {
		return predecessor{loc: loc, role: roleSibling}, nil
	}
	if pred, ok := fs.searchFragmentChain(loc, h, target); ok {
		return pred, nil
	}
	if h.ChildLocation != locNone && h.ChildLocation != locUninitialized {
		if pred, err := fs.searchFrom(locFromOffset(h.ChildLocation, fs.cfg.PageSize), target); err == nil {
			return pred, nil
		}
	}
	if h.SiblingLocation != locNone && h.SiblingLocation != locUninitialized {
		return fs.searchFrom(locFromOffset(h.SiblingLocation, fs.cfg.PageSize), target)
	}
	return predecessor{}, newErr(op, ErrGeneric, xerrors.New("predecessor not found"))
}

// searchFragmentChain walks owner's fragment chain looking for a link
// pointing at target. owner itself may be a main header (first
// fragment pointer) or a fragment header (next fragment pointer).
func (fs *FS) searchFragmentChain(ownerLoc Loc, owner Header, target uint64) (predecessor, bool) {
	curLoc, cur := ownerLoc, owner
	for cur.FragmentLocation != locNone && cur.FragmentLocation != locUninitialized {
		if cur.FragmentLocation == target {
			return predecessor{loc: curLoc, role: roleFragmentOwner}, true
		}
		nextLoc := locFromOffset(cur.FragmentLocation, fs.cfg.PageSize)
		fh, err := fs.hs.storeFragment(nextLoc)
		if err != nil {
			return predecessor{}, false
		}
		curLoc, cur = nextLoc, fh
	}
	return predecessor{}, false
}
