// Package storfs implements an embedded, page-addressable storage
// filesystem for raw flash-like media: small NOR/NAND parts and
// simulated in-RAM regions addressed in fixed-size pages with a
// program-then-erase-before-reprogram discipline. It exposes a
// hierarchical namespace (root partition, directories, files) and
// POSIX-like operations over a caller-supplied BlockDevice.
//
// There is no central allocation table: parent/child/sibling pointers
// are threaded through page-embedded headers. A bad page is detected
// post-write by CRC verification; when that forces relocation, the
// wear-retry layer walks back through the directory graph patching
// every pointer that named the moved page.
package storfs

import (
	"log"
	"strings"

	"golang.org/x/xerrors"
)

// Config holds the compile-time-ish knobs of a storfs instance.
// Defaults are applied by New for zero-valued fields.
type Config struct {
	// PageSize is the device's erasable/programmable unit, commonly
	// 512 bytes. Required.
	PageSize uint32
	// PageCount is the number of pages available on the device, used
	// to bound the allocator's forward scan (and by pointerIsEmpty,
	// which treats a pointer past the last page as empty). Required.
	PageCount uint64

	// FirstPageLoc and FirstByteLoc locate the root header; the
	// second root mirror follows on FirstPageLoc+1, byte 0.
	FirstPageLoc uint64
	FirstByteLoc uint32

	// MaxFileName is the compile-time name cap, including the null
	// terminator. Default 32, clamped to a minimum of 4.
	MaxFileName int
	// WearLevelRetries is the number of in-place retries the
	// wear-retry wrapper attempts before relocating. Default 3.
	WearLevelRetries int
	// MaxRelocationDepth bounds the relocator's recursive
	// back-patch. Default 64.
	MaxRelocationDepth int

	// CRC overrides the built-in CRC16. Nil uses the built-in.
	CRC CRC16Func

	// Lock and Unlock, if set, wrap every public operation. The core
	// has no internal synchronization of its own (see §5).
	Lock, Unlock func() error

	// DebugLogHeaders logs, through log.Printf, the root header at
	// mount/format and each header written in place by writeVerified;
	// reads and relocated writes are not logged. The Go analog of
	// STORFS_LOG_DISPLAY_HEADER.
	DebugLogHeaders bool
}

func (c *Config) setDefaults() {
	if c.MaxFileName == 0 {
		c.MaxFileName = 32
	}
	if c.MaxFileName < 4 {
		c.MaxFileName = 4
	}
	if c.WearLevelRetries == 0 {
		c.WearLevelRetries = 3
	}
	if c.MaxRelocationDepth == 0 {
		c.MaxRelocationDepth = 64
	}
}

// FS is a mounted (or not-yet-mounted) storfs instance. It owns the
// cached root mirrors and allocator cursor described in §3; none of
// that state is shared across instances, and FS has no internal
// locking beyond the optional Config.Lock/Unlock hooks.
type FS struct {
	cfg Config
	io  pageIO
	hs  headerStore

	mounted      bool
	mirrors      [2]Loc
	cached       [2]Header
	nextOpenByte uint64
}

// New validates cfg and returns an unmounted FS bound to dev. Call
// Mount before any other operation.
func New(dev BlockDevice, cfg Config) (*FS, error) {
	const op = "storfs.New"
	if dev == nil {
		return nil, newErr(op, ErrGeneric, xerrors.New("nil BlockDevice"))
	}
	if cfg.PageSize == 0 {
		return nil, newErr(op, ErrGeneric, xerrors.New("PageSize must be > 0"))
	}
	cfg.setDefaults()
	io := pageIO{dev: dev, pageSize: cfg.PageSize}
	fs := &FS{
		cfg: cfg,
		io:  io,
		hs:  headerStore{io: io, maxFileName: cfg.MaxFileName},
	}
	return fs, nil
}

func (fs *FS) lock() error {
	if fs.cfg.Lock == nil {
		return nil
	}
	return fs.cfg.Lock()
}

func (fs *FS) unlock() error {
	if fs.cfg.Unlock == nil {
		return nil
	}
	return fs.cfg.Unlock()
}

func (fs *FS) crc() CRC16Func { return fs.cfg.CRC }

func (fs *FS) logHeader(tag string, loc Loc, h Header) {
	if !fs.cfg.DebugLogHeaders {
		return
	}
	log.Printf("| D |%s loc=%+v info=%08b name=%q child=%d sibling=%d fragment=%d size=%d crc=%#04x",
		tag, loc, h.Info, h.Name, h.ChildLocation, h.SiblingLocation, h.FragmentLocation, h.FileSize, h.CRC)
}

// Stream is the handle returned by Open, analogous to STORFS_FILE in
// the source this spec was distilled from. It carries the current
// header/location plus a snapshot of the predecessor (the pointer
// that names this header), so later writes and relocations don't
// need to re-walk the tree from root. The location follows the
// header when a write relocates it; the predecessor snapshot is taken
// at Open and is not updated afterwards.
type Stream struct {
	fs *FS

	loc    Loc
	header Header
	mode   openMode
	pred   predecessor

	// read cursor, reset by rewind.
	curLoc    Loc
	curOffset uint32 // byte offset within curLoc's page where the next read begins
	remaining uint32 // payload bytes left to read

	deleted bool
}

type openMode struct {
	read, write, truncate, appendMode bool
}

func parseMode(mode string) openMode {
	switch mode {
	case "r+":
		return openMode{read: true, write: true}
	case "w":
		return openMode{write: true, truncate: true}
	case "w+":
		return openMode{read: true, write: true, truncate: true}
	case "a":
		return openMode{write: true, appendMode: true}
	case "a+":
		return openMode{read: true, write: true, appendMode: true}
	case "r":
		fallthrough
	default:
		return openMode{read: true}
	}
}

// validateName checks the on-media name constraints: non-empty,
// shorter than MaxFileName (room for the null terminator), and free
// of '/'. Directory segments additionally forbid '.'.
func (fs *FS) validateName(name string, isDir bool) error {
	const op = "storfs.validateName"
	if name == "" {
		return newErr(op, ErrGeneric, xerrors.New("empty name"))
	}
	if len(name) > fs.cfg.MaxFileName-1 {
		return wrapErr(op, ErrGeneric, "name %q exceeds MaxFileName-1=%d", name, fs.cfg.MaxFileName-1)
	}
	if strings.ContainsRune(name, '/') {
		return wrapErr(op, ErrGeneric, "name %q contains '/'", name)
	}
	if isDir && strings.ContainsRune(name, '.') {
		return wrapErr(op, ErrGeneric, "directory name %q contains '.'", name)
	}
	return nil
}

func splitPath(path string) []string {
	parts := strings.Split(path, "/")
	out := parts[:0]
	for _, p := range parts {
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
