// Package fuseview projects a mounted storfs.FS as a read-only FUSE
// file system, for interactively inspecting a flash image's contents
// with ordinary tools (ls, cat, find) instead of the storfs API.
package fuseview

import (
	"context"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"

	"github.com/distr1/storfs"
)

const rootInode = fuseops.RootInodeID

// never caches every attribute/entry forever: the underlying image is
// only ever read through this view, never mutated concurrently, so
// there is nothing for the kernel to invalidate.
var never = time.Now().Add(365 * 24 * time.Hour)

type dirent struct {
	path    string
	name    string
	isDir   bool
	size    uint32
	inode   fuseops.InodeID
	parent  fuseops.InodeID
	entries []fuseops.InodeID // populated lazily for directories
}

// view implements fuseutil.FileSystem as a read-only walk over a
// mounted storfs.FS, mirroring the teacher's fuseFS in structure:
// an inode table built on demand, guarded by one mutex, with every
// mutating FUSE op mapped to syscall.EROFS.
type view struct {
	fuseutil.NotImplementedFileSystem

	fs *storfs.FS

	mu       sync.Mutex
	inodes   map[fuseops.InodeID]*dirent
	inodeCnt fuseops.InodeID
}

// New builds a read-only FUSE file system over fs, which must already
// be mounted.
func New(fs *storfs.FS) fuseutil.FileSystem {
	v := &view{
		fs:       fs,
		inodes:   make(map[fuseops.InodeID]*dirent),
		inodeCnt: rootInode,
	}
	v.inodes[rootInode] = &dirent{path: "", name: "/", isDir: true, inode: rootInode}
	return v
}

// Mount serves a read-only view of fs at mountpoint until ctx is canceled or the caller
// calls the returned join function, mirroring internal/fuse.Mount's
// signature so the two can share a CLI command.
func Mount(ctx context.Context, fs *storfs.FS, mountpoint string) (join func(context.Context) error, err error) {
	server := fuseutil.NewFileSystemServer(New(fs))
	mfs, err := fuse.Mount(mountpoint, server, &fuse.MountConfig{
		FSName:                 "storfs",
		ReadOnly:               true,
		EnableNoOpenSupport:    true,
		EnableNoOpendirSupport: true,
	})
	if err != nil {
		return nil, xerrors.Errorf("fuse.Mount: %w", err)
	}
	var g errgroup.Group
	g.Go(func() error { return mfs.Join(ctx) })
	join = func(context.Context) error { return g.Wait() }
	return join, nil
}

func (v *view) allocateInodeLocked() fuseops.InodeID {
	v.inodeCnt++
	return v.inodeCnt
}

// listLocked populates (if necessary) and returns the child entries of
// dir, resolving each child's storfs path by walking dir's own path.
func (v *view) listLocked(dir *dirent) ([]*dirent, error) {
	if dir.entries != nil {
		out := make([]*dirent, 0, len(dir.entries))
		for _, id := range dir.entries {
			out = append(out, v.inodes[id])
		}
		return out, nil
	}

	children, err := v.fs.ListDir(dir.path)
	if err != nil {
		return nil, err
	}
	dir.entries = make([]fuseops.InodeID, 0, len(children))
	out := make([]*dirent, 0, len(children))
	for _, c := range children {
		id := v.allocateInodeLocked()
		child := &dirent{
			path:   joinPath(dir.path, c.Name),
			name:   c.Name,
			isDir:  c.IsDir,
			size:   c.Size,
			inode:  id,
			parent: dir.inode,
		}
		v.inodes[id] = child
		dir.entries = append(dir.entries, id)
		out = append(out, child)
	}
	return out, nil
}

func joinPath(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + "/" + name
}

func (v *view) attributes(d *dirent) fuseops.InodeAttributes {
	mode := os.FileMode(0o444)
	if d.isDir {
		mode = os.ModeDir | 0o555
	}
	return fuseops.InodeAttributes{
		Size:  uint64(d.size),
		Nlink: 1,
		Mode:  mode,
		Atime: never,
		Mtime: never,
		Ctime: never,
	}
}

func (v *view) StatFS(ctx context.Context, op *fuseops.StatFSOp) error {
	op.BlockSize = 4096
	op.IoSize = 65536
	return nil
}

func (v *view) LookUpInode(ctx context.Context, op *fuseops.LookUpInodeOp) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	parent, ok := v.inodes[op.Parent]
	if !ok || !parent.isDir {
		return fuse.EIO
	}
	children, err := v.listLocked(parent)
	if err != nil {
		return fuse.ENOENT
	}
	for _, c := range children {
		if c.name != op.Name {
			continue
		}
		op.Entry.Child = c.inode
		op.Entry.Attributes = v.attributes(c)
		op.Entry.AttributesExpiration = never
		op.Entry.EntryExpiration = never
		return nil
	}
	return fuse.ENOENT
}

func (v *view) GetInodeAttributes(ctx context.Context, op *fuseops.GetInodeAttributesOp) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	d, ok := v.inodes[op.Inode]
	if !ok {
		return fuse.ENOENT
	}
	op.Attributes = v.attributes(d)
	op.AttributesExpiration = never
	return nil
}

func (v *view) OpenDir(ctx context.Context, op *fuseops.OpenDirOp) error {
	return fuse.ENOSYS // served without a handle, per EnableNoOpendirSupport
}

func (v *view) ReadDir(ctx context.Context, op *fuseops.ReadDirOp) error {
	v.mu.Lock()
	dir, ok := v.inodes[op.Inode]
	if !ok || !dir.isDir {
		v.mu.Unlock()
		return fuse.EIO
	}
	children, err := v.listLocked(dir)
	v.mu.Unlock()
	if err != nil {
		return fuse.EIO
	}

	var entries []fuseutil.Dirent
	for _, c := range children {
		typ := fuseutil.DT_File
		if c.isDir {
			typ = fuseutil.DT_Directory
		}
		entries = append(entries, fuseutil.Dirent{
			Offset: fuseops.DirOffset(len(entries) + 1),
			Inode:  c.inode,
			Name:   c.name,
			Type:   typ,
		})
	}
	if op.Offset > fuseops.DirOffset(len(entries)) {
		return fuse.EIO
	}
	for _, e := range entries[op.Offset:] {
		n := fuseutil.WriteDirent(op.Dst[op.BytesRead:], e)
		if n == 0 {
			break
		}
		op.BytesRead += n
	}
	return nil
}

func (v *view) OpenFile(ctx context.Context, op *fuseops.OpenFileOp) error {
	return fuse.ENOSYS // served without a handle, per EnableNoOpenSupport
}

func (v *view) ReadFile(ctx context.Context, op *fuseops.ReadFileOp) error {
	v.mu.Lock()
	d, ok := v.inodes[op.Inode]
	v.mu.Unlock()
	if !ok || d.isDir {
		return fuse.EIO
	}

	stream, err := v.fs.Open(d.path, "r")
	if err != nil {
		return fuse.ENOENT
	}
	if err := stream.Rewind(); err != nil {
		return fuse.EIO
	}
	full := make([]byte, d.size)
	n, err := stream.Get(full)
	if err != nil {
		return fuse.EIO
	}
	full = full[:n]
	if op.Offset >= int64(len(full)) {
		op.BytesRead = 0
		return nil
	}
	op.BytesRead = copy(op.Dst, full[op.Offset:])
	return nil
}

// Every mutating op is rejected outright: this is a debug view, not a
// second write path into the image.
func (v *view) MkDir(ctx context.Context, op *fuseops.MkDirOp) error           { return syscall.EROFS }
func (v *view) CreateFile(ctx context.Context, op *fuseops.CreateFileOp) error { return syscall.EROFS }
func (v *view) WriteFile(ctx context.Context, op *fuseops.WriteFileOp) error   { return syscall.EROFS }
func (v *view) Unlink(ctx context.Context, op *fuseops.UnlinkOp) error         { return syscall.EROFS }
func (v *view) RmDir(ctx context.Context, op *fuseops.RmDirOp) error           { return syscall.EROFS }
func (v *view) Rename(ctx context.Context, op *fuseops.RenameOp) error        { return syscall.EROFS }

func (v *view) Destroy() {}
