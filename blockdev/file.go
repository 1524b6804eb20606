package blockdev

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// File is a storfs.BlockDevice backed by a regular file or block
// special file, addressed with pread/pwrite so callers may also drive
// it concurrently from multiple goroutines without an external mutex
// serializing every access (each call is independently positioned).
type File struct {
	f        *os.File
	pageSize uint32
}

// OpenFile opens path (creating it at size pageSize*pageCount if it
// does not exist) as a File device.
func OpenFile(path string, pageSize uint32, pageCount uint64) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("blockdev: open %s: %w", path, err)
	}
	size := int64(pageSize) * int64(pageCount)
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("blockdev: stat %s: %w", path, err)
	}
	if info.Size() < size {
		if err := f.Truncate(size); err != nil {
			f.Close()
			return nil, fmt.Errorf("blockdev: truncate %s: %w", path, err)
		}
		if err := fillErased(f, info.Size(), size); err != nil {
			f.Close()
			return nil, err
		}
	}
	return &File{f: f, pageSize: pageSize}, nil
}

func fillErased(f *os.File, from, to int64) error {
	blank := make([]byte, 64*1024)
	for i := range blank {
		blank[i] = 0xFF
	}
	for off := from; off < to; {
		n := int64(len(blank))
		if off+n > to {
			n = to - off
		}
		if _, err := unix.Pwrite(int(f.Fd()), blank[:n], off); err != nil {
			return fmt.Errorf("blockdev: initialize erased region: %w", err)
		}
		off += n
	}
	return nil
}

func (d *File) offset(page uint64, byteOffset uint32) int64 {
	return int64(page)*int64(d.pageSize) + int64(byteOffset)
}

func (d *File) Read(page uint64, byteOffset uint32, buf []byte) error {
	if uint64(byteOffset)+uint64(len(buf)) > uint64(d.pageSize) {
		return fmt.Errorf("blockdev: offset %d+%d exceeds page size %d", byteOffset, len(buf), d.pageSize)
	}
	_, err := unix.Pread(int(d.f.Fd()), buf, d.offset(page, byteOffset))
	if err != nil {
		return fmt.Errorf("blockdev: pread page=%d off=%d: %w", page, byteOffset, err)
	}
	return nil
}

func (d *File) Write(page uint64, byteOffset uint32, buf []byte) error {
	if uint64(byteOffset)+uint64(len(buf)) > uint64(d.pageSize) {
		return fmt.Errorf("blockdev: offset %d+%d exceeds page size %d", byteOffset, len(buf), d.pageSize)
	}
	_, err := unix.Pwrite(int(d.f.Fd()), buf, d.offset(page, byteOffset))
	if err != nil {
		return fmt.Errorf("blockdev: pwrite page=%d off=%d: %w", page, byteOffset, err)
	}
	return nil
}

func (d *File) Erase(page uint64) error {
	blank := make([]byte, d.pageSize)
	for i := range blank {
		blank[i] = 0xFF
	}
	_, err := unix.Pwrite(int(d.f.Fd()), blank, d.offset(page, 0))
	if err != nil {
		return fmt.Errorf("blockdev: erase page=%d: %w", page, err)
	}
	return nil
}

func (d *File) Sync() error {
	if err := unix.Fsync(int(d.f.Fd())); err != nil {
		return fmt.Errorf("blockdev: fsync: %w", err)
	}
	return nil
}

// Close releases the underlying file descriptor.
func (d *File) Close() error { return d.f.Close() }
