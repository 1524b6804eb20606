package storfs_test

import (
	"bytes"
	"testing"

	"github.com/distr1/storfs"
	"github.com/distr1/storfs/blockdev"
)

func newTestFS(t *testing.T) *storfs.FS {
	t.Helper()
	dev := blockdev.NewRAM(256, 512)
	fs, err := storfs.New(dev, storfs.Config{PageSize: 512, PageCount: 256, MaxFileName: 16})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := fs.Mount("test"); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	return fs
}

func TestMountFormatsBlankDevice(t *testing.T) {
	dev := blockdev.NewRAM(256, 512)
	fs, err := storfs.New(dev, storfs.Config{PageSize: 512, PageCount: 256})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := fs.Mount(""); err == nil {
		t.Fatal("Mount on blank device without a name should fail")
	}
	if err := fs.Mount("vol"); err != nil {
		t.Fatalf("Mount: %v", err)
	}
}

func TestMountReloadsExistingRoot(t *testing.T) {
	dev := blockdev.NewRAM(256, 512)
	cfg := storfs.Config{PageSize: 512, PageCount: 256}

	fs1, err := storfs.New(dev, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := fs1.Mount("vol"); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	if err := fs1.Touch("/hello"); err != nil {
		t.Fatalf("Touch: %v", err)
	}

	fs2, err := storfs.New(dev, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := fs2.Mount(""); err != nil {
		t.Fatalf("re-Mount: %v", err)
	}
	entries, err := fs2.ListDir("")
	if err != nil {
		t.Fatalf("ListDir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name != "hello" {
		t.Fatalf("ListDir after remount = %+v, want [hello]", entries)
	}
}

func TestMkdirTouchPutGet(t *testing.T) {
	fs := newTestFS(t)

	if err := fs.Mkdir("/a/b/c"); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}

	const path = "/a/b/c/greeting.txt"
	stream, err := fs.Open(path, "w")
	if err != nil {
		t.Fatalf("Open(w): %v", err)
	}
	want := []byte("hello, flash filesystem")
	if _, err := stream.Put(want); err != nil {
		t.Fatalf("Put: %v", err)
	}

	rs, err := fs.Open(path, "r")
	if err != nil {
		t.Fatalf("Open(r): %v", err)
	}
	got := make([]byte, len(want))
	n, err := rs.Get(got)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if n != len(want) || !bytes.Equal(got[:n], want) {
		t.Fatalf("Get = %q (n=%d), want %q", got[:n], n, want)
	}
}

func TestPutSpansMultiplePages(t *testing.T) {
	fs := newTestFS(t)

	stream, err := fs.Open("/big.bin", "w")
	if err != nil {
		t.Fatalf("Open(w): %v", err)
	}
	want := bytes.Repeat([]byte{0xAB}, 3000)
	if _, err := stream.Put(want); err != nil {
		t.Fatalf("Put: %v", err)
	}

	rs, err := fs.Open("/big.bin", "r")
	if err != nil {
		t.Fatalf("Open(r): %v", err)
	}
	got := make([]byte, len(want))
	n, err := rs.Get(got)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if n != len(want) || !bytes.Equal(got, want) {
		t.Fatalf("Get returned %d bytes, want %d matching bytes", n, len(want))
	}
}

func TestAppendExtendsFile(t *testing.T) {
	fs := newTestFS(t)

	ws, err := fs.Open("/log.txt", "w")
	if err != nil {
		t.Fatalf("Open(w): %v", err)
	}
	if _, err := ws.Put([]byte("first ")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	as, err := fs.Open("/log.txt", "a")
	if err != nil {
		t.Fatalf("Open(a): %v", err)
	}
	if _, err := as.Put([]byte("second")); err != nil {
		t.Fatalf("Put append: %v", err)
	}

	rs, err := fs.Open("/log.txt", "r")
	if err != nil {
		t.Fatalf("Open(r): %v", err)
	}
	buf := make([]byte, 32)
	n, err := rs.Get(buf)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	want := "first second"
	if string(buf[:n]) != want {
		t.Fatalf("Get = %q, want %q", buf[:n], want)
	}
}

func TestRemoveFileFreesSpaceAndUnlinks(t *testing.T) {
	fs := newTestFS(t)

	if err := fs.Touch("/keep"); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	if err := fs.Touch("/drop"); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	if err := fs.Remove("/drop"); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	entries, err := fs.ListDir("")
	if err != nil {
		t.Fatalf("ListDir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name != "keep" {
		t.Fatalf("ListDir after Remove = %+v, want [keep]", entries)
	}
}

func TestRemoveDirectoryRecurses(t *testing.T) {
	fs := newTestFS(t)

	if err := fs.Mkdir("/tree/sub"); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	if err := fs.Touch("/tree/sub/leaf"); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	if err := fs.Remove("/tree"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	entries, err := fs.ListDir("")
	if err != nil {
		t.Fatalf("ListDir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("ListDir after removing /tree = %+v, want empty", entries)
	}
}

func TestOpenMissingFileWithoutWriteFails(t *testing.T) {
	fs := newTestFS(t)
	if _, err := fs.Open("/nope", "r"); err == nil {
		t.Fatal("Open(r) on missing file should fail")
	}
}

func TestTouchCreatesMissingParentDirs(t *testing.T) {
	fs := newTestFS(t)
	if err := fs.Touch("/deeply/nested/name"); err != nil {
		t.Fatalf("Touch with missing parents: %v", err)
	}
}

func TestMkdirRejectsDotInName(t *testing.T) {
	fs := newTestFS(t)
	if err := fs.Mkdir("/bad.dir"); err == nil {
		t.Fatal("Mkdir with '.' in a directory segment should fail")
	}
}
