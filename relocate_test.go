package storfs_test

import (
	"testing"

	"github.com/distr1/storfs"
	"github.com/distr1/storfs/blockdev"
)

// TestWearRetryRelocatesOnPersistentWriteFailure exercises §4.11: a
// page that refuses every write forces the wear-retry wrapper to
// relocate the header (and, transitively, the directory pointer that
// named it) to a fresh page, without losing the entry.
func TestWearRetryRelocatesOnPersistentWriteFailure(t *testing.T) {
	dev := blockdev.NewRAM(64, 512)
	fs, err := storfs.New(dev, storfs.Config{PageSize: 512, PageCount: 64, WearLevelRetries: 2})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := fs.Mount("vol"); err != nil {
		t.Fatalf("Mount: %v", err)
	}

	// The allocator hands out pages in order starting right after the
	// two root mirrors (pages 0 and 1), so the first file created lands
	// on page 2.
	dev.FailPage(2, true)

	if err := fs.Touch("/victim"); err != nil {
		t.Fatalf("Touch with a failing target page: %v", err)
	}

	entries, err := fs.ListDir("")
	if err != nil {
		t.Fatalf("ListDir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name != "victim" {
		t.Fatalf("ListDir = %+v, want a single entry named victim", entries)
	}
}
