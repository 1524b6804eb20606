// Package blockdev provides reference storfs.BlockDevice
// implementations: an in-memory device for tests and simulation, and
// a file-backed device for real disk images.
package blockdev

import (
	"fmt"
	"sync"
)

// RAM is an in-memory storfs.BlockDevice: PageCount pages of PageSize
// bytes each, initialized fully erased (0xFF), with no actual wear
// simulation. Safe for concurrent use.
type RAM struct {
	mu        sync.Mutex
	pageSize  uint32
	pages     [][]byte
	badPages  map[uint64]bool // optional injected failures, for wear-retry tests
	syncCount int
}

// NewRAM allocates a RAM device of pageCount pages, pageSize bytes
// each, all erased.
func NewRAM(pageCount uint64, pageSize uint32) *RAM {
	pages := make([][]byte, pageCount)
	for i := range pages {
		buf := make([]byte, pageSize)
		for j := range buf {
			buf[j] = 0xFF
		}
		pages[i] = buf
	}
	return &RAM{pageSize: pageSize, pages: pages, badPages: map[uint64]bool{}}
}

// FailPage marks page as failing every Write until cleared, so tests
// can exercise the wear-retry/relocation path deterministically.
func (r *RAM) FailPage(page uint64, fail bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if fail {
		r.badPages[page] = true
	} else {
		delete(r.badPages, page)
	}
}

func (r *RAM) bounds(page uint64, byteOffset uint32, n int) error {
	if page >= uint64(len(r.pages)) {
		return fmt.Errorf("blockdev: page %d out of range (have %d)", page, len(r.pages))
	}
	if uint64(byteOffset)+uint64(n) > uint64(r.pageSize) {
		return fmt.Errorf("blockdev: offset %d+%d exceeds page size %d", byteOffset, n, r.pageSize)
	}
	return nil
}

func (r *RAM) Read(page uint64, byteOffset uint32, buf []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.bounds(page, byteOffset, len(buf)); err != nil {
		return err
	}
	copy(buf, r.pages[page][byteOffset:])
	return nil
}

func (r *RAM) Write(page uint64, byteOffset uint32, buf []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.bounds(page, byteOffset, len(buf)); err != nil {
		return err
	}
	if r.badPages[page] {
		return fmt.Errorf("blockdev: page %d is marked failing", page)
	}
	copy(r.pages[page][byteOffset:], buf)
	return nil
}

func (r *RAM) Erase(page uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if page >= uint64(len(r.pages)) {
		return fmt.Errorf("blockdev: page %d out of range (have %d)", page, len(r.pages))
	}
	buf := r.pages[page]
	for i := range buf {
		buf[i] = 0xFF
	}
	return nil
}

func (r *RAM) Sync() error {
	r.mu.Lock()
	r.syncCount++
	r.mu.Unlock()
	return nil
}

// SyncCount reports how many times Sync has been called, for tests
// that assert on write-through behavior.
func (r *RAM) SyncCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.syncCount
}
