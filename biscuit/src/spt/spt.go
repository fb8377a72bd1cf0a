// Package spt is the supplemental page table: one per process, mapping a
// user virtual page to a description of where its contents currently
// live, and the central page-in/page-out routines that materialize and
// evict pages. Grounded on biscuit/src/vm/as.go's Addr_spc_t (a
// per-process address-space map and its Pgfault/pg_insert
// logic), adapted from its direct pagedir writes into the
// frame-table-mediated allocation this package now requires.
package spt

import (
	"biscuit/biscuit/src/caller"
	"biscuit/biscuit/src/file"
	"biscuit/biscuit/src/frame"
	"biscuit/biscuit/src/mem"
	"biscuit/biscuit/src/pagedir"
	"biscuit/biscuit/src/stats"
	"biscuit/biscuit/src/swap"
)

// State is where an SPTE's bytes currently live.
type State int

const (
	OnFrame State = iota
	OnFilesys
	SwappedOut
	AllZero
)

func (s State) String() string {
	switch s {
	case OnFrame:
		return "ON_FRAME"
	case OnFilesys:
		return "ON_FILESYS"
	case SwappedOut:
		return "SWAPPED_OUT"
	case AllZero:
		return "ALL_ZERO"
	}
	return "UNKNOWN"
}

// Entry is one supplemental page table entry. The file-backing fields
// persist across a page's ON_FRAME <-> ON_FILESYS transitions (a reload
// needs them again after eviction discards the frame), so unlike the
// tagged-union sketch this keeps one flat struct with an explicit State
// tag rather than losing the file fields whenever a page is resident.
type Entry struct {
	Upage          uintptr
	State          State
	Writable       bool
	FromMappedFile bool
	Dirty          bool // software dirty flag, in addition to the hardware bit

	Kpage mem.Pa_t // meaningful when State == OnFrame

	File          file.File // meaningful whenever the page is file-backed
	FileOffset    int
	FileReadBytes int
	FileZeroBytes int

	SwapSlot swap.Slot // meaningful when State == SwappedOut
}

// Table is one process's supplemental page table. It holds no lock of its
// own: the owning process's thread is its only caller, except for
// Evict, which the frame table invokes while a different thread's
// eviction has selected one of this table's frames — safe only because
// the kernel this models is single-hardware-thread, so that call can
// never truly race a call made by this table's own owner.
type Table struct {
	pagedir *pagedir.Dir
	frames  *frame.Table
	swap    *swap.Manager
	entries map[uintptr]*Entry

	// Stats, if non-nil, receives one mmap-writeback count per dirty
	// mapped-file page persisted on eviction, unmap, or process exit.
	Stats *stats.VM
}

// New creates an empty supplemental page table for a process whose
// hardware mappings live in pd, whose frames come from frames, and whose
// anonymous pages swap through sw.
func New(pd *pagedir.Dir, frames *frame.Table, sw *swap.Manager) *Table {
	return &Table{
		pagedir: pd,
		frames:  frames,
		swap:    sw,
		entries: make(map[uintptr]*Entry),
	}
}

func (t *Table) countWriteback() {
	if t.Stats != nil {
		t.Stats.MmapWritebacks.Inc()
	}
}

// Pagedir implements frame.Owner.
func (t *Table) Pagedir() *pagedir.Dir {
	return t.pagedir
}

// InstallFilesysEntry records an ON_FILESYS page, used by the executable
// loader for each page of a segment.
func (t *Table) InstallFilesysEntry(upage uintptr, f file.File, offset, readBytes, zeroBytes int, writable bool) {
	t.install(upage, &Entry{
		Upage: upage, State: OnFilesys, Writable: writable,
		File: f, FileOffset: offset, FileReadBytes: readBytes, FileZeroBytes: zeroBytes,
	})
}

// InstallMappedFileEntry is InstallFilesysEntry plus FromMappedFile, used
// by mmap.
func (t *Table) InstallMappedFileEntry(upage uintptr, f file.File, offset, readBytes, zeroBytes int, writable bool) {
	t.install(upage, &Entry{
		Upage: upage, State: OnFilesys, Writable: writable, FromMappedFile: true,
		File: f, FileOffset: offset, FileReadBytes: readBytes, FileZeroBytes: zeroBytes,
	})
}

// InstallAllZeroEntry records a lazily zero-filled page, used by stack
// growth and BSS-like regions.
func (t *Table) InstallAllZeroEntry(upage uintptr) {
	t.install(upage, &Entry{Upage: upage, State: AllZero, Writable: true})
}

// InstallFrameEntry records an already-resident anonymous page, used
// immediately after eagerly allocating a frame (the initial stack page).
func (t *Table) InstallFrameEntry(upage uintptr, kpage mem.Pa_t, writable bool) {
	t.install(upage, &Entry{Upage: upage, State: OnFrame, Writable: writable, Kpage: kpage})
}

func (t *Table) install(upage uintptr, e *Entry) {
	if _, ok := t.entries[upage]; ok {
		caller.Fatal("spt: duplicate entry for upage")
	}
	t.entries[upage] = e
}

// HasEntry reports whether an SPTE exists for upage.
func (t *Table) HasEntry(upage uintptr) bool {
	_, ok := t.entries[upage]
	return ok
}

// GetEntry returns the SPTE for upage, if any.
func (t *Table) GetEntry(upage uintptr) (*Entry, bool) {
	e, ok := t.entries[upage]
	return e, ok
}

// Range visits every entry. f returning false stops iteration early.
func (t *Table) Range(f func(upage uintptr, e *Entry) bool) {
	for upage, e := range t.entries {
		if !f(upage, e) {
			return
		}
	}
}

// Count reports how many SPTEs this table currently holds, the
// spt_entry_count() introspection the original Pintos hash-based SPT
// offered its test harness directly.
func (t *Table) Count() int {
	return len(t.entries)
}

// LoadPage is the central page-in routine. It reports false when no SPTE
// exists for upage (the fault handler then applies the stack-growth
// heuristic) or when materializing the page failed. A successful load
// with pinned = false leaves the frame unpinned; with pinned = true the
// caller must later call UnpinPage.
func (t *Table) LoadPage(upage uintptr, pinned bool) bool {
	e, ok := t.entries[upage]
	if !ok {
		return false
	}

	switch e.State {
	case OnFrame:
		if pinned {
			t.frames.PinFrame(e.Kpage)
		}
		return true

	case OnFilesys:
		kpage, page := t.frames.AllocateFrame(t, upage)
		n, errc := e.File.ReadAt(page[:e.FileReadBytes], e.FileOffset)
		if errc != 0 || n < e.FileReadBytes {
			t.frames.FreeFrame(kpage)
			return false
		}
		for i := e.FileReadBytes; i < mem.PageSize; i++ {
			page[i] = 0
		}
		t.pagedir.SetPage(upage, kpage, e.Writable)
		e.State = OnFrame
		e.Kpage = kpage
		e.Dirty = false
		t.pagedir.ClearDirty(upage)
		if !pinned {
			t.frames.UnpinFrame(kpage)
		}
		return true

	case SwappedOut:
		kpage, page := t.frames.AllocateFrame(t, upage)
		t.swap.In(e.SwapSlot, page)
		t.pagedir.SetPage(upage, kpage, e.Writable)
		e.State = OnFrame
		e.Kpage = kpage
		e.SwapSlot = swap.NoSlot
		e.Dirty = false
		t.pagedir.ClearDirty(upage)
		if !pinned {
			t.frames.UnpinFrame(kpage)
		}
		return true

	case AllZero:
		kpage, page := t.frames.AllocateFrame(t, upage)
		for i := range page {
			page[i] = 0
		}
		t.pagedir.SetPage(upage, kpage, true)
		e.State = OnFrame
		e.Kpage = kpage
		e.Writable = true
		if !pinned {
			t.frames.UnpinFrame(kpage)
		}
		return true
	}
	caller.Fatal("spt: unknown state")
	return false
}

// UnpinPage unpins the frame backing upage, which must be resident and
// pinned. Used after a syscall finishes reading or writing into a pinned
// user buffer.
func (t *Table) UnpinPage(upage uintptr) {
	e, ok := t.entries[upage]
	if !ok || e.State != OnFrame {
		caller.Fatal("spt: unpin of non-resident page")
	}
	t.frames.UnpinFrame(e.Kpage)
}

// Evict implements frame.Owner. It is called by the frame table with the
// frame-table lock held to choose where upage's contents go before the
// frame is reclaimed.
func (t *Table) Evict(upage uintptr, page *mem.Bytepg_t, sw *swap.Manager) {
	e, ok := t.entries[upage]
	if !ok {
		caller.Fatal("spt: eviction of unknown entry")
	}
	if e.State != OnFrame {
		caller.Fatal("spt: eviction of non-resident entry")
	}
	dirty := e.Dirty || t.pagedir.IsDirty(upage)

	switch {
	case e.FromMappedFile:
		if dirty && e.Writable {
			if _, errc := e.File.WriteAt(page[:e.FileReadBytes], e.FileOffset); errc != 0 {
				caller.Fatal("spt: mmap writeback failed during eviction")
			}
			t.countWriteback()
		}
		e.State = OnFilesys
	case e.File != nil && !e.Writable:
		// Read-only file-backed page (a typical executable segment):
		// discard, the reload path re-reads the original bytes.
		e.State = OnFilesys
	default:
		// Anonymous, stack, or a writable file-backed page that was never
		// mapped: always goes to swap, never silently dropped.
		slot := sw.Out(page)
		e.State = SwappedOut
		e.SwapSlot = slot
	}
	e.Kpage = 0
	e.Dirty = false
}

// Unmap is spt_unmap: the per-page teardown of an mmap region. offset and
// size locate this page within the backing file for writeback.
func (t *Table) Unmap(upage uintptr, offset, size int) {
	e, ok := t.entries[upage]
	if !ok {
		caller.Fatal("spt: unmap of unknown entry")
	}
	switch e.State {
	case OnFrame:
		dirty := e.Dirty || t.pagedir.IsDirty(upage)
		if dirty {
			page := t.frames.Allocator().Frame(e.Kpage)
			if _, errc := e.File.WriteAt(page[:size], offset); errc != 0 {
				caller.Fatal("spt: mmap writeback failed during unmap")
			}
			t.countWriteback()
		}
		t.frames.FreeFrame(e.Kpage)
		t.pagedir.ClearPage(upage)
	case OnFilesys:
		// Never materialized; nothing to write back.
	default:
		caller.Fatal("spt: unmap of mapped entry in an invalid state")
	}
	delete(t.entries, upage)
}

// Destroy tears down every entry at process exit. The caller must run
// this before closing any mmap file handle: a dirty ON_FRAME mapped-file
// page is written back here, which requires the file still be open.
func (t *Table) Destroy() {
	for upage, e := range t.entries {
		switch e.State {
		case OnFrame:
			if e.FromMappedFile && e.Writable && (e.Dirty || t.pagedir.IsDirty(upage)) {
				page := t.frames.Allocator().Frame(e.Kpage)
				if _, errc := e.File.WriteAt(page[:e.FileReadBytes], e.FileOffset); errc != 0 {
					caller.Fatal("spt: mmap writeback failed during destroy")
				}
				t.countWriteback()
			}
			t.frames.FreeFrameWithoutFreePage(e.Kpage)
			t.pagedir.ClearPage(upage)
			t.frames.Allocator().Free(e.Kpage)
		case SwappedOut:
			t.swap.Free(e.SwapSlot)
		}
		delete(t.entries, upage)
	}
}
