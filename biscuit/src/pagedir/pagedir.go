// Package pagedir simulates the hardware page-directory layer: the
// external collaborator that maps virtual to physical addresses and
// exposes the accessed/dirty bits the eviction policy reads. A real kernel
// walks actual page-table pages with an x86 PTE bit layout
// (PTE_P, PTE_W, PTE_U, PTE_A, PTE_D); a hosted
// Go process has no page tables to walk, so this package keeps the same
// bit vocabulary but backs it with a plain map, grounded on the
// Page_insert/Page_remove shape of biscuit/src/vm/as.go.
package pagedir

import (
	"sync"

	"biscuit/biscuit/src/mem"
)

type pte struct {
	kpage    mem.Pa_t
	writable bool
	accessed bool
	dirty    bool
}

// Dir is one process's page directory.
type Dir struct {
	mu      sync.Mutex
	entries map[uintptr]*pte
}

// New returns an empty page directory.
func New() *Dir {
	return &Dir{entries: make(map[uintptr]*pte)}
}

// SetPage installs upage -> kpage with the given write permission. It
// replaces any prior mapping at upage.
func (d *Dir) SetPage(upage uintptr, kpage mem.Pa_t, writable bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries[upage] = &pte{kpage: kpage, writable: writable}
}

// ClearPage removes the mapping at upage, if any. A subsequent access to
// upage will fault.
func (d *Dir) ClearPage(upage uintptr) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.entries, upage)
}

// Lookup reports the frame mapped at upage, if present.
func (d *Dir) Lookup(upage uintptr) (kpage mem.Pa_t, writable, present bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.entries[upage]
	if !ok {
		return 0, false, false
	}
	return e.kpage, e.writable, true
}

// Present reports whether upage is currently mapped.
func (d *Dir) Present(upage uintptr) bool {
	_, _, ok := d.Lookup(upage)
	return ok
}

// Touch marks upage as accessed and, if write is true, dirty. Real
// hardware sets these bits automatically on every load/store; callers
// that simulate user memory access (the demo harness, tests) call this to
// stand in for that hardware behavior.
func (d *Dir) Touch(upage uintptr, write bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.entries[upage]
	if !ok {
		return
	}
	e.accessed = true
	if write {
		e.dirty = true
	}
}

// IsAccessed reports the hardware accessed bit for upage.
func (d *Dir) IsAccessed(upage uintptr) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.entries[upage]
	return ok && e.accessed
}

// ClearAccessed clears the hardware accessed bit for upage.
func (d *Dir) ClearAccessed(upage uintptr) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if e, ok := d.entries[upage]; ok {
		e.accessed = false
	}
}

// IsDirty reports the hardware dirty bit for upage.
func (d *Dir) IsDirty(upage uintptr) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.entries[upage]
	return ok && e.dirty
}

// ClearDirty clears the hardware dirty bit for upage.
func (d *Dir) ClearDirty(upage uintptr) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if e, ok := d.entries[upage]; ok {
		e.dirty = false
	}
}
