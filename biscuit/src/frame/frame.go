// Package frame is the frame table: the global registry of every physical
// user frame currently in use, together with its pin flag and owner, and
// the home of the clock eviction policy. Grounded on the single global
// mutex + map shape of biscuit/src/mem/mem.go's Physmem_t, generalized
// from a free-list of physical pages to a map of *owned* pages with
// hashtable.go genericized as the backing store.
package frame

import (
	"sync"

	"biscuit/biscuit/src/caller"
	"biscuit/biscuit/src/hashtable"
	"biscuit/biscuit/src/limits"
	"biscuit/biscuit/src/mem"
	"biscuit/biscuit/src/oommsg"
	"biscuit/biscuit/src/pagedir"
	"biscuit/biscuit/src/palloc"
	"biscuit/biscuit/src/stats"
	"biscuit/biscuit/src/swap"
)

// Owner is what the frame table needs from whatever installed a frame, so
// that eviction can reach back into the right supplemental page table
// without the frame table importing it (which would cycle: the owner
// imports frame to call AllocateFrame).
type Owner interface {
	// Pagedir returns the owner's page directory, used to read/clear the
	// hardware accessed and dirty bits and to tear down the mapping once a
	// frame is evicted.
	Pagedir() *pagedir.Dir

	// Evict persists frame's contents for upage (to the backing file or to
	// swap, or simply drops it) and updates the SPTE's state. Called
	// with the frame table lock held; Evict itself must not call back into
	// the frame table.
	Evict(upage uintptr, frame *mem.Bytepg_t, sw *swap.Manager)
}

// FTE is a frame table entry.
type FTE struct {
	Upage  uintptr
	Owner  Owner
	Pinned bool
}

// Table is the global frame table.
type Table struct {
	mu      sync.Mutex
	alloc   *palloc.Allocator
	swap    *swap.Manager
	entries *hashtable.Map[mem.Pa_t, *FTE]

	// Notify, if non-nil, is offered one oommsg.Msg per eviction run; the
	// message is dropped if no receiver is ready.
	Notify oommsg.Chan

	// Stats, if non-nil, receives one eviction count per reclaimed frame.
	Stats *stats.VM

	// Limits, if non-nil, caps the number of frames this table will hand
	// out below the physical pool's own capacity, so a demo or test can
	// provoke eviction at a working set smaller than the underlying pool
	// (limits.System.Frames), matching a real kernel's own resource caps
	// sitting in front of whatever palloc can physically supply.
	Limits *limits.System
}

// New creates a frame table backed by alloc for physical frames and sw for
// eviction writeback of anonymous pages.
func New(alloc *palloc.Allocator, sw *swap.Manager) *Table {
	return &Table{
		alloc:   alloc,
		swap:    sw,
		entries: hashtable.New[mem.Pa_t, *FTE](),
	}
}

// Allocator exposes the underlying physical allocator so that SPT teardown
// can return a frame to the pool after removing its FTE with
// FreeFrameWithoutFreePage, mirroring the real kernel's whole-pagedir
// reclaim at process exit.
func (t *Table) Allocator() *palloc.Allocator {
	return t.alloc
}

// AllocateFrame obtains a frame for owner/upage, running eviction if the
// physical allocator is exhausted. The returned frame is pinned; the
// caller must UnpinFrame it once it is safe for eviction to touch.
func (t *Table) AllocateFrame(owner Owner, upage uintptr) (mem.Pa_t, *mem.Bytepg_t) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.Limits != nil {
		for !t.Limits.Frames.Take(1) {
			t.evict()
		}
	}

	pg, id, ok := t.alloc.Alloc()
	if !ok {
		t.evict()
		pg, id, ok = t.alloc.Alloc()
		if !ok {
			caller.Fatal("frame: allocation still failed after eviction")
		}
	}
	t.entries.Put(id, &FTE{Upage: upage, Owner: owner, Pinned: true})
	return id, pg
}

// FreeFrame removes the FTE for kpage and returns the frame to the
// allocator.
func (t *Table) FreeFrame(kpage mem.Pa_t) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries.Get(kpage); !ok {
		caller.Fatal("frame: free of unknown frame")
	}
	t.entries.Del(kpage)
	t.alloc.Free(kpage)
	if t.Limits != nil {
		t.Limits.Frames.Give(1)
	}
}

// FreeFrameWithoutFreePage removes the FTE for kpage without returning the
// frame to the allocator, for teardown paths where the caller reclaims the
// physical frame itself.
func (t *Table) FreeFrameWithoutFreePage(kpage mem.Pa_t) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries.Get(kpage); !ok {
		caller.Fatal("frame: free of unknown frame")
	}
	t.entries.Del(kpage)
	if t.Limits != nil {
		t.Limits.Frames.Give(1)
	}
}

// PinFrame marks kpage ineligible for eviction. A frame absent from the
// table is a programming error.
func (t *Table) PinFrame(kpage mem.Pa_t) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fte, ok := t.entries.Get(kpage)
	if !ok {
		caller.Fatal("frame: pin of unknown frame")
	}
	fte.Pinned = true
}

// UnpinFrame marks kpage eligible for eviction again.
func (t *Table) UnpinFrame(kpage mem.Pa_t) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fte, ok := t.entries.Get(kpage)
	if !ok {
		caller.Fatal("frame: unpin of unknown frame")
	}
	fte.Pinned = false
}

// Count reports how many frames are currently tracked, for tests asserting
// the frame-ownership invariant.
func (t *Table) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.entries.Len()
}

// Lookup returns the FTE for kpage, if any, for tests checking the
// ownership invariant without reaching into table internals.
func (t *Table) Lookup(kpage mem.Pa_t) (FTE, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fte, ok := t.entries.Get(kpage)
	if !ok {
		return FTE{}, false
	}
	return *fte, true
}

// evict runs the two-pass approximate clock policy and reclaims exactly
// one frame. Must be called with t.mu held.
func (t *Table) evict() {
	id, fte := t.selectVictim()
	if fte == nil {
		caller.Fatal("frame: eviction found no unpinned victim")
	}
	page := t.alloc.Frame(id)
	fte.Owner.Evict(fte.Upage, page, t.swap)
	fte.Owner.Pagedir().ClearPage(fte.Upage)
	t.entries.Del(id)
	t.alloc.Free(id)
	if t.Limits != nil {
		t.Limits.Frames.Give(1)
	}
	if t.Stats != nil {
		t.Stats.Evictions.Inc()
	}
	t.Notify.Send(oommsg.Msg{Upage: fte.Upage, InUse: t.entries.Len()})
}

// selectVictim implements the two-pass clock scan described by the
// eviction policy: skip pinned frames; an unpinned frame with its
// accessed bit set gets a second chance (the bit is cleared); the first
// unpinned frame found with its accessed bit already clear is the victim.
func (t *Table) selectVictim() (mem.Pa_t, *FTE) {
	for pass := 0; pass < 2; pass++ {
		var found mem.Pa_t
		var victim *FTE
		t.entries.Range(func(id mem.Pa_t, fte *FTE) bool {
			if fte.Pinned {
				return true
			}
			pd := fte.Owner.Pagedir()
			if pd.IsAccessed(fte.Upage) {
				pd.ClearAccessed(fte.Upage)
				return true
			}
			found, victim = id, fte
			return false
		})
		if victim != nil {
			return found, victim
		}
	}
	return 0, nil
}
