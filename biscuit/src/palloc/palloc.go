// Package palloc is the kernel physical-frame allocator, an external
// collaborator supplying physical-frame allocation to the frame table.
// biscuit/src/frame.AllocateFrame calls it under the frame-table lock and
// runs eviction when it is empty.
//
// The allocator itself is a simple free list over a fixed pool of frames,
// grounded on biscuit/src/mem/mem.go's Physmem_t._phys_new/_phys_insert
// (next-index free list protected by one mutex), stripped of the per-CPU
// sharding that file adds for a multi-core machine — this subsystem runs
// on a single hardware thread, so per-CPU free lists buy nothing here.
package palloc

import (
	"sync"

	"biscuit/biscuit/src/caller"
	"biscuit/biscuit/src/mem"
)

// Allocator hands out frames from a fixed-size pool. It has no notion of
// ownership or pinning; biscuit/src/frame layers that on top.
type Allocator struct {
	mu     sync.Mutex
	frames []mem.Bytepg_t
	nexti  []int32 // nexti[i] == -1 means end of free list
	free   int32   // head of the free list, -1 if empty
	nfree  int
}

const end = -1

// New creates an allocator with nframes frames available.
func New(nframes int) *Allocator {
	if nframes <= 0 {
		caller.Fatal("palloc: bad pool size")
	}
	a := &Allocator{
		frames: make([]mem.Bytepg_t, nframes),
		nexti:  make([]int32, nframes),
	}
	for i := 0; i < nframes; i++ {
		if i == nframes-1 {
			a.nexti[i] = end
		} else {
			a.nexti[i] = int32(i + 1)
		}
	}
	a.free = 0
	a.nfree = nframes
	return a
}

// Alloc removes a frame from the free list and returns it along with an
// identity usable with Free. ok is false if the pool is exhausted; the
// caller (biscuit/src/frame) is responsible for running eviction and
// retrying.
func (a *Allocator) Alloc() (pg *mem.Bytepg_t, id mem.Pa_t, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.free == end {
		return nil, 0, false
	}
	idx := a.free
	a.free = a.nexti[idx]
	a.nexti[idx] = -2 // mark allocated, catches double free
	a.nfree--
	pg = &a.frames[idx]
	for i := range pg {
		pg[i] = 0
	}
	return pg, mem.Pa_t(idx), true
}

// Free returns a frame to the pool. It panics if id was not allocated by
// this allocator or is already free, since that can only be a caller bug.
func (a *Allocator) Free(id mem.Pa_t) {
	a.mu.Lock()
	defer a.mu.Unlock()
	idx := int32(id)
	if idx < 0 || int(idx) >= len(a.frames) {
		caller.Fatal("palloc: free of unknown frame")
	}
	if a.nexti[idx] != -2 {
		caller.Fatal("palloc: double free")
	}
	a.nexti[idx] = a.free
	a.free = idx
	a.nfree++
}

// Frame returns the backing byte page for a previously allocated id.
func (a *Allocator) Frame(id mem.Pa_t) *mem.Bytepg_t {
	return &a.frames[int(id)]
}

// FreeCount reports the number of frames currently unallocated.
func (a *Allocator) FreeCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.nfree
}

// Cap reports the total number of frames in the pool.
func (a *Allocator) Cap() int {
	return len(a.frames)
}
