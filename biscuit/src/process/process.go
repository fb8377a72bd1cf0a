// Package process bundles one user process's address-space state: its
// page directory, its supplemental page table, and its live mmap
// descriptors. Grounded on the Tid_t/Cwd_t bundling shape of
// biscuit/src/tinfo.go, minus the thread-local-storage lookup that file
// used (runtime.Gptr/Setgptr, which leans on a patched Go runtime): a
// caller here passes its *Process explicitly instead of fetching it from
// goroutine-local state.
package process

import (
	"biscuit/biscuit/src/caller"
	"biscuit/biscuit/src/defs"
	"biscuit/biscuit/src/file"
	"biscuit/biscuit/src/frame"
	"biscuit/biscuit/src/mem"
	"biscuit/biscuit/src/pagedir"
	"biscuit/biscuit/src/spt"
	"biscuit/biscuit/src/stats"
	"biscuit/biscuit/src/swap"
	"biscuit/biscuit/src/util"
)

// Mmap is one live memory-mapped region.
type Mmap struct {
	ID      int
	File    file.File
	Base    uintptr
	Bytes   int // page-rounded region size
	FileLen int // actual backing-file length; the tail page writes back fewer bytes when this isn't page-aligned
}

// Process is one user process's virtual-memory state.
type Process struct {
	Tid     defs.Tid_t
	Pagedir *pagedir.Dir
	SPT     *spt.Table
	mmaps   map[int]*Mmap
	nextID  int

	// Stats, if non-nil, receives one ProcessExits count per Exit call.
	Stats *stats.VM
}

// New creates a process whose pages fault into frames and sw.
func New(tid defs.Tid_t, frames *frame.Table, sw *swap.Manager) *Process {
	pd := pagedir.New()
	return &Process{
		Tid:     tid,
		Pagedir: pd,
		SPT:     spt.New(pd, frames, sw),
		mmaps:   make(map[int]*Mmap),
		nextID:  1,
	}
}

// overlaps reports whether [base, base+size) intersects any existing SPTE.
func (p *Process) overlaps(base uintptr, size int) bool {
	end := base + uintptr(size)
	overlap := false
	p.SPT.Range(func(upage uintptr, _ *spt.Entry) bool {
		if upage >= base && upage < end {
			overlap = true
			return false
		}
		return true
	})
	return overlap
}

// Mmap installs a memory-mapped region backed by f (length fileLen bytes)
// at page-aligned addr. The fd-not-0/1 check belongs to the caller (the
// syscall dispatcher owns fd validation, spec.md §1); from here the
// checks run in this package's own order: reopen the file,
// reject a zero-length file, reject an addr that is null, misaligned, or
// extends past the user address ceiling, then reject any overlap with an
// existing SPTE before installing anything.
func (p *Process) Mmap(f file.File, fileLen int, addr uintptr) (int, defs.Err_t) {
	reopened, errc := f.Reopen()
	if errc != 0 {
		return -1, errc
	}

	if fileLen == 0 {
		reopened.Close()
		return -1, defs.EINVAL
	}
	if addr == 0 || !util.Aligned(addr, uintptr(mem.PageSize)) {
		reopened.Close()
		return -1, defs.EINVAL
	}
	npages := mem.Pagecount(fileLen)
	size := npages * mem.PageSize
	if addr+uintptr(size) > mem.UserTop {
		reopened.Close()
		return -1, defs.EINVAL
	}
	if p.overlaps(addr, size) {
		reopened.Close()
		return -1, defs.EEXIST
	}

	for i := 0; i < npages; i++ {
		upage := addr + uintptr(i*mem.PageSize)
		off := i * mem.PageSize
		readBytes := mem.PageSize
		if off+readBytes > fileLen {
			readBytes = fileLen - off
		}
		zeroBytes := mem.PageSize - readBytes
		p.SPT.InstallMappedFileEntry(upage, reopened, off, readBytes, zeroBytes, true)
	}

	id := p.nextID
	p.nextID++
	p.mmaps[id] = &Mmap{ID: id, File: reopened, Base: addr, Bytes: size, FileLen: fileLen}
	return id, 0
}

// Munmap tears down a previously mapped region, writing back dirty pages
// and closing the reopened file handle. An unknown id is ignored.
func (p *Process) Munmap(id int) {
	m, ok := p.mmaps[id]
	if !ok {
		return
	}
	npages := m.Bytes / mem.PageSize
	for i := 0; i < npages; i++ {
		upage := m.Base + uintptr(i*mem.PageSize)
		off := i * mem.PageSize
		size := mem.PageSize
		if off+size > m.FileLen {
			size = m.FileLen - off
		}
		p.SPT.Unmap(upage, off, size)
	}
	if errc := m.File.Close(); errc != 0 {
		caller.Fatal("process: close of mmap file failed")
	}
	delete(p.mmaps, id)
}

// Exit tears down the process's address space. The SPT is destroyed
// before any mmap file handle is closed, so a mapped page that is still
// ON_FRAME and dirty can still be written back.
func (p *Process) Exit() {
	p.SPT.Destroy()
	for id, m := range p.mmaps {
		m.File.Close()
		delete(p.mmaps, id)
	}
	if p.Stats != nil {
		p.Stats.ProcessExits.Inc()
	}
}
