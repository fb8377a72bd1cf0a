// Package fault resolves user page faults and pins user buffers for
// syscall I/O, the boundary glue between a process's supplemental page
// table and whatever dispatches faults and system calls. Grounded on
// biscuit/src/vm/as.go's Pgfault (stack-growth heuristic against esp) and
// userbuf.go's pin-walk-unpin loop around a user buffer.
package fault

import (
	"biscuit/biscuit/src/defs"
	"biscuit/biscuit/src/mem"
	"biscuit/biscuit/src/process"
)

// Handle resolves a user page fault at faultAddr, with esp the process's
// saved user stack pointer. It reports true if the fault was resolved and
// user code may resume; false means the caller must terminate the
// process with exit status -1.
func Handle(p *process.Process, faultAddr, esp uintptr) bool {
	if p.Stats != nil {
		p.Stats.Faults.Inc()
	}

	upage := mem.Upage(faultAddr)
	if p.SPT.LoadPage(upage, false) {
		return true
	}

	if isStackGrowth(upage, faultAddr, esp) {
		if p.Stats != nil {
			p.Stats.StackGrowths.Inc()
		}
		p.SPT.InstallAllZeroEntry(upage)
		return p.SPT.LoadPage(upage, false)
	}

	return false
}

func isStackGrowth(upage, faultAddr, esp uintptr) bool {
	if faultAddr+mem.StackFaultSlack < esp {
		return false
	}
	stackBottom := mem.UserTop - uintptr(mem.MaxStack)
	return upage >= stackBottom && upage < mem.UserTop
}

// WithPinnedBuffer pins every page of the length-byte user buffer at addr,
// runs io, then unpins them all, matching the pin discipline syscalls
// such as read/write must observe when touching user memory directly.
// It reports defs.EFAULT without running io if any page cannot be loaded.
func WithPinnedBuffer(p *process.Process, addr uintptr, length int, io func() defs.Err_t) defs.Err_t {
	if length <= 0 {
		return io()
	}
	start := mem.Upage(addr)
	end := mem.Upage(addr + uintptr(length-1))

	pinned := make([]uintptr, 0, (end-start)/uintptr(mem.PageSize)+1)
	for upage := start; ; upage += uintptr(mem.PageSize) {
		if !p.SPT.LoadPage(upage, true) {
			for _, u := range pinned {
				p.SPT.UnpinPage(u)
			}
			return defs.EFAULT
		}
		pinned = append(pinned, upage)
		if upage == end {
			break
		}
	}

	defer func() {
		for _, u := range pinned {
			p.SPT.UnpinPage(u)
		}
	}()
	return io()
}
