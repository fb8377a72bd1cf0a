package fault

import (
	"testing"

	"biscuit/biscuit/src/defs"
	"biscuit/biscuit/src/frame"
	"biscuit/biscuit/src/mem"
	"biscuit/biscuit/src/palloc"
	"biscuit/biscuit/src/process"
	"biscuit/biscuit/src/spt"
	"biscuit/biscuit/src/swap"
)

func newProcess(nframes int) (*process.Process, *frame.Table) {
	alloc := palloc.New(nframes)
	sw := swap.Init(swap.NewMemDisk(mem.SectorsPerPage * 64))
	frames := frame.New(alloc, sw)
	return process.New(1, frames, sw), frames
}

func TestStackGrowthInstallsZeroPageWithinSlack(t *testing.T) {
	p, _ := newProcess(4)
	const esp = 0xBFFFFFF0
	faultAddr := uintptr(esp - 4)

	if !Handle(p, faultAddr, esp) {
		t.Fatalf("expected stack-growth fault to resolve")
	}
	if !p.SPT.HasEntry(mem.Upage(faultAddr)) {
		t.Fatalf("expected an SPTE installed at the faulting page")
	}
	e, _ := p.SPT.GetEntry(mem.Upage(faultAddr))
	if e.Upage != 0xBFFFF000 {
		t.Fatalf("expected stack page at 0xBFFFF000, got %#x", e.Upage)
	}
}

func TestFaultFarBelowEspIsRejected(t *testing.T) {
	p, _ := newProcess(4)
	const esp = 0xBFFFFFF0
	// More than the 32-byte slack below esp, and not a recognized stack
	// address otherwise (simulated as a wild pointer far from esp).
	faultAddr := uintptr(esp - 4096)

	if Handle(p, faultAddr, esp) {
		t.Fatalf("expected fault far below esp to be rejected")
	}
	if p.SPT.HasEntry(mem.Upage(faultAddr)) {
		t.Fatalf("expected no SPTE installed for a rejected fault")
	}
}

func TestFaultOutsideMaxStackIsRejected(t *testing.T) {
	p, _ := newProcess(4)
	// esp itself sits below the 8 MiB stack window, so a fault within the
	// 32-byte slack of esp is still outside [UserTop-MaxStack, UserTop).
	stackBottom := mem.UserTop - uintptr(mem.MaxStack)
	esp := stackBottom - 0x100000
	faultAddr := esp - 4

	if Handle(p, faultAddr, esp) {
		t.Fatalf("expected fault below MAX_STACK window to be rejected")
	}
}

func TestEvictionUnderPressureSurvivesRoundTrip(t *testing.T) {
	p, frames := newProcess(4)
	const base = 0x10000000
	const npages = 8

	for i := 0; i < npages; i++ {
		upage := uintptr(base + i*mem.PageSize)
		p.SPT.InstallAllZeroEntry(upage)
		if !p.SPT.LoadPage(upage, false) {
			t.Fatalf("load of page %d failed", i)
		}
		e, _ := p.SPT.GetEntry(upage)
		page := frames.Allocator().Frame(e.Kpage)
		page[0] = byte(i)
		p.Pagedir.Touch(upage, true)
	}

	for i := npages - 1; i >= 0; i-- {
		upage := uintptr(base + i*mem.PageSize)
		if !p.SPT.LoadPage(upage, false) {
			t.Fatalf("reload of page %d failed", i)
		}
		e, _ := p.SPT.GetEntry(upage)
		page := frames.Allocator().Frame(e.Kpage)
		if page[0] != byte(i) {
			t.Fatalf("page %d: expected byte %d, got %d", i, i, page[0])
		}
		p.Pagedir.Touch(upage, true)
	}

	if frames.Count() > 4 {
		t.Fatalf("frame budget exceeded: %d frames held, cap is 4", frames.Count())
	}
}

func TestWithPinnedBufferUnpinsOnSuccess(t *testing.T) {
	p, frames := newProcess(4)
	const upage = 0x20000000
	p.SPT.InstallAllZeroEntry(upage)

	ran := false
	errc := WithPinnedBuffer(p, upage, mem.PageSize, func() defs.Err_t {
		ran = true
		e, _ := p.SPT.GetEntry(upage)
		fte, _ := frames.Lookup(e.Kpage)
		if !fte.Pinned {
			t.Fatalf("expected buffer frame to be pinned while io runs")
		}
		return 0
	})
	if errc != 0 {
		t.Fatalf("expected success, got errc=%d", errc)
	}
	if !ran {
		t.Fatalf("expected io callback to run")
	}
	e, _ := p.SPT.GetEntry(upage)
	fte, _ := frames.Lookup(e.Kpage)
	if fte.Pinned {
		t.Fatalf("expected buffer frame to be unpinned after io returns")
	}
}

func TestWithPinnedBufferSpansMultiplePages(t *testing.T) {
	p, _ := newProcess(4)
	const addr = 0x20000FF0 // 16 bytes before a page boundary
	length := 32            // spans two pages
	p.SPT.InstallAllZeroEntry(mem.Upage(addr))
	p.SPT.InstallAllZeroEntry(mem.Upage(addr) + uintptr(mem.PageSize))

	calls := 0
	errc := WithPinnedBuffer(p, addr, length, func() defs.Err_t {
		calls++
		return 0
	})
	if errc != 0 || calls != 1 {
		t.Fatalf("expected io to run exactly once, errc=%d calls=%d", errc, calls)
	}
	e1, _ := p.SPT.GetEntry(mem.Upage(addr))
	e2, _ := p.SPT.GetEntry(mem.Upage(addr) + uintptr(mem.PageSize))
	if e1.State != spt.OnFrame || e2.State != spt.OnFrame {
		t.Fatalf("expected both spanned pages to have been loaded")
	}
}
