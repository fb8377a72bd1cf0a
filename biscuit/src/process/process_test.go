package process

import (
	"testing"

	"biscuit/biscuit/src/defs"
	"biscuit/biscuit/src/file"
	"biscuit/biscuit/src/frame"
	"biscuit/biscuit/src/mem"
	"biscuit/biscuit/src/palloc"
	"biscuit/biscuit/src/swap"
)

func newFixture(nframes int) (*Process, *frame.Table, *swap.Manager) {
	alloc := palloc.New(nframes)
	sw := swap.Init(swap.NewMemDisk(mem.SectorsPerPage * 64))
	frames := frame.New(alloc, sw)
	return New(1, frames, sw), frames, sw
}

func TestMmapOverlapIsRejected(t *testing.T) {
	p, _, _ := newFixture(8)
	f1 := file.NewMemFile(make([]byte, 6*1024)) // two pages
	id, errc := p.Mmap(f1, 6*1024, 0x10000000)
	if errc != 0 || id != 1 {
		t.Fatalf("expected first mmap to succeed with id 1, got id=%d errc=%d", id, errc)
	}

	f2 := file.NewMemFile(make([]byte, 4096))
	id2, errc2 := p.Mmap(f2, 4096, 0x10001000) // overlaps the second page
	if errc2 == 0 {
		t.Fatalf("expected overlapping mmap to be rejected")
	}
	if id2 != -1 {
		t.Fatalf("expected -1 id on rejection, got %d", id2)
	}
	if len(p.mmaps) != 1 {
		t.Fatalf("expected no descriptor installed for the rejected mmap, have %d", len(p.mmaps))
	}
}

func TestMmapRejectsZeroLengthMisalignedAndOutOfRange(t *testing.T) {
	p, _, _ := newFixture(8)

	f := file.NewMemFile(make([]byte, 4096))
	if _, errc := p.Mmap(f, 0, 0x10000000); errc != defs.EINVAL {
		t.Fatalf("expected EINVAL for zero-length file, got %d", errc)
	}
	if _, errc := p.Mmap(f, 4096, 0); errc != defs.EINVAL {
		t.Fatalf("expected EINVAL for null addr, got %d", errc)
	}
	if _, errc := p.Mmap(f, 4096, 0x10000001); errc != defs.EINVAL {
		t.Fatalf("expected EINVAL for misaligned addr, got %d", errc)
	}
	if _, errc := p.Mmap(f, 2*mem.PageSize, mem.UserTop-uintptr(mem.PageSize)); errc != defs.EINVAL {
		t.Fatalf("expected EINVAL for addr extending past UserTop, got %d", errc)
	}
}

func TestMmapDirtyWritebackOnMunmap(t *testing.T) {
	p, frames, _ := newFixture(8)
	f := file.NewMemFile(make([]byte, mem.PageSize))

	id, errc := p.Mmap(f, mem.PageSize, 0x12000000)
	if errc != 0 {
		t.Fatalf("mmap failed: %d", errc)
	}
	if !p.SPT.LoadPage(0x12000000, false) {
		t.Fatalf("expected page fault to load the mapped page")
	}
	e, _ := p.SPT.GetEntry(0x12000000)
	page := frames.Allocator().Frame(e.Kpage)
	page[0] = 0xAB
	p.Pagedir.Touch(0x12000000, true)

	p.Munmap(id)

	// mmap reopens the file privately, so the writeback lands on the
	// original handle's backing data; reopen it again to observe it.
	reopened, _ := f.Reopen()
	back := make([]byte, 1)
	n, rc := reopened.ReadAt(back, 0)
	if rc != 0 || n != 1 || back[0] != 0xAB {
		t.Fatalf("expected dirty page written back on munmap, got %#x errc=%d", back[0], rc)
	}
}

func TestMunmapWritesOnlyPartialTailPage(t *testing.T) {
	p, frames, _ := newFixture(8)
	const fileLen = 100 // well short of a full page
	f := file.NewMemFile(make([]byte, fileLen))

	id, errc := p.Mmap(f, fileLen, 0x13000000)
	if errc != 0 {
		t.Fatalf("mmap failed: %d", errc)
	}
	if !p.SPT.LoadPage(0x13000000, false) {
		t.Fatalf("expected page fault to load the mapped page")
	}
	e, _ := p.SPT.GetEntry(0x13000000)
	page := frames.Allocator().Frame(e.Kpage)
	for i := range page {
		page[i] = 0xFF
	}
	p.Pagedir.Touch(0x13000000, true)

	p.Munmap(id)

	reopened, _ := f.Reopen()
	if reopened.Length() != fileLen {
		t.Fatalf("expected munmap writeback to leave the file at its original length %d, got %d", fileLen, reopened.Length())
	}
	back := make([]byte, fileLen)
	n, rc := reopened.ReadAt(back, 0)
	if rc != 0 || n != fileLen {
		t.Fatalf("readback failed: n=%d errc=%d", n, rc)
	}
	for i, b := range back {
		if b != 0xFF {
			t.Fatalf("expected byte %d to be written back as 0xFF, got %#x", i, b)
		}
	}
}

func TestMunmapOfUnknownIDIsIgnored(t *testing.T) {
	p, _, _ := newFixture(8)
	p.Munmap(999) // must not panic
}

func TestProcessExitReclaimsSwapSlots(t *testing.T) {
	p, _, sw := newFixture(1)

	const base = 0x13000000
	for i := 0; i < 3; i++ {
		upage := uintptr(base + i*mem.PageSize)
		p.SPT.InstallAllZeroEntry(upage)
		if !p.SPT.LoadPage(upage, false) {
			t.Fatalf("load %d failed", i)
		}
	}
	// With a one-frame pool, earlier pages must have been evicted to swap
	// to make room for the later ones.
	if sw.InUse() == 0 {
		t.Fatalf("expected at least one page swapped out under a one-frame budget")
	}

	before := sw.InUse()
	p.Exit()
	if sw.InUse() != 0 {
		t.Fatalf("expected process exit to free all %d held swap slots, %d remain", before, sw.InUse())
	}

	// The freed slots must be immediately reusable.
	sw.Out(new(mem.Bytepg_t))
	if sw.InUse() != 1 {
		t.Fatalf("expected a freed slot to be reusable by the next swap-out")
	}
}
