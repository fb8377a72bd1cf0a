package swap

import (
	"testing"

	"biscuit/biscuit/src/limits"
	"biscuit/biscuit/src/mem"
)

func TestOutInRoundtrip(t *testing.T) {
	disk := NewMemDisk(mem.SectorsPerPage * 4)
	m := Init(disk)

	var page mem.Bytepg_t
	for i := range page {
		page[i] = byte(i)
	}

	slot := m.Out(&page)

	var back mem.Bytepg_t
	m.In(slot, &back)

	if back != page {
		t.Fatalf("swap in did not return what was swapped out")
	}
	if m.InUse() != 0 {
		t.Fatalf("slot not freed after In, InUse=%d", m.InUse())
	}
}

func TestOutReusesFreedSlot(t *testing.T) {
	disk := NewMemDisk(mem.SectorsPerPage * 1)
	m := Init(disk)

	var page mem.Bytepg_t
	s1 := m.Out(&page)
	m.Free(s1)
	s2 := m.Out(&page)
	if s2 != s1 {
		t.Fatalf("expected freed slot %d to be reused, got %d", s1, s2)
	}
}

func TestOutPanicsWhenFull(t *testing.T) {
	disk := NewMemDisk(mem.SectorsPerPage * 1)
	m := Init(disk)

	var page mem.Bytepg_t
	m.Out(&page)

	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on full swap device")
		}
	}()
	m.Out(&page)
}

func TestInPanicsOnUnoccupiedSlot(t *testing.T) {
	disk := NewMemDisk(mem.SectorsPerPage * 2)
	m := Init(disk)

	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic reading an unoccupied slot")
		}
	}()
	var page mem.Bytepg_t
	m.In(0, &page)
}

func TestFreePanicsOnDoubleFree(t *testing.T) {
	disk := NewMemDisk(mem.SectorsPerPage * 2)
	m := Init(disk)

	var page mem.Bytepg_t
	s := m.Out(&page)
	m.Free(s)

	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on double free")
		}
	}()
	m.Free(s)
}

func TestCapDerivedFromDiskSize(t *testing.T) {
	disk := NewMemDisk(mem.SectorsPerPage * 7)
	m := Init(disk)
	if m.Cap() != 7 {
		t.Fatalf("expected 7 slots, got %d", m.Cap())
	}
}

func TestLimitsBudgetPanicsBelowDeviceCapacity(t *testing.T) {
	disk := NewMemDisk(mem.SectorsPerPage * 4)
	m := Init(disk)
	m.Limits = limits.New(0, 1)

	var page mem.Bytepg_t
	m.Out(&page) // consumes the lone budgeted slot

	defer func() {
		if recover() == nil {
			t.Fatalf("expected Out to panic once the swap budget, not the device, is exhausted")
		}
	}()
	m.Out(&page)
}

func TestLimitsBudgetRestoredOnInAndFree(t *testing.T) {
	disk := NewMemDisk(mem.SectorsPerPage * 4)
	m := Init(disk)
	m.Limits = limits.New(0, 1)

	var page mem.Bytepg_t
	s1 := m.Out(&page)
	m.Free(s1)
	if rem := m.Limits.Swap.Remaining(); rem != 1 {
		t.Fatalf("expected Free to restore the swap budget to 1, got %d", rem)
	}

	s2 := m.Out(&page)
	var back mem.Bytepg_t
	m.In(s2, &back)
	if rem := m.Limits.Swap.Remaining(); rem != 1 {
		t.Fatalf("expected In to restore the swap budget to 1, got %d", rem)
	}
}
