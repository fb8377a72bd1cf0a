// Package swap is the swap manager: a bitmap allocator of page-sized slots
// over a block device, giving the frame table somewhere to evict a page
// to and somewhere to page it back in from. Grounded on the BSIZE/
// BDEV_READ/BDEV_WRITE vocabulary of biscuit/src/fs/blk.go and the
// Disk_i.Start/Complete shape of biscuit/src/pci/olddiski.go, with the
// bitmap-allocator idiom itself drawn from the free-list style of
// biscuit/src/mem/mem.go's physical allocator.
package swap

import (
	"sync"

	"biscuit/biscuit/src/caller"
	"biscuit/biscuit/src/limits"
	"biscuit/biscuit/src/mem"
	"biscuit/biscuit/src/stats"
)

// Slot identifies one page-sized region of the swap device.
type Slot int

// NoSlot is the sentinel Slot value used to mean "not swapped."
const NoSlot Slot = -1

// Manager hands out and reclaims swap slots, backed by a Disk. One Manager
// per machine; every operation holds a single mutex, so a caller already
// holding the frame-table lock must never call in while some other holder
// of the swap lock is waiting on the frame-table lock, per the fixed lock
// order file-system -> frame-table -> swap.
type Manager struct {
	mu     sync.Mutex
	disk   Disk
	used   []bool
	nfree  int
	nslots int

	// Stats, if non-nil, receives swap-in/swap-out counts.
	Stats *stats.VM

	// Limits, if non-nil, caps the number of slots this manager will hand
	// out below the backing disk's own capacity (limits.System.Swap),
	// mirroring frame.Table's Limits field.
	Limits *limits.System
}

// Init creates a swap manager over disk. The slot count is derived from
// the device's actual size, not a compile-time constant: a demo run can
// size its swap disk however it likes and the manager adapts.
func Init(disk Disk) *Manager {
	nslots := disk.NumSectors() / mem.SectorsPerPage
	return &Manager{
		disk:   disk,
		used:   make([]bool, nslots),
		nfree:  nslots,
		nslots: nslots,
	}
}

// Out writes page to a free slot and returns its identity. It panics if
// the device is full: callers are expected to have already tried eviction
// and have no other recourse, matching this kernel's style of
// out-of-resource panics elsewhere in the allocator stack.
func (m *Manager) Out(page *mem.Bytepg_t) Slot {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Limits != nil && !m.Limits.Swap.Take(1) {
		caller.Fatal("swap: budget exhausted")
	}
	idx := -1
	for i, u := range m.used {
		if !u {
			idx = i
			break
		}
	}
	if idx == -1 {
		caller.Fatal("swap: device full")
	}
	m.writeSlot(idx, page)
	m.used[idx] = true
	m.nfree--
	if m.Stats != nil {
		m.Stats.SwapOuts.Inc()
	}
	return Slot(idx)
}

// In reads the page stored at slot into page and frees the slot. It
// panics if slot was never written or was already freed, a caller bug.
func (m *Manager) In(slot Slot, page *mem.Bytepg_t) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := int(slot)
	m.checkOccupied(idx)
	m.readSlot(idx, page)
	m.used[idx] = false
	m.nfree++
	if m.Limits != nil {
		m.Limits.Swap.Give(1)
	}
	if m.Stats != nil {
		m.Stats.SwapIns.Inc()
	}
}

// Free releases slot without reading it back, used when a page's swapped
// copy is discarded without ever being faulted back in (process exit).
func (m *Manager) Free(slot Slot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := int(slot)
	m.checkOccupied(idx)
	m.used[idx] = false
	m.nfree++
	if m.Limits != nil {
		m.Limits.Swap.Give(1)
	}
}

// InUse reports how many slots are currently occupied.
func (m *Manager) InUse() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nslots - m.nfree
}

// Cap reports the total slot count the device can hold.
func (m *Manager) Cap() int {
	return m.nslots
}

func (m *Manager) checkOccupied(idx int) {
	if idx < 0 || idx >= m.nslots {
		caller.Fatal("swap: slot out of range")
	}
	if !m.used[idx] {
		caller.Fatal("swap: slot not occupied")
	}
}

func (m *Manager) writeSlot(idx int, page *mem.Bytepg_t) {
	base := idx * mem.SectorsPerPage
	for s := 0; s < mem.SectorsPerPage; s++ {
		off := s * mem.SectorSize
		m.disk.WriteSector(base+s, page[off:off+mem.SectorSize])
	}
}

func (m *Manager) readSlot(idx int, page *mem.Bytepg_t) {
	base := idx * mem.SectorsPerPage
	for s := 0; s < mem.SectorsPerPage; s++ {
		off := s * mem.SectorSize
		m.disk.ReadSector(base+s, page[off:off+mem.SectorSize])
	}
}
