// Package mem holds the page geometry constants and small value types
// shared by every layer of the virtual memory subsystem. It deliberately
// carries none of the direct-map/PML4 machinery a hosted kernel uses to
// walk real x86-64 page tables (biscuit/src/mem/dmap.go): that machinery
// leans on a patched Go runtime to address physical memory, which a hosted
// process cannot do. The hardware page-directory layer is instead an
// external collaborator (see biscuit/src/pagedir).
package mem

import "biscuit/biscuit/src/util"

// PGSHIFT is the base-2 exponent of the page size.
const PGSHIFT uint = 12

// PageSize is the size of a single page in bytes.
const PageSize int = 1 << PGSHIFT

// PGOFFSET masks the in-page offset bits of an address.
const PGOFFSET uintptr = uintptr(PageSize - 1)

// SectorSize is the size of one block-device sector in bytes.
const SectorSize int = 512

// SectorsPerPage is the number of disk sectors backing one page-sized slot.
const SectorsPerPage int = PageSize / SectorSize

// MaxStack is the largest a process stack may grow to.
const MaxStack int = 8 * 1024 * 1024

// StackFaultSlack is how far below the saved stack pointer a fault may
// land and still be treated as stack growth rather than a segfault.
const StackFaultSlack = 32

// UserMin is the lowest user-space virtual address a process may map.
const UserMin uintptr = 0x1000000

// UserTop is one past the highest user-space virtual address.
const UserTop uintptr = 0xC0000000

// Pa_t is a kernel-addressable physical frame identity. It is opaque
// outside package palloc: callers never dereference it directly, they
// hand it to palloc/pagedir and receive a *Bytepg_t back.
type Pa_t uintptr

// Bytepg_t is one page-sized, byte-addressed frame of memory.
type Bytepg_t [PageSize]uint8

// Upage rounds a user virtual address down to its containing page.
func Upage(va uintptr) uintptr {
	return util.Rounddown(va, uintptr(PageSize))
}

// PageOffset returns the in-page offset of a virtual address.
func PageOffset(va uintptr) int {
	return int(va & PGOFFSET)
}

// Pagecount returns how many pages are needed to cover nbytes.
func Pagecount(nbytes int) int {
	return util.Roundup(nbytes, PageSize) / PageSize
}
