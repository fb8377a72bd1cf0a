// Disk is the block-device driver this subsystem treats as an external
// collaborator (block_read, block_write). Its shape is grounded on
// biscuit/src/pci/olddiski.go's Disk_i (Start/Complete against a block
// index) simplified to a synchronous call pair, since this subsystem has
// no interrupt-driven I/O path of its own — the swap manager's own lock
// already serializes every call.
package swap

import (
	"os"
	"sync"

	"biscuit/biscuit/src/mem"
)

// Disk is a block device addressed by fixed-size sectors, matching
// biscuit/src/fs/blk.go's BSIZE/BDEV_READ/BDEV_WRITE vocabulary scaled down
// to sector granularity.
type Disk interface {
	ReadSector(sector int, buf []byte)
	WriteSector(sector int, buf []byte)
	NumSectors() int
}

// MemDisk is an in-memory Disk, used by tests.
type MemDisk struct {
	mu      sync.Mutex
	sectors [][mem.SectorSize]byte
}

// NewMemDisk creates a zeroed disk with the given number of sectors.
func NewMemDisk(nsectors int) *MemDisk {
	return &MemDisk{sectors: make([][mem.SectorSize]byte, nsectors)}
}

func (d *MemDisk) ReadSector(sector int, buf []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	copy(buf, d.sectors[sector][:])
}

func (d *MemDisk) WriteSector(sector int, buf []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	copy(d.sectors[sector][:], buf)
}

func (d *MemDisk) NumSectors() int {
	return len(d.sectors)
}

// FileDisk is a Disk backed by a host file, grounded on
// biscuit/src/ufs/driver.go's ahci_disk_t (a disk simulated with an
// *os.File, used there purely for test fixtures and kept here for the same
// reason — an inspectable swap area for the demo CLI).
type FileDisk struct {
	mu       sync.Mutex
	f        *os.File
	nsectors int
}

// NewFileDisk creates (or truncates) path to hold nsectors sectors.
func NewFileDisk(path string, nsectors int) (*FileDisk, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return nil, err
	}
	if err := f.Truncate(int64(nsectors * mem.SectorSize)); err != nil {
		f.Close()
		return nil, err
	}
	return &FileDisk{f: f, nsectors: nsectors}, nil
}

func (d *FileDisk) ReadSector(sector int, buf []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := d.f.ReadAt(buf, int64(sector*mem.SectorSize)); err != nil {
		panic(err)
	}
}

func (d *FileDisk) WriteSector(sector int, buf []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := d.f.WriteAt(buf, int64(sector*mem.SectorSize)); err != nil {
		panic(err)
	}
}

func (d *FileDisk) NumSectors() int {
	return d.nsectors
}

func (d *FileDisk) Close() error {
	return d.f.Close()
}
