// Package file models the opaque file-system handle the virtual memory
// subsystem treats as an external collaborator (read_at/write_at/
// length/close/reopen), plus two concrete implementations used by tests
// and the demo CLI.
//
// The private-reopen-on-dup shape is grounded on biscuit/src/fd/fd.go's
// Fd_t/Copyfd (mmap needs its own handle so a later close(fd) by user code
// does not invalidate the mapping, exactly as Copyfd lets a dup'd
// descriptor outlive the original). The OS-file-backed implementation is
// grounded on biscuit/src/ufs/driver.go's ahci_disk_t, which simulates a
// block device with a host *os.File for the same reason: a test needs a
// real, inspectable backing store without real hardware.
package file

import (
	"os"
	"sync"

	"biscuit/biscuit/src/defs"
)

// File is the subsystem's view of a backing file: enough to page segments
// and mmap regions in and out. Every operation here may be called while
// the caller holds the frame-table lock (eviction writeback), so
// implementations must not block on anything that could deadlock with it.
type File interface {
	ReadAt(buf []byte, offset int) (int, defs.Err_t)
	WriteAt(buf []byte, offset int) (int, defs.Err_t)
	Length() int
	Close() defs.Err_t
	// Reopen returns a private handle to the same underlying data. Closing
	// the original (or the copy) does not affect the other.
	Reopen() (File, defs.Err_t)
}

// MemFile is an in-memory File backed by a shared byte slice, used by
// tests that need a fast, deterministic backing store.
type MemFile struct {
	mu     *sync.Mutex
	data   *[]byte
	closed bool
}

// NewMemFile creates a MemFile with the given initial contents. The slice
// is copied; callers retain no aliasing with the caller's buffer.
func NewMemFile(initial []byte) *MemFile {
	buf := make([]byte, len(initial))
	copy(buf, initial)
	return &MemFile{mu: &sync.Mutex{}, data: &buf}
}

func (f *MemFile) ReadAt(buf []byte, offset int) (int, defs.Err_t) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		panic("file: read after close")
	}
	data := *f.data
	if offset >= len(data) {
		return 0, 0
	}
	n := copy(buf, data[offset:])
	return n, 0
}

func (f *MemFile) WriteAt(buf []byte, offset int) (int, defs.Err_t) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		panic("file: write after close")
	}
	data := *f.data
	need := offset + len(buf)
	if need > len(data) {
		grown := make([]byte, need)
		copy(grown, data)
		data = grown
		*f.data = data
	}
	copy(data[offset:], buf)
	return len(buf), 0
}

func (f *MemFile) Length() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(*f.data)
}

func (f *MemFile) Close() defs.Err_t {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return 0
}

func (f *MemFile) Reopen() (File, defs.Err_t) {
	return &MemFile{mu: f.mu, data: f.data}, 0
}

// OSFile is a File backed by a real filesystem path, used by cmd/vmdemo so
// mmap writeback can be inspected after the process exits.
type OSFile struct {
	mu   sync.Mutex
	path string
	f    *os.File
}

// OpenOSFile opens path for reading and writing.
func OpenOSFile(path string) (*OSFile, defs.Err_t) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, defs.EINVAL
	}
	return &OSFile{path: path, f: f}, 0
}

func (o *OSFile) ReadAt(buf []byte, offset int) (int, defs.Err_t) {
	o.mu.Lock()
	defer o.mu.Unlock()
	n, err := o.f.ReadAt(buf, int64(offset))
	if err != nil && n == 0 {
		return 0, 0
	}
	return n, 0
}

func (o *OSFile) WriteAt(buf []byte, offset int) (int, defs.Err_t) {
	o.mu.Lock()
	defer o.mu.Unlock()
	n, err := o.f.WriteAt(buf, int64(offset))
	if err != nil {
		return n, defs.EINVAL
	}
	return n, 0
}

func (o *OSFile) Length() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	fi, err := o.f.Stat()
	if err != nil {
		panic(err)
	}
	return int(fi.Size())
}

func (o *OSFile) Close() defs.Err_t {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.f.Close(); err != nil {
		panic(err)
	}
	return 0
}

func (o *OSFile) Reopen() (File, defs.Err_t) {
	return OpenOSFile(o.path)
}
