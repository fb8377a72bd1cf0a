// Package defs holds the small cross-cutting types shared by every layer
// of the virtual memory subsystem: the kernel error-code type and process
// and thread identifiers.
package defs

// Err_t is a kernel error code. Zero means success; a non-zero value is
// always negative, mirroring the errno convention the rest of the kernel
// uses for syscall returns.
type Err_t int

// Error codes returned by the virtual memory subsystem. These surface to
// user space as a syscall return value of -1, never as a Go error value.
const (
	EFAULT       Err_t = -14  /// bad address / unmapped access
	ENOMEM       Err_t = -12  /// no memory (frame or swap exhausted transiently)
	ENOHEAP      Err_t = -100 /// kernel heap budget exceeded
	EINVAL       Err_t = -22  /// invalid argument (bad fd, misaligned addr, ...)
	ENAMETOOLONG Err_t = -36  /// path or buffer exceeded its limit
	EEXIST       Err_t = -17  /// overlapping mmap region
)

// Tid_t identifies a kernel thread. Pid_t identifies a process; in this
// single-hardware-thread kernel a process has exactly one thread, but the
// two concepts are kept distinct to match the rest of the corpus.
type Tid_t int
type Pid_t int
