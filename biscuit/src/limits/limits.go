// Package limits tracks the system-wide physical-frame and swap-slot
// budgets, adapted from a Sysatomic_t-style resource-limit counter
// (originally tracking process/vnode/socket counts) down to the two
// budgets this subsystem actually spends: frames and swap slots.
package limits

import (
	"sync/atomic"
)

// Budget is an atomically updated resource budget: some number of units
// available, decremented by Take and restored by Give.
type Budget int64

func (b *Budget) ptr() *int64 {
	return (*int64)(b)
}

// Take attempts to reserve n units, reporting whether the budget had
// enough remaining. On failure the budget is left unchanged.
func (b *Budget) Take(n uint) bool {
	if n == 0 {
		return true
	}
	remaining := atomic.AddInt64(b.ptr(), -int64(n))
	if remaining >= 0 {
		return true
	}
	atomic.AddInt64(b.ptr(), int64(n))
	return false
}

// Give returns n units to the budget.
func (b *Budget) Give(n uint) {
	atomic.AddInt64(b.ptr(), int64(n))
}

// Remaining reports the current balance.
func (b *Budget) Remaining() int64 {
	return atomic.LoadInt64(b.ptr())
}

// System holds the process-wide budgets this subsystem enforces: how many
// physical frames the frame table may hand out, and how many swap slots
// the swap manager may occupy. A demo or test can size these independent
// of the underlying pool's physical capacity to exercise eviction at a
// smaller working set.
type System struct {
	Frames Budget
	Swap   Budget
}

// New returns a System with the given frame and swap-slot budgets.
func New(frames, swapSlots int) *System {
	return &System{Frames: Budget(frames), Swap: Budget(swapSlots)}
}
