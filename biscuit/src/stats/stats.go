// Package stats holds the virtual memory subsystem's runtime counters,
// adapted from a Counter_t/Cycles_t/Stats2String counter-dump style
// (there used for kernel-wide IRQ and syscall timing) down to the counters
// this subsystem's testable properties and demo scenarios care about:
// faults, evictions, swap traffic, and mmap writebacks.
package stats

import (
	"reflect"
	"strconv"
	"strings"
	"sync/atomic"
)

// Counter_t is a statistical counter, atomically updated.
type Counter_t int64

// Inc increments the counter by one.
func (c *Counter_t) Inc() {
	atomic.AddInt64((*int64)(c), 1)
}

// Get reads the current value.
func (c *Counter_t) Get() int64 {
	return atomic.LoadInt64((*int64)(c))
}

// VM aggregates every counter the fault handler and core components
// update. A process or a whole demo run can share one VM to get combined
// totals.
type VM struct {
	Faults         Counter_t
	StackGrowths   Counter_t
	Evictions      Counter_t
	SwapOuts       Counter_t
	SwapIns        Counter_t
	MmapWritebacks Counter_t
	ProcessExits   Counter_t
}

// String renders every non-zero counter, one per line, in the same
// Stats2String format.
func (v *VM) String() string {
	rv := reflect.ValueOf(v).Elem()
	s := ""
	for i := 0; i < rv.NumField(); i++ {
		t := rv.Field(i).Type().String()
		if !strings.HasSuffix(t, "Counter_t") {
			continue
		}
		n := rv.Field(i).Interface().(Counter_t)
		if n == 0 {
			continue
		}
		s += "\n\t#" + rv.Type().Field(i).Name + ": " + strconv.FormatInt(int64(n), 10)
	}
	return s + "\n"
}
