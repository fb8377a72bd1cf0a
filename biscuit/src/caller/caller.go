// Package caller prints the Go call stack before an invariant-violation
// panic, so a fatal bug in the frame table, supplemental page table, or
// swap manager leaves a trail pointing at its caller chain instead of just
// Go's own runtime trace.
package caller

import (
	"fmt"
	"runtime"
)

// Callerdump prints the call stack starting at the given depth.
func Callerdump(start int) {
	i := start
	s := ""
	for {
		_, f, l, ok := runtime.Caller(i)
		if !ok {
			break
		}
		i++
		if s == "" {
			s = fmt.Sprintf("%s:%d\n", f, l)
		} else {
			s += fmt.Sprintf("\t<-%s:%d\n", f, l)
		}
	}
	fmt.Printf("%s", s)
}

// Fatal dumps the caller chain and panics with msg. Used for invariant
// violations that represent a bug in the core itself, never a user error.
func Fatal(msg string) {
	Callerdump(2)
	panic(msg)
}
