// Command vmdemo drives the virtual memory subsystem through the
// end-to-end scenarios it is meant to satisfy: stack growth, eviction
// under frame pressure, mmap overlap rejection, mmap dirty writeback, a
// read-only executable-style page surviving eviction, and swap reclaim on
// process exit. It optionally serves the subsystem's live counters over
// /metrics, mirroring the exporter-style main a Prometheus collector in
// this corpus is normally wired into.
package main

import (
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	kingpin "gopkg.in/alecthomas/kingpin.v2"

	"biscuit/biscuit/src/fault"
	"biscuit/biscuit/src/file"
	"biscuit/biscuit/src/frame"
	"biscuit/biscuit/src/limits"
	"biscuit/biscuit/src/mem"
	"biscuit/biscuit/src/metrics"
	"biscuit/biscuit/src/palloc"
	"biscuit/biscuit/src/process"
	"biscuit/biscuit/src/stats"
	"biscuit/biscuit/src/swap"
)

var (
	frameBudget = kingpin.Flag("frames", "Number of physical frames the demo pool holds.").Default("4").Int()
	swapSlots   = kingpin.Flag("swap-slots", "Number of page-sized slots the simulated swap device holds.").Default("64").Int()
	scenario    = kingpin.Flag("scenario", "Which end-to-end scenario to run: all, stack-growth, eviction-pressure, mmap-overlap, mmap-writeback, readonly-eviction, process-exit, resource-limits.").Default("all").String()
	metricsAddr = kingpin.Flag("metrics-addr", "Address to serve /metrics on, e.g. :9116. Empty disables the HTTP server.").Default("").String()
)

func main() {
	kingpin.Parse()

	alloc := palloc.New(*frameBudget)
	disk := swap.NewMemDisk(*swapSlots * mem.SectorsPerPage)
	sw := swap.Init(disk)
	frames := frame.New(alloc, sw)
	vm := &stats.VM{}
	frames.Stats = vm

	if *metricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(metrics.NewCollector(vm, frames, sw))
		http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(*metricsAddr, nil); err != nil {
				log.Fatal(errors.Wrap(err, "vmdemo: metrics server"))
			}
		}()
		log.Printf("serving metrics on %s/metrics", *metricsAddr)
	}

	run := map[string]func(*frame.Table, *swap.Manager, *stats.VM) error{
		"stack-growth":      scenarioStackGrowth,
		"eviction-pressure": scenarioEvictionPressure,
		"mmap-overlap":      scenarioMmapOverlap,
		"mmap-writeback":    scenarioMmapWriteback,
		"readonly-eviction": scenarioReadonlyEviction,
		"process-exit":      scenarioProcessExit,
		"resource-limits":   scenarioResourceLimits,
	}

	names := []string{"stack-growth", "eviction-pressure", "mmap-overlap", "mmap-writeback", "readonly-eviction", "process-exit", "resource-limits"}
	if *scenario != "all" {
		fn, ok := run[*scenario]
		if !ok {
			log.Fatalf("vmdemo: unknown scenario %q", *scenario)
		}
		names = []string{*scenario}
		run = map[string]func(*frame.Table, *swap.Manager, *stats.VM) error{*scenario: fn}
	}

	for _, name := range names {
		log.Printf("running scenario: %s", name)
		// Each scenario gets its own frame table and swap manager so one
		// scenario's pressure never perturbs another's.
		alloc := palloc.New(*frameBudget)
		sw := swap.Init(swap.NewMemDisk(*swapSlots * mem.SectorsPerPage))
		frames := frame.New(alloc, sw)
		frames.Stats = vm
		sw.Stats = vm
		if err := run[name](frames, sw, vm); err != nil {
			log.Fatalf("vmdemo: scenario %s failed: %v", name, err)
		}
		fmt.Printf("scenario %s: OK\n", name)
	}

	fmt.Print(vm.String())
}

// scenarioStackGrowth reproduces spec.md §8 scenario 1: a fault just below
// esp within the stack window installs a fresh zero page.
func scenarioStackGrowth(frames *frame.Table, sw *swap.Manager, vm *stats.VM) error {
	p := process.New(1, frames, sw)
	p.Stats = vm
	p.SPT.Stats = vm
	const esp = 0xBFFFFFF0
	faultAddr := uintptr(esp - 4)

	if !fault.Handle(p, faultAddr, esp) {
		return errors.New("stack-growth fault was not resolved")
	}
	e, ok := p.SPT.GetEntry(mem.Upage(faultAddr))
	if !ok || e.Upage != 0xBFFFF000 {
		return errors.Errorf("expected a stack page at 0xBFFFF000, got %+v", e)
	}
	return nil
}

// scenarioEvictionPressure reproduces spec.md §8 scenario 2: 8 anonymous
// pages faulted into a 4-frame pool, each byte-tagged, reverse-read back
// intact, with at least 4 swap-outs along the way.
func scenarioEvictionPressure(frames *frame.Table, sw *swap.Manager, vm *stats.VM) error {
	p := process.New(1, frames, sw)
	p.Stats = vm
	p.SPT.Stats = vm
	const base = 0x10000000
	const npages = 8

	for i := 0; i < npages; i++ {
		upage := uintptr(base + i*mem.PageSize)
		p.SPT.InstallAllZeroEntry(upage)
		if !p.SPT.LoadPage(upage, false) {
			return errors.Errorf("load of page %d failed", i)
		}
		e, _ := p.SPT.GetEntry(upage)
		page := frames.Allocator().Frame(e.Kpage)
		page[0] = byte(i)
		p.Pagedir.Touch(upage, true)
	}
	for i := npages - 1; i >= 0; i-- {
		upage := uintptr(base + i*mem.PageSize)
		if !p.SPT.LoadPage(upage, false) {
			return errors.Errorf("reload of page %d failed", i)
		}
		e, _ := p.SPT.GetEntry(upage)
		page := frames.Allocator().Frame(e.Kpage)
		if page[0] != byte(i) {
			return errors.Errorf("page %d: expected byte %d, got %d", i, i, page[0])
		}
		p.Pagedir.Touch(upage, true)
	}
	if vm.SwapOuts.Get() < 4 {
		return errors.Errorf("expected at least 4 swap-outs, saw %d", vm.SwapOuts.Get())
	}
	if sw.InUse() > npages-frames.Count() {
		return errors.New("more pages swapped than the frame budget can account for")
	}
	return nil
}

// scenarioMmapOverlap reproduces spec.md §8 scenario 3.
func scenarioMmapOverlap(frames *frame.Table, sw *swap.Manager, vm *stats.VM) error {
	p := process.New(1, frames, sw)
	p.Stats = vm
	p.SPT.Stats = vm
	f1 := file.NewMemFile(make([]byte, 6*1024))
	id, errc := p.Mmap(f1, 6*1024, 0x10000000)
	if errc != 0 || id != 1 {
		return errors.Errorf("expected first mmap to succeed with id 1, got id=%d errc=%d", id, errc)
	}
	f2 := file.NewMemFile(make([]byte, 4096))
	id2, errc2 := p.Mmap(f2, 4096, 0x10001000)
	if errc2 == 0 {
		return errors.Errorf("expected overlapping mmap to be rejected, got id=%d", id2)
	}
	return nil
}

// scenarioMmapWriteback reproduces spec.md §8 scenario 4 against a real
// temp file on disk, exercising file.OSFile end to end.
func scenarioMmapWriteback(frames *frame.Table, sw *swap.Manager, vm *stats.VM) error {
	tmp, err := os.CreateTemp("", "vmdemo-mmap-*")
	if err != nil {
		return errors.Wrap(err, "creating mmap backing file")
	}
	path := tmp.Name()
	defer os.Remove(path)
	if err := tmp.Truncate(int64(mem.PageSize)); err != nil {
		tmp.Close()
		return errors.Wrap(err, "sizing mmap backing file")
	}
	tmp.Close()

	f, errc := file.OpenOSFile(path)
	if errc != 0 {
		return errors.Errorf("opening mmap backing file: errc=%d", errc)
	}

	p := process.New(1, frames, sw)
	p.Stats = vm
	p.SPT.Stats = vm
	id, errc := p.Mmap(f, mem.PageSize, 0x14000000)
	if errc != 0 {
		return errors.Errorf("mmap failed: errc=%d", errc)
	}
	if errc := f.Close(); errc != 0 {
		return errors.Errorf("closing original mmap fd failed: errc=%d", errc)
	}
	if !p.SPT.LoadPage(0x14000000, false) {
		return errors.New("expected mapped page to load on first touch")
	}
	e, _ := p.SPT.GetEntry(0x14000000)
	page := frames.Allocator().Frame(e.Kpage)
	page[0] = 0xAB
	p.Pagedir.Touch(0x14000000, true)

	p.Munmap(id)

	readback, errc := file.OpenOSFile(path)
	if errc != 0 {
		return errors.Errorf("reopening backing file for verification: errc=%d", errc)
	}
	defer readback.Close()
	buf := make([]byte, 1)
	if n, errc := readback.ReadAt(buf, 0); n != 1 || errc != 0 {
		return errors.Errorf("readback failed: n=%d errc=%d", n, errc)
	}
	if buf[0] != 0xAB {
		return errors.Errorf("expected byte 0xAB written back, got %#x", buf[0])
	}
	return nil
}

// scenarioReadonlyEviction reproduces spec.md §8 scenario 5: a read-only
// file-backed page discards cleanly on eviction and reloads bit-for-bit.
func scenarioReadonlyEviction(frames *frame.Table, sw *swap.Manager, vm *stats.VM) error {
	p := process.New(1, frames, sw)
	p.Stats = vm
	p.SPT.Stats = vm
	contents := make([]byte, mem.PageSize)
	contents[0] = 0x42
	f := file.NewMemFile(contents)

	const upage = 0x30000000
	p.SPT.InstallFilesysEntry(upage, f, 0, mem.PageSize, 0, false)
	if !p.SPT.LoadPage(upage, false) {
		return errors.New("initial load failed")
	}

	// Force eviction of upage specifically by exhausting the rest of the
	// frame budget with pinned filler pages: upage is then the only
	// unpinned candidate the clock sweep can select.
	before := sw.InUse()
	for i := 0; i < frames.Allocator().Cap(); i++ {
		other := uintptr(0x31000000 + i*mem.PageSize)
		p.SPT.InstallAllZeroEntry(other)
		if !p.SPT.LoadPage(other, true) {
			return errors.Errorf("load of filler page %d failed", i)
		}
	}

	e, _ := p.SPT.GetEntry(upage)
	if e.State.String() != "ON_FILESYS" {
		return errors.Errorf("expected read-only page to have been discarded to ON_FILESYS, got %s", e.State)
	}
	if sw.InUse() != before {
		return errors.New("read-only eviction must not consume a swap slot")
	}

	if !p.SPT.LoadPage(upage, false) {
		return errors.New("reload failed")
	}
	e, _ = p.SPT.GetEntry(upage)
	page := frames.Allocator().Frame(e.Kpage)
	if page[0] != 0x42 {
		return errors.Errorf("expected reloaded byte 0x42, got %#x", page[0])
	}
	return nil
}

// scenarioResourceLimits demonstrates limits.System capping frame and swap
// consumption below the physical pool's own capacity: with the frame
// table's Limits.Frames budget set to half the demo's --frames pool, the
// clock sweep starts evicting well before palloc itself would ever report
// exhaustion.
func scenarioResourceLimits(frames *frame.Table, sw *swap.Manager, vm *stats.VM) error {
	budget := frames.Allocator().Cap() / 2
	if budget < 1 {
		budget = 1
	}
	frames.Limits = limits.New(budget, sw.Cap())
	sw.Limits = frames.Limits

	p := process.New(1, frames, sw)
	p.Stats = vm
	p.SPT.Stats = vm

	const base = 0x50000000
	npages := budget + 2
	for i := 0; i < npages; i++ {
		upage := uintptr(base + i*mem.PageSize)
		p.SPT.InstallAllZeroEntry(upage)
		if !p.SPT.LoadPage(upage, false) {
			return errors.Errorf("load of page %d failed", i)
		}
	}
	if frames.Count() > budget {
		return errors.Errorf("frame table holds %d frames, exceeding the configured budget of %d", frames.Count(), budget)
	}
	if frames.Allocator().FreeCount() == 0 {
		return errors.New("expected the budget to bind before the physical pool itself was exhausted")
	}
	return nil
}

// scenarioProcessExit reproduces spec.md §8 scenario 6: a process with 3
// swapped-out pages exits and its slots are immediately reusable.
func scenarioProcessExit(frames *frame.Table, sw *swap.Manager, vm *stats.VM) error {
	p := process.New(1, frames, sw)
	p.Stats = vm
	p.SPT.Stats = vm
	const base = 0x40000000
	// Fault in three pages more than the pool holds, so three of them end
	// up swapped out by the time the process exits.
	for i := 0; i < frames.Allocator().Cap()+3; i++ {
		upage := uintptr(base + i*mem.PageSize)
		p.SPT.InstallAllZeroEntry(upage)
		if !p.SPT.LoadPage(upage, false) {
			return errors.Errorf("load %d failed", i)
		}
	}
	if sw.InUse() == 0 {
		return errors.New("expected at least one page swapped out under the demo's frame budget")
	}

	before := sw.InUse()
	p.Exit()
	if sw.InUse() != 0 {
		return errors.Errorf("expected process exit to reclaim all %d swap slots, %d remain", before, sw.InUse())
	}
	sw.Out(new(mem.Bytepg_t))
	if sw.InUse() != 1 {
		return errors.New("freed swap slot was not reusable after process exit")
	}
	return nil
}
