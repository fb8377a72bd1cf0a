// Package metrics exposes the virtual memory subsystem's counters as
// Prometheus metrics, grounded on the Collector shape of
// talyz-systemd_exporter/systemd/systemd.go: a struct of *prometheus.Desc
// fields built once in a constructor, with Describe/Collect implementing
// prometheus.Collector over a live stats.VM.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"biscuit/biscuit/src/frame"
	"biscuit/biscuit/src/stats"
	"biscuit/biscuit/src/swap"
)

const namespace = "vm"

// Collector reports the live counters and gauges of one running demo: the
// cumulative fault/eviction/swap counters in a stats.VM, plus the current
// occupancy of the frame table and swap manager it is attached to.
type Collector struct {
	vm     *stats.VM
	frames *frame.Table
	swap   *swap.Manager

	faultsDesc         *prometheus.Desc
	stackGrowthsDesc   *prometheus.Desc
	evictionsDesc      *prometheus.Desc
	swapOutsDesc       *prometheus.Desc
	swapInsDesc        *prometheus.Desc
	mmapWritebackDesc  *prometheus.Desc
	processExitsDesc   *prometheus.Desc
	framesInUseDesc    *prometheus.Desc
	swapSlotsInUseDesc *prometheus.Desc
}

// NewCollector returns a Collector reporting vm's counters alongside the
// live occupancy of frames and sw.
func NewCollector(vm *stats.VM, frames *frame.Table, sw *swap.Manager) *Collector {
	return &Collector{
		vm:     vm,
		frames: frames,
		swap:   sw,

		faultsDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "faults_total"),
			"Total user page faults handled.", nil, nil,
		),
		stackGrowthsDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "stack_growths_total"),
			"Total faults resolved by growing the stack.", nil, nil,
		),
		evictionsDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "evictions_total"),
			"Total frames reclaimed by the eviction policy.", nil, nil,
		),
		swapOutsDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "swap_outs_total"),
			"Total pages written to swap.", nil, nil,
		),
		swapInsDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "swap_ins_total"),
			"Total pages read back from swap.", nil, nil,
		),
		mmapWritebackDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "mmap_writebacks_total"),
			"Total dirty mmap pages written back to their file.", nil, nil,
		),
		processExitsDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "process_exits_total"),
			"Total processes torn down.", nil, nil,
		),
		framesInUseDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "frames_in_use"),
			"Physical frames currently owned by a process.", nil, nil,
		),
		swapSlotsInUseDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "swap_slots_in_use"),
			"Swap slots currently occupied.", nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.faultsDesc
	ch <- c.stackGrowthsDesc
	ch <- c.evictionsDesc
	ch <- c.swapOutsDesc
	ch <- c.swapInsDesc
	ch <- c.mmapWritebackDesc
	ch <- c.processExitsDesc
	ch <- c.framesInUseDesc
	ch <- c.swapSlotsInUseDesc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.faultsDesc, prometheus.CounterValue, float64(c.vm.Faults.Get()))
	ch <- prometheus.MustNewConstMetric(c.stackGrowthsDesc, prometheus.CounterValue, float64(c.vm.StackGrowths.Get()))
	ch <- prometheus.MustNewConstMetric(c.evictionsDesc, prometheus.CounterValue, float64(c.vm.Evictions.Get()))
	ch <- prometheus.MustNewConstMetric(c.swapOutsDesc, prometheus.CounterValue, float64(c.vm.SwapOuts.Get()))
	ch <- prometheus.MustNewConstMetric(c.swapInsDesc, prometheus.CounterValue, float64(c.vm.SwapIns.Get()))
	ch <- prometheus.MustNewConstMetric(c.mmapWritebackDesc, prometheus.CounterValue, float64(c.vm.MmapWritebacks.Get()))
	ch <- prometheus.MustNewConstMetric(c.processExitsDesc, prometheus.CounterValue, float64(c.vm.ProcessExits.Get()))
	ch <- prometheus.MustNewConstMetric(c.framesInUseDesc, prometheus.GaugeValue, float64(c.frames.Count()))
	ch <- prometheus.MustNewConstMetric(c.swapSlotsInUseDesc, prometheus.GaugeValue, float64(c.swap.InUse()))
}
