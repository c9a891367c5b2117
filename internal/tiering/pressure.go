// Package tiering runs the background capacity controller: it watches
// how full each volatile tier is and schedules evictions through the
// spill pipeline when a tier is over its configured limit.
//
// Grounded on original_source/internal/tiering/{tiering_manager,
// tiering_policy,pressure_state}.{hpp,cpp}. The reference
// TieringPolicy::Choose{Ram,Gpu}Eviction are explicitly left as
// placeholders ("simple heuristic placeholder... later: LRU / LFU /
// cost model") — this port supplements that gap with the LRU policy the
// comment calls out, biased against leased and pinned payloads so an
// eviction never fights an in-flight read.
package tiering

import "sync/atomic"

// PressureState tracks live byte usage against configured limits for
// the tiers a TieringManager watches. Mirrors PressureState's atomic
// counters plus static limits.
type PressureState struct {
	ramBytes  atomic.Uint64
	gpuBytes  atomic.Uint64
	diskBytes atomic.Uint64

	RamLimit  uint64
	GpuLimit  uint64
	DiskLimit uint64
}

// NewPressureState constructs a PressureState with the given limits (0
// means "unlimited", so RamPressure/GpuPressure never fire).
func NewPressureState(ramLimit, gpuLimit, diskLimit uint64) *PressureState {
	return &PressureState{RamLimit: ramLimit, GpuLimit: gpuLimit, DiskLimit: diskLimit}
}

// AddRam adjusts the tracked RAM usage by delta (negative to shrink).
func (s *PressureState) AddRam(delta int64) { addSigned(&s.ramBytes, delta) }

// AddGpu adjusts the tracked GPU usage by delta.
func (s *PressureState) AddGpu(delta int64) { addSigned(&s.gpuBytes, delta) }

// AddDisk adjusts the tracked disk usage by delta.
func (s *PressureState) AddDisk(delta int64) { addSigned(&s.diskBytes, delta) }

// RamBytes returns the current tracked RAM usage.
func (s *PressureState) RamBytes() uint64 { return s.ramBytes.Load() }

// GpuBytes returns the current tracked GPU usage.
func (s *PressureState) GpuBytes() uint64 { return s.gpuBytes.Load() }

// DiskBytes returns the current tracked disk usage.
func (s *PressureState) DiskBytes() uint64 { return s.diskBytes.Load() }

// RamPressure reports whether tracked RAM usage exceeds RamLimit. A
// zero limit means unlimited (never under pressure).
func (s *PressureState) RamPressure() bool {
	return s.RamLimit > 0 && s.ramBytes.Load() > s.RamLimit
}

// GpuPressure reports whether tracked GPU usage exceeds GpuLimit.
func (s *PressureState) GpuPressure() bool {
	return s.GpuLimit > 0 && s.gpuBytes.Load() > s.GpuLimit
}

func addSigned(counter *atomic.Uint64, delta int64) {
	if delta >= 0 {
		counter.Add(uint64(delta))
		return
	}
	dec := uint64(-delta)
	for {
		cur := counter.Load()
		var next uint64
		if dec > cur {
			next = 0
		} else {
			next = cur - dec
		}
		if counter.CompareAndSwap(cur, next) {
			return
		}
	}
}
