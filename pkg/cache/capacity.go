package cache

import (
	"fmt"
	"math"
	"runtime"
	"runtime/debug"

	"github.com/shirou/gopsutil/v4/mem"
)

// resizeThreshold is the relative change required before a new ceiling is
// applied.
const resizeThreshold = 0.20

// MemoryProbe reports how many bytes the process could still use.
type MemoryProbe interface {
	Available() (uint64, error)
}

// RuntimeProbe honours a Go soft memory limit when one is set and otherwise
// reports host available memory.
type RuntimeProbe struct{}

// NewRuntimeProbe returns the default memory probe.
func NewRuntimeProbe() *RuntimeProbe {
	return &RuntimeProbe{}
}

// Available implements MemoryProbe.
func (RuntimeProbe) Available() (uint64, error) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	if limit := debug.SetMemoryLimit(-1); limit > 0 && limit < math.MaxInt64 {
		if uint64(limit) <= ms.HeapAlloc {
			return 0, nil
		}
		return uint64(limit) - ms.HeapAlloc, nil
	}

	vm, err := mem.VirtualMemory()
	if err == nil && vm.Available > 0 {
		return vm.Available, nil
	}

	// Last resort: what the runtime already obtained but is not using.
	if ms.Sys > ms.HeapInuse {
		return ms.Sys - ms.HeapInuse, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read host memory: %w", err)
	}
	return 0, fmt.Errorf("host reported no available memory")
}

// computeCeiling derives the memory ceiling from available bytes.
func computeCeiling(available uint64, fraction float64, minBytes, maxBytes int64) int64 {
	ceiling := int64(float64(available) * fraction)
	if ceiling < minBytes {
		ceiling = minBytes
	}
	if ceiling > maxBytes {
		ceiling = maxBytes
	}
	return ceiling
}

// shouldResize reports whether next differs from current by more than
// resizeThreshold.
func shouldResize(current, next int64) bool {
	if current <= 0 {
		return next > 0
	}
	diff := math.Abs(float64(next-current)) / float64(current)
	return diff > resizeThreshold
}

// RecomputeCapacity asks the memory probe for available memory and applies
// a new ceiling if it moved by more than 20%. It returns the ceiling in
// effect afterwards and whether it changed.
func (c *Cache) RecomputeCapacity() (int64, bool) {
	current := c.maxMemory.Load()

	available, err := c.cfg.MemoryProbe.Available()
	if err != nil {
		c.logger.Warn().Err(err).Msg("Memory probe failed, keeping current ceiling")
		return current, false
	}

	next := computeCeiling(available, c.cfg.HeapFraction, c.cfg.MinMemory, c.cfg.MaxMemoryCeiling)
	if !shouldResize(current, next) {
		return current, false
	}

	c.maxMemory.Store(next)
	c.logger.Info().
		Int64("previous_bytes", current).
		Int64("max_memory", next).
		Uint64("available_bytes", available).
		Msg("Cache memory ceiling resized")
	c.emit([]Event{{Type: EventResize, Size: next}})
	return next, true
}
