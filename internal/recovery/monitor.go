package recovery

import (
	"context"
	"runtime"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"github.com/fenwick-labs/tidelog/internal/strategy"
)

// HostMonitor implements strategy.SystemMonitor from process and
// filesystem statistics.
type HostMonitor struct {
	// DataDir is the directory whose filesystem is checked for free space.
	DataDir string

	// MemoryCeiling marks memory pressure when the heap exceeds it.
	// Zero disables the check.
	MemoryCeiling uint64

	// DiskFloor marks disk pressure when free space drops below it.
	// Zero disables the check.
	DiskFloor int64

	// DiskCleanup, when set, is invoked by FreeResources under disk
	// pressure (typically the store's retention sweep).
	DiskCleanup func(ctx context.Context) error

	Logger *zap.Logger
}

// Snapshot reads current memory and disk state. Network availability is
// not probed here; that is the connectivity prober's job during recovery.
func (h *HostMonitor) Snapshot(ctx context.Context) strategy.SystemState {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	state := strategy.SystemState{
		NetworkAvailable: true,
		CollectedAt:      time.Now().UTC(),
	}
	if h.MemoryCeiling > 0 && ms.HeapAlloc > h.MemoryCeiling {
		state.MemoryPressure = true
	}

	if h.DataDir != "" {
		if free, ok := diskFree(h.DataDir); ok {
			state.DiskFreeBytes = free
			if h.DiskFloor > 0 && free < h.DiskFloor {
				state.DiskPressure = true
			}
		}
	}
	return state
}

// FreeResources releases what it can for each pressured resource.
func (h *HostMonitor) FreeResources(ctx context.Context, state strategy.SystemState) error {
	if state.MemoryPressure {
		debug.FreeOSMemory()
		if h.Logger != nil {
			h.Logger.Info("returned free heap to the OS")
		}
	}
	if state.DiskPressure && h.DiskCleanup != nil {
		if err := h.DiskCleanup(ctx); err != nil {
			return err
		}
	}
	return nil
}
