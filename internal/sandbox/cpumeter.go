package sandbox

import (
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// CPUMeter samples process CPU time to turn the abstract cpu_rate resource
// into an actually-measured quantity instead of a flat per-call cost,
// wrapping gopsutil/v3 the way the rate-limiting layer wraps a stdlib
// primitive.
type CPUMeter struct {
	proc *process.Process
}

// NewCPUMeter samples the current OS process.
func NewCPUMeter() (*CPUMeter, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}
	return &CPUMeter{proc: p}, nil
}

// Sample returns cumulative user+system CPU time consumed by the process
// so far. Callers diff two samples to get the CPU time used by one
// sandboxed invocation.
func (m *CPUMeter) Sample() time.Duration {
	times, err := m.proc.Times()
	if err != nil {
		return 0
	}
	return time.Duration((times.User + times.System) * float64(time.Second))
}
