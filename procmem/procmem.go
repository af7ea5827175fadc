// Package procmem queries resident memory for whole process trees.
package procmem

import (
	"github.com/shirou/gopsutil/v4/process"
)

// TreeRSS returns the current total resident memory, in bytes, of the process
// with the given pid plus all of its live descendants. Compiler drivers often
// fork the real work (cc1plus, ld) behind a shell or wrapper, so the root's
// own RSS alone would badly undercount.
//
// The walk is best-effort: a process that exits between enumeration and its
// memory query contributes 0, and a missing root yields 0. It never fails.
// Safe to call concurrently with the tree's own execution.
func TreeRSS(pid int32) uint64 {
	root, err := process.NewProcess(pid)
	if err != nil {
		return 0
	}

	var total uint64
	seen := map[int32]bool{}

	// Worklist walk; the seen set guards against pid reuse introducing cycles.
	work := []*process.Process{root}
	for len(work) > 0 {
		p := work[len(work)-1]
		work = work[:len(work)-1]

		if seen[p.Pid] {
			continue
		}
		seen[p.Pid] = true

		if info, err := p.MemoryInfo(); err == nil && info != nil {
			total += info.RSS
		}

		children, err := p.Children()
		if err != nil {
			// No children, or the process vanished mid-walk.
			continue
		}
		work = append(work, children...)
	}

	return total
}
