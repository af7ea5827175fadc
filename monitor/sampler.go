// Package monitor runs build commands under memory observation.
package monitor

import (
	"sync"
	"time"

	"github.com/cmakeperf/cmakeperf/procmem"
)

// Sampler polls the resident memory of a process tree on a fixed period and
// tracks the running maximum. It runs on its own schedule, independent of the
// watched process: Start after the child pid is known, Stop once the child
// has been reaped.
type Sampler struct {
	pid      int32
	interval time.Duration
	sample   func(int32) uint64

	stop     chan struct{}
	result   chan uint64
	stopOnce sync.Once
	peak     uint64
}

// NewSampler creates a sampler for the process tree rooted at pid.
func NewSampler(pid int32, interval time.Duration) *Sampler {
	return &Sampler{
		pid:      pid,
		interval: interval,
		sample:   procmem.TreeRSS,
		stop:     make(chan struct{}),
		result:   make(chan uint64, 1),
	}
}

// Start launches the polling loop. The first sample is taken immediately so
// even a child that exits before the first tick gets observed at least once.
func (s *Sampler) Start() {
	go s.loop()
}

// Stop terminates the polling loop and returns the peak observed. A final
// best-effort sample is taken before the peak is computed, which covers a
// child exiting in the window between two ticks. Stop is idempotent and
// returns within roughly one polling period.
func (s *Sampler) Stop() uint64 {
	s.stopOnce.Do(func() {
		close(s.stop)
		s.peak = <-s.result
	})
	return s.peak
}

func (s *Sampler) loop() {
	peak := s.sample(s.pid)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			// Last chance: the tree may have grown since the previous tick.
			if v := s.sample(s.pid); v > peak {
				peak = v
			}
			s.result <- peak
			return
		case <-ticker.C:
			if v := s.sample(s.pid); v > peak {
				peak = v
			}
		}
	}
}
