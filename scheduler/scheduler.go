// Package scheduler implements the fixed-period scan cycle: execute the
// compiled program's scan function, sync the hardware layer, refresh the
// system clock image, then sleep to the next absolute deadline without
// ever catching up a missed one.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/oplcgo/runtime/hardware"
	"github.com/oplcgo/runtime/image"
)

// ScanFunc is the opaque compiled-program entry point invoked once per
// tick with the image lock already held.
type ScanFunc func(tick uint64)

// Stats is a snapshot of the scheduler's diagnostic counters.
type Stats struct {
	TicksRun         uint64
	DeadlinesMissed  uint64
	LastScanDuration time.Duration
}

// Scheduler runs a ScanFunc at a fixed period against a process image
// and a hardware layer.
type Scheduler struct {
	img    *image.Image
	hw     hardware.Layer
	scan   ScanFunc
	period time.Duration
	log    *logrus.Logger

	mu       sync.Mutex
	stats    Stats
	lastWarn time.Time
}

// New returns a Scheduler that ticks scan at period against img and hw.
// log may be nil.
func New(img *image.Image, hw hardware.Layer, scan ScanFunc, period time.Duration, log *logrus.Logger) *Scheduler {
	return &Scheduler{img: img, hw: hw, scan: scan, period: period, log: log}
}

// Stats returns a snapshot of the scheduler's counters.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Run executes the scan loop until ctx is canceled. It requests
// real-time scheduling priority and a locked memory residency once at
// startup; failure of either is logged and non-fatal, per §4.5.
func (s *Scheduler) Run(ctx context.Context) error {
	applyRealTimePosture(s.log)

	var tick uint64
	deadline := time.Now()
	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		start := time.Now()
		s.img.WithLock(func() {
			s.scan(tick)
			s.hw.UpdateBuffers(s.img)
			s.img.Clock().Update(time.Now().UTC())
		})
		duration := time.Since(start)
		tick++

		deadline = deadline.Add(s.period)
		remaining := time.Until(deadline)

		s.mu.Lock()
		s.stats.TicksRun++
		s.stats.LastScanDuration = duration
		missed := remaining <= 0
		if missed {
			s.stats.DeadlinesMissed++
		}
		shouldWarn := missed && time.Since(s.lastWarn) >= time.Second
		if shouldWarn {
			s.lastWarn = time.Now()
		}
		s.mu.Unlock()

		if shouldWarn && s.log != nil {
			s.log.WithFields(logrus.Fields{
				"tick":    tick,
				"overrun": -remaining,
			}).Warn("scheduler: deadline missed, skipping ahead (not catching up)")
		}

		if remaining <= 0 {
			continue
		}

		timer.Reset(remaining)
		select {
		case <-ctx.Done():
			if !timer.Stop() {
				<-timer.C
			}
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// applyRealTimePosture requests real-time scheduling and a locked
// memory residency. It is implemented per-OS: scheduler_linux.go does
// the real work; scheduler_other.go is a no-op on platforms without an
// equivalent facility. Both are spelled applyRealTimePosture so Run
// never branches on runtime.GOOS itself.
