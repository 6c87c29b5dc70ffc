//go:build !linux

package scheduler

import "github.com/sirupsen/logrus"

// applyRealTimePosture is a no-op outside Linux: there is no portable
// equivalent of SCHED_FIFO plus mlockall this package reaches for.
func applyRealTimePosture(log *logrus.Logger) {
	if log != nil {
		log.Debug("scheduler: real-time posture not implemented on this platform")
	}
}
