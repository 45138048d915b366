package server

import (
	"sync/atomic"
	"time"
)

// Stats tracks process-wide server activity, aggregated from individual
// Connection.Stats() snapshots by the metrics loop.
type Stats struct {
	StartTime     time.Time
	ConnCount     int64
	PeakConnCount int64
	CmdCount      int64
	BytesReceived int64
	BytesSent     int64
	ErrorCount    int64
	SlowCount     int64
}

func (s *Stats) IncrConnCount() {
	n := atomic.AddInt64(&s.ConnCount, 1)
	s.bumpPeak(n)
}

func (s *Stats) bumpPeak(n int64) {
	for {
		peak := atomic.LoadInt64(&s.PeakConnCount)
		if n <= peak {
			return
		}
		if atomic.CompareAndSwapInt64(&s.PeakConnCount, peak, n) {
			return
		}
	}
}

func (s *Stats) DecrConnCount() {
	atomic.AddInt64(&s.ConnCount, -1)
}

func (s *Stats) IncrCmdCount() {
	atomic.AddInt64(&s.CmdCount, 1)
}

// StoreBytesReceived and StoreBytesSent replace the running total rather
// than accumulating it, since collectMetrics recomputes the total from
// every live connection's byte counters on each tick.
func (s *Stats) StoreBytesReceived(n int64) {
	atomic.StoreInt64(&s.BytesReceived, n)
}

func (s *Stats) StoreBytesSent(n int64) {
	atomic.StoreInt64(&s.BytesSent, n)
}

func (s *Stats) IncrErrorCount() {
	atomic.AddInt64(&s.ErrorCount, 1)
}

func (s *Stats) IncrSlowCount() {
	atomic.AddInt64(&s.SlowCount, 1)
}
