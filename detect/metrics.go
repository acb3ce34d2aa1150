package detect

import "sync/atomic"

// Metrics is a snapshot of the detector's frame counters, cumulative
// across sessions.
type Metrics struct {
	FramesForwarded uint64
	FramesDropped   uint64
	BytesForwarded  uint64
	SendFailures    uint64
}

type counters struct {
	framesForwarded atomic.Uint64
	framesDropped   atomic.Uint64
	bytesForwarded  atomic.Uint64
	sendFailures    atomic.Uint64
}

func (c *counters) snapshot() Metrics {
	return Metrics{
		FramesForwarded: c.framesForwarded.Load(),
		FramesDropped:   c.framesDropped.Load(),
		BytesForwarded:  c.bytesForwarded.Load(),
		SendFailures:    c.sendFailures.Load(),
	}
}
