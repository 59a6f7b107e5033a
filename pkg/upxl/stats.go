package upxl

import (
	"sync/atomic"
	"time"
)

// HealthWindow is how long a status stays active after the last event.
const HealthWindow = time.Second

// Stats are the debug counters of an engine. All fields are safe for
// concurrent access.
type Stats struct {
	CRCErrors         Counter
	FrameMisses       Counter
	DrawCount         Counter
	OverDraws         Counter
	InvalidRecords    Counter
	UnaddressedFrames Counter

	LastData         Timestamp
	LastValidChannel Timestamp
	LastDraw         Timestamp
}

// Counter is a monotonic counter.
type Counter struct {
	v uint64
}

// Inc increments the counter.
func (c *Counter) Inc() {
	atomic.AddUint64(&c.v, 1)
}

// Value returns the current value.
func (c *Counter) Value() uint64 {
	return atomic.LoadUint64(&c.v)
}

func (c *Counter) reset() {
	atomic.StoreUint64(&c.v, 0)
}

// Timestamp records the time of the last occurrence of an event.
type Timestamp struct {
	nanos int64
}

// Mark records t.
func (s *Timestamp) Mark(t time.Time) {
	atomic.StoreInt64(&s.nanos, t.UnixNano())
}

// Time returns the recorded time, zero if never marked.
func (s *Timestamp) Time() time.Time {
	n := atomic.LoadInt64(&s.nanos)
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// Within tells if the event happened less than d before now.
func (s *Timestamp) Within(now time.Time, d time.Duration) bool {
	t := s.Time()
	return !t.IsZero() && now.Sub(t) < d
}

// Health is the state shown by the status indicators of a device.
type Health struct {
	// Receiving means frames are arriving.
	Receiving bool
	// Drawing means channels are set and drawn.
	Drawing bool
}

// Health evaluates the status at now.
func (s *Stats) Health(now time.Time) Health {
	return Health{
		Receiving: s.LastData.Within(now, HealthWindow),
		Drawing: s.LastValidChannel.Within(now, HealthWindow) &&
			s.LastDraw.Within(now, HealthWindow),
	}
}

// Snapshot is a copy of the counters.
type Snapshot struct {
	CRCErrors         uint64 `json:"crc-errors"`
	FrameMisses       uint64 `json:"frame-misses"`
	DrawCount         uint64 `json:"draws"`
	OverDraws         uint64 `json:"overdraws"`
	InvalidRecords    uint64 `json:"invalid-records"`
	UnaddressedFrames uint64 `json:"unaddressed-frames"`
}

// Snapshot copies the counters.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		CRCErrors:         s.CRCErrors.Value(),
		FrameMisses:       s.FrameMisses.Value(),
		DrawCount:         s.DrawCount.Value(),
		OverDraws:         s.OverDraws.Value(),
		InvalidRecords:    s.InvalidRecords.Value(),
		UnaddressedFrames: s.UnaddressedFrames.Value(),
	}
}

// Reset clears counters and timestamps.
func (s *Stats) Reset() {
	for _, c := range []*Counter{&s.CRCErrors, &s.FrameMisses, &s.DrawCount,
		&s.OverDraws, &s.InvalidRecords, &s.UnaddressedFrames} {
		c.reset()
	}
	for _, t := range []*Timestamp{&s.LastData, &s.LastValidChannel, &s.LastDraw} {
		atomic.StoreInt64(&t.nanos, 0)
	}
}
