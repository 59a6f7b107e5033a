package upxl

import (
	"sync"
	"time"

	"github.com/golang/glog"
	"periph.io/x/conn/v3/physic"

	"github.com/robotalks/upxl/pkg/bitplane"
	"github.com/robotalks/upxl/pkg/framework"
)

// MaxTransferBits is the largest bit count of one transfer.
const MaxTransferBits = 0xffff

// DefaultLatch is the quiet time WS2812 strings need after a transfer.
const DefaultLatch = 300 * time.Microsecond

// Timing is the configuration of the periodic events driving the output
// port. Compare values are timer ticks within one bit period.
type Timing struct {
	// TimerClock is the frequency of the timer counting ticks.
	TimerClock physic.Frequency
	// BitRate is the output bit rate.
	BitRate physic.Frequency
	// Period is the auto-reload value, ticks per bit minus one.
	Period uint32
	// Start raises the WS2812 lines.
	Start uint32
	// Data outputs the bit-plane lane, short pulses end here.
	Data uint32
	// Stop lowers all lines, long pulses end here.
	Stop uint32
	// Clock toggles the APA102 clock lines.
	Clock uint32
}

// DefaultTiming is the fixed 800 kHz timing on an 80 MHz timer clock.
var DefaultTiming = Timing{
	TimerClock: 80 * physic.MegaHertz,
	BitRate:    800 * physic.KiloHertz,
	Period:     99,
	Start:      4,
	Data:       28,
	Stop:       60,
	Clock:      78,
}

// BitTime returns the duration of one bit.
func (t Timing) BitTime() time.Duration {
	if t.TimerClock == 0 {
		return periodOf(t.BitRate, 1)
	}
	return periodOf(t.TimerClock, int64(t.Period)+1)
}

// periodOf returns the duration of ticks cycles at f, without the
// rounding of physic.Frequency.Period.
func periodOf(f physic.Frequency, ticks int64) time.Duration {
	if f <= 0 {
		return 0
	}
	return time.Duration(ticks * int64(time.Second) * int64(physic.Hertz) / int64(f))
}

// Transfer describes one armed draw.
type Transfer struct {
	// Bits is the number of bit-times to send.
	Bits int
	// Lanes is a copy of the first Bits lanes of the bit-plane buffer.
	Lanes []byte
	// StartBits has bit N set when output N is an enabled WS2812 channel.
	StartBits byte
	// ClockBits has bit N set when output N is an enabled APA102 clock.
	ClockBits byte
	// MinFrequency is the lowest requested APA102 data or clock frequency,
	// 0 if none.
	MinFrequency physic.Frequency
	Timing       Timing
}

// Duration returns the time the transfer occupies the outputs.
func (x *Transfer) Duration() time.Duration {
	return time.Duration(x.Bits) * x.Timing.BitTime()
}

func (x *Transfer) lowerFrequency(f physic.Frequency) {
	if x.MinFrequency == 0 || f < x.MinFrequency {
		x.MinFrequency = f
	}
}

// Pipeline is the output hardware which sends transfers.
type Pipeline interface {
	// Arm starts xfer and returns immediately. done must be called once
	// when the transfer completes.
	Arm(xfer *Transfer, done func()) error
}

// DrawState is the state of the Scheduler.
type DrawState int

// Draw states.
const (
	DrawIdle DrawState = iota
	DrawBusy
	DrawLatchWait
)

// String implements fmt.Stringer.
func (s DrawState) String() string {
	switch s {
	case DrawIdle:
		return "idle"
	case DrawBusy:
		return "busy"
	case DrawLatchWait:
		return "latch-wait"
	}
	return "unknown"
}

// DrawResult is the result of a draw attempt.
type DrawResult int

// Draw results.
const (
	// DrawStarted means the transfer is armed.
	DrawStarted DrawResult = iota
	// DrawOverdraw means a transfer is in flight or WS2812 is latching.
	DrawOverdraw
	// DrawNothing means no channel is enabled or the transfer is too long.
	DrawNothing
	// DrawFailed means the pipeline refused the transfer.
	DrawFailed
)

// Scheduler decides when a draw can start and arms the pipeline.
type Scheduler struct {
	Pipeline Pipeline
	Stats    *Stats
	Clock    framework.TimeSource
	Latch    time.Duration
	Timing   Timing

	lock       sync.Mutex
	busy       bool
	latchUntil time.Time
}

// NewScheduler creates a Scheduler with default timing.
func NewScheduler(pipeline Pipeline, stats *Stats) *Scheduler {
	return &Scheduler{
		Pipeline: pipeline,
		Stats:    stats,
		Clock:    framework.SystemClock{},
		Latch:    DefaultLatch,
		Timing:   DefaultTiming,
	}
}

// State returns the current draw state.
func (s *Scheduler) State() DrawState {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.stateAt(s.Clock.Time())
}

func (s *Scheduler) stateAt(now time.Time) DrawState {
	if s.busy {
		return DrawBusy
	}
	if now.Before(s.latchUntil) {
		return DrawLatchWait
	}
	return DrawIdle
}

// StartDraw attempts to draw all enabled channels of table.
func (s *Scheduler) StartDraw(table *Table, buf *bitplane.Buffer) DrawResult {
	s.lock.Lock()
	now := s.Clock.Time()
	state := s.stateAt(now)
	if state == DrawBusy {
		s.lock.Unlock()
		s.Stats.OverDraws.Inc()
		glog.V(1).Info("overdraw: output busy")
		return DrawOverdraw
	}

	xfer := &Transfer{Timing: s.Timing}
	maxBytes := 0
	for output, cfg := range table {
		if cfg == nil || !cfg.Enabled() {
			continue
		}
		switch c := cfg.(type) {
		case WS2812:
			if state == DrawLatchWait {
				s.lock.Unlock()
				s.Stats.OverDraws.Inc()
				glog.V(1).Info("overdraw: latching")
				return DrawOverdraw
			}
			xfer.StartBits |= 1 << uint(output)
		case APA102Data:
			xfer.lowerFrequency(c.Frequency)
		case APA102Clock:
			xfer.ClockBits |= 1 << uint(output)
			xfer.lowerFrequency(c.Frequency)
		}
		if n := cfg.ByteLen(); n > maxBytes {
			maxBytes = n
		}
	}
	xfer.Bits = maxBytes * bitplane.BitsPerBlock
	if xfer.Bits == 0 || xfer.Bits > MaxTransferBits {
		s.lock.Unlock()
		glog.V(1).Infof("draw skipped: %d bits", xfer.Bits)
		return DrawNothing
	}
	xfer.Lanes = buf.Snapshot(xfer.Bits)
	s.busy = true
	s.lock.Unlock()

	s.Stats.LastDraw.Mark(now)
	s.Stats.DrawCount.Inc()
	glog.V(2).Infof("draw %d bits start=%02x clock=%02x", xfer.Bits, xfer.StartBits, xfer.ClockBits)
	if err := s.Pipeline.Arm(xfer, s.TransferComplete); err != nil {
		s.lock.Lock()
		s.busy = false
		s.lock.Unlock()
		glog.Errorf("arm transfer error: %v", err)
		return DrawFailed
	}
	return DrawStarted
}

// TransferComplete is called by the pipeline when the transfer finishes.
// It clears busy and opens the latch window.
func (s *Scheduler) TransferComplete() {
	s.lock.Lock()
	defer s.lock.Unlock()
	if !s.busy {
		glog.V(1).Info("transfer complete while idle")
		return
	}
	s.busy = false
	s.latchUntil = s.Clock.Time().Add(s.Latch)
}

// Reset returns to idle with no latch pending.
func (s *Scheduler) Reset() {
	s.lock.Lock()
	s.busy, s.latchUntil = false, time.Time{}
	s.lock.Unlock()
}
