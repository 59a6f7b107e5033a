package upxl

import (
	"context"
	"io"

	"github.com/golang/glog"

	"github.com/robotalks/upxl/pkg/bitplane"
	"github.com/robotalks/upxl/pkg/framework"
)

// Engine is the LED output engine. It owns the channel table, the
// bit-plane buffer and the counters, and runs the decoder on a Source.
type Engine struct {
	Table     Table
	Buffer    *bitplane.Buffer
	Stats     *Stats
	Decoder   *Decoder
	Scheduler *Scheduler
}

// NewEngine creates an Engine reading from src and drawing to pipeline.
func NewEngine(src Source, pipeline Pipeline, opts *Options) (*Engine, error) {
	if opts == nil {
		opts = NewOptions()
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		Buffer: bitplane.New(Capacity),
		Stats:  &Stats{},
	}
	e.Scheduler = NewScheduler(pipeline, e.Stats)
	e.Scheduler.Latch = opts.Latch
	e.Decoder = &Decoder{
		Source:     src,
		Table:      &e.Table,
		Buffer:     e.Buffer,
		Scheduler:  e.Scheduler,
		Stats:      e.Stats,
		Clock:      e.Scheduler.Clock,
		BusID:      uint8(opts.BusID),
		UseCRC:     opts.UseCRC,
		Brightness: uint8(opts.Brightness),
		APA102Tail: opts.tailFill(),
	}
	return e, nil
}

// SetClock replaces the time source of the decoder and the scheduler.
func (e *Engine) SetClock(clock framework.TimeSource) {
	e.Scheduler.Clock, e.Decoder.Clock = clock, clock
}

// Run decodes frames until ctx is canceled or the source is closed.
func (e *Engine) Run(ctx context.Context) error {
	run := func() error {
		for {
			if err := e.Decoder.Source.WaitAvailable(ctx, MinFrameSize); err != nil {
				return e.stopped(err)
			}
			outcome, err := e.Decoder.Decode()
			if err != nil {
				return e.stopped(err)
			}
			glog.V(2).Infof("frame %s", outcome)
		}
	}
	if closer, ok := e.Decoder.Source.(io.Closer); ok {
		return framework.RunWithContextCloser(ctx, closer, run)
	}
	return framework.RunWithContext(ctx, run)
}

func (e *Engine) stopped(err error) error {
	if err == ErrSourceClosed {
		glog.Info("source closed")
		return nil
	}
	return err
}

// Reset restores the power-up state: all channels disabled, buffer and
// counters cleared, scheduler idle.
func (e *Engine) Reset() {
	e.Table.Reset()
	e.Buffer.Reset()
	e.Stats.Reset()
	e.Scheduler.Reset()
}
