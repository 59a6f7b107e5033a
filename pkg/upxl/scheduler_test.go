package upxl

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/physic"

	"github.com/robotalks/upxl/pkg/bitplane"
)

func TestTiming(t *testing.T) {
	require.Equal(t, 1250*time.Nanosecond, DefaultTiming.BitTime())
	xfer := &Transfer{Bits: 800, Timing: DefaultTiming}
	require.Equal(t, time.Millisecond, xfer.Duration())
	require.Equal(t, 1250*time.Nanosecond, Timing{BitRate: 800 * physic.KiloHertz}.BitTime())
}

func TestDrawOverdraw(t *testing.T) {
	d := newDecoderTester(0)
	d.decodeOne(t, withCRC(WS2812Frame(MakeAddress(0, 0), WS2812{Elements: 3, Pixels: 2}, pattern(6, 0))))

	outcomes := d.decode(t, withCRC(DrawAllFrame()), withCRC(DrawAllFrame()))
	require.Equal(t, []Outcome{OutcomeDrawn, OutcomeDrawRejected}, outcomes)
	require.EqualValues(t, 1, d.Stats.OverDraws.Value())
	require.EqualValues(t, 1, d.Stats.DrawCount.Value())
	require.Len(t, d.pipeline.xfers, 1)
	require.Equal(t, DrawBusy, d.Scheduler.State())

	d.pipeline.complete()
	require.Equal(t, DrawLatchWait, d.Scheduler.State())
	require.Equal(t, OutcomeDrawRejected, d.decodeOne(t, withCRC(DrawAllFrame())))
	require.EqualValues(t, 2, d.Stats.OverDraws.Value())
	require.Equal(t, DrawLatchWait, d.Scheduler.State())

	d.clock.advance(DefaultLatch)
	require.Equal(t, DrawIdle, d.Scheduler.State())
	require.Equal(t, OutcomeDrawn, d.decodeOne(t, withCRC(DrawAllFrame())))
	require.EqualValues(t, 2, d.Stats.DrawCount.Value())
	require.Len(t, d.pipeline.xfers, 2)
}

func TestDrawLatchOnlyGatesWS2812(t *testing.T) {
	d := newDecoderTester(0)
	d.decodeOne(t, withCRC(APA102DataFrame(MakeAddress(0, 0), APA102Data{Frequency: physic.MegaHertz, Pixels: 1}, pattern(3, 0))))
	require.Equal(t, OutcomeDrawn, d.decodeOne(t, withCRC(DrawAllFrame())))
	d.pipeline.complete()
	require.Equal(t, DrawLatchWait, d.Scheduler.State())
	require.Equal(t, OutcomeDrawn, d.decodeOne(t, withCRC(DrawAllFrame())))
	require.EqualValues(t, 0, d.Stats.OverDraws.Value())
}

func TestDrawTransfer(t *testing.T) {
	d := newDecoderTester(0)
	ws := pattern(6, 0)
	d.decode(t,
		withCRC(WS2812Frame(MakeAddress(0, 1), WS2812{Elements: 3, Order: OrderRGB, Pixels: 2}, ws)),
		withCRC(APA102DataFrame(MakeAddress(0, 4), APA102Data{Frequency: physic.MegaHertz, Order: OrderRGB, Pixels: 1}, []byte{1, 2, 3})),
		withCRC(APA102DataFrame(MakeAddress(0, 5), APA102Data{Frequency: 500 * physic.KiloHertz, Order: OrderRGB}, nil)),
		withCRC(APA102ClockFrame(MakeAddress(0, 6), APA102Clock{Frequency: 2 * physic.MegaHertz})),
		withCRC(DrawAllFrame()),
	)
	require.Len(t, d.pipeline.xfers, 1)
	xfer := d.pipeline.xfers[0]
	require.Equal(t, 12*bitplane.BitsPerBlock, xfer.Bits)
	require.Len(t, xfer.Lanes, xfer.Bits)
	require.Equal(t, byte(0x02), xfer.StartBits)
	require.Equal(t, byte(0x40), xfer.ClockBits)
	require.Equal(t, 500*physic.KiloHertz, xfer.MinFrequency)
	require.Equal(t, DefaultTiming, xfer.Timing)
	require.Equal(t, append(ws, make([]byte, 6)...), bitplane.Demux(xfer.Lanes, 1))
	require.Equal(t, []byte{0, 0, 0, 0, 0xff, 1, 2, 3, 0xff, 0, 0, 0}, bitplane.Demux(xfer.Lanes, 4))
	require.True(t, d.Stats.LastDraw.Time().Equal(d.clock.now))

	// the transfer owns its lanes
	d.decodeOne(t, withCRC(WS2812Frame(MakeAddress(0, 1), WS2812{Elements: 3, Order: OrderRGB, Pixels: 2}, pattern(6, 0x70))))
	require.Equal(t, append(ws, make([]byte, 6)...), bitplane.Demux(xfer.Lanes, 1))
}

func TestDrawTransferClockFrequency(t *testing.T) {
	d := newDecoderTester(0)
	d.decode(t,
		withCRC(APA102DataFrame(MakeAddress(0, 4), APA102Data{Frequency: physic.MegaHertz, Order: OrderRGB, Pixels: 1}, []byte{1, 2, 3})),
		withCRC(APA102ClockFrame(MakeAddress(0, 6), APA102Clock{Frequency: 200 * physic.KiloHertz})),
		withCRC(DrawAllFrame()),
	)
	require.Len(t, d.pipeline.xfers, 1)
	require.Equal(t, 200*physic.KiloHertz, d.pipeline.xfers[0].MinFrequency)
	require.Equal(t, byte(0x40), d.pipeline.xfers[0].ClockBits)
}

func TestDrawNothing(t *testing.T) {
	d := newDecoderTester(0)
	require.Equal(t, OutcomeDrawRejected, d.decodeOne(t, withCRC(DrawAllFrame())))

	d.decode(t,
		withCRC(WS2812Frame(MakeAddress(0, 1), WS2812{Elements: 3, Pixels: 1}, pattern(3, 0))),
		corrupted(withCRC(WS2812Frame(MakeAddress(0, 1), WS2812{Elements: 3, Pixels: 1}, pattern(3, 0)))),
	)
	require.Equal(t, OutcomeDrawRejected, d.decodeOne(t, withCRC(DrawAllFrame())))
	require.Empty(t, d.pipeline.xfers)
	require.EqualValues(t, 0, d.Stats.DrawCount.Value())
	require.EqualValues(t, 0, d.Stats.OverDraws.Value())
	require.Equal(t, DrawIdle, d.Scheduler.State())
}

func TestDrawArmError(t *testing.T) {
	d := newDecoderTester(0)
	d.pipeline.err = errors.New("no output")
	d.decodeOne(t, withCRC(WS2812Frame(MakeAddress(0, 1), WS2812{Elements: 3, Pixels: 1}, pattern(3, 0))))
	require.Equal(t, OutcomeDrawRejected, d.decodeOne(t, withCRC(DrawAllFrame())))
	require.Equal(t, DrawIdle, d.Scheduler.State())

	d.pipeline.err = nil
	require.Equal(t, OutcomeDrawn, d.decodeOne(t, withCRC(DrawAllFrame())))
}

func TestTransferCompleteWhileIdle(t *testing.T) {
	s := NewScheduler(&testPipeline{}, &Stats{})
	clock := &testClock{now: time.Unix(100, 0)}
	s.Clock = clock
	s.TransferComplete()
	require.Equal(t, DrawIdle, s.State())
}
