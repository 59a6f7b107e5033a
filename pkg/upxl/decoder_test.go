package upxl

import (
	"testing"

	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/physic"
)

func TestDecodeWS2812(t *testing.T) {
	d := newDecoderTester(1)
	cfg := WS2812{Elements: 3, Order: OrderGRB, Pixels: 2}
	outcome := d.decodeOne(t, withCRC(WS2812Frame(MakeAddress(1, 2), cfg, []byte{1, 2, 3, 4, 5, 6})))
	require.Equal(t, OutcomeApplied, outcome)
	require.Equal(t, cfg, d.Table[2])
	require.Equal(t, []byte{2, 1, 3, 5, 4, 6}, d.Buffer.Read(0, 2, 6))
	require.Equal(t, make([]byte, 6), d.Buffer.Read(0, 1, 6))
	require.True(t, d.Stats.LastValidChannel.Time().Equal(d.clock.now))
	require.True(t, d.Stats.LastData.Time().Equal(d.clock.now))
}

func TestDecodeRGBW(t *testing.T) {
	d := newDecoderTester(0)
	order, err := ParseColorOrder("WGRB")
	require.NoError(t, err)
	cfg := WS2812{Elements: 4, Order: order, Pixels: 1}
	d.decodeOne(t, withCRC(WS2812Frame(MakeAddress(0, 0), cfg, []byte{0x11, 0x22, 0x33, 0x44})))
	require.Equal(t, []byte{0x44, 0x22, 0x11, 0x33}, d.Buffer.Read(0, 0, 4))
}

func TestDecodeInvalidWS2812(t *testing.T) {
	testCases := []struct {
		name string
		cfg  WS2812
	}{
		{"oversized", WS2812{Elements: 3, Pixels: Capacity/3 + 1}},
		{"oversized rgbw", WS2812{Elements: 4, Pixels: 0xffff}},
		{"no elements", WS2812{Elements: 0, Pixels: 10}},
		{"too many elements", WS2812{Elements: 5, Pixels: 10}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			d := newDecoderTester(0)
			prev := WS2812{Elements: 3, Order: OrderRGB, Pixels: 4}
			d.decodeOne(t, withCRC(WS2812Frame(MakeAddress(0, 3), prev, pattern(12, 0))))
			words := append([]uint32(nil), d.Buffer.Words()...)

			outcome := d.decodeOne(t, withoutCRC(WS2812Frame(MakeAddress(0, 3), tc.cfg, nil)))
			require.Equal(t, OutcomeInvalid, outcome)
			require.Equal(t, prev, d.Table[3])
			require.Equal(t, words, d.Buffer.Words())
			require.EqualValues(t, 1, d.Stats.InvalidRecords.Value())
			require.EqualValues(t, 0, d.Stats.CRCErrors.Value())
		})
	}
}

func TestDecodeCRCFailure(t *testing.T) {
	d := newDecoderTester(2)
	addr := MakeAddress(2, 4)
	cfg := APA102Data{Frequency: physic.MegaHertz, Order: OrderBGR, Pixels: 3}
	require.Equal(t, OutcomeApplied, d.decodeOne(t, withCRC(APA102DataFrame(addr, cfg, pattern(9, 0x10)))))
	require.Equal(t, cfg, d.Table[4])

	outcome := d.decodeOne(t, corrupted(withCRC(APA102DataFrame(addr, cfg, pattern(9, 0x30)))))
	require.Equal(t, OutcomeCRCError, outcome)
	require.Equal(t, APA102Data{}, d.Table[4])
	require.False(t, d.Table[4].Enabled())
	require.Equal(t, make([]byte, Capacity), d.Buffer.Read(0, 4, Capacity))
	require.EqualValues(t, 1, d.Stats.CRCErrors.Value())
}

func TestDecodeCRCFailureOtherKinds(t *testing.T) {
	d := newDecoderTester(0)
	d.decodeOne(t, withCRC(WS2812Frame(MakeAddress(0, 1), WS2812{Elements: 3, Pixels: 2}, pattern(6, 0))))
	require.Equal(t, OutcomeCRCError,
		d.decodeOne(t, corrupted(withCRC(WS2812Frame(MakeAddress(0, 1), WS2812{Elements: 3, Pixels: 1}, pattern(3, 0))))))
	require.Equal(t, WS2812{}, d.Table[1])

	require.Equal(t, OutcomeCRCError,
		d.decodeOne(t, corrupted(withCRC(APA102ClockFrame(MakeAddress(0, 2), APA102Clock{Frequency: physic.MegaHertz})))))
	require.Equal(t, APA102Clock{}, d.Table[2])
	require.EqualValues(t, 2, d.Stats.CRCErrors.Value())
}

func TestDecodeTailZero(t *testing.T) {
	d := newDecoderTester(0)
	addr := MakeAddress(0, 5)
	long := pattern(300, 0)
	d.decodeOne(t, withCRC(WS2812Frame(addr, WS2812{Elements: 3, Order: OrderRGB, Pixels: 100}, long)))
	require.Equal(t, long, d.Buffer.Read(0, 5, 300))

	short := pattern(30, 0x80)
	d.decodeOne(t, withCRC(WS2812Frame(addr, WS2812{Elements: 3, Order: OrderRGB, Pixels: 10}, short)))
	require.Equal(t, short, d.Buffer.Read(0, 5, 30))
	require.Equal(t, make([]byte, 270), d.Buffer.Read(30, 5, 270))

	longer := pattern(600, 0x40)
	d.decodeOne(t, withCRC(WS2812Frame(addr, WS2812{Elements: 4, Order: OrderRGBW, Pixels: 150}, longer)))
	require.Equal(t, longer, d.Buffer.Read(0, 5, 600))
}

func TestDecodeTailAfterKindChange(t *testing.T) {
	d := newDecoderTester(0)
	addr := MakeAddress(0, 0)
	d.decodeOne(t, withCRC(WS2812Frame(addr, WS2812{Elements: 3, Order: OrderRGB, Pixels: 10}, pattern(30, 0))))
	d.decodeOne(t, withCRC(APA102ClockFrame(addr, APA102Clock{Frequency: physic.MegaHertz})))
	require.Equal(t, APA102Clock{Frequency: physic.MegaHertz}, d.Table[0])
	require.Equal(t, make([]byte, 30), d.Buffer.Read(0, 0, 30))
}

func TestDecodeAPA102(t *testing.T) {
	d := newDecoderTester(0)
	d.Brightness = 3
	addr := MakeAddress(0, 6)
	cfg := APA102Data{Frequency: 4 * physic.MegaHertz, Order: OrderRGB, Pixels: 2}
	d.decodeOne(t, withCRC(APA102DataFrame(addr, cfg, []byte{10, 20, 30, 40, 50, 60})))
	require.Equal(t, []byte{
		0, 0, 0, 0,
		0xe3, 10, 20, 30,
		0xe3, 40, 50, 60,
		0xff, 0, 0, 0,
	}, d.Buffer.Read(0, 6, 16))

	cfg.Order, cfg.Pixels = OrderBGR, 1
	d.APA102Tail = TailOne
	d.decodeOne(t, withCRC(APA102DataFrame(addr, cfg, []byte{1, 2, 3})))
	require.Equal(t, []byte{
		0, 0, 0, 0,
		0xe3, 3, 2, 1,
		0xff, 0, 0, 0,
		0xff, 0xff, 0xff, 0xff,
	}, d.Buffer.Read(0, 6, 16))
	require.Equal(t, byte(0xff), d.Buffer.Byte(Capacity-1, 6))
	require.Equal(t, byte(0), d.Buffer.Byte(Capacity-1, 5))
}

func TestDecodeInvalidAPA102(t *testing.T) {
	d := newDecoderTester(0)
	outcomes := d.decode(t,
		withoutCRC(APA102DataFrame(MakeAddress(0, 0), APA102Data{Pixels: 1}, nil)),
		withoutCRC(APA102DataFrame(MakeAddress(0, 0), APA102Data{Frequency: physic.MegaHertz, Pixels: Capacity / 4}, nil)),
		withoutCRC(APA102ClockFrame(MakeAddress(0, 1), APA102Clock{})),
	)
	require.Equal(t, []Outcome{OutcomeInvalid, OutcomeInvalid, OutcomeInvalid}, outcomes)
	require.Equal(t, Table{}, *d.Table)
	require.EqualValues(t, 3, d.Stats.InvalidRecords.Value())
}

func TestDecodeBusAddressing(t *testing.T) {
	d := newDecoderTester(3)
	other := WS2812{Elements: 3, Order: OrderRGB, Pixels: 4}
	mine := WS2812{Elements: 3, Order: OrderRGB, Pixels: 2}
	outcomes := d.decode(t,
		withCRC(WS2812Frame(MakeAddress(5, 0), other, pattern(12, 0))),
		corrupted(withCRC(WS2812Frame(MakeAddress(4, 1), other, pattern(12, 0)))),
		withCRC(WS2812Frame(MakeAddress(3, 7), mine, []byte{1, 2, 3, 4, 5, 6})),
	)
	require.Equal(t, []Outcome{OutcomeUnaddressed, OutcomeUnaddressed, OutcomeApplied}, outcomes)
	require.Equal(t, Table{7: mine}, *d.Table)
	require.Equal(t, []byte{1, 2, 3, 4, 5, 6}, d.Buffer.Read(0, 7, 6))
	for output := uint8(0); output < 7; output++ {
		require.Equal(t, make([]byte, 12), d.Buffer.Read(0, output, 12))
	}
	require.EqualValues(t, 2, d.Stats.UnaddressedFrames.Value())
	require.EqualValues(t, 1, d.Stats.CRCErrors.Value())
	require.EqualValues(t, 0, d.Stats.FrameMisses.Value())
}

func TestDecodeFrameMiss(t *testing.T) {
	d := newDecoderTester(0)
	cfg := WS2812{Elements: 3, Order: OrderRGB, Pixels: 1}
	frame := withCRC(WS2812Frame(MakeAddress(0, 0), cfg, []byte{7, 8, 9}))
	outcomes := d.decode(t, []byte("UPXX"), []byte{0, 'x'}, []byte("UPQ"), frame)
	require.Equal(t, []Outcome{
		OutcomeFrameMiss, // UPXX
		OutcomeFrameMiss, // 0
		OutcomeFrameMiss, // x
		OutcomeFrameMiss, // UPQ
		OutcomeApplied,
	}, outcomes)
	require.EqualValues(t, 4, d.Stats.FrameMisses.Value())
	require.Equal(t, cfg, d.Table[0])
}

func TestDecodeUnknownRecord(t *testing.T) {
	d := newDecoderTester(0)
	outcomes := d.decode(t, withoutCRC(&Frame{Type: RecordType(9)}))
	require.Equal(t, []Outcome{OutcomeInvalid}, outcomes)
	require.EqualValues(t, 1, d.Stats.InvalidRecords.Value())
}

func TestDecodeWithoutCRC(t *testing.T) {
	d := newDecoderTester(0)
	d.UseCRC = false
	cfg := WS2812{Elements: 3, Order: OrderRGB, Pixels: 1}
	outcomes := d.decode(t,
		withoutCRC(WS2812Frame(MakeAddress(0, 0), cfg, []byte{1, 2, 3})),
		withoutCRC(DrawAllFrame()),
	)
	require.Equal(t, []Outcome{OutcomeApplied, OutcomeDrawn}, outcomes)
	require.Len(t, d.pipeline.xfers, 1)
}

func TestDecodeDrawAllCRC(t *testing.T) {
	d := newDecoderTester(0)
	d.decodeOne(t, withCRC(WS2812Frame(MakeAddress(0, 0), WS2812{Elements: 3, Pixels: 1}, []byte{1, 2, 3})))
	require.Equal(t, OutcomeCRCError, d.decodeOne(t, corrupted(withCRC(DrawAllFrame()))))
	require.Empty(t, d.pipeline.xfers)
	require.EqualValues(t, 0, d.Stats.DrawCount.Value())

	// DrawAll is a broadcast.
	draw := DrawAllFrame()
	draw.Address = MakeAddress(6, 1)
	require.Equal(t, OutcomeDrawn, d.decodeOne(t, withCRC(draw)))
	require.EqualValues(t, 1, d.Stats.DrawCount.Value())
}

func TestDecodeSourceError(t *testing.T) {
	d := newDecoderTester(0)
	frame := withCRC(WS2812Frame(MakeAddress(0, 0), WS2812{Elements: 3, Pixels: 2}, pattern(6, 0)))
	d.Source = newTestSource(frame[:10])
	outcome, err := d.Decode()
	require.Equal(t, ErrSourceClosed, err)
	require.Equal(t, OutcomeNone, outcome)
	require.Equal(t, StateRecordDispatch, d.State())
	require.Nil(t, d.Table[0])
}
