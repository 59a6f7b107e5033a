package upxl

import (
	"bytes"
	"hash/crc32"
	"testing"

	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/physic"
)

func TestAddress(t *testing.T) {
	for bus := uint8(0); bus < 8; bus++ {
		for output := uint8(0); output < Channels; output++ {
			addr := MakeAddress(bus, output)
			require.Equal(t, bus, addr.BusID())
			require.Equal(t, output, addr.Output())
			require.Equal(t, output, addr.Remap(bus))
			require.Equal(t, NoOutput, addr.Remap((bus+1)&7))
		}
	}
	require.Equal(t, Address(0x12), MakeAddress(2, 5))
	require.Equal(t, uint8(7), Address(0x10).Remap(2))
}

func TestFrameBytes(t *testing.T) {
	testCases := []struct {
		name   string
		frame  *Frame
		expect []byte
	}{
		{
			name:   "draw all",
			frame:  DrawAllFrame(),
			expect: []byte{'U', 'P', 'X', 'L', 0, 2},
		},
		{
			name:  "ws2812",
			frame: WS2812Frame(MakeAddress(1, 0), WS2812{Elements: 3, Order: OrderGRB, Pixels: 1}, []byte{1, 2, 3}),
			expect: []byte{'U', 'P', 'X', 'L', 0x0f, 1,
				3, byte(OrderGRB), 1, 0, 1, 2, 3},
		},
		{
			name:  "apa102 data",
			frame: APA102DataFrame(MakeAddress(0, 7), APA102Data{Frequency: 2 * physic.MegaHertz, Order: OrderRGB, Pixels: 0x102}, nil),
			expect: []byte{'U', 'P', 'X', 'L', 0, 3,
				0x80, 0x84, 0x1e, 0, byte(OrderRGB), 2, 1},
		},
		{
			name:  "apa102 clock",
			frame: APA102ClockFrame(MakeAddress(0, 6), APA102Clock{Frequency: 1000 * physic.Hertz}),
			expect: []byte{'U', 'P', 'X', 'L', 1, 4,
				0xe8, 3, 0, 0},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expect, tc.frame.Bytes())

			var buf bytes.Buffer
			n, err := tc.frame.WriteTo(&buf)
			require.NoError(t, err)
			require.EqualValues(t, len(tc.expect), n)
			require.Equal(t, tc.expect, buf.Bytes())

			tc.frame.CRC = true
			b := tc.frame.Bytes()
			require.Equal(t, tc.expect, b[:len(tc.expect)])
			sum := crc32.ChecksumIEEE(tc.expect)
			require.Equal(t, []byte{byte(sum), byte(sum >> 8), byte(sum >> 16), byte(sum >> 24)}, b[len(tc.expect):])
		})
	}
}

func TestColorOrder(t *testing.T) {
	testCases := []struct {
		in     string
		expect ColorOrder
		str    string
	}{
		{"RGB", OrderRGB, "RGBW"},
		{"grb", OrderGRB, "GRBW"},
		{"BGR", OrderBGR, "BGRW"},
		{"GRBW", OrderGRBW, "GRBW"},
		{"WRGB", ColorOrder(1 | 2<<2 | 3<<4 | 0<<6), "WRGB"},
	}
	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			order, err := ParseColorOrder(tc.in)
			require.NoError(t, err)
			require.Equal(t, tc.expect, order)
			require.Equal(t, tc.str, order.String())
		})
	}

	for _, in := range []string{"", "RG", "RRB", "RGBX", "RGW", "RGBWR"} {
		_, err := ParseColorOrder(in)
		require.Errorf(t, err, "order %q", in)
	}
}
