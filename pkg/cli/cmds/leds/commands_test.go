package leds

import (
	"testing"

	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/physic"

	"github.com/robotalks/upxl/pkg/upxl"
)

func TestFill(t *testing.T) {
	data, err := Fill(3, 3, []byte{1, 2, 3}, []byte{4, 5, 6})
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3, 4, 5, 6, 1, 2, 3}, data)

	data, err = Fill(2, 4)
	require.NoError(t, err)
	require.Equal(t, make([]byte, 8), data)

	_, err = Fill(2, 4, []byte{1, 2, 3})
	require.Error(t, err)
}

func TestWS2812Frame(t *testing.T) {
	addr := upxl.MakeAddress(1, 6)
	f, err := WS2812Frame(addr, "grbw", 2, [][]byte{{0x10, 0x20, 0x30, 0x40}})
	require.NoError(t, err)
	expected := upxl.WS2812Frame(addr, upxl.WS2812{Elements: 4, Order: upxl.OrderGRBW, Pixels: 2},
		[]byte{0x10, 0x20, 0x30, 0x40, 0x10, 0x20, 0x30, 0x40})
	require.Equal(t, expected.Bytes(), f.Bytes())

	_, err = WS2812Frame(addr, "grx", 1, nil)
	require.Error(t, err)
}

func TestAPA102Frames(t *testing.T) {
	data, clock := upxl.MakeAddress(0, 2), upxl.MakeAddress(0, 3)
	frames, err := APA102Frames(data, clock, physic.MegaHertz, "BGR", 1, [][]byte{{1, 2, 3}})
	require.NoError(t, err)
	require.Len(t, frames, 2)
	require.Equal(t, upxl.RecordSetAPA102Clock, frames[0].Type)
	require.Equal(t, clock, frames[0].Address)
	require.Equal(t, upxl.RecordSetAPA102Data, frames[1].Type)
	require.Equal(t, data, frames[1].Address)
	require.Equal(t, []byte{0x40, 0x42, 0x0f, 0, byte(upxl.OrderBGR), 1, 0, 1, 2, 3}, frames[1].Payload)

	_, err = APA102Frames(data, clock, physic.MegaHertz, "BGRW", 1, nil)
	require.Error(t, err)
}
