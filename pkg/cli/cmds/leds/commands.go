// Package leds provides shell commands setting and drawing LED channels.
package leds

import (
	"fmt"
	"strconv"

	"github.com/abiosoft/ishell"
	"periph.io/x/conn/v3/physic"

	"github.com/robotalks/upxl/pkg/cli/sh"
	"github.com/robotalks/upxl/pkg/upxl"
)

// Fill repeats colors over pixels. Every color has elements bytes.
func Fill(pixels, elements int, colors ...[]byte) ([]byte, error) {
	if len(colors) == 0 {
		colors = [][]byte{make([]byte, elements)}
	}
	for _, color := range colors {
		if len(color) != elements {
			return nil, fmt.Errorf("color %x is not %d bytes", color, elements)
		}
	}
	out := make([]byte, 0, pixels*elements)
	for p := 0; p < pixels; p++ {
		out = append(out, colors[p%len(colors)]...)
	}
	return out, nil
}

func parseColors(args []string) ([][]byte, error) {
	colors := make([][]byte, 0, len(args))
	for _, arg := range args {
		color, err := sh.ParseHex(arg)
		if err != nil {
			return nil, fmt.Errorf("invalid COLOR %q: %v", arg, err)
		}
		colors = append(colors, color)
	}
	return colors, nil
}

func parsePixels(arg string) (uint16, error) {
	n, err := strconv.ParseUint(arg, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid PIXELS %q", arg)
	}
	return uint16(n), nil
}

// WS2812Frame builds the SetWS2812 frame of the ws2812 command.
func WS2812Frame(addr upxl.Address, order string, pixels uint16, colors [][]byte) (*upxl.Frame, error) {
	co, err := upxl.ParseColorOrder(order)
	if err != nil {
		return nil, err
	}
	ch := upxl.WS2812{Elements: uint8(len(order)), Order: co, Pixels: pixels}
	data, err := Fill(int(pixels), int(ch.Elements), colors...)
	if err != nil {
		return nil, err
	}
	return upxl.WS2812Frame(addr, ch, data), nil
}

// APA102Frames builds the clock and data frames of the apa102 command.
func APA102Frames(data, clock upxl.Address, freq physic.Frequency, order string, pixels uint16, colors [][]byte) ([]*upxl.Frame, error) {
	co, err := upxl.ParseColorOrder(order)
	if err != nil {
		return nil, err
	}
	if len(order) != 3 {
		return nil, fmt.Errorf("invalid APA102 color order %q", order)
	}
	ch := upxl.APA102Data{Frequency: freq, Order: co, Pixels: pixels}
	leds, err := Fill(int(pixels), 3, colors...)
	if err != nil {
		return nil, err
	}
	return []*upxl.Frame{
		upxl.APA102ClockFrame(clock, upxl.APA102Clock{Frequency: freq}),
		upxl.APA102DataFrame(data, ch, leds),
	}, nil
}

var (
	// WS2812Cmd sets a WS2812 channel.
	WS2812Cmd = ishell.Cmd{
		Name:    "ws2812",
		Aliases: []string{"ws"},
		Help:    "OUTPUT PIXELS ORDER(GRB|GRBW|...) [COLOR(hex)...]",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			if len(c.Args) < 3 {
				c.Err(fmt.Errorf("OUTPUT PIXELS ORDER required"))
				return
			}
			s := sh.ShellFrom(c)
			output, err := sh.ParseOutput(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			pixels, err := parsePixels(c.Args[1])
			if err != nil {
				c.Err(err)
				return
			}
			colors, err := parseColors(c.Args[3:])
			if err != nil {
				c.Err(err)
				return
			}
			f, err := WS2812Frame(s.Address(output), c.Args[2], pixels, colors)
			if err == nil {
				err = s.Send(f)
			}
			if err != nil {
				c.Err(err)
			}
		}),
	}

	// APA102Cmd sets an APA102 data channel and its clock channel.
	APA102Cmd = ishell.Cmd{
		Name:    "apa102",
		Aliases: []string{"apa"},
		Help:    "DATA-OUTPUT CLOCK-OUTPUT FREQ(Hz) PIXELS ORDER(BGR|...) [COLOR(hex)...]",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			if len(c.Args) < 5 {
				c.Err(fmt.Errorf("DATA-OUTPUT CLOCK-OUTPUT FREQ PIXELS ORDER required"))
				return
			}
			s := sh.ShellFrom(c)
			data, err := sh.ParseOutput(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			clock, err := sh.ParseOutput(c.Args[1])
			if err != nil {
				c.Err(err)
				return
			}
			freq, err := strconv.ParseUint(c.Args[2], 10, 32)
			if err != nil || freq == 0 {
				c.Err(fmt.Errorf("invalid FREQ %q", c.Args[2]))
				return
			}
			pixels, err := parsePixels(c.Args[3])
			if err != nil {
				c.Err(err)
				return
			}
			colors, err := parseColors(c.Args[5:])
			if err != nil {
				c.Err(err)
				return
			}
			frames, err := APA102Frames(s.Address(data), s.Address(clock),
				physic.Frequency(freq)*physic.Hertz, c.Args[4], pixels, colors)
			if err == nil {
				err = s.Send(frames...)
			}
			if err != nil {
				c.Err(err)
			}
		}),
	}

	// DrawCmd draws all channels on all devices.
	DrawCmd = ishell.Cmd{
		Name: "draw",
		Help: "",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			if err := sh.ShellFrom(c).Send(upxl.DrawAllFrame()); err != nil {
				c.Err(err)
			}
		}),
	}
)

func init() {
	sh.AddCmds(
		&WS2812Cmd,
		&APA102Cmd,
		&DrawCmd,
	)
}
