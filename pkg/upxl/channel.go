package upxl

import (
	"fmt"
	"strings"

	"periph.io/x/conn/v3/physic"
)

// Capacity is the number of bytes (bit-plane blocks) per channel.
const Capacity = 4808

// Kind is the discriminant of a channel configuration.
type Kind byte

// Channel kinds, values match the record type that sets them.
const (
	KindNone        Kind = 0
	KindWS2812      Kind = Kind(RecordSetWS2812)
	KindAPA102Data  Kind = Kind(RecordSetAPA102Data)
	KindAPA102Clock Kind = Kind(RecordSetAPA102Clock)
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindWS2812:
		return "ws2812"
	case KindAPA102Data:
		return "apa102-data"
	case KindAPA102Clock:
		return "apa102-clock"
	}
	return fmt.Sprintf("kind(%d)", byte(k))
}

// Config is the configuration of one channel. It is one of WS2812,
// APA102Data or APA102Clock.
type Config interface {
	Kind() Kind
	// ByteLen is the number of encoded bytes the channel occupies.
	ByteLen() int
	Enabled() bool

	isConfig()
}

// ColorOrder maps color components to byte positions within a pixel:
// red in bits 0-1, green in bits 2-3, blue in bits 4-5, white in bits 6-7.
type ColorOrder byte

// Common color orders.
const (
	OrderRGB  ColorOrder = 0 | 1<<2 | 2<<4 | 3<<6
	OrderGRB  ColorOrder = 1 | 0<<2 | 2<<4 | 3<<6
	OrderBGR  ColorOrder = 2 | 1<<2 | 0<<4 | 3<<6
	OrderGRBW ColorOrder = OrderGRB
	OrderRGBW ColorOrder = OrderRGB
)

// Positions returns the byte positions of red, green, blue and white.
func (o ColorOrder) Positions() [4]uint8 {
	return [4]uint8{uint8(o) & 3, uint8(o>>2) & 3, uint8(o>>4) & 3, uint8(o>>6) & 3}
}

// String returns the component letters in output order, e.g. "GRB".
func (o ColorOrder) String() string {
	var out [4]byte
	for i := range out {
		out[i] = '-'
	}
	for n, pos := range o.Positions() {
		if out[pos] == '-' {
			out[pos] = "RGBW"[n]
		}
	}
	return strings.TrimRight(string(out[:]), "-")
}

// ParseColorOrder parses strings like "GRB" or "rgbw".
func ParseColorOrder(s string) (ColorOrder, error) {
	s = strings.ToUpper(s)
	if len(s) < 3 || len(s) > 4 {
		return 0, fmt.Errorf("invalid color order %q", s)
	}
	pos := [4]uint8{0, 1, 2, 3}
	var seen [4]bool
	for i, c := range []byte(s) {
		n := strings.IndexByte("RGBW", c)
		if n < 0 || seen[n] {
			return 0, fmt.Errorf("invalid color order %q", s)
		}
		seen[n], pos[n] = true, uint8(i)
	}
	if len(s) == 3 {
		if seen[3] {
			return 0, fmt.Errorf("invalid color order %q", s)
		}
		pos[3] = 3
	}
	return ColorOrder(pos[0] | pos[1]<<2 | pos[2]<<4 | pos[3]<<6), nil
}

// WS2812 is a WS2812-family channel.
type WS2812 struct {
	// Elements is 3 (RGB) or 4 (RGBW), 0 disables the channel.
	Elements uint8
	Order    ColorOrder
	Pixels   uint16
}

// Kind implements Config.
func (WS2812) Kind() Kind { return KindWS2812 }

// ByteLen implements Config.
func (c WS2812) ByteLen() int { return int(c.Pixels) * int(c.Elements) }

// Enabled implements Config.
func (c WS2812) Enabled() bool { return c.Elements != 0 }

func (WS2812) isConfig() {}

// APA102Data is the data line of an APA102-family channel.
type APA102Data struct {
	// Frequency is the requested clock, 0 disables the channel.
	Frequency physic.Frequency
	Order     ColorOrder
	Pixels    uint16
}

// Kind implements Config.
func (APA102Data) Kind() Kind { return KindAPA102Data }

// ByteLen implements Config, including start and end frames.
func (c APA102Data) ByteLen() int { return (int(c.Pixels) + 2) * 4 }

// Enabled implements Config.
func (c APA102Data) Enabled() bool { return c.Frequency != 0 }

func (APA102Data) isConfig() {}

// APA102Clock is the clock line of an APA102-family channel.
type APA102Clock struct {
	Frequency physic.Frequency
}

// Kind implements Config.
func (APA102Clock) Kind() Kind { return KindAPA102Clock }

// ByteLen implements Config. The clock line carries no data.
func (APA102Clock) ByteLen() int { return 0 }

// Enabled implements Config.
func (c APA102Clock) Enabled() bool { return c.Frequency != 0 }

func (APA102Clock) isConfig() {}

// disabled returns the disabled config of the same kind.
func disabled(c Config) Config {
	switch c.(type) {
	case WS2812:
		return WS2812{}
	case APA102Data:
		return APA102Data{}
	case APA102Clock:
		return APA102Clock{}
	}
	return nil
}

// Table holds the configurations of all outputs, nil means never set.
type Table [Channels]Config

// KindOf returns the kind of an output.
func (t *Table) KindOf(output uint8) Kind {
	if int(output) >= len(t) || t[output] == nil {
		return KindNone
	}
	return t[output].Kind()
}

// Reset disables all outputs.
func (t *Table) Reset() {
	*t = Table{}
}
