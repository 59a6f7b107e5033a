package upxl

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"

	"periph.io/x/conn/v3/physic"
)

// Magic starts every frame. 0x55 is friendly to auto baud rate detection.
var Magic = [4]byte{'U', 'P', 'X', 'L'}

// RecordType defines the type of a frame.
type RecordType byte

// Record types.
const (
	RecordSetWS2812      RecordType = 1
	RecordDrawAll        RecordType = 2
	RecordSetAPA102Data  RecordType = 3
	RecordSetAPA102Clock RecordType = 4
)

// String implements fmt.Stringer.
func (t RecordType) String() string {
	switch t {
	case RecordSetWS2812:
		return "SetWS2812"
	case RecordDrawAll:
		return "DrawAll"
	case RecordSetAPA102Data:
		return "SetAPA102Data"
	case RecordSetAPA102Clock:
		return "SetAPA102Clock"
	}
	return fmt.Sprintf("Record(%d)", byte(t))
}

// Frame layout sizes.
const (
	HeaderSize = len("UPXL") + 2
	CRCSize    = 4
	// MinFrameSize is the number of bytes buffered before decoding starts.
	MinFrameSize = HeaderSize + 3

	ws2812HeaderSize      = 4
	apa102DataHeaderSize  = 7
	apa102ClockHeaderSize = 4
)

// Channels is the number of outputs of a device.
const Channels = 8

// NoOutput is the output of a frame addressed to another device.
const NoOutput uint8 = 0xff

// Address is the channel byte of a frame: bus ID in bits 3-5, and the
// reversed output in bits 0-2.
type Address byte

// MakeAddress builds the address of an output on a bus.
func MakeAddress(busID, output uint8) Address {
	return Address((busID&7)<<3 | (7 - output&7))
}

// BusID returns the target bus ID.
func (a Address) BusID() uint8 {
	return uint8(a) >> 3
}

// Output returns the physical output, outputs are numbered in reverse.
func (a Address) Output() uint8 {
	return 7 - uint8(a)&7
}

// Remap returns the physical output if addressed to busID, otherwise NoOutput.
func (a Address) Remap(busID uint8) uint8 {
	if a.BusID() != busID {
		return NoOutput
	}
	return a.Output()
}

// Frame is an encodable UPXL frame.
type Frame struct {
	Address Address
	Type    RecordType
	Payload []byte
	// CRC appends the CRC32 trailer.
	CRC bool
}

// Bytes returns encoded bytes for sending.
func (f *Frame) Bytes() []byte {
	b := make([]byte, 0, HeaderSize+len(f.Payload)+CRCSize)
	b = append(b, Magic[:]...)
	b = append(b, byte(f.Address), byte(f.Type))
	b = append(b, f.Payload...)
	if f.CRC {
		var sum [CRCSize]byte
		binary.LittleEndian.PutUint32(sum[:], crc32.ChecksumIEEE(b))
		b = append(b, sum[:]...)
	}
	return b
}

// WriteTo writes the encoded frame with a single Write.
func (f *Frame) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(f.Bytes())
	return int64(n), err
}

// WS2812Frame builds a SetWS2812 frame. pixels holds Pixels*Elements
// bytes in RGB(W) order.
func WS2812Frame(addr Address, ch WS2812, pixels []byte) *Frame {
	p := make([]byte, ws2812HeaderSize, ws2812HeaderSize+len(pixels))
	p[0], p[1] = ch.Elements, byte(ch.Order)
	binary.LittleEndian.PutUint16(p[2:], ch.Pixels)
	return &Frame{Address: addr, Type: RecordSetWS2812, Payload: append(p, pixels...)}
}

// APA102DataFrame builds a SetAPA102Data frame. pixels holds Pixels*3
// bytes in RGB order.
func APA102DataFrame(addr Address, ch APA102Data, pixels []byte) *Frame {
	p := make([]byte, apa102DataHeaderSize, apa102DataHeaderSize+len(pixels))
	binary.LittleEndian.PutUint32(p, uint32(ch.Frequency/physic.Hertz))
	p[4] = byte(ch.Order)
	binary.LittleEndian.PutUint16(p[5:], ch.Pixels)
	return &Frame{Address: addr, Type: RecordSetAPA102Data, Payload: append(p, pixels...)}
}

// APA102ClockFrame builds a SetAPA102Clock frame.
func APA102ClockFrame(addr Address, ch APA102Clock) *Frame {
	p := make([]byte, apa102ClockHeaderSize)
	binary.LittleEndian.PutUint32(p, uint32(ch.Frequency/physic.Hertz))
	return &Frame{Address: addr, Type: RecordSetAPA102Clock, Payload: p}
}

// DrawAllFrame builds a DrawAll frame. It is a broadcast to all devices.
func DrawAllFrame() *Frame {
	return &Frame{Type: RecordDrawAll}
}
