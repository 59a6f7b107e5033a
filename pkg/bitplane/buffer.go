// Package bitplane provides the multi-channel bit-plane buffer read by
// the parallel output pipeline.
package bitplane

import "encoding/binary"

// Layout of the buffer:
//
// Each encoded input byte occupies one block of two 32-bit words. Every
// byte lane of a word is one bit-time on the output port and bit N of a
// lane drives output channel N. The first word of a block carries the
// high nibble (MSB in lane 0), the second word the low nibble, so reading
// the buffer as little-endian bytes yields the pin states in the order
// they are clocked out.

// Channels is the number of output channels packed in a lane.
const Channels = 8

// WordsPerBlock is the number of words used by one encoded byte.
const WordsPerBlock = 2

// BitsPerBlock is the number of bit-times of one encoded byte.
const BitsPerBlock = 8

var (
	// keepMasks[c] clears channel c in all 4 lanes of a word.
	keepMasks [Channels]uint32
	// spreads[c][n] places nibble n (MSB first) into channel c of lanes 0..3.
	spreads [Channels][16]uint32
)

func init() {
	for c := uint(0); c < Channels; c++ {
		keepMasks[c] = ^(uint32(0x01010101) << c)
		for n := uint32(0); n < 16; n++ {
			var w uint32
			for lane := uint(0); lane < 4; lane++ {
				if n&(8>>lane) != 0 {
					w |= 1 << (lane*8 + c)
				}
			}
			spreads[c][n] = w
		}
	}
}

// Buffer is the bit-plane buffer for all channels.
type Buffer struct {
	words []uint32
}

// New creates a Buffer able to hold capacity bytes per channel.
func New(capacity int) *Buffer {
	return &Buffer{words: make([]uint32, capacity*WordsPerBlock)}
}

// Capacity returns the number of blocks (bytes per channel).
func (b *Buffer) Capacity() int {
	return len(b.words) / WordsPerBlock
}

// Words exposes the raw words.
func (b *Buffer) Words() []uint32 {
	return b.words
}

// Encode writes data into channel starting at block, one block per byte,
// most significant bit first. Channels out of range are ignored so frames
// addressed to other devices can be decoded without side effects.
func (b *Buffer) Encode(block int, channel uint8, data []byte) {
	if channel >= Channels {
		return
	}
	keep, spread := keepMasks[channel], &spreads[channel]
	words := b.words[block*WordsPerBlock : (block+len(data))*WordsPerBlock]
	for i, in := range data {
		o := words[i*WordsPerBlock : i*WordsPerBlock+WordsPerBlock]
		o[0] = o[0]&keep | spread[in>>4]
		o[1] = o[1]&keep | spread[in&0x0f]
	}
}

// Zero clears channel in count blocks starting at block.
func (b *Buffer) Zero(block int, channel uint8, count int) {
	if channel >= Channels {
		return
	}
	mask := keepMasks[channel]
	words := b.words[block*WordsPerBlock : (block+count)*WordsPerBlock]
	for i := range words {
		words[i] &= mask
	}
}

// One sets channel in count blocks starting at block.
func (b *Buffer) One(block int, channel uint8, count int) {
	if channel >= Channels {
		return
	}
	mask := ^keepMasks[channel]
	words := b.words[block*WordsPerBlock : (block+count)*WordsPerBlock]
	for i := range words {
		words[i] |= mask
	}
}

// Byte reads back the byte encoded in channel at block.
func (b *Buffer) Byte(block int, channel uint8) byte {
	if channel >= Channels {
		return 0
	}
	w0, w1 := b.words[block*WordsPerBlock], b.words[block*WordsPerBlock+1]
	var v byte
	for lane := uint(0); lane < 4; lane++ {
		shift := lane*8 + uint(channel)
		v |= byte((w0>>shift)&1) << (7 - lane)
		v |= byte((w1>>shift)&1) << (3 - lane)
	}
	return v
}

// Read reads back count bytes of channel starting at block.
func (b *Buffer) Read(block int, channel uint8, count int) []byte {
	out := make([]byte, count)
	for i := range out {
		out[i] = b.Byte(block+i, channel)
	}
	return out
}

// Lane returns the pin states of all channels at a bit-time.
func (b *Buffer) Lane(bit int) byte {
	return byte(b.words[bit/4] >> (uint(bit%4) * 8))
}

// Snapshot copies the first bits lanes in output order.
func (b *Buffer) Snapshot(bits int) []byte {
	out := make([]byte, (bits+3)&^3)
	for i := 0; i < len(out)/4; i++ {
		binary.LittleEndian.PutUint32(out[i*4:], b.words[i])
	}
	return out[:bits]
}

// Reset clears all channels.
func (b *Buffer) Reset() {
	for i := range b.words {
		b.words[i] = 0
	}
}

// Demux extracts the bytes of one channel from lanes captured by Snapshot.
func Demux(lanes []byte, channel uint8) []byte {
	if channel >= Channels {
		return nil
	}
	out := make([]byte, len(lanes)/BitsPerBlock)
	for i := range out {
		var v byte
		for _, lane := range lanes[i*BitsPerBlock : (i+1)*BitsPerBlock] {
			v = v<<1 | (lane>>channel)&1
		}
		out[i] = v
	}
	return out
}
