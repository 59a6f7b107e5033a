// Package upxl implements the UPXL LED output expander protocol.
package upxl

// UPXL frames are sent by a pixel source over a half-duplex serial link
// and describe pixel data for up to 8 output channels per device. Several
// devices may share one link, each one selecting frames by a 3-bit bus ID.
//
// A frame starts with the magic "UPXL", followed by the channel address,
// the record type, a record specific payload and an optional CRC32 of
// everything before it. Pixel data is encoded into a shared bit-plane
// buffer as soon as it arrives and a DrawAll record clocks all enabled
// channels out in parallel.
//
// The package is organized around Engine, which owns the channel table,
// the bit-plane buffer, the Decoder and the Scheduler. The byte transport
// (Source) and the output hardware (Pipeline) are supplied by the caller.
//
// Producer: pixel source (e.g. a Pixelblaze controller)
// Consumer: LED output expander
