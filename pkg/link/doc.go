// Package link provides the byte transport feeding the decoder: a ring
// buffer with a CRC accumulator, the inputs writing into it and the
// sinks senders write frames to.
package link
