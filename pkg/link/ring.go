package link

import (
	"context"
	"fmt"
	"hash/crc32"
	"sync"

	"github.com/robotalks/upxl/pkg/upxl"
)

// DefaultRingSize is the default capacity of a Ring.
const DefaultRingSize = 16 * 1024

// Ring is a fixed size circular byte buffer between the link inputs and
// the decoder. Writes block while the ring is full, reads block while it
// is empty. Every byte read is accumulated into a CRC32 (IEEE).
type Ring struct {
	buf    []byte
	head   int
	size   int
	closed bool

	crc      uint32
	received uint64
	one      [1]byte

	lock    sync.Mutex
	changed chan struct{}
}

// NewRing creates a Ring holding up to size bytes.
func NewRing(size int) *Ring {
	if size <= 0 {
		size = DefaultRingSize
	}
	return &Ring{buf: make([]byte, size), changed: make(chan struct{})}
}

// notify wakes up all waiters, must be called with lock held.
func (r *Ring) notify() {
	close(r.changed)
	r.changed = make(chan struct{})
}

// Cap returns the capacity.
func (r *Ring) Cap() int {
	return len(r.buf)
}

// Write implements io.Writer. It blocks until all of p is buffered or
// the ring is closed.
func (r *Ring) Write(p []byte) (int, error) {
	written := 0
	for written < len(p) {
		r.lock.Lock()
		if r.closed {
			r.lock.Unlock()
			return written, ErrClosed
		}
		if r.size == len(r.buf) {
			ch := r.changed
			r.lock.Unlock()
			<-ch
			continue
		}
		tail := (r.head + r.size) % len(r.buf)
		end := len(r.buf)
		if tail < r.head {
			end = r.head
		}
		n := copy(r.buf[tail:end], p[written:])
		r.size += n
		r.received += uint64(n)
		written += n
		r.notify()
		r.lock.Unlock()
	}
	return written, nil
}

// Available implements upxl.Source.
func (r *Ring) Available() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.size
}

// ReadByte implements upxl.Source. After Close it drains the buffered
// bytes and then returns upxl.ErrSourceClosed.
func (r *Ring) ReadByte() (byte, error) {
	for {
		r.lock.Lock()
		if r.size > 0 {
			b := r.buf[r.head]
			r.head = (r.head + 1) % len(r.buf)
			r.size--
			r.one[0] = b
			r.crc = crc32.Update(r.crc, crc32.IEEETable, r.one[:])
			r.notify()
			r.lock.Unlock()
			return b, nil
		}
		if r.closed {
			r.lock.Unlock()
			return 0, upxl.ErrSourceClosed
		}
		ch := r.changed
		r.lock.Unlock()
		<-ch
	}
}

// ResetCRC implements upxl.Source.
func (r *Ring) ResetCRC() {
	r.lock.Lock()
	r.crc = 0
	r.lock.Unlock()
}

// CRC implements upxl.Source.
func (r *Ring) CRC() uint32 {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.crc
}

// WaitAvailable implements upxl.Source.
func (r *Ring) WaitAvailable(ctx context.Context, n int) error {
	if n > len(r.buf) {
		return fmt.Errorf("wait for %d bytes exceeds ring size %d", n, len(r.buf))
	}
	for {
		r.lock.Lock()
		if r.size >= n {
			r.lock.Unlock()
			return nil
		}
		if r.closed {
			r.lock.Unlock()
			return upxl.ErrSourceClosed
		}
		ch := r.changed
		r.lock.Unlock()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}

// Received returns the total number of bytes written.
func (r *Ring) Received() uint64 {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.received
}

// Close implements io.Closer. Pending writes fail with ErrClosed.
func (r *Ring) Close() error {
	r.lock.Lock()
	if !r.closed {
		r.closed = true
		r.notify()
	}
	r.lock.Unlock()
	return nil
}
