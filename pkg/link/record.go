package link

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/klauspost/compress/zstd"

	"github.com/robotalks/upxl/pkg/framework"
)

// Capture format: a zstd stream of chunks, each chunk is
//
//	uvarint  microseconds since the previous chunk
//	uvarint  length
//	bytes    data

// MaxChunkSize limits the length of a chunk read from a capture.
const MaxChunkSize = 1 << 24

// Recorder writes a capture, every Write is one chunk.
type Recorder struct {
	Clock framework.TimeSource

	enc  *zstd.Encoder
	file io.Closer
	last time.Time
	hdr  [2 * binary.MaxVarintLen64]byte
	lock sync.Mutex
}

// NewRecorder creates a Recorder writing to w.
func NewRecorder(w io.Writer) (*Recorder, error) {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderConcurrency(1))
	if err != nil {
		return nil, err
	}
	return &Recorder{Clock: framework.SystemClock{}, enc: enc}, nil
}

// CreateRecorder creates a capture file.
func CreateRecorder(path string) (*Recorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	r, err := NewRecorder(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	r.file = f
	return r, nil
}

// Write implements io.Writer.
func (r *Recorder) Write(p []byte) (int, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	now := r.Clock.Time()
	var delay time.Duration
	if !r.last.IsZero() && now.After(r.last) {
		delay = now.Sub(r.last)
	}
	r.last = now
	n := binary.PutUvarint(r.hdr[:], uint64(delay/time.Microsecond))
	n += binary.PutUvarint(r.hdr[n:], uint64(len(p)))
	if _, err := r.enc.Write(r.hdr[:n]); err != nil {
		return 0, err
	}
	return r.enc.Write(p)
}

// Flush writes buffered chunks to the underlying writer.
func (r *Recorder) Flush() error {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.enc.Flush()
}

// Close implements io.Closer.
func (r *Recorder) Close() error {
	r.lock.Lock()
	defer r.lock.Unlock()
	var errs framework.AggregatedError
	errs.Add(r.enc.Close())
	if r.file != nil {
		errs.Add(r.file.Close())
	}
	return errs.Aggregate()
}

// Chunk is one recorded write.
type Chunk struct {
	Delay time.Duration
	Data  []byte
}

// ChunkReader reads chunks from a capture.
type ChunkReader struct {
	dec *zstd.Decoder
	r   *bufio.Reader
}

// NewChunkReader creates a ChunkReader.
func NewChunkReader(r io.Reader) (*ChunkReader, error) {
	dec, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, err
	}
	return &ChunkReader{dec: dec, r: bufio.NewReader(dec)}, nil
}

// Next returns the next chunk or io.EOF.
func (c *ChunkReader) Next() (*Chunk, error) {
	us, err := binary.ReadUvarint(c.r)
	if err != nil {
		return nil, err
	}
	size, err := binary.ReadUvarint(c.r)
	if err != nil {
		return nil, truncated(err)
	}
	if size > MaxChunkSize {
		return nil, fmt.Errorf("chunk size %d exceeds limit", size)
	}
	chunk := &Chunk{Delay: time.Duration(us) * time.Microsecond, Data: make([]byte, size)}
	if _, err = io.ReadFull(c.r, chunk.Data); err != nil {
		return nil, truncated(err)
	}
	return chunk, nil
}

// Close releases the decoder.
func (c *ChunkReader) Close() {
	c.dec.Close()
}

func truncated(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}

// Replay is a Source playing a capture with the recorded timing.
type Replay struct {
	Path string
	// Speed scales the playback, 2 plays twice as fast.
	Speed float64
	Loop  bool
}

// Run implements Source. A looped capture without chunks is played once.
func (r *Replay) Run(ctx context.Context, w io.Writer) error {
	for {
		played, err := r.play(ctx, w)
		if err == ErrClosed {
			return nil
		}
		if err != nil {
			return err
		}
		if !r.Loop {
			return nil
		}
		if played == 0 {
			glog.Warningf("replay %s: empty capture", r.Path)
			return nil
		}
	}
}

// play writes all chunks of the capture and returns the number played.
func (r *Replay) play(ctx context.Context, w io.Writer) (int, error) {
	f, err := os.Open(r.Path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	cr, err := NewChunkReader(f)
	if err != nil {
		return 0, err
	}
	defer cr.Close()

	speed := r.Speed
	if speed <= 0 {
		speed = 1
	}
	glog.Infof("replay %s at %vx", r.Path, speed)
	for played := 0; ; played++ {
		chunk, err := cr.Next()
		if err == io.EOF {
			return played, nil
		}
		if err != nil {
			return played, err
		}
		if delay := time.Duration(float64(chunk.Delay) / speed); delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return played, ctx.Err()
			case <-timer.C:
			}
		} else if err := ctx.Err(); err != nil {
			return played, err
		}
		if _, err := w.Write(chunk.Data); err != nil {
			return played, err
		}
	}
}
