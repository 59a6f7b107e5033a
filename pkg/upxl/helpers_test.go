package upxl

import (
	"context"
	"hash/crc32"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/upxl/pkg/bitplane"
)

type testSource struct {
	data []byte
	pos  int
	crc  uint32
}

func newTestSource(data ...[]byte) *testSource {
	s := &testSource{}
	for _, d := range data {
		s.data = append(s.data, d...)
	}
	return s
}

func (s *testSource) Available() int {
	return len(s.data) - s.pos
}

func (s *testSource) ReadByte() (byte, error) {
	if s.pos >= len(s.data) {
		return 0, ErrSourceClosed
	}
	b := s.data[s.pos]
	s.pos++
	s.crc = crc32.Update(s.crc, crc32.IEEETable, []byte{b})
	return b, nil
}

func (s *testSource) ResetCRC() {
	s.crc = 0
}

func (s *testSource) CRC() uint32 {
	return s.crc
}

func (s *testSource) WaitAvailable(ctx context.Context, n int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.Available() < n {
		return ErrSourceClosed
	}
	return nil
}

type testPipeline struct {
	xfers []*Transfer
	done  func()
	err   error
}

func (p *testPipeline) Arm(xfer *Transfer, done func()) error {
	if p.err != nil {
		return p.err
	}
	p.xfers, p.done = append(p.xfers, xfer), done
	return nil
}

func (p *testPipeline) complete() {
	p.done()
}

type testClock struct {
	now time.Time
}

func (c *testClock) Time() time.Time {
	return c.now
}

func (c *testClock) advance(d time.Duration) {
	c.now = c.now.Add(d)
}

type decoderTester struct {
	*Decoder
	pipeline *testPipeline
	clock    *testClock
}

func newDecoderTester(busID uint8) *decoderTester {
	stats := &Stats{}
	clock := &testClock{now: time.Unix(1000, 0)}
	pipeline := &testPipeline{}
	sched := NewScheduler(pipeline, stats)
	sched.Clock = clock
	return &decoderTester{
		Decoder: &Decoder{
			Table:      &Table{},
			Buffer:     bitplane.New(Capacity),
			Scheduler:  sched,
			Stats:      stats,
			Clock:      clock,
			BusID:      busID,
			UseCRC:     true,
			Brightness: DefaultBrightness,
		},
		pipeline: pipeline,
		clock:    clock,
	}
}

// decode feeds data and decodes until all bytes are consumed.
func (d *decoderTester) decode(t *testing.T, data ...[]byte) []Outcome {
	src := newTestSource(data...)
	d.Source = src
	var outcomes []Outcome
	for src.Available() > 0 {
		outcome, err := d.Decode()
		require.NoError(t, err)
		outcomes = append(outcomes, outcome)
	}
	require.Equal(t, StateAwaitingMagic, d.State())
	return outcomes
}

func (d *decoderTester) decodeOne(t *testing.T, data ...[]byte) Outcome {
	outcomes := d.decode(t, data...)
	require.Len(t, outcomes, 1)
	return outcomes[0]
}

func withCRC(f *Frame) []byte {
	f.CRC = true
	return f.Bytes()
}

func withoutCRC(f *Frame) []byte {
	f.CRC = false
	return f.Bytes()
}

func corrupted(b []byte) []byte {
	b[len(b)-1] ^= 0x5a
	return b
}

func pattern(n int, seed byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = seed + byte(i%199) + 1
	}
	return b
}
