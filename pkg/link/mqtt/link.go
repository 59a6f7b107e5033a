package mqtt

import (
	"context"
	"io"
	"time"
)

// DefaultTimeout limits connecting and publishing.
const DefaultTimeout = 5 * time.Second

// Source writes the payload of messages published to the frames topic
// into the link.
type Source struct {
	Queue *Queue
	Topic string
}

// NewSource creates a Source from a broker URL.
func NewSource(brokerURL string) (*Source, error) {
	q, err := NewQueueFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	return &Source{Queue: q, Topic: FramesTopic}, nil
}

// Run subscribes and writes messages into w until ctx is canceled.
func (s *Source) Run(ctx context.Context, w io.Writer) error {
	errCh := make(chan error, 1)
	sub := s.Queue.Sub(s.Topic, func(topic string, payload []byte) {
		if _, err := w.Write(payload); err != nil {
			select {
			case errCh <- err:
			default:
			}
		}
	})
	defer s.Queue.Close()
	defer sub.Close()
	if token := s.Queue.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Sink publishes every write as one message to the frames topic.
type Sink struct {
	Queue   *Queue
	Topic   string
	QoS     byte
	Timeout time.Duration
}

// NewSink connects to the broker.
func NewSink(brokerURL string) (*Sink, error) {
	q, err := NewQueueFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	s := &Sink{Queue: q, Topic: FramesTopic, Timeout: DefaultTimeout}
	if err := wait(q.Connect(), s.Timeout); err != nil {
		return nil, err
	}
	return s, nil
}

// Write implements io.Writer.
func (s *Sink) Write(p []byte) (int, error) {
	if err := wait(s.Queue.PubWith(s.Topic, p, s.QoS, false), s.Timeout); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close implements io.Closer.
func (s *Sink) Close() error {
	return s.Queue.Close()
}
