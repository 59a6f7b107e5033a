package link

import (
	"context"
	"io"
	"time"

	"github.com/golang/glog"
	"github.com/jpillora/backoff"

	"github.com/robotalks/upxl/pkg/framework"
)

// Source is a link input, it writes the received byte stream into w
// until ctx is canceled.
type Source interface {
	Run(ctx context.Context, w io.Writer) error
}

// Opener opens a stream, e.g. connects, accepts or opens a device.
type Opener interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// OpenFunc is the func form of Opener.
type OpenFunc func(ctx context.Context) (io.ReadCloser, error)

// Open implements Opener.
func (f OpenFunc) Open(ctx context.Context) (io.ReadCloser, error) {
	return f(ctx)
}

// Pump copies streams from an Opener into a writer. The stream is
// reopened with backoff when it fails, and also when it ends if Reopen
// is set, e.g. a serial device which disappeared.
type Pump struct {
	Name    string
	Opener  Opener
	Reopen  bool
	Backoff *backoff.Backoff
}

// NewPump creates a Pump with the default backoff.
func NewPump(name string, opener Opener, reopen bool) *Pump {
	return &Pump{
		Name:   name,
		Opener: opener,
		Reopen: reopen,
		Backoff: &backoff.Backoff{
			Min:    100 * time.Millisecond,
			Max:    10 * time.Second,
			Factor: 2,
		},
	}
}

// Run implements Source. Reopening after the end of a stream waits at
// least Backoff.Min, and longer while streams end without data.
func (p *Pump) Run(ctx context.Context, w io.Writer) error {
	for {
		var copied int64
		rc, err := p.Opener.Open(ctx)
		if err == nil {
			glog.Infof("%s: opened", p.Name)
			err = framework.RunWithContextCloser(ctx, rc, func() error {
				n, err := io.Copy(w, rc)
				copied = n
				return err
			})
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		switch {
		case err == ErrClosed:
			return nil
		case err == nil:
			if !p.Reopen {
				glog.Infof("%s: end of stream", p.Name)
				return nil
			}
			if copied > 0 {
				p.Backoff.Reset()
			}
			glog.V(1).Infof("%s: end of stream, reopen", p.Name)
		default:
			glog.Warningf("%s: %v", p.Name, err)
		}
		delay := p.Backoff.Duration()
		glog.V(1).Infof("%s: reopen in %v", p.Name, delay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}
