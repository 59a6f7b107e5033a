// Package sim provides an output pipeline which only simulates the
// timing of transfers.
package sim

import (
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/upxl/pkg/upxl"
)

// Pipeline completes every transfer after its wire duration.
type Pipeline struct {
	// OnTransfer is called with every completed transfer.
	OnTransfer func(*upxl.Transfer)

	lock  sync.Mutex
	busy  bool
	last  *upxl.Transfer
	count uint64
}

// New creates a Pipeline.
func New() *Pipeline {
	return &Pipeline{}
}

// Arm implements upxl.Pipeline.
func (p *Pipeline) Arm(xfer *upxl.Transfer, done func()) error {
	p.lock.Lock()
	if p.busy {
		p.lock.Unlock()
		return upxl.ErrBusy
	}
	p.busy = true
	p.lock.Unlock()

	d := xfer.Duration()
	glog.V(2).Infof("sim transfer %d bits %v", xfer.Bits, d)
	time.AfterFunc(d, func() {
		p.lock.Lock()
		p.busy, p.last = false, xfer
		p.count++
		fn := p.OnTransfer
		p.lock.Unlock()
		if fn != nil {
			fn(xfer)
		}
		done()
	})
	return nil
}

// Last returns the last completed transfer.
func (p *Pipeline) Last() *upxl.Transfer {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.last
}

// Count returns the number of completed transfers.
func (p *Pipeline) Count() uint64 {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.count
}

// Busy tells if a transfer is in flight.
func (p *Pipeline) Busy() bool {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.busy
}
