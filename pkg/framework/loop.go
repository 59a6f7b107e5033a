package framework

import (
	"context"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/golang/glog"
)

// Loop runs controllers periodically along with background runners.
type Loop struct {
	Interval time.Duration

	controllers []Controller
	runners     []Runnable
	iteration   uint64

	lock     sync.Mutex
	wakeUpCh chan struct{}
}

// LoopAdder provides specific logic to add components to loop.
type LoopAdder interface {
	AddToLoop(*Loop)
}

type loopIteration struct {
	*Loop
	ctx       context.Context
	time      time.Time
	iteration uint64
}

// NewLoop creates a Loop.
func NewLoop() *Loop {
	return &Loop{Interval: 100 * time.Millisecond}
}

// Add adds LoopAdders.
func (l *Loop) Add(adders ...LoopAdder) *Loop {
	for _, adder := range adders {
		adder.AddToLoop(l)
	}
	return l
}

// AddController registers controllers to the loop. Controllers which are
// also Runnable are started with the loop.
func (l *Loop) AddController(ctls ...Controller) *Loop {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.controllers = append(l.controllers, ctls...)
	for _, ctl := range ctls {
		if runner, ok := ctl.(Runnable); ok {
			l.runners = append(l.runners, runner)
		}
	}
	return l
}

// AddRunnable adds Runnable implementions.
func (l *Loop) AddRunnable(runnables ...Runnable) *Loop {
	l.lock.Lock()
	l.runners = append(l.runners, runnables...)
	l.lock.Unlock()
	return l
}

// Run implements Runnable. The loop stops when ctx is canceled or any of
// the runners exits, and returns the runner errors if any.
func (l *Loop) Run(ctx context.Context) error {
	l.lock.Lock()
	if l.wakeUpCh == nil {
		l.wakeUpCh = make(chan struct{}, 1)
	}
	registered := append([]Runnable(nil), l.runners...)
	l.lock.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	runners := make([]Runnable, 0, len(registered))
	for n, r := range registered {
		runners = append(runners, &cancelOnExit{Runnable: r, name: runnableName(r, n), cancel: cancel})
	}
	runner := NewRunnerWith(ctx).Go(runners...)
	stopCh := make(chan error, 1)
	go func() {
		stopCh <- runner.Wait()
	}()

	interval := l.Interval
	if interval == 0 {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if err := <-stopCh; err != nil {
				return err
			}
			return ctx.Err()
		case <-ticker.C:
			l.runIteration(ctx)
		case <-l.wakeUpCh:
			l.runIteration(ctx)
		}
	}
}

type cancelOnExit struct {
	Runnable
	name   string
	cancel func()
}

func (r *cancelOnExit) Name() string {
	return r.name
}

func (r *cancelOnExit) Run(ctx context.Context) error {
	defer r.cancel()
	return r.Runnable.Run(ctx)
}

func runnableName(r Runnable, index int) string {
	if named, ok := r.(Named); ok {
		return named.Name()
	}
	return strconv.Itoa(index)
}

// RunOrFail is intended to be used in main to simply run the loop.
func (l *Loop) RunOrFail(ctx context.Context) {
	if err := l.Run(ctx); err != nil && err != context.Canceled {
		log.Fatalln(err)
	}
}

// TriggerNext runs the next iteration immediately.
func (l *Loop) TriggerNext() {
	select {
	case l.wakeUpCh <- struct{}{}:
	default:
	}
}

func (l *Loop) runIteration(ctx context.Context) {
	l.lock.Lock()
	l.iteration++
	iter := &loopIteration{Loop: l, ctx: ctx, time: time.Now(), iteration: l.iteration}
	ctls := l.controllers
	l.lock.Unlock()
	for _, ctl := range ctls {
		if err := ctl.Control(iter); err != nil {
			glog.Errorf("controller error: %v", err)
		}
	}
}

func (t *loopIteration) Context() context.Context {
	return t.ctx
}

func (t *loopIteration) Time() time.Time {
	return t.time
}

func (t *loopIteration) Iteration() uint64 {
	return t.iteration
}
