package framework

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/golang/glog"
)

// ErrForcedExit is returned by Wait when a second stop signal arrives.
var ErrForcedExit = errors.New("forced exit")

type namedRunnable struct {
	Runnable
	name string
}

func (r *namedRunnable) Name() string {
	return r.name
}

// NamedRun wraps a Runnable with a name.
func NamedRun(name string, runnable Runnable) Runnable {
	return &namedRunnable{name: name, Runnable: runnable}
}

// Runner runs multiple Runnables and collects errors.
type Runner struct {
	Context context.Context
	Runners []Runnable

	errCh  chan error
	exitCh chan struct{}
}

// NewRunner creates a runner with a default background context.
func NewRunner() *Runner {
	return NewRunnerWith(context.Background())
}

// NewRunnerWith creates a runner with a specified context.
func NewRunnerWith(ctx context.Context) *Runner {
	return &Runner{
		Context: ctx,
		errCh:   make(chan error, 1),
		exitCh:  make(chan struct{}),
	}
}

// HandleSignals stops the runner on SIGINT or SIGTERM: the first signal
// cancels Context, a second one makes Wait give up on the Runnables
// still running.
func (r *Runner) HandleSignals() *Runner {
	return r.handleSignals(os.Interrupt, syscall.SIGTERM)
}

func (r *Runner) handleSignals(sigs ...os.Signal) *Runner {
	var cancel context.CancelFunc
	r.Context, cancel = context.WithCancel(r.Context)
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, sigs...)
	go func() {
		defer signal.Stop(sigCh)
		for count := 0; ; count++ {
			sig := <-sigCh
			if count > 0 {
				glog.Errorf("%v again, exiting", sig)
				close(r.exitCh)
				return
			}
			glog.Infof("%v, stopping", sig)
			cancel()
		}
	}()
	return r
}

// Go spawns Runnables with the runner context.
func (r *Runner) Go(runners ...Runnable) *Runner {
	return r.GoWith(r.Context, runners...)
}

// GoWith spawns Runnables with a specified context.
func (r *Runner) GoWith(ctx context.Context, runners ...Runnable) *Runner {
	for _, runner := range runners {
		name := runnableName(runner, len(r.Runners))
		r.Runners = append(r.Runners, runner)
		go func(runner Runnable, name string) {
			glog.V(4).Infof("Runner[%s] started", name)
			err := runner.Run(ctx)
			glog.V(4).Infof("Runner[%s] stopped: %v", name, err)
			r.errCh <- err
		}(runner, name)
	}
	return r
}

// Wait blocks until every spawned Runnable returns. Cancellation is not
// an error, other errors are aggregated.
func (r *Runner) Wait() error {
	var errs AggregatedError
	for pending := len(r.Runners); pending > 0; pending-- {
		var err error
		select {
		case <-r.exitCh:
			return ErrForcedExit
		case err = <-r.errCh:
		}
		if errors.Is(err, context.Canceled) {
			continue
		}
		errs.Add(err)
	}
	return errs.Aggregate()
}

// RunWithContextCancel adapts a blocking fn without context support.
// When ctx is done first, onCancel must unblock fn, and context.Canceled
// is returned once fn is back.
func RunWithContextCancel(ctx context.Context, onCancel func(), fn func() error) error {
	result := make(chan error, 1)
	go func() { result <- fn() }()
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
	}
	if onCancel != nil {
		onCancel()
	}
	<-result
	return context.Canceled
}

// RunWithContext is RunWithContextCancel without a cancel callback, fn
// must return by itself.
func RunWithContext(ctx context.Context, fn func() error) error {
	return RunWithContextCancel(ctx, nil, fn)
}

// RunWithContextCloser unblocks fn by closing closer on cancel. closer is
// closed exactly once either way.
func RunWithContextCloser(ctx context.Context, closer io.Closer, fn func() error) error {
	var once sync.Once
	closeOnce := func() { once.Do(func() { closer.Close() }) }
	defer closeOnce()
	return RunWithContextCancel(ctx, closeOnce, fn)
}
