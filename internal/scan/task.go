package scan

import "context"

// Task is a scan phase running in the background.
type Task[T any] struct {
	done     chan struct{}
	progress chan Snapshot
	cancel   context.CancelFunc

	result T
	err    error
}

func startTask[T any](ctx context.Context, run func(ctx context.Context, report func(Snapshot)) (T, error)) *Task[T] {
	ctx, cancel := context.WithCancel(ctx)
	t := &Task[T]{
		done:     make(chan struct{}),
		progress: make(chan Snapshot, 1),
		cancel:   cancel,
	}
	go func() {
		defer close(t.done)
		defer close(t.progress)
		defer cancel()
		t.result, t.err = run(ctx, t.report)
	}()
	return t
}

// report delivers the newest snapshot, replacing one the reader has not
// picked up yet.
func (t *Task[T]) report(s Snapshot) {
	for {
		select {
		case t.progress <- s:
			return
		default:
		}
		select {
		case <-t.progress:
		default:
		}
	}
}

// Done is closed when the task has finished.
func (t *Task[T]) Done() <-chan struct{} { return t.done }

// Progress delivers snapshots while the task runs and is closed when it
// finishes. Slow readers only see the latest snapshot.
func (t *Task[T]) Progress() <-chan Snapshot { return t.progress }

// Cancel asks the task to stop. Wait still has to be called for the result.
func (t *Task[T]) Cancel() { t.cancel() }

// Wait blocks until the task finishes.
func (t *Task[T]) Wait() (T, error) {
	<-t.done
	return t.result, t.err
}
