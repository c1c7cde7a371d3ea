package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/eapache/queue"
)

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("dispatch: dispatcher closed")

// Runnable is one slice of work. The worker invokes it with its own name so
// task code can report which worker executed it.
type Runnable func(worker string)

// Dispatcher runs submitted work on a fixed pool of workers fed from an
// unbounded FIFO queue. The zero value is not usable; use one of the
// constructors.
//
// Work submitted to the same dispatcher starts in submission order. Nothing
// beyond FIFO-per-queue is guaranteed: with more than one worker, slices
// overlap freely.
type Dispatcher struct {
	name   string
	inline bool
	spawn  bool

	mu     sync.Mutex
	cond   *sync.Cond
	q      *queue.Queue
	closed bool

	wg sync.WaitGroup
}

// NewMain returns a dispatcher with a single worker pinned to its OS thread.
// It stands in for a UI/main thread: everything submitted to it runs on that
// one thread, serially.
func NewMain() *Dispatcher {
	return newPool("main", 1, true)
}

// DefaultIOWorkers is the pool size NewIO uses when given n <= 0.
const DefaultIOWorkers = 64

// NewIO returns a dispatcher intended for blocking work. The pool is large
// so that blocked workers do not starve the rest of the queue.
func NewIO(n int) *Dispatcher {
	if n <= 0 {
		n = DefaultIOWorkers
	}
	return newPool("io", n, false)
}

// NewCompute returns a dispatcher for CPU-bound work, sized near the number
// of usable cores.
func NewCompute(n int) *Dispatcher {
	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
	}
	return newPool("compute", n, false)
}

// Goroutines returns a dispatcher that gives every runnable its own
// goroutine: the unbounded-pool policy. It provides no ordering or
// confinement guarantees beyond what the Go scheduler does.
func Goroutines() *Dispatcher {
	return &Dispatcher{name: "goroutines", spawn: true}
}

// Unconfined returns the passthrough dispatcher: Submit runs the runnable
// inline on the calling goroutine. There is no thread confinement: after a
// suspension point, the continuation runs on whichever goroutine drives the
// resumption (a timer, another dispatcher's worker). Documented foot-gun.
func Unconfined() *Dispatcher {
	return &Dispatcher{name: "unconfined", inline: true}
}

func newPool(name string, workers int, pin bool) *Dispatcher {
	d := &Dispatcher{name: name, q: queue.New()}
	d.cond = sync.NewCond(&d.mu)
	d.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go d.work(fmt.Sprintf("%s-%d", name, i), pin)
	}
	return d
}

// Name returns the dispatcher's name.
func (d *Dispatcher) Name() string { return d.name }

// Submit enqueues r. It never blocks the caller. On the unconfined
// dispatcher it runs r before returning.
func (d *Dispatcher) Submit(r Runnable) error {
	if r == nil {
		return nil
	}
	if d.inline {
		r(d.name)
		return nil
	}
	if d.spawn {
		go r(d.name)
		return nil
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	d.q.Add(r)
	d.cond.Signal()
	d.mu.Unlock()
	return nil
}

// Close stops intake. Workers drain what is already queued and exit.
func (d *Dispatcher) Close() {
	if d.inline || d.spawn {
		return
	}
	d.mu.Lock()
	d.closed = true
	d.cond.Broadcast()
	d.mu.Unlock()
}

// Join blocks until all workers have exited. Call Close first.
func (d *Dispatcher) Join() {
	d.wg.Wait()
}

func (d *Dispatcher) work(worker string, pin bool) {
	defer d.wg.Done()
	if pin {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
	}
	for {
		d.mu.Lock()
		for d.q.Length() == 0 && !d.closed {
			d.cond.Wait()
		}
		if d.q.Length() == 0 {
			d.mu.Unlock()
			return
		}
		r := d.q.Remove().(Runnable)
		d.mu.Unlock()
		r(worker)
	}
}

type workerKey struct{}

// WithWorker tags ctx with the name of the executing worker.
func WithWorker(ctx context.Context, worker string) context.Context {
	return context.WithValue(ctx, workerKey{}, worker)
}

// WorkerName reports which worker is executing the current slice, or ""
// outside of one.
func WorkerName(ctx context.Context) string {
	name, _ := ctx.Value(workerKey{}).(string)
	return name
}
