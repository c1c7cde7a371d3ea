package coro

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/akondrashev/coroscope/dispatch"
)

// Status is a task's position in its lifecycle.
type Status int32

const (
	StatusNew Status = iota
	StatusRunning
	StatusSuspended
	StatusCompleted
	StatusCancelled
	StatusFailed
)

// Terminal reports whether s is a final state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusFailed
}

func (s Status) String() string {
	switch s {
	case StatusNew:
		return "new"
	case StatusRunning:
		return "running"
	case StatusSuspended:
		return "suspended"
	case StatusCompleted:
		return "completed"
	case StatusCancelled:
		return "cancelled"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Hooks receive task lifecycle events. All fields are optional. OnFinish is
// called exactly once, after the task's Done channel is closed.
type Hooks struct {
	OnStart   func()
	OnSuspend func(reason string)
	OnResume  func()
	OnFinish  func(st Status, dur time.Duration, err error, panicked bool)
}

// Config controls a task's runtime behavior.
type Config struct {
	// PanicAsError converts a panic in a Step into a Failed outcome.
	// When false the panic propagates on the worker goroutine after the
	// task is marked Failed.
	PanicAsError bool
	Hooks        Hooks
}

// Handle identifies a task and exposes its outcome. A task belongs to one
// owner for its whole life; the owner observes termination through Hooks,
// everyone else through Done/State/Err.
type Handle struct {
	id    uuid.UUID
	ctx   context.Context
	cfg   Config
	body  Step
	root  *frame
	state atomic.Int32
	begin time.Time

	stopWatch func() bool

	mu       sync.Mutex
	finished bool
	err      error
	subs     []func()
	panicked bool

	done chan struct{}
}

// frame is one level of the continuation: the dispatcher the chain runs on
// and, for a Transfer body, where to go back to when the chain ends.
type frame struct {
	t    *Handle
	d    *dispatch.Dispatcher
	ret  *frame
	next Step
}

// New prepares a task bound to ctx that will run body on d. The task does
// not execute until Start.
func New(ctx context.Context, d *dispatch.Dispatcher, body Step, cfg Config) *Handle {
	if ctx == nil {
		ctx = context.Background()
	}
	t := &Handle{
		id:    uuid.New(),
		ctx:   ctx,
		cfg:   cfg,
		body:  body,
		begin: time.Now(),
		done:  make(chan struct{}),
	}
	t.root = &frame{t: t, d: d}
	return t
}

// Spawn is New followed by Start.
func Spawn(ctx context.Context, d *dispatch.Dispatcher, body Step, cfg Config) *Handle {
	t := New(ctx, d, body, cfg)
	t.Start()
	return t
}

// Start arms the cancellation watcher and enqueues the first slice. It
// never blocks and is safe to call only once.
func (t *Handle) Start() {
	stop := context.AfterFunc(t.ctx, t.cancelParked)
	t.mu.Lock()
	if t.finished {
		t.mu.Unlock()
		stop()
	} else {
		t.stopWatch = stop
		t.mu.Unlock()
	}
	err := t.root.d.Submit(func(worker string) {
		if !t.state.CompareAndSwap(int32(StatusNew), int32(StatusRunning)) {
			return
		}
		if h := t.cfg.Hooks.OnStart; h != nil {
			h()
		}
		t.step(t.root, t.body, worker)
	})
	if err != nil {
		if t.state.CompareAndSwap(int32(StatusNew), int32(StatusFailed)) {
			t.finalize(StatusFailed, err, false)
		}
	}
}

// ID returns the task's identity.
func (t *Handle) ID() uuid.UUID { return t.id }

// State returns the task's current status.
func (t *Handle) State() Status { return Status(t.state.Load()) }

// Done is closed when the task reaches a terminal state.
func (t *Handle) Done() <-chan struct{} { return t.done }

// Err returns the terminal error: nil for Completed, the failure for
// Failed, the cancellation cause for Cancelled. Check State to tell the
// last two apart; cancellation is not a failure.
func (t *Handle) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// OnDone registers fn to run once the task is terminal. If it already is,
// fn runs immediately on the calling goroutine.
func (t *Handle) OnDone(fn func()) {
	if fn == nil {
		return
	}
	t.mu.Lock()
	if !t.finished {
		t.subs = append(t.subs, fn)
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()
	fn()
}

// step runs one slice and routes the resulting Op.
func (t *Handle) step(f *frame, s Step, worker string) {
	if s == nil {
		f.finish(nil)
		return
	}
	var op Op
	var repanic any
	func() {
		defer func() {
			if r := recover(); r != nil {
				err := fmt.Errorf("coro: panic in task slice: %v", r)
				t.panicked = true
				op = Fail(err)
				if !t.cfg.PanicAsError {
					repanic = r
				}
			}
		}()
		op = s(dispatch.WithWorker(t.ctx, worker))
	}()
	if repanic != nil {
		f.finish(op.err)
		panic(repanic)
	}

	switch op.kind {
	case opDone:
		f.finish(nil)
	case opFail:
		f.finish(op.err)
	case opDelay:
		t.park("delay")
		if t.cancelledWhileParked() {
			return
		}
		next := op.next
		time.AfterFunc(op.dur, func() { f.resume(next) })
	case opYield:
		t.park("yield")
		if t.cancelledWhileParked() {
			return
		}
		f.resume(op.next)
	case opTransfer:
		t.park("transfer")
		if t.cancelledWhileParked() {
			return
		}
		inner := &frame{t: t, d: op.disp, ret: f, next: op.next}
		inner.resume(op.body)
	case opAwait:
		t.park("await")
		if t.cancelledWhileParked() {
			return
		}
		next := op.next
		op.join.OnDone(func() { f.resume(next) })
	}
}

// finish ends the frame's chain. A nested frame hands control back to its
// caller's dispatcher; the root frame ends the task.
func (f *frame) finish(err error) {
	t := f.t
	if err != nil {
		if t.state.CompareAndSwap(int32(StatusRunning), int32(StatusFailed)) {
			t.finalize(StatusFailed, err, t.panicked)
		}
		return
	}
	if f.ret == nil {
		if t.state.CompareAndSwap(int32(StatusRunning), int32(StatusCompleted)) {
			t.finalize(StatusCompleted, nil, false)
		}
		return
	}
	t.park("transfer")
	if t.cancelledWhileParked() {
		return
	}
	f.ret.resume(f.next)
}

// resume re-enqueues the continuation on the frame's dispatcher. The
// Suspended→Running transition happens on the worker, so a cancellation
// that lands first wins and the body is never resumed past it.
func (f *frame) resume(next Step) {
	t := f.t
	err := f.d.Submit(func(worker string) {
		if !t.state.CompareAndSwap(int32(StatusSuspended), int32(StatusRunning)) {
			return
		}
		if h := t.cfg.Hooks.OnResume; h != nil {
			h()
		}
		t.step(f, next, worker)
	})
	if err != nil {
		// Dispatcher closed under a parked task: it can never resume.
		if t.state.CompareAndSwap(int32(StatusSuspended), int32(StatusFailed)) {
			t.finalize(StatusFailed, err, false)
		}
	}
}

func (t *Handle) park(reason string) {
	t.state.Store(int32(StatusSuspended))
	if h := t.cfg.Hooks.OnSuspend; h != nil {
		h(reason)
	}
}

// cancelledWhileParked checks the task context right after parking, so a
// cancellation requested during the slice is honored before any resumption
// is armed.
func (t *Handle) cancelledWhileParked() bool {
	if t.ctx.Err() == nil {
		return false
	}
	if t.state.CompareAndSwap(int32(StatusSuspended), int32(StatusCancelled)) {
		t.finalize(StatusCancelled, context.Cause(t.ctx), false)
	}
	return true
}

// cancelParked runs when the task context is cancelled. A task that has not
// started, or is parked at a suspension point, goes straight to Cancelled;
// a running slice is left to finish and observes the flag when it parks.
func (t *Handle) cancelParked() {
	for {
		s := t.State()
		if s != StatusNew && s != StatusSuspended {
			return
		}
		if t.state.CompareAndSwap(int32(s), int32(StatusCancelled)) {
			t.finalize(StatusCancelled, context.Cause(t.ctx), false)
			return
		}
	}
}

func (t *Handle) finalize(st Status, err error, panicked bool) {
	t.mu.Lock()
	t.finished = true
	t.err = err
	subs := t.subs
	t.subs = nil
	stop := t.stopWatch
	t.mu.Unlock()
	if stop != nil {
		stop()
	}
	close(t.done)
	if h := t.cfg.Hooks.OnFinish; h != nil {
		h(st, time.Since(t.begin), err, panicked)
	}
	for _, fn := range subs {
		fn()
	}
}
