package coro

import (
	"context"
	"time"

	"github.com/akondrashev/coroscope/dispatch"
)

// Step is one slice of a task: code that runs without interleaving on a
// dispatcher worker and returns the task's next move. A nil Step is treated
// as Done.
type Step func(ctx context.Context) Op

type opKind uint8

const (
	opDone opKind = iota
	opFail
	opDelay
	opTransfer
	opYield
	opAwait
)

// Op is the value a Step returns: a terminal outcome or a suspension plus
// the continuation to resume with.
type Op struct {
	kind opKind
	err  error
	dur  time.Duration
	disp *dispatch.Dispatcher
	body Step
	next Step
	join *Handle
}

// Done ends the task successfully.
func Done() Op { return Op{kind: opDone} }

// Fail ends the task with err. A nil err is treated as Done.
func Fail(err error) Op {
	if err == nil {
		return Done()
	}
	return Op{kind: opFail, err: err}
}

// Delay suspends the task for d without occupying a worker, then resumes
// next on the dispatcher the task was running on.
func Delay(d time.Duration, next Step) Op {
	return Op{kind: opDelay, dur: d, next: next}
}

// Transfer suspends the task, runs the body chain on another dispatcher,
// and on its completion resumes next back on the dispatcher the task was on
// before the switch. A failure inside body fails the whole task.
func Transfer(to *dispatch.Dispatcher, body, next Step) Op {
	return Op{kind: opTransfer, disp: to, body: body, next: next}
}

// YieldTo re-enqueues next at the back of the current dispatcher's queue,
// letting other queued work run first.
func YieldTo(next Step) Op { return Op{kind: opYield, next: next} }

// Await suspends until h reaches a terminal state, then resumes next on the
// current dispatcher. next can inspect h for the outcome.
func Await(h *Handle, next Step) Op { return Op{kind: opAwait, join: h, next: next} }

// Run adapts an ordinary function into a single-slice task body.
func Run(fn func(ctx context.Context) error) Step {
	return func(ctx context.Context) Op {
		return Fail(fn(ctx))
	}
}
