package scope

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/akondrashev/coroscope/coro"
	"github.com/akondrashev/coroscope/dispatch"
)

// Policy decides what a task failure does to its siblings.
type Policy int

const (
	// FailFast cancels the scope on the first task failure.
	FailFast Policy = iota
	// Supervisor records failures but leaves siblings running.
	Supervisor
)

// State is a scope's position in its lifecycle.
type State int32

const (
	// Active scopes accept new tasks.
	Active State = iota
	// Cancelling scopes have been cancelled but still have live children.
	Cancelling
	// Cancelled scopes have no live children and accept nothing.
	Cancelled
)

func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case Cancelling:
		return "cancelling"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// ErrDone is returned by Launch once the scope has been cancelled.
var ErrDone = errors.New("scope: no longer accepting tasks")

type Option func(*Options)

type Options struct {
	PanicAsError   bool
	Observer       Observer
	MaxConcurrency int
}

func defaultOptions() Options { return Options{PanicAsError: true} }

func WithPanicAsError(v bool) Option { return func(o *Options) { o.PanicAsError = v } }

func WithObserver(obs Observer) Option { return func(o *Options) { o.Observer = obs } }

func WithMaxConcurrency(n int) Option { return func(o *Options) { o.MaxConcurrency = n } }

// Observer receives scope and task lifecycle events.
type Observer interface {
	ScopeCreated(ctx context.Context)
	ScopeCancelled(ctx context.Context, cause error)
	ScopeJoined(ctx context.Context, wait time.Duration)
	TaskStarted(ctx context.Context)
	TaskSuspended(ctx context.Context, reason string)
	TaskResumed(ctx context.Context)
	TaskFinished(ctx context.Context, st coro.Status, dur time.Duration, err error, panicked bool)
}

// Scope owns a set of suspendable tasks with a shared lifetime. Create one
// per owner (process root, screen controller, request) and Cancel it when
// the owner goes away: every outstanding task is flagged and stops at its
// next suspension point.
type Scope struct {
	ctx    context.Context
	cancel context.CancelCauseFunc
	def    *dispatch.Dispatcher
	policy Policy

	mu       sync.Mutex
	state    State
	children map[uuid.UUID]*coro.Handle
	firstErr error

	wg sync.WaitGroup

	opts Options
	obs  Observer
	lim  Limiter
}

// New creates a scope bound to parent's lifetime. Tasks launched without an
// explicit dispatcher run on def; a nil def means the unconfined
// passthrough.
func New(parent context.Context, def *dispatch.Dispatcher, policy Policy, optFns ...Option) *Scope {
	if parent == nil {
		parent = context.Background()
	}
	if def == nil {
		def = dispatch.Unconfined()
	}
	ctx, cancel := context.WithCancelCause(parent)
	s := &Scope{
		ctx:      ctx,
		cancel:   cancel,
		def:      def,
		policy:   policy,
		children: make(map[uuid.UUID]*coro.Handle),
		opts:     defaultOptions(),
	}
	for _, fn := range optFns {
		fn(&s.opts)
	}
	s.obs = s.opts.Observer
	if s.opts.MaxConcurrency > 0 {
		s.lim = newSemaphoreLimiter(s.opts.MaxConcurrency)
	}
	// A parent's cancellation must close this scope too, not just flag
	// the tasks.
	context.AfterFunc(ctx, func() { s.Cancel(context.Cause(ctx)) })
	if s.obs != nil {
		s.obs.ScopeCreated(ctx)
	}
	return s
}

// Context is cancelled when the scope is.
func (s *Scope) Context() context.Context { return s.ctx }

// State returns the scope's current lifecycle state.
func (s *Scope) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LaunchOption adjusts a single launch.
type LaunchOption func(*launchOptions)

type launchOptions struct {
	disp *dispatch.Dispatcher
}

// On runs the task on d instead of the scope's default dispatcher.
func On(d *dispatch.Dispatcher) LaunchOption {
	return func(o *launchOptions) { o.disp = d }
}

// Launch creates a task under the scope, schedules its first slice, and
// returns its handle. It never blocks the caller. Once the scope has been
// cancelled it returns ErrDone and runs nothing.
func (s *Scope) Launch(body coro.Step, optFns ...LaunchOption) (*coro.Handle, error) {
	var lo launchOptions
	for _, fn := range optFns {
		fn(&lo)
	}
	d := s.def
	if lo.disp != nil {
		d = lo.disp
	}

	var t *coro.Handle
	var acquired, started atomic.Bool
	cfg := coro.Config{
		PanicAsError: s.opts.PanicAsError,
		Hooks: coro.Hooks{
			OnStart: func() {
				started.Store(true)
				if s.obs != nil {
					s.obs.TaskStarted(s.ctx)
				}
			},
			OnSuspend: func(reason string) {
				if s.obs != nil {
					s.obs.TaskSuspended(s.ctx, reason)
				}
			},
			OnResume: func() {
				if s.obs != nil {
					s.obs.TaskResumed(s.ctx)
				}
			},
			OnFinish: func(st coro.Status, dur time.Duration, err error, panicked bool) {
				if acquired.Load() {
					s.lim.Release()
				}
				s.childFinished(t, st, dur, err, panicked, started.Load())
			},
		},
	}
	t = coro.New(s.ctx, d, body, cfg)

	s.mu.Lock()
	if s.state != Active {
		s.mu.Unlock()
		return nil, ErrDone
	}
	s.children[t.ID()] = t
	s.wg.Add(1)
	s.mu.Unlock()

	if s.lim == nil {
		t.Start()
		return t, nil
	}
	go func() {
		if err := s.lim.Acquire(s.ctx); err == nil {
			acquired.Store(true)
		}
		// On a failed acquire the scope context is gone; Start lets
		// the task observe that and terminate as Cancelled.
		t.Start()
	}()
	return t, nil
}

// Go launches an ordinary function as a single-slice task on the scope's
// default dispatcher.
func (s *Scope) Go(fn func(ctx context.Context) error) error {
	if fn == nil {
		return nil
	}
	_, err := s.Launch(coro.Run(fn))
	return err
}

// Cancel moves the scope to Cancelling, flags every child task and scope,
// and, once the last child reports a terminal state, to Cancelled.
// Idempotent; the first non-nil cause wins.
func (s *Scope) Cancel(cause error) {
	s.mu.Lock()
	was := s.state
	if s.state == Active {
		if len(s.children) == 0 {
			s.state = Cancelled
		} else {
			s.state = Cancelling
		}
	}
	// Plain cancellation is not a failure; only a distinct cause is worth
	// reporting from Wait.
	if s.firstErr == nil && cause != nil && !errors.Is(cause, context.Canceled) {
		s.firstErr = cause
	}
	eff := s.firstErr
	s.mu.Unlock()

	s.cancel(eff)
	if was == Active && s.obs != nil {
		s.obs.ScopeCancelled(s.ctx, eff)
	}
}

// Wait blocks until every launched task is terminal and returns the first
// recorded failure or cancellation cause. Cancelled tasks alone do not
// produce an error.
func (s *Scope) Wait() error {
	var start time.Time
	if s.obs != nil {
		start = time.Now()
	}
	s.wg.Wait()
	if s.obs != nil {
		s.obs.ScopeJoined(s.ctx, time.Since(start))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.firstErr
}

// Child creates a scope nested inside s: cancelling s cancels the child,
// never the other way around. The child inherits the default dispatcher
// and options unless overridden.
func (s *Scope) Child(policy Policy, optFns ...Option) *Scope {
	childOpts := s.opts
	for _, fn := range optFns {
		fn(&childOpts)
	}
	ctx, cancel := context.WithCancelCause(s.ctx)
	cs := &Scope{
		ctx:      ctx,
		cancel:   cancel,
		def:      s.def,
		policy:   policy,
		children: make(map[uuid.UUID]*coro.Handle),
		opts:     childOpts,
		obs:      childOpts.Observer,
	}
	if childOpts.MaxConcurrency > 0 {
		cs.lim = newSemaphoreLimiter(childOpts.MaxConcurrency)
	}
	context.AfterFunc(ctx, func() { cs.Cancel(context.Cause(ctx)) })
	if cs.obs != nil {
		cs.obs.ScopeCreated(ctx)
	}
	return cs
}

func (s *Scope) childFinished(t *coro.Handle, st coro.Status, dur time.Duration, err error, panicked, started bool) {
	s.mu.Lock()
	delete(s.children, t.ID())
	if s.state == Cancelling && len(s.children) == 0 {
		s.state = Cancelled
	}
	failed := st == coro.StatusFailed
	if failed && s.firstErr == nil && err != nil {
		s.firstErr = err
	}
	s.mu.Unlock()

	// A task cancelled before its first slice never registered with the
	// observer; keep start/finish events paired.
	if s.obs != nil && started {
		s.obs.TaskFinished(s.ctx, st, dur, err, panicked)
	}
	// Cancellation is a terminal state, not a failure: only Failed tasks
	// trip fail-fast propagation.
	if failed && s.policy == FailFast {
		s.Cancel(err)
	}
	s.wg.Done()
}
