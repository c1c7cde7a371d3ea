package otel

import (
	"context"
	"time"

	"github.com/akondrashev/coroscope/coro"
)

// Nop is a no-op implementation of the scope.Observer interface.
type Nop struct{}

// NewNop returns a no-op observer.
func NewNop() *Nop { return &Nop{} }

func (*Nop) ScopeCreated(context.Context)                                          {}
func (*Nop) ScopeCancelled(context.Context, error)                                 {}
func (*Nop) ScopeJoined(context.Context, time.Duration)                            {}
func (*Nop) TaskStarted(context.Context)                                           {}
func (*Nop) TaskSuspended(context.Context, string)                                 {}
func (*Nop) TaskResumed(context.Context)                                           {}
func (*Nop) TaskFinished(context.Context, coro.Status, time.Duration, error, bool) {}
