// Package logging narrates scope and task lifecycle events through
// log/slog. Combined with dispatch.WorkerName inside task bodies it yields
// the timestamped tag-plus-worker log stream the demo scenarios print.
package logging

import (
	"context"
	"log/slog"
	"time"

	"github.com/akondrashev/coroscope/coro"
)

// Observer implements scope.Observer by logging every event.
type Observer struct {
	log *slog.Logger
}

// New returns an observer writing to log, or slog.Default when log is nil.
func New(log *slog.Logger) *Observer {
	if log == nil {
		log = slog.Default()
	}
	return &Observer{log: log}
}

func (o *Observer) ScopeCreated(ctx context.Context) {
	o.log.DebugContext(ctx, "scope created")
}

func (o *Observer) ScopeCancelled(ctx context.Context, cause error) {
	o.log.InfoContext(ctx, "scope cancelled", "cause", cause)
}

func (o *Observer) ScopeJoined(ctx context.Context, wait time.Duration) {
	o.log.DebugContext(ctx, "scope joined", "wait", wait)
}

func (o *Observer) TaskStarted(ctx context.Context) {
	o.log.DebugContext(ctx, "task started")
}

func (o *Observer) TaskSuspended(ctx context.Context, reason string) {
	o.log.DebugContext(ctx, "task suspended", "reason", reason)
}

func (o *Observer) TaskResumed(ctx context.Context) {
	o.log.DebugContext(ctx, "task resumed")
}

func (o *Observer) TaskFinished(ctx context.Context, st coro.Status, dur time.Duration, err error, panicked bool) {
	if err != nil || panicked {
		o.log.WarnContext(ctx, "task finished", "state", st.String(), "dur", dur, "err", err, "panicked", panicked)
		return
	}
	o.log.DebugContext(ctx, "task finished", "state", st.String(), "dur", dur)
}
