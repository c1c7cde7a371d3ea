// Package prom exposes scope and task lifecycle events as Prometheus
// metrics.
package prom

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/akondrashev/coroscope/coro"
)

// Observer implements scope.Observer on top of a Prometheus registry.
type Observer struct {
	activeTasks   prometheus.Gauge
	tasksStarted  prometheus.Counter
	tasksFinished *prometheus.CounterVec
	tasksPanicked prometheus.Counter
	suspensions   *prometheus.CounterVec
	resumptions   prometheus.Counter
	taskDuration  prometheus.Histogram

	scopesCreated   prometheus.Counter
	scopesCancelled prometheus.Counter
	joinWait        prometheus.Histogram
}

// New builds an Observer and registers its collectors with reg.
func New(reg prometheus.Registerer) *Observer {
	o := &Observer{
		activeTasks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "coroscope",
			Name:      "active_tasks",
			Help:      "Tasks between start and terminal state.",
		}),
		tasksStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "coroscope",
			Name:      "tasks_started_total",
			Help:      "Tasks whose first slice began executing.",
		}),
		tasksFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "coroscope",
			Name:      "tasks_finished_total",
			Help:      "Tasks by terminal state.",
		}, []string{"outcome"}),
		tasksPanicked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "coroscope",
			Name:      "tasks_panicked_total",
			Help:      "Tasks that panicked in a slice.",
		}),
		suspensions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "coroscope",
			Name:      "task_suspensions_total",
			Help:      "Suspension points hit, by reason.",
		}, []string{"reason"}),
		resumptions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "coroscope",
			Name:      "task_resumptions_total",
			Help:      "Continuations resumed on a dispatcher.",
		}),
		taskDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "coroscope",
			Name:      "task_duration_seconds",
			Help:      "Wall time from task start to terminal state.",
			Buckets:   prometheus.DefBuckets,
		}),
		scopesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "coroscope",
			Name:      "scopes_created_total",
			Help:      "Scopes created.",
		}),
		scopesCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "coroscope",
			Name:      "scopes_cancelled_total",
			Help:      "Scopes cancelled.",
		}),
		joinWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "coroscope",
			Name:      "scope_join_wait_seconds",
			Help:      "Time spent blocked in Wait.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(
		o.activeTasks, o.tasksStarted, o.tasksFinished, o.tasksPanicked,
		o.suspensions, o.resumptions, o.taskDuration,
		o.scopesCreated, o.scopesCancelled, o.joinWait,
	)
	return o
}

func (o *Observer) ScopeCreated(context.Context) { o.scopesCreated.Inc() }

func (o *Observer) ScopeCancelled(context.Context, error) { o.scopesCancelled.Inc() }

func (o *Observer) ScopeJoined(_ context.Context, wait time.Duration) {
	o.joinWait.Observe(wait.Seconds())
}

func (o *Observer) TaskStarted(context.Context) {
	o.activeTasks.Inc()
	o.tasksStarted.Inc()
}

func (o *Observer) TaskSuspended(_ context.Context, reason string) {
	o.suspensions.WithLabelValues(reason).Inc()
}

func (o *Observer) TaskResumed(context.Context) { o.resumptions.Inc() }

func (o *Observer) TaskFinished(_ context.Context, st coro.Status, dur time.Duration, _ error, panicked bool) {
	o.activeTasks.Dec()
	o.tasksFinished.WithLabelValues(st.String()).Inc()
	if panicked {
		o.tasksPanicked.Inc()
	}
	o.taskDuration.Observe(dur.Seconds())
}
