// Package coro implements stackless suspendable tasks over explicit
// continuations. A task body is a chain of Step functions; each Step runs to
// completion on a dispatcher worker and returns an Op that either ends the
// task or names the suspension and the Step to resume with. Locals that must
// survive a suspension are captured by the next Step's closure.
//
// Suspension never occupies a worker: a delayed or awaiting task leaves its
// dispatcher free, and its continuation is re-enqueued when the wait
// resolves. Cancellation is cooperative and observed at suspension points.
package coro
