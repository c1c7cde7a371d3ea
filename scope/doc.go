// Package scope provides structured-concurrency scopes for suspendable
// tasks. A scope owns the tasks launched under it, provides a join point
// (Wait), and propagates cancellation and errors predictably according to
// a policy; child task and scope lifetimes are strictly nested inside the
// owning scope's lifetime.
package scope
