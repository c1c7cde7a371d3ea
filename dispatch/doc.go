// Package dispatch provides named execution contexts for suspendable tasks.
// A Dispatcher owns a FIFO run queue and a fixed set of worker goroutines;
// task slices submitted to it run on those workers in submission order.
package dispatch
