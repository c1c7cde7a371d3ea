// Package otel is the plug point for an OpenTelemetry-backed observer.
// It emits nothing yet; Nop documents the surface a tracing exporter would
// implement without adding dependencies to the core library.
package otel
