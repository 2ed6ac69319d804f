// Package observe provides logging, metrics and tracing for the worker.
//
// Every component receives a Logger and, where it records outcomes, a Metrics.
// EventMeta names the component and operation an event belongs to; it becomes
// span names, metric attributes and log fields.
package observe
