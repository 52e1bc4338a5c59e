// Package launcher starts background workers and tracks their lifecycle.
// It resolves module references and runtimes, persists worker records at
// every status transition, fans output out to live subscribers, and owns the
// single-slot holder for the singleton worker started by StartWorker.
package launcher
