// Package runtime defines the common interface that all worker runtimes
// (external processes, in-process goroutines) must implement, along with the
// domain types exchanged between the launcher and runtime implementations.
package runtime
