// Package registry reference-counts the App server processes shared across
// sessions.
//
// Many sessions may point at the same port; the registry owns the process
// and tracks subscribers per port. The first Acquire on a port starts the
// process, the last Release stops it. All table mutation happens under one
// mutex so that concurrent session construction and destruction cannot
// interleave acquire/release on the same port.
package registry
