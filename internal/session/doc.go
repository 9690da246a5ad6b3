// Package session manages the lifecycle of the singleton App session.
//
// A Manager owns the process-wide active session and the registry of App
// server processes. Sessions keep the local process and the App viewer
// consistent: every state mutation rewrites the synchronized payload and
// pushes the full snapshot to the App before returning.
//
// Which actions are legal depends on the execution context and mode:
//   - Plain process: launching opens a browser tab or the desktop App;
//     Show() is a warning no-op.
//   - Notebook kernel: the App renders inline via Show(); Open() is an
//     error, and desktop mode cannot be used.
//   - Remote: no local UI at all; connection instructions are printed and
//     the caller typically blocks in Wait().
//
// Example Usage:
//
//	procs := registry.New(launcher, logger)
//	manager := session.NewManager(cfg, logger, procs, session.Deps{})
//	sess, err := manager.Launch(session.Options{Dataset: ds})
//	defer manager.CloseApp()
//	sess.Wait(ctx)
package session
