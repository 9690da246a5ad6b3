// Package process launches and supervises the App's OS-level processes.
//
// Two launchers exist: the server launcher starts the background App server
// and blocks until its health endpoint responds, and the desktop launcher
// starts the desktop App client. Both return a Handle with stop and wait
// semantics; ownership of server handles belongs to the registry package.
package process
