// Package push implements the websocket client that delivers state
// snapshots to the App server process.
package push
