// Package display renders the App inside notebook output cells.
//
// The bridge is stateless: each Render call emits a complete cell payload
// for the resolved context and returns any failure synchronously.
package display
