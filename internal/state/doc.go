// Package state holds the session state payload and its synchronizer.
//
// A Description is the full state mirrored between a session and the App
// process. The Store applies mutations with a strict ordering contract:
// apply all fields, refresh the dataset catalog, then push the complete
// snapshot through the Pusher. Mutations are never pushed partially: the
// dataset/view swap rewrites every dependent field before the single push
// at the end.
package state
