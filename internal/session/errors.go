package session

import "errors"

// ErrConfiguration marks invalid mode combinations that are fatal at
// construction, such as a remote session launched from a notebook.
var ErrConfiguration = errors.New("invalid session configuration")

// ErrContextMismatch marks actions that are not legal in the resolved
// execution context, such as calling Open from a notebook.
var ErrContextMismatch = errors.New("not available in this context")
