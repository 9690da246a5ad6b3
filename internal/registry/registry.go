package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vistaml/vista/internal/logging"
	"github.com/vistaml/vista/internal/process"
)

// ErrNotManaged is returned by Wait when no server process is managed for
// the requested port. Callers fall back to a passive wait loop.
var ErrNotManaged = errors.New("no managed server process for port")

type entry struct {
	proc        process.Handle
	subscribers map[string]struct{}
}

// Registry is the process-wide table of managed App server processes, keyed
// by port. Each entry tracks the set of sessions subscribed to it; the
// process is started by the first subscriber and stopped when the last one
// releases. The registry is the single owner of server process handles;
// sessions hold only a port number and a subscriber ID.
type Registry struct {
	mu       sync.Mutex
	launcher process.ServerLauncher
	logger   *logging.Logger
	entries  map[int]*entry
}

// New creates an empty registry using the given server launcher.
func New(launcher process.ServerLauncher, logger *logging.Logger) *Registry {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Registry{
		launcher: launcher,
		logger:   logger,
		entries:  make(map[int]*entry),
	}
}

// Acquire subscribes a new caller to the server process on port, starting
// the process if no entry exists yet. A second caller on the same port
// never starts a second process. The returned subscriber ID is usable only
// for Release.
func (r *Registry) Acquire(port int, opts process.ServerOptions) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[port]
	if !ok {
		proc, err := r.launcher.StartServer(port, opts)
		if err != nil {
			return "", fmt.Errorf("failed to start App server on port %d: %w", port, err)
		}
		e = &entry{
			proc:        proc,
			subscribers: make(map[string]struct{}),
		}
		r.entries[port] = e
	}

	id := uuid.NewString()
	e.subscribers[id] = struct{}{}
	return id, nil
}

// Release removes a subscriber from the port's entry. When the subscriber
// set becomes empty the server process is stopped and the entry removed.
// Releasing an unknown port or an already-released subscriber is a no-op.
// Stop failures are logged, never returned: teardown must not fail.
func (r *Registry) Release(port int, subscriberID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[port]
	if !ok {
		return
	}

	delete(e.subscribers, subscriberID)
	if len(e.subscribers) > 0 {
		return
	}

	delete(r.entries, port)
	if err := e.proc.Stop(); err != nil {
		r.logger.Warn("Failed to stop App server",
			zap.Int("port", port), zap.Error(err))
	}
}

// Wait blocks until the server process for port exits or the context is
// canceled. Returns ErrNotManaged if no entry exists for the port.
func (r *Registry) Wait(ctx context.Context, port int) error {
	r.mu.Lock()
	e, ok := r.entries[port]
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %d", ErrNotManaged, port)
	}
	return e.proc.Wait(ctx)
}

// SubscriberCount returns the number of subscribers for port.
func (r *Registry) SubscriberCount(port int) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[port]
	if !ok {
		return 0
	}
	return len(e.subscribers)
}

// Teardown stops every managed process. Called at process exit.
func (r *Registry) Teardown() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for port, e := range r.entries {
		if err := e.proc.Stop(); err != nil {
			r.logger.Warn("Failed to stop App server",
				zap.Int("port", port), zap.Error(err))
		}
		delete(r.entries, port)
	}
}
