package process

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"
)

// Handle is a managed OS process.
type Handle interface {
	// Stop terminates the process, best effort.
	Stop() error
	// Done is closed when the process exits.
	Done() <-chan struct{}
	// Wait blocks until the process exits or the context is canceled.
	Wait(ctx context.Context) error
}

// killGrace is how long Stop waits for a graceful exit before killing.
const killGrace = 3 * time.Second

// Proc wraps an exec.Cmd as a Handle.
type Proc struct {
	cmd      *exec.Cmd
	done     chan struct{}
	stopOnce sync.Once

	mu      sync.Mutex
	waitErr error
}

// Start launches a command with the given extra environment variables.
func Start(name string, args []string, env map[string]string) (*Proc, error) {
	cmd := exec.Command(name, args...)
	cmd.Env = os.Environ()
	for key, value := range env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", key, value))
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", name, err)
	}

	p := &Proc{cmd: cmd, done: make(chan struct{})}
	go func() {
		err := cmd.Wait()
		p.mu.Lock()
		p.waitErr = err
		p.mu.Unlock()
		close(p.done)
	}()

	return p, nil
}

// Stop implements Handle. The process is asked to exit and killed if it has
// not done so within a short grace period.
func (p *Proc) Stop() error {
	var err error
	p.stopOnce.Do(func() {
		select {
		case <-p.done:
			return
		default:
		}

		if sigErr := p.cmd.Process.Signal(os.Interrupt); sigErr != nil {
			err = p.cmd.Process.Kill()
			return
		}

		select {
		case <-p.done:
		case <-time.After(killGrace):
			err = p.cmd.Process.Kill()
		}
	})
	return err
}

// Done implements Handle.
func (p *Proc) Done() <-chan struct{} {
	return p.done
}

// Wait implements Handle.
func (p *Proc) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.waitErr
	case <-ctx.Done():
		return ctx.Err()
	}
}
