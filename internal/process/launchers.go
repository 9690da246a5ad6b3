package process

import (
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/vistaml/vista/internal/logging"
)

// ServerOptions carries per-launch server settings.
type ServerOptions struct {
	// DoNotTrack is passed opaquely to the server process.
	DoNotTrack bool
}

// ServerLauncher starts App server processes.
type ServerLauncher interface {
	StartServer(port int, opts ServerOptions) (Handle, error)
}

// DesktopLauncher starts desktop App processes. A nil DesktopLauncher means
// the desktop App package is not installed.
type DesktopLauncher interface {
	StartDesktop(port int) (Handle, error)
}

// ExecServerLauncher launches the App server as a child process and waits
// for it to report healthy before returning.
type ExecServerLauncher struct {
	Command        string
	StartupTimeout time.Duration
	Logger         *logging.Logger
}

// StartServer implements ServerLauncher. The launch fails if the server
// process exits or does not become healthy within the startup timeout; in
// that case the process is stopped before returning.
func (l *ExecServerLauncher) StartServer(port int, opts ServerOptions) (Handle, error) {
	logger := l.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	env := map[string]string{
		"VISTA_DO_NOT_TRACK": strconv.FormatBool(opts.DoNotTrack),
	}
	proc, err := Start(l.Command, []string{"--port", strconv.Itoa(port)}, env)
	if err != nil {
		return nil, fmt.Errorf("failed to launch App server: %w", err)
	}

	timeout := l.StartupTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	if err := waitHealthy(proc, port, timeout); err != nil {
		if stopErr := proc.Stop(); stopErr != nil {
			logger.Warn("Failed to stop unhealthy App server", zap.Error(stopErr))
		}
		return nil, err
	}

	logger.Info("App server started", zap.Int("port", port))
	return proc, nil
}

func waitHealthy(proc *Proc, port int, timeout time.Duration) error {
	client := resty.New().
		SetBaseURL(fmt.Sprintf("http://localhost:%d", port)).
		SetTimeout(time.Second)

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		select {
		case <-proc.Done():
			return fmt.Errorf("App server on port %d exited during startup", port)
		default:
		}

		resp, err := client.R().Get("/health")
		if err == nil && resp.IsSuccess() {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	return fmt.Errorf("App server on port %d was not healthy after %s", port, timeout)
}

// ExecDesktopLauncher launches the desktop App as a child process.
type ExecDesktopLauncher struct {
	Command string
}

// StartDesktop implements DesktopLauncher.
func (l *ExecDesktopLauncher) StartDesktop(port int) (Handle, error) {
	proc, err := Start(l.Command, []string{"--port", strconv.Itoa(port)}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to launch desktop App: %w", err)
	}
	return proc, nil
}
