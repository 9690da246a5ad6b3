package session

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vistaml/vista/internal/config"
	"github.com/vistaml/vista/internal/datasets"
	"github.com/vistaml/vista/internal/display"
	"github.com/vistaml/vista/internal/environ"
	"github.com/vistaml/vista/internal/logging"
	"github.com/vistaml/vista/internal/process"
	"github.com/vistaml/vista/internal/push"
	"github.com/vistaml/vista/internal/registry"
	"github.com/vistaml/vista/internal/state"
)

// Deps are the collaborators a Manager wires into its sessions. Zero-valued
// fields are filled with production defaults; tests inject fakes.
type Deps struct {
	// Context resolves the execution environment. Defaults to env-signal
	// detection.
	Context environ.Resolver
	// Catalog lists the datasets known to the App.
	Catalog datasets.Catalog
	// NewPusher builds the state push client for a port. Defaults to the
	// websocket client.
	NewPusher func(port int) state.Pusher
	// OpenBrowser opens a URL in the system browser.
	OpenBrowser func(url string) error
	// Desktop launches desktop App processes. Nil means the desktop App
	// package is not installed.
	Desktop process.DesktopLauncher
	// Display renders the App into notebook cells.
	Display display.Renderer
	// ProxyURL resolves the externally reachable URL for a port in hosted
	// notebook environments. Nil means no proxy is available and URLs fall
	// back to localhost.
	ProxyURL func(port int) (string, error)
	// Now is the clock used for the premature-release check.
	Now func() time.Time
}

// Manager owns the process-wide session singleton and the server process
// registry. At most one session is active at a time; launching a new one
// first fully releases the previous one.
type Manager struct {
	cfg    *config.Config
	logger *logging.Logger
	procs  *registry.Registry
	deps   Deps

	mu     sync.Mutex
	active *Session
}

// NewManager creates a session manager backed by the given registry.
func NewManager(cfg *config.Config, logger *logging.Logger, procs *registry.Registry, deps Deps) *Manager {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if deps.Context == nil {
		deps.Context = environ.DetectResolver{}
	}
	if deps.Catalog == nil {
		deps.Catalog = datasets.NewMemoryCatalog()
	}
	if deps.NewPusher == nil {
		deps.NewPusher = func(port int) state.Pusher {
			return push.NewClient(port)
		}
	}
	if deps.OpenBrowser == nil {
		deps.OpenBrowser = openBrowser
	}
	if deps.Desktop == nil && cfg.Desktop.Command != "" {
		deps.Desktop = &process.ExecDesktopLauncher{Command: cfg.Desktop.Command}
	}
	if deps.Display == nil {
		deps.Display = &display.CellRenderer{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	return &Manager{
		cfg:    cfg,
		logger: logger,
		procs:  procs,
		deps:   deps,
	}
}

// Launch starts (or joins) the App and returns the new active session. Any
// previously active session is fully released first, even if its UI was
// already closed out-of-band: a half-destroyed viewer process cannot
// reliably be reopened in place.
func (m *Manager) Launch(opts Options) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closeActiveLocked()

	s, err := newSession(m, opts)
	if err != nil {
		return nil, err
	}
	m.active = s

	m.announce(s)
	return s, nil
}

// CloseApp releases the active session, if any. The App server is stopped
// if this session was its last subscriber.
func (m *Manager) CloseApp() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeActiveLocked()
}

// Registry returns the server process registry backing the manager.
func (m *Manager) Registry() *registry.Registry {
	return m.procs
}

// Active returns the currently active session, or nil.
func (m *Manager) Active() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Teardown releases the active session and stops every managed server
// process. Called at process exit.
func (m *Manager) Teardown() {
	m.CloseApp()
	m.procs.Teardown()
}

func (m *Manager) closeActiveLocked() {
	if m.active == nil {
		return
	}
	if err := m.active.Close(); err != nil {
		m.logger.Warn("Failed to push close flag", zap.Error(err))
	}
	m.active.Release()
	m.active = nil
}

func (m *Manager) announce(s *Session) {
	switch {
	case s.remote:
		m.logger.Sugar().Infof(remoteInstructions, s.port, s.port, s.port)
	case s.desktop:
		m.logger.Info(desktopMessage)
	case s.context().IsNotebook():
		if !s.auto {
			m.logger.Info(notebookMessage)
		}
	default:
		m.logger.Sugar().Infof(webMessage, s.port)
	}
}
