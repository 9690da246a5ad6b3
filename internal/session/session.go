package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vistaml/vista/internal/config"
	"github.com/vistaml/vista/internal/datasets"
	"github.com/vistaml/vista/internal/environ"
	"github.com/vistaml/vista/internal/logging"
	"github.com/vistaml/vista/internal/process"
	"github.com/vistaml/vista/internal/registry"
	"github.com/vistaml/vista/internal/state"
)

// prematureReleaseWindow is how young a session may be at release before a
// warning is emitted: a script that never calls Wait otherwise exits
// immediately after launch.
const prematureReleaseWindow = 2500 * time.Millisecond

// Options configure a session launch.
type Options struct {
	// Dataset to load initially. Ignored when View is set.
	Dataset datasets.Dataset
	// View to load initially.
	View datasets.View
	// Port of the App server. Zero means the configured default.
	Port int
	// Remote marks this as a remote session: the App is never opened
	// locally and connection instructions are printed instead.
	Remote bool
	// Desktop launches the desktop App instead of a browser tab. Nil means
	// the configured default outside notebooks, false inside them.
	Desktop *bool
	// Auto re-renders the App after every state update in notebooks. Nil
	// means the configured default.
	Auto *bool
	// Height, in pixels, of notebook App cells. Zero means the configured
	// default.
	Height int
}

// Session is the singleton client-side handle that keeps the local process
// and the App viewer mutually consistent. All state mutators push the full
// state snapshot to the App before returning.
type Session struct {
	manager *Manager

	port      int
	remote    bool
	desktop   bool
	auto      bool
	height    int
	createdAt time.Time

	store        *state.Store
	pusher       state.Pusher
	subscriberID string

	mu                  sync.Mutex
	desktopProc         process.Handle
	released            bool
	waitWarningDisabled bool
}

func newSession(m *Manager, opts Options) (*Session, error) {
	ctx := m.deps.Context.Resolve()

	port := opts.Port
	if port <= 0 {
		port = m.cfg.App.Port
	}

	desktop := false
	if opts.Desktop != nil {
		desktop = *opts.Desktop
	} else if ctx == environ.None {
		desktop = m.cfg.App.DesktopApp
	}

	auto := m.cfg.App.AutoShow
	if opts.Auto != nil {
		auto = *opts.Auto
	}

	height := opts.Height
	if height <= 0 {
		height = m.cfg.App.Height
	}

	// Validate the mode combination before any process is acquired.
	if opts.Remote && ctx.IsNotebook() {
		return nil, fmt.Errorf(
			"%w: remote sessions cannot be run from a notebook", ErrConfiguration)
	}
	if desktop && ctx.IsNotebook() {
		return nil, fmt.Errorf(
			"%w: cannot open a desktop App from a notebook; use Show() instead",
			ErrContextMismatch)
	}
	needsDesktop := desktop && !opts.Remote && ctx == environ.None
	if needsDesktop && m.deps.Desktop == nil {
		return nil, fmt.Errorf(
			"%w: the desktop App package is not installed", ErrConfiguration)
	}

	subscriberID, err := m.procs.Acquire(port, process.ServerOptions{
		DoNotTrack: m.cfg.App.DoNotTrack,
	})
	if err != nil {
		return nil, err
	}

	pusher := m.deps.NewPusher(port)
	s := &Session{
		manager:      m,
		port:         port,
		remote:       opts.Remote,
		desktop:      desktop,
		auto:         auto,
		height:       height,
		createdAt:    m.deps.Now(),
		store:        state.NewStore(m.deps.Catalog, pusher, m.logger),
		pusher:       pusher,
		subscriberID: subscriberID,
	}

	fail := func(err error) (*Session, error) {
		m.procs.Release(port, subscriberID)
		return nil, err
	}

	// Initial dataset/view goes through the regular mutators so the
	// clear-selections invariant and the push both apply.
	if opts.View != nil {
		if err := s.SetView(opts.View); err != nil {
			return fail(err)
		}
	} else if opts.Dataset != nil {
		if err := s.SetDataset(opts.Dataset); err != nil {
			return fail(err)
		}
	}

	if !opts.Remote && ctx == environ.None {
		if desktop {
			if err := s.startDesktop(); err != nil {
				return fail(err)
			}
		} else {
			if err := m.deps.OpenBrowser(s.URL()); err != nil {
				return fail(err)
			}
		}
	}

	return s, nil
}

// Port returns the App server port for the session.
func (s *Session) Port() int { return s.port }

// Remote reports whether the session is remote.
func (s *Session) Remote() bool { return s.remote }

// Desktop reports whether the session is connected to a desktop App.
func (s *Session) Desktop() bool { return s.desktop }

// URL returns the URL of the App. In Colab the kernel cannot reach
// localhost directly, so the proxied URL is returned with a marker query
// parameter the App uses to detect the environment.
func (s *Session) URL() string {
	if s.context() == environ.Colab && s.manager.deps.ProxyURL != nil {
		url, err := s.manager.deps.ProxyURL(s.port)
		if err != nil {
			s.logger().Warn("Failed to resolve proxy URL", zap.Error(err))
		} else {
			return fmt.Sprintf("%s?vistaColab=true", url)
		}
	}
	return fmt.Sprintf("http://localhost:%d", s.port)
}

// Dataset returns the dataset connected to the session: the view's owning
// dataset when a view is loaded, or nil when nothing is loaded.
func (s *Session) Dataset() datasets.Dataset { return s.store.Dataset() }

// View returns the view connected to the session, or nil.
func (s *Session) View() datasets.View { return s.store.View() }

// Selected returns the IDs of the samples currently selected in the App.
func (s *Session) Selected() []string { return s.store.Selected() }

// SelectedObjects returns the objects currently selected in the App.
func (s *Session) SelectedObjects() []state.SelectedObject {
	return s.store.SelectedObjects()
}

// State returns a copy of the session's synchronized state.
func (s *Session) State() state.Description { return s.store.Snapshot() }

// SetDataset loads a dataset into the App, clearing any view, selections,
// and filters.
func (s *Session) SetDataset(d datasets.Dataset) error {
	if err := s.store.SetDataset(d); err != nil {
		return err
	}
	return s.autoShow()
}

// SetView loads a view into the App; its owning dataset becomes the
// session's dataset and all selections and filters are cleared.
func (s *Session) SetView(v datasets.View) error {
	if err := s.store.SetView(v); err != nil {
		return err
	}
	return s.autoShow()
}

// ClearDataset unloads the current dataset, if any.
func (s *Session) ClearDataset() error {
	if err := s.store.ClearDataset(); err != nil {
		return err
	}
	return s.autoShow()
}

// ClearView unloads the current view, if any.
func (s *Session) ClearView() error {
	if err := s.store.ClearView(); err != nil {
		return err
	}
	return s.autoShow()
}

// Refresh re-pushes the current state, forcing the App to reload.
func (s *Session) Refresh() error {
	if err := s.store.Refresh(); err != nil {
		return err
	}
	return s.autoShow()
}

// Show renders the App in the output of the current notebook cell. Outside
// a notebook context this is a warning no-op: Show is commonly called
// defensively and must not crash a script. A height equal to the default
// sentinel means "use the session's configured height"; an explicit
// non-default height always wins.
func (s *Session) Show(height int) error {
	ctx := s.context()
	if !ctx.IsNotebook() {
		s.logger().Warn("Session.Show() is a no-op outside of notebooks")
		return nil
	}

	if ds := s.store.Dataset(); ds != nil {
		if err := ds.Reload(); err != nil {
			return fmt.Errorf("failed to reload dataset %q: %w", ds.Name(), err)
		}
	}

	// Push before rendering so the App already reflects the current state
	// when it appears.
	if err := s.store.Refresh(); err != nil {
		return err
	}

	return s.manager.deps.Display.Render(ctx, s.port, s.resolveHeight(height))
}

// Open opens the App locally: a browser tab, or the desktop App in desktop
// mode. Remote and notebook sessions cannot open the App.
func (s *Session) Open() error {
	if s.remote {
		return fmt.Errorf("%w: remote sessions cannot open the App", ErrContextMismatch)
	}
	if s.context().IsNotebook() {
		return fmt.Errorf(
			"%w: notebook sessions cannot open the App; use Show() instead",
			ErrContextMismatch)
	}

	if !s.desktop {
		return s.manager.deps.OpenBrowser(s.URL())
	}
	return s.startDesktop()
}

// Close asks the App to close by pushing the close flag. Advisory only:
// the session itself stays usable and no local resources are released. A
// no-op for remote sessions, which have no local UI to close.
func (s *Session) Close() error {
	if s.remote {
		return nil
	}
	return s.store.RequestClose()
}

// Wait blocks until the App is closed by the user, or ctx is canceled.
// For remote and browser sessions this waits on the managed server process,
// falling back to a passive loop when the server is not managed by this
// process; desktop sessions wait on the desktop App process. A canceled
// context is the expected shutdown path, so it disables the
// premature-release warning before the error is returned.
func (s *Session) Wait(ctx context.Context) error {
	err := s.wait(ctx)
	if err != nil && errors.Is(err, ctx.Err()) {
		s.disableWaitWarning()
	}
	return err
}

func (s *Session) wait(ctx context.Context) error {
	if !s.remote && s.desktop {
		s.mu.Lock()
		proc := s.desktopProc
		s.mu.Unlock()
		if proc != nil {
			return proc.Wait(ctx)
		}
	}

	err := s.manager.procs.Wait(ctx, s.port)
	if err == nil || !errors.Is(err, registry.ErrNotManaged) {
		return err
	}

	// Not our process. Sleep until interrupted.
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Summary returns a string summary of the session.
func (s *Session) Summary() string {
	var elements []string

	if ds := s.Dataset(); ds != nil {
		elements = append(elements,
			fmt.Sprintf("Dataset:          %s", ds.Name()),
			fmt.Sprintf("Selected samples: %d", len(s.Selected())),
			fmt.Sprintf("Selected objects: %d", len(s.SelectedObjects())),
		)
	} else {
		elements = append(elements, "Dataset:          -")
	}

	elements = append(elements, fmt.Sprintf("URL:              %s", s.URL()))

	if v := s.View(); v != nil {
		elements = append(elements, fmt.Sprintf("View:             %s", v.Name()))
	}

	return strings.Join(elements, "\n")
}

// Release frees the session's resources: its server subscription, the
// desktop App process, and the push connection. If this session was the
// last subscriber for its port, the server process is stopped. Safe to call
// multiple times; never fails. A release shortly after launch emits a
// warning, unless an interrupted Wait already marked the shutdown as
// intentional.
func (s *Session) Release() {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return
	}
	s.released = true
	warn := !s.waitWarningDisabled &&
		s.manager.deps.Now().Sub(s.createdAt) < prematureReleaseWindow
	proc := s.desktopProc
	s.desktopProc = nil
	s.mu.Unlock()

	if warn {
		s.logger().Warn(waitInstructions)
	}

	s.manager.procs.Release(s.port, s.subscriberID)

	if proc != nil {
		if err := proc.Stop(); err != nil {
			s.logger().Warn("Failed to stop desktop App", zap.Error(err))
		}
	}

	if closer, ok := s.pusher.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			s.logger().Warn("Failed to close push client", zap.Error(err))
		}
	}
}

func (s *Session) startDesktop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.desktopProc != nil {
		select {
		case <-s.desktopProc.Done():
			// exited out-of-band; relaunch below
		default:
			return nil
		}
	}

	proc, err := s.manager.deps.Desktop.StartDesktop(s.port)
	if err != nil {
		return err
	}
	s.desktopProc = proc
	return nil
}

// autoShow renders the App after a state update, in notebook contexts with
// auto-show enabled. Runs strictly after the mutation's push completed.
func (s *Session) autoShow() error {
	if s.auto && s.context().IsNotebook() {
		return s.Show(config.DefaultHeight)
	}
	return nil
}

func (s *Session) resolveHeight(height int) int {
	if height > 0 && height != config.DefaultHeight {
		return height
	}
	if s.height != config.DefaultHeight {
		return s.height
	}
	return config.DefaultHeight
}

// context resolves the execution context. Resolved at each decision point
// rather than cached on the session.
func (s *Session) context() environ.Context {
	return s.manager.deps.Context.Resolve()
}

func (s *Session) logger() *logging.Logger {
	return s.manager.logger
}

func (s *Session) disableWaitWarning() {
	s.mu.Lock()
	s.waitWarningDisabled = true
	s.mu.Unlock()
}
