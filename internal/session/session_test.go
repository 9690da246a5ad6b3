package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/vistaml/vista/internal/config"
	"github.com/vistaml/vista/internal/datasets"
	"github.com/vistaml/vista/internal/environ"
	"github.com/vistaml/vista/internal/logging"
	"github.com/vistaml/vista/internal/process"
	"github.com/vistaml/vista/internal/registry"
	"github.com/vistaml/vista/internal/state"
)

// events records collaborator invocations in order.
type events struct {
	mu   sync.Mutex
	list []string
}

func (e *events) add(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.list = append(e.list, name)
}

func (e *events) snapshot() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string{}, e.list...)
}

func (e *events) count(name string) int {
	n := 0
	for _, ev := range e.snapshot() {
		if ev == name {
			n++
		}
	}
	return n
}

type fakeProc struct {
	done     chan struct{}
	stopOnce sync.Once
	events   *events
	stopName string
}

func newFakeProc() *fakeProc {
	return &fakeProc{done: make(chan struct{})}
}

func (p *fakeProc) Stop() error {
	p.stopOnce.Do(func() {
		close(p.done)
		if p.events != nil {
			p.events.add(p.stopName)
		}
	})
	return nil
}

func (p *fakeProc) Done() <-chan struct{} { return p.done }

func (p *fakeProc) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type fakeServerLauncher struct {
	events *events
}

func (l *fakeServerLauncher) StartServer(port int, opts process.ServerOptions) (process.Handle, error) {
	l.events.add("server-start")
	proc := newFakeProc()
	proc.events = l.events
	proc.stopName = "server-stop"
	return proc, nil
}

type fakeDesktopLauncher struct {
	events *events
}

func (l *fakeDesktopLauncher) StartDesktop(port int) (process.Handle, error) {
	l.events.add("desktop-start")
	return newFakeProc(), nil
}

type renderCall struct {
	ctx    environ.Context
	port   int
	height int
}

type fakeRenderer struct {
	events *events
	mu     sync.Mutex
	calls  []renderCall
}

func (r *fakeRenderer) Render(ctx environ.Context, port, height int) error {
	r.events.add("render")
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, renderCall{ctx: ctx, port: port, height: height})
	return nil
}

type countingCatalog struct {
	inner *datasets.MemoryCatalog
	mu    sync.Mutex
	lists int
}

func (c *countingCatalog) ListDatasets() ([]string, error) {
	c.mu.Lock()
	c.lists++
	c.mu.Unlock()
	return c.inner.ListDatasets()
}

func (c *countingCatalog) listCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lists
}

type harness struct {
	events   *events
	manager  *Manager
	renderer *fakeRenderer
	catalog  *countingCatalog
	logs     *observer.ObservedLogs
	browsed  []string
	now      time.Time
}

func newHarness(t *testing.T, ctx environ.Context, mutate ...func(h *harness, cfg *config.Config, deps *Deps)) *harness {
	t.Helper()

	h := &harness{
		events:  &events{},
		catalog: &countingCatalog{inner: datasets.NewMemoryCatalog("animals", "plants")},
		now:     time.Now(),
	}
	h.renderer = &fakeRenderer{events: h.events}

	core, logs := observer.New(zap.WarnLevel)
	h.logs = logs
	logger := &logging.Logger{Logger: zap.New(core)}

	cfg := config.Default()
	cfg.Desktop.Command = ""

	procs := registry.New(&fakeServerLauncher{events: h.events}, logger)

	deps := Deps{
		Context: environ.Static(ctx),
		Catalog: h.catalog,
		NewPusher: func(port int) state.Pusher {
			return state.PusherFunc(func(namespace, attribute string, snapshot state.Description) error {
				h.events.add("push")
				return nil
			})
		},
		OpenBrowser: func(url string) error {
			h.events.add("browser")
			h.browsed = append(h.browsed, url)
			return nil
		},
		Display: h.renderer,
		Now:     func() time.Time { return h.now },
	}

	for _, fn := range mutate {
		fn(h, cfg, &deps)
	}

	h.manager = NewManager(cfg, logger, procs, deps)
	return h
}

func boolPtr(b bool) *bool { return &b }

func TestLaunchHeadlessOpensBrowser(t *testing.T) {
	h := newHarness(t, environ.None)

	sess, err := h.manager.Launch(Options{Port: 5151})
	require.NoError(t, err)
	defer h.manager.CloseApp()

	require.Len(t, h.browsed, 1)
	assert.Contains(t, h.browsed[0], "localhost:5151")
	assert.Equal(t, 0, h.events.count("desktop-start"))
	assert.Equal(t, 5151, sess.Port())
}

func TestLaunchRemoteTakesNoUIAction(t *testing.T) {
	h := newHarness(t, environ.None)

	_, err := h.manager.Launch(Options{Remote: true})
	require.NoError(t, err)
	defer h.manager.CloseApp()

	assert.Empty(t, h.browsed)
	assert.Equal(t, 0, h.events.count("desktop-start"))
	assert.Equal(t, 1, h.events.count("server-start"))
}

func TestLaunchDesktopStartsProcess(t *testing.T) {
	h := newHarness(t, environ.None, func(h *harness, cfg *config.Config, deps *Deps) {
		deps.Desktop = &fakeDesktopLauncher{events: h.events}
	})

	_, err := h.manager.Launch(Options{Desktop: boolPtr(true)})
	require.NoError(t, err)
	defer h.manager.CloseApp()

	assert.Equal(t, 1, h.events.count("desktop-start"))
	assert.Empty(t, h.browsed)
}

func TestRemoteNotebookIsConfigurationError(t *testing.T) {
	h := newHarness(t, environ.IPython)

	_, err := h.manager.Launch(Options{Remote: true})
	require.ErrorIs(t, err, ErrConfiguration)
	assert.Equal(t, 0, h.events.count("server-start"),
		"a failed construction must not acquire a process")
}

func TestDesktopNotebookIsContextMismatch(t *testing.T) {
	h := newHarness(t, environ.IPython, func(h *harness, cfg *config.Config, deps *Deps) {
		deps.Desktop = &fakeDesktopLauncher{events: h.events}
	})

	_, err := h.manager.Launch(Options{Desktop: boolPtr(true)})
	require.ErrorIs(t, err, ErrContextMismatch)
	assert.Equal(t, 0, h.events.count("server-start"))
}

func TestDesktopWithoutPackageIsConfigurationError(t *testing.T) {
	h := newHarness(t, environ.None)

	_, err := h.manager.Launch(Options{Desktop: boolPtr(true)})
	require.ErrorIs(t, err, ErrConfiguration)
	assert.Equal(t, 0, h.events.count("server-start"))
}

func TestRelaunchReleasesPriorSession(t *testing.T) {
	h := newHarness(t, environ.None)

	first, err := h.manager.Launch(Options{Port: 7000})
	require.NoError(t, err)

	second, err := h.manager.Launch(Options{Port: 7000})
	require.NoError(t, err)
	defer h.manager.CloseApp()

	assert.NotSame(t, first, second)
	assert.Same(t, second, h.manager.Active())
	assert.Equal(t, 1, h.manager.Registry().SubscriberCount(7000))

	// The prior subscription is fully released before the new acquire
	want := []string{"server-start", "server-stop", "server-start"}
	var lifecycle []string
	for _, ev := range h.events.snapshot() {
		if strings.HasPrefix(ev, "server-") {
			lifecycle = append(lifecycle, ev)
		}
	}
	assert.Equal(t, want, lifecycle)
}

func TestShowOutsideNotebookWarnsWithoutPush(t *testing.T) {
	h := newHarness(t, environ.None)

	sess, err := h.manager.Launch(Options{})
	require.NoError(t, err)
	defer h.manager.CloseApp()

	pushes := h.events.count("push")
	require.NoError(t, sess.Show(0))

	assert.Equal(t, pushes, h.events.count("push"), "Show outside a notebook must not push")
	assert.Equal(t, 0, h.events.count("render"))
	assert.Equal(t, 1, h.logs.FilterMessageSnippet("no-op").Len())
}

func TestAutoShowRendersAfterPush(t *testing.T) {
	h := newHarness(t, environ.IPython)

	sess, err := h.manager.Launch(Options{Height: 900})
	require.NoError(t, err)
	defer h.manager.CloseApp()

	require.NoError(t, sess.SetDataset(datasets.Named{DatasetName: "animals"}))

	require.Equal(t, 1, h.events.count("render"),
		"one state update must trigger exactly one render")
	call := h.renderer.calls[0]
	assert.Equal(t, 900, call.height, "render must use the session's configured height")
	assert.Equal(t, environ.IPython, call.ctx)

	// Ordering: the push precedes the render
	evs := h.events.snapshot()
	lastPush, render := -1, -1
	for i, ev := range evs {
		if ev == "push" && render == -1 {
			lastPush = i
		}
		if ev == "render" && render == -1 {
			render = i
		}
	}
	require.Greater(t, render, lastPush, "auto-show must run after the push completes")
}

func TestAutoShowDisabled(t *testing.T) {
	h := newHarness(t, environ.IPython)

	sess, err := h.manager.Launch(Options{Auto: boolPtr(false)})
	require.NoError(t, err)
	defer h.manager.CloseApp()

	require.NoError(t, sess.SetDataset(datasets.Named{DatasetName: "animals"}))
	assert.Equal(t, 0, h.events.count("render"))
}

func TestShowHeightPrecedence(t *testing.T) {
	h := newHarness(t, environ.IPython)

	sess, err := h.manager.Launch(Options{Auto: boolPtr(false), Height: 900})
	require.NoError(t, err)
	defer h.manager.CloseApp()

	// The default sentinel defers to the session's configured height
	require.NoError(t, sess.Show(config.DefaultHeight))
	// An explicit non-default height wins
	require.NoError(t, sess.Show(650))
	// Zero means no override
	require.NoError(t, sess.Show(0))

	heights := []int{}
	for _, call := range h.renderer.calls {
		heights = append(heights, call.height)
	}
	assert.Equal(t, []int{900, 650, 900}, heights)
}

func TestOpenFromNotebookFails(t *testing.T) {
	h := newHarness(t, environ.IPython)

	sess, err := h.manager.Launch(Options{})
	require.NoError(t, err)
	defer h.manager.CloseApp()

	require.ErrorIs(t, sess.Open(), ErrContextMismatch)
	assert.Empty(t, h.browsed)
}

func TestOpenRemoteFails(t *testing.T) {
	h := newHarness(t, environ.None)

	sess, err := h.manager.Launch(Options{Remote: true})
	require.NoError(t, err)
	defer h.manager.CloseApp()

	require.ErrorIs(t, sess.Open(), ErrContextMismatch)
}

func TestOpenReassertsBrowser(t *testing.T) {
	h := newHarness(t, environ.None)

	sess, err := h.manager.Launch(Options{})
	require.NoError(t, err)
	defer h.manager.CloseApp()

	require.NoError(t, sess.Open())
	assert.Len(t, h.browsed, 2) // construction + explicit Open
}

func TestCloseIsAdvisory(t *testing.T) {
	h := newHarness(t, environ.None)

	sess, err := h.manager.Launch(Options{})
	require.NoError(t, err)
	defer h.manager.CloseApp()

	lists := h.catalog.listCount()
	require.NoError(t, sess.Close())

	assert.True(t, sess.State().CloseRequested)
	assert.Equal(t, lists, h.catalog.listCount(),
		"the close push must not refresh the catalog")
	assert.Equal(t, 1, h.manager.Registry().SubscriberCount(sess.Port()),
		"Close must not release the session's subscription")
}

func TestCloseRemoteIsNoop(t *testing.T) {
	h := newHarness(t, environ.None)

	sess, err := h.manager.Launch(Options{Remote: true})
	require.NoError(t, err)
	defer h.manager.CloseApp()

	pushes := h.events.count("push")
	require.NoError(t, sess.Close())
	assert.Equal(t, pushes, h.events.count("push"))
	assert.False(t, sess.State().CloseRequested)
}

func TestPrematureReleaseWarns(t *testing.T) {
	h := newHarness(t, environ.None)

	_, err := h.manager.Launch(Options{})
	require.NoError(t, err)

	// Released in under 2.5s of session time
	h.manager.CloseApp()

	assert.Equal(t, 1, h.logs.FilterMessageSnippet("terminated shortly").Len())
}

func TestMatureReleaseDoesNotWarn(t *testing.T) {
	h := newHarness(t, environ.None)

	_, err := h.manager.Launch(Options{})
	require.NoError(t, err)

	h.now = h.now.Add(10 * time.Second)
	h.manager.CloseApp()

	assert.Equal(t, 0, h.logs.FilterMessageSnippet("terminated shortly").Len())
}

func TestInterruptedWaitSuppressesWarning(t *testing.T) {
	h := newHarness(t, environ.None)

	sess, err := h.manager.Launch(Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, sess.Wait(ctx), context.Canceled)

	h.manager.CloseApp()
	assert.Equal(t, 0, h.logs.FilterMessageSnippet("terminated shortly").Len(),
		"an interrupted Wait is the expected shutdown path")
}

func TestReleaseIsIdempotent(t *testing.T) {
	h := newHarness(t, environ.None)

	sess, err := h.manager.Launch(Options{})
	require.NoError(t, err)

	sess.Release()
	sess.Release()
	h.manager.CloseApp()

	assert.Equal(t, 1, h.events.count("server-stop"))
}

func TestInitialDatasetAppliesInvariants(t *testing.T) {
	h := newHarness(t, environ.None)

	ds := datasets.Named{DatasetName: "animals"}
	sess, err := h.manager.Launch(Options{Dataset: ds})
	require.NoError(t, err)
	defer h.manager.CloseApp()

	require.NotNil(t, sess.Dataset())
	assert.Equal(t, "animals", sess.Dataset().Name())
	assert.Empty(t, sess.Selected())
	assert.Greater(t, h.events.count("push"), 0,
		"the initial dataset must be pushed during construction")
}

func TestInitialViewWins(t *testing.T) {
	h := newHarness(t, environ.None)

	owner := datasets.Named{DatasetName: "animals"}
	view := datasets.SliceView{ViewName: "cats", Owner: owner}
	sess, err := h.manager.Launch(Options{Dataset: owner, View: view})
	require.NoError(t, err)
	defer h.manager.CloseApp()

	require.NotNil(t, sess.View())
	assert.Equal(t, "cats", sess.View().Name())
	assert.Equal(t, "animals", sess.Dataset().Name())
}

func TestSummary(t *testing.T) {
	h := newHarness(t, environ.None)

	sess, err := h.manager.Launch(Options{Dataset: datasets.Named{DatasetName: "animals"}, Port: 5151})
	require.NoError(t, err)
	defer h.manager.CloseApp()

	summary := sess.Summary()
	assert.Contains(t, summary, "animals")
	assert.Contains(t, summary, "http://localhost:5151")
}

func TestURLUsesColabProxy(t *testing.T) {
	h := newHarness(t, environ.Colab, func(h *harness, cfg *config.Config, deps *Deps) {
		deps.ProxyURL = func(port int) (string, error) {
			return fmt.Sprintf("https://%d-colab.googleusercontent.com/", port), nil
		}
	})

	sess, err := h.manager.Launch(Options{Port: 5151})
	require.NoError(t, err)
	defer h.manager.CloseApp()

	assert.Equal(t, "https://5151-colab.googleusercontent.com/?vistaColab=true", sess.URL())
	assert.Contains(t, sess.Summary(), "vistaColab=true")
}

func TestURLFallsBackWithoutProxy(t *testing.T) {
	h := newHarness(t, environ.Colab)

	sess, err := h.manager.Launch(Options{Port: 5151})
	require.NoError(t, err)
	defer h.manager.CloseApp()

	assert.Equal(t, "http://localhost:5151", sess.URL())
}
