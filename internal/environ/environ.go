package environ

import "os"

// Context classifies the execution environment of the calling process.
type Context int

const (
	// None means a plain Go process with no notebook kernel attached.
	None Context = iota
	// IPython means a Jupyter-style notebook kernel with direct network
	// access to the App server.
	IPython
	// Colab means a hosted notebook whose ports are only reachable through
	// the hosting environment's proxy tunnel.
	Colab
)

func (c Context) String() string {
	switch c {
	case IPython:
		return "ipython"
	case Colab:
		return "colab"
	default:
		return "none"
	}
}

// IsNotebook reports whether the context has a notebook kernel.
func (c Context) IsNotebook() bool {
	return c != None
}

// Resolver determines the current execution context. Implementations must be
// side-effect free; callers query the resolver at each decision point rather
// than caching the result on the session.
type Resolver interface {
	Resolve() Context
}

// Detect resolves the context from ambient environment signals.
//
// The VISTA_CONTEXT variable ("none", "ipython", "colab") overrides
// detection. Otherwise a Colab release tag marks a hosted notebook, and a
// Jupyter parent-process marker indicates a local kernel.
func Detect() Context {
	switch os.Getenv("VISTA_CONTEXT") {
	case "none":
		return None
	case "ipython":
		return IPython
	case "colab":
		return Colab
	}

	if os.Getenv("COLAB_RELEASE_TAG") != "" {
		return Colab
	}
	if os.Getenv("JPY_PARENT_PID") != "" {
		return IPython
	}

	return None
}

// DetectResolver resolves the context from the environment on every call.
type DetectResolver struct{}

// Resolve implements Resolver.
func (DetectResolver) Resolve() Context {
	return Detect()
}

// Static is a fixed-context resolver, used to pin a context in tests.
type Static Context

// Resolve implements Resolver.
func (s Static) Resolve() Context {
	return Context(s)
}
