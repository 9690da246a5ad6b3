package datasets

import (
	"sort"
	"sync"
)

// Dataset is the handle to a named dataset known to the App.
type Dataset interface {
	// Name returns the dataset's unique name.
	Name() string
	// Reload re-reads the dataset's persisted metadata.
	Reload() error
}

// View is a filtered or transformed view into a dataset. A view never exists
// without an owning dataset.
type View interface {
	// Name returns a human-readable description of the view.
	Name() string
	// Dataset returns the dataset the view is derived from.
	Dataset() Dataset
}

// Catalog lists the datasets available to the App.
type Catalog interface {
	// ListDatasets returns the names of all known datasets, ordered.
	ListDatasets() ([]string, error)
}

// MemoryCatalog is an in-memory Catalog used by tests and the demo CLI.
type MemoryCatalog struct {
	mu    sync.RWMutex
	names map[string]struct{}
}

// NewMemoryCatalog creates a catalog pre-populated with the given names.
func NewMemoryCatalog(names ...string) *MemoryCatalog {
	c := &MemoryCatalog{names: make(map[string]struct{}, len(names))}
	for _, name := range names {
		c.names[name] = struct{}{}
	}
	return c
}

// Add registers a dataset name with the catalog.
func (c *MemoryCatalog) Add(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.names[name] = struct{}{}
}

// Remove deletes a dataset name from the catalog.
func (c *MemoryCatalog) Remove(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.names, name)
}

// ListDatasets implements Catalog. Names are returned sorted.
func (c *MemoryCatalog) ListDatasets() ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.names))
	for name := range c.names {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Named is a minimal Dataset backed only by its name. Reload is a no-op.
type Named struct {
	DatasetName string
}

// Name implements Dataset.
func (n Named) Name() string { return n.DatasetName }

// Reload implements Dataset.
func (n Named) Reload() error { return nil }

// SliceView is a minimal View over a Dataset, used by tests and the CLI.
type SliceView struct {
	ViewName string
	Owner    Dataset
}

// Name implements View.
func (v SliceView) Name() string { return v.ViewName }

// Dataset implements View.
func (v SliceView) Dataset() Dataset { return v.Owner }
