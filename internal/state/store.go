package state

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/vistaml/vista/internal/datasets"
	"github.com/vistaml/vista/internal/logging"
)

// Store holds the canonical session state and synchronizes it with the
// remote App process. Every mutator fully applies its write, refreshes the
// dataset catalog, and then pushes the complete snapshot, so the remote
// process never observes a partially updated state.
type Store struct {
	mu      sync.Mutex
	catalog datasets.Catalog
	pusher  Pusher
	logger  *logging.Logger

	dataset datasets.Dataset
	view    datasets.View
	desc    Description
}

// NewStore creates a store synchronizing through the given pusher.
func NewStore(catalog datasets.Catalog, pusher Pusher, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Store{
		catalog: catalog,
		pusher:  pusher,
		logger:  logger,
		desc:    NewDescription(),
	}
}

// Dataset returns the effective dataset: the view's owning dataset when a
// view is loaded, otherwise the loaded dataset, or nil.
func (s *Store) Dataset() datasets.Dataset {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.view != nil {
		return s.view.Dataset()
	}
	return s.dataset
}

// View returns the loaded view, or nil if none is loaded.
func (s *Store) View() datasets.View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

// Selected returns the IDs of the samples currently selected in the App.
func (s *Store) Selected() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.desc.SelectedSamples...)
}

// SelectedObjects returns the objects currently selected in the App.
func (s *Store) SelectedObjects() []SelectedObject {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SelectedObject{}, s.desc.SelectedObjects...)
}

// Snapshot returns a copy of the current state description.
func (s *Store) Snapshot() Description {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.desc.Clone()
}

// CloseRequested reports whether the close flag has been pushed.
func (s *Store) CloseRequested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.desc.CloseRequested
}

// SetDataset loads a dataset, clearing any view, selections, and filters.
// The dataset's persisted metadata is reloaded before the state is touched;
// a reload failure leaves the state unchanged.
func (s *Store) SetDataset(d datasets.Dataset) error {
	if d != nil {
		if err := d.Reload(); err != nil {
			return fmt.Errorf("failed to reload dataset %q: %w", d.Name(), err)
		}
	}

	s.mu.Lock()
	s.dataset = d
	s.view = nil
	if d != nil {
		s.desc.Dataset = d.Name()
	} else {
		s.desc.Dataset = ""
	}
	s.desc.View = ""
	s.clearSelectionsLocked()
	s.mu.Unlock()

	return s.sync()
}

// SetView loads a view, making its owning dataset the effective dataset and
// clearing selections and filters.
func (s *Store) SetView(v datasets.View) error {
	var owner datasets.Dataset
	if v != nil {
		owner = v.Dataset()
		if owner == nil {
			return fmt.Errorf("view %q has no owning dataset", v.Name())
		}
		if err := owner.Reload(); err != nil {
			return fmt.Errorf("failed to reload dataset %q: %w", owner.Name(), err)
		}
	}

	s.mu.Lock()
	s.view = v
	if v != nil {
		s.dataset = owner
		s.desc.Dataset = owner.Name()
		s.desc.View = v.Name()
	} else {
		s.desc.View = ""
	}
	s.clearSelectionsLocked()
	s.mu.Unlock()

	return s.sync()
}

// ClearDataset unloads the current dataset, if any. Equivalent to
// SetDataset(nil): the view, selections, and filters go with it.
func (s *Store) ClearDataset() error {
	s.mu.Lock()
	s.dataset = nil
	s.view = nil
	s.desc.Dataset = ""
	s.desc.View = ""
	s.clearSelectionsLocked()
	s.mu.Unlock()

	return s.sync()
}

// ClearView unloads the current view, if any. Equivalent to SetView(nil):
// the view's dataset remains loaded, selections and filters are reset.
func (s *Store) ClearView() error {
	s.mu.Lock()
	s.view = nil
	s.desc.View = ""
	s.clearSelectionsLocked()
	s.mu.Unlock()

	return s.sync()
}

// SetSelectedSamples replaces the set of selected sample IDs.
func (s *Store) SetSelectedSamples(ids []string) error {
	s.mu.Lock()
	s.desc.SelectedSamples = append([]string{}, ids...)
	s.mu.Unlock()

	return s.sync()
}

// SetSelectedObjects replaces the selected objects.
func (s *Store) SetSelectedObjects(objects []SelectedObject) error {
	s.mu.Lock()
	s.desc.SelectedObjects = append([]SelectedObject{}, objects...)
	s.mu.Unlock()

	return s.sync()
}

// SetFilter sets a named filter value.
func (s *Store) SetFilter(name string, value interface{}) error {
	s.mu.Lock()
	s.desc.Filters[name] = value
	s.mu.Unlock()

	return s.sync()
}

// Refresh re-pushes the current state unchanged, forcing the App to reload.
func (s *Store) Refresh() error {
	return s.sync()
}

// RequestClose sets the close flag and pushes it. This is the only mutation
// that skips the catalog refresh: the close flag supersedes any further
// display concerns.
func (s *Store) RequestClose() error {
	s.mu.Lock()
	s.desc.CloseRequested = true
	snapshot := s.desc.Clone()
	s.mu.Unlock()

	return s.push(snapshot)
}

// RefreshCatalog re-reads the dataset catalog into the state without
// pushing.
func (s *Store) RefreshCatalog() {
	names, err := s.catalog.ListDatasets()
	if err != nil {
		s.logger.Warn("Failed to list datasets", zap.Error(err))
		return
	}

	s.mu.Lock()
	s.desc.Datasets = names
	s.mu.Unlock()
}

// sync refreshes the dataset catalog and pushes the full snapshot. The
// catalog refresh is best-effort: a listing failure keeps the previous
// catalog rather than blocking the push.
func (s *Store) sync() error {
	s.RefreshCatalog()

	s.mu.Lock()
	snapshot := s.desc.Clone()
	s.mu.Unlock()

	return s.push(snapshot)
}

func (s *Store) push(snapshot Description) error {
	if s.pusher == nil {
		return nil
	}
	if err := s.pusher.Push(Namespace, Attribute, snapshot); err != nil {
		// Pushes are one-way notifications; a delivery failure is the
		// transport's concern, not the caller's.
		s.logger.Warn("State push failed", zap.Error(err))
	}
	return nil
}

func (s *Store) clearSelectionsLocked() {
	s.desc.SelectedSamples = []string{}
	s.desc.SelectedObjects = []SelectedObject{}
	s.desc.Filters = map[string]interface{}{}
}
