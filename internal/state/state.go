package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const stateDir = ".beanline"
const stateFile = "state.json"

// ViewState is the persisted tree view preferences of one project.
type ViewState struct {
	SortMode  string    `json:"sort_mode,omitempty"`
	ViewMode  string    `json:"view_mode,omitempty"`
	Query     string    `json:"query,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`

	mu   sync.Mutex `json:"-"`
	path string     `json:"-"`
}

// Path returns the state file location under root.
func Path(root string) string {
	return filepath.Join(root, stateDir, stateFile)
}

// Load reads the state under root. A missing file yields an empty state
// that will be written on the first Save.
func Load(root string) (*ViewState, error) {
	path := Path(root)
	s := &ViewState{path: path}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state: %w", err)
	}
	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parse state: %w", err)
	}
	return s, nil
}

// Exists checks if a state file exists under root.
func Exists(root string) bool {
	_, err := os.Stat(Path(root))
	return err == nil
}

// Save persists the current state to disk.
func (s *ViewState) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *ViewState) saveLocked() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	s.UpdatedAt = time.Now()
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	return os.WriteFile(s.path, data, 0644)
}

// SetSortMode records the sort mode and saves.
func (s *ViewState) SetSortMode(mode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SortMode = mode
	return s.saveLocked()
}

// SetViewMode records the view mode and saves.
func (s *ViewState) SetViewMode(mode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ViewMode = mode
	return s.saveLocked()
}

// SetQuery records the last search query and saves.
func (s *ViewState) SetQuery(q string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Query = q
	return s.saveLocked()
}

// Snapshot returns the sort and view modes, falling back to the given
// defaults for unset values.
func (s *ViewState) Snapshot(defaultSort, defaultView string) (sortMode, viewMode string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sortMode, viewMode = s.SortMode, s.ViewMode
	if sortMode == "" {
		sortMode = defaultSort
	}
	if viewMode == "" {
		viewMode = defaultView
	}
	return sortMode, viewMode
}

// Clean removes the state directory under root.
func Clean(root string) error {
	return os.RemoveAll(filepath.Join(root, stateDir))
}
