package workflow

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

const (
	stateVersion   = "1.0"
	stateFileName  = "state.json"
	lockFileName   = ".lock"
	reportsDirName = "reports"
)

// TimeProvider provides the current time (allows mocking in tests)
type TimeProvider func() time.Time

// StateManager interface for state persistence operations
type StateManager interface {
	// Run directory operations
	EnsureRunDir(name string) error
	RunExists(name string) bool
	RunDir(name string) string
	ReportsDir(name string) string

	// State operations (with automatic locking)
	LoadState(name string) (*RunState, error)
	SaveState(name string, state *RunState) error
	InitState(story string, maxRetries int) (*RunState, error)

	// List and delete
	ListRuns() ([]RunInfo, error)
	DeleteRun(name string) error

	// Time provider for testing
	SetTimeProvider(tp TimeProvider)
}

// fileStateManager implements StateManager using file-based storage
type fileStateManager struct {
	baseDir      string
	locks        map[string]*flock.Flock
	mu           sync.Mutex
	timeProvider TimeProvider
}

// NewStateManager creates a new file-based state manager rooted at the
// output directory; each run owns one subdirectory.
func NewStateManager(baseDir string) StateManager {
	return &fileStateManager{
		baseDir:      baseDir,
		locks:        make(map[string]*flock.Flock),
		timeProvider: time.Now,
	}
}

// SetTimeProvider sets a custom time provider for testing
func (s *fileStateManager) SetTimeProvider(tp TimeProvider) {
	s.timeProvider = tp
}

// RunDir returns the directory path for a run
func (s *fileStateManager) RunDir(name string) string {
	return filepath.Join(s.baseDir, name)
}

// ReportsDir returns the directory reports are written into for a run
func (s *fileStateManager) ReportsDir(name string) string {
	return filepath.Join(s.RunDir(name), reportsDirName)
}

// EnsureRunDir creates the run directory structure if it doesn't exist
func (s *fileStateManager) EnsureRunDir(name string) error {
	if err := ValidateRunName(name); err != nil {
		return err
	}

	runDir := s.RunDir(name)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return fmt.Errorf("failed to create run directory: %w", err)
	}

	if err := os.MkdirAll(s.ReportsDir(name), 0755); err != nil {
		return fmt.Errorf("failed to create reports directory: %w", err)
	}

	return nil
}

// RunExists checks if a run directory with saved state exists
func (s *fileStateManager) RunExists(name string) bool {
	if err := ValidateRunName(name); err != nil {
		return false
	}

	statePath := filepath.Join(s.RunDir(name), stateFileName)
	_, err := os.Stat(statePath)
	return err == nil
}

// lock acquires a file lock for the run
func (s *fileStateManager) lock(name string) (*flock.Flock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lockPath := filepath.Join(s.RunDir(name), lockFileName)
	fileLock := flock.New(lockPath)

	locked, err := fileLock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}

	if !locked {
		return nil, ErrStateLocked
	}

	s.locks[name] = fileLock
	return fileLock, nil
}

// unlock releases the file lock for the run
func (s *fileStateManager) unlock(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fileLock, ok := s.locks[name]
	if !ok {
		return nil
	}

	if err := fileLock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}

	delete(s.locks, name)
	return nil
}

// LoadState loads run state from disk
func (s *fileStateManager) LoadState(name string) (*RunState, error) {
	if err := ValidateRunName(name); err != nil {
		return nil, err
	}

	if !s.RunExists(name) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, name)
	}

	statePath := filepath.Join(s.RunDir(name), stateFileName)
	data, err := os.ReadFile(statePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	var state RunState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStateCorrupted, err)
	}

	return &state, nil
}

// SaveState saves run state to disk with atomic write
func (s *fileStateManager) SaveState(name string, state *RunState) error {
	if err := ValidateRunName(name); err != nil {
		return err
	}

	if err := s.EnsureRunDir(name); err != nil {
		return err
	}

	fileLock, err := s.lock(name)
	if err != nil {
		return err
	}
	defer s.unlock(name)
	defer fileLock.Close()

	state.UpdatedAt = s.timeProvider()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	statePath := filepath.Join(s.RunDir(name), stateFileName)
	if err := s.atomicWrite(statePath, data); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}

	return nil
}

// InitState initializes and persists the state for a new run
func (s *fileStateManager) InitState(story string, maxRetries int) (*RunState, error) {
	if err := ValidateStory(story); err != nil {
		return nil, err
	}

	if maxRetries < 0 {
		return nil, fmt.Errorf("max repair attempts must not be negative, got %d", maxRetries)
	}

	slug := Slugify(story)
	name, id := NewRunName(slug)
	if s.RunExists(name) {
		return nil, fmt.Errorf("%w: %s", ErrRunExists, name)
	}

	now := s.timeProvider()
	state := &RunState{
		Version:      stateVersion,
		ID:           id,
		Name:         name,
		Slug:         slug,
		Story:        story,
		CurrentPhase: PhaseGenerate,
		MaxRetries:   maxRetries,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.SaveState(name, state); err != nil {
		return nil, err
	}

	return state, nil
}

// ListRuns returns information about all runs under the output directory
func (s *fileStateManager) ListRuns() ([]RunInfo, error) {
	if err := os.MkdirAll(s.baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read output directory: %w", err)
	}

	var runs []RunInfo
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		name := entry.Name()
		if !s.RunExists(name) {
			continue
		}

		state, err := s.LoadState(name)
		if err != nil {
			continue
		}

		runs = append(runs, RunInfo{
			Name:      state.Name,
			Slug:      state.Slug,
			Story:     state.Story,
			Phase:     state.CurrentPhase,
			Status:    state.Outcome(),
			Attempts:  state.AttemptCount,
			Repairs:   len(state.History),
			CreatedAt: state.CreatedAt,
			UpdatedAt: state.UpdatedAt,
		})
	}

	return runs, nil
}

// DeleteRun removes a run and all its state
func (s *fileStateManager) DeleteRun(name string) error {
	if err := ValidateRunName(name); err != nil {
		return err
	}

	if !s.RunExists(name) {
		return fmt.Errorf("%w: %s", ErrRunNotFound, name)
	}

	runDir := s.RunDir(name)
	if err := os.RemoveAll(runDir); err != nil {
		return fmt.Errorf("failed to delete run directory: %w", err)
	}

	return nil
}

// atomicWrite writes data to a file atomically using a temp file and rename
func (s *fileStateManager) atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	tmpPath := tmpFile.Name()
	defer func() {
		tmpFile.Close()
		os.Remove(tmpPath)
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}
