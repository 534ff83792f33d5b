package artifact

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/gofrs/flock"
)

const lockFileName = ".lock"

var (
	// ErrVersionNotFound indicates the requested kind/version pair does
	// not exist in the store.
	ErrVersionNotFound = errors.New("artifact version not found")
	// ErrUnknownKind indicates an artifact kind the store does not manage.
	ErrUnknownKind = errors.New("unknown artifact kind")
	// ErrStoreLocked indicates another process holds the store lock.
	ErrStoreLocked = errors.New("artifact store is locked by another process")
)

// Kind identifies an artifact stream within a run.
type Kind string

const (
	// KindFeature is the BDD feature document stream.
	KindFeature Kind = "feature"
	// KindSteps is the step definition document stream.
	KindSteps Kind = "steps"
)

func (k Kind) valid() bool {
	return k == KindFeature || k == KindSteps
}

// Dir is the directory holding this kind's versions, relative to the run
// directory.
func (k Kind) Dir() string {
	switch k {
	case KindFeature:
		return "features"
	case KindSteps:
		return "steps"
	default:
		return string(k)
	}
}

func (k Kind) ext() string {
	switch k {
	case KindFeature:
		return ".feature"
	default:
		return ".json"
	}
}

// Store is a versioned, append-only artifact store scoped to one run
// directory (the run's namespace). Versions start at 1 and increase
// monotonically per kind. Stored versions are immutable: a patch is always
// written as a new version, never over an existing file.
type Store struct {
	baseDir string
	mu      sync.Mutex
}

// NewStore creates a store rooted at the given run directory.
func NewStore(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

// BaseDir returns the run directory this store is scoped to.
func (s *Store) BaseDir() string {
	return s.baseDir
}

// Rel returns the run-directory-relative path for a kind/version pair.
func Rel(kind Kind, version int) string {
	return filepath.Join(kind.Dir(), fmt.Sprintf("v%03d%s", version, kind.ext()))
}

// Path returns the file path for a kind/version pair. The file may or may
// not exist.
func (s *Store) Path(kind Kind, version int) string {
	return filepath.Join(s.baseDir, Rel(kind, version))
}

// Put stores content as the next version of the given kind and returns the
// assigned version number. The write is atomic and guarded by a file lock
// so the version counter cannot collide even across processes sharing a
// namespace.
func (s *Store) Put(kind Kind, content string) (int, error) {
	if !kind.valid() {
		return 0, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Join(s.baseDir, kind.Dir())
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, fmt.Errorf("failed to create artifact directory: %w", err)
	}

	fileLock := flock.New(filepath.Join(s.baseDir, lockFileName))
	locked, err := fileLock.TryLock()
	if err != nil {
		return 0, fmt.Errorf("failed to acquire store lock: %w", err)
	}
	if !locked {
		return 0, ErrStoreLocked
	}
	defer fileLock.Unlock()
	defer fileLock.Close()

	versions, err := s.scanVersions(kind)
	if err != nil {
		return 0, err
	}
	next := 1
	if len(versions) > 0 {
		next = versions[len(versions)-1] + 1
	}

	if err := atomicWrite(s.Path(kind, next), []byte(content)); err != nil {
		return 0, fmt.Errorf("failed to write artifact %s v%d: %w", kind, next, err)
	}
	return next, nil
}

// Get returns the stored content for a kind/version pair.
func (s *Store) Get(kind Kind, version int) (string, error) {
	if !kind.valid() {
		return "", fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	data, err := os.ReadFile(s.Path(kind, version))
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s v%d", ErrVersionNotFound, kind, version)
		}
		return "", fmt.Errorf("failed to read artifact %s v%d: %w", kind, version, err)
	}
	return string(data), nil
}

// Latest returns the highest stored version and its content.
func (s *Store) Latest(kind Kind) (int, string, error) {
	versions, err := s.Versions(kind)
	if err != nil {
		return 0, "", err
	}
	if len(versions) == 0 {
		return 0, "", fmt.Errorf("%w: %s has no versions", ErrVersionNotFound, kind)
	}
	latest := versions[len(versions)-1]
	content, err := s.Get(kind, latest)
	if err != nil {
		return 0, "", err
	}
	return latest, content, nil
}

// Versions returns all stored version numbers for a kind in ascending
// order. A kind with no versions yields an empty slice.
func (s *Store) Versions(kind Kind) ([]int, error) {
	if !kind.valid() {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	return s.scanVersions(kind)
}

func (s *Store) scanVersions(kind Kind) ([]int, error) {
	dir := filepath.Join(s.baseDir, kind.Dir())
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read artifact directory: %w", err)
	}

	var versions []int
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasPrefix(name, "v") || !strings.HasSuffix(name, kind.ext()) {
			continue
		}
		raw := strings.TrimSuffix(strings.TrimPrefix(name, "v"), kind.ext())
		version, err := strconv.Atoi(raw)
		if err != nil || version < 1 {
			continue
		}
		versions = append(versions, version)
	}
	sort.Ints(versions)
	return versions, nil
}

// atomicWrite writes data via a temp file and rename so readers never see a
// partial artifact.
func atomicWrite(path string, data []byte) error {
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
		return fmt.Errorf("failed to write to temp file: %w", err)
	}

	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}

	tmpFile.Close()

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}
