package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/Travbz/doc-smith/internal/domain"
)

// DefaultMaxStoredRuns caps the file store; the oldest runs are evicted first.
const DefaultMaxStoredRuns = 100

// FileStore implements domain.RunStore with a single JSON file.
type FileStore struct {
	dir     string
	maxRuns int
	mu      sync.RWMutex
	runs    map[string]domain.RunSnapshot
}

// NewFileStore creates a file-backed run store in dir, loading any runs
// already there.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("runstore: create dir: %w", err)
	}

	s := &FileStore{
		dir:     dir,
		maxRuns: DefaultMaxStoredRuns,
		runs:    make(map[string]domain.RunSnapshot),
	}

	if err := s.load(); err != nil {
		return nil, fmt.Errorf("runstore: load: %w", err)
	}

	return s, nil
}

func (s *FileStore) SaveRun(_ context.Context, snap domain.RunSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs[snap.ID] = snap
	if len(s.runs) > s.maxRuns {
		s.evictOldest()
	}
	return s.persist()
}

func (s *FileStore) GetRun(_ context.Context, id string) (*domain.RunSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.runs[id]
	if !ok {
		return nil, domain.NewSubSystemError("workflow", "FileStore.GetRun", domain.ErrNotFound, id)
	}
	return &snap, nil
}

func (s *FileStore) ListRuns(_ context.Context, limit int) ([]domain.RunSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]domain.RunSnapshot, 0, len(s.runs))
	for _, r := range s.runs {
		runs = append(runs, r)
	}
	sortNewestFirst(runs)

	if limit > 0 && limit < len(runs) {
		runs = runs[:limit]
	}
	return runs, nil
}

func (s *FileStore) DeleteRun(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[id]; !ok {
		return domain.NewSubSystemError("workflow", "FileStore.DeleteRun", domain.ErrNotFound, id)
	}
	delete(s.runs, id)
	return s.persist()
}

func (s *FileStore) runsPath() string {
	return filepath.Join(s.dir, "runs.json")
}

func (s *FileStore) load() error {
	data, err := os.ReadFile(s.runsPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return domain.WrapOp("read", err)
	}

	var runs []domain.RunSnapshot
	if err := json.Unmarshal(data, &runs); err != nil {
		return fmt.Errorf("parse runs.json: %w", err)
	}
	for _, r := range runs {
		s.runs[r.ID] = r
	}
	return nil
}

func (s *FileStore) persist() error {
	runs := make([]domain.RunSnapshot, 0, len(s.runs))
	for _, r := range s.runs {
		runs = append(runs, r)
	}
	sortNewestFirst(runs)
	return writeJSON(s.runsPath(), runs)
}

// evictOldest drops the earliest-finished runs until the cap holds.
func (s *FileStore) evictOldest() {
	runs := make([]domain.RunSnapshot, 0, len(s.runs))
	for _, r := range s.runs {
		runs = append(runs, r)
	}
	sortNewestFirst(runs)
	for _, r := range runs[s.maxRuns:] {
		delete(s.runs, r.ID)
	}
}

func sortNewestFirst(runs []domain.RunSnapshot) {
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].FinishedAt.Equal(runs[j].FinishedAt) {
			return runs[i].ID > runs[j].ID
		}
		return runs[i].FinishedAt.After(runs[j].FinishedAt)
	})
}

// writeJSON atomically writes v as indented JSON to path.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return domain.WrapOp("marshal", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return domain.WrapOp("write", err)
	}
	return os.Rename(tmp, path)
}

var _ domain.RunStore = (*FileStore)(nil)
