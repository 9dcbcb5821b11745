package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/verdantlabs/chatlink/internal/logging"
)

// record is the single keyed document persisted on disk.
type record struct {
	Sessions []Summary `json:"sessions"`
}

// Store persists the summary list as one JSON document on local disk.
// Writes are last-writer-wins; every write originates from the session
// orchestrator, so no cross-process merge is needed.
type Store struct {
	path string
	log  *logging.Logger

	mu sync.Mutex
}

// NewStore creates a store at path. An empty path places the file under the
// user configuration directory.
func NewStore(path string, log *logging.Logger) (*Store, error) {
	if path == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve config dir: %w", err)
		}
		path = filepath.Join(base, "chatlink", "history.json")
	}
	return &Store{path: path, log: log}, nil
}

// Path returns the backing file location.
func (s *Store) Path() string {
	return s.path
}

// Load reads the persisted summary list. A missing file is an empty
// history, not an error.
func (s *Store) Load() ([]Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		// A corrupt cache is recoverable: start over rather than wedging
		// the client.
		s.log.Warn("discarding corrupt history store", zap.String("path", s.path), zap.Error(err))
		return nil, nil
	}

	return rec.Sessions, nil
}

// Save replaces the persisted summary list.
func (s *Store) Save(sessions []Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(record{Sessions: sessions})
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create history dir: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write history: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace history: %w", err)
	}
	return nil
}
