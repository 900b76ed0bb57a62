package storage

import (
	"context"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/sso-keeper/internal/constants"
	"github.com/oshokin/sso-keeper/internal/utils"
)

// FileStore keeps slots in a YAML file so they survive between command invocations.
// Writes go to a temporary file that replaces the original, so readers never see
// a partially written document.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// fileDocument is the on-disk layout of a FileStore.
type fileDocument struct {
	Slots map[string]string `yaml:"slots"`
}

// NewFileStore creates a FileStore backed by path. The file is created on first write.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

// Get returns the value stored under key and whether it exists.
func (s *FileStore) Get(_ context.Context, key string) (string, bool, error) {
	if key == "" {
		return "", false, ErrEmptyKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	slots, err := s.read()
	if err != nil {
		return "", false, err
	}

	value, ok := slots[key]

	return value, ok, nil
}

// Set stores value under key.
func (s *FileStore) Set(ctx context.Context, key, value string) error {
	return s.Apply(ctx, NewMutation().WithSet(key, value))
}

// Remove deletes key.
func (s *FileStore) Remove(ctx context.Context, key string) error {
	return s.Apply(ctx, Mutation{}.WithRemove(key))
}

// Apply reads the document, applies the mutation and replaces the file.
func (s *FileStore) Apply(_ context.Context, mutation Mutation) error {
	if err := mutation.validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	slots, err := s.read()
	if err != nil {
		return err
	}

	maps.Copy(slots, mutation.Set)

	for _, key := range mutation.Remove {
		delete(slots, key)
	}

	return s.write(slots)
}

func (s *FileStore) read() (map[string]string, error) {
	exists, err := utils.IsFileExist(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat session file: %w", err)
	}

	if !exists {
		return make(map[string]string), nil
	}

	content, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	var document fileDocument
	if err = yaml.Unmarshal(content, &document); err != nil {
		return nil, fmt.Errorf("failed to parse session file: %w", err)
	}

	if document.Slots == nil {
		document.Slots = make(map[string]string)
	}

	return document.Slots, nil
}

func (s *FileStore) write(slots map[string]string) error {
	content, err := yaml.Marshal(&fileDocument{Slots: slots})
	if err != nil {
		return fmt.Errorf("failed to marshal session file: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err = os.MkdirAll(dir, constants.DefaultFolderPermissions); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	tempFile, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary session file: %w", err)
	}

	tempName := tempFile.Name()

	defer os.Remove(tempName) //nolint:errcheck // Already renamed on success.

	if _, err = tempFile.Write(content); err != nil {
		tempFile.Close() //nolint:errcheck,gosec // The write error is more relevant.

		return fmt.Errorf("failed to write temporary session file: %w", err)
	}

	if err = tempFile.Chmod(constants.PrivateFilePermissions); err != nil {
		tempFile.Close() //nolint:errcheck,gosec // The chmod error is more relevant.

		return fmt.Errorf("failed to set session file permissions: %w", err)
	}

	if err = tempFile.Close(); err != nil {
		return fmt.Errorf("failed to close temporary session file: %w", err)
	}

	if err = os.Rename(tempName, s.path); err != nil {
		return fmt.Errorf("failed to replace session file: %w", err)
	}

	return nil
}
