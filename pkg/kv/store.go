// Package kv provides the small key-value capability used to persist session
// state such as recent searches. Backends: in-memory, JSON file and SQLite.
package kv

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/exploopio/findingscope/pkg/errors"
)

// =============================================================================
// Store Interface
// =============================================================================

// Store is the interface for key-value persistence.
type Store interface {
	// Get returns the value stored under key, or errors.ErrKeyNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases the backend.
	Close() error
}

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Open creates the store named by backend. path is ignored for memory.
func Open(backend, path string) (Store, error) {
	switch strings.ToLower(backend) {
	case "", BackendMemory:
		return NewMemoryStore(), nil
	case BackendFile:
		return NewFileStore(path)
	case BackendSQLite:
		return NewSQLiteStore(path)
	default:
		return nil, errors.E(errors.KindInvalidInput, "kv.Open", fmt.Sprintf("unknown backend %q", backend))
	}
}

// ValidateKey rejects empty keys and keys with control characters.
func ValidateKey(key string) error {
	if key == "" {
		return errors.E(errors.KindInvalidInput, "kv", "key is empty")
	}
	if len(key) > 256 {
		return errors.E(errors.KindInvalidInput, "kv", "key too long")
	}
	for _, r := range key {
		if r < 0x20 || r == 0x7f {
			return errors.E(errors.KindInvalidInput, "kv", "key contains control characters")
		}
	}
	return nil
}

// =============================================================================
// Memory Store
// =============================================================================

// MemoryStore implements Store in memory. Values are copied on the way in and
// out.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.data[key]
	if !ok {
		return nil, errors.ErrKeyNotFound
	}
	return append([]byte(nil), v...), nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = append([]byte(nil), value...)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, key)
	return nil
}

func (s *MemoryStore) Close() error { return nil }

// =============================================================================
// File Store
// =============================================================================

// FileStore implements Store on a single JSON object file. Every write
// rewrites the file.
type FileStore struct {
	mu       sync.RWMutex
	filePath string
	data     map[string]string
}

// NewFileStore opens or creates the store at filePath.
func NewFileStore(filePath string) (*FileStore, error) {
	if filePath == "" {
		return nil, errors.E(errors.KindInvalidInput, "kv.NewFileStore", "path is empty")
	}

	s := &FileStore{
		filePath: filePath,
		data:     make(map[string]string),
	}

	if _, err := os.Stat(filePath); err == nil {
		if err := s.load(); err != nil {
			return nil, fmt.Errorf("load kv file: %w", err)
		}
	}
	return s, nil
}

func (s *FileStore) load() error {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	if m != nil {
		s.data = m
	}
	return nil
}

// save writes m to disk. The in-memory map is only replaced by the caller
// once the write has succeeded.
func (s *FileStore) save(m map[string]string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.filePath), 0o755); err != nil {
		return err
	}

	// Write to a sibling temp file first so a crash never leaves half a file.
	tmp := s.filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.filePath)
}

func (s *FileStore) Get(_ context.Context, key string) ([]byte, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.data[key]
	if !ok {
		return nil, errors.ErrKeyNotFound
	}
	return []byte(v), nil
}

func (s *FileStore) Set(_ context.Context, key string, value []byte) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.copyData()
	next[key] = string(value)
	if err := s.save(next); err != nil {
		return err
	}
	s.data = next
	return nil
}

func (s *FileStore) Delete(_ context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[key]; !ok {
		return nil
	}
	next := s.copyData()
	delete(next, key)
	if err := s.save(next); err != nil {
		return err
	}
	s.data = next
	return nil
}

func (s *FileStore) copyData() map[string]string {
	m := make(map[string]string, len(s.data)+1)
	for k, v := range s.data {
		m[k] = v
	}
	return m
}

func (s *FileStore) Close() error { return nil }

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.filePath
}
