package credstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DefaultStorageDir is the default directory for persisted credentials,
// relative to the user's home directory.
const DefaultStorageDir = ".config/credbroker/credentials"

// FileStore persists credential records as JSON files so that issued
// grants survive process restarts.
//
// SECURITY: This store handles delegated user credentials. Files are
// created with 0600 permissions and the directory with 0700; token values
// are never logged, only principal prefixes and capability keys.
type FileStore struct {
	mu         sync.RWMutex
	storageDir string
	cache      map[Key]*Record
}

// NewFileStore creates a file-backed credential store rooted at storageDir.
// An empty storageDir defaults to ~/.config/credbroker/credentials.
func NewFileStore(storageDir string) (*FileStore, error) {
	if storageDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		storageDir = filepath.Join(homeDir, DefaultStorageDir)
	}

	if err := os.MkdirAll(storageDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create credential storage directory: %w", err)
	}

	return &FileStore{
		storageDir: storageDir,
		cache:      make(map[Key]*Record),
	}, nil
}

// Get returns the record for key, or nil if none is stored.
func (s *FileStore) Get(ctx context.Context, key Key) (*Record, error) {
	s.mu.RLock()
	if record, ok := s.cache[key]; ok {
		s.mu.RUnlock()
		return record, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Double-check in case another goroutine populated the cache
	if record, ok := s.cache[key]; ok {
		return record, nil
	}

	record, err := s.readRecordFile(s.fileKey(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	s.cache[key] = record
	return record, nil
}

// Put stores record under key, overwriting any previous record.
func (s *FileStore) Put(ctx context.Context, key Key, record *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	if err := s.writeRecordFile(s.fileKey(key), record); err != nil {
		slog.Warn("SECURITY_AUDIT: credential persistence failed",
			"event", "credential_store_failed",
			"principal", truncate(key.Principal),
			"capability", key.Capability,
			"error", err.Error(),
		)
		return fmt.Errorf("failed to persist credential: %w", err)
	}

	s.cache[key] = record

	slog.Info("SECURITY_AUDIT: credential stored",
		"event", "credential_stored",
		"principal", truncate(key.Principal),
		"capability", key.Capability,
		"expires_at", record.ExpiresAt.Format(time.RFC3339),
		"has_refresh_token", record.RefreshToken != "",
	)
	return nil
}

// Delete removes the record for key.
func (s *FileStore) Delete(ctx context.Context, key Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.cache, key)

	err := os.Remove(filepath.Join(s.storageDir, s.fileKey(key)+".json"))
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	slog.Info("SECURITY_AUDIT: credential deleted",
		"event", "credential_deleted",
		"principal", truncate(key.Principal),
		"capability", key.Capability,
	)
	return nil
}

// List returns all stored records, scanning the storage directory so that
// records written by other processes are included.
func (s *FileStore) List(ctx context.Context) ([]*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.storageDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read credential directory: %w", err)
	}

	var records []*Record
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}

		record, err := s.readRecordFile(entry.Name()[:len(entry.Name())-len(".json")])
		if err != nil {
			continue
		}

		s.cache[Key{Principal: record.Principal, Capability: record.Capability}] = record
		records = append(records, record)
	}

	return records, nil
}

// fileKey generates a filesystem-safe identifier for a store key.
func (s *FileStore) fileKey(key Key) string {
	hash := sha256.Sum256([]byte(key.Principal + "\x00" + key.Capability))
	return hex.EncodeToString(hash[:16])
}

// writeRecordFile persists a record to a JSON file with restricted
// permissions (owner read/write only).
func (s *FileStore) writeRecordFile(fileKey string, record *Record) error {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal credential: %w", err)
	}

	filePath := filepath.Join(s.storageDir, fileKey+".json")
	if err := os.WriteFile(filePath, data, 0600); err != nil {
		return fmt.Errorf("failed to write credential file: %w", err)
	}

	return nil
}

// readRecordFile reads a record from a JSON file.
func (s *FileStore) readRecordFile(fileKey string) (*Record, error) {
	filePath := filepath.Join(s.storageDir, fileKey+".json")

	// #nosec G304 -- filePath is constructed from an internal hash, not user input
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal credential: %w", err)
	}

	return &record, nil
}

// truncate shortens a principal for audit log output.
func truncate(principal string) string {
	if len(principal) <= 8 {
		return principal
	}
	return principal[:8] + "..."
}
