package credstore

import (
	"context"
	"sync"
	"time"

	"credbroker/pkg/logging"
)

// Store is the persistent credential holder the broker depends on. It is an
// injected collaborator; the broker never assumes a particular backend.
type Store interface {
	// Get returns the record for key, or nil if none is stored.
	Get(ctx context.Context, key Key) (*Record, error)

	// Put stores record under key, overwriting any previous record.
	Put(ctx context.Context, key Key, record *Record) error

	// Delete removes the record for key. Deleting a missing key is not an
	// error.
	Delete(ctx context.Context, key Key) error

	// List returns all stored records.
	List(ctx context.Context) ([]*Record, error)
}

// MemoryStore is a thread-safe in-memory credential store.
// A background goroutine garbage-collects records that are expired and
// cannot be refreshed.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[Key]*Record

	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
}

// NewMemoryStore creates a new in-memory credential store.
func NewMemoryStore() *MemoryStore {
	ms := &MemoryStore{
		records:         make(map[Key]*Record),
		cleanupInterval: 5 * time.Minute,
		stopCleanup:     make(chan struct{}),
	}

	go ms.cleanupLoop()

	return ms
}

// Get returns the record for key, or nil if none is stored.
func (ms *MemoryStore) Get(ctx context.Context, key Key) (*Record, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	record, ok := ms.records[key]
	if !ok {
		return nil, nil
	}
	return record, nil
}

// Put stores record under key, overwriting any previous record.
func (ms *MemoryStore) Put(ctx context.Context, key Key, record *Record) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	ms.records[key] = record

	logging.Debug("CredStore", "Stored credential for principal=%s capability=%s (expires: %v)",
		logging.TruncatePrincipal(key.Principal), key.Capability, record.ExpiresAt)
	return nil
}

// Delete removes the record for key.
func (ms *MemoryStore) Delete(ctx context.Context, key Key) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	delete(ms.records, key)
	logging.Debug("CredStore", "Deleted credential for principal=%s capability=%s",
		logging.TruncatePrincipal(key.Principal), key.Capability)
	return nil
}

// List returns all stored records.
func (ms *MemoryStore) List(ctx context.Context) ([]*Record, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	records := make([]*Record, 0, len(ms.records))
	for _, r := range ms.records {
		records = append(records, r)
	}
	return records, nil
}

// Count returns the number of stored records.
func (ms *MemoryStore) Count() int {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return len(ms.records)
}

// Stop stops the background cleanup goroutine.
func (ms *MemoryStore) Stop() {
	ms.stopOnce.Do(func() {
		close(ms.stopCleanup)
	})
}

// cleanupLoop periodically removes dead records from the store.
func (ms *MemoryStore) cleanupLoop() {
	ticker := time.NewTicker(ms.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ms.cleanup()
		case <-ms.stopCleanup:
			return
		}
	}
}

// cleanup removes expired records that hold no refresh token. Expired but
// refreshable records stay: they are still silently renewable.
func (ms *MemoryStore) cleanup() {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	count := 0
	for key, record := range ms.records {
		if record.IsExpired() && !record.Refreshable() {
			delete(ms.records, key)
			count++
		}
	}

	if count > 0 {
		logging.Debug("CredStore", "Cleaned up %d dead credentials", count)
	}
}
