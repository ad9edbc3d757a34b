package cache

import (
	"context"
	"sync"
	"time"

	"github.com/ahrav/go-affinity/internal/domain"
	"github.com/ahrav/go-affinity/internal/ports"
)

var _ ports.ActiveGroupStore = (*MemoryStore)(nil)

type memoryEntry struct {
	data    []byte
	expires time.Time
}

// MemoryStore keeps active results in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryStore creates a store whose entries expire after ttl; zero
// disables expiry.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// SetActive replaces the active result for result.FormID.
func (s *MemoryStore) SetActive(_ context.Context, result domain.AffinityResult) error {
	key := ActiveKey(result.FormID)
	data, err := encodeResult(result)
	if err != nil {
		return ports.NewCacheError(key, "set", err)
	}

	entry := memoryEntry{data: data}
	if s.ttl > 0 {
		entry.expires = s.now().Add(s.ttl)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = entry
	return nil
}

// Active returns the active result for formID, if one is recorded and
// not expired.
func (s *MemoryStore) Active(_ context.Context, formID string) (domain.AffinityResult, bool, error) {
	key := ActiveKey(formID)

	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok {
		return domain.AffinityResult{}, false, nil
	}
	if !entry.expires.IsZero() && !s.now().Before(entry.expires) {
		s.mu.Lock()
		// Re-check: a concurrent SetActive may have refreshed the entry.
		if cur, ok := s.entries[key]; ok && cur.expires.Equal(entry.expires) {
			delete(s.entries, key)
		}
		s.mu.Unlock()
		return domain.AffinityResult{}, false, nil
	}

	result, err := decodeResult(key, entry.data)
	if err != nil {
		return domain.AffinityResult{}, false, err
	}
	return result, true, nil
}

// Clear drops the active result for formID.
func (s *MemoryStore) Clear(_ context.Context, formID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, ActiveKey(formID))
	return nil
}
