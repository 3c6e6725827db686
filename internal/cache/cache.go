// Package cache provides an in-memory TTL cache for computed responses.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Store maps request keys to responses for a limited time. It is safe for concurrent use.
type Store[V any] struct {
	mu         sync.RWMutex
	entries    map[string]entry[V]
	ttl        time.Duration
	maxEntries int
	now        func() time.Time

	stop chan struct{}
	once sync.Once
}

// NewStore creates a store whose entries live for ttl. When maxEntries is positive, adding
// to a full store evicts the entry closest to expiry.
func NewStore[V any](ttl time.Duration, maxEntries int) *Store[V] {
	s := &Store[V]{
		entries:    make(map[string]entry[V]),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
		stop:       make(chan struct{}),
	}

	go s.cleanupLoop(cleanupInterval(ttl))

	return s
}

func cleanupInterval(ttl time.Duration) time.Duration {
	if ttl <= 0 || ttl > 5*time.Minute {
		return 5 * time.Minute
	}
	return ttl
}

// Get returns the live value stored under key.
func (s *Store[V]) Get(key string) (V, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[key]
	if !ok || !s.now().Before(e.expiresAt) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores value under key, replacing any previous value.
func (s *Store[V]) Set(key string, value V) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if _, exists := s.entries[key]; !exists && s.maxEntries > 0 && len(s.entries) >= s.maxEntries {
		s.removeExpired(now)
		if len(s.entries) >= s.maxEntries {
			s.evictOldest()
		}
	}

	s.entries[key] = entry[V]{value: value, expiresAt: now.Add(s.ttl)}
}

// Len returns the number of stored entries, including expired ones not yet swept.
func (s *Store[V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Close stops the background sweeper.
func (s *Store[V]) Close() {
	s.once.Do(func() { close(s.stop) })
}

func (s *Store[V]) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.mu.Lock()
			s.removeExpired(s.now())
			s.mu.Unlock()
		}
	}
}

func (s *Store[V]) removeExpired(now time.Time) {
	for k, e := range s.entries {
		if !now.Before(e.expiresAt) {
			delete(s.entries, k)
		}
	}
}

func (s *Store[V]) evictOldest() {
	var (
		oldest   string
		oldestAt time.Time
		found    bool
	)
	for k, e := range s.entries {
		if !found || e.expiresAt.Before(oldestAt) {
			oldest, oldestAt, found = k, e.expiresAt, true
		}
	}
	if found {
		delete(s.entries, oldest)
	}
}

// Key derives a cache key from the JSON encoding of v.
func Key(method string, v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encoding cache key: %w", err)
	}
	sum := sha256.Sum256(append([]byte(method+"\x00"), b...))
	return hex.EncodeToString(sum[:]), nil
}
